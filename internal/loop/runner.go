// Package loop drives agent steps and chat turns against the configured
// model. It subscribes to step activations and user input on the bus,
// assembles prompts within the context budget, runs the tool-call
// exchange, and reports results back as bus events.
package loop

import (
	"context"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ferretbot/ferretbot/internal/bus"
	"github.com/ferretbot/ferretbot/internal/engine"
	"github.com/ferretbot/ferretbot/internal/logging"
	"github.com/ferretbot/ferretbot/internal/prompt"
	"github.com/ferretbot/ferretbot/internal/provider"
	"github.com/ferretbot/ferretbot/internal/session"
	"github.com/ferretbot/ferretbot/internal/skills"
	"github.com/ferretbot/ferretbot/internal/tools"
	"github.com/ferretbot/ferretbot/internal/workflow"
)

// Completer is the slice of the provider client the loop needs. Tests
// substitute a scripted implementation.
type Completer interface {
	ChatCompletion(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

var _ Completer = (*provider.Client)(nil)

// Config tunes loop behavior. Zero values take the documented defaults.
type Config struct {
	// SystemPrompt is the base identity layer of every assembled prompt.
	SystemPrompt string

	// MaxToolRounds bounds model round trips per step or chat turn.
	// Default 16.
	MaxToolRounds int

	// MaxContinuations bounds how many times a length-cut response is
	// asked to continue. Default 3.
	MaxContinuations int

	// MaxSkillChars clamps each loaded skill file. Default 6000.
	MaxSkillChars int

	// MaxToolResultChars clamps tool output echoed into the transcript.
	// The full output still reaches checks through the step outcome.
	// Default 8000.
	MaxToolResultChars int

	// ChatTools names registry tools available during plain chat. Empty
	// leaves chat without tools; workflow steps declare their own.
	ChatTools []string
}

const (
	defaultMaxToolRounds      = 16
	defaultMaxContinuations   = 3
	defaultMaxSkillChars      = 6000
	defaultMaxToolResultChars = 8000
)

func applyDefaults(cfg *Config) {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	if cfg.MaxContinuations <= 0 {
		cfg.MaxContinuations = defaultMaxContinuations
	}
	if cfg.MaxSkillChars <= 0 {
		cfg.MaxSkillChars = defaultMaxSkillChars
	}
	if cfg.MaxToolResultChars <= 0 {
		cfg.MaxToolResultChars = defaultMaxToolResultChars
	}
}

// Runner executes agent work announced on the bus. Step and chat
// handlers return immediately and run the model exchange on their own
// goroutine, so slow completions never stall event dispatch.
type Runner struct {
	log       *log.Logger
	bus       *bus.Bus
	engine    *engine.Engine
	assembler *prompt.Assembler
	skills    *skills.Loader
	tools     *tools.Registry
	client    Completer
	sessions  *session.Store
	cfg       Config

	mu       sync.Mutex
	inflight map[int]*stepWork
	chatMu   map[string]*sync.Mutex
	wg       sync.WaitGroup
}

// stepWork tracks one in-flight step execution so a terminal run state
// can abort it.
type stepWork struct {
	cancel context.CancelFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger overrides the default component logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Runner) { r.log = logger }
}

// New creates a Runner over its collaborators. Call Attach to register
// the bus handlers.
func New(
	b *bus.Bus,
	eng *engine.Engine,
	assembler *prompt.Assembler,
	skillLoader *skills.Loader,
	toolReg *tools.Registry,
	client Completer,
	sessions *session.Store,
	cfg Config,
	opts ...Option,
) *Runner {
	applyDefaults(&cfg)
	r := &Runner{
		log:       logging.New("loop"),
		bus:       b,
		engine:    eng,
		assembler: assembler,
		skills:    skillLoader,
		tools:     toolReg,
		client:    client,
		sessions:  sessions,
		cfg:       cfg,
		inflight:  make(map[int]*stepWork),
		chatMu:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach registers the runner's bus subscriptions. The engine must
// attach first so parked runs get first claim on user input.
func (r *Runner) Attach() {
	r.bus.Subscribe(bus.EventStepStart, r.handleStepStart)
	r.bus.Subscribe(bus.EventUserInput, r.handleUserInput)
	r.bus.Subscribe(bus.EventRunComplete, r.handleRunComplete)
}

// Wait blocks until all in-flight exchanges have finished. Callers
// cancel the bus context first so waits are short.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// handleStepStart picks up agent-type step activations. System and wait
// steps are the engine's business and are ignored here.
func (r *Runner) handleStepStart(ctx context.Context, ev *bus.Event) error {
	start, err := parseStepStart(ev.Content)
	if err != nil {
		r.log.Warn("unparseable step activation", "err", err)
		return nil
	}
	if start.Step.EffectiveType() != workflow.StepAgent {
		return nil
	}

	stepCtx, cancel := context.WithCancel(ctx)
	work := &stepWork{cancel: cancel}
	r.mu.Lock()
	r.inflight[start.RunID] = work
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			cancel()
			r.mu.Lock()
			if r.inflight[start.RunID] == work {
				delete(r.inflight, start.RunID)
			}
			r.mu.Unlock()
		}()
		r.executeStep(stepCtx, start)
	}()
	return nil
}

// handleUserInput treats unconsumed input as conversational chat. Input
// claimed by a waiting run arrives here with Consumed set.
func (r *Runner) handleUserInput(ctx context.Context, ev *bus.Event) error {
	if ev.Consumed {
		return nil
	}
	text := strings.TrimSpace(contentString(ev.Content, "text"))
	if text == "" {
		return nil
	}
	sessionID := ev.SessionID

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.chat(ctx, sessionID, text)
	}()
	return nil
}

// handleRunComplete aborts in-flight work for a run that reached a
// terminal state, typically after a cancel command.
func (r *Runner) handleRunComplete(ctx context.Context, ev *bus.Event) error {
	_ = ctx
	runID, ok := contentInt(ev.Content, "runId")
	if !ok {
		return nil
	}
	r.mu.Lock()
	work := r.inflight[runID]
	delete(r.inflight, runID)
	r.mu.Unlock()
	if work != nil {
		r.log.Debug("aborting in-flight step", "run", runID)
		work.cancel()
	}
	return nil
}

// executeStep runs one agent step to completion and reports the outcome
// on the bus. Failures become outcomes too: the engine's checks and
// retry policy decide what happens to them.
func (r *Runner) executeStep(ctx context.Context, start *stepStart) {
	logger := r.log.With("run", start.RunID, "step", start.Step.ID)
	logger.Info("agent step started", "workflow", start.WorkflowID,
		"position", start.StepIndex+1, "of", start.TotalSteps)

	req, sessionID, err := r.buildStepRequest(start)
	if err != nil {
		logger.Error("step context assembly failed", "err", err)
		r.completeStep(start, &engine.StepOutcome{Result: "agent error: " + err.Error()})
		return
	}
	built := r.assembler.Build(*req)

	defs := r.tools.Definitions(start.Step.Tools)
	ex := &exchange{
		base:      built.Messages,
		tools:     providerTools(defs),
		allowed:   allowedSet(defs),
		maxOutput: r.capOutput(built.MaxOutputTokens),
		sessionID: sessionID,
	}
	out, err := r.runExchange(ctx, ex)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("step aborted", "err", ctx.Err())
			return
		}
		logger.Error("model exchange failed", "err", err)
		r.completeStep(start, &engine.StepOutcome{Result: "agent error: " + err.Error()})
		return
	}

	logger.Info("agent step finished",
		"rounds", out.Rounds,
		"toolCalls", len(out.ToolCalls),
		"promptTokens", out.Usage.PromptTokens,
		"completionTokens", out.Usage.CompletionTokens)
	r.completeStep(start, &engine.StepOutcome{
		Result:      out.Text,
		ToolCalls:   out.ToolCalls,
		ToolResults: out.ToolResults,
		Artifacts:   out.Artifacts,
	})
	r.emitResponse(sessionID, out.Text)
}

// chat answers one conversational turn. Turns within a session are
// serialized so histories never interleave.
func (r *Runner) chat(ctx context.Context, sessionID, text string) {
	lock := r.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	history := r.sessions.History(sessionID)
	if compacted, _ := r.assembler.Compact(history, 1, r.sessions.LastCompletionTokens(sessionID)); len(compacted) != len(history) {
		r.log.Info("session history compacted", "session", sessionID,
			"before", len(history), "after", len(compacted))
		r.sessions.Replace(sessionID, compacted)
		history = compacted
	}
	r.sessions.Append(sessionID, session.Message{Role: session.RoleUser, Content: text})

	built := r.assembler.Build(prompt.Request{
		System:    r.cfg.SystemPrompt,
		Turns:     history,
		UserInput: text,
	})
	defs := r.tools.Definitions(r.cfg.ChatTools)
	ex := &exchange{
		base:      built.Messages,
		tools:     providerTools(defs),
		allowed:   allowedSet(defs),
		maxOutput: r.capOutput(built.MaxOutputTokens),
		sessionID: sessionID,
	}
	out, err := r.runExchange(ctx, ex)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.log.Error("chat exchange failed", "session", sessionID, "err", err)
		r.emitResponse(sessionID, "Something went wrong while answering: "+err.Error())
		return
	}

	r.sessions.Append(sessionID, session.Message{Role: session.RoleAssistant, Content: out.Text})
	r.emitResponse(sessionID, out.Text)
}

func (r *Runner) sessionLock(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.chatMu[id]
	if !ok {
		m = &sync.Mutex{}
		r.chatMu[id] = m
	}
	return m
}

// completeStep reports a step outcome in the wire dialect the engine
// parses.
func (r *Runner) completeStep(start *stepStart, outcome *engine.StepOutcome) {
	ev := bus.Event{
		Type:    bus.EventStepComplete,
		Content: outcome.Content(start.RunID, start.Step.ID),
	}
	if err := r.bus.EmitAsync(ev); err != nil {
		r.log.Warn("step completion dropped", "run", start.RunID, "err", err)
	}
}

func (r *Runner) emitResponse(sessionID, text string) {
	if text == "" {
		return
	}
	ev := bus.Event{
		Type:      bus.EventAgentResponse,
		SessionID: sessionID,
		Content:   map[string]any{"text": text},
	}
	if err := r.bus.EmitAsync(ev); err != nil {
		r.log.Warn("agent response dropped", "err", err)
	}
}

// capOutput keeps completion requests within the configured output
// reserve. Backends reject limits beyond what the model can emit, so
// the reserve doubles as the request ceiling.
func (r *Runner) capOutput(n int) int {
	if reserve := r.assembler.Config().OutputReserve; n > reserve {
		n = reserve
	}
	if n < 1 {
		n = 1
	}
	return n
}

func providerTools(defs []tools.Definition) []provider.ToolDefinition {
	if len(defs) == 0 {
		return nil
	}
	out := make([]provider.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, provider.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Schema:      d.Schema,
		})
	}
	return out
}

func allowedSet(defs []tools.Definition) map[string]bool {
	if len(defs) == 0 {
		return nil
	}
	set := make(map[string]bool, len(defs))
	for _, d := range defs {
		set[d.Name] = true
	}
	return set
}

func contentString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// contentInt tolerates the numeric types JSON decoding produces.
func contentInt(m map[string]any, key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	switch n := m[key].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
