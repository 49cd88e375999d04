// Package engine executes workflow runs. It schedules ready steps in
// declaration order, gates on approvals and user input, evaluates success
// checks, retries failed steps with no-progress detection, and persists
// every mutation. The bus queue is the serialization point for event-driven
// transitions; the engine mutex covers the direct API calls that arrive
// outside a bus handler.
package engine

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ferretbot/ferretbot/internal/bus"
	"github.com/ferretbot/ferretbot/internal/checks"
	"github.com/ferretbot/ferretbot/internal/logging"
	"github.com/ferretbot/ferretbot/internal/workflow"
	"github.com/ferretbot/ferretbot/internal/workspace"
)

// ErrInvalidArgs indicates run arguments that fail input validation.
var ErrInvalidArgs = errors.New("engine: invalid run arguments")

// ErrNotWaiting indicates a resume on a run that is not paused at an
// approval gate.
var ErrNotWaiting = errors.New("engine: run is not waiting for approval")

// Option configures an Engine.
type Option func(*Engine)

// WithLogger replaces the default component logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.log = logger }
}

// WithResponseParser replaces the default wait_for_input parser.
func WithResponseParser(p ResponseParser) Option {
	return func(e *Engine) { e.parser = p }
}

// Engine owns all run state for the process. Runs reference their workflow
// by (id, version) and the definition is looked up on every advance, so
// definitions and runs stay disjoint.
type Engine struct {
	log      *log.Logger
	bus      *bus.Bus
	registry *workflow.Registry
	checks   *checks.Registry
	ws       *workspace.Workspace
	store    *Store
	parser   ResponseParser

	mu        sync.Mutex
	runs      map[int]*Run
	approvals map[int]map[string]bool
	nextID    int
}

// New builds an engine and restores previously persisted runs from
// storageDir. Restored waiting runs resume through their normal gates
// (resume command, user input); restored queued or running runs are inert
// records that remain listable and cancellable.
func New(b *bus.Bus, registry *workflow.Registry, checkReg *checks.Registry, ws *workspace.Workspace, storageDir string, opts ...Option) (*Engine, error) {
	e := &Engine{
		log:       logging.New("engine"),
		bus:       b,
		registry:  registry,
		checks:    checkReg,
		ws:        ws,
		store:     NewStore(storageDir),
		parser:    HeuristicParser{},
		runs:      make(map[int]*Run),
		approvals: make(map[int]map[string]bool),
		nextID:    1,
	}
	for _, opt := range opts {
		opt(e)
	}

	runs, err := e.store.LoadAll()
	if err != nil {
		e.log.Warn("some persisted runs failed to load", "err", err)
	}
	for _, run := range runs {
		e.runs[run.ID] = run
		if run.ID >= e.nextID {
			e.nextID = run.ID + 1
		}
	}
	if len(runs) > 0 {
		e.log.Debug("restored persisted runs", "count", len(runs), "nextId", e.nextID)
	}
	return e, nil
}

// Attach subscribes the engine's bus handlers. Call once before the bus
// starts dispatching so the engine sees user input ahead of the chat loop.
func (e *Engine) Attach() {
	e.bus.Subscribe(bus.EventRunStart, e.handleRunStart)
	e.bus.Subscribe(bus.EventRunCancel, e.handleRunCancel)
	e.bus.Subscribe(bus.EventRunList, e.handleRunList)
	e.bus.Subscribe(bus.EventRunResume, e.handleRunResume)
	e.bus.Subscribe(bus.EventStepComplete, e.handleStepComplete)
	e.bus.Subscribe(bus.EventUserInput, e.handleUserInput)
}

// StartParams describes a run request.
type StartParams struct {
	WorkflowID string
	Version    string
	Args       map[string]any

	// Bootstrap marks a daemon-initiated run whose wait gates rebind to
	// whichever session answers, instead of staying pinned to the first.
	Bootstrap bool
}

// StartRun creates a run for the resolved workflow version, snapshots its
// steps as pending, announces it, persists it, and advances. The returned
// run is a detached copy.
func (e *Engine) StartRun(params StartParams) (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, err := e.registry.Get(params.WorkflowID, params.Version)
	if err != nil {
		return nil, err
	}
	args, err := applyInputs(def, params.Args)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	run := &Run{
		ID:              e.nextID,
		WorkflowID:      def.ID,
		WorkflowVersion: def.Version,
		State:           RunQueued,
		Args:            args,
		Steps:           make([]*StepRecord, len(def.Steps)),
		Bootstrap:       params.Bootstrap,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i := range def.Steps {
		run.Steps[i] = &StepRecord{ID: def.Steps[i].ID, State: StepPending}
	}
	e.nextID++
	e.runs[run.ID] = run

	e.log.Info("run queued", "run", run.ID, "workflow", def.ID, "version", def.Version)
	e.emit(bus.Event{
		Type: bus.EventRunQueued,
		Content: map[string]any{
			"runId":      run.ID,
			"workflowId": run.WorkflowID,
			"version":    run.WorkflowVersion,
		},
	})
	e.persist(run)
	e.advance(run, def)
	return run.Clone(), nil
}

// CancelRun moves a run to cancelled, clearing any failure, and announces
// completion. Cancellation has no state precondition; in-flight step work
// becomes a no-op when it reports back.
func (e *Engine) CancelRun(runID int) (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	run, ok := e.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %d: %w", runID, workflow.ErrNotFound)
	}
	run.State = RunCancelled
	run.Failure = nil
	e.persist(run)
	e.log.Info("run cancelled", "run", run.ID)
	e.emitRunComplete(run)
	return run.Clone(), nil
}

// ResumeRun approves the step a run is paused on and re-enters the
// scheduler. Only runs in waiting_approval can be resumed.
func (e *Engine) ResumeRun(runID int) (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	run, ok := e.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %d: %w", runID, workflow.ErrNotFound)
	}
	if run.State != RunWaitingApproval {
		return nil, fmt.Errorf("run %d in state %s: %w", runID, run.State, ErrNotWaiting)
	}
	def, err := e.registry.Get(run.WorkflowID, run.WorkflowVersion)
	if err != nil {
		return nil, err
	}

	idx := findNextReadyStep(def, run)
	if idx >= 0 {
		e.approve(run.ID, def.Steps[idx].ID)
	}
	run.State = RunRunning
	e.persist(run)
	e.log.Info("run resumed", "run", run.ID)
	e.advance(run, def)
	return run.Clone(), nil
}

// GetRun returns a detached copy of a run record.
func (e *Engine) GetRun(runID int) (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	run, ok := e.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %d: %w", runID, workflow.ErrNotFound)
	}
	return run.Clone(), nil
}

// ListRuns returns summaries of every known run, oldest first.
func (e *Engine) ListRuns() []Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Summary, 0, len(e.runs))
	for id := 1; id < e.nextID; id++ {
		if run, ok := e.runs[id]; ok {
			out = append(out, run.Summary())
		}
	}
	return out
}

func (e *Engine) approve(runID int, stepID string) {
	set, ok := e.approvals[runID]
	if !ok {
		set = make(map[string]bool)
		e.approvals[runID] = set
	}
	set[stepID] = true
}

func (e *Engine) approved(runID int, stepID string) bool {
	return e.approvals[runID][stepID]
}

// persist stamps UpdatedAt and writes the run record. A write failure is
// logged loudly and execution continues; in-memory state stays
// authoritative for the life of the process.
func (e *Engine) persist(run *Run) {
	run.UpdatedAt = time.Now().UTC()
	if err := e.store.Save(run); err != nil {
		e.log.Error("run persistence failed", "run", run.ID, "err", err)
	}
}

// emit enqueues an event without waiting for dispatch. Handlers run while
// the engine mutex is held, so a blocking emit could deadlock against the
// bus goroutine calling back into the engine.
func (e *Engine) emit(ev bus.Event) {
	if err := e.bus.EmitAsync(ev); err != nil {
		e.log.Warn("event dropped", "type", ev.Type, "err", err)
	}
}

func (e *Engine) emitRunComplete(run *Run) {
	content := map[string]any{
		"runId":      run.ID,
		"workflowId": run.WorkflowID,
		"state":      run.State,
	}
	if run.Failure != nil {
		content["failure"] = map[string]any{
			"code":     run.Failure.Code,
			"message":  run.Failure.Message,
			"stepId":   run.Failure.StepID,
			"attempts": run.Failure.Attempts,
		}
	}
	e.emit(bus.Event{Type: bus.EventRunComplete, Content: content})
}

// applyInputs validates caller args against the workflow's declared inputs
// and fills in defaults. Undeclared args pass through untouched so
// templates can still address them.
func applyInputs(def *workflow.Definition, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args)+2)
	for k, v := range args {
		out[k] = v
	}

	var problems []string
	for _, in := range def.Inputs {
		v, ok := out[in.Name]
		if !ok {
			if in.Default != nil {
				out[in.Name] = in.Default
				continue
			}
			if in.Required {
				problems = append(problems, fmt.Sprintf("missing required input %q", in.Name))
			}
			continue
		}
		if !inputTypeOK(in.Type, v) {
			problems = append(problems, fmt.Sprintf("input %q must be a %s", in.Name, in.Type))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArgs, strings.Join(problems, "; "))
	}
	return out, nil
}

// inputTypeOK checks a JSON-decoded value against a declared input type.
// Undeclared types accept anything.
func inputTypeOK(typ string, v any) bool {
	switch typ {
	case workflow.InputString:
		_, ok := v.(string)
		return ok
	case workflow.InputNumber:
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case workflow.InputBoolean:
		_, ok := v.(bool)
		return ok
	}
	return true
}
