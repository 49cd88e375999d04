package loop

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ferretbot/ferretbot/internal/checks"
	"github.com/ferretbot/ferretbot/internal/engine"
	"github.com/ferretbot/ferretbot/internal/prompt"
	"github.com/ferretbot/ferretbot/internal/session"
	"github.com/ferretbot/ferretbot/internal/skills"
	"github.com/ferretbot/ferretbot/internal/workflow"
)

// recentTurns bounds how much conversation history flows into a step's
// prior-context layer when the run is bound to a session.
const recentTurns = 6

// recentTurnChars clips each echoed turn.
const recentTurnChars = 240

// stepStart is the parsed payload of a step activation event.
type stepStart struct {
	RunID       int
	WorkflowID  string
	Version     string
	WorkflowDir string
	StepIndex   int
	TotalSteps  int
	Step        workflow.Step
}

// parseStepStart decodes a workflow:step:start payload. The step
// descriptor travels as a JSON object, so it round-trips back into the
// step type it was flattened from.
func parseStepStart(content map[string]any) (*stepStart, error) {
	runID, ok := contentInt(content, "runId")
	if !ok {
		return nil, errors.New("runId missing")
	}
	raw, ok := content["step"]
	if !ok || raw == nil {
		return nil, errors.New("step descriptor missing")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("step descriptor: %w", err)
	}
	var step workflow.Step
	if err := json.Unmarshal(data, &step); err != nil {
		return nil, fmt.Errorf("step descriptor: %w", err)
	}
	if step.ID == "" {
		return nil, errors.New("step descriptor has no id")
	}

	start := &stepStart{
		RunID:       runID,
		WorkflowID:  contentString(content, "workflowId"),
		Version:     contentString(content, "version"),
		WorkflowDir: contentString(content, "workflowDir"),
		Step:        step,
	}
	if idx, ok := contentInt(content, "stepIndex"); ok {
		start.StepIndex = idx
	}
	if total, ok := contentInt(content, "totalSteps"); ok {
		start.TotalSteps = total
	}
	return start, nil
}

// buildStepRequest assembles the prompt layers for one step: rendered
// instruction, loaded skills, and prior context from the run record.
// The returned session id is the one the run is bound to, or empty.
func (r *Runner) buildStepRequest(start *stepStart) (*prompt.Request, string, error) {
	run, err := r.engine.GetRun(start.RunID)
	if err != nil {
		return nil, "", err
	}
	sessionID := sessionFor(run)
	scope := map[string]any{"args": run.Args}
	instruction := workflow.RenderTemplate(start.Step.Instruction, scope)

	var skillText string
	if len(start.Step.LoadSkills) > 0 {
		loaded, err := r.skills.LoadForStep(skills.Request{
			WorkflowDir: start.WorkflowDir,
			Names:       start.Step.LoadSkills,
			MaxChars:    r.cfg.MaxSkillChars,
		})
		if err != nil {
			return nil, "", err
		}
		skillText = loaded.Text
	}

	var turns []session.Message
	var summary string
	if sessionID != "" {
		turns, summary = r.sessions.CollectConversation(sessionID,
			r.assembler.LayerBudget(prompt.LayerPrior))
	}

	req := &prompt.Request{
		System: r.cfg.SystemPrompt,
		Step:   renderStepLayer(start, instruction),
		Skills: skillText,
		Prior:  renderPrior(run, turns, summary),
	}
	return req, sessionID, nil
}

func sessionFor(run *engine.Run) string {
	s, _ := run.Args["sessionId"].(string)
	return s
}

// renderStepLayer produces the step scope text: position, instruction,
// expected outputs, and the success checks spelled out so the model
// knows what it is working toward.
func renderStepLayer(start *stepStart, instruction string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current step: %s (%d of %d) in workflow %s.\n",
		start.Step.ID, start.StepIndex+1, start.TotalSteps, start.WorkflowID)
	b.WriteString("\nInstruction:\n")
	b.WriteString(strings.TrimSpace(instruction))
	if len(start.Step.Outputs) > 0 {
		fmt.Fprintf(&b, "\n\nExpected outputs: %s.", strings.Join(start.Step.Outputs, ", "))
	}
	if len(start.Step.DoneWhen) > 0 {
		b.WriteString("\n\nThe step is judged complete when:\n")
		for i := range start.Step.DoneWhen {
			b.WriteString("- " + describeCheck(&start.Step.DoneWhen[i]) + "\n")
		}
	}
	b.WriteString("\nReply with the step result once the work is done.")
	return b.String()
}

// describeCheck renders one doneWhen entry as prose.
func describeCheck(c *workflow.Check) string {
	switch c.Type {
	case checks.TypeContains:
		return fmt.Sprintf("the response contains %q", c.Text)
	case checks.TypeNotContains:
		return fmt.Sprintf("the response does not contain %q", c.Text)
	case checks.TypeRegex:
		return fmt.Sprintf("the response matches /%s/", c.Pattern)
	case checks.TypeExitCode, checks.TypeCommandExitCode:
		expected := 0
		if c.Expected != nil {
			expected = *c.Expected
		}
		return fmt.Sprintf("the last command exits with code %d", expected)
	case checks.TypeFileExists:
		return fmt.Sprintf("the file %s exists", c.Path)
	case checks.TypeFileNotExists:
		return fmt.Sprintf("the file %s does not exist", c.Path)
	case checks.TypeFileContains:
		return fmt.Sprintf("the file %s contains %q", c.Path, c.Text)
	case checks.TypeFileRegex:
		return fmt.Sprintf("the file %s matches /%s/", c.Path, c.Pattern)
	case checks.TypeFileHashChanged:
		return fmt.Sprintf("the file %s has changed", c.Path)
	default:
		return c.Type
	}
}

// renderPrior builds the prior-context layer: run arguments, results of
// earlier steps, the session's rolling conversation summary, and a slice
// of recent conversation when the run is session-bound. Empty when the
// run carries no history yet.
func renderPrior(run *engine.Run, turns []session.Message, summary string) string {
	var sections []string
	if args := renderArgs(run.Args); args != "" {
		sections = append(sections, args)
	}
	if completed := renderCompleted(run); completed != "" {
		sections = append(sections, completed)
	}
	if summary != "" {
		sections = append(sections, "Conversation summary:\n"+summary)
	}
	if conv := renderRecent(turns); conv != "" {
		sections = append(sections, conv)
	}
	return strings.Join(sections, "\n\n")
}

func renderArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		// sessionId is routing plumbing, not task context.
		if k == "sessionId" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("Run arguments:")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s: %v", k, args[k])
	}
	return b.String()
}

func renderCompleted(run *engine.Run) string {
	var b strings.Builder
	for _, rec := range run.Steps {
		if rec.State != engine.StepCompleted || rec.Result == "" {
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n%s", rec.ID, rec.Result)
	}
	if b.Len() == 0 {
		return ""
	}
	return "Results from earlier steps:" + b.String()
}

func renderRecent(turns []session.Message) string {
	var picked []session.Message
	for i := len(turns) - 1; i >= 0 && len(picked) < recentTurns; i-- {
		switch turns[i].Role {
		case session.RoleUser, session.RoleAssistant:
			picked = append(picked, turns[i])
		}
	}
	if len(picked) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent conversation:")
	for i := len(picked) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "\n%s: %s", picked[i].Role, clipRunes(picked[i].Content, recentTurnChars))
	}
	return b.String()
}

func clipRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
