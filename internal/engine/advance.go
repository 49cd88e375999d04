package engine

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/ferretbot/ferretbot/internal/bus"
	"github.com/ferretbot/ferretbot/internal/workflow"
)

// findNextReadyStep returns the index of the first pending step in
// declaration order whose dependencies are all completed or skipped, or -1
// when nothing is ready.
func findNextReadyStep(def *workflow.Definition, run *Run) int {
	for i := range def.Steps {
		rec := run.Step(def.Steps[i].ID)
		if rec == nil || rec.State != StepPending {
			continue
		}
		if depsSatisfied(&def.Steps[i], run) {
			return i
		}
	}
	return -1
}

func depsSatisfied(step *workflow.Step, run *Run) bool {
	for _, dep := range step.DependsOn {
		rec := run.Step(dep)
		if rec == nil || !stepSatisfied(rec.State) {
			return false
		}
	}
	return true
}

// advance drives a run forward until it parks: at a gate, on an agent step
// awaiting the loop, or in a terminal state. System steps execute inline,
// which re-enters advance through the completion path. Callers hold e.mu.
func (e *Engine) advance(run *Run, def *workflow.Definition) {
	if run.State != RunQueued && run.State != RunRunning {
		return
	}

	idx := findNextReadyStep(def, run)
	if idx < 0 {
		e.settle(run)
		return
	}
	step := &def.Steps[idx]
	rec := run.Step(step.ID)

	if step.Approval && !e.approved(run.ID, step.ID) {
		run.State = RunWaitingApproval
		e.persist(run)
		e.log.Info("run waiting for approval", "run", run.ID, "step", step.ID)
		e.emit(bus.Event{
			Type:    bus.EventNeedsApproval,
			Content: map[string]any{"runId": run.ID, "stepId": step.ID},
		})
		return
	}

	if step.EffectiveType() == workflow.StepWaitForInput {
		e.parkForInput(run, step, rec)
		return
	}

	now := time.Now().UTC()
	rec.State = StepActive
	rec.StartedAt = &now
	run.State = RunRunning
	e.persist(run)
	e.emitStepStart(def, run, step, idx)

	if step.IsSystem() {
		e.runSystemStep(run, def, step)
	}
	// Agent steps report back through workflow:step:complete.
}

// settle resolves a run with no ready step: completed when every step
// settled successfully, otherwise untouched because an active or waiting
// step will produce the next transition.
func (e *Engine) settle(run *Run) {
	for _, rec := range run.Steps {
		if !stepSatisfied(rec.State) {
			return
		}
	}
	run.State = RunCompleted
	e.persist(run)
	e.log.Info("run completed", "run", run.ID)
	e.emitRunComplete(run)
}

// parkForInput activates a wait step, parks the run, and shows the prompt.
// The needs_input event carries the machine-readable payload; the
// agent:response twin is what chat clients render.
func (e *Engine) parkForInput(run *Run, step *workflow.Step, rec *StepRecord) {
	now := time.Now().UTC()
	rec.State = StepActive
	rec.StartedAt = &now
	run.State = RunWaitingInput
	e.persist(run)

	prompt := workflow.RenderTemplate(step.Prompt, templateScope(run))
	e.log.Info("run waiting for input", "run", run.ID, "step", step.ID)
	e.emit(bus.Event{
		Type:    bus.EventNeedsInput,
		Content: map[string]any{"runId": run.ID, "stepId": step.ID, "prompt": prompt},
	})
	e.emit(bus.Event{
		Type:      bus.EventAgentResponse,
		SessionID: boundSession(run),
		Content:   map[string]any{"text": prompt},
	})
}

func (e *Engine) emitStepStart(def *workflow.Definition, run *Run, step *workflow.Step, idx int) {
	e.emit(bus.Event{
		Type: bus.EventStepStart,
		Content: map[string]any{
			"runId":       run.ID,
			"workflowId":  run.WorkflowID,
			"version":     run.WorkflowVersion,
			"workflowDir": def.Dir,
			"stepIndex":   idx,
			"totalSteps":  len(def.Steps),
			"step":        stepDescriptor(step),
		},
	})
}

// stepDescriptor flattens a step into the event payload shape via its JSON
// tags, so the agent loop sees exactly what a wire client would.
func stepDescriptor(step *workflow.Step) map[string]any {
	raw, err := json.Marshal(step)
	if err != nil {
		return map[string]any{"id": step.ID}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"id": step.ID}
	}
	return m
}

// runSystemStep executes a filesystem step inline and routes the outcome
// through the shared completion path, re-emitting workflow:step:complete so
// observers see the same event stream for every step kind.
func (e *Engine) runSystemStep(run *Run, def *workflow.Definition, step *workflow.Step) {
	outcome, err := e.executeSystem(run, step)
	if err != nil {
		rec := run.Step(step.ID)
		rec.AttemptCount++
		e.log.Error("system step failed", "run", run.ID, "step", step.ID, "err", err)
		e.failStep(run, rec, terminalStateFor(step), workflow.CodeToolError, err.Error())
		return
	}
	e.completeStep(run, def, step.ID, outcome, true)
}

func (e *Engine) executeSystem(run *Run, step *workflow.Step) (*StepOutcome, error) {
	rendered := workflow.RenderStep(step, templateScope(run))
	switch step.EffectiveType() {
	case workflow.StepWriteFile:
		mode, err := parseFileMode(rendered.Mode)
		if err != nil {
			return nil, err
		}
		if err := e.ws.Write(rendered.Path, []byte(rendered.Content), mode); err != nil {
			return nil, err
		}
		return &StepOutcome{
			Result:    fmt.Sprintf("wrote %s (%d bytes)", rendered.Path, len(rendered.Content)),
			Artifacts: []string{rendered.Path},
		}, nil

	case workflow.StepEnsureFile:
		mode, err := parseFileMode(rendered.Mode)
		if err != nil {
			return nil, err
		}
		created, err := e.ws.Ensure(rendered.Path, []byte(rendered.Content), mode)
		if err != nil {
			return nil, err
		}
		result := fmt.Sprintf("%s already present", rendered.Path)
		if created {
			result = fmt.Sprintf("created %s", rendered.Path)
		}
		return &StepOutcome{Result: result, Artifacts: []string{rendered.Path}}, nil

	case workflow.StepDeleteFile:
		removed, err := e.ws.Delete(rendered.Path)
		if err != nil {
			return nil, err
		}
		result := fmt.Sprintf("%s already absent", rendered.Path)
		if removed {
			result = fmt.Sprintf("deleted %s", rendered.Path)
		}
		return &StepOutcome{Result: result}, nil
	}
	return nil, fmt.Errorf("unsupported system step type %q", step.Type)
}

func parseFileMode(s string) (fs.FileMode, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid file mode %q: %w", s, err)
	}
	return fs.FileMode(n), nil
}

// templateScope is the dotted-path root for {{ args.* }} placeholders.
func templateScope(run *Run) map[string]any {
	return map[string]any{"args": run.Args}
}

func boundSession(run *Run) string {
	if s, ok := run.Args["sessionId"].(string); ok {
		return s
	}
	return ""
}

// terminalStateFor maps a step's failure policy to the run state it
// produces.
func terminalStateFor(step *workflow.Step) string {
	if step.EffectiveOnFail() == workflow.OnFailBlocked {
		return RunBlocked
	}
	return RunFailed
}
