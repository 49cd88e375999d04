package engine

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/ferretbot/ferretbot/internal/bus"
	"github.com/ferretbot/ferretbot/internal/checks"
	"github.com/ferretbot/ferretbot/internal/jsonutil"
	"github.com/ferretbot/ferretbot/internal/workflow"
)

// StepOutcome is one attempt's worth of results for an active step.
type StepOutcome struct {
	Result      string
	ToolCalls   []ToolCall
	ToolResults []checks.ToolResult
	Artifacts   []string
}

// Content renders the outcome as a workflow:step:complete payload. The
// engine parses completions from this wire shape, so in-process producers
// use it to speak the same dialect as remote ones.
func (o *StepOutcome) Content(runID int, stepID string) map[string]any {
	content := map[string]any{
		"runId":  runID,
		"stepId": stepID,
		"result": o.Result,
	}
	if len(o.ToolCalls) > 0 {
		calls := make([]any, len(o.ToolCalls))
		for i, c := range o.ToolCalls {
			m := map[string]any{"name": c.Name}
			if c.Arguments != nil {
				m["arguments"] = c.Arguments
			}
			calls[i] = m
		}
		content["toolCalls"] = calls
	}
	if len(o.ToolResults) > 0 {
		results := make([]any, len(o.ToolResults))
		for i, r := range o.ToolResults {
			results[i] = map[string]any{
				"name":     r.Name,
				"exitCode": r.ExitCode,
				"output":   r.Output,
			}
		}
		content["toolResults"] = results
	}
	if len(o.Artifacts) > 0 {
		artifacts := make([]any, len(o.Artifacts))
		for i, a := range o.Artifacts {
			artifacts[i] = a
		}
		content["artifacts"] = artifacts
	}
	return content
}

func (o *StepOutcome) meta() *StepMeta {
	if len(o.ToolCalls) == 0 && len(o.ToolResults) == 0 && len(o.Artifacts) == 0 {
		return nil
	}
	return &StepMeta{
		ToolCalls:   o.ToolCalls,
		ToolResults: o.ToolResults,
		Artifacts:   o.Artifacts,
	}
}

// completeStep processes a finished attempt: evaluate doneWhen, then either
// settle the step and advance, re-queue it for a retry, or end the run.
// reemit re-announces workflow:step:complete for attempts that executed
// inline instead of arriving as bus events. Callers hold e.mu.
func (e *Engine) completeStep(run *Run, def *workflow.Definition, stepID string, outcome *StepOutcome, reemit bool) {
	rec := run.Step(stepID)
	step := def.Step(stepID)
	if rec == nil || step == nil {
		e.log.Warn("completion for unknown step", "run", run.ID, "step", stepID)
		return
	}
	if run.State != RunRunning || rec.State != StepActive {
		// Late reports after cancellation or failure, and the engine's own
		// re-emissions, land here as no-ops.
		e.log.Debug("ignoring stale completion", "run", run.ID, "step", stepID,
			"runState", run.State, "stepState", rec.State)
		return
	}

	rec.AttemptCount++
	eval := e.checks.Evaluate(step.DoneWhen, &checks.Input{
		Text:        outcome.Result,
		ToolResults: outcome.ToolResults,
		Dir:         e.ws.Root(),
	})
	rec.CheckResults = eval.Results

	if eval.Passed {
		now := time.Now().UTC()
		rec.State = StepCompleted
		rec.Result = outcome.Result
		rec.Meta = outcome.meta()
		rec.LastFailureHash = ""
		rec.CompletedAt = &now
		e.persist(run)
		e.log.Info("step completed", "run", run.ID, "step", stepID, "attempt", rec.AttemptCount)
		if reemit {
			e.emit(bus.Event{Type: bus.EventStepComplete, Content: outcome.Content(run.ID, stepID)})
		}
		e.advance(run, def)
		return
	}

	// Checks failed. An attempt that reproduces the previous failing
	// outcome byte-for-byte will not improve with more retries.
	hash := failureHash(outcome)
	if hash != "" && hash == rec.LastFailureHash {
		e.log.Warn("step made no progress", "run", run.ID, "step", stepID, "attempt", rec.AttemptCount)
		e.failStep(run, rec, RunBlocked, workflow.CodeNoProgress,
			fmt.Sprintf("step %s repeated an identical failing outcome", stepID))
		return
	}
	rec.LastFailureHash = hash

	if rec.RetryCount < step.Retries {
		rec.RetryCount++
		rec.State = StepPending
		rec.StartedAt = nil
		e.persist(run)
		e.log.Info("step retrying", "run", run.ID, "step", stepID,
			"retry", rec.RetryCount, "of", step.Retries)
		e.advance(run, def)
		return
	}

	e.failStep(run, rec, terminalStateFor(step), workflow.CodeCheckFailed, eval.Summary())
}

// completeWaitStep settles a wait_for_input step with the parsed response.
// Receiving a parseable response is the step's success condition, so
// doneWhen does not apply.
func (e *Engine) completeWaitStep(run *Run, def *workflow.Definition, step *workflow.Step, rec *StepRecord, value string) {
	now := time.Now().UTC()
	rec.AttemptCount++
	rec.State = StepCompleted
	rec.Result = value
	rec.CompletedAt = &now
	run.State = RunRunning
	e.persist(run)
	e.log.Info("input received", "run", run.ID, "step", step.ID)
	e.advance(run, def)
}

// failStep ends the run because of a step. The step records the failing
// attempt; the run records why.
func (e *Engine) failStep(run *Run, rec *StepRecord, state, code, message string) {
	now := time.Now().UTC()
	rec.State = StepFailed
	rec.CompletedAt = &now
	run.State = state
	run.Failure = &Failure{
		Code:     code,
		Message:  message,
		StepID:   rec.ID,
		Attempts: rec.AttemptCount,
	}
	e.persist(run)
	e.log.Error("run stopped", "run", run.ID, "step", rec.ID, "state", state, "code", code)
	e.emitRunComplete(run)
}

// failureHash fingerprints a failing attempt over its canonical JSON, so
// two attempts with identical output hash identically regardless of field
// order.
func failureHash(o *StepOutcome) string {
	payload := map[string]any{
		"resultText":  o.Result,
		"toolResults": o.ToolResults,
		"artifacts":   o.Artifacts,
	}
	raw, err := jsonutil.Canonical(payload)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(raw))
}
