package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ferretbot/ferretbot/internal/bus"
	"github.com/ferretbot/ferretbot/internal/checks"
	"github.com/ferretbot/ferretbot/internal/workflow"
)

// handleRunStart serves workflow:run:start commands.
func (e *Engine) handleRunStart(ctx context.Context, ev *bus.Event) error {
	_ = ctx
	workflowID := contentString(ev.Content, "workflowId")
	if workflowID == "" {
		e.replyErr(ev, workflow.CodeInvalidRequest, "workflowId is required")
		return nil
	}
	var args map[string]any
	if raw, ok := ev.Content["args"]; ok && raw != nil {
		args, ok = raw.(map[string]any)
		if !ok {
			e.replyErr(ev, workflow.CodeInvalidRequest, "args must be an object")
			return nil
		}
	}

	run, err := e.StartRun(StartParams{
		WorkflowID: workflowID,
		Version:    contentString(ev.Content, "version"),
		Args:       args,
	})
	if err != nil {
		e.replyErr(ev, codeForError(err), err.Error())
		return nil
	}
	e.replyOK(ev, fmt.Sprintf("run %d queued", run.ID), map[string]any{
		"runId": run.ID,
		"state": run.State,
	})
	return nil
}

// handleRunCancel serves workflow:run:cancel commands.
func (e *Engine) handleRunCancel(ctx context.Context, ev *bus.Event) error {
	_ = ctx
	runID, ok := contentInt(ev.Content, "runId")
	if !ok {
		e.replyErr(ev, workflow.CodeInvalidRequest, "runId is required")
		return nil
	}
	run, err := e.CancelRun(runID)
	if err != nil {
		e.replyErr(ev, codeForError(err), err.Error())
		return nil
	}
	e.replyOK(ev, fmt.Sprintf("run %d cancelled", run.ID), map[string]any{
		"runId": run.ID,
		"state": run.State,
	})
	return nil
}

// handleRunList serves workflow:run:list commands.
func (e *Engine) handleRunList(ctx context.Context, ev *bus.Event) error {
	_ = ctx
	summaries := e.ListRuns()
	runs := make([]any, len(summaries))
	for i, s := range summaries {
		runs[i] = summaryContent(s)
	}
	e.replyOK(ev, fmt.Sprintf("%d runs", len(runs)), map[string]any{"runs": runs})
	return nil
}

// handleRunResume serves workflow:run:resume commands.
func (e *Engine) handleRunResume(ctx context.Context, ev *bus.Event) error {
	_ = ctx
	runID, ok := contentInt(ev.Content, "runId")
	if !ok {
		e.replyErr(ev, workflow.CodeInvalidRequest, "runId is required")
		return nil
	}
	run, err := e.ResumeRun(runID)
	if err != nil {
		e.replyErr(ev, codeForError(err), err.Error())
		return nil
	}
	e.replyOK(ev, fmt.Sprintf("run %d resumed", run.ID), map[string]any{
		"runId": run.ID,
		"state": run.State,
	})
	return nil
}

// handleStepComplete routes workflow:step:complete reports into the
// completion path.
func (e *Engine) handleStepComplete(ctx context.Context, ev *bus.Event) error {
	_ = ctx
	runID, ok := contentInt(ev.Content, "runId")
	if !ok {
		return nil
	}
	stepID := contentString(ev.Content, "stepId")

	e.mu.Lock()
	defer e.mu.Unlock()

	run, ok := e.runs[runID]
	if !ok {
		return nil
	}
	def, err := e.registry.Get(run.WorkflowID, run.WorkflowVersion)
	if err != nil {
		e.log.Warn("run references unknown workflow", "run", run.ID, "err", err)
		return nil
	}
	e.completeStep(run, def, stepID, outcomeFromContent(ev.Content), false)
	return nil
}

// handleUserInput offers each waiting run, oldest first, the chance to
// consume a user message as its wait_for_input response.
func (e *Engine) handleUserInput(ctx context.Context, ev *bus.Event) error {
	_ = ctx
	text := contentString(ev.Content, "text")

	e.mu.Lock()
	defer e.mu.Unlock()

	for id := 1; id < e.nextID; id++ {
		run, ok := e.runs[id]
		if !ok || run.State != RunWaitingInput {
			continue
		}
		if e.offerInput(run, ev, text) {
			return nil
		}
	}
	return nil
}

// offerInput tries to satisfy one waiting run with this message and reports
// whether the envelope was consumed. Session binding happens even when the
// message does not parse, so the run stays pinned to whoever spoke first.
func (e *Engine) offerInput(run *Run, ev *bus.Event, text string) bool {
	def, err := e.registry.Get(run.WorkflowID, run.WorkflowVersion)
	if err != nil {
		e.log.Warn("waiting run references unknown workflow", "run", run.ID, "err", err)
		return false
	}
	step, rec := activeWaitStep(def, run)
	if step == nil {
		return false
	}

	switch bound := boundSession(run); {
	case bound == "":
		run.Args["sessionId"] = ev.SessionID
		e.persist(run)
	case bound != ev.SessionID:
		if !run.Bootstrap {
			return false
		}
		// Bootstrap runs follow the user across reconnects.
		run.Args["sessionId"] = ev.SessionID
		e.persist(run)
		e.emit(bus.Event{
			Type:      bus.EventAgentResponse,
			SessionID: ev.SessionID,
			Content:   map[string]any{"text": workflow.RenderTemplate(step.Prompt, templateScope(run))},
		})
	}

	resp, ok := e.parser.Parse(step.Prompt, text)
	if !ok {
		return false
	}
	if step.ResponseKey != "" {
		run.Args[step.ResponseKey] = resp.Value
	}
	if resp.AssistantName != "" {
		run.Args["assistantName"] = resp.AssistantName
	}
	ev.Consumed = true
	e.completeWaitStep(run, def, step, rec, resp.Value)
	return true
}

// activeWaitStep returns the wait_for_input step a run is parked on.
func activeWaitStep(def *workflow.Definition, run *Run) (*workflow.Step, *StepRecord) {
	for i := range def.Steps {
		step := &def.Steps[i]
		if step.EffectiveType() != workflow.StepWaitForInput {
			continue
		}
		rec := run.Step(step.ID)
		if rec != nil && rec.State == StepActive {
			return step, rec
		}
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Command replies
// ---------------------------------------------------------------------------

func (e *Engine) replyOK(req *bus.Event, message string, data map[string]any) {
	e.replyResult(req, true, "", message, data)
}

func (e *Engine) replyErr(req *bus.Event, code, message string) {
	e.replyResult(req, false, code, message, nil)
}

// replyResult emits the agent:status command result for a request, echoing
// the envelope fields the gateway uses to route it back to the caller.
func (e *Engine) replyResult(req *bus.Event, ok bool, code, message string, data map[string]any) {
	content := map[string]any{
		"kind":      bus.ContentKindCommandResult,
		"command":   req.Type,
		"requestId": contentString(req.Content, "requestId"),
		"ok":        ok,
		"message":   message,
	}
	if code != "" {
		content["code"] = code
	}
	if data != nil {
		content["data"] = data
	}
	e.emit(bus.Event{
		Type:      bus.EventAgentStatus,
		Channel:   req.Channel,
		SessionID: req.SessionID,
		ClientID:  req.ClientID,
		Content:   content,
	})
}

func codeForError(err error) string {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		return workflow.CodeNotFound
	case errors.Is(err, ErrInvalidArgs):
		return workflow.CodeValidation
	}
	return workflow.CodeInvalidRequest
}

func summaryContent(s Summary) map[string]any {
	m := map[string]any{
		"runId":      s.ID,
		"workflowId": s.WorkflowID,
		"version":    s.WorkflowVersion,
		"state":      s.State,
		"createdAt":  s.CreatedAt,
		"updatedAt":  s.UpdatedAt,
	}
	if s.Failure != nil {
		m["failure"] = map[string]any{"code": s.Failure.Code, "message": s.Failure.Message}
	}
	return m
}

// ---------------------------------------------------------------------------
// Payload coercion
// ---------------------------------------------------------------------------

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
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

// outcomeFromContent decodes the wire shape of a step:complete payload.
// Malformed entries are dropped rather than failing the completion.
func outcomeFromContent(content map[string]any) *StepOutcome {
	out := &StepOutcome{Result: contentString(content, "result")}
	if raw, ok := content["toolCalls"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			call := ToolCall{Name: contentString(m, "name")}
			if args, ok := m["arguments"].(map[string]any); ok {
				call.Arguments = args
			}
			out.ToolCalls = append(out.ToolCalls, call)
		}
	}
	if raw, ok := content["toolResults"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			tr := checks.ToolResult{
				Name:   contentString(m, "name"),
				Output: contentString(m, "output"),
			}
			// Both exit code spellings appear on the wire; "code" is the
			// short form some producers use.
			if code, ok := contentInt(m, "exitCode"); ok {
				tr.ExitCode = code
			} else if code, ok := contentInt(m, "code"); ok {
				tr.ExitCode = code
			}
			out.ToolResults = append(out.ToolResults, tr)
		}
	}
	if raw, ok := content["artifacts"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				out.Artifacts = append(out.Artifacts, s)
			}
		}
	}
	return out
}
