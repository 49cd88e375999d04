package ipc

import "github.com/ferretbot/ferretbot/internal/bus"

// UserInput builds a user:input event carrying freeform text.
func UserInput(text string) bus.Event {
	return bus.Event{
		Type:    bus.EventUserInput,
		Content: map[string]any{"text": text},
	}
}

// RunStart builds a workflow:run:start command correlated by requestID.
// Version and args may be empty.
func RunStart(workflowID, version string, args map[string]any, requestID string) bus.Event {
	content := map[string]any{
		"workflowId": workflowID,
		"requestId":  requestID,
	}
	if version != "" {
		content["version"] = version
	}
	if len(args) > 0 {
		content["args"] = args
	}
	return bus.Event{Type: bus.EventRunStart, Content: content}
}

// RunCancel builds a workflow:run:cancel command correlated by requestID.
func RunCancel(runID int, requestID string) bus.Event {
	return bus.Event{
		Type:    bus.EventRunCancel,
		Content: map[string]any{"runId": runID, "requestId": requestID},
	}
}

// RunList builds a workflow:run:list command correlated by requestID.
func RunList(requestID string) bus.Event {
	return bus.Event{
		Type:    bus.EventRunList,
		Content: map[string]any{"requestId": requestID},
	}
}

// RunResume builds a workflow:run:resume command correlated by requestID.
func RunResume(runID int, requestID string) bus.Event {
	return bus.Event{
		Type:    bus.EventRunResume,
		Content: map[string]any{"runId": runID, "requestId": requestID},
	}
}
