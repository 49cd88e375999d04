package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/ferretbot/ferretbot/internal/bus"
	"github.com/ferretbot/ferretbot/internal/ipc"
)

// waitForEvent returns a tea.Cmd that reads a single event from the client's
// inbound stream and converts it to a TUI message. A closed stream produces
// ConnectionLostMsg.
//
// Usage: call once from Init, then again inside App.Update after handling any
// bridged message to keep draining the stream:
//
//	case AgentResponseMsg:
//	    // handle...
//	    return a, waitForEvent(client)
func waitForEvent(c *ipc.Client) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-c.Events()
		if !ok {
			return ConnectionLostMsg{}
		}
		return convertEvent(ev)
	}
}

// convertEvent maps a daemon event to its TUI message. Every event converts
// to a non-nil message so the pump in App.Update always re-arms; types the
// chat screen does not render become DaemonEventMsg.
func convertEvent(ev bus.Event) tea.Msg {
	ts := eventTime(ev)

	switch ev.Type {
	case bus.EventAgentResponse:
		text, _ := ev.Content["text"].(string)
		return AgentResponseMsg{
			Text:      text,
			SessionID: ev.SessionID,
			Timestamp: ts,
		}

	case bus.EventRunQueued:
		runID, _ := contentInt(ev.Content, "runId")
		workflowID, _ := ev.Content["workflowId"].(string)
		version, _ := ev.Content["version"].(string)
		return RunQueuedMsg{
			RunID:      runID,
			WorkflowID: workflowID,
			Version:    version,
			Timestamp:  ts,
		}

	case bus.EventRunComplete:
		runID, _ := contentInt(ev.Content, "runId")
		workflowID, _ := ev.Content["workflowId"].(string)
		state, _ := ev.Content["state"].(string)
		return RunCompleteMsg{
			RunID:      runID,
			WorkflowID: workflowID,
			State:      state,
			Failure:    failureText(ev.Content),
			Timestamp:  ts,
		}

	case bus.EventNeedsInput:
		runID, _ := contentInt(ev.Content, "runId")
		stepID, _ := ev.Content["stepId"].(string)
		prompt, _ := ev.Content["prompt"].(string)
		return NeedsInputMsg{
			RunID:     runID,
			StepID:    stepID,
			Prompt:    prompt,
			Timestamp: ts,
		}

	case bus.EventNeedsApproval:
		runID, _ := contentInt(ev.Content, "runId")
		stepID, _ := ev.Content["stepId"].(string)
		return NeedsApprovalMsg{
			RunID:     runID,
			StepID:    stepID,
			Timestamp: ts,
		}

	case bus.EventAgentStatus:
		if res := ipc.ParseCommandResult(&ev); res != nil {
			return CommandResultMsg{Result: res, Timestamp: ts}
		}
		return DaemonEventMsg{Type: ev.Type}

	default:
		// Includes the gateway echoing our own user:input back, plus
		// step-level events the transcript does not render.
		return DaemonEventMsg{Type: ev.Type}
	}
}

// eventTime converts the envelope's millisecond timestamp, falling back to
// now when the event carries none.
func eventTime(ev bus.Event) time.Time {
	if ev.Timestamp == 0 {
		return time.Now()
	}
	return time.UnixMilli(ev.Timestamp)
}

// failureText flattens a run:complete failure payload into one line.
func failureText(content map[string]any) string {
	failure, ok := content["failure"].(map[string]any)
	if !ok {
		return ""
	}
	code, _ := failure["code"].(string)
	message, _ := failure["message"].(string)
	switch {
	case code != "" && message != "":
		return code + ": " + message
	case code != "":
		return code
	default:
		return message
	}
}

// contentInt reads a numeric content field. JSON decoding hands the bridge
// float64 values, direct emits may carry int.
func contentInt(content map[string]any, key string) (int, bool) {
	switch v := content[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// sendInputCmd writes the user's text to the daemon as a user:input event.
// Only failures produce a message; the optimistic transcript echo already
// happened in Update.
func sendInputCmd(c *ipc.Client, text string) tea.Cmd {
	return func() tea.Msg {
		if err := c.Send(ipc.UserInput(text)); err != nil {
			return SendFailedMsg{Err: err}
		}
		return nil
	}
}

// requestRunListCmd asks the daemon for run summaries. The reply arrives
// through the event pump as a CommandResultMsg.
func requestRunListCmd(c *ipc.Client) tea.Cmd {
	return func() tea.Msg {
		if err := c.Send(ipc.RunList(uuid.NewString())); err != nil {
			return SendFailedMsg{Err: err}
		}
		return nil
	}
}
