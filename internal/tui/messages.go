package tui

import (
	"time"

	"github.com/ferretbot/ferretbot/internal/ipc"
)

// ---------------------------------------------------------------------------
// Transcript roles
// ---------------------------------------------------------------------------

// Role classifies a transcript entry for display purposes.
type Role int

const (
	// RoleUser marks text the user typed.
	RoleUser Role = iota
	// RoleAgent marks displayable agent output.
	RoleAgent
	// RoleSystem marks connection and run lifecycle notices.
	RoleSystem
	// RolePrompt marks a workflow question waiting for the user's answer.
	RolePrompt
	// RoleError marks a failure the user should see.
	RoleError
)

// roleStrings maps each Role constant to its transcript label.
var roleStrings = []string{
	"you",
	"agent",
	"system",
	"input?",
	"error",
}

// String returns the transcript label for the Role.
// Returns "unknown" for values outside the defined range.
func (r Role) String() string {
	if int(r) < 0 || int(r) >= len(roleStrings) {
		return "unknown"
	}
	return roleStrings[r]
}

// ---------------------------------------------------------------------------
// Daemon Messages
// ---------------------------------------------------------------------------

// AgentResponseMsg carries displayable agent output received from the daemon.
type AgentResponseMsg struct {
	// Text is the agent's reply.
	Text string
	// SessionID is the session the reply belongs to. The app only displays
	// replies addressed to its own session.
	SessionID string
	// Timestamp records when the daemon emitted the response.
	Timestamp time.Time
}

// RunQueuedMsg announces a freshly created workflow run.
type RunQueuedMsg struct {
	// RunID is the daemon-assigned run identifier.
	RunID int
	// WorkflowID names the workflow definition being run.
	WorkflowID string
	// Version is the resolved workflow version.
	Version string
	// Timestamp records when the run was queued.
	Timestamp time.Time
}

// RunCompleteMsg announces a run reaching a terminal state.
type RunCompleteMsg struct {
	// RunID is the daemon-assigned run identifier.
	RunID int
	// WorkflowID names the workflow definition that ran.
	WorkflowID string
	// State is the terminal state name: "completed", "failed", "cancelled",
	// or "blocked".
	State string
	// Failure describes why the run failed, empty on success.
	Failure string
	// Timestamp records when the run finished.
	Timestamp time.Time
}

// NeedsInputMsg announces a run parked on a wait-for-input step. The prompt
// is rendered in the transcript; the user's next message answers it.
type NeedsInputMsg struct {
	// RunID is the waiting run.
	RunID int
	// StepID is the step asking the question.
	StepID string
	// Prompt is the question to display.
	Prompt string
	// Timestamp records when the run parked.
	Timestamp time.Time
}

// NeedsApprovalMsg announces a run paused at an approval gate.
// "ferretbot workflow resume <runId>" releases it.
type NeedsApprovalMsg struct {
	// RunID is the paused run.
	RunID int
	// StepID is the gated step.
	StepID string
	// Timestamp records when the run paused.
	Timestamp time.Time
}

// CommandResultMsg carries the parsed reply to a workflow command the TUI
// sent (currently only run list refreshes for the runs panel).
type CommandResultMsg struct {
	// Result is the decoded command reply.
	Result *ipc.CommandResult
	// Timestamp records when the reply arrived.
	Timestamp time.Time
}

// DaemonEventMsg wraps a daemon event the chat screen has no dedicated
// handling for. The app ignores it beyond re-arming the event pump.
type DaemonEventMsg struct {
	// Type is the wire event type.
	Type string
}

// ConnectionLostMsg signals that the daemon connection closed. The app
// switches to offline mode; no further events will arrive.
type ConnectionLostMsg struct{}

// ---------------------------------------------------------------------------
// Internal TUI Messages
// ---------------------------------------------------------------------------

// SendFailedMsg reports that writing a user message to the daemon failed.
type SendFailedMsg struct {
	// Err is the write error.
	Err error
}
