package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferretbot/ferretbot/internal/bus"
	"github.com/ferretbot/ferretbot/internal/ipc"
)

func newTestStatusBar(t *testing.T) StatusBarModel {
	t.Helper()
	sb := NewStatusBarModel(DefaultTheme(), ".ferretbot/daemon.sock", "sess-12345678")
	sb.SetWidth(120)
	return sb
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewStatusBarModel_Defaults(t *testing.T) {
	t.Parallel()
	sb := NewStatusBarModel(DefaultTheme(), "sock", "sess")

	assert.False(t, sb.offline)
	assert.False(t, sb.waiting)
	assert.Empty(t, sb.runs)
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

func TestView_ZeroWidthReturnsEmpty(t *testing.T) {
	t.Parallel()
	sb := NewStatusBarModel(DefaultTheme(), "sock", "sess")
	assert.Empty(t, sb.View())
}

func TestView_WideShowsAllSegments(t *testing.T) {
	t.Parallel()
	sb := newTestStatusBar(t)

	out := sb.View()
	assert.Contains(t, out, "[chat]")
	assert.Contains(t, out, "Daemon")
	assert.Contains(t, out, ".ferretbot/daemon.sock")
	assert.Contains(t, out, "Session")
	assert.Contains(t, out, "sess-123", "session id should be shortened to 8 chars")
	assert.Contains(t, out, "Runs")
	assert.Contains(t, out, "--")
	assert.Contains(t, out, "ctrl+g")
	assert.Contains(t, out, "help")
}

func TestView_NarrowOmitsOptionalSegments(t *testing.T) {
	t.Parallel()
	sb := newTestStatusBar(t)
	sb.SetWidth(40)

	out := sb.View()
	// Mandatory segments and the help hint survive.
	assert.Contains(t, out, "[chat]")
	assert.Contains(t, out, "Runs")
	assert.Contains(t, out, "help")
	// Optional segments are dropped first.
	assert.NotContains(t, out, "Daemon")
	assert.NotContains(t, out, "Session")
}

func TestView_WaitingShowsThinkingMode(t *testing.T) {
	t.Parallel()
	sb := newTestStatusBar(t)
	sb.SetWaiting(true)

	out := sb.View()
	assert.Contains(t, out, "[thinking]")
	assert.NotContains(t, out, "[chat]")
}

func TestView_OfflineShowsIndicator(t *testing.T) {
	t.Parallel()
	sb := newTestStatusBar(t)
	sb = sb.Update(ConnectionLostMsg{})

	out := sb.View()
	assert.Contains(t, out, "OFFLINE")
	assert.NotContains(t, out, "[chat]")
}

// ---------------------------------------------------------------------------
// Run roster
// ---------------------------------------------------------------------------

func TestUpdate_RunLifecycleTally(t *testing.T) {
	t.Parallel()
	sb := newTestStatusBar(t)

	sb = sb.Update(RunQueuedMsg{RunID: 1, WorkflowID: "deploy"})
	assert.Contains(t, sb.View(), "1 active")

	sb = sb.Update(NeedsInputMsg{RunID: 1, Prompt: "env?"})
	assert.Contains(t, sb.View(), "0 active, 1 waiting")

	sb = sb.Update(RunCompleteMsg{RunID: 1, State: "completed"})
	assert.Contains(t, sb.View(), "Runs")
	assert.Contains(t, sb.View(), "--")
}

func TestUpdate_NeedsApprovalCountsAsWaiting(t *testing.T) {
	t.Parallel()
	sb := newTestStatusBar(t)

	sb = sb.Update(RunQueuedMsg{RunID: 1})
	sb = sb.Update(RunQueuedMsg{RunID: 2})
	sb = sb.Update(NeedsApprovalMsg{RunID: 2})

	active, waiting := sb.runTally()
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, waiting)
}

func TestStatusBarUpdate_RunListRebuildsRoster(t *testing.T) {
	t.Parallel()
	sb := newTestStatusBar(t)
	sb = sb.Update(RunQueuedMsg{RunID: 99})

	res := &ipc.CommandResult{
		Command: bus.EventRunList,
		OK:      true,
		Data: map[string]any{
			"runs": []any{
				map[string]any{"runId": float64(1), "workflowId": "deploy", "state": "running"},
				map[string]any{"runId": float64(2), "workflowId": "deploy", "state": "waiting_input"},
				map[string]any{"runId": float64(3), "workflowId": "deploy", "state": "completed"},
				map[string]any{"runId": float64(4), "workflowId": "deploy", "state": "failed"},
			},
		},
	}
	sb = sb.Update(CommandResultMsg{Result: res})

	// Terminal runs are dropped; the stale local entry is replaced.
	require.Len(t, sb.runs, 2)
	active, waiting := sb.runTally()
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, waiting)
}

func TestUpdate_IgnoresUnrelatedCommandResults(t *testing.T) {
	t.Parallel()
	sb := newTestStatusBar(t)
	sb = sb.Update(RunQueuedMsg{RunID: 5})

	res := &ipc.CommandResult{Command: bus.EventRunStart, OK: true, Data: map[string]any{}}
	sb = sb.Update(CommandResultMsg{Result: res})

	assert.Len(t, sb.runs, 1, "non-list replies must not touch the roster")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestShortSession(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "--", shortSession(""))
	assert.Equal(t, "abc", shortSession("abc"))
	assert.Equal(t, "12345678", shortSession("12345678-90ab-cdef"))
}

func TestTerminalRunState(t *testing.T) {
	t.Parallel()
	for _, state := range []string{"completed", "failed", "blocked", "cancelled"} {
		assert.True(t, terminalRunState(state), "%s is terminal", state)
	}
	for _, state := range []string{"queued", "running", "waiting_input", "waiting_approval", ""} {
		assert.False(t, terminalRunState(state), "%s is not terminal", state)
	}
}
