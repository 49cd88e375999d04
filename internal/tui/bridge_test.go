package tui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferretbot/ferretbot/internal/bus"
)

// ---------------------------------------------------------------------------
// convertEvent
// ---------------------------------------------------------------------------

func TestConvertEvent_AgentResponse(t *testing.T) {
	t.Parallel()
	now := time.Now().UnixMilli()
	ev := bus.Event{
		Type:      bus.EventAgentResponse,
		Content:   map[string]any{"text": "hello there"},
		SessionID: "sess-1",
		Timestamp: now,
	}

	msg := convertEvent(ev)
	resp, ok := msg.(AgentResponseMsg)
	require.True(t, ok, "expected AgentResponseMsg, got %T", msg)
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, now, resp.Timestamp.UnixMilli())
}

func TestConvertEvent_RunQueued_Float64RunID(t *testing.T) {
	t.Parallel()
	// JSON decoding over the wire hands the bridge float64 numbers.
	ev := bus.Event{
		Type: bus.EventRunQueued,
		Content: map[string]any{
			"runId":      float64(7),
			"workflowId": "deploy",
			"version":    "1.2.0",
		},
	}

	msg := convertEvent(ev)
	queued, ok := msg.(RunQueuedMsg)
	require.True(t, ok, "expected RunQueuedMsg, got %T", msg)
	assert.Equal(t, 7, queued.RunID)
	assert.Equal(t, "deploy", queued.WorkflowID)
	assert.Equal(t, "1.2.0", queued.Version)
}

func TestConvertEvent_RunComplete(t *testing.T) {
	t.Parallel()
	ev := bus.Event{
		Type: bus.EventRunComplete,
		Content: map[string]any{
			"runId":      float64(3),
			"workflowId": "deploy",
			"state":      "completed",
		},
	}

	msg := convertEvent(ev)
	complete, ok := msg.(RunCompleteMsg)
	require.True(t, ok, "expected RunCompleteMsg, got %T", msg)
	assert.Equal(t, 3, complete.RunID)
	assert.Equal(t, "completed", complete.State)
	assert.Empty(t, complete.Failure)
}

func TestConvertEvent_RunComplete_WithFailure(t *testing.T) {
	t.Parallel()
	ev := bus.Event{
		Type: bus.EventRunComplete,
		Content: map[string]any{
			"runId": float64(4),
			"state": "failed",
			"failure": map[string]any{
				"code":    "step_failed",
				"message": "exit status 2",
			},
		},
	}

	msg := convertEvent(ev)
	complete, ok := msg.(RunCompleteMsg)
	require.True(t, ok, "expected RunCompleteMsg, got %T", msg)
	assert.Equal(t, "failed", complete.State)
	assert.Equal(t, "step_failed: exit status 2", complete.Failure)
}

func TestConvertEvent_NeedsInput(t *testing.T) {
	t.Parallel()
	ev := bus.Event{
		Type: bus.EventNeedsInput,
		Content: map[string]any{
			"runId":  float64(5),
			"stepId": "ask-name",
			"prompt": "What should we call the release?",
		},
	}

	msg := convertEvent(ev)
	needs, ok := msg.(NeedsInputMsg)
	require.True(t, ok, "expected NeedsInputMsg, got %T", msg)
	assert.Equal(t, 5, needs.RunID)
	assert.Equal(t, "ask-name", needs.StepID)
	assert.Equal(t, "What should we call the release?", needs.Prompt)
}

func TestConvertEvent_NeedsApproval(t *testing.T) {
	t.Parallel()
	ev := bus.Event{
		Type: bus.EventNeedsApproval,
		Content: map[string]any{
			"runId":  float64(6),
			"stepId": "gate",
		},
	}

	msg := convertEvent(ev)
	needs, ok := msg.(NeedsApprovalMsg)
	require.True(t, ok, "expected NeedsApprovalMsg, got %T", msg)
	assert.Equal(t, 6, needs.RunID)
	assert.Equal(t, "gate", needs.StepID)
}

func TestConvertEvent_AgentStatus_CommandResult(t *testing.T) {
	t.Parallel()
	ev := bus.Event{
		Type: bus.EventAgentStatus,
		Content: map[string]any{
			"kind":      bus.ContentKindCommandResult,
			"command":   bus.EventRunList,
			"requestId": "req-1",
			"ok":        true,
			"message":   "2 runs",
			"data":      map[string]any{"runs": []any{}},
		},
	}

	msg := convertEvent(ev)
	result, ok := msg.(CommandResultMsg)
	require.True(t, ok, "expected CommandResultMsg, got %T", msg)
	require.NotNil(t, result.Result)
	assert.Equal(t, bus.EventRunList, result.Result.Command)
	assert.Equal(t, "req-1", result.Result.RequestID)
	assert.True(t, result.Result.OK)
	assert.Contains(t, result.Result.Data, "runs")
}

func TestConvertEvent_AgentStatus_PlainStatus(t *testing.T) {
	t.Parallel()
	// Status events without the command result kind are not replies the
	// chat screen renders.
	ev := bus.Event{
		Type:    bus.EventAgentStatus,
		Content: map[string]any{"state": "thinking"},
	}

	msg := convertEvent(ev)
	passthrough, ok := msg.(DaemonEventMsg)
	require.True(t, ok, "expected DaemonEventMsg, got %T", msg)
	assert.Equal(t, bus.EventAgentStatus, passthrough.Type)
}

func TestConvertEvent_OwnInputEcho(t *testing.T) {
	t.Parallel()
	// The gateway broadcasts every event, including the client's own input
	// stamped with its client id. The bridge must not turn it into a
	// transcript entry.
	ev := bus.Event{
		Type:     bus.EventUserInput,
		Content:  map[string]any{"text": "hi"},
		ClientID: "client-1",
	}

	msg := convertEvent(ev)
	passthrough, ok := msg.(DaemonEventMsg)
	require.True(t, ok, "expected DaemonEventMsg, got %T", msg)
	assert.Equal(t, bus.EventUserInput, passthrough.Type)
}

func TestConvertEvent_StepEvents_PassThrough(t *testing.T) {
	t.Parallel()
	for _, typ := range []string{bus.EventStepStart, bus.EventStepComplete, bus.EventSystemHello} {
		msg := convertEvent(bus.Event{Type: typ})
		passthrough, ok := msg.(DaemonEventMsg)
		require.True(t, ok, "expected DaemonEventMsg for %s, got %T", typ, msg)
		assert.Equal(t, typ, passthrough.Type)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestEventTime_ZeroFallsBackToNow(t *testing.T) {
	t.Parallel()
	before := time.Now()
	got := eventTime(bus.Event{})
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestEventTime_UsesEnvelopeMillis(t *testing.T) {
	t.Parallel()
	ms := int64(1_700_000_000_000)
	got := eventTime(bus.Event{Timestamp: ms})
	assert.Equal(t, ms, got.UnixMilli())
}

func TestFailureText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content map[string]any
		want    string
	}{
		{
			name:    "no failure",
			content: map[string]any{"state": "completed"},
			want:    "",
		},
		{
			name:    "code and message",
			content: map[string]any{"failure": map[string]any{"code": "timeout", "message": "step took too long"}},
			want:    "timeout: step took too long",
		},
		{
			name:    "code only",
			content: map[string]any{"failure": map[string]any{"code": "timeout"}},
			want:    "timeout",
		},
		{
			name:    "message only",
			content: map[string]any{"failure": map[string]any{"message": "boom"}},
			want:    "boom",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, failureText(tc.content))
		})
	}
}

func TestContentInt(t *testing.T) {
	t.Parallel()

	content := map[string]any{
		"asInt":     42,
		"asInt64":   int64(43),
		"asFloat64": float64(44),
		"asString":  "45",
	}

	got, ok := contentInt(content, "asInt")
	assert.True(t, ok)
	assert.Equal(t, 42, got)

	got, ok = contentInt(content, "asInt64")
	assert.True(t, ok)
	assert.Equal(t, 43, got)

	got, ok = contentInt(content, "asFloat64")
	assert.True(t, ok)
	assert.Equal(t, 44, got)

	_, ok = contentInt(content, "asString")
	assert.False(t, ok)

	_, ok = contentInt(content, "missing")
	assert.False(t, ok)
}
