package bus

// Wire-visible event types. These names are the IPC protocol: gateway clients
// send and receive them verbatim, so changing one is a breaking change.
const (
	// EventUserInput carries freeform user text. Consumed by a run waiting
	// for input, otherwise handled as conversational chat.
	EventUserInput = "user:input"

	// EventAgentResponse carries displayable agent output.
	EventAgentResponse = "agent:response"

	// EventAgentStatus carries structured status payloads, including
	// workflow command results (Content["kind"] == ContentKindCommandResult).
	EventAgentStatus = "agent:status"

	// EventSystemHello is the per-connection greeting the gateway sends,
	// carrying the assigned client id.
	EventSystemHello = "system:hello"

	// EventRunStart requests a new workflow run:
	// Content{"workflowId", "version", "args", "requestId"}.
	EventRunStart = "workflow:run:start"

	// EventRunCancel requests cancellation: Content{"runId", "requestId"}.
	EventRunCancel = "workflow:run:cancel"

	// EventRunList requests run summaries: Content{"requestId"}.
	EventRunList = "workflow:run:list"

	// EventRunResume approves a run paused at an approval gate:
	// Content{"runId", "requestId"}.
	EventRunResume = "workflow:run:resume"

	// EventRunQueued announces a freshly created run.
	EventRunQueued = "workflow:run:queued"

	// EventRunComplete announces a run reaching a terminal state;
	// Content["state"] holds the terminal state name.
	EventRunComplete = "workflow:run:complete"

	// EventStepStart announces a step activation and carries the full step
	// descriptor plus run context for the agent loop.
	EventStepStart = "workflow:step:start"

	// EventStepComplete reports a finished step attempt:
	// Content{"runId", "stepId", "result", "toolCalls", "toolResults",
	// "artifacts"}.
	EventStepComplete = "workflow:step:complete"

	// EventNeedsApproval announces a run paused at an approval gate.
	EventNeedsApproval = "workflow:needs_approval"

	// EventNeedsInput announces a run waiting for user input and carries the
	// prompt to display.
	EventNeedsInput = "workflow:needs_input"
)

// ContentKindCommandResult marks an agent:status payload as the reply to a
// workflow command. The payload carries command, requestId, ok, message, and
// optional data fields.
const ContentKindCommandResult = "workflow_command_result"
