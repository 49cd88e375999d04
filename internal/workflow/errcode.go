package workflow

import "errors"

// Failure codes shared across the runtime. They appear on run failure
// records and in workflow command results, so the strings are wire format.
const (
	// CodeValidation marks malformed definitions or run arguments.
	CodeValidation = "validation_error"

	// CodeNotFound marks lookups of unknown workflows or runs.
	CodeNotFound = "not_found"

	// CodeCheckFailed marks a step that exhausted retries with failing
	// success checks.
	CodeCheckFailed = "check_failed"

	// CodeNoProgress marks a step whose repeated failure produced an
	// identical outcome, blocking the run instead of burning retries.
	CodeNoProgress = "no_progress"

	// CodeToolError marks system step or tool execution failures.
	CodeToolError = "tool_error"

	// CodeInvalidRequest marks malformed IPC commands.
	CodeInvalidRequest = "invalid_request"
)

// Sentinel errors for registry and engine lookups. Callers match them with
// errors.Is after unwrapping.
var (
	// ErrNotFound indicates the requested workflow or run does not exist.
	ErrNotFound = errors.New("workflow: not found")

	// ErrDuplicate indicates an (id, version) pair is already registered.
	ErrDuplicate = errors.New("workflow: duplicate definition")

	// ErrInvalidDefinition indicates a definition failed structural
	// validation.
	ErrInvalidDefinition = errors.New("workflow: invalid definition")
)
