package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

// Issue code constants classify each ValidationIssue by its structural
// category. Codes are stable strings so callers can switch on them without
// importing numeric iota values.
const (
	// IssueBadID is reported when the workflow id is empty or does not match
	// the permitted ^[a-z0-9-]+$ shape.
	IssueBadID = "BAD_WORKFLOW_ID"

	// IssueMissingVersion is reported when the version string is empty.
	IssueMissingVersion = "MISSING_VERSION"

	// IssueNoSteps is reported when a Definition has an empty Steps slice.
	IssueNoSteps = "NO_STEPS"

	// IssueEmptyStepID is reported when a step has an empty ID field.
	IssueEmptyStepID = "EMPTY_STEP_ID"

	// IssueDuplicateStep is reported when two steps share an ID.
	IssueDuplicateStep = "DUPLICATE_STEP_ID"

	// IssueUnknownStepType is reported for a step type outside the known set.
	IssueUnknownStepType = "UNKNOWN_STEP_TYPE"

	// IssueBadDependency is reported when dependsOn names an unknown step, a
	// later step, or the step itself. Restricting dependencies to earlier
	// steps keeps the graph acyclic without a separate cycle pass.
	IssueBadDependency = "BAD_DEPENDENCY"

	// IssueMissingField is reported when a step type requires a field that
	// is empty (agent instruction/tools, system path/content, wait
	// prompt/responseKey).
	IssueMissingField = "MISSING_FIELD"

	// IssueForbiddenField is reported when a step carries a field its type
	// rejects (outputs on system_delete_file).
	IssueForbiddenField = "FORBIDDEN_FIELD"

	// IssueEmptyDoneWhen is reported when doneWhen is declared but empty. An
	// absent doneWhen is legal and evaluates vacuously true; declaring an
	// empty list is treated as an authoring mistake.
	IssueEmptyDoneWhen = "EMPTY_DONE_WHEN"

	// IssueUnknownCheckType is reported (only when a CheckTypeIndex is
	// provided) when a doneWhen entry names an unregistered check type.
	IssueUnknownCheckType = "UNKNOWN_CHECK_TYPE"

	// IssueBadOnFail is reported for onFail values outside
	// {fail_run, blocked}.
	IssueBadOnFail = "BAD_ON_FAIL"

	// IssueBadRetries is reported for negative retry counts.
	IssueBadRetries = "BAD_RETRIES"

	// IssueBadInput is reported for input declarations with empty names,
	// duplicate names, or types outside {string, number, boolean}.
	IssueBadInput = "BAD_INPUT"

	// IssueIgnoredField is a warning reported when a step carries a field
	// its type never reads (for example tools on a wait_for_input step).
	IssueIgnoredField = "IGNORED_FIELD"
)

// reWorkflowID constrains workflow ids to lowercase alphanumerics and
// hyphens.
var reWorkflowID = regexp.MustCompile(`^[a-z0-9-]+$`)

// CheckTypeIndex reports whether a success-check type is registered. The
// checks registry implements it; passing nil skips check-type validation.
type CheckTypeIndex interface {
	HasType(name string) bool
}

// ValidationIssue describes a single structural problem found in a
// Definition. Issues with a non-empty Step field are associated with a
// specific step; others are definition-level concerns.
type ValidationIssue struct {
	// Code is one of the Issue* constants identifying the problem category.
	Code string

	// Step is the id of the step involved, or empty for definition-level
	// issues.
	Step string

	// Message is a human-readable description of the problem.
	Message string
}

// ValidationResult holds the outcome of validating a single Definition.
// Errors are fatal: the definition cannot register. Warnings are advisory.
type ValidationResult struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

// IsValid reports whether the definition has no errors. Warnings alone do
// not make a definition invalid.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// String returns a multi-line human-readable summary of all validation
// issues.
func (r *ValidationResult) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Errors (%d):\n", len(r.Errors))
	for _, issue := range r.Errors {
		writeIssue(&b, issue)
	}

	fmt.Fprintf(&b, "Warnings (%d):\n", len(r.Warnings))
	for _, issue := range r.Warnings {
		writeIssue(&b, issue)
	}

	return b.String()
}

func writeIssue(b *strings.Builder, issue ValidationIssue) {
	if issue.Step != "" {
		fmt.Fprintf(b, "  [%s] step %q: %s\n", issue.Code, issue.Step, issue.Message)
	} else {
		fmt.Fprintf(b, "  [%s] %s\n", issue.Code, issue.Message)
	}
}

func (r *ValidationResult) addError(code, step, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationIssue{Code: code, Step: step, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) addWarning(code, step, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationIssue{Code: code, Step: step, Message: fmt.Sprintf(format, args...)})
}

// ValidateDefinition checks a workflow definition for structural errors and
// design warnings. If checkTypes is non-nil, doneWhen entries are also
// verified against the registered check types. The function always returns a
// non-nil ValidationResult.
//
// Validation sequence:
//  1. Definition-level checks: id shape, version presence, non-empty steps.
//  2. Input declarations: names, duplicates, value types.
//  3. Per-step checks: ids, duplicates, known types, earlier-only
//     dependencies, type-specific required and forbidden fields, doneWhen
//     shape, onFail and retries values.
func ValidateDefinition(def *Definition, checkTypes CheckTypeIndex) *ValidationResult {
	result := &ValidationResult{}

	if def == nil {
		result.addError(IssueNoSteps, "", "workflow definition is nil")
		return result
	}

	// -----------------------------------------------------------------------
	// Phase 1: Definition-level checks
	// -----------------------------------------------------------------------

	if def.ID == "" || !reWorkflowID.MatchString(def.ID) {
		result.addError(IssueBadID, "", "workflow id %q must match ^[a-z0-9-]+$", def.ID)
	}
	if def.Version == "" {
		result.addError(IssueMissingVersion, "", "workflow version must be non-empty")
	}
	if len(def.Steps) == 0 {
		result.addError(IssueNoSteps, "", "workflow definition has no steps")
		return result
	}

	// -----------------------------------------------------------------------
	// Phase 2: Input declarations
	// -----------------------------------------------------------------------

	inputNames := make(map[string]struct{}, len(def.Inputs))
	for i, in := range def.Inputs {
		if in.Name == "" {
			result.addError(IssueBadInput, "", "input at index %d has an empty name", i)
			continue
		}
		if _, exists := inputNames[in.Name]; exists {
			result.addError(IssueBadInput, "", "input name %q appears more than once", in.Name)
			continue
		}
		inputNames[in.Name] = struct{}{}

		switch in.Type {
		case "", InputString, InputNumber, InputBoolean:
		default:
			result.addError(IssueBadInput, "", "input %q has unknown type %q", in.Name, in.Type)
		}
	}

	// -----------------------------------------------------------------------
	// Phase 3: Per-step checks
	// -----------------------------------------------------------------------

	// earlier holds the ids of steps declared before the one being checked,
	// so dependencies can be verified as backward references in one pass.
	earlier := make(map[string]struct{}, len(def.Steps))
	seen := make(map[string]struct{}, len(def.Steps))

	for i := range def.Steps {
		step := &def.Steps[i]

		if step.ID == "" {
			result.addError(IssueEmptyStepID, "", "step at index %d has an empty id", i)
			continue
		}
		if _, dup := seen[step.ID]; dup {
			result.addError(IssueDuplicateStep, step.ID, "step id %q appears more than once", step.ID)
			continue
		}
		seen[step.ID] = struct{}{}

		validateStep(result, step, earlier, checkTypes)

		earlier[step.ID] = struct{}{}
	}

	return result
}

// validateStep applies the per-step rules. earlier contains the ids of all
// steps declared before this one.
func validateStep(result *ValidationResult, step *Step, earlier map[string]struct{}, checkTypes CheckTypeIndex) {
	stepType := step.EffectiveType()

	switch stepType {
	case StepAgent, StepWaitForInput, StepWriteFile, StepDeleteFile, StepEnsureFile:
	default:
		result.addError(IssueUnknownStepType, step.ID, "unknown step type %q", step.Type)
		return
	}

	for _, dep := range step.DependsOn {
		if dep == step.ID {
			result.addError(IssueBadDependency, step.ID, "step depends on itself")
			continue
		}
		if _, ok := earlier[dep]; !ok {
			result.addError(IssueBadDependency, step.ID,
				"dependsOn references %q, which is not declared earlier in the workflow", dep)
		}
	}

	switch stepType {
	case StepAgent:
		if strings.TrimSpace(step.Instruction) == "" {
			result.addError(IssueMissingField, step.ID, "agent steps require a non-empty instruction")
		}
		if len(step.Tools) == 0 {
			result.addError(IssueMissingField, step.ID, "agent steps require at least one tool")
		}

	case StepWriteFile, StepEnsureFile:
		if step.Path == "" {
			result.addError(IssueMissingField, step.ID, "%s requires a path", stepType)
		}
		if step.Content == "" {
			result.addError(IssueMissingField, step.ID, "%s requires content", stepType)
		}

	case StepDeleteFile:
		if step.Path == "" {
			result.addError(IssueMissingField, step.ID, "%s requires a path", stepType)
		}
		if len(step.Outputs) > 0 {
			result.addError(IssueForbiddenField, step.ID, "%s must not declare outputs", stepType)
		}

	case StepWaitForInput:
		if step.Prompt == "" {
			result.addError(IssueMissingField, step.ID, "wait_for_input requires a prompt")
		}
		if step.ResponseKey == "" {
			result.addError(IssueMissingField, step.ID, "wait_for_input requires a responseKey")
		}
	}

	// Fields no step type other than agent reads.
	if stepType != StepAgent {
		if len(step.Tools) > 0 {
			result.addWarning(IssueIgnoredField, step.ID, "%s steps never use tools", stepType)
		}
		if len(step.LoadSkills) > 0 {
			result.addWarning(IssueIgnoredField, step.ID, "%s steps never load skills", stepType)
		}
	}

	if step.DoneWhen != nil && len(step.DoneWhen) == 0 {
		result.addError(IssueEmptyDoneWhen, step.ID, "doneWhen is declared but empty; omit it instead")
	}
	for _, check := range step.DoneWhen {
		if check.Type == "" {
			result.addError(IssueUnknownCheckType, step.ID, "doneWhen entry has no type")
			continue
		}
		if checkTypes != nil && !checkTypes.HasType(check.Type) {
			result.addError(IssueUnknownCheckType, step.ID, "unknown check type %q", check.Type)
		}
	}

	switch step.OnFail {
	case "", OnFailFailRun, OnFailBlocked:
	default:
		result.addError(IssueBadOnFail, step.ID, "onFail must be %q or %q, got %q", OnFailFailRun, OnFailBlocked, step.OnFail)
	}

	if step.Retries < 0 {
		result.addError(IssueBadRetries, step.ID, "retries must be >= 0, got %d", step.Retries)
	}
}
