package workflow

import "errors"

// Builtin workflow ID constants identify the workflow definitions shipped
// with FerretBot. Use these constants instead of raw string literals
// wherever a workflow ID is required to avoid typos and enable grep-ability.
const (
	// WorkflowOnboarding asks the user for a name and writes a profile note
	// the agent reads back on later runs.
	WorkflowOnboarding = "onboarding"

	// WorkflowWorkspaceInit seeds the .ferretbot workspace directory with
	// the files later workflows expect to find.
	WorkflowWorkspaceInit = "workspace-init"
)

// builtinDefs holds the built-in workflow definitions, initialized once at
// package startup by buildBuiltinDefs.
var builtinDefs map[string]*Definition

func init() {
	builtinDefs = buildBuiltinDefs()
}

// buildBuiltinDefs constructs the canonical built-in definitions and returns
// them as an ID-keyed map. It is called exactly once from init().
func buildBuiltinDefs() map[string]*Definition {
	defs := make(map[string]*Definition, 2)

	// ------------------------------------------------------------------
	// onboarding: collect the user's name, then persist a profile note.
	// ------------------------------------------------------------------
	defs[WorkflowOnboarding] = &Definition{
		ID:          WorkflowOnboarding,
		Version:     "1.0.0",
		Name:        "Onboarding",
		Description: "Ask the user for a name and write a profile note for later sessions.",
		Steps: []Step{
			{
				ID:          "ask-name",
				Type:        StepWaitForInput,
				Prompt:      "Hi! I'm FerretBot. What should I call you?",
				ResponseKey: "userName",
			},
			{
				ID:        "write-profile",
				Type:      StepWriteFile,
				DependsOn: []string{"ask-name"},
				Path:      ".ferretbot/profile.md",
				Content:   "# Profile\n\nName: {{ args.userName }}\n",
				DoneWhen: []Check{
					{Type: "file_exists", Path: ".ferretbot/profile.md"},
				},
			},
		},
	}

	// ------------------------------------------------------------------
	// workspace-init: seed the .ferretbot directory.
	// ------------------------------------------------------------------
	defs[WorkflowWorkspaceInit] = &Definition{
		ID:          WorkflowWorkspaceInit,
		Version:     "1.0.0",
		Name:        "Workspace Init",
		Description: "Seed the .ferretbot workspace directory with notes and scratch files.",
		Steps: []Step{
			{
				ID:      "ensure-notes",
				Type:    StepEnsureFile,
				Path:    ".ferretbot/notes.md",
				Content: "# Notes\n",
			},
			{
				ID:        "ensure-scratch",
				Type:      StepEnsureFile,
				DependsOn: []string{"ensure-notes"},
				Path:      ".ferretbot/scratch.md",
				Content:   "# Scratch\n",
				DoneWhen: []Check{
					{Type: "file_exists", Path: ".ferretbot/scratch.md"},
				},
			},
		},
	}

	return defs
}

// BuiltinDefinitions returns the built-in workflow definitions as an
// ID-keyed map. The returned map is a shallow copy; callers must not modify
// the Definition values it contains.
func BuiltinDefinitions() map[string]*Definition {
	out := make(map[string]*Definition, len(builtinDefs))
	for k, v := range builtinDefs {
		out[k] = v
	}
	return out
}

// BuiltinDefinition returns the built-in Definition for the given ID, or
// nil if id does not correspond to a known built-in workflow.
func BuiltinDefinition(id string) *Definition {
	return builtinDefs[id]
}

// RegisterBuiltins registers every built-in definition into r. It is called
// before loading user-defined workflows so user files can never shadow a
// shipped (id, version) pair.
func RegisterBuiltins(r *Registry) error {
	var errs []error
	for _, def := range builtinDefs {
		if err := r.Register(def); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
