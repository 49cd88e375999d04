// Package workflow holds the declarative side of the runtime: workflow
// definitions and their steps, structural validation, the versioned
// registry, and the YAML loader. Execution lives in internal/engine; this
// package never mutates a definition after registration.
package workflow

// Step type constants. A step with an empty type is an agent step.
const (
	// StepAgent is executed by the agent loop against the configured model.
	StepAgent = "agent"

	// StepWaitForInput pauses the run until matching user input arrives.
	StepWaitForInput = "wait_for_input"

	// StepWriteFile writes rendered content to a workspace path, creating
	// parent directories as needed.
	StepWriteFile = "system_write_file"

	// StepDeleteFile removes a workspace path if it exists.
	StepDeleteFile = "system_delete_file"

	// StepEnsureFile writes content only when the path does not exist yet.
	StepEnsureFile = "system_ensure_file"
)

// OnFail policies select the terminal run state when a step exhausts its
// retries.
const (
	// OnFailFailRun fails the run. This is the default policy.
	OnFailFailRun = "fail_run"

	// OnFailBlocked parks the run as blocked instead of failed, signalling
	// that an operator should look at it.
	OnFailBlocked = "blocked"
)

// Input value types accepted by workflow input declarations.
const (
	InputString  = "string"
	InputNumber  = "number"
	InputBoolean = "boolean"
)

// Definition is an immutable workflow template. The (ID, Version) pair is
// the registry key; Dir records where the definition was loaded from so
// steps can resolve skills relative to it.
type Definition struct {
	ID          string  `yaml:"id" json:"id"`
	Version     string  `yaml:"version" json:"version"`
	Name        string  `yaml:"name,omitempty" json:"name,omitempty"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs      []Input `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Steps       []Step  `yaml:"steps" json:"steps"`

	Dir string `yaml:"-" json:"-"`
}

// Input declares one named workflow argument.
type Input struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
}

// Step is one node of the workflow DAG. DependsOn may only reference steps
// declared earlier in the list, which keeps the graph acyclic by
// construction. Fields beyond the common set apply to specific step types;
// validation enforces which combinations are legal.
type Step struct {
	ID          string   `yaml:"id" json:"id"`
	Type        string   `yaml:"type,omitempty" json:"type,omitempty"`
	Instruction string   `yaml:"instruction,omitempty" json:"instruction,omitempty"`
	Tools       []string `yaml:"tools,omitempty" json:"tools,omitempty"`
	LoadSkills  []string `yaml:"loadSkills,omitempty" json:"loadSkills,omitempty"`
	DependsOn   []string `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	DoneWhen    []Check  `yaml:"doneWhen,omitempty" json:"doneWhen,omitempty"`
	Outputs     []string `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	OnFail      string   `yaml:"onFail,omitempty" json:"onFail,omitempty"`
	Retries     int      `yaml:"retries,omitempty" json:"retries,omitempty"`
	Approval    bool     `yaml:"approval,omitempty" json:"approval,omitempty"`

	// System step fields.
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
	Content string `yaml:"content,omitempty" json:"content,omitempty"`
	Mode    string `yaml:"mode,omitempty" json:"mode,omitempty"`

	// Wait step fields.
	Prompt      string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	ResponseKey string `yaml:"responseKey,omitempty" json:"responseKey,omitempty"`
}

// EffectiveType returns the step type, defaulting to agent when unset.
func (s *Step) EffectiveType() string {
	if s.Type == "" {
		return StepAgent
	}
	return s.Type
}

// IsSystem reports whether the step executes inline in the engine rather
// than through the agent loop.
func (s *Step) IsSystem() bool {
	switch s.EffectiveType() {
	case StepWriteFile, StepDeleteFile, StepEnsureFile:
		return true
	}
	return false
}

// EffectiveOnFail returns the step's failure policy, defaulting to fail_run.
func (s *Step) EffectiveOnFail() string {
	if s.OnFail == "" {
		return OnFailFailRun
	}
	return s.OnFail
}

// Check describes one success-check entry in a step's doneWhen list. Which
// fields are meaningful depends on Type; the evaluator ignores the rest.
type Check struct {
	Type         string `yaml:"type" json:"type"`
	Text         string `yaml:"text,omitempty" json:"text,omitempty"`
	Pattern      string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Path         string `yaml:"path,omitempty" json:"path,omitempty"`
	Expected     *int   `yaml:"expected,omitempty" json:"expected,omitempty"`
	PreviousHash string `yaml:"previousHash,omitempty" json:"previousHash,omitempty"`
}

// Summary is the list/display projection of a registered definition.
type Summary struct {
	ID          string `json:"id"`
	Version     string `json:"version"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Steps       int    `json:"steps"`
}

// StepIndex returns a map from step id to its position in Steps.
func (d *Definition) StepIndex() map[string]int {
	idx := make(map[string]int, len(d.Steps))
	for i, s := range d.Steps {
		idx[s.ID] = i
	}
	return idx
}

// Step returns the step with the given id, or nil when absent.
func (d *Definition) Step(id string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// Summary returns the display projection of the definition.
func (d *Definition) Summary() Summary {
	return Summary{
		ID:          d.ID,
		Version:     d.Version,
		Name:        d.Name,
		Description: d.Description,
		Steps:       len(d.Steps),
	}
}
