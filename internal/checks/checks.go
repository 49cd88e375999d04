// Package checks evaluates step success conditions. A workflow step may
// declare a doneWhen list; after the step executes, every entry is evaluated
// against the observable outcome (result text, tool executions, workspace
// files) and the step only counts as done when all of them pass.
//
// Check evaluation never returns an error: a check that cannot be evaluated
// (unknown type, invalid pattern, unreadable file) produces a failing Result
// whose Detail says why. An empty or absent doneWhen list passes vacuously.
package checks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ferretbot/ferretbot/internal/workflow"
)

// ToolResult is the slice of a tool execution a check can observe.
type ToolResult struct {
	// Name is the tool that ran.
	Name string

	// ExitCode is the tool's exit status. Tools without a process exit
	// carry 0 on success and nonzero on failure.
	ExitCode int

	// Output is the tool's captured output.
	Output string
}

// Input carries everything a check may inspect about a finished step.
type Input struct {
	// Text is the step's final result text.
	Text string

	// ToolResults lists the step's tool executions in order.
	ToolResults []ToolResult

	// Dir is the workspace root that file checks resolve paths against.
	Dir string
}

// LastExitCode returns the exit code of the most recent tool execution.
// The boolean is false when no tools ran.
func (in *Input) LastExitCode() (int, bool) {
	if len(in.ToolResults) == 0 {
		return 0, false
	}
	return in.ToolResults[len(in.ToolResults)-1].ExitCode, true
}

// Result is the outcome of evaluating a single check.
type Result struct {
	// Type is the check type that produced this result.
	Type string `json:"type"`

	// Passed reports whether the check held.
	Passed bool `json:"passed"`

	// Detail explains the outcome in one line. Failing results always
	// carry a detail; passing results may leave it empty.
	Detail string `json:"detail,omitempty"`
}

// Evaluation aggregates the results of one doneWhen list.
type Evaluation struct {
	// Passed is true when every check passed (vacuously true for an
	// empty list).
	Passed bool `json:"passed"`

	// Results holds one entry per check, in declaration order.
	Results []Result `json:"results,omitempty"`
}

// Summary returns a one-line description of the evaluation suitable for
// failure records and logs.
func (e *Evaluation) Summary() string {
	if e.Passed {
		return "all checks passed"
	}
	var details []string
	for _, r := range e.Results {
		if !r.Passed {
			details = append(details, fmt.Sprintf("%s: %s", r.Type, r.Detail))
		}
	}
	return strings.Join(details, "; ")
}

// Func evaluates a single check descriptor against an input.
type Func func(check *workflow.Check, in *Input) Result

// Registry maps check type names to their evaluation functions. The engine
// resolves each doneWhen entry through a Registry, and the workflow
// validator consults it (via workflow.CheckTypeIndex) to reject definitions
// naming unregistered types. Registration is expected to occur at program
// initialization time (single-threaded), so no mutex is needed.
type Registry struct {
	funcs map[string]Func
}

// Compile-time check: the registry serves as the validator's type index.
var _ workflow.CheckTypeIndex = (*Registry)(nil)

// NewRegistry creates a new, empty Registry ready for check registration.
// Most callers want Builtin instead.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]Func),
	}
}

// Builtin returns a fresh Registry with every built-in check type
// registered.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(TypeContains, checkContains)
	r.Register(TypeNotContains, checkNotContains)
	r.Register(TypeRegex, checkRegex)
	r.Register(TypeExitCode, checkExitCode)
	r.Register(TypeCommandExitCode, checkExitCode)
	r.Register(TypeFileExists, checkFileExists)
	r.Register(TypeFileNotExists, checkFileNotExists)
	r.Register(TypeFileContains, checkFileContains)
	r.Register(TypeFileRegex, checkFileRegex)
	r.Register(TypeFileHashChanged, checkFileHashChanged)
	r.Register(TypeNonEmpty, checkNonEmpty)
	return r
}

// Register adds fn to the registry under name. It panics if name is empty,
// fn is nil, or name is already registered. These are all programming
// errors that should be caught at startup.
func (r *Registry) Register(name string, fn Func) {
	if name == "" {
		panic("checks: Register called with empty name")
	}
	if fn == nil {
		panic("checks: Register called with nil func")
	}
	if _, exists := r.funcs[name]; exists {
		panic(fmt.Sprintf("checks: type %q is already registered", name))
	}
	r.funcs[name] = fn
}

// HasType reports whether a check type is registered. It implements
// workflow.CheckTypeIndex.
func (r *Registry) HasType(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

// Types returns all registered check type names in alphabetical order.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate runs every check in list against in and aggregates the results.
// Checks run in declaration order and all of them run even after a failure,
// so the summary names every unmet condition rather than just the first.
func (r *Registry) Evaluate(list []workflow.Check, in *Input) *Evaluation {
	eval := &Evaluation{Passed: true}
	for i := range list {
		check := &list[i]

		fn, ok := r.funcs[check.Type]
		if !ok {
			eval.Results = append(eval.Results, Result{
				Type:   check.Type,
				Passed: false,
				Detail: fmt.Sprintf("unknown check type %q", check.Type),
			})
			eval.Passed = false
			continue
		}

		res := fn(check, in)
		res.Type = check.Type
		eval.Results = append(eval.Results, res)
		if !res.Passed {
			eval.Passed = false
		}
	}
	return eval
}
