// Package tools exposes the capabilities an agent step may invoke. Each
// tool declares a JSON schema for its arguments; the registry validates
// calls against it before execution so a malformed model response becomes
// an error result the model can read, never a crash.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ferretbot/ferretbot/internal/logging"
)

// toolNameRe validates tool names: lowercase alphanumerics and underscores.
var toolNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ErrNotFound is returned by Registry.Get when no tool with the requested
// name has been registered.
var ErrNotFound = errors.New("tool not found")

// ErrDuplicateName is returned by Registry.Register when a tool with the
// same name is already present.
var ErrDuplicateName = errors.New("tool already registered")

// ErrInvalidName is returned by Registry.Register when the tool name is
// empty or contains invalid characters.
var ErrInvalidName = errors.New("invalid tool name")

// Definition describes a tool to the model.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

// Execution is the observable outcome of one tool call. A nonzero
// ExitCode marks failure; Output then carries the error text the model
// sees.
type Execution struct {
	Output    string
	ExitCode  int
	Artifacts []string
}

// failure builds a failed Execution with a formatted message.
func failure(format string, args ...any) *Execution {
	return &Execution{Output: fmt.Sprintf(format, args...), ExitCode: 1}
}

// Tool is one callable capability.
type Tool interface {
	// Definition returns the tool's name, description, and argument
	// schema. The schema must be a valid JSON Schema document.
	Definition() Definition

	// Execute runs the tool. Arguments have already been validated
	// against the schema. Failures are reported through the Execution's
	// ExitCode and Output; the error return is reserved for faults the
	// model cannot act on.
	Execute(ctx context.Context, args map[string]any) (*Execution, error)
}

// Registry stores named tools and their compiled argument schemas.
// Tools are registered at startup; lookups and execution are read-only
// afterwards.
type Registry struct {
	log     *log.Logger
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		log:     logging.New("tools"),
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool under its declared name and compiles its argument
// schema. Returns ErrInvalidName for a bad name, ErrDuplicateName when
// the name is taken, or a compile error for a schema the library rejects.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("register tool: %w", ErrInvalidName)
	}
	def := t.Definition()
	if def.Name == "" || !toolNameRe.MatchString(def.Name) {
		return fmt.Errorf("register tool %q: %w", def.Name, ErrInvalidName)
	}
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("register tool %q: %w", def.Name, ErrDuplicateName)
	}
	schema, err := compileSchema(def.Name, def.Schema)
	if err != nil {
		return fmt.Errorf("register tool %q: %w", def.Name, err)
	}
	r.tools[def.Name] = t
	r.schemas[def.Name] = schema
	return nil
}

// Get returns the tool registered under name, or ErrNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("get tool %q: %w", name, ErrNotFound)
	}
	return t, nil
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// List returns the definitions of all registered tools, sorted by name.
func (r *Registry) List() []Definition {
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Definitions returns the definitions for the named subset, skipping
// names that are not registered. Order follows the input.
func (r *Registry) Definitions(names []string) []Definition {
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			defs = append(defs, t.Definition())
		}
	}
	return defs
}

// Execute validates args against the tool's schema and runs it. Every
// failure mode comes back as an Execution the model can read: unknown
// tool, schema violation, and execution faults all produce an ExitCode
// of 1 and an explanatory Output.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) *Execution {
	t, ok := r.tools[name]
	if !ok {
		return failure("unknown tool %q", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := r.schemas[name].Validate(normalizeArgs(args)); err != nil {
		r.log.Warn("tool arguments rejected", "tool", name, "error", err)
		return failure("invalid arguments for %s: %v", name, err)
	}

	exec, err := t.Execute(ctx, args)
	if err != nil {
		r.log.Warn("tool execution failed", "tool", name, "error", err)
		return failure("%s failed: %v", name, err)
	}
	return exec
}

// compileSchema round-trips the schema document through JSON so the
// compiler sees canonical types regardless of how the map was built.
func compileSchema(name string, doc map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := c.AddResource(resource, parsed); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return schema, nil
}

// normalizeArgs round-trips arguments through JSON for the validator.
// Arguments usually arrive freshly decoded from a provider response, but
// in-process callers may hand in maps with Go-native number types the
// validator does not recognize.
func normalizeArgs(args map[string]any) any {
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return args
	}
	return v
}
