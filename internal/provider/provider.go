// Package provider sends chat completions to LLM backends. A neutral
// request/response shape is translated to each backend's wire dialect by
// an Adapter; the Client adds retries, response caps, and error
// classification on top.
package provider

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
)

// Message roles. These match the session package's role strings.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Normalized finish reasons. Adapters map their backend's vocabulary to
// these; the agent loop keys continuation handling off FinishLength.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool_calls"
)

// adapterNameRe validates adapter names: lowercase alphanumerics and
// hyphens.
var adapterNameRe = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// ErrNotFound is returned by Registry.Get for an unregistered adapter.
var ErrNotFound = errors.New("provider not found")

// ErrDuplicateName is returned by Registry.Register when the name is
// already taken.
var ErrDuplicateName = errors.New("provider already registered")

// ErrInvalidName is returned by Registry.Register for an empty or
// malformed adapter name.
var ErrInvalidName = errors.New("invalid provider name")

// ErrUnsupported marks an optional capability the adapter does not
// implement.
var ErrUnsupported = errors.New("provider: operation not supported")

// Message is one chat turn on the neutral shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// Name carries the tool name on tool-result messages.
	Name string `json:"name,omitempty"`

	// ToolCallID links a tool-result message to the call it answers.
	ToolCallID string `json:"toolCallId,omitempty"`

	// ToolCalls echoes an assistant turn's tool invocations back to the
	// backend on later rounds of a tool loop.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// ToolCall is a model's request to invoke a tool.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition describes a callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Usage is the token consumption a backend reported.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Request is a chat completion request. Model falls back to the client's
// configured model when empty. Nil Temperature and TopP use the
// backend's defaults.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	Tools       []ToolDefinition
	ToolChoice  string
}

// Response is the completion result.
type Response struct {
	Text         string
	FinishReason string
	ToolCalls    []ToolCall
	Model        string
	Usage        Usage
}

// Adapter translates the neutral shapes to one backend's wire dialect.
type Adapter interface {
	// Name returns the adapter identifier (e.g. "openai", "anthropic").
	Name() string

	// BuildURL constructs the completion endpoint from a base URL. An
	// empty base selects the backend's well-known default.
	BuildURL(baseURL string) string

	// SetHeaders adds backend-specific headers. apiKey may be empty, in
	// which case the adapter falls back to its environment variable.
	SetHeaders(req *http.Request, apiKey string)

	// BuildRequestBody encodes the request in the backend's format.
	BuildRequestBody(req *Request) ([]byte, error)

	// ParseResponse decodes the backend's response into the neutral
	// shape, normalizing the finish reason.
	ParseResponse(body []byte) (*Response, error)
}

// TokenCounter is implemented by adapters whose backend can count request
// tokens without generating.
type TokenCounter interface {
	BuildCountTokensURL(baseURL string) string
	BuildCountTokensBody(req *Request) ([]byte, error)
	ParseCountTokensResponse(body []byte) (int, error)
}

// ModelLister is implemented by adapters whose backend exposes a model
// listing endpoint.
type ModelLister interface {
	BuildModelsURL(baseURL string) string
	ParseModelsResponse(body []byte) ([]string, error)
}

// Registry stores named adapters. Adapters are registered at startup and
// looked up by name when clients are built.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its Name. Returns ErrInvalidName for a
// bad name and ErrDuplicateName when the name is taken.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("register provider: %w", ErrInvalidName)
	}
	name := a.Name()
	if name == "" || !adapterNameRe.MatchString(name) {
		return fmt.Errorf("register provider %q: %w", name, ErrInvalidName)
	}
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("register provider %q: %w", name, ErrDuplicateName)
	}
	r.adapters[name] = a
	return nil
}

// Get returns the adapter registered under name, or ErrNotFound.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("get provider %q: %w", name, ErrNotFound)
	}
	return a, nil
}

// List returns the registered adapter names, sorted alphabetically.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a registry with the standard adapters: openai, ollama,
// and anthropic.
func Builtin() *Registry {
	r := NewRegistry()
	for _, a := range []Adapter{
		&OpenAI{},
		&Ollama{},
		&Anthropic{},
	} {
		if err := r.Register(a); err != nil {
			panic(fmt.Sprintf("provider.Builtin: %v", err))
		}
	}
	return r
}
