package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// anthropicVersion is the API version header value.
const anthropicVersion = "2023-06-01"

// Anthropic speaks the Anthropic messages dialect, including its block
// structured tool protocol and the token counting endpoint.
type Anthropic struct{}

func (a *Anthropic) Name() string {
	return "anthropic"
}

// BuildURL constructs the messages endpoint.
func (a *Anthropic) BuildURL(baseURL string) string {
	return anthropicBase(baseURL) + "/v1/messages"
}

// SetHeaders adds key and version headers. An empty apiKey falls back to
// ANTHROPIC_API_KEY.
func (a *Anthropic) SetHeaders(req *http.Request, apiKey string) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	req.Header.Set("anthropic-version", anthropicVersion)
}

func anthropicBase(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return strings.TrimSuffix(baseURL, "/")
}

// anthropicRequest is the wire request format. MaxTokens is mandatory
// there, so BuildRequestBody substitutes a default when unset.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	ToolChoice  *anthropicChoice   `json:"tool_choice,omitempty"`
}

// anthropicMessage holds either a plain string or a block list in
// Content.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// Request-side content blocks. Narrow types keep required fields (a
// tool_use block's input must be present even when empty) out of
// omitempty's reach.
type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicToolUseBlock struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

type anthropicToolResultBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

// anthropicBlock is the tolerant response-side decode target for any
// block type.
type anthropicBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// defaultAnthropicMaxTokens is used when the request does not set a
// limit; the messages API rejects requests without one.
const defaultAnthropicMaxTokens = 4096

// BuildRequestBody encodes req in the Anthropic format. System messages
// are folded into the system parameter in order; tool-result messages
// become user-role tool_result blocks.
func (a *Anthropic) BuildRequestBody(req *Request) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	system, messages := a.convertMessages(req.Messages)
	body := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Messages:    messages,
		System:      system,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		ToolChoice:  anthropicToolChoice(req.ToolChoice),
	}
	for _, t := range req.Tools {
		schema := t.Schema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		body.Tools = append(body.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return json.Marshal(body)
}

func (a *Anthropic) convertMessages(messages []Message) (string, []anthropicMessage) {
	var system []string
	out := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleTool:
			out = append(out, anthropicMessage{
				Role: RoleUser,
				Content: []any{anthropicToolResultBlock{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, anthropicMessage{Role: RoleAssistant, Content: m.Content})
				continue
			}
			blocks := make([]any, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, anthropicTextBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropicToolUseBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: input,
				})
			}
			out = append(out, anthropicMessage{Role: RoleAssistant, Content: blocks})
		default:
			out = append(out, anthropicMessage{Role: RoleUser, Content: m.Content})
		}
	}
	return strings.Join(system, "\n\n"), out
}

func anthropicToolChoice(choice string) *anthropicChoice {
	switch choice {
	case "":
		return nil
	case "auto":
		return &anthropicChoice{Type: "auto"}
	case "any", "required":
		return &anthropicChoice{Type: "any"}
	case "none":
		return &anthropicChoice{Type: "none"}
	default:
		return &anthropicChoice{Type: "tool", Name: choice}
	}
}

// anthropicResponse is the wire response format.
type anthropicResponse struct {
	Model      string           `json:"model"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ParseResponse decodes an Anthropic response, concatenating text blocks
// and collecting tool_use blocks, with the stop reason normalized to the
// shared vocabulary.
func (a *Anthropic) ParseResponse(body []byte) (*Response, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewFatalError(fmt.Errorf("parse anthropic response: %w", err))
	}

	out := &Response{
		Model:        resp.Model,
		FinishReason: normalizeStopReason(resp.StopReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			input := block.Input
			if input == nil {
				input = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: input,
			})
		}
	}
	out.Text = text.String()
	return out, nil
}

func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return FinishStop
	case "max_tokens":
		return FinishLength
	case "tool_use":
		return FinishToolCalls
	default:
		return reason
	}
}

// BuildCountTokensURL constructs the token counting endpoint.
func (a *Anthropic) BuildCountTokensURL(baseURL string) string {
	return anthropicBase(baseURL) + "/v1/messages/count_tokens"
}

// BuildCountTokensBody encodes a counting request, which takes the same
// shape as a completion minus the generation parameters.
func (a *Anthropic) BuildCountTokensBody(req *Request) ([]byte, error) {
	system, messages := a.convertMessages(req.Messages)
	body := struct {
		Model    string             `json:"model"`
		Messages []anthropicMessage `json:"messages"`
		System   string             `json:"system,omitempty"`
		Tools    []anthropicTool    `json:"tools,omitempty"`
	}{
		Model:    req.Model,
		Messages: messages,
		System:   system,
	}
	for _, t := range req.Tools {
		schema := t.Schema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		body.Tools = append(body.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return json.Marshal(body)
}

// ParseCountTokensResponse extracts the input token count.
func (a *Anthropic) ParseCountTokensResponse(body []byte) (int, error) {
	var resp struct {
		InputTokens int `json:"input_tokens"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parse count tokens response: %w", err)
	}
	return resp.InputTokens, nil
}
