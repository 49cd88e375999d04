package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/ferretbot/ferretbot/internal/jsonutil"
)

// OpenAI speaks the OpenAI chat completions dialect, which doubles as
// the lingua franca of self-hosted backends (vLLM, LiteLLM, OpenRouter).
type OpenAI struct{}

func (o *OpenAI) Name() string {
	return "openai"
}

// BuildURL constructs the chat completions endpoint.
func (o *OpenAI) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

// SetHeaders adds bearer authentication. An empty apiKey falls back to
// OPENAI_API_KEY.
func (o *OpenAI) SetHeaders(req *http.Request, apiKey string) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

// openAIRequest is the wire request format.
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Tools       []openAITool    `json:"tools,omitempty"`
	ToolChoice  string          `json:"tool_choice,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// openAIToolCall carries function arguments as a JSON-encoded string,
// per the OpenAI wire format.
type openAIToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// BuildRequestBody encodes req in the OpenAI format.
func (o *OpenAI) BuildRequestBody(req *Request) ([]byte, error) {
	body := openAIRequest{
		Model:       req.Model,
		Messages:    make([]openAIMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		ToolChoice:  req.ToolChoice,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = &req.MaxTokens
	}
	for _, m := range req.Messages {
		msg := openAIMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wire, err := encodeToolCall(tc)
			if err != nil {
				return nil, err
			}
			msg.ToolCalls = append(msg.ToolCalls, wire)
		}
		body.Messages = append(body.Messages, msg)
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	return json.Marshal(body)
}

func encodeToolCall(tc ToolCall) (openAIToolCall, error) {
	args := tc.Arguments
	if args == nil {
		args = map[string]any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return openAIToolCall{}, fmt.Errorf("encode tool call %s: %w", tc.Name, err)
	}
	wire := openAIToolCall{ID: tc.ID, Type: "function"}
	wire.Function.Name = tc.Name
	wire.Function.Arguments = string(encoded)
	return wire, nil
}

// openAIResponse is the wire response format.
type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string           `json:"role"`
			Content   *string          `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ParseResponse decodes an OpenAI-format response.
func (o *OpenAI) ParseResponse(body []byte) (*Response, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewFatalError(fmt.Errorf("parse openai response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, NewFatalError(fmt.Errorf("no choices in response"))
	}
	choice := resp.Choices[0]

	out := &Response{
		FinishReason: choice.FinishReason,
		Model:        resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if choice.Message.Content != nil {
		out.Text = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, decodeToolCall(tc))
	}
	if len(out.ToolCalls) > 0 && out.FinishReason == "" {
		out.FinishReason = FinishToolCalls
	}
	return out, nil
}

// decodeToolCall parses the JSON-string arguments. Self-hosted
// backends sometimes relay arguments the model wrapped in a markdown
// fence or padded with prose; when strict decoding fails we salvage
// the first JSON object embedded in the string. Arguments with no
// recoverable JSON decode to an empty map; schema validation
// downstream turns that into a readable tool error.
func decodeToolCall(tc openAIToolCall) ToolCall {
	args := map[string]any{}
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			args = map[string]any{}
			if err := jsonutil.ExtractInto(tc.Function.Arguments, &args); err != nil {
				args = map[string]any{}
			}
		}
	}
	return ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args}
}

// BuildModelsURL constructs the model listing endpoint.
func (o *OpenAI) BuildModelsURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return strings.TrimSuffix(baseURL, "/") + "/models"
}

// ParseModelsResponse extracts model identifiers from a listing.
func (o *OpenAI) ParseModelsResponse(body []byte) ([]string, error) {
	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse models response: %w", err)
	}
	ids := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
