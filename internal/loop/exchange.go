package loop

import (
	"context"
	"fmt"
	"strings"

	"github.com/ferretbot/ferretbot/internal/checks"
	"github.com/ferretbot/ferretbot/internal/engine"
	"github.com/ferretbot/ferretbot/internal/provider"
	"github.com/ferretbot/ferretbot/internal/session"
	"github.com/ferretbot/ferretbot/internal/tools"
)

// continuePrompt nudges the model after a length-cut response. The
// partial text stays in the transcript as the assistant's last turn.
const continuePrompt = "Continue your answer exactly where it stopped. Do not repeat earlier text."

// exchange is the working state of one model conversation: the
// compactable context layers, the tool rounds layered on top, and the
// request knobs.
type exchange struct {
	base      []session.Message
	rounds    []provider.Message
	tools     []provider.ToolDefinition
	allowed   map[string]bool
	maxOutput int
	sessionID string
}

// exchangeResult is what one exchange produced, shaped for a step
// outcome.
type exchangeResult struct {
	Text        string
	ToolCalls   []engine.ToolCall
	ToolResults []checks.ToolResult
	Artifacts   []string
	Rounds      int
	Usage       provider.Usage
}

// runExchange drives the request/tool-call/continuation loop until the
// model settles on a final answer or the round bound is hit. Tool
// faults feed back into the transcript as error results; only transport
// level failures surface as errors.
func (r *Runner) runExchange(ctx context.Context, ex *exchange) (*exchangeResult, error) {
	out := &exchangeResult{}
	var text strings.Builder
	continuation := 1
	continuations := 0

	for round := 1; round <= r.cfg.MaxToolRounds; round++ {
		out.Rounds = round
		req := &provider.Request{
			Messages:  ex.messages(),
			MaxTokens: ex.maxOutput,
			Tools:     ex.tools,
		}
		if len(ex.tools) > 0 {
			req.ToolChoice = "auto"
		}

		resp, err := r.client.ChatCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		out.Usage.PromptTokens += resp.Usage.PromptTokens
		out.Usage.CompletionTokens += resp.Usage.CompletionTokens
		out.Usage.TotalTokens += resp.Usage.TotalTokens
		if ex.sessionID != "" {
			r.sessions.SetLastCompletionTokens(ex.sessionID, resp.Usage.CompletionTokens)
		}

		if len(resp.ToolCalls) > 0 {
			ex.rounds = append(ex.rounds, provider.Message{
				Role:      provider.RoleAssistant,
				Content:   resp.Text,
				ToolCalls: resp.ToolCalls,
			})
			for _, call := range resp.ToolCalls {
				exec := r.invokeTool(ctx, ex, call)
				out.ToolCalls = append(out.ToolCalls, engine.ToolCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				})
				out.ToolResults = append(out.ToolResults, checks.ToolResult{
					Name:     call.Name,
					ExitCode: exec.ExitCode,
					Output:   exec.Output,
				})
				out.Artifacts = appendNew(out.Artifacts, exec.Artifacts)
				ex.rounds = append(ex.rounds, provider.Message{
					Role:       provider.RoleTool,
					Name:       call.Name,
					ToolCallID: call.ID,
					Content:    r.clipForTranscript(exec.Output),
				})
			}
			continue
		}

		text.WriteString(resp.Text)
		if resp.FinishReason == provider.FinishLength && continuations < r.cfg.MaxContinuations {
			continuations++
			continuation++
			var target int
			ex.base, target = r.assembler.Compact(ex.base, continuation,
				resp.Usage.CompletionTokens)
			ex.rounds = append(ex.rounds,
				provider.Message{Role: provider.RoleAssistant, Content: resp.Text},
				provider.Message{Role: provider.RoleUser, Content: continuePrompt})
			ex.maxOutput = r.capOutput(target)
			r.log.Debug("continuing length-cut response",
				"continuation", continuations, "nextMax", ex.maxOutput)
			continue
		}

		out.Text = text.String()
		return out, nil
	}

	// The model never settled. Whatever text accumulated is still worth
	// reporting; with none at all the exchange failed outright.
	if text.Len() > 0 {
		out.Text = text.String()
		return out, nil
	}
	return nil, fmt.Errorf("no final response after %d tool rounds", r.cfg.MaxToolRounds)
}

// messages flattens the exchange into one provider message list.
func (ex *exchange) messages() []provider.Message {
	out := make([]provider.Message, 0, len(ex.base)+len(ex.rounds))
	for _, m := range ex.base {
		out = append(out, provider.Message{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		})
	}
	return append(out, ex.rounds...)
}

// invokeTool executes one requested call, enforcing the step's tool
// allowlist on top of the registry's own validation.
func (r *Runner) invokeTool(ctx context.Context, ex *exchange, call provider.ToolCall) *tools.Execution {
	if !ex.allowed[call.Name] {
		return &tools.Execution{
			ExitCode: 1,
			Output:   fmt.Sprintf("tool %q is not available here", call.Name),
		}
	}
	return r.tools.Execute(ctx, call.Name, call.Arguments)
}

// clipForTranscript bounds tool output echoed to the model. Checks see
// the full output through the outcome instead.
func (r *Runner) clipForTranscript(s string) string {
	if len(s) <= r.cfg.MaxToolResultChars {
		return s
	}
	return s[:r.cfg.MaxToolResultChars] + "\n[output truncated]"
}

// appendNew appends items not already present, preserving order.
func appendNew(list []string, items []string) []string {
	for _, item := range items {
		found := false
		for _, have := range list {
			if have == item {
				found = true
				break
			}
		}
		if !found {
			list = append(list, item)
		}
	}
	return list
}
