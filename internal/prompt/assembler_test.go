package prompt_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferretbot/ferretbot/internal/prompt"
	"github.com/ferretbot/ferretbot/internal/session"
)

func turn(role, content string) session.Message {
	return session.Message{Role: role, Content: content}
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := prompt.New(prompt.Config{}).Config()
	assert.Equal(t, 32000, cfg.ContextLimit)
	assert.Equal(t, 4096, cfg.OutputReserve, "15% of 32000 clamped to the reserve ceiling")
	assert.Equal(t, 32, cfg.SafetyBuffer)
	assert.Equal(t, 4.0, cfg.CharsPerToken)
	assert.Equal(t, 1.1, cfg.SafetyMargin)
}

func TestConfig_ReserveClamp(t *testing.T) {
	t.Parallel()

	low := prompt.New(prompt.Config{ContextLimit: 1000}).Config()
	assert.Equal(t, 256, low.OutputReserve, "ceil(150) raised to the floor")

	explicit := prompt.New(prompt.Config{ContextLimit: 2000, OutputReserve: 500}).Config()
	assert.Equal(t, 500, explicit.OutputReserve)
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	a := prompt.New(prompt.Config{})
	assert.Zero(t, a.EstimateTokens(""))
	assert.Equal(t, 1, a.EstimateTokens("hi"))
	assert.Equal(t, 110, a.EstimateTokens(strings.Repeat("x", 400)))
}

func TestBuild_SmallBudget(t *testing.T) {
	t.Parallel()

	a := prompt.New(prompt.Config{ContextLimit: 2000, OutputReserve: 500})
	res := a.Build(prompt.Request{
		System:    "You are a helpful assistant.",
		UserInput: "hi",
	})

	require.Len(t, res.Messages, 2)
	assert.Equal(t, session.RoleSystem, res.Messages[0].Role)
	assert.Equal(t, "You are a helpful assistant.", res.Messages[0].Content)
	assert.Equal(t, session.RoleUser, res.Messages[1].Role)
	assert.Equal(t, "hi", res.Messages[1].Content)

	assert.LessOrEqual(t, res.Usage.Input, 1500, "within the input budget")
	assert.Equal(t, 2000-res.Usage.Input-32, res.MaxOutputTokens)
}

func TestBuild_EmptyRequest(t *testing.T) {
	t.Parallel()

	res := prompt.New(prompt.Config{}).Build(prompt.Request{})
	assert.Empty(t, res.Messages)
	assert.Zero(t, res.Usage.Input)
	assert.Equal(t, 32000-0-32, res.MaxOutputTokens)
}

func TestBuild_TruncatesOversizedLayer(t *testing.T) {
	t.Parallel()

	a := prompt.New(prompt.Config{
		ContextLimit:  1000,
		OutputReserve: 400,
		Budgets: map[string]int{
			prompt.LayerSystem:       10,
			prompt.LayerStep:         0,
			prompt.LayerSkills:       0,
			prompt.LayerPrior:        0,
			prompt.LayerConversation: 0,
		},
	})
	res := a.Build(prompt.Request{System: strings.Repeat("s", 200)})

	require.Len(t, res.Messages, 1)
	assert.True(t, strings.HasSuffix(res.Messages[0].Content, "..."))
	assert.Equal(t, 10, res.Usage.Layers[prompt.LayerSystem],
		"truncation lands exactly on the allowance")
}

func TestBuild_ScalesExplicitBudgets(t *testing.T) {
	t.Parallel()

	// 600+300 over a 600-token input budget scales to 400+200.
	a := prompt.New(prompt.Config{
		ContextLimit:  1000,
		OutputReserve: 400,
		Budgets: map[string]int{
			prompt.LayerSystem:       600,
			prompt.LayerStep:         300,
			prompt.LayerSkills:       0,
			prompt.LayerPrior:        0,
			prompt.LayerConversation: 0,
		},
	})
	big := strings.Repeat("x", 2000)
	res := a.Build(prompt.Request{System: big, Step: big, Skills: big})

	require.Len(t, res.Messages, 2, "zero-budget skills layer dropped")
	assert.Equal(t, 400, res.Usage.Layers[prompt.LayerSystem])
	assert.Equal(t, 200, res.Usage.Layers[prompt.LayerStep])
	assert.Equal(t, 600, res.Usage.Input)
	assert.Equal(t, 1000-600-32, res.MaxOutputTokens)
}

func TestBuild_ConversationNewestFirstThenChronological(t *testing.T) {
	t.Parallel()

	a := prompt.New(prompt.Config{
		ContextLimit:  1000,
		OutputReserve: 400,
		Budgets: map[string]int{
			prompt.LayerSystem:       50,
			prompt.LayerStep:         50,
			prompt.LayerSkills:       50,
			prompt.LayerPrior:        50,
			prompt.LayerConversation: 250,
		},
	})
	turns := []session.Message{
		turn(session.RoleUser, "first "+strings.Repeat("a", 394)),
		turn(session.RoleAssistant, "second "+strings.Repeat("b", 393)),
		turn(session.RoleUser, "third "+strings.Repeat("c", 394)),
	}
	res := a.Build(prompt.Request{Turns: turns})

	// Each turn costs 110 tokens; a 250-token cap fits the newest two.
	require.Len(t, res.Messages, 2)
	assert.Equal(t, turns[1].Content, res.Messages[0].Content, "chronological order restored")
	assert.Equal(t, turns[2].Content, res.Messages[1].Content)
	assert.Equal(t, 220, res.Usage.Layers[prompt.LayerConversation])
}

func TestBuild_SkillContentPrefixed(t *testing.T) {
	t.Parallel()

	res := prompt.New(prompt.Config{}).Build(prompt.Request{Skills: "ALWAYS check twice."})
	require.Len(t, res.Messages, 1)
	assert.Equal(t, session.RoleSystem, res.Messages[0].Role)
	assert.Equal(t, "Skill content:\nALWAYS check twice.", res.Messages[0].Content)
}

func TestBuild_LayerOrder(t *testing.T) {
	t.Parallel()

	res := prompt.New(prompt.Config{}).Build(prompt.Request{
		System:    "system prompt",
		Step:      "step instruction",
		Skills:    "skill text",
		Prior:     "prior context",
		Turns:     []session.Message{turn(session.RoleUser, "earlier message")},
		UserInput: "now",
	})

	require.Len(t, res.Messages, 6)
	assert.Equal(t, "system prompt", res.Messages[0].Content)
	assert.Equal(t, "step instruction", res.Messages[1].Content)
	assert.Equal(t, "Skill content:\nskill text", res.Messages[2].Content)
	assert.Equal(t, "prior context", res.Messages[3].Content)
	assert.Equal(t, "earlier message", res.Messages[4].Content)
	assert.Equal(t, "now", res.Messages[5].Content)
	assert.Equal(t, session.RoleUser, res.Messages[5].Role)
}

func TestBuild_UserInputNeverDropped(t *testing.T) {
	t.Parallel()

	// A system prompt big enough to exhaust the input budget.
	a := prompt.New(prompt.Config{ContextLimit: 600, OutputReserve: 256})
	res := a.Build(prompt.Request{
		System:    strings.Repeat("s", 4000),
		UserInput: "still here",
	})

	last := res.Messages[len(res.Messages)-1]
	assert.Equal(t, session.RoleUser, last.Role)
	assert.Equal(t, "still here", last.Content)
	assert.GreaterOrEqual(t, res.MaxOutputTokens, 1)
}
