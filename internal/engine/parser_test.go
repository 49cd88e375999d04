package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferretbot/ferretbot/internal/engine"
)

func TestHeuristicParser_NamePrompts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		want      string
		assistant string
		ok        bool
	}{
		{name: "bare name", text: "Morgan", want: "Morgan", ok: true},
		{name: "bare name with punctuation", text: "Morgan.", want: "Morgan", ok: true},
		{name: "greeting rejected", text: "hello", ok: false},
		{name: "capitalized greeting rejected", text: "Hello", ok: false},
		{name: "lowercase word rejected", text: "morgan", ok: false},
		{name: "introduction with bot name", text: "I am Morgan, you are FerretBot", want: "Morgan", assistant: "FerretBot", ok: true},
		{name: "my name is", text: "my name is Ada", want: "Ada", ok: true},
		{name: "contraction", text: "I'm Grace", want: "Grace", ok: true},
		{name: "call me", text: "call me Ishmael", want: "Ishmael", ok: true},
		{name: "only names the bot", text: "you are Spot", ok: false},
		{name: "blank", text: "   ", ok: false},
		{name: "multiple words without pattern", text: "two words", ok: false},
		{name: "apostrophe name", text: "I am O'Brien", want: "O'Brien", ok: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resp, ok := engine.HeuristicParser{}.Parse("What is your name?", tc.text)
			require.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, resp.Value)
			assert.Equal(t, tc.assistant, resp.AssistantName)
		})
	}
}

func TestHeuristicParser_FreeformPrompts(t *testing.T) {
	t.Parallel()

	resp, ok := engine.HeuristicParser{}.Parse("Which city should I use?", "  Oslo, Norway  ")
	require.True(t, ok)
	assert.Equal(t, "Oslo, Norway", resp.Value, "whole trimmed message for non-name prompts")

	_, ok = engine.HeuristicParser{}.Parse("Which city should I use?", "   ")
	assert.False(t, ok)
}

func TestHeuristicParser_PromptDetection(t *testing.T) {
	t.Parallel()

	// "call you" switches to name extraction even without the word "name".
	prompt := "Hi! I'm FerretBot. What should I call you?"

	resp, ok := engine.HeuristicParser{}.Parse(prompt, "Morgan")
	require.True(t, ok)
	assert.Equal(t, "Morgan", resp.Value)

	_, ok = engine.HeuristicParser{}.Parse(prompt, "hello")
	assert.False(t, ok, "name mode rejects what freeform mode would accept")
}
