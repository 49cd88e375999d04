package tui

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// DefaultKeyMap
// ---------------------------------------------------------------------------

func TestDefaultKeyMap_Bindings(t *testing.T) {
	t.Parallel()
	km := DefaultKeyMap()

	tests := []struct {
		name    string
		binding key.Binding
		wantKey string
	}{
		{"Send", km.Send, "enter"},
		{"ClearInput", km.ClearInput, "esc"},
		{"Quit", km.Quit, "ctrl+c"},
		{"Help", km.Help, "ctrl+g"},
		{"ToggleRuns", km.ToggleRuns, "ctrl+r"},
		{"ScrollUp", km.ScrollUp, "pgup"},
		{"ScrollDown", km.ScrollDown, "pgdown"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Contains(t, tc.binding.Keys(), tc.wantKey)
			assert.NotEmpty(t, tc.binding.Help().Key, "%s must have help text", tc.name)
			assert.NotEmpty(t, tc.binding.Help().Desc, "%s must have a help description", tc.name)
		})
	}
}

func TestDefaultKeyMap_NoPrintableGlobalKeys(t *testing.T) {
	t.Parallel()
	km := DefaultKeyMap()

	// The textarea owns printable characters; global bindings must not
	// shadow typing.
	for _, binding := range []key.Binding{km.Quit, km.Help, km.ToggleRuns} {
		for _, k := range binding.Keys() {
			assert.Greater(t, len(k), 1, "global binding %q must not be a printable rune", k)
		}
	}
}

// ---------------------------------------------------------------------------
// HelpOverlay
// ---------------------------------------------------------------------------

func newTestOverlay(t *testing.T) HelpOverlay {
	t.Helper()
	h := NewHelpOverlay(DefaultTheme(), DefaultKeyMap())
	h.SetDimensions(100, 40)
	return h
}

func TestHelpOverlay_StartsHidden(t *testing.T) {
	t.Parallel()
	h := NewHelpOverlay(DefaultTheme(), DefaultKeyMap())
	assert.False(t, h.IsVisible())
}

func TestHelpOverlay_Toggle(t *testing.T) {
	t.Parallel()
	h := newTestOverlay(t)

	h.Toggle()
	assert.True(t, h.IsVisible())
	h.Toggle()
	assert.False(t, h.IsVisible())
}

func TestHelpOverlay_DismissOnHelpKey(t *testing.T) {
	t.Parallel()
	h := newTestOverlay(t)
	h.Toggle()
	require.True(t, h.IsVisible())

	h, _ = h.Update(tea.KeyMsg{Type: tea.KeyCtrlG})
	assert.False(t, h.IsVisible())
}

func TestHelpOverlay_DismissOnEsc(t *testing.T) {
	t.Parallel()
	h := newTestOverlay(t)
	h.Toggle()
	require.True(t, h.IsVisible())

	h, _ = h.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, h.IsVisible())
}

func TestHelpOverlay_OtherKeysConsumedWithoutDismiss(t *testing.T) {
	t.Parallel()
	h := newTestOverlay(t)
	h.Toggle()

	h, cmd := h.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	assert.True(t, h.IsVisible())
	assert.Nil(t, cmd)
}

func TestHelpOverlay_View_HiddenReturnsEmpty(t *testing.T) {
	t.Parallel()
	h := newTestOverlay(t)
	assert.Empty(t, h.View())
}

func TestHelpOverlay_View_NoDimensionsReturnsEmpty(t *testing.T) {
	t.Parallel()
	h := NewHelpOverlay(DefaultTheme(), DefaultKeyMap())
	h.Toggle()
	assert.Empty(t, h.View())
}

func TestHelpOverlay_View_ContainsSectionsAndBindings(t *testing.T) {
	t.Parallel()
	h := newTestOverlay(t)
	h.Toggle()

	out := h.View()
	assert.Contains(t, out, "FerretBot")
	assert.Contains(t, out, "Chat")
	assert.Contains(t, out, "Panels")
	assert.Contains(t, out, "Scrolling")
	assert.Contains(t, out, "enter")
	assert.Contains(t, out, "ctrl+c")
	assert.Contains(t, out, "ctrl+r")
	assert.Contains(t, out, "close")
}
