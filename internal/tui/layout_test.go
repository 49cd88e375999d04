package tui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Resize
// ---------------------------------------------------------------------------

func TestNewLayout_ZeroUntilResize(t *testing.T) {
	t.Parallel()
	l := NewLayout()

	assert.Equal(t, PanelDimensions{}, l.TitleBar)
	assert.Equal(t, PanelDimensions{}, l.Transcript)
	assert.True(t, l.IsTooSmall(), "unsized layout reports too small")
}

func TestResize_WithoutRunsPanel(t *testing.T) {
	t.Parallel()
	l := NewLayout()

	ok := l.Resize(100, 30, false)
	require.True(t, ok)

	assert.Equal(t, PanelDimensions{Width: 100, Height: 1}, l.TitleBar)
	assert.Equal(t, PanelDimensions{Width: 100, Height: 25}, l.Transcript)
	assert.Equal(t, PanelDimensions{Width: 0, Height: 25}, l.RunsPanel)
	assert.Equal(t, PanelDimensions{Width: 100, Height: 3}, l.Input)
	assert.Equal(t, PanelDimensions{Width: 100, Height: 1}, l.StatusBar)
}

func TestResize_WithRunsPanel(t *testing.T) {
	t.Parallel()
	l := NewLayout()

	ok := l.Resize(100, 30, true)
	require.True(t, ok)

	assert.Equal(t, 100-DefaultRunsPanelWidth, l.Transcript.Width)
	assert.Equal(t, DefaultRunsPanelWidth, l.RunsPanel.Width)
	assert.Equal(t, l.Transcript.Height, l.RunsPanel.Height)
}

func TestResize_HeightsSumToTerminal(t *testing.T) {
	t.Parallel()
	l := NewLayout()
	require.True(t, l.Resize(120, 40, false))

	total := l.TitleBar.Height + l.Transcript.Height + l.Input.Height + l.StatusBar.Height
	assert.Equal(t, 40, total)
}

func TestResize_TooSmallRecordsDimensions(t *testing.T) {
	t.Parallel()
	l := NewLayout()

	ok := l.Resize(79, 24, false)
	assert.False(t, ok)
	assert.True(t, l.IsTooSmall())

	w, h := l.TerminalSize()
	assert.Equal(t, 79, w)
	assert.Equal(t, 24, h)

	// Panel dimensions stay untouched on a failed resize.
	assert.Equal(t, PanelDimensions{}, l.Transcript)
}

func TestResize_MinimumBoundary(t *testing.T) {
	t.Parallel()
	l := NewLayout()

	assert.True(t, l.Resize(MinTerminalWidth, MinTerminalHeight, false))
	assert.False(t, l.IsTooSmall())

	assert.False(t, l.Resize(MinTerminalWidth-1, MinTerminalHeight, false))
	assert.True(t, l.IsTooSmall())

	assert.False(t, l.Resize(MinTerminalWidth, MinTerminalHeight-1, false))
	assert.True(t, l.IsTooSmall())
}

func TestResize_RecoversAfterTooSmall(t *testing.T) {
	t.Parallel()
	l := NewLayout()

	require.False(t, l.Resize(40, 10, false))
	require.True(t, l.Resize(100, 30, false))
	assert.False(t, l.IsTooSmall())
	assert.Equal(t, 100, l.Transcript.Width)
}

// ---------------------------------------------------------------------------
// Render
// ---------------------------------------------------------------------------

func TestRender_ComposesAllPanels(t *testing.T) {
	t.Parallel()
	l := NewLayout()
	require.True(t, l.Resize(100, 30, false))

	out := l.Render("TITLE", "TRANSCRIPT", "", "INPUT", "STATUS")
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "TRANSCRIPT")
	assert.Contains(t, out, "INPUT")
	assert.Contains(t, out, "STATUS")
	assert.Equal(t, 30, lipgloss.Height(out), "frame must fill the terminal height")
}

func TestRender_IncludesRunsPanelWhenVisible(t *testing.T) {
	t.Parallel()
	l := NewLayout()
	require.True(t, l.Resize(100, 30, true))

	out := l.Render("TITLE", "TRANSCRIPT", "RUNSPANEL", "INPUT", "STATUS")
	assert.Contains(t, out, "RUNSPANEL")
}

func TestRender_IgnoresRunsPanelWhenHidden(t *testing.T) {
	t.Parallel()
	l := NewLayout()
	require.True(t, l.Resize(100, 30, false))

	out := l.Render("TITLE", "TRANSCRIPT", "RUNSPANEL", "INPUT", "STATUS")
	assert.NotContains(t, out, "RUNSPANEL")
}

// ---------------------------------------------------------------------------
// RenderTooSmall
// ---------------------------------------------------------------------------

func TestRenderTooSmall_MentionsMinimumSize(t *testing.T) {
	t.Parallel()
	l := NewLayout()
	l.Resize(79, 24, false)

	out := l.RenderTooSmall(DefaultTheme())
	assert.Contains(t, out, "Terminal too small")
	assert.Contains(t, out, "80x24")
	assert.Equal(t, 24, lipgloss.Height(out), "warning is centered in the recorded area")
}

func TestRenderTooSmall_NoRecordedSize(t *testing.T) {
	t.Parallel()
	l := NewLayout()

	out := l.RenderTooSmall(DefaultTheme())
	assert.Contains(t, out, "Terminal too small")
}
