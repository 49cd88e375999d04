package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

// MinTerminalWidth is the minimum terminal width (in columns) required for the
// full chat layout to render correctly. Below this threshold RenderTooSmall is
// used instead.
const MinTerminalWidth = 80

// MinTerminalHeight is the minimum terminal height (in rows) required for the
// full chat layout. Below this threshold RenderTooSmall is used instead.
const MinTerminalHeight = 24

// DefaultRunsPanelWidth is the fixed column width of the runs panel when it
// is visible.
const DefaultRunsPanelWidth = 28

// TitleBarHeight is the number of terminal rows consumed by the title bar.
const TitleBarHeight = 1

// InputHeight is the number of terminal rows consumed by the input area:
// the top border, the textarea line, and the hint line beneath it.
const InputHeight = 3

// StatusBarHeight is the number of terminal rows consumed by the status bar.
const StatusBarHeight = 1

// ---------------------------------------------------------------------------
// PanelDimensions
// ---------------------------------------------------------------------------

// PanelDimensions holds the computed width and height for a single panel.
// Both values are in terminal cell units (columns / rows). Zero values mean
// the layout has not yet been computed via Resize.
type PanelDimensions struct {
	// Width is the panel width in terminal columns.
	Width int
	// Height is the panel height in terminal rows.
	Height int
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

// Layout computes and holds the dimensions of every panel in the chat TUI.
// It must be updated on every tea.WindowSizeMsg by calling Resize. The
// resulting PanelDimensions fields can then be applied inside View to size
// the lipgloss containers correctly.
//
// Layout diagram:
//
//	+---------------------------------------------------+
//	| Title Bar (1 line)                                 |
//	+-----------------------------------+---------------+
//	| Transcript                        | Runs panel    |
//	|                                   | (toggleable)  |
//	+-----------------------------------+---------------+
//	| Input (3 lines)                                    |
//	+---------------------------------------------------+
//	| Status Bar (1 line)                                |
//	+---------------------------------------------------+
type Layout struct {
	termWidth  int
	termHeight int
	runsWidth  int

	// TitleBar holds the computed dimensions for the title bar.
	TitleBar PanelDimensions
	// Transcript holds the computed dimensions for the transcript panel.
	Transcript PanelDimensions
	// RunsPanel holds the computed dimensions for the runs panel. Both fields
	// are zero while the panel is hidden.
	RunsPanel PanelDimensions
	// Input holds the computed dimensions for the input area.
	Input PanelDimensions
	// StatusBar holds the computed dimensions for the status bar.
	StatusBar PanelDimensions
}

// NewLayout returns a Layout with DefaultRunsPanelWidth. All PanelDimensions
// fields are zero-initialised until the first Resize call.
func NewLayout() Layout {
	return Layout{
		runsWidth: DefaultRunsPanelWidth,
	}
}

// Resize recalculates all PanelDimensions for the given terminal size.
// runsVisible controls whether columns are reserved for the runs panel.
//
// If the terminal is smaller than the minimum supported dimensions
// (MinTerminalWidth x MinTerminalHeight) the method records the raw dimensions
// (so IsTooSmall and TerminalSize can report the actual values) and returns
// false without updating the panel dimensions.
//
// Returns true when the layout was successfully recalculated.
func (l *Layout) Resize(width, height int, runsVisible bool) bool {
	l.termWidth = width
	l.termHeight = height

	if width < MinTerminalWidth || height < MinTerminalHeight {
		return false
	}

	// Rows available between the title bar and the input area.
	contentHeight := l.termHeight - TitleBarHeight - InputHeight - StatusBarHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	// The runs panel carries its own left border inside its width, so the
	// transcript and the panel simply split the full terminal width.
	transcriptWidth := l.termWidth
	runsWidth := 0
	if runsVisible {
		runsWidth = l.runsWidth
		transcriptWidth = l.termWidth - runsWidth
		if transcriptWidth < 1 {
			transcriptWidth = 1
		}
	}

	l.TitleBar = PanelDimensions{Width: l.termWidth, Height: TitleBarHeight}
	l.Transcript = PanelDimensions{Width: transcriptWidth, Height: contentHeight}
	l.RunsPanel = PanelDimensions{Width: runsWidth, Height: contentHeight}
	l.Input = PanelDimensions{Width: l.termWidth, Height: InputHeight}
	l.StatusBar = PanelDimensions{Width: l.termWidth, Height: StatusBarHeight}

	return true
}

// IsTooSmall returns true when the last known terminal dimensions fall below
// the minimum supported size (MinTerminalWidth x MinTerminalHeight).
func (l Layout) IsTooSmall() bool {
	return l.termWidth < MinTerminalWidth || l.termHeight < MinTerminalHeight
}

// TerminalSize returns the most recently recorded terminal dimensions in
// (width, height) order. Both values are zero until the first Resize call.
func (l Layout) TerminalSize() (int, int) {
	return l.termWidth, l.termHeight
}

// Render assembles the complete chat frame from the pre-rendered content
// strings, applying exact panel sizing. The runsPanel string is ignored when
// the panel is hidden (RunsPanel.Width == 0).
//
// The content strings should be produced by the individual panel sub-models
// and must NOT already have width/height applied; Render sizes them to match
// the computed PanelDimensions.
func (l Layout) Render(titleBar, transcript, runsPanel, input, statusBar string) string {
	titleBarView := lipgloss.NewStyle().
		Width(l.TitleBar.Width).
		Height(l.TitleBar.Height).
		Render(titleBar)

	transcriptView := lipgloss.NewStyle().
		Width(l.Transcript.Width).
		Height(l.Transcript.Height).
		Render(transcript)

	middle := transcriptView
	if l.RunsPanel.Width > 0 {
		runsView := lipgloss.NewStyle().
			Width(l.RunsPanel.Width).
			Height(l.RunsPanel.Height).
			Render(runsPanel)
		middle = lipgloss.JoinHorizontal(lipgloss.Top, transcriptView, runsView)
	}

	inputView := lipgloss.NewStyle().
		Width(l.Input.Width).
		Height(l.Input.Height).
		Render(input)

	statusView := lipgloss.NewStyle().
		Width(l.StatusBar.Width).
		Height(l.StatusBar.Height).
		Render(statusBar)

	return lipgloss.JoinVertical(lipgloss.Left, titleBarView, middle, inputView, statusView)
}

// RenderTooSmall returns a message instructing the user to enlarge their
// terminal. When a terminal size has been recorded the message is centered
// within the available area using lipgloss.Place; otherwise the raw
// theme.ErrorText style is applied without placement.
func (l Layout) RenderTooSmall(theme Theme) string {
	msg := "Terminal too small.\nPlease resize to at least 80x24."
	styled := theme.ErrorText.Render(msg)

	if l.termWidth <= 0 || l.termHeight <= 0 {
		return styled
	}

	return lipgloss.Place(l.termWidth, l.termHeight, lipgloss.Center, lipgloss.Center, styled)
}
