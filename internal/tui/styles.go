package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// ---------------------------------------------------------------------------
// Color Palette
// ---------------------------------------------------------------------------

// ColorPrimary is the main brand/accent color used for titles and agent text.
var ColorPrimary = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7B78FF"}

// ColorSecondary is used for the user's own messages and interactive accents.
var ColorSecondary = lipgloss.AdaptiveColor{Light: "#3B82F6", Dark: "#60A5FA"}

// ColorAccent is a green-teal accent for positive indicators and active states.
var ColorAccent = lipgloss.AdaptiveColor{Light: "#10B981", Dark: "#34D399"}

// ColorSuccess represents successful operations (green).
var ColorSuccess = lipgloss.AdaptiveColor{Light: "#16A34A", Dark: "#4ADE80"}

// ColorWarning represents cautionary states such as runs waiting on the user.
var ColorWarning = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// ColorError represents failures and error states (red).
var ColorError = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#F87171"}

// ColorMuted is a subdued foreground color for secondary text.
var ColorMuted = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}

// ColorSubtle provides very low-contrast borders and dividers.
var ColorSubtle = lipgloss.AdaptiveColor{Light: "#D1D5DB", Dark: "#4B5563"}

// ColorBorder is the standard panel border color.
var ColorBorder = lipgloss.AdaptiveColor{Light: "#E5E7EB", Dark: "#374151"}

// ColorHighlight is a background highlight for the status bar and selections.
var ColorHighlight = lipgloss.AdaptiveColor{Light: "#F3F4F6", Dark: "#1F2937"}

// ---------------------------------------------------------------------------
// Theme
// ---------------------------------------------------------------------------

// Theme holds all Lipgloss styles for the FerretBot chat TUI. Every field is a
// pre-built lipgloss.Style value. Width and Height are NOT set on any theme
// style -- those are applied dynamically by the layout at render time.
type Theme struct {
	// Title bar
	TitleBar     lipgloss.Style
	TitleVersion lipgloss.Style

	// Transcript
	TranscriptContainer lipgloss.Style
	EntryTime           lipgloss.Style
	UserLabel           lipgloss.Style
	AgentLabel          lipgloss.Style
	SystemLabel         lipgloss.Style
	PromptLabel         lipgloss.Style
	ErrorLabel          lipgloss.Style
	EntryText           lipgloss.Style
	PromptText          lipgloss.Style
	MutedText           lipgloss.Style

	// Input area
	InputContainer lipgloss.Style

	// Runs panel
	RunsContainer lipgloss.Style
	RunsTitle     lipgloss.Style
	RunsItem      lipgloss.Style

	// Status bar
	StatusBar       lipgloss.Style
	StatusKey       lipgloss.Style
	StatusValue     lipgloss.Style
	StatusSeparator lipgloss.Style

	// Run state indicators
	StateRunning   lipgloss.Style
	StateCompleted lipgloss.Style
	StateFailed    lipgloss.Style
	StateWaiting   lipgloss.Style
	StateIdle      lipgloss.Style

	// General
	Spinner   lipgloss.Style
	HelpKey   lipgloss.Style
	HelpDesc  lipgloss.Style
	ErrorText lipgloss.Style
}

// DefaultTheme returns the default FerretBot TUI theme with adaptive colors.
// All colors use lipgloss.AdaptiveColor for automatic light/dark terminal
// support. No Width or Height values are set -- those are applied at render
// time by the layout.
func DefaultTheme() Theme {
	return Theme{
		// --- Title bar ---
		TitleBar: lipgloss.NewStyle().
			Bold(true).
			Background(ColorPrimary).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1),

		TitleVersion: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#E0DFFF", Dark: "#C4C2FF"}),

		// --- Transcript ---
		TranscriptContainer: lipgloss.NewStyle().
			Padding(0, 1),

		EntryTime: lipgloss.NewStyle().
			Foreground(ColorMuted),

		UserLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary),

		AgentLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary),

		SystemLabel: lipgloss.NewStyle().
			Foreground(ColorMuted),

		PromptLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWarning),

		ErrorLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError),

		EntryText: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#E5E7EB"}),

		PromptText: lipgloss.NewStyle().
			Foreground(ColorWarning),

		MutedText: lipgloss.NewStyle().
			Foreground(ColorMuted),

		// --- Input area ---
		InputContainer: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(ColorBorder),

		// --- Runs panel ---
		RunsContainer: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(ColorBorder).
			PaddingLeft(1),

		RunsTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary),

		RunsItem: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#374151", Dark: "#D1D5DB"}),

		// --- Status bar ---
		StatusBar: lipgloss.NewStyle().
			Background(ColorHighlight).
			Foreground(ColorMuted).
			Padding(0, 1),

		StatusKey: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary),

		StatusValue: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#374151", Dark: "#D1D5DB"}),

		StatusSeparator: lipgloss.NewStyle().
			Foreground(ColorSubtle),

		// --- Run state indicators ---
		StateRunning: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent),

		StateCompleted: lipgloss.NewStyle().
			Foreground(ColorSuccess),

		StateFailed: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError),

		StateWaiting: lipgloss.NewStyle().
			Foreground(ColorWarning),

		StateIdle: lipgloss.NewStyle().
			Foreground(ColorMuted),

		// --- General ---
		Spinner: lipgloss.NewStyle().
			Foreground(ColorPrimary),

		HelpKey: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary),

		HelpDesc: lipgloss.NewStyle().
			Foreground(ColorMuted),

		ErrorText: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError),
	}
}

// StateIndicator returns a styled Unicode symbol for the given run state
// string. The returned string is ready to embed in a view.
//
// Symbol mapping:
//   - queued, running              → "●" (filled circle, accent)
//   - waiting_input                → "◌" (dashed circle, warning)
//   - waiting_approval             → "◍" (half circle, warning)
//   - completed                    → "✓" (check mark, success green)
//   - failed, blocked              → "!" (exclamation, red)
//   - cancelled and anything else  → "○" (open circle, muted)
func (t Theme) StateIndicator(state string) string {
	switch state {
	case "queued", "running":
		return t.StateRunning.Render("●")
	case "waiting_input":
		return t.StateWaiting.Render("◌")
	case "waiting_approval":
		return t.StateWaiting.Render("◍")
	case "completed":
		return t.StateCompleted.Render("✓")
	case "failed", "blocked":
		return t.StateFailed.Render("!")
	default: // cancelled and unknown values
		return t.StateIdle.Render("○")
	}
}
