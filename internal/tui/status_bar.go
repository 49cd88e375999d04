package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ferretbot/ferretbot/internal/bus"
)

// StatusBarModel manages the bottom status bar of the chat screen. It tracks
// the connection mode, the daemon endpoint, the session id, and a roster of
// live workflow runs. The view renders all fields in a single line with
// styled separators.
//
// StatusBarModel follows Bubble Tea's Elm architecture: Update returns a new
// value, and View is a pure function of the model state.
type StatusBarModel struct {
	theme Theme
	width int

	endpoint string
	session  string

	// Dynamic state updated by incoming messages.
	waiting bool
	offline bool
	runs    map[int]string // run id -> last known state
}

// NewStatusBarModel creates a StatusBarModel for the given daemon endpoint
// and session id. The run roster starts empty; runs appear as their events
// arrive or when a run list reply is processed.
func NewStatusBarModel(theme Theme, endpoint, session string) StatusBarModel {
	return StatusBarModel{
		theme:    theme,
		endpoint: endpoint,
		session:  session,
		runs:     make(map[int]string),
	}
}

// SetWidth updates the status bar width. This should be called whenever the
// parent App processes a tea.WindowSizeMsg.
func (sb *StatusBarModel) SetWidth(width int) {
	sb.width = width
}

// SetWaiting marks whether a user message is awaiting an agent reply. While
// true, the mode segment shows "[thinking]" instead of "[chat]".
func (sb *StatusBarModel) SetWaiting(waiting bool) {
	sb.waiting = waiting
}

// Update processes messages that affect status bar content and returns the
// updated model.
//
// Handled messages:
//   - RunQueuedMsg      — adds the run to the roster.
//   - NeedsInputMsg     — marks the run as waiting for input.
//   - NeedsApprovalMsg  — marks the run as waiting for approval.
//   - RunCompleteMsg    — removes the run from the roster.
//   - CommandResultMsg  — rebuilds the roster from a run list reply.
//   - ConnectionLostMsg — switches the mode segment to OFFLINE.
func (sb StatusBarModel) Update(msg tea.Msg) StatusBarModel {
	switch m := msg.(type) {
	case RunQueuedMsg:
		sb.runs[m.RunID] = "queued"

	case NeedsInputMsg:
		sb.runs[m.RunID] = "waiting_input"

	case NeedsApprovalMsg:
		sb.runs[m.RunID] = "waiting_approval"

	case RunCompleteMsg:
		delete(sb.runs, m.RunID)

	case CommandResultMsg:
		if m.Result != nil && m.Result.Command == bus.EventRunList && m.Result.OK {
			sb = sb.rebuildRoster(m.Result.Data)
		}

	case ConnectionLostMsg:
		sb.offline = true
	}

	return sb
}

// rebuildRoster replaces the run roster with the non-terminal runs from a
// run list reply. Terminal runs (completed, failed, blocked, cancelled) are
// dropped so the tally reflects only live work.
func (sb StatusBarModel) rebuildRoster(data map[string]any) StatusBarModel {
	raw, _ := data["runs"].([]any)
	runs := make(map[int]string)
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		id, ok := contentInt(m, "runId")
		if !ok {
			continue
		}
		state, _ := m["state"].(string)
		if terminalRunState(state) {
			continue
		}
		runs[id] = state
	}
	sb.runs = runs
	return sb
}

// terminalRunState reports whether a run state is final.
func terminalRunState(state string) bool {
	switch state {
	case "completed", "failed", "blocked", "cancelled":
		return true
	}
	return false
}

// runTally counts roster runs by whether they are blocked on the user.
func (sb StatusBarModel) runTally() (active, waiting int) {
	for _, state := range sb.runs {
		switch state {
		case "waiting_input", "waiting_approval":
			waiting++
		default:
			active++
		}
	}
	return active, waiting
}

// View renders the status bar as a single-line string spanning the full
// terminal width. Segments are left-aligned, separated by styled dividers.
// A "ctrl+g help" hint is right-aligned. If the total segment width exceeds
// the available width, rightmost optional segments are omitted to ensure the
// bar fits exactly in one line.
//
// Rendered format (approximate):
//
//	[chat] | Daemon {endpoint} | Session {id} | Runs {tally} | ctrl+g help
func (sb StatusBarModel) View() string {
	if sb.width <= 0 {
		return ""
	}

	sep := sb.theme.StatusSeparator.Render(" | ")

	// --- Build individual segment strings ---

	modeStr := sb.modeSegment()
	daemonStr := sb.daemonSegment()
	sessionStr := sb.sessionSegment()
	runsStr := sb.runsSegment()
	helpStr := sb.theme.HelpKey.Render("ctrl+g") + " " + sb.theme.HelpDesc.Render("help")

	// Mandatory segments (always shown if they fit): mode + runs.
	// Optional segments (hidden first when narrow): daemon, session.
	type segment struct {
		text     string
		optional bool
	}

	segments := []segment{
		{text: modeStr, optional: false},
		{text: sep + daemonStr, optional: true},
		{text: sep + sessionStr, optional: true},
		{text: sep + runsStr, optional: false},
	}

	// StatusBar theme style has Padding(0,1), i.e. 1 column on each side = 2
	// total columns consumed by padding. We pass Width(innerWidth) to lipgloss
	// so it pads the content to innerWidth and then adds the 1+1 = 2 padding
	// columns, giving a total rendered width of sb.width.
	const barPadding = 2
	innerWidth := sb.width - barPadding
	if innerWidth < 0 {
		innerWidth = 0
	}

	// Reserve space inside innerWidth for the right-aligned help hint
	// (including its leading separator).
	helpSepStr := sep + helpStr
	helpSegWidth := lipgloss.Width(helpSepStr)

	// Compute mandatory-only width to know how much optional budget we have.
	mandatoryWidth := 0
	for _, seg := range segments {
		if !seg.optional {
			mandatoryWidth += lipgloss.Width(seg.text)
		}
	}

	// Budget available for optional segments (between mandatory content and help hint).
	optionalBudget := innerWidth - mandatoryWidth - helpSegWidth
	if optionalBudget < 0 {
		optionalBudget = 0
	}

	// Build the ordered segment list: always include mandatory segments,
	// greedily include optional segments while they fit within optionalBudget.
	var leftParts []string
	optionalUsed := 0

	for _, seg := range segments {
		w := lipgloss.Width(seg.text)
		if !seg.optional {
			// Mandatory: always include.
			leftParts = append(leftParts, seg.text)
		} else if optionalUsed+w <= optionalBudget {
			// Optional: include only if it fits within the optional budget.
			leftParts = append(leftParts, seg.text)
			optionalUsed += w
		}
		// Optional segments that exceed the budget are skipped.
	}

	leftContent := strings.Join(leftParts, "")

	// Fill the gap between the left content and the right-aligned hint.
	leftWidth := lipgloss.Width(leftContent)
	gap := innerWidth - leftWidth - helpSegWidth
	if gap < 0 {
		gap = 0
	}
	padding := strings.Repeat(" ", gap)

	// Compose full bar content.
	barContent := leftContent + padding + helpSepStr

	// Apply the StatusBar style. Width(sb.width) sets the total rendered width
	// (lipgloss uses the border-box model where Width includes padding).
	// With Padding(0,1) the content area is sb.width-2, which matches innerWidth.
	// MaxHeight(1) ensures no line wrapping.
	return sb.theme.StatusBar.
		Width(sb.width).
		MaxHeight(1).
		Render(barContent)
}

// modeSegment returns the styled mode label: "[chat]" normally, "[thinking]"
// while an agent reply is pending. When the daemon connection is gone it
// returns a prominent "OFFLINE" indicator instead.
func (sb StatusBarModel) modeSegment() string {
	if sb.offline {
		offlineStyle := lipgloss.NewStyle().
			Bold(true).
			Background(ColorError).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1)
		return offlineStyle.Render("OFFLINE")
	}

	label := "chat"
	if sb.waiting {
		label = "thinking"
	}
	return sb.theme.StatusKey.Render("[" + label + "]")
}

// daemonSegment returns the styled daemon endpoint label.
func (sb StatusBarModel) daemonSegment() string {
	endpoint := sb.endpoint
	if endpoint == "" {
		endpoint = "--"
	}
	return sb.theme.StatusKey.Render("Daemon") + " " + sb.theme.StatusValue.Render(endpoint)
}

// sessionSegment returns the styled session label, shortened to the first
// UUID group to keep the bar compact.
func (sb StatusBarModel) sessionSegment() string {
	return sb.theme.StatusKey.Render("Session") + " " +
		sb.theme.StatusValue.Render(shortSession(sb.session))
}

// shortSession truncates a session id to its first 8 characters.
func shortSession(id string) string {
	if id == "" {
		return "--"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// runsSegment returns the styled run tally.
// Returns "Runs --" when no live runs are tracked.
func (sb StatusBarModel) runsSegment() string {
	active, waiting := sb.runTally()
	if active+waiting == 0 {
		return sb.theme.StatusKey.Render("Runs") + " " + sb.theme.StatusValue.Render("--")
	}

	text := fmt.Sprintf("%d active", active)
	if waiting > 0 {
		text = fmt.Sprintf("%d active, %d waiting", active, waiting)
	}
	return sb.theme.StatusKey.Render("Runs") + " " + sb.theme.StatusValue.Render(text)
}
