package tui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ferretbot/ferretbot/internal/bus"
)

// runEntry holds the display data for a single workflow run in the panel.
type runEntry struct {
	WorkflowID string
	State      string
}

// RunsPanelModel is the Bubble Tea sub-model for the collapsible run roster
// shown to the right of the transcript. It tracks every run observed during
// the session, including finished ones, so the user can see where a run
// ended up without leaving the chat.
//
// The panel starts hidden; the parent App toggles it with ctrl+r and
// requests a full run list from the daemon when it becomes visible.
type RunsPanelModel struct {
	theme   Theme
	width   int
	height  int
	visible bool

	runs map[int]runEntry
}

// NewRunsPanelModel creates a hidden RunsPanelModel with an empty roster.
func NewRunsPanelModel(theme Theme) RunsPanelModel {
	return RunsPanelModel{
		theme: theme,
		runs:  make(map[int]runEntry),
	}
}

// Toggle flips the panel visibility and reports the new state.
func (m *RunsPanelModel) Toggle() bool {
	m.visible = !m.visible
	return m.visible
}

// IsVisible reports whether the panel is currently shown.
func (m RunsPanelModel) IsVisible() bool {
	return m.visible
}

// SetDimensions updates the panel size. This should be called whenever the
// parent App processes a tea.WindowSizeMsg or the panel is toggled.
func (m *RunsPanelModel) SetDimensions(width, height int) {
	m.width = width
	m.height = height
}

// RunCount returns the number of tracked runs.
func (m RunsPanelModel) RunCount() int {
	return len(m.runs)
}

// Update processes incoming tea.Msg values and returns the updated model.
//
// Handled messages:
//   - RunQueuedMsg      — adds the run with its workflow id
//   - NeedsInputMsg     — marks the run as waiting for input
//   - NeedsApprovalMsg  — marks the run as waiting for approval
//   - RunCompleteMsg    — records the final state
//   - CommandResultMsg  — replaces the roster from a run list reply
func (m RunsPanelModel) Update(msg tea.Msg) RunsPanelModel {
	switch msg := msg.(type) {
	case RunQueuedMsg:
		m.runs[msg.RunID] = runEntry{WorkflowID: msg.WorkflowID, State: "queued"}

	case NeedsInputMsg:
		m = m.setState(msg.RunID, "waiting_input")

	case NeedsApprovalMsg:
		m = m.setState(msg.RunID, "waiting_approval")

	case RunCompleteMsg:
		entry := m.runs[msg.RunID]
		if entry.WorkflowID == "" {
			entry.WorkflowID = msg.WorkflowID
		}
		entry.State = msg.State
		m.runs[msg.RunID] = entry

	case CommandResultMsg:
		if msg.Result != nil && msg.Result.Command == bus.EventRunList && msg.Result.OK {
			m = m.rebuildFromList(msg.Result.Data)
		}
	}

	return m
}

// setState updates the state of a known run, preserving its workflow id.
// Runs first observed through a waiting event get an empty workflow id until
// a run list reply fills it in.
func (m RunsPanelModel) setState(runID int, state string) RunsPanelModel {
	entry := m.runs[runID]
	entry.State = state
	m.runs[runID] = entry
	return m
}

// rebuildFromList replaces the roster with the contents of a run list reply.
// Unlike the status bar, terminal runs are kept so the panel doubles as a
// session history.
func (m RunsPanelModel) rebuildFromList(data map[string]any) RunsPanelModel {
	raw, _ := data["runs"].([]any)
	runs := make(map[int]runEntry, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := contentInt(entry, "runId")
		if !ok {
			continue
		}
		workflow, _ := entry["workflowId"].(string)
		state, _ := entry["state"].(string)
		runs[id] = runEntry{WorkflowID: workflow, State: state}
	}
	m.runs = runs
	return m
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

// View renders the panel sized to the configured width and height. Runs are
// listed in ascending id order, one line each, with the state appended when
// it fits. Returns an empty string when the panel is hidden.
func (m RunsPanelModel) View() string {
	if !m.visible || m.width <= 0 || m.height <= 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(m.theme.RunsTitle.Render("Runs"))
	sb.WriteString("\n")

	if len(m.runs) == 0 {
		sb.WriteString(m.theme.RunsItem.Render("no runs"))
	} else {
		ids := make([]int, 0, len(m.runs))
		for id := range m.runs {
			ids = append(ids, id)
		}
		sort.Ints(ids)

		// Header consumes one row; cap the list to the remaining height.
		maxRows := m.height - 1
		if len(ids) > maxRows && maxRows > 0 {
			ids = ids[len(ids)-maxRows:]
		}

		// RunsContainer adds a left border and one column of padding.
		innerWidth := m.width - 2
		for i, id := range ids {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(m.runLine(id, m.runs[id], innerWidth))
		}
	}

	content := sb.String()

	innerWidth := m.width - 2
	if innerWidth < 0 {
		innerWidth = 0
	}
	return m.theme.RunsContainer.
		Width(innerWidth).
		Height(m.height).
		Render(content)
}

// runLine formats one roster row as "● #3 name state", truncating the
// workflow name so the state suffix keeps its room.
func (m RunsPanelModel) runLine(id int, entry runEntry, width int) string {
	indicator := m.theme.StateIndicator(entry.State)
	idLabel := fmt.Sprintf("#%d", id)
	suffix := " " + entry.State

	// indicator + space + id + space consume fixed columns.
	nameAllowed := width - 2 - lipgloss.Width(idLabel) - 1 - lipgloss.Width(suffix)
	if nameAllowed < 1 {
		nameAllowed = 1
	}

	name := entry.WorkflowID
	if name == "" {
		name = "?"
	}
	name = truncateName(name, nameAllowed)

	line := idLabel + " " + name + m.theme.MutedText.Render(suffix)
	return indicator + " " + m.theme.RunsItem.Render(line)
}

// truncateName truncates name to fit within maxWidth visible columns.
// If the name is wider it is shortened and an ellipsis "…" (1 column wide) is
// appended. If maxWidth <= 0 an empty string is returned.
func truncateName(name string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	w := lipgloss.Width(name)
	if w <= maxWidth {
		return name
	}
	// Walk runes until we consume maxWidth-1 columns (leave room for "…").
	target := maxWidth - 1
	var sb strings.Builder
	col := 0
	for _, r := range name {
		rw := lipgloss.Width(string(r))
		if col+rw > target {
			break
		}
		sb.WriteRune(r)
		col += rw
	}
	sb.WriteString("…")
	return sb.String()
}
