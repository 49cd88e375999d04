package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// MaxTranscriptEntries is the maximum number of entries retained in the
// transcript. When the buffer is full the oldest entry is evicted to make
// room.
const MaxTranscriptEntries = 500

// entryPrefixWidth is the column budget for "HH:MM:SS label " ahead of the
// wrapped entry text.
const entryPrefixWidth = 16

// ---------------------------------------------------------------------------
// Entry
// ---------------------------------------------------------------------------

// Entry is a single message in the transcript ring buffer.
type Entry struct {
	// Timestamp records when the message arrived.
	Timestamp time.Time
	// Role classifies the entry for display purposes.
	Role Role
	// Text is the message body.
	Text string
}

// ---------------------------------------------------------------------------
// TranscriptModel
// ---------------------------------------------------------------------------

// TranscriptModel is the Bubble Tea sub-model for the scrollable conversation
// area of the chat screen. It maintains a bounded ring buffer of Entry values
// and drives a bubbles/viewport for display.
//
// TranscriptModel follows Bubble Tea's Elm architecture: Update returns a new
// value, and View is a pure function of the model state.
type TranscriptModel struct {
	theme      Theme
	width      int
	height     int
	entries    []Entry
	viewport   viewport.Model
	autoScroll bool
}

// NewTranscriptModel creates a TranscriptModel with auto-scroll enabled and
// an empty buffer.
func NewTranscriptModel(theme Theme) TranscriptModel {
	return TranscriptModel{
		theme:      theme,
		autoScroll: true,
		viewport:   viewport.New(0, 0),
	}
}

// SetDimensions updates the panel width and height and resizes the internal
// viewport, re-wrapping existing entries at the new width.
func (tr *TranscriptModel) SetDimensions(width, height int) {
	tr.width = width
	tr.height = height
	tr.viewport.Width = width
	tr.viewport.Height = height
	tr.rebuildContent()
}

// EntryCount returns the number of buffered entries.
func (tr TranscriptModel) EntryCount() int {
	return len(tr.entries)
}

// AddEntry appends a message stamped with the current time.
func (tr *TranscriptModel) AddEntry(role Role, text string) {
	tr.addEntryAt(role, text, time.Now())
}

// addEntryAt appends a message with an explicit timestamp. When the buffer
// exceeds MaxTranscriptEntries the oldest entry is evicted. The viewport
// content is rebuilt after every insertion and, when autoScroll is enabled,
// the viewport is scrolled to the bottom.
func (tr *TranscriptModel) addEntryAt(role Role, text string, ts time.Time) {
	tr.entries = append(tr.entries, Entry{
		Timestamp: ts,
		Role:      role,
		Text:      text,
	})

	if len(tr.entries) > MaxTranscriptEntries {
		tr.entries = tr.entries[len(tr.entries)-MaxTranscriptEntries:]
	}

	tr.rebuildContent()
}

// rebuildContent replaces the viewport content with all formatted entries
// joined by newlines, then auto-scrolls if enabled.
func (tr *TranscriptModel) rebuildContent() {
	if len(tr.entries) == 0 {
		tr.viewport.SetContent("")
		return
	}

	lines := make([]string, len(tr.entries))
	for i, e := range tr.entries {
		lines[i] = tr.formatEntry(e)
	}
	tr.viewport.SetContent(strings.Join(lines, "\n"))

	if tr.autoScroll {
		tr.viewport.GotoBottom()
	}
}

// formatEntry renders a single Entry as "HH:MM:SS label  text" with the text
// wrapped to the remaining width. Continuation lines align under the text
// column.
func (tr TranscriptModel) formatEntry(entry Entry) string {
	ts := tr.theme.EntryTime.Render(entry.Timestamp.Format("15:04:05"))
	label := tr.roleStyle(entry.Role).Render(fmt.Sprintf("%-6s", entry.Role.String()))
	prefix := ts + " " + label + " "

	textWidth := tr.width - entryPrefixWidth
	if textWidth < 10 {
		textWidth = 10
	}
	text := tr.textStyle(entry.Role).Width(textWidth).Render(entry.Text)

	return lipgloss.JoinHorizontal(lipgloss.Top, prefix, text)
}

// roleStyle returns the label style for the given role.
func (tr TranscriptModel) roleStyle(role Role) lipgloss.Style {
	switch role {
	case RoleUser:
		return tr.theme.UserLabel
	case RoleAgent:
		return tr.theme.AgentLabel
	case RolePrompt:
		return tr.theme.PromptLabel
	case RoleError:
		return tr.theme.ErrorLabel
	default: // RoleSystem
		return tr.theme.SystemLabel
	}
}

// textStyle returns the body style for the given role.
func (tr TranscriptModel) textStyle(role Role) lipgloss.Style {
	switch role {
	case RolePrompt:
		return tr.theme.PromptText
	case RoleError:
		return tr.theme.ErrorText
	case RoleSystem:
		return tr.theme.MutedText
	default:
		return tr.theme.EntryText
	}
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

// Update processes incoming tea.Msg values and returns the updated model.
//
// Handled messages:
//   - RunQueuedMsg       — system notice
//   - RunCompleteMsg     — system notice, or error entry when the run failed
//   - NeedsInputMsg      — prompt entry asking for the user's next message
//   - NeedsApprovalMsg   — prompt entry naming the resume command
//   - SendFailedMsg      — error entry
//   - ConnectionLostMsg  — error entry
//   - tea.KeyMsg (pgup/pgdown) and tea.MouseMsg — viewport scrolling
//
// User text and agent replies are appended by the App via AddEntry because
// they need app-level session filtering first.
func (tr TranscriptModel) Update(msg tea.Msg) TranscriptModel {
	switch msg := msg.(type) {
	case RunQueuedMsg:
		text := fmt.Sprintf("run %d queued (%s %s)", msg.RunID, msg.WorkflowID, msg.Version)
		tr.addEntryAt(RoleSystem, text, msg.Timestamp)

	case RunCompleteMsg:
		role := RoleSystem
		text := fmt.Sprintf("run %d %s", msg.RunID, msg.State)
		if msg.Failure != "" {
			role = RoleError
			text = fmt.Sprintf("run %d %s [%s]", msg.RunID, msg.State, msg.Failure)
		}
		tr.addEntryAt(role, text, msg.Timestamp)

	case NeedsInputMsg:
		text := fmt.Sprintf("run %d asks: %s", msg.RunID, msg.Prompt)
		tr.addEntryAt(RolePrompt, text, msg.Timestamp)

	case NeedsApprovalMsg:
		text := fmt.Sprintf("run %d is waiting for approval; release it with: ferretbot workflow resume %d",
			msg.RunID, msg.RunID)
		tr.addEntryAt(RolePrompt, text, msg.Timestamp)

	case SendFailedMsg:
		tr.AddEntry(RoleError, fmt.Sprintf("send failed: %v", msg.Err))

	case ConnectionLostMsg:
		tr.AddEntry(RoleError, "daemon connection lost")

	case tea.KeyMsg:
		tr = tr.handleKey(msg)

	case tea.MouseMsg:
		// The viewport handles wheel scrolling itself.
		var cmd tea.Cmd
		tr.viewport, cmd = tr.viewport.Update(msg)
		_ = cmd
		if tr.viewport.AtBottom() {
			tr.autoScroll = true
		} else {
			tr.autoScroll = false
		}
	}

	return tr
}

// handleKey routes paging keys to the viewport and manages the autoScroll
// flag. Line-level keys stay with the textarea, so only page movements are
// recognized here.
func (tr TranscriptModel) handleKey(msg tea.KeyMsg) TranscriptModel {
	switch msg.Type {
	case tea.KeyPgUp:
		tr.viewport.PageUp()
		tr.autoScroll = false

	case tea.KeyPgDown:
		tr.viewport.PageDown()
		if tr.viewport.AtBottom() {
			tr.autoScroll = true
		}

	default:
	}

	return tr
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

// View renders the transcript panel. It returns an empty string when
// dimensions have not been set. An empty buffer shows a short hint instead
// of a blank area.
func (tr TranscriptModel) View() string {
	if tr.width <= 0 || tr.height <= 0 {
		return ""
	}

	if len(tr.entries) == 0 {
		hint := tr.theme.MutedText.Render("No messages yet. Say hello, or start a workflow with 'ferretbot workflow run'.")
		return lipgloss.Place(tr.width, tr.height, lipgloss.Center, lipgloss.Center, hint)
	}

	return tr.viewport.View()
}
