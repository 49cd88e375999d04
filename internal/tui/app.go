// Package tui implements the interactive chat interface built on Bubble Tea.
// The app model composes a transcript view, input area, runs panel, and
// status bar, and bridges daemon events from the IPC client into Bubble Tea
// messages.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ferretbot/ferretbot/internal/ipc"
	"github.com/ferretbot/ferretbot/internal/logging"
)

// Config holds everything the chat TUI needs from the CLI layer.
type Config struct {
	// Client is the established daemon connection. The TUI reads events from
	// it and writes user input to it; it does not own the connection.
	Client *ipc.Client
	// Endpoint is the human-readable daemon address shown in the title and
	// status bars (e.g. ".ferretbot/daemon.sock").
	Endpoint string
	// Version is the FerretBot semantic version string (e.g. "0.3.0").
	Version string
}

// App is the top-level Bubble Tea model for the FerretBot chat client.
// It implements tea.Model (Init, Update, View) and owns the transcript,
// the input textarea, the runs panel, the status bar, and the help overlay.
//
// Daemon events reach Update as typed messages through the event pump
// (see waitForEvent); every handled pump message re-arms the pump so the
// stream keeps draining.
type App struct {
	cfg       Config
	theme     Theme
	keyMap    KeyMap
	layout    Layout
	sessionID string

	ready    bool // true after first WindowSizeMsg
	quitting bool
	offline  bool
	waiting  bool // a user message is awaiting an agent reply

	// pendingPrompt holds the text of the last wait-for-input prompt. The
	// engine mirrors each prompt as a regular agent response so plain
	// clients see it; the transcript already shows the prompt entry, so the
	// mirror copy is swallowed when it arrives.
	pendingPrompt string

	transcript TranscriptModel
	input      textarea.Model
	spin       spinner.Model
	statusBar  StatusBarModel
	runsPanel  RunsPanelModel
	help       HelpOverlay
}

// NewApp constructs an App wired to the given daemon connection. The input
// textarea starts focused; the runs panel starts hidden.
func NewApp(cfg Config) App {
	theme := DefaultTheme()
	keyMap := DefaultKeyMap()

	input := textarea.New()
	input.Placeholder = "Type a message..."
	input.ShowLineNumbers = false
	input.SetHeight(1)
	input.CharLimit = 4000
	input.KeyMap.InsertNewline.SetEnabled(false)
	input.Focus()

	spin := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.Spinner),
	)

	sessionID := ""
	if cfg.Client != nil {
		sessionID = cfg.Client.SessionID()
	}

	transcript := NewTranscriptModel(theme)
	transcript.AddEntry(RoleSystem,
		fmt.Sprintf("connected to %s (session %s)", cfg.Endpoint, shortSession(sessionID)))

	return App{
		cfg:        cfg,
		theme:      theme,
		keyMap:     keyMap,
		layout:     NewLayout(),
		sessionID:  sessionID,
		transcript: transcript,
		input:      input,
		spin:       spin,
		statusBar:  NewStatusBarModel(theme, cfg.Endpoint, sessionID),
		runsPanel:  NewRunsPanelModel(theme),
		help:       NewHelpOverlay(theme, keyMap),
	}
}

// Init starts the cursor blink and arms the daemon event pump.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink}
	if a.cfg.Client != nil {
		cmds = append(cmds, waitForEvent(a.cfg.Client))
	}
	return tea.Batch(cmds...)
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

// Update dispatches incoming messages and returns the updated model plus any
// follow-up command. Terminal events (resize, keys, mouse) are handled first;
// bridged daemon messages update the affected sub-models and re-arm the event
// pump. Anything else falls through to the textarea so cursor blinking keeps
// working.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.ready = true
		a.applyResize(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.MouseMsg:
		a.transcript = a.transcript.Update(msg)
		return a, nil

	case spinner.TickMsg:
		if !a.waiting {
			return a, nil
		}
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case AgentResponseMsg:
		return a.handleAgentResponse(msg)

	case RunQueuedMsg:
		a.transcript = a.transcript.Update(msg)
		a.statusBar = a.statusBar.Update(msg)
		a.runsPanel = a.runsPanel.Update(msg)
		return a, a.rearm()

	case RunCompleteMsg:
		a.setWaiting(false)
		a.transcript = a.transcript.Update(msg)
		a.statusBar = a.statusBar.Update(msg)
		a.runsPanel = a.runsPanel.Update(msg)
		return a, a.rearm()

	case NeedsInputMsg:
		a.setWaiting(false)
		a.pendingPrompt = msg.Prompt
		a.transcript = a.transcript.Update(msg)
		a.statusBar = a.statusBar.Update(msg)
		a.runsPanel = a.runsPanel.Update(msg)
		return a, a.rearm()

	case NeedsApprovalMsg:
		a.setWaiting(false)
		a.transcript = a.transcript.Update(msg)
		a.statusBar = a.statusBar.Update(msg)
		a.runsPanel = a.runsPanel.Update(msg)
		return a, a.rearm()

	case CommandResultMsg:
		a.statusBar = a.statusBar.Update(msg)
		a.runsPanel = a.runsPanel.Update(msg)
		return a, a.rearm()

	case DaemonEventMsg:
		// Step-level events and our own echoed input; nothing to render.
		return a, a.rearm()

	case ConnectionLostMsg:
		a.offline = true
		a.setWaiting(false)
		a.transcript = a.transcript.Update(msg)
		a.statusBar = a.statusBar.Update(msg)
		// The stream is closed; do not re-arm the pump.
		return a, nil

	case SendFailedMsg:
		a.setWaiting(false)
		a.transcript = a.transcript.Update(msg)
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// handleKey routes key presses. While the help overlay is visible it consumes
// every key; otherwise global bindings are checked before the key reaches the
// textarea.
func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.help.IsVisible() {
		var cmd tea.Cmd
		a.help, cmd = a.help.Update(msg)
		return a, cmd
	}

	switch {
	case key.Matches(msg, a.keyMap.Quit):
		a.quitting = true
		return a, tea.Quit

	case key.Matches(msg, a.keyMap.Help):
		a.help.Toggle()
		return a, nil

	case key.Matches(msg, a.keyMap.ToggleRuns):
		visible := a.runsPanel.Toggle()
		w, h := a.layout.TerminalSize()
		a.applyResize(w, h)
		if visible && a.cfg.Client != nil && !a.offline {
			return a, requestRunListCmd(a.cfg.Client)
		}
		return a, nil

	case key.Matches(msg, a.keyMap.Send):
		return a.handleSend()

	case key.Matches(msg, a.keyMap.ClearInput):
		a.input.Reset()
		return a, nil

	case key.Matches(msg, a.keyMap.ScrollUp), key.Matches(msg, a.keyMap.ScrollDown):
		a.transcript = a.transcript.Update(msg)
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// handleSend posts the trimmed input text to the daemon and echoes it into
// the transcript. Empty input is ignored. When offline the message is not
// sent and an error entry explains why.
func (a App) handleSend() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(a.input.Value())
	if text == "" {
		return a, nil
	}

	a.transcript.AddEntry(RoleUser, text)
	a.input.Reset()
	a.pendingPrompt = ""

	if a.offline || a.cfg.Client == nil {
		a.transcript.AddEntry(RoleError, "not connected; message not sent")
		return a, nil
	}

	a.setWaiting(true)
	return a, tea.Batch(sendInputCmd(a.cfg.Client, text), a.spin.Tick)
}

// handleAgentResponse filters and displays an agent reply. Replies addressed
// to other sessions are dropped, and the engine's mirror copy of a pending
// wait-for-input prompt is swallowed.
func (a App) handleAgentResponse(msg AgentResponseMsg) (tea.Model, tea.Cmd) {
	cmd := a.rearm()

	if a.sessionID != "" && msg.SessionID != "" && msg.SessionID != a.sessionID {
		return a, cmd
	}

	if a.pendingPrompt != "" && msg.Text == a.pendingPrompt {
		a.pendingPrompt = ""
		return a, cmd
	}

	a.setWaiting(false)
	a.transcript.addEntryAt(RoleAgent, msg.Text, msg.Timestamp)
	return a, cmd
}

// setWaiting updates the waiting flag on the app and the status bar together.
func (a *App) setWaiting(waiting bool) {
	a.waiting = waiting
	a.statusBar.SetWaiting(waiting)
}

// rearm returns the next event pump command, or nil once the connection is
// gone.
func (a App) rearm() tea.Cmd {
	if a.cfg.Client == nil || a.offline {
		return nil
	}
	return waitForEvent(a.cfg.Client)
}

// applyResize recomputes the layout for the given terminal size and pushes
// the resulting dimensions into every sub-model. When the terminal is too
// small the sub-models keep their previous dimensions; View falls back to
// RenderTooSmall.
func (a *App) applyResize(width, height int) {
	if !a.layout.Resize(width, height, a.runsPanel.IsVisible()) {
		return
	}

	// TranscriptContainer pads one column on each side.
	a.transcript.SetDimensions(a.layout.Transcript.Width-2, a.layout.Transcript.Height)
	a.runsPanel.SetDimensions(a.layout.RunsPanel.Width, a.layout.RunsPanel.Height)
	a.input.SetWidth(a.layout.Input.Width)
	a.statusBar.SetWidth(a.layout.StatusBar.Width)
	a.help.SetDimensions(width, height)
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

// View renders the complete UI as a string.
//
// Rendering logic:
//   - If quitting, return an empty string to clear the screen on exit.
//   - If not yet ready (no WindowSizeMsg received), show an initializing message.
//   - If the terminal is too small, show a resize warning.
//   - If the help overlay is open, it replaces the whole frame.
//   - Otherwise, render the full chat layout.
func (a App) View() string {
	if a.quitting {
		return ""
	}

	if !a.ready {
		return "Initializing FerretBot..."
	}

	if a.layout.IsTooSmall() {
		return a.layout.RenderTooSmall(a.theme)
	}

	if a.help.IsVisible() {
		return a.help.View()
	}

	return a.fullView()
}

// fullView assembles the five panels through the layout.
func (a App) fullView() string {
	titleBar := a.renderTitleBar()
	transcript := a.theme.TranscriptContainer.Render(a.transcript.View())
	runs := a.runsPanel.View()
	input := a.renderInput()
	status := a.statusBar.View()

	return a.layout.Render(titleBar, transcript, runs, input, status)
}

// renderTitleBar builds a full-width title bar showing the FerretBot version
// and the daemon endpoint.
func (a App) renderTitleBar() string {
	title := fmt.Sprintf("FerretBot v%s — Chat", a.cfg.Version)
	if a.cfg.Endpoint != "" {
		title = fmt.Sprintf("%s  |  %s", title, a.cfg.Endpoint)
	}

	return a.theme.TitleBar.
		Width(a.layout.TitleBar.Width).
		Render(title)
}

// renderInput builds the input area: the textarea above a hint line that
// turns into a spinner while an agent reply is pending.
func (a App) renderInput() string {
	hint := a.theme.MutedText.Render("enter to send, ctrl+g for help")
	if a.waiting {
		hint = a.spin.View() + " " + a.theme.MutedText.Render("waiting for agent...")
	}

	body := lipgloss.JoinVertical(lipgloss.Left, a.input.View(), hint)

	return a.theme.InputContainer.
		Width(a.layout.Input.Width).
		Render(body)
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// Run creates a tea.Program configured for full-screen rendering with
// cell-motion mouse support, runs it, and returns any error encountered.
//
// Use tea.WithMouseCellMotion (not WithMouseAllMotion) so that the user can
// still select and copy text from the terminal.
func Run(cfg Config) error {
	logger := logging.New("tui")
	logger.Info("starting chat TUI", "endpoint", cfg.Endpoint, "version", cfg.Version)

	p := tea.NewProgram(
		NewApp(cfg),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}

	return nil
}
