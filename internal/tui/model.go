// Package tui is the full-screen bubbletea front end.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"Storyteller/internal/chatclient"
	"Storyteller/internal/command"
	"Storyteller/internal/config"
	"Storyteller/internal/render"
	"Storyteller/internal/session"
)

// Client is the chat controller as seen by the TUI.
type Client interface {
	Start(ctx context.Context) error
	SendMessage(ctx context.Context, text string) error
	Controls() chatclient.Controls
}

// Commands runs slash commands.
type Commands interface {
	Run(ctx context.Context, line string) (command.Result, error)
}

const (
	placeholderActive   = "Type your reply, or /help for commands"
	placeholderInactive = "Press Ctrl+S to start an adventure (or type /help)"
	keyHelp             = "ctrl+s start • ctrl+t/l/n target/level/native • esc cancel • ctrl+c quit"
)

type startDoneMsg struct{ err error }

type sendDoneMsg struct{ err error }

type commandDoneMsg struct {
	res command.Result
	err error
}

// Model is the bubbletea model. It mirrors what the controller emits through View.
type Model struct {
	ctx      context.Context
	client   Client
	cmds     Commands
	settings *config.Settings
	view     *View
	logger   *slog.Logger
	styles   Styles

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	nodes    []render.Node
	statuses map[string]session.Status
	controls chatclient.Controls
	title    string
	info     string
	cancel   context.CancelFunc

	width  int
	height int
	ready  bool
}

// NewModel wires a model to a controller. view must be the View the controller
// was constructed with.
func NewModel(ctx context.Context, client Client, cmds Commands, settings *config.Settings, view *View, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}

	ti := textinput.New()
	ti.Placeholder = placeholderInactive
	ti.CharLimit = 2000
	ti.Prompt = "> "

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:      ctx,
		client:   client,
		cmds:     cmds,
		settings: settings,
		view:     view,
		logger:   logger,
		styles:   DefaultStyles(),
		input:    ti,
		spinner:  sp,
		statuses: make(map[string]session.Status),
		controls: client.Controls(),
	}
}

// Run starts the program and blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	m.view.Close()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.view.wait())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case startDoneMsg:
		m.finishRequest()
		m.setInfo(describeError(msg.err))
		return m, nil

	case sendDoneMsg:
		m.finishRequest()
		m.setInfo(describeError(msg.err))
		return m, nil

	case commandDoneMsg:
		m.finishRequest()
		if msg.err != nil {
			m.setInfo(describeError(msg.err))
		} else {
			m.setInfo(msg.res.Output)
		}
		if msg.res.Quit {
			m.shutdown()
			return m, tea.Quit
		}
		if !m.controls.InputEnabled {
			m.input.Blur()
		}
		return m, nil

	case appendMsg, statusMsg, clearMsg, controlsMsg, titleMsg, clearInputMsg, focusMsg, scrollMsg:
		cmd := m.apply(msg)
		return m, tea.Batch(cmd, m.view.wait())
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.shutdown()
		return m, tea.Quit

	case "esc":
		if m.cancel != nil {
			m.cancel()
			return m, nil
		}
		if !m.controls.InputEnabled {
			m.input.Reset()
			m.input.Blur()
		}
		m.setInfo("")
		return m, nil

	case "ctrl+s":
		if m.busy() || !m.controls.StartEnabled {
			return m, nil
		}
		ctx := m.beginRequest()
		client := m.client
		return m, func() tea.Msg { return startDoneMsg{err: client.Start(ctx)} }

	case "ctrl+t":
		return m.cycle(config.FieldTarget)
	case "ctrl+l":
		return m.cycle(config.FieldLevel)
	case "ctrl+n":
		return m.cycle(config.FieldNative)

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case "enter":
		return m.submit()
	}

	if !m.acceptsTyping(msg) {
		return m, nil
	}
	var focusCmd tea.Cmd
	if !m.input.Focused() {
		focusCmd = m.input.Focus()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, tea.Batch(focusCmd, cmd)
}

// acceptsTyping reports whether a key should reach the input. With no session the
// input only takes slash commands.
func (m Model) acceptsTyping(msg tea.KeyMsg) bool {
	if m.busy() {
		return false
	}
	if m.controls.InputEnabled {
		return true
	}
	value := m.input.Value()
	if strings.HasPrefix(value, "/") {
		return true
	}
	return value == "" && msg.Type == tea.KeyRunes && len(msg.Runes) > 0 && msg.Runes[0] == '/'
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.busy() {
		return m, nil
	}
	value := m.input.Value()

	if command.IsCommand(value) {
		m.input.Reset()
		ctx := m.beginRequest()
		cmds := m.cmds
		return m, func() tea.Msg {
			res, err := cmds.Run(ctx, value)
			return commandDoneMsg{res: res, err: err}
		}
	}

	if !m.controls.SendEnabled || strings.TrimSpace(value) == "" {
		return m, nil
	}
	ctx := m.beginRequest()
	client := m.client
	return m, func() tea.Msg { return sendDoneMsg{err: client.SendMessage(ctx, value)} }
}

func (m Model) cycle(field string) (tea.Model, tea.Cmd) {
	sel, err := m.settings.Cycle(field)
	if err != nil {
		m.setInfo(describeError(err))
		return m, nil
	}
	m.logger.Debug("selection changed", "field", field, "selection", sel)
	m.setInfo("")
	return m, nil
}

// busy reports whether a request is in flight. m.controls trails the controller
// by at least one message, so a pending cancel func also counts.
func (m Model) busy() bool {
	return m.cancel != nil || m.controls.Loading
}

// beginRequest must only be called when busy is false; it owns the single
// in-flight cancel func.
func (m *Model) beginRequest() context.Context {
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.setInfo("")
	return ctx
}

func (m *Model) finishRequest() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Model) shutdown() {
	m.finishRequest()
	m.view.Close()
}

// apply mirrors one controller event into the model.
func (m *Model) apply(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case appendMsg:
		m.nodes = append(m.nodes, msg.node)
		m.refresh()
	case statusMsg:
		m.statuses[msg.id] = msg.status
		m.refresh()
	case clearMsg:
		m.nodes = nil
		clear(m.statuses)
		m.refresh()
	case controlsMsg:
		m.controls = msg.controls
		if m.controls.InputEnabled {
			m.input.Placeholder = placeholderActive
		} else {
			m.input.Placeholder = placeholderInactive
			if !strings.HasPrefix(m.input.Value(), "/") || m.controls.Loading {
				m.input.Blur()
			}
		}
	case titleMsg:
		m.title = msg.title
	case clearInputMsg:
		m.input.Reset()
	case focusMsg:
		cmd = m.input.Focus()
	case scrollMsg:
		if m.ready {
			m.viewport.GotoBottom()
		}
	}
	return cmd
}

func (m *Model) setInfo(info string) {
	m.info = info
	m.layout()
}

func (m *Model) resize(width, height int) {
	m.width = max(width, 0)
	m.height = max(height, 0)
	if !m.ready {
		m.viewport = viewport.New(m.width, 0)
		m.ready = true
	}
	m.input.Width = max(m.width-6, 1)
	m.layout()
}

// layout sizes the viewport to what is left after header, input and footer.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	used := 2 + 3 + 1 // header lines, bordered input, footer
	if m.info != "" {
		used += lipgloss.Height(m.info)
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-used, 1)
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory())
}

func (m Model) renderHistory() string {
	var b strings.Builder
	for _, n := range m.nodes {
		b.WriteString(m.label(n.Message.Role))
		b.WriteString("\n")

		body := strings.TrimRight(n.Display(), "\n")
		status := n.Message.Status
		if s, ok := m.statuses[n.Message.ID]; ok {
			status = s
		}
		if status == session.StatusFailed {
			body += " " + m.styles.Failed.Render("(not delivered)")
		}
		b.WriteString(m.styles.Body.Render(body))
		b.WriteString("\n\n")
	}
	return b.String()
}

func (m Model) label(role session.Role) string {
	switch role {
	case session.RoleAgent:
		return m.styles.AgentLabel.Render("Storyteller")
	case session.RoleUser:
		return m.styles.UserLabel.Render("You")
	default:
		return m.styles.SystemLabel.Render("System")
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	title := m.title
	if title == "" {
		title = "Storyteller"
	}
	sel := m.settings.Get()
	header := lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		m.styles.Settings.Render(fmt.Sprintf("%s • %s • %s", sel.TargetLanguage, sel.Level, sel.NativeLanguage)),
	)

	parts := []string{header, m.viewport.View()}
	if m.info != "" {
		parts = append(parts, m.styles.Info.Render(m.info))
	}
	parts = append(parts, m.styles.Input.Width(max(m.width-2, 1)).Render(m.input.View()))

	footer := keyHelp
	if m.controls.Loading {
		footer = m.spinner.View() + " " + m.controls.StartLabel + "  " + keyHelp
	}
	parts = append(parts, m.styles.Footer.Render(footer))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func describeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	case errors.Is(err, chatclient.ErrBusy):
		return "Still waiting for the previous reply."
	case errors.Is(err, chatclient.ErrNoSession):
		return "Start an adventure first (Ctrl+S)."
	case errors.Is(err, chatclient.ErrStartFailed),
		errors.Is(err, chatclient.ErrSendFailed),
		errors.Is(err, chatclient.ErrEmptyMessage),
		errors.Is(err, chatclient.ErrStaleSession):
		return ""
	default:
		return "Error: " + err.Error()
	}
}
