// Package chatclient implements the chat controller: it owns the session, talks to
// the backend and drives a View.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"Storyteller/internal/backend"
	"Storyteller/internal/config"
	"Storyteller/internal/render"
	"Storyteller/internal/session"
)

// User-facing failure messages.
const (
	MsgStartFailed = "Error starting adventure. Please check if the backend is running."
	MsgSendFailed  = "Error sending message."
)

// Start control labels.
const (
	LabelStart   = "Start Adventure"
	LabelLoading = "Loading..."
)

var (
	ErrStartFailed      = errors.New("start failed")
	ErrSendFailed       = errors.New("send failed")
	ErrEmptyMessage     = errors.New("empty message")
	ErrNoSession        = errors.New("no active session")
	ErrBusy             = errors.New("a message is already being sent")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrStaleSession     = errors.New("reply belongs to a replaced session")
)

// Backend is the remote story service.
type Backend interface {
	Start(ctx context.Context, req backend.StartRequest) (*backend.StartResponse, error)
	Chat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error)
}

// Controls is the enabled state of the input widgets.
type Controls struct {
	StartEnabled bool
	SendEnabled  bool
	InputEnabled bool
	Loading      bool
	StartLabel   string
}

// View displays the conversation. Calls arrive serialized, possibly from a
// goroutine other than the UI's; implementations must not call back into Client.
type View interface {
	Append(node render.Node)
	SetStatus(messageID string, status session.Status)
	Clear()
	SetControls(c Controls)
	SetTitle(title string)
	ClearInput()
	FocusInput()
	ScrollToBottom()
}

// Recorder keeps an audit log of sessions and messages.
type Recorder interface {
	RecordSession(ctx context.Context, id string, sel config.Selection, startedAt time.Time) error
	RecordMessage(ctx context.Context, sessionID string, msg session.Message) error
	UpdateStatus(ctx context.Context, messageID string, status session.Status) error
}

// Client is the chat controller. The zero value is not usable; call New.
type Client struct {
	backend  Backend
	settings *config.Settings
	view     View
	logger   *slog.Logger
	recorder Recorder

	mu         sync.Mutex
	state      session.State
	markdown   render.Markdown
	transcript []session.Message
	title      string
	loading    int

	starts singleflight.Group
	sends  *semaphore.Weighted
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMarkdown installs a markdown renderer for agent and system messages.
func WithMarkdown(md render.Markdown) Option {
	return func(c *Client) { c.markdown = md }
}

// WithRecorder enables the audit log.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// New creates a client with no session.
func New(be Backend, settings *config.Settings, view View, opts ...Option) *Client {
	c := &Client{
		backend:  be,
		settings: settings,
		view:     view,
		state:    session.NoSession{},
		sends:    semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// SetMarkdown swaps the markdown renderer; nil disables markdown. It affects
// messages rendered after the call.
func (c *Client) SetMarkdown(md render.Markdown) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markdown = md
}

// State returns the current session state.
func (c *Client) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HasSession reports whether a session has been started.
func (c *Client) HasSession() bool {
	_, ok := session.ID(c.State())
	return ok
}

// Title returns the conversation title, empty before the first start.
func (c *Client) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

// Controls returns the current control state.
func (c *Client) Controls() Controls {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controlsLocked()
}

// Transcript returns the messages rendered since the last successful start.
func (c *Client) Transcript() []session.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.transcript)
}

// Start opens a new session with the current selection. Concurrent calls share
// one request and its result.
func (c *Client) Start(ctx context.Context) error {
	_, err, shared := c.starts.Do("start", func() (any, error) {
		return nil, c.start(ctx)
	})
	if shared {
		c.logger.Debug("start joined an in-flight request")
	}
	return err
}

func (c *Client) start(ctx context.Context) error {
	sel := c.settings.Get()
	if err := sel.Validate(); err != nil {
		c.logger.Warn("refusing to start with invalid selection", "error", err)
		return fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}

	c.beginLoading()
	resp, err := c.backend.Start(ctx, backend.StartRequest{
		TargetLanguage: sel.TargetLanguage,
		Level:          sel.Level,
		NativeLanguage: sel.NativeLanguage,
	})
	if err != nil {
		c.logger.Error("failed to start session",
			"error", err,
			"target_language", sel.TargetLanguage,
			"level", sel.Level,
			"native_language", sel.NativeLanguage)
		c.RenderMessage(session.RoleSystem, MsgStartFailed)
		c.endLoading()
		return fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	startedAt := time.Now()
	title := fmt.Sprintf("%s Adventure (%s)", sel.TargetLanguage, sel.Level)

	c.mu.Lock()
	c.state = session.Active{ID: resp.SessionID, StartedAt: startedAt}
	c.transcript = nil
	c.title = title
	c.view.Clear()
	c.view.SetTitle(title)
	c.mu.Unlock()

	c.logger.Info("session started", "session_id", resp.SessionID, "title", title)
	c.record(ctx, func(ctx context.Context, r Recorder) error {
		return r.RecordSession(ctx, resp.SessionID, sel, startedAt)
	})

	c.RenderMessage(session.RoleAgent, resp.Response)
	c.endLoading()
	return nil
}

// SendMessage sends one user turn. Empty text, a missing session or a send already
// in flight make it a no-op that returns ErrEmptyMessage, ErrNoSession or ErrBusy.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	sessionID, ok := session.ID(c.State())
	if !ok {
		return ErrNoSession
	}
	if !c.sends.TryAcquire(1) {
		return ErrBusy
	}
	defer c.sends.Release(1)

	userMsg := c.RenderMessage(session.RoleUser, text)
	c.mu.Lock()
	c.view.ClearInput()
	c.mu.Unlock()
	c.beginLoading()

	sel := c.settings.Get()
	resp, err := c.backend.Chat(ctx, backend.ChatRequest{
		SessionID:      sessionID,
		Message:        text,
		TargetLanguage: sel.TargetLanguage,
		Level:          sel.Level,
		NativeLanguage: sel.NativeLanguage,
	})
	if err != nil {
		c.logger.Error("failed to send message", "error", err, "session_id", sessionID)
		c.setStatus(ctx, userMsg.ID, session.StatusFailed)
		c.RenderMessage(session.RoleSystem, MsgSendFailed)
		c.endLoading()
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	c.setStatus(ctx, userMsg.ID, session.StatusDelivered)
	if current, _ := session.ID(c.State()); current != sessionID {
		c.logger.Warn("dropping reply for replaced session", "session_id", sessionID, "current_session_id", current)
		c.endLoading()
		return ErrStaleSession
	}

	c.RenderMessage(session.RoleAgent, resp.Response)
	c.endLoading()
	return nil
}

// RenderMessage appends a message to the view and keeps it scrolled to the newest
// message. Agent and system text is rendered as markdown when a renderer is
// installed; otherwise the text is shown literally.
func (c *Client) RenderMessage(role session.Role, text string) session.Message {
	msg := session.NewMessage(role, text)

	c.mu.Lock()
	node := render.NewNode(msg, c.markdown)
	c.transcript = append(c.transcript, msg)
	c.view.Append(node)
	c.view.ScrollToBottom()
	sessionID, active := session.ID(c.state)
	c.mu.Unlock()

	if active {
		c.record(context.Background(), func(ctx context.Context, r Recorder) error {
			return r.RecordMessage(ctx, sessionID, msg)
		})
	}
	return msg
}

// ScrollToBottom keeps the newest message visible.
func (c *Client) ScrollToBottom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.ScrollToBottom()
}

func (c *Client) setStatus(ctx context.Context, id string, status session.Status) {
	c.mu.Lock()
	i := slices.IndexFunc(c.transcript, func(m session.Message) bool { return m.ID == id })
	if i >= 0 {
		c.transcript[i].Status = status
		c.view.SetStatus(id, status)
	}
	c.mu.Unlock()

	c.record(ctx, func(ctx context.Context, r Recorder) error {
		return r.UpdateStatus(ctx, id, status)
	})
}

func (c *Client) beginLoading() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading++
	c.view.SetControls(c.controlsLocked())
}

func (c *Client) endLoading() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading > 0 {
		c.loading--
	}
	ctl := c.controlsLocked()
	c.view.SetControls(ctl)
	if ctl.InputEnabled {
		c.view.FocusInput()
	}
}

func (c *Client) controlsLocked() Controls {
	if c.loading > 0 {
		return Controls{Loading: true, StartLabel: LabelLoading}
	}
	_, active := session.ID(c.state)
	return Controls{
		StartEnabled: true,
		SendEnabled:  active,
		InputEnabled: active,
		StartLabel:   LabelStart,
	}
}

func (c *Client) record(ctx context.Context, fn func(context.Context, Recorder) error) {
	if c.recorder == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx), c.recorder); err != nil {
		c.logger.Warn("failed to write history", "error", err)
	}
}
