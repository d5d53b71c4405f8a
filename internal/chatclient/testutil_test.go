package chatclient

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"Storyteller/internal/backend"
	"Storyteller/internal/config"
	"Storyteller/internal/render"
	"Storyteller/internal/session"
)

// =============================================================================
// FAKE BACKEND
// =============================================================================

type fakeBackend struct {
	mu        sync.Mutex
	startReqs []backend.StartRequest
	chatReqs  []backend.ChatRequest

	startFn func(ctx context.Context, req backend.StartRequest) (*backend.StartResponse, error)
	chatFn  func(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		startFn: func(context.Context, backend.StartRequest) (*backend.StartResponse, error) {
			return &backend.StartResponse{SessionID: "s-1", Response: "Once upon a time (**había una vez**)."}, nil
		},
		chatFn: func(_ context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
			return &backend.ChatResponse{Response: "You said " + req.Message}, nil
		},
	}
}

func (f *fakeBackend) Start(ctx context.Context, req backend.StartRequest) (*backend.StartResponse, error) {
	f.mu.Lock()
	f.startReqs = append(f.startReqs, req)
	fn := f.startFn
	f.mu.Unlock()
	return fn(ctx, req)
}

func (f *fakeBackend) Chat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
	f.mu.Lock()
	f.chatReqs = append(f.chatReqs, req)
	fn := f.chatFn
	f.mu.Unlock()
	return fn(ctx, req)
}

func (f *fakeBackend) startCalls() []backend.StartRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.StartRequest(nil), f.startReqs...)
}

func (f *fakeBackend) chatCalls() []backend.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.ChatRequest(nil), f.chatReqs...)
}

// =============================================================================
// RECORDING VIEW
// =============================================================================

type viewEvent struct {
	kind     string
	node     render.Node
	controls Controls
	title    string
	id       string
	status   session.Status
}

type recordingView struct {
	mu     sync.Mutex
	events []viewEvent
}

func (v *recordingView) add(e viewEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events = append(v.events, e)
}

func (v *recordingView) Append(node render.Node) { v.add(viewEvent{kind: "append", node: node}) }
func (v *recordingView) SetStatus(id string, status session.Status) {
	v.add(viewEvent{kind: "status", id: id, status: status})
}
func (v *recordingView) Clear()                 { v.add(viewEvent{kind: "clear"}) }
func (v *recordingView) SetControls(c Controls) { v.add(viewEvent{kind: "controls", controls: c}) }
func (v *recordingView) SetTitle(title string)  { v.add(viewEvent{kind: "title", title: title}) }
func (v *recordingView) ClearInput()            { v.add(viewEvent{kind: "clear_input"}) }
func (v *recordingView) FocusInput()            { v.add(viewEvent{kind: "focus"}) }
func (v *recordingView) ScrollToBottom()        { v.add(viewEvent{kind: "scroll"}) }

// nodes returns the visible message list: appends since the last clear.
func (v *recordingView) nodes() []render.Node {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []render.Node
	for _, e := range v.events {
		switch e.kind {
		case "clear":
			out = nil
		case "append":
			out = append(out, e.node)
		}
	}
	return out
}

func (v *recordingView) roles() []session.Role {
	var roles []session.Role
	for _, n := range v.nodes() {
		roles = append(roles, n.Message.Role)
	}
	return roles
}

func (v *recordingView) lastControls() (Controls, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := len(v.events) - 1; i >= 0; i-- {
		if v.events[i].kind == "controls" {
			return v.events[i].controls, true
		}
	}
	return Controls{}, false
}

func (v *recordingView) kinds() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.events))
	for i, e := range v.events {
		out[i] = e.kind
	}
	return out
}

func (v *recordingView) count(kind string) int {
	n := 0
	for _, k := range v.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

// =============================================================================
// FAKE RECORDER
// =============================================================================

type fakeRecorder struct {
	mu       sync.Mutex
	sessions []string
	messages map[string][]session.Message
	statuses map[string]session.Status
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		messages: make(map[string][]session.Message),
		statuses: make(map[string]session.Status),
	}
}

func (r *fakeRecorder) RecordSession(_ context.Context, id string, _ config.Selection, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, id)
	return nil
}

func (r *fakeRecorder) RecordMessage(_ context.Context, sessionID string, msg session.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[sessionID] = append(r.messages[sessionID], msg)
	return nil
}

func (r *fakeRecorder) UpdateStatus(_ context.Context, messageID string, status session.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[messageID] = status
	return nil
}

// =============================================================================
// FIXTURES
// =============================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, be Backend, opts ...Option) (*Client, *recordingView, *config.Settings) {
	t.Helper()
	view := &recordingView{}
	settings := config.NewSettings(config.DefaultSelection())
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return New(be, settings, view, opts...), view, settings
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for backend call")
	}
}
