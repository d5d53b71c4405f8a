package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"Storyteller/internal/chatclient"
	"Storyteller/internal/render"
	"Storyteller/internal/session"
)

type appendMsg struct{ node render.Node }

type statusMsg struct {
	id     string
	status session.Status
}

type controlsMsg struct{ controls chatclient.Controls }

type titleMsg struct{ title string }

type (
	clearMsg      struct{}
	clearInputMsg struct{}
	focusMsg      struct{}
	scrollMsg     struct{}
)

// View forwards chatclient.View calls to the bubbletea model as messages, so the
// controller can run on any goroutine while the model stays single-threaded.
type View struct {
	events    chan tea.Msg
	done      chan struct{}
	closeOnce sync.Once
}

// NewView creates a View with a buffered event queue.
func NewView() *View {
	return &View{
		events: make(chan tea.Msg, 256),
		done:   make(chan struct{}),
	}
}

// Close stops delivery; later calls are dropped.
func (v *View) Close() {
	v.closeOnce.Do(func() { close(v.done) })
}

func (v *View) send(msg tea.Msg) {
	select {
	case v.events <- msg:
	case <-v.done:
	}
}

// wait returns a command that delivers the next view event.
func (v *View) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-v.events:
			return msg
		case <-v.done:
			return nil
		}
	}
}

func (v *View) Append(node render.Node) { v.send(appendMsg{node: node}) }

func (v *View) SetStatus(id string, status session.Status) {
	v.send(statusMsg{id: id, status: status})
}

func (v *View) Clear() { v.send(clearMsg{}) }

func (v *View) SetControls(c chatclient.Controls) { v.send(controlsMsg{controls: c}) }

func (v *View) SetTitle(title string) { v.send(titleMsg{title: title}) }

func (v *View) ClearInput() { v.send(clearInputMsg{}) }

func (v *View) FocusInput() { v.send(focusMsg{}) }

func (v *View) ScrollToBottom() { v.send(scrollMsg{}) }
