package repl

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Storyteller/internal/backend"
	"Storyteller/internal/chatclient"
	"Storyteller/internal/command"
	"Storyteller/internal/config"
	"Storyteller/internal/render"
	"Storyteller/internal/session"
	"Storyteller/internal/stub"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runSession(t *testing.T, input string) string {
	t.Helper()
	srv := httptest.NewServer(stub.NewServer(discardLogger()))
	defer srv.Close()

	be, err := backend.NewClient(srv.URL, 5*time.Second, backend.WithLogger(discardLogger()))
	require.NoError(t, err)
	defer be.Close()

	var out bytes.Buffer
	r := New(strings.NewReader(input), &out, discardLogger())
	settings := config.NewSettings(config.DefaultSelection())
	client := chatclient.New(be, settings, r, chatclient.WithLogger(discardLogger()))
	cmds := command.NewDispatcher(client, settings, render.NewHTML(), discardLogger())

	require.NoError(t, r.Run(context.Background(), client, cmds))
	return out.String()
}

func TestRun_Conversation(t *testing.T) {
	out := runSession(t, "/set target French\n/start\nBonjour\n/quit\nnever read\n")

	assert.Contains(t, out, "=== Storyteller ===")
	assert.Contains(t, out, "Target language set to French")
	assert.Contains(t, out, "=== French Adventure (A1) ===")
	assert.Contains(t, out, "Agent: Welcome, traveler.")
	assert.Contains(t, out, "Agent: You said: _Bonjour_ (French, A1).")
	assert.Contains(t, out, "Goodbye!")
	assert.NotContains(t, out, "never read")
	assert.Less(t, strings.Index(out, "Welcome"), strings.Index(out, "You said"))
}

func TestRun_MessageBeforeStart(t *testing.T) {
	out := runSession(t, "hola\n")
	assert.Contains(t, out, "Start an adventure first with /start.")
	assert.Contains(t, out, "Goodbye!")
}

type countingClient struct {
	active bool
	sent   []string
}

func (c *countingClient) SendMessage(_ context.Context, text string) error {
	c.sent = append(c.sent, text)
	return nil
}

func (c *countingClient) HasSession() bool { return c.active }

func TestRun_NoSessionSkipsSend(t *testing.T) {
	var out bytes.Buffer
	r := New(strings.NewReader("hola\n"), &out, discardLogger())
	client := &countingClient{}
	require.NoError(t, r.Run(context.Background(), client, nil))
	assert.Empty(t, client.sent)
	assert.Contains(t, out.String(), startFirst)

	out.Reset()
	r = New(strings.NewReader("hola\n"), &out, discardLogger())
	client.active = true
	require.NoError(t, r.Run(context.Background(), client, nil))
	assert.Equal(t, []string{"hola"}, client.sent)
	assert.NotContains(t, out.String(), startFirst)
}

func TestRun_CommandErrors(t *testing.T) {
	out := runSession(t, "/dance\n/set level Z9\n\n")
	assert.Contains(t, out, "Error: unknown command: /dance")
	assert.Contains(t, out, `Error: invalid level "Z9"`)
}

func TestRun_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	var out bytes.Buffer
	r := New(pr, &out, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, nil, nil)
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("REPL did not stop")
	}
}

func TestView_Output(t *testing.T) {
	var out bytes.Buffer
	r := New(strings.NewReader(""), &out, discardLogger())

	r.Append(render.NewNode(session.NewMessage(session.RoleUser, "hidden echo"), nil))
	r.Append(render.NewNode(session.NewMessage(session.RoleSystem, "bell\a here"), nil))
	r.SetStatus("id", session.StatusFailed)
	r.SetStatus("id", session.StatusDelivered)
	r.SetControls(chatclient.Controls{Loading: true, StartLabel: chatclient.LabelLoading})
	r.SetControls(chatclient.Controls{Loading: true, StartLabel: chatclient.LabelLoading})
	r.SetControls(chatclient.Controls{StartEnabled: true, StartLabel: chatclient.LabelStart})

	got := out.String()
	assert.NotContains(t, got, "hidden echo")
	assert.Contains(t, got, "System: bell here")
	assert.Equal(t, 1, strings.Count(got, "(not delivered)"))
	assert.Equal(t, 1, strings.Count(got, "Loading..."))
}
