// Package repl is the line-mode front end.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"Storyteller/internal/chatclient"
	"Storyteller/internal/command"
	"Storyteller/internal/render"
	"Storyteller/internal/session"
)

// Client is the chat controller as seen by the REPL.
type Client interface {
	SendMessage(ctx context.Context, text string) error
	HasSession() bool
}

// Commands runs slash commands.
type Commands interface {
	Run(ctx context.Context, line string) (command.Result, error)
}

// REPL prints the conversation as labelled lines and reads input a line at a time.
// It implements chatclient.View.
type REPL struct {
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	mu      sync.Mutex
	loading bool
}

// New creates a REPL reading from in and writing to out.
func New(in io.Reader, out io.Writer, logger *slog.Logger) *REPL {
	if logger == nil {
		logger = slog.Default()
	}
	return &REPL{in: in, out: out, logger: logger}
}

const startFirst = "System: Start an adventure first with /start."

var labels = map[session.Role]string{
	session.RoleAgent:  "Agent",
	session.RoleUser:   "You",
	session.RoleSystem: "System",
}

// Append implements chatclient.View. User lines are not echoed; the terminal
// already shows them at the prompt.
func (r *REPL) Append(node render.Node) {
	if node.Message.Role == session.RoleUser {
		return
	}
	r.printf("%s: %s\n\n", labels[node.Message.Role], strings.TrimSpace(node.Display()))
}

// SetStatus implements chatclient.View.
func (r *REPL) SetStatus(_ string, status session.Status) {
	if status == session.StatusFailed {
		r.printf("(not delivered)\n")
	}
}

// Clear implements chatclient.View.
func (r *REPL) Clear() {
	r.printf("\n")
}

// SetControls implements chatclient.View.
func (r *REPL) SetControls(c chatclient.Controls) {
	r.mu.Lock()
	wasLoading := r.loading
	r.loading = c.Loading
	r.mu.Unlock()
	if c.Loading && !wasLoading {
		r.printf("%s\n", c.StartLabel)
	}
}

// SetTitle implements chatclient.View.
func (r *REPL) SetTitle(title string) {
	r.printf("=== %s ===\n\n", title)
}

// ClearInput implements chatclient.View.
func (r *REPL) ClearInput() {}

// FocusInput implements chatclient.View.
func (r *REPL) FocusInput() {}

// ScrollToBottom implements chatclient.View.
func (r *REPL) ScrollToBottom() {}

func (r *REPL) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// Run reads lines until EOF, /quit or ctx is cancelled.
func (r *REPL) Run(ctx context.Context, client Client, cmds Commands) error {
	r.printf("=== Storyteller ===\n")
	r.printf("Type /start to begin an adventure, /help for commands, /quit to exit\n\n")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			scanErr <- err
			close(lines)
		}()
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		err = scanner.Err()
	}()

	for {
		r.printf("You: ")
		var input string
		select {
		case <-ctx.Done():
			r.printf("\n")
			return nil
		case line, ok := <-lines:
			if !ok {
				r.printf("\nGoodbye!\n")
				return <-scanErr
			}
			input = strings.TrimSpace(line)
		}
		if input == "" {
			continue
		}

		if command.IsCommand(input) {
			res, err := cmds.Run(ctx, input)
			if err != nil {
				r.printf("Error: %v\n\n", err)
				r.logger.Error("command error", "error", err)
			}
			if res.Output != "" {
				r.printf("%s\n\n", res.Output)
			}
			if res.Quit {
				r.printf("Goodbye!\n")
				return nil
			}
			continue
		}

		if !client.HasSession() {
			r.printf("%s\n\n", startFirst)
			continue
		}
		err := client.SendMessage(ctx, input)
		switch {
		case err == nil:
		case errors.Is(err, chatclient.ErrNoSession):
			r.printf("%s\n\n", startFirst)
		case errors.Is(err, chatclient.ErrSendFailed), errors.Is(err, chatclient.ErrStaleSession):
			// Already shown or deliberately dropped.
		default:
			r.printf("Error: %v\n\n", err)
		}
	}
}
