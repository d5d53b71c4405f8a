// Package command parses and runs the slash commands shared by the front ends.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"Storyteller/internal/chatclient"
	"Storyteller/internal/config"
	"Storyteller/internal/session"
)

// ErrUnknown is returned for a slash command that does not exist.
var ErrUnknown = errors.New("unknown command")

// Controller is the part of the chat client the commands drive.
type Controller interface {
	Start(ctx context.Context) error
	Title() string
	Transcript() []session.Message
}

// Exporter writes a transcript document.
type Exporter interface {
	WriteTranscript(w io.Writer, title string, msgs []session.Message) error
}

// Result is what a front end shows after a command.
type Result struct {
	Output string
	Quit   bool
}

// Dispatcher runs slash commands against a controller and the shared settings.
type Dispatcher struct {
	client   Controller
	settings *config.Settings
	exporter Exporter
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. exporter may be nil, which disables /export.
func NewDispatcher(client Controller, settings *config.Settings, exporter Exporter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{client: client, settings: settings, exporter: exporter, logger: logger}
}

// IsCommand reports whether line is a slash command.
func IsCommand(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "/")
}

// Parse splits a command line into its name and arguments.
func Parse(line string) (name string, args []string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", nil
	}
	return strings.ToLower(parts[0]), parts[1:]
}

// Run executes one command line. It blocks for /start.
func (d *Dispatcher) Run(ctx context.Context, line string) (Result, error) {
	name, args := Parse(line)
	d.logger.Debug("running command", "command", name, "args", args)

	switch name {
	case "/quit", "/exit":
		return Result{Quit: true}, nil

	case "/start", "/new":
		err := d.client.Start(ctx)
		if errors.Is(err, chatclient.ErrStartFailed) {
			// The failure is already on screen as a system message.
			return Result{}, nil
		}
		return Result{}, err

	case "/set":
		return d.set(args)

	case "/settings":
		return Result{Output: describe(d.settings.Get())}, nil

	case "/levels":
		var b strings.Builder
		b.WriteString("Levels:")
		for _, l := range config.Levels {
			fmt.Fprintf(&b, "\n  %s  %s", l.Code, l.Description)
		}
		return Result{Output: b.String()}, nil

	case "/export":
		return d.export(args)

	case "/help":
		return Result{Output: Help}, nil

	default:
		return Result{}, fmt.Errorf("%w: %s (try /help)", ErrUnknown, name)
	}
}

// Help lists the commands.
const Help = `Available commands:
  /start                      - Start a new adventure with the current settings
  /set target <language>      - Set the language to learn
  /set level <A1..C2>         - Set the proficiency level
  /set native <language>      - Set the language for explanations
  /settings                   - Show the current settings
  /levels                     - List proficiency levels
  /export <file.html>         - Save the conversation as HTML
  /help                       - Show this help message
  /quit                       - Exit`

var fieldNames = map[string]string{
	config.FieldTarget: "Target language",
	config.FieldLevel:  "Level",
	config.FieldNative: "Native language",
}

func (d *Dispatcher) set(args []string) (Result, error) {
	if len(args) != 2 {
		return Result{}, errors.New("usage: /set <target|level|native> <value>")
	}
	field := strings.ToLower(args[0])
	options, err := config.Options(field)
	if err != nil {
		return Result{}, err
	}

	value := args[1]
	for _, opt := range options {
		if strings.EqualFold(opt, value) {
			value = opt
			break
		}
	}
	if err := d.settings.Set(field, value); err != nil {
		return Result{}, err
	}
	return Result{Output: fmt.Sprintf("%s set to %s", fieldNames[field], value)}, nil
}

func (d *Dispatcher) export(args []string) (Result, error) {
	if d.exporter == nil {
		return Result{}, errors.New("export is not available")
	}
	if len(args) != 1 {
		return Result{}, errors.New("usage: /export <file.html>")
	}
	msgs := d.client.Transcript()
	if len(msgs) == 0 {
		return Result{}, errors.New("nothing to export yet")
	}

	title := d.client.Title()
	if title == "" {
		title = "Storyteller"
	}

	path := args[0]
	f, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := d.exporter.WriteTranscript(f, title, msgs); err != nil {
		f.Close()
		return Result{}, fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("failed to write transcript: %w", err)
	}

	d.logger.Info("transcript exported", "path", path, "message_count", len(msgs))
	return Result{Output: fmt.Sprintf("Exported %d messages to %s", len(msgs), path)}, nil
}

func describe(sel config.Selection) string {
	return fmt.Sprintf("Target language: %s\nLevel: %s\nNative language: %s",
		sel.TargetLanguage, sel.Level, sel.NativeLanguage)
}
