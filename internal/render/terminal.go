package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Terminal renders markdown to ANSI-styled text with glamour.
type Terminal struct {
	renderer *glamour.TermRenderer
}

// NewTerminal creates a terminal renderer. style is a glamour standard style name
// ("dark", "light", "notty"); width is the word-wrap column.
func NewTerminal(style string, width int) (*Terminal, error) {
	if style == "" {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &Terminal{renderer: r}, nil
}

// Render implements Markdown. Control characters in text are removed first;
// glamour passes them through and they would reach the terminal as escapes.
func (t *Terminal) Render(text string) (string, error) {
	out, err := t.renderer.Render(StripControl(text))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}
