// Package render turns chat messages into display nodes. Agent and system text may
// be interpreted as markdown; everything else is kept literal.
package render

import (
	"fmt"
	"strings"
	"unicode"

	"Storyteller/internal/session"
)

// Format says how a node body must be treated by a view.
type Format int

const (
	// FormatPlain bodies are literal text and must never be interpreted.
	FormatPlain Format = iota
	// FormatMarkdown bodies are renderer output and are trusted as-is.
	FormatMarkdown
)

func (f Format) String() string {
	switch f {
	case FormatMarkdown:
		return "markdown"
	default:
		return "plain"
	}
}

// Markdown converts markdown source to display markup.
type Markdown interface {
	Render(text string) (string, error)
}

// Node is one rendered message in a view.
type Node struct {
	Message session.Message
	Format  Format
	Body    string
}

// NewNode builds the node for msg. md may be nil. Only agent and system messages
// go through md; a render error or panic falls back to the literal text.
func NewNode(msg session.Message, md Markdown) Node {
	node := Node{Message: msg, Format: FormatPlain, Body: msg.Content}
	if md == nil || !Interpretable(msg.Role) {
		return node
	}
	body, err := safeRender(md, msg.Content)
	if err != nil {
		return node
	}
	node.Format = FormatMarkdown
	node.Body = body
	return node
}

// Display returns the text a terminal view should draw. Plain bodies lose their
// control characters so literal text cannot move the cursor or change colors.
func (n Node) Display() string {
	if n.Format == FormatMarkdown {
		return n.Body
	}
	return StripControl(n.Body)
}

// StripControl removes control characters other than newline and tab.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// Interpretable reports whether messages of role may be rendered as markdown.
func Interpretable(role session.Role) bool {
	return role == session.RoleAgent || role == session.RoleSystem
}

func safeRender(md Markdown, text string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("markdown renderer panicked: %v", r)
		}
	}()
	return md.Render(text)
}
