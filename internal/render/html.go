package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"Storyteller/internal/session"
)

// HTML renders markdown to sanitized HTML.
type HTML struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewHTML creates an HTML renderer with GitHub-flavoured markdown and the
// bluemonday UGC policy applied to the output.
func NewHTML() *HTML {
	return &HTML{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
	}
}

// Render implements Markdown.
func (h *HTML) Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return h.policy.Sanitize(buf.String()), nil
}

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; }
.message { padding: .5rem 1rem; margin: .5rem 0; border-radius: .5rem; }
.user { background: #e3f2fd; text-align: right; white-space: pre-wrap; }
.agent { background: #f5f5f5; }
.system { background: #fff3e0; font-style: italic; }
.failed::after { content: " (not delivered)"; color: #c62828; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p><small>Exported {{.Exported}}</small></p>
{{range .Nodes}}<div class="message {{.Role}}{{if .Failed}} failed{{end}}">{{if .Markup}}{{.Markup}}{{else}}{{.Text}}{{end}}</div>
{{end}}</body>
</html>
`))

type transcriptNode struct {
	Role   string
	Failed bool
	Markup template.HTML
	Text   string
}

// WriteTranscript writes msgs as a standalone HTML page. Agent and system messages
// are rendered through h; user messages are escaped as plain text.
func (h *HTML) WriteTranscript(w io.Writer, title string, msgs []session.Message) error {
	nodes := make([]transcriptNode, 0, len(msgs))
	for _, msg := range msgs {
		n := NewNode(msg, h)
		tn := transcriptNode{
			Role:   string(msg.Role),
			Failed: msg.Status == session.StatusFailed,
		}
		if n.Format == FormatMarkdown {
			// Body has already been through the sanitizer.
			tn.Markup = template.HTML(n.Body)
		} else {
			tn.Text = n.Body
		}
		nodes = append(nodes, tn)
	}

	if title == "" {
		title = "Storyteller transcript"
	}
	data := struct {
		Title    string
		Exported string
		Nodes    []transcriptNode
	}{
		Title:    title,
		Exported: time.Now().Format(time.RFC1123),
		Nodes:    nodes,
	}
	if err := transcriptTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}
