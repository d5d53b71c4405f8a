package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent  = lipgloss.Color("#8BC34A")
	colorMuted   = lipgloss.Color("#6b7785")
	colorAgent   = lipgloss.Color("#2196F3")
	colorUser    = lipgloss.Color("#FFC107")
	colorSystem  = lipgloss.Color("#e53935")
	colorPrimary = lipgloss.Color("#f2f2f2")
)

// Styles holds the lipgloss styles used by the model.
type Styles struct {
	Header      lipgloss.Style
	Settings    lipgloss.Style
	AgentLabel  lipgloss.Style
	UserLabel   lipgloss.Style
	SystemLabel lipgloss.Style
	Body        lipgloss.Style
	Failed      lipgloss.Style
	Input       lipgloss.Style
	Footer      lipgloss.Style
	Info        lipgloss.Style
}

// DefaultStyles returns the dark palette.
func DefaultStyles() Styles {
	return Styles{
		Header:      lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Background(lipgloss.Color("#1e2a3d")).Padding(0, 1),
		Settings:    lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 1),
		AgentLabel:  lipgloss.NewStyle().Bold(true).Foreground(colorAgent),
		UserLabel:   lipgloss.NewStyle().Bold(true).Foreground(colorUser),
		SystemLabel: lipgloss.NewStyle().Bold(true).Foreground(colorSystem),
		Body:        lipgloss.NewStyle().PaddingLeft(2),
		Failed:      lipgloss.NewStyle().Italic(true).Foreground(colorSystem),
		Input:       lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorAccent).Padding(0, 1),
		Footer:      lipgloss.NewStyle().Foreground(colorMuted),
		Info:        lipgloss.NewStyle().Foreground(colorAccent),
	}
}
