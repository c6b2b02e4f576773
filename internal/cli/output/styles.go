package output

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Styles holds the lipgloss styles used by the renderer.
type Styles struct {
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
	Muted   lipgloss.Style
	Bold    lipgloss.Style
	Header  lipgloss.Style
	Key     lipgloss.Style
	Prompt  lipgloss.Style
}

// NewStyles builds styles bound to a lipgloss renderer.
func NewStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Success: r.NewStyle().Foreground(lipgloss.Color("2")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("3")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		Info:    r.NewStyle().Foreground(lipgloss.Color("4")),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Bold:    r.NewStyle().Bold(true),
		Header:  r.NewStyle().Bold(true).Underline(true),
		Key:     r.NewStyle().Foreground(lipgloss.Color("6")),
		Prompt:  r.NewStyle().Foreground(lipgloss.Color("5")).Bold(true),
	}
}

// ForStatus picks a style for a server-reported status word.
func (s *Styles) ForStatus(status string) lipgloss.Style {
	switch strings.ToLower(status) {
	case "complete", "completed", "success", "active", "connected", "ok":
		return s.Success
	case "error", "failed", "disconnected":
		return s.Error
	case "training", "generating", "creating", "running", "pending":
		return s.Warning
	default:
		return s.Bold
	}
}

// TitleCase renders a status word for display, e.g. "complete" -> "Complete".
func TitleCase(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}
