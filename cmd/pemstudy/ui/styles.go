package ui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles shared across the rating views.
type Styles struct {
	Title    lipgloss.Style
	Category lipgloss.Style
	Variant  lipgloss.Style
	Gutter   lipgloss.Style
	ErrorPos lipgloss.Style
	Caret    lipgloss.Style
	Message  lipgloss.Style
	Prompt   lipgloss.Style
	Help     lipgloss.Style
	Error    lipgloss.Style
	Success  lipgloss.Style
}

// DefaultStyles returns the rating session's palette.
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		Category: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		Variant:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
		Gutter:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		ErrorPos: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Caret:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Message: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1),
		Prompt:  lipgloss.NewStyle().Bold(true),
		Help:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Success: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
	}
}
