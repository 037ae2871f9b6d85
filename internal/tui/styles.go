package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	header    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	pending   lipgloss.Style
	specialty lipgloss.Style
	voice     lipgloss.Style
	chip      lipgloss.Style
	chipKey   lipgloss.Style
	listening lipgloss.Style
	errorText lipgloss.Style
	help      lipgloss.Style
	rule      lipgloss.Style
}

func newTheme() theme {
	teal := lipgloss.Color("#0f766e")
	mint := lipgloss.Color("#5eead4")
	muted := lipgloss.Color("#7b8a87")
	red := lipgloss.Color("#f87171")

	return theme{
		header:    lipgloss.NewStyle().Bold(true).Foreground(mint),
		user:      lipgloss.NewStyle().Bold(true).Foreground(mint),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(teal),
		pending:   lipgloss.NewStyle().Italic(true).Foreground(muted),
		specialty: lipgloss.NewStyle().Foreground(teal),
		voice:     lipgloss.NewStyle().Foreground(mint),
		chip: lipgloss.NewStyle().
			Foreground(teal).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(teal).
			Padding(0, 1),
		chipKey:   lipgloss.NewStyle().Foreground(muted),
		listening: lipgloss.NewStyle().Bold(true).Foreground(red),
		errorText: lipgloss.NewStyle().Foreground(red),
		help:      lipgloss.NewStyle().Foreground(muted),
		rule:      lipgloss.NewStyle().Foreground(muted),
	}
}
