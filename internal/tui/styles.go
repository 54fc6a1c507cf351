package tui

import "github.com/charmbracelet/lipgloss"

var (
	accentColor  = lipgloss.Color("#2563EB") // Blue
	addedColor   = lipgloss.Color("#10B981") // Green
	deletedColor = lipgloss.Color("#EF4444") // Red
	lockColor    = lipgloss.Color("#F59E0B") // Amber
	mutedColor   = lipgloss.Color("#6B7280") // Gray
	textColor    = lipgloss.Color("#E5E7EB")
)

var (
	appStyle = lipgloss.NewStyle().Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(accentColor).
			Padding(0, 1)

	// Archive list
	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)
	normalStyle = lipgloss.NewStyle().Foreground(textColor)
	dimStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	markStyle   = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	lockStyle   = lipgloss.NewStyle().Foreground(lockColor)

	// Details
	attrKeyStyle = lipgloss.NewStyle().Foreground(mutedColor).Width(16)
	dirStyle     = lipgloss.NewStyle().Foreground(accentColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(1, 0, 0, 0)

	// Status line after an action
	statusOKStyle  = lipgloss.NewStyle().Foreground(addedColor).Bold(true)
	statusErrStyle = lipgloss.NewStyle().Foreground(deletedColor).Bold(true)

	// Compare and file diff
	addedStyle   = lipgloss.NewStyle().Foreground(addedColor)
	deletedStyle = lipgloss.NewStyle().Foreground(deletedColor)
)
