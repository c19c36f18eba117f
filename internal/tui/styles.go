package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/tascade/internal/task"
)

// Border styles
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))
)

// Status styles
var (
	StyleStatusRunning = lipgloss.NewStyle().
				Foreground(lipgloss.Color("yellow")).
				Bold(true)

	StyleStatusComplete = lipgloss.NewStyle().
				Foreground(lipgloss.Color("green")).
				Bold(true)

	StyleStatusFailed = lipgloss.NewStyle().
				Foreground(lipgloss.Color("red")).
				Bold(true)

	StyleStatusBlocked = lipgloss.NewStyle().
				Foreground(lipgloss.Color("magenta"))

	StyleStatusPending = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// UI element styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	StyleSelected = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0"))

	StyleNotice = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	StyleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)
)

// StatusIcon returns a styled status indicator.
func StatusIcon(s task.Status) string {
	switch s {
	case task.StatusInProgress:
		return StyleStatusRunning.Render("●")
	case task.StatusDone:
		return StyleStatusComplete.Render("✓")
	case task.StatusFailed:
		return StyleStatusFailed.Render("✗")
	case task.StatusBlocked:
		return StyleStatusBlocked.Render("■")
	default:
		return StyleStatusPending.Render("○")
	}
}
