package status

import (
	"charm.land/lipgloss/v2"

	"github.com/andoriyu/gazpacho/internal/history"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#5F5FD7")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))

	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0000"))

	stateStyles = map[history.CompletionState]lipgloss.Style{
		history.Pending:             lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFFF")),
		history.Completed:           lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD700")),
		history.CompletedWithErrors: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00")),
		history.Failed:              lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
	}
)
