// ABOUTME: Shared terminal styles and small helpers for CLI output
// ABOUTME: Status words are coloured with lipgloss; tables go through tabwriter
package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/harperreed/engage/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// statusStyle colours goal states and decision statuses.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case models.GoalSucceeded, models.DecisionDispatched, models.OutcomeSuccess:
		return okStyle
	case models.GoalDeferred, models.DecisionPending, models.OutcomeDefer, models.OutcomeClarify:
		return warnStyle
	case models.GoalEscalated, models.GoalDeclined, models.DecisionDispatchFailed, models.OutcomeEscalate, models.OutcomeDecline:
		return errorStyle
	}
	return lipgloss.NewStyle()
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func parseUUIDFlag(name, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, fmt.Errorf("--%s is required", name)
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return id, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
