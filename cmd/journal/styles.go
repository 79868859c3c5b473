package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Style definitions.
var (
	// TitleStyle for headers.
	TitleStyle = lipgloss.NewStyle().Bold(true)

	// TabStyle for inactive tab labels.
	TabStyle = lipgloss.NewStyle().Faint(true)

	// ActiveTabStyle for the selected tab label.
	ActiveTabStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().Faint(true)

	// ErrorStyle for error messages.
	ErrorStyle = lipgloss.NewStyle().Bold(true)
)

// FormatPnL formats a realized P&L with an explicit sign and a direction marker.
func FormatPnL(pnl float64) string {
	pnlStr := fmt.Sprintf("%+.2f", pnl)

	if pnl > 0 {
		return pnlStr + " ▲"
	} else if pnl < 0 {
		return pnlStr + " ▼"
	}

	return pnlStr
}
