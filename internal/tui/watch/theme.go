// Package watch implements the knock watch TUI: a live view of the
// status API.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme holds the styles shared by every panel.
type Theme struct {
	OK     lipgloss.Style
	Busy   lipgloss.Style
	Failed lipgloss.Style
	Idle   lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	// Activity colors the frame sparkline.
	Activity lipgloss.Style
}

func NewDefaultTheme() Theme {
	green := lipgloss.Color("#3FB950")
	grey := lipgloss.Color("#8B949E")

	return Theme{
		OK:     lipgloss.NewStyle().Foreground(green),
		Busy:   lipgloss.NewStyle().Foreground(lipgloss.Color("#D29922")),
		Failed: lipgloss.NewStyle().Foreground(lipgloss.Color("#F85149")),
		Idle:   lipgloss.NewStyle().Foreground(grey),

		Border: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#30363D")),
		Title:     lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(grey),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#58A6FF")),

		Activity: lipgloss.NewStyle().Foreground(green),
	}
}
