// Package styles provides consistent styling for the console report and the TUI.
package styles

import (
	"iam-abuse-detector/internal/detection"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	Primary    = lipgloss.Color("#7C3AED")
	Secondary  = lipgloss.Color("#10B981")
	Warning    = lipgloss.Color("#F59E0B")
	Error      = lipgloss.Color("#EF4444")
	Info       = lipgloss.Color("#3B82F6")
	MutedColor = lipgloss.Color("#6B7280")
	White      = lipgloss.Color("#FFFFFF")

	// Muted text style
	Muted = lipgloss.NewStyle().Foreground(MutedColor)

	// Base styles
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	Section = lipgloss.NewStyle().
		Bold(true).
		Foreground(White).
		Background(Primary).
		Padding(0, 1)

	Label = lipgloss.NewStyle().
		Foreground(MutedColor).
		Width(10)

	// Box styles
	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Primary).
		Padding(0, 1)

	// Status styles
	StatusOK = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	StatusError = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	StatusWarning = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	// Tab styles
	TabActive = lipgloss.NewStyle().
			Bold(true).
			Foreground(White).
			Background(Primary)

	TabInactive = lipgloss.NewStyle().
			Foreground(MutedColor)

	// Help text
	Help = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	// Table styles
	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			Padding(0, 1)

	TableCell = lipgloss.NewStyle().
			Padding(0, 1)

	TableRowSelected = lipgloss.NewStyle().
				Foreground(White).
				Background(Primary)
)

// Severity returns the style for an alert severity.
func Severity(s detection.Severity) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch s {
	case detection.SeverityHigh:
		return base.Foreground(Error)
	case detection.SeverityMedium:
		return base.Foreground(Warning)
	case detection.SeverityLow:
		return base.Foreground(Info)
	}
	return base.Foreground(MutedColor)
}
