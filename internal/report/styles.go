package report

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles defines the visual theme for terminal report output.
// Lipgloss degrades to no-color when output is not a TTY.
type Styles struct {
	// Header is used for section headers.
	Header lipgloss.Style

	// SubHeader is used for secondary information lines.
	SubHeader lipgloss.Style

	TableHeader lipgloss.Style
	TableCell   lipgloss.Style

	// Covered and Uncovered color goal states and fitness values.
	Covered   lipgloss.Style
	Uncovered lipgloss.Style

	SummaryLabel lipgloss.Style
	SummaryValue lipgloss.Style

	Border lipgloss.Style
	Muted  lipgloss.Style
}

// DefaultStyles returns the default color scheme for terminal reports.
func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		SubHeader: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),

		TableHeader: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		TableCell:   lipgloss.NewStyle().PaddingRight(1),

		Covered:   lipgloss.NewStyle().Foreground(lipgloss.Color("40")),
		Uncovered: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),

		SummaryLabel: lipgloss.NewStyle().Bold(true).Width(16),
		SummaryValue: lipgloss.NewStyle(),

		Border: lipgloss.NewStyle().Foreground(lipgloss.Color("63")),
		Muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// StateStyle returns the style for a covered or uncovered cell.
func (s Styles) StateStyle(covered bool) lipgloss.Style {
	if covered {
		return s.Covered
	}
	return s.Uncovered
}
