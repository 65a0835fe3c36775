package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "245"})

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"})

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "208", Dark: "208"})

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "1", Dark: "9"})
)

// minBarWidth and maxBarWidth bound the progress bar width.
const (
	minBarWidth = 10
	maxBarWidth = 60
)

// barWidth sizes the progress bar for a terminal of the given width,
// leaving room for the spinner, percentage, and timer.
func barWidth(termWidth int) int {
	if termWidth <= 0 {
		return 40
	}
	return min(max(termWidth-24, minBarWidth), maxBarWidth)
}
