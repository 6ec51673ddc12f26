package tui

import "github.com/charmbracelet/lipgloss"

// Color palette - Dracula theme inspired.
var (
	colorPurple = lipgloss.Color("#bd93f9")
	colorGreen  = lipgloss.Color("#50fa7b")
	colorYellow = lipgloss.Color("#f1fa8c")
	colorCyan   = lipgloss.Color("#8be9fd")
	colorRed    = lipgloss.Color("#ff5555")
	colorWhite  = lipgloss.Color("#f8f8f2")
	colorGray   = lipgloss.Color("#6272a4")
	colorDark   = lipgloss.Color("#44475a")
)

// Styles holds all the lipgloss styles for the monitor.
type Styles struct {
	Header       lipgloss.Style
	Item         lipgloss.Style
	SelectedItem lipgloss.Style
	Waiting      lipgloss.Style
	Completed    lipgloss.Style
	Failed       lipgloss.Style
	Muted        lipgloss.Style
	StatusBar    lipgloss.Style
	Error        lipgloss.Style
}

// DefaultStyles returns the default style set.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPurple).
			Padding(0, 1),
		Item: lipgloss.NewStyle().
			Foreground(colorWhite).
			Padding(0, 2),
		SelectedItem: lipgloss.NewStyle().
			Foreground(colorCyan).
			Background(colorDark).
			Bold(true).
			Padding(0, 2),
		Waiting:   lipgloss.NewStyle().Foreground(colorYellow),
		Completed: lipgloss.NewStyle().Foreground(colorGreen),
		Failed:    lipgloss.NewStyle().Foreground(colorRed),
		Muted:     lipgloss.NewStyle().Foreground(colorGray),
		StatusBar: lipgloss.NewStyle().
			Foreground(colorGray).
			Padding(0, 1),
		Error: lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true).
			Padding(0, 1),
	}
}
