package ui

import "github.com/charmbracelet/lipgloss"

var (
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	fuchsia   = lipgloss.Color("#EE6FF8")
	red       = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	yellow    = lipgloss.Color("#ECFD65")
	gray      = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	dimGray   = lipgloss.AdaptiveColor{Light: "#BDBDBD", Dark: "#3C3C3C"}

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(fuchsia).
			Bold(true)

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarHelpStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#323232"}).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render

	statusBarErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(red).
				Render

	errorTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1F1F1")).
			Background(red).
			Padding(0, 1)

	subtleStyle = lipgloss.NewStyle().Foreground(gray)

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(fuchsia)
	artistStyle = lipgloss.NewStyle().Foreground(gray)

	spinnerStyle = lipgloss.NewStyle().Foreground(fuchsia)

	// Lyrics
	activeLineStyle = lipgloss.NewStyle().Bold(true)
	sungStyle       = lipgloss.NewStyle().Bold(true).Foreground(yellow)
	nearLineStyle   = lipgloss.NewStyle()
	upcomingStyle   = lipgloss.NewStyle().Foreground(gray)
	passedStyle     = lipgloss.NewStyle().Foreground(dimGray)

	// Queue
	currentRowStyle = lipgloss.NewStyle().Foreground(fuchsia).Bold(true)
	cursorStyle     = lipgloss.NewStyle().Foreground(yellow)

	statusStyles = map[string]lipgloss.Style{
		"queued":  lipgloss.NewStyle().Foreground(gray),
		"loading": lipgloss.NewStyle().Foreground(yellow),
		"ready":   lipgloss.NewStyle().Foreground(mintGreen),
		"error":   lipgloss.NewStyle().Foreground(red),
	}
)
