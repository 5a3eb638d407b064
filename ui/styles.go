package ui

import (
	"github.com/charmbracelet/lipgloss"
)

const ellipsis = "…"

var (
	normalDim = lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"}
	gray      = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	midGray   = lipgloss.AdaptiveColor{Light: "#B2B2B2", Dark: "#4A4A4A"}
	fuchsia   = lipgloss.Color("#EE6FF8")
	green     = lipgloss.Color("#04B575")
	red       = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	yellow    = lipgloss.Color("#ECFD65")

	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}
)

var (
	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(fuchsia).
			Bold(true).
			Render

	headerStyle = lipgloss.NewStyle().
			Foreground(fuchsia).
			Bold(true).
			Render

	headerDimStyle = lipgloss.NewStyle().
			Foreground(normalDim).
			Render

	selectedStyle = lipgloss.NewStyle().
			Foreground(fuchsia).
			Render

	itemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#DDDADA"}).
			Render

	itemNoteStyle = lipgloss.NewStyle().
			Foreground(gray).
			Render

	currentItemStyle = lipgloss.NewStyle().
				Foreground(green).
				Render

	markedStyle = lipgloss.NewStyle().
			Foreground(yellow).
			Render

	errorStyle = lipgloss.NewStyle().
			Foreground(red).
			Render

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

	progressFilledStyle = lipgloss.NewStyle().
				Foreground(green).
				Render

	progressEmptyStyle = lipgloss.NewStyle().
				Foreground(midGray).
				Render

	helpViewStyle = lipgloss.NewStyle().
			Foreground(statusBarNoteFg).
			Render

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(fuchsia).
			Padding(1, 2)
)

func logoView() string {
	return logoStyle(" AudioFetch ")
}
