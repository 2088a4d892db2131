package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/blinky/internal/model"
)

// Color palette.
var (
	colorRed       = lipgloss.Color("#ff5555")
	colorGreen     = lipgloss.Color("#50fa7b")
	colorYellow    = lipgloss.Color("#f1fa8c")
	colorBlue      = lipgloss.Color("#8be9fd")
	colorPurple    = lipgloss.Color("#bd93f9")
	colorDim       = lipgloss.Color("#6272a4")
	colorBgLight   = lipgloss.Color("#343746")
	colorFg        = lipgloss.Color("#f8f8f2")
	colorOrange    = lipgloss.Color("#ffb86c")
	colorBorder    = lipgloss.Color("#44475a")
	colorHighlight = lipgloss.Color("#44475a")
)

// Style definitions.
var (
	// Notification list
	listStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	itemStyle = lipgloss.NewStyle().
			Foreground(colorFg)

	itemSelectedStyle = lipgloss.NewStyle().
				Foreground(colorFg).
				Background(colorHighlight).
				Bold(true)

	// Detail pane
	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	detailHeaderStyle = lipgloss.NewStyle().
				Foreground(colorBlue).
				Bold(true).
				Padding(0, 0, 1, 0)

	sectionStyle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	findingStyle = lipgloss.NewStyle().
			Foreground(colorOrange)

	suggestionStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	excerptStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Italic(true)

	pathStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	// Severity
	levelHighStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	levelMediumStyle = lipgloss.NewStyle().
				Foreground(colorOrange).
				Bold(true)

	levelLowStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	levelSafeStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	offlineStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Bold(true)

	// Status bar
	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorBgLight).
			Padding(0, 1)

	statusOnlineStyle = lipgloss.NewStyle().
				Foreground(colorGreen).
				Background(colorBgLight).
				Bold(true)

	statusOfflineStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Background(colorBgLight).
				Bold(true)

	// Help
	helpHeaderStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true).
			Padding(0, 0, 1, 0)

	helpBarStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)

func levelStyle(l model.Level) lipgloss.Style {
	switch l {
	case model.LevelHigh:
		return levelHighStyle
	case model.LevelMedium:
		return levelMediumStyle
	case model.LevelLow:
		return levelLowStyle
	default:
		return levelSafeStyle
	}
}
