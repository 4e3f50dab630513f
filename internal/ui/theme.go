package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/timvw/bias-lens/internal/model"
)

// Theme defines all colors used by the result card and spinner.
// Use DarkTheme() or LightTheme() to get a pre-built theme,
// or construct a custom Theme.
type Theme struct {
	Primary   lipgloss.Color // title, spinner
	Error     lipgloss.Color // failures
	Warning   lipgloss.Color // truncation notice
	Text      lipgloss.Color // primary text
	TextMuted lipgloss.Color // labels, hints, run id
	Border    lipgloss.Color // card border

	// Label colors are shared by both themes so a verdict looks the same
	// on any background.
	Left    lipgloss.Color
	Right   lipgloss.Color
	Neutral lipgloss.Color
}

const (
	leftColor    = lipgloss.Color("#d1495b")
	rightColor   = lipgloss.Color("#1d4ed8")
	neutralColor = lipgloss.Color("#6b7280")
)

// DarkTheme returns the default dark theme.
func DarkTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("#fab283"),
		Error:     lipgloss.Color("#e06c75"),
		Warning:   lipgloss.Color("#f5a742"),
		Text:      lipgloss.Color("#eeeeee"),
		TextMuted: lipgloss.Color("#808080"),
		Border:    lipgloss.Color("#484848"),
		Left:      leftColor,
		Right:     rightColor,
		Neutral:   neutralColor,
	}
}

// LightTheme returns a light theme for bright terminal backgrounds.
func LightTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("#b35c00"),
		Error:     lipgloss.Color("#cf222e"),
		Warning:   lipgloss.Color("#bf8700"),
		Text:      lipgloss.Color("#1f2328"),
		TextMuted: lipgloss.Color("#656d76"),
		Border:    lipgloss.Color("#d0d7de"),
		Left:      leftColor,
		Right:     rightColor,
		Neutral:   neutralColor,
	}
}

// ThemeByName returns a theme by name. Defaults to dark.
func ThemeByName(name string) Theme {
	switch name {
	case "light":
		return LightTheme()
	default:
		return DarkTheme()
	}
}

// LabelColor returns the color for a bias label.
func (t Theme) LabelColor(l model.Label) lipgloss.Color {
	switch l {
	case model.LabelLeft:
		return t.Left
	case model.LabelRight:
		return t.Right
	default:
		return t.Neutral
	}
}

// styles holds all lipgloss styles derived from a Theme.
type styles struct {
	card    lipgloss.Style
	title   lipgloss.Style
	key     lipgloss.Style
	text    lipgloss.Style
	dim     lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	spinner lipgloss.Style
	raw     lipgloss.Style
}

// newStyles builds all styles from a theme.
func newStyles(t Theme) styles {
	return styles{
		card:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Border).Padding(0, 1),
		title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		key:     lipgloss.NewStyle().Foreground(t.TextMuted).Width(12),
		text:    lipgloss.NewStyle().Foreground(t.Text),
		dim:     lipgloss.NewStyle().Foreground(t.TextMuted),
		warn:    lipgloss.NewStyle().Foreground(t.Warning),
		err:     lipgloss.NewStyle().Bold(true).Foreground(t.Error),
		spinner: lipgloss.NewStyle().Foreground(t.Primary),
		raw:     lipgloss.NewStyle().Foreground(t.TextMuted).Italic(true),
	}
}

// badge renders a label as a colored pill.
func (t Theme) badge(l model.Label) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#ffffff")).
		Background(t.LabelColor(l)).
		Padding(0, 1).
		Render(string(l))
}
