// Package ui renders analysis results for the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/timvw/bias-lens/internal/model"
)

const (
	// DefaultWidth is the card width when the terminal size is unknown.
	DefaultWidth = 72
	// previewLines caps the raw output shown on a failure card.
	previewLines = 8
)

// Card renders analyses as bordered cards.
type Card struct {
	theme  Theme
	styles styles
	width  int
}

// NewCard returns a card renderer. width <= 0 means DefaultWidth.
func NewCard(theme Theme, width int) *Card {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Card{theme: theme, styles: newStyles(theme), width: width}
}

// Render draws a verdict card or, when parsing failed, a failure card with
// a preview of what the model said.
func (c *Card) Render(a *model.Analysis) string {
	if a.Outcome.OK() {
		return c.renderVerdict(a)
	}
	return c.renderFailure(a)
}

// inner is the text width inside border and padding.
func (c *Card) inner() int {
	return c.width - 4
}

func (c *Card) renderVerdict(a *model.Analysis) string {
	v := a.Outcome.Verdict
	s := c.styles

	lines := []string{
		s.title.Render("Political bias") + "  " + c.theme.badge(v.Label),
		"",
		c.row("Confidence", fmt.Sprintf("%s %.0f%%", c.meter(v.Confidence, v.Label), v.Confidence*100)),
		c.row("Model", a.Model),
		c.row("Source", sourceLine(a.Source)),
		c.row("Words", c.wordsLine(a.Words)),
		"",
		s.text.Width(c.inner()).Render(v.Rationale),
		"",
		s.dim.Render("run " + a.RunID),
	}
	return s.card.Width(c.width - 2).Render(strings.Join(lines, "\n"))
}

func (c *Card) renderFailure(a *model.Analysis) string {
	f := a.Outcome.Failure
	s := c.styles

	lines := []string{
		s.err.Render("No verdict") + "  " + s.dim.Render(string(f.Stage)),
		"",
		s.text.Width(c.inner()).Render(f.Detail),
		"",
		c.row("Model", a.Model),
		c.row("Source", sourceLine(a.Source)),
		c.row("Words", c.wordsLine(a.Words)),
		"",
		s.dim.Render("Raw output:"),
	}
	for _, l := range Preview(a.RawOutput, c.inner(), previewLines) {
		lines = append(lines, s.raw.Render(l))
	}
	lines = append(lines, "", s.dim.Render("run "+a.RunID))
	return s.card.Width(c.width - 2).Render(strings.Join(lines, "\n"))
}

func (c *Card) row(key, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, c.styles.key.Render(key), c.styles.text.Render(value))
}

// meter draws confidence as a ten-cell bar in the label color.
func (c *Card) meter(conf float64, l model.Label) string {
	filled := int(conf*10 + 0.5)
	if filled > 10 {
		filled = 10
	}
	on := lipgloss.NewStyle().Foreground(c.theme.LabelColor(l)).Render(strings.Repeat("█", filled))
	off := c.styles.dim.Render(strings.Repeat("░", 10-filled))
	return on + off
}

func (c *Card) wordsLine(w model.WordStats) string {
	if w.Cut() == 0 {
		return fmt.Sprintf("%d", w.Kept)
	}
	return fmt.Sprintf("%d of %d ", w.Kept, w.Original) + c.styles.warn.Render(fmt.Sprintf("(%d cut)", w.Cut()))
}

func sourceLine(src model.SourceInfo) string {
	out := src.Source
	if src.URL != "" {
		out += " " + src.URL
	}
	if src.Extracted {
		out += " (extracted)"
	}
	return out
}

// Preview returns at most maxLines lines of raw, each cut to width display
// cells. Wide runes count double. An empty raw gives a single placeholder
// line.
func Preview(raw string, width, maxLines int) []string {
	raw = strings.TrimRight(raw, "\n")
	if strings.TrimSpace(raw) == "" {
		return []string{"(empty)"}
	}
	lines := strings.Split(raw, "\n")
	more := len(lines) > maxLines
	if more {
		lines = lines[:maxLines]
	}
	out := make([]string, 0, len(lines)+1)
	for _, l := range lines {
		l = strings.ReplaceAll(l, "\t", "    ")
		out = append(out, runewidth.Truncate(l, width, "…"))
	}
	if more {
		out = append(out, "…")
	}
	return out
}
