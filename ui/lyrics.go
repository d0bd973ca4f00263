package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/soulrrrrr/karaoke-app/internal/lyrics"
)

const (
	noLyricsText = "No lyrics available"
	// Shown for instrumental breaks.
	musicNote = "♪"
)

// renderLyrics refreshes the lyrics pane and keeps the active line in the
// middle of it.
func (m *model) renderLyrics() {
	width := m.lyricsPane.Width
	switch {
	case m.slot == "":
		m.lyricsPane.SetContent("")
	case m.noLyrics:
		m.lyricsPane.SetContent(center(subtleStyle.Render(noLyricsText), width))
	default:
		m.lyricsPane.SetContent(lyricsView(m.lines, m.view, width))
	}

	offset := 0
	if m.view.Active >= 0 {
		offset = max(0, m.view.Active-m.lyricsPane.Height/2)
	}
	m.lyricsPane.SetYOffset(offset)
}

// lyricsView renders one row per line, styled by its classification. The
// active line is wiped in proportion to its progress.
func lyricsView(lines []lyrics.Line, v lyrics.View, width int) string {
	rows := make([]string, len(lines))
	for i, line := range lines {
		text := line.Text
		if strings.TrimSpace(text) == "" {
			text = musicNote
		}
		if width > 0 {
			text = truncate.StringWithTail(text, uint(width), ellipsis) //nolint:gosec
		}

		var state lyrics.LineView
		if i < len(v.Lines) {
			state = v.Lines[i]
		}

		switch {
		case state.State == lyrics.StateActive:
			rows[i] = wipe(text, v.Progress)
		case state.State == lyrics.StatePassed:
			rows[i] = passedStyle.Render(text)
		case state.Near:
			rows[i] = nearLineStyle.Render(text)
		default:
			rows[i] = upcomingStyle.Render(text)
		}
		rows[i] = center(rows[i], width)
	}
	return strings.Join(rows, "\n")
}

// wipe highlights the sung part of text.
func wipe(text string, progress float64) string {
	cut := int(progress * float64(runewidth.StringWidth(text)))
	sung := runewidth.Truncate(text, cut, "")
	return sungStyle.Render(sung) + activeLineStyle.Render(text[len(sung):])
}

func center(s string, width int) string {
	if width <= 0 {
		return s
	}
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, s)
}
