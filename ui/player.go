package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"
)

const (
	headerHeight    = 2
	transportHeight = 1
	inputHeight     = 1
	statusBarHeight = 1
)

const helpMarkdown = `
| Key | Action |
|-----|--------|
| space | play / pause |
| ← / → | seek 5 seconds |
| [ / ] | seek 10% |
| + / - | volume |
| m | mute |
| enter | play selected song, or search in the search box |
| tab / s | search box |
| ↑ / ↓ | move in queue |
| / | jump to a song in the queue |
| d | remove selected song |
| r | retry a failed song |
| y | copy song title |
| ? | close help |
| q | quit |
`

func (m *model) setSize() {
	w, h := m.common.width, m.common.height
	queueRows := m.common.cfg.QueueHeight + 1

	height := h - headerHeight - transportHeight - queueRows - inputHeight - statusBarHeight
	if m.showHelp && m.helpText != "" {
		height -= strings.Count(m.helpText, "\n") + 1
	}

	m.lyricsPane.Width = w
	m.lyricsPane.Height = max(1, height)
	m.progress.Width = max(10, w-24)
	m.renderLyrics()
}

func (m model) headerView() string {
	if m.slot == "" {
		return titleStyle.Render("No song selected") + "\n" +
			artistStyle.Render("Select a song to begin")
	}
	width := uint(max(0, m.common.width)) //nolint:gosec
	return titleStyle.Render(truncate.StringWithTail(m.title, width, ellipsis)) + "\n" +
		artistStyle.Render(truncate.StringWithTail(m.artist, width, ellipsis))
}

func (m model) transportView() string {
	icon := "▶"
	if m.paused {
		icon = "⏸"
	}
	return fmt.Sprintf(" %s %s %s / %s",
		icon,
		m.progress.ViewAs(m.fraction()),
		formatTime(m.position),
		formatTime(m.duration),
	)
}

func (m model) statusBarView(b *strings.Builder) {
	showStatusMessage := m.statusMessage != ""

	logo := logoStyle.Render(" karaoke ")

	vol := fmt.Sprintf(" vol %3.f%% ", math.Round(m.volume*100))
	if m.volume == 0 {
		vol = " muted "
	}
	vol = statusBarHelpStyle(vol)

	helpNote := statusBarHelpStyle(" ? Help ")

	var note string
	switch {
	case showStatusMessage:
		note = m.statusMessage
	case m.slot != "":
		note = m.title
		if m.artist != "" {
			note += " – " + m.artist
		}
	default:
		note = fmt.Sprintf("%d songs queued", len(m.items))
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(vol)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)

	render := statusBarNoteStyle
	switch {
	case showStatusMessage && m.statusIsError:
		render = statusBarErrorStyle
	case showStatusMessage:
		render = statusBarMessageStyle
	}
	note = render(note)

	// Empty space
	padding := max(0,
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(vol)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := render(strings.Repeat(" ", padding))

	fmt.Fprintf(b, "%s%s%s%s%s", logo, note, emptySpace, vol, helpNote)
}

// copyCurrent copies "title – artist" of the loaded song.
func (m *model) copyCurrent() tea.Cmd {
	if m.slot == "" {
		return nil
	}
	s := m.title
	if m.artist != "" {
		s += " – " + m.artist
	}
	// Copy using OSC 52
	termenv.Copy(s)
	// Copy using native system clipboard
	if err := clipboard.WriteAll(s); err != nil {
		log.Debug("Native clipboard unavailable", "err", err)
	}
	return m.showStatusMessage("Copied "+s, false)
}

// formatTime renders seconds as mm:ss.
func formatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	s := int(seconds)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// COMMANDS

func renderHelp(style string, width int) tea.Cmd {
	return func() tea.Msg {
		s, err := glamourRender(style, width, helpMarkdown)
		if err != nil {
			log.Error("error rendering help", "error", err)
			return helpRenderedMsg(helpMarkdown)
		}
		return helpRenderedMsg(s)
	}
}

func glamourRender(style string, width int, markdown string) (string, error) {
	if style == "" || style == styles.AutoStyle {
		if termenv.HasDarkBackground() {
			style = styles.DarkStyle
		} else {
			style = styles.LightStyle
		}
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(max(0, width)),
	)
	if err != nil {
		return "", fmt.Errorf("error creating glamour renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("error rendering markdown: %w", err)
	}

	// Fill up empty cells with spaces for background coloring
	out = strings.TrimRight(out, "\n")
	if width > 0 {
		lines := strings.Split(out, "\n")
		for i := range lines {
			n := max(width-ansi.PrintableRuneWidth(lines[i]), 0)
			lines[i] += strings.Repeat(" ", n)
		}
		out = strings.Join(lines, "\n")
	}
	return out, nil
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}
