package ui

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/sahilm/fuzzy"
	kmodel "github.com/soulrrrrr/karaoke-app/internal/model"
)

// queueSource exposes queue items to the fuzzy matcher.
type queueSource []kmodel.QueueItem

func (s queueSource) String(i int) string { return s[i].Title + " " + s[i].Artist }
func (s queueSource) Len() int            { return len(s) }

// fuzzyJump returns the index of the best match for pattern, or -1.
func fuzzyJump(items []kmodel.QueueItem, pattern string) int {
	if pattern == "" {
		return -1
	}
	matches := fuzzy.FindFrom(pattern, queueSource(items))
	if len(matches) == 0 {
		return -1
	}
	return matches[0].Index
}

// queueView renders the queue header and a window of rows that keeps the
// cursor visible.
func (m model) queueView() string {
	rows := max(1, m.common.cfg.QueueHeight)

	var b strings.Builder
	fmt.Fprintln(&b, subtleStyle.Render(fmt.Sprintf("Queue (%d)", len(m.items))))

	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	for i := start; i < start+rows; i++ {
		if i >= len(m.items) {
			fmt.Fprintln(&b)
			continue
		}
		fmt.Fprintln(&b, m.queueRow(i))
	}
	return b.String()
}

func (m model) queueRow(i int) string {
	item := m.items[i]

	marker := "  "
	if i == m.cursor && m.focus == focusQueue {
		marker = cursorStyle.Render("› ")
	}

	badge := statusBadge(item.Status)
	if item.Status == kmodel.StatusLoading {
		badge = m.spinner.View() + " " + badge
	}

	label := fmt.Sprintf("%d. %s", i+1, item.Title)
	if item.Artist != "" {
		label += " – " + item.Artist
	}
	if i == m.current {
		label = "▶ " + label
	}

	room := max(0, m.common.width-ansi.PrintableRuneWidth(marker)-ansi.PrintableRuneWidth(badge)-1)
	label = truncate.StringWithTail(label, uint(room), ellipsis) //nolint:gosec
	if i == m.current {
		label = currentRowStyle.Render(label)
	}

	padding := max(1, m.common.width-ansi.PrintableRuneWidth(marker)-ansi.PrintableRuneWidth(label)-ansi.PrintableRuneWidth(badge))
	return marker + label + strings.Repeat(" ", padding) + badge
}

func statusBadge(status kmodel.Status) string {
	style, ok := statusStyles[string(status)]
	if !ok {
		return string(status)
	}
	return style.Render(string(status))
}
