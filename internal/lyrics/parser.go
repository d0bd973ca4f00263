package lyrics

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Line is a single lyric line starting at Time seconds.
type Line struct {
	Time float64 `json:"time"`
	Text string  `json:"text"`
}

var (
	// One or more leading [mm:ss.xx] tags followed by the line text.
	lineRegex = regexp.MustCompile(`^((?:\[\d{2,}:\d{2}\.\d{2}\])+)(.*)$`)
	tagRegex  = regexp.MustCompile(`\[(\d{2,}):(\d{2})\.(\d{2})\]`)
)

// Parse converts raw timed lyrics into lines sorted by time. Lines that do
// not start with a timestamp (metadata tags, blank lines, garbage) are
// dropped. A line carrying several timestamps is emitted once per
// timestamp.
func Parse(raw string) []Line {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var lines []Line
	for _, rawLine := range strings.Split(raw, "\n") {
		rawLine = strings.TrimSpace(strings.TrimSuffix(rawLine, "\r"))
		m := lineRegex.FindStringSubmatch(rawLine)
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[2])
		for _, tag := range tagRegex.FindAllStringSubmatch(m[1], -1) {
			centis, ok := tagCentis(tag[1], tag[2], tag[3])
			if !ok {
				continue
			}
			lines = append(lines, Line{Time: float64(centis) / 100, Text: text})
		}
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Time < lines[j].Time })
	return lines
}

func tagCentis(minutes, seconds, hundredths string) (int64, bool) {
	m, err := strconv.ParseInt(minutes, 10, 64)
	if err != nil {
		return 0, false
	}
	s, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil {
		return 0, false
	}
	cs, err := strconv.ParseInt(hundredths, 10, 64)
	if err != nil {
		return 0, false
	}
	return (m*60+s)*100 + cs, true
}

// FormatTimestamp renders seconds as an [mm:ss.xx] tag.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	centis := int64(math.Round(seconds * 100))
	return fmt.Sprintf("[%02d:%02d.%02d]", centis/6000, (centis%6000)/100, centis%100)
}

// Format renders lines back into raw timed lyrics, one line per entry.
// Parse(Format(lines)) returns lines unchanged for well-formed input.
func Format(lines []Line) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(FormatTimestamp(l.Time))
		b.WriteString(l.Text)
	}
	return b.String()
}
