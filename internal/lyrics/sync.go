package lyrics

import "math"

// UpcomingWindow is the number of lines after the active one that are
// emphasised as coming up next.
const UpcomingWindow = 3

// LineState is the display classification of a lyric line at a given
// playback position.
type LineState int

const (
	// StateUpcoming marks lines that have not been reached yet.
	StateUpcoming LineState = iota
	// StateActive marks the line being sung.
	StateActive
	// StatePassed marks lines that have already been sung.
	StatePassed
)

// String returns the string representation of the line state.
func (s LineState) String() string {
	switch s {
	case StateUpcoming:
		return "upcoming"
	case StateActive:
		return "active"
	case StatePassed:
		return "passed"
	default:
		return "unknown"
	}
}

// LineView is the classification of one line.
type LineView struct {
	State LineState
	// Near is set on the UpcomingWindow lines right after the active one.
	Near bool
}

// View is the complete display state of a lyric sheet at time T.
type View struct {
	T        float64
	Active   int // -1 when no line is active
	Lines    []LineView
	Progress float64 // 0..1 through the active line
}

// ActiveIndex returns the index i such that lines[i].Time <= t <
// lines[i+1].Time, treating the last line as open ended. It returns -1
// when t precedes the first line or there are no lines.
func ActiveIndex(lines []Line, t float64) int {
	for i := range lines {
		if t >= lines[i].Time && t < nextTime(lines, i) {
			return i
		}
	}
	return -1
}

// Progress returns how far t is through line i as a fraction in [0,1].
// The last line has no upper bound so its progress is always 0.
func Progress(lines []Line, i int, t float64) float64 {
	if i < 0 || i >= len(lines) {
		return 0
	}
	next := nextTime(lines, i)
	if math.IsInf(next, 1) {
		return 0
	}
	span := next - lines[i].Time
	if span <= 0 {
		return 0
	}
	p := (t - lines[i].Time) / span
	return math.Max(0, math.Min(1, p))
}

// Classify computes the display state of every line at time t. At most one
// line is ever active.
func Classify(lines []Line, t float64) View {
	v := View{
		T:      t,
		Active: ActiveIndex(lines, t),
		Lines:  make([]LineView, len(lines)),
	}

	for i := range lines {
		switch {
		case v.Active >= 0 && i == v.Active:
			v.Lines[i].State = StateActive
		case v.Active >= 0 && i < v.Active:
			v.Lines[i].State = StatePassed
		case v.Active >= 0:
			v.Lines[i].State = StateUpcoming
			v.Lines[i].Near = i-v.Active <= UpcomingWindow
		case t < lines[i].Time:
			v.Lines[i].State = StateUpcoming
		default:
			v.Lines[i].State = StatePassed
		}
	}

	v.Progress = Progress(lines, v.Active, t)
	return v
}

func nextTime(lines []Line, i int) float64 {
	if i+1 < len(lines) {
		return lines[i+1].Time
	}
	return math.Inf(1)
}
