package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/soulrrrrr/karaoke-app/internal/lyrics"
	"github.com/spf13/cobra"
)

var (
	lrcOffset float64
	lrcAt     float64
)

var lrcCmd = &cobra.Command{
	Use:   "lrc FILE",
	Short: "Clean up a timed lyrics file",
	Long: paragraph(fmt.Sprintf("\n%s timed lyrics from FILE (or - for stdin), drop lines without timestamps, sort them and print them back. "+
		"With --at, mark where a singer would be at that moment.", keyword("Parse"))),
	Example: paragraph("karaoke lrc song.lrc\nkaraoke lrc --offset -0.5 song.lrc\nkaraoke lrc --at 42 song.lrc"),
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readSource(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		lines := lyrics.Parse(raw)
		if len(lines) == 0 {
			return errors.New("no timed lines found")
		}
		lines = shiftLines(lines, lrcOffset)

		w := cmd.OutOrStdout()
		if cmd.Flags().Changed("at") {
			_, err = fmt.Fprintln(w, markLines(lines, lrcAt))
			return err
		}
		_, err = fmt.Fprintln(w, lyrics.Format(lines))
		return err
	},
}

func init() {
	lrcCmd.Flags().Float64Var(&lrcOffset, "offset", 0, "shift every timestamp by this many seconds")
	lrcCmd.Flags().Float64Var(&lrcAt, "at", 0, "show line states at this playback position, in seconds")
}

func readSource(stdin io.Reader, arg string) (string, error) {
	if arg == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("unable to read from stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("unable to open file: %w", err)
	}
	return string(b), nil
}

// shiftLines moves every line by offset seconds, never before zero.
func shiftLines(lines []lyrics.Line, offset float64) []lyrics.Line {
	if offset == 0 {
		return lines
	}
	out := make([]lyrics.Line, len(lines))
	for i, l := range lines {
		out[i] = lyrics.Line{Time: max(0, l.Time+offset), Text: l.Text}
	}
	return out
}

// markLines prefixes every line with its state at t: "✓" sung, ">" being
// sung, "·" coming up next.
func markLines(lines []lyrics.Line, t float64) string {
	v := lyrics.Classify(lines, t)
	rows := make([]string, len(lines))
	for i, l := range lines {
		mark := " "
		switch {
		case v.Lines[i].State == lyrics.StatePassed:
			mark = "✓"
		case v.Lines[i].State == lyrics.StateActive:
			mark = ">"
		case v.Lines[i].Near:
			mark = "·"
		}
		rows[i] = fmt.Sprintf("%s %s%s", mark, lyrics.FormatTimestamp(l.Time), l.Text)
	}
	if v.Active >= 0 {
		rows = append(rows, fmt.Sprintf("\nline %d, %.0f%% through", v.Active+1, v.Progress*100))
	}
	return strings.Join(rows, "\n")
}
