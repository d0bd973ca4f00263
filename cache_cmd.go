package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/soulrrrrr/karaoke-app/internal/store"
	"github.com/spf13/cobra"
)

var evictExpired bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "List cached lyrics",
	Long:  paragraph(fmt.Sprintf("\nList the lyrics cache. Entries expire after lyrics.ttl; %s removes them.", keyword("--evict"))),
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts := options(!evictExpired)
		storage, err := openStorage(opts)
		if err != nil {
			return err
		}
		st := store.New(storage, store.WithTTL(opts.LyricsTTL))
		defer func() { _ = st.Close() }()

		w := cmd.OutOrStdout()
		if evictExpired {
			n := st.EvictExpired()
			fmt.Fprintf(w, "Evicted %s.\n", plural(n, "expired entry", "expired entries"))
		}
		return printCache(w, st.LyricsEntries(), shouldColorize(w))
	},
}

func init() {
	cacheCmd.Flags().BoolVar(&evictExpired, "evict", false, "remove expired entries")
}

func printCache(w io.Writer, entries []store.LyricsEntry, colorize bool) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "The lyrics cache is empty.")
		return err
	}

	headers := []string{"Video", "Title", "Artist", "Lines", "Cached", "State"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		state := "fresh"
		if e.Expired {
			state = "expired"
		}
		rows = append(rows, []string{
			e.VideoID,
			e.Title,
			e.Artist,
			strconv.Itoa(e.Lines),
			humanize.Time(e.CachedAt),
			state,
		})
	}

	_, err := fmt.Fprintf(w, "%s\n%s\n", renderTable(headers, rows, aligns, colorize),
		plural(len(entries), "entry", "entries"))
	return err
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return humanize.Comma(int64(n)) + " " + many
}
