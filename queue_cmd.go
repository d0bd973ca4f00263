package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/soulrrrrr/karaoke-app/internal/backend"
	"github.com/soulrrrrr/karaoke-app/internal/model"
	"github.com/soulrrrrr/karaoke-app/internal/store"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:     "add QUERY...",
	Short:   "Search for a song and add it to the queue",
	Long:    paragraph(fmt.Sprintf("\n%s the best match for QUERY to the saved queue without opening the player. Preparation continues the next time the player starts.", keyword("Add"))),
	Example: paragraph("karaoke add bohemian rhapsody\nkaraoke add \"dancing queen abba\""),
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		opts := options(false)
		opts.DryAudio = true
		a, err := newApp(opts)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx := cmd.Context()
		res, err := a.client.First(ctx, query)
		if errors.Is(err, backend.ErrNotFound) {
			return fmt.Errorf("no songs found for %q", query)
		} else if err != nil {
			return fmt.Errorf("unable to search: %w", err)
		}

		if _, err := a.queue.Restore(ctx); err != nil {
			log.Warn("Could not load the current song", "err", err)
		}
		item, err := a.queue.Enqueue(ctx, res.VideoID, res.Name, res.Artist())
		if err != nil {
			log.Warn("Could not load the new song", "err", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Added %s (#%d in queue)\n", describe(item), a.queue.Len())
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the saved queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printQueue(cmd.OutOrStdout())
	},
}

// printQueue writes the persisted queue as a table.
func printQueue(w io.Writer) error {
	storage, err := openStorage(options(true))
	if err != nil {
		return err
	}
	st := store.New(storage)
	defer func() { _ = st.Close() }()

	snap, ok := st.LoadQueueSnapshot()
	if !ok || len(snap.Items) == 0 {
		_, err := fmt.Fprintln(w, "The queue is empty.")
		return err
	}

	_, err = fmt.Fprintln(w, queueTable(snap, shouldColorize(w)))
	return err
}

func queueTable(snap store.Snapshot, colorize bool) string {
	headers := []string{"", "#", "Title", "Artist", "Status", "Lyrics"}
	aligns := []columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignRight}

	rows := make([][]string, 0, len(snap.Items))
	for i, item := range snap.Items {
		marker := ""
		if i == snap.CurrentIndex {
			marker = "▶"
		}
		lines := "-"
		if item.Lyrics.HasLines() {
			lines = strconv.Itoa(len(item.Lyrics.SyncedLyrics))
		}
		rows = append(rows, []string{
			marker,
			strconv.Itoa(i + 1),
			item.Title,
			item.Artist,
			colorStatus(string(item.Status), colorize),
			lines,
		})
	}
	return renderTable(headers, rows, aligns, colorize)
}

func describe(item model.QueueItem) string {
	if item.Artist == "" {
		return item.Title
	}
	return item.Title + " – " + item.Artist
}
