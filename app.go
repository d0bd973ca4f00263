package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/soulrrrrr/karaoke-app/internal/audio"
	"github.com/soulrrrrr/karaoke-app/internal/backend"
	"github.com/soulrrrrr/karaoke-app/internal/lyrics"
	"github.com/soulrrrrr/karaoke-app/internal/lyricsync"
	"github.com/soulrrrrr/karaoke-app/internal/prepare"
	"github.com/soulrrrrr/karaoke-app/internal/queue"
	"github.com/soulrrrrr/karaoke-app/internal/store"
	"github.com/soulrrrrr/karaoke-app/ui"
)

// appOptions selects the backends of an app.
type appOptions struct {
	BackendURL   string
	StatusRate   float64
	DataDir      string
	Ephemeral    bool
	Shared       bool
	LyricsTTL    time.Duration
	SyncInterval time.Duration
	DryAudio     bool
	// Output overrides the audio output, for tests.
	Output audio.Output
}

// app holds the wired components of the player.
type app struct {
	store    *store.Store
	client   *backend.Client
	pipeline *prepare.Pipeline
	player   *audio.Controller
	queue    *queue.Manager
	sync     *lyricsync.Synchronizer

	mu   sync.Mutex
	slot string
	send func(tea.Msg)
}

func openStorage(opts appOptions) (store.Storage, error) {
	if opts.Ephemeral {
		return store.NewMemoryStorage(), nil
	}
	s, err := store.OpenSQLite(opts.DataDir, store.SQLiteOptions{
		Shared:           opts.Shared,
		CompressionLevel: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open state in %s: %w", opts.DataDir, err)
	}
	return s, nil
}

func openOutput(opts appOptions) (audio.Output, error) {
	if opts.Output != nil {
		return opts.Output, nil
	}
	if opts.DryAudio {
		return audio.NewMockOutput(), nil
	}
	out, err := audio.NewOtoOutput(nil)
	if errors.Is(err, audio.ErrUnavailable) {
		log.Warn("No audio device, playing silently", "err", err)
		return audio.NewMockOutput(), nil
	}
	return out, err
}

func newApp(opts appOptions) (*app, error) {
	storage, err := openStorage(opts)
	if err != nil {
		return nil, err
	}
	st := store.New(storage, store.WithTTL(opts.LyricsTTL))

	client, err := backend.New(opts.BackendURL, backend.WithStatusRate(opts.StatusRate))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	out, err := openOutput(opts)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("unable to open audio output: %w", err)
	}

	a := &app{
		store:    st,
		client:   client,
		pipeline: prepare.New(client, st),
		send:     func(tea.Msg) {},
	}
	a.player = audio.NewController(out, client, st)
	a.queue = queue.New(client, a.player, a.pipeline, st, queue.WithLyrics(a.pipeline))
	a.sync = lyricsync.New(a.player, opts.SyncInterval)

	a.player.Subscribe(a.onPlayback)
	a.player.OnEnded(func() {
		ended, ok := a.queue.Current()
		if !ok {
			return
		}
		// Advancing waits on the network; keep draining output events.
		go a.queue.AdvanceOnEnd(context.Background(), ended.Slot)
	})
	a.queue.Subscribe(a.onQueue)
	a.sync.OnChange(func(slot string, v lyrics.View) {
		a.emit(ui.LyricsMsg{Slot: slot, View: v})
	})

	return a, nil
}

// attach forwards component events to p.
func (a *app) attach(p *tea.Program) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.send = p.Send
}

func (a *app) emit(msg tea.Msg) {
	a.mu.Lock()
	send := a.send
	a.mu.Unlock()
	send(msg)
}

func (a *app) services() ui.Services {
	return ui.Services{Queue: a.queue, Player: a.player, Search: a.client}
}

func (a *app) onPlayback(ev audio.Event) {
	switch ev.Type {
	case audio.EventPlay:
		a.sync.Start()
	case audio.EventPause, audio.EventEnded:
		a.sync.Stop()
		a.sync.Refresh()
	case audio.EventSeeked:
		a.sync.Refresh()
	}
	a.emit(ui.PlaybackMsg(ev))
}

func (a *app) onQueue(ev queue.Event) {
	switch ev.Kind {
	case queue.EventLoaded:
		a.setSheet(ev.Item.Slot, ev)
	case queue.EventCleared:
		a.sync.Stop()
		a.setSheet("", ev)
	case queue.EventChanged:
		a.mu.Lock()
		gained := ev.Item.Slot != "" && ev.Item.Slot == a.slot &&
			len(a.sync.View().Lines) == 0 && ev.Item.Lyrics.HasLines()
		a.mu.Unlock()
		if gained {
			a.setSheet(ev.Item.Slot, ev)
		}
	}
	a.emit(ui.QueueMsg(ev))
}

func (a *app) setSheet(slot string, ev queue.Event) {
	a.mu.Lock()
	a.slot = slot
	a.mu.Unlock()

	var lines []lyrics.Line
	if ev.Item.Lyrics.HasLines() {
		lines = ev.Item.Lyrics.SyncedLyrics
	}
	a.sync.SetLines(slot, lines)
}

// restore evicts stale lyrics and rehydrates the saved queue.
func (a *app) restore(ctx context.Context) {
	if n := a.store.EvictExpired(); n > 0 {
		log.Info("Evicted expired lyrics", "count", n)
	}
	ok, err := a.queue.Restore(ctx)
	if err != nil {
		log.Error("Error restoring queue", "err", err)
		return
	}
	if ok {
		log.Debug("Queue restored", "songs", a.queue.Len())
	}
}

// Close stops background work and releases the output and the store.
func (a *app) Close() error {
	a.sync.Stop()
	_ = a.pipeline.Close()
	err := a.player.Close()
	return errors.Join(err, a.store.Close())
}
