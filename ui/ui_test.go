package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/soulrrrrr/karaoke-app/internal/audio"
	"github.com/soulrrrrr/karaoke-app/internal/backend"
	"github.com/soulrrrrr/karaoke-app/internal/lyrics"
	kmodel "github.com/soulrrrrr/karaoke-app/internal/model"
	"github.com/soulrrrrr/karaoke-app/internal/queue"
)

type fakeQueue struct {
	items    []kmodel.QueueItem
	current  int
	enqueued []string
	switched []int
	removed  []int
	loadErr  error
}

func (f *fakeQueue) Items() []kmodel.QueueItem { return f.items }
func (f *fakeQueue) CurrentIndex() int         { return f.current }

func (f *fakeQueue) Enqueue(ctx context.Context, videoID, title, artist string) (kmodel.QueueItem, error) {
	f.enqueued = append(f.enqueued, videoID)
	item := kmodel.NewQueueItem(videoID, title, artist)
	f.items = append(f.items, *item)
	return *item, f.loadErr
}

func (f *fakeQueue) SwitchTo(ctx context.Context, index int) error {
	f.switched = append(f.switched, index)
	return f.loadErr
}

func (f *fakeQueue) Remove(ctx context.Context, index int) error {
	f.removed = append(f.removed, index)
	return nil
}

func (f *fakeQueue) Retry(ctx context.Context, index int) error { return queue.ErrNotFailed }

type fakePlayer struct {
	paused   bool
	position float64
	duration float64
	volume   float64
	lastSeek float64
	nudges   []float64
	mutes    int
}

func (f *fakePlayer) Toggle() error {
	f.paused = !f.paused
	return nil
}

func (f *fakePlayer) Nudge(delta float64) error {
	f.nudges = append(f.nudges, delta)
	return nil
}

func (f *fakePlayer) Seek(fraction float64) error {
	f.lastSeek = fraction
	return nil
}

func (f *fakePlayer) SetVolume(v float64) error {
	f.volume = min(1, max(0, v))
	return nil
}

func (f *fakePlayer) ToggleMute() error {
	f.mutes++
	return nil
}

func (f *fakePlayer) Volume() float64   { return f.volume }
func (f *fakePlayer) Position() float64 { return f.position }
func (f *fakePlayer) Duration() float64 { return f.duration }
func (f *fakePlayer) Paused() bool      { return f.paused }

type fakeSearch struct {
	err error
}

func (f fakeSearch) First(ctx context.Context, query string) (backend.SearchResult, error) {
	if f.err != nil {
		return backend.SearchResult{}, f.err
	}
	return backend.SearchResult{
		VideoID: "vid-" + query,
		Name:    strings.ToUpper(query),
		Artists: []backend.Artist{{Name: "Someone"}},
	}, nil
}

func newTestModel(q *fakeQueue, p *fakePlayer, s Searcher) model {
	cfg := Config{QueueHeight: 4, VolumeStep: 0.1, SeekStep: 0.1}
	m := newModel(context.Background(), cfg, Services{Queue: q, Player: p, Search: s})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(model)
}

func press(t *testing.T, m model, keys ...string) (model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "left":
			msg = tea.KeyMsg{Type: tea.KeyLeft}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case " ":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, c := m.Update(msg)
		m, cmd = next.(model), c
	}
	return m, cmd
}

func threeSongs() *fakeQueue {
	q := &fakeQueue{current: 0}
	for _, id := range []string{"a", "b", "c"} {
		q.items = append(q.items, *kmodel.NewQueueItem(id, "Song "+id, "Band"))
	}
	return q
}

func TestTransportKeys(t *testing.T) {
	p := &fakePlayer{paused: true, position: 50, duration: 100, volume: 0.5}
	m := newTestModel(threeSongs(), p, fakeSearch{})

	m, _ = press(t, m, " ")
	if p.paused || m.paused {
		t.Error("space should start playback")
	}

	m, _ = press(t, m, "left", "right")
	if len(p.nudges) != 2 || p.nudges[0] != -audio.NudgeStep || p.nudges[1] != audio.NudgeStep {
		t.Errorf("nudges = %v", p.nudges)
	}

	m, _ = press(t, m, "]")
	if p.lastSeek < 0.59 || p.lastSeek > 0.61 {
		t.Errorf("seek = %v, want 0.6", p.lastSeek)
	}

	m, _ = press(t, m, "+")
	if p.volume < 0.59 || p.volume > 0.61 || m.volume != p.volume {
		t.Errorf("volume = %v (ui %v), want 0.6", p.volume, m.volume)
	}

	_, _ = press(t, m, "m")
	if p.mutes != 1 {
		t.Errorf("mutes = %d, want 1", p.mutes)
	}
}

func TestQueueKeys(t *testing.T) {
	q := threeSongs()
	m := newTestModel(q, &fakePlayer{paused: true}, fakeSearch{})

	m, cmd := press(t, m, "down", "enter")
	if cmd == nil {
		t.Fatal("enter on the queue should switch songs")
	}
	cmd()
	if len(q.switched) != 1 || q.switched[0] != 1 {
		t.Errorf("switched = %v, want [1]", q.switched)
	}

	_, cmd = press(t, m, "d")
	if cmd == nil {
		t.Fatal("d should remove the selected song")
	}
	cmd()
	if len(q.removed) != 1 || q.removed[0] != 1 {
		t.Errorf("removed = %v, want [1]", q.removed)
	}
}

func TestFuzzyJump(t *testing.T) {
	q := &fakeQueue{}
	for _, title := range []string{"Bohemian Rhapsody", "Dancing Queen", "Hotel California"} {
		q.items = append(q.items, *kmodel.NewQueueItem(title, title, ""))
	}
	m := newTestModel(q, &fakePlayer{}, fakeSearch{})

	m, _ = press(t, m, "/", "h", "o", "t")
	if m.cursor != 2 {
		t.Errorf("cursor = %d, want 2", m.cursor)
	}
	m, _ = press(t, m, "enter")
	if m.focus != focusQueue {
		t.Error("enter should leave the filter")
	}

	if idx := fuzzyJump(q.items, "zzz"); idx != -1 {
		t.Errorf("fuzzyJump without a match = %d, want -1", idx)
	}
}

func TestSearchEnqueues(t *testing.T) {
	q := &fakeQueue{current: -1}
	m := newTestModel(q, &fakePlayer{}, fakeSearch{})

	m, cmd := press(t, m, "tab", "h", "i", "enter")
	if !m.searching || cmd == nil {
		t.Fatal("search should be in flight")
	}

	msg := cmd()
	res, ok := msg.(enqueuedMsg)
	if !ok || res.searchErr != nil || res.item.VideoID != "vid-hi" {
		t.Fatalf("search result = %#v", msg)
	}
	if len(q.enqueued) != 1 || q.items[0].Title != "HI" || q.items[0].Artist != "Someone" {
		t.Errorf("enqueued %v with %+v", q.enqueued, q.items)
	}

	next, _ := m.Update(res)
	m = next.(model)
	if m.searching || m.statusIsError {
		t.Error("successful search left an error or spinner behind")
	}
}

func TestSearchNotFound(t *testing.T) {
	m := newTestModel(&fakeQueue{current: -1}, &fakePlayer{}, fakeSearch{err: backend.ErrNotFound})

	msg := searchCmd(context.Background(), m.svc, "nothing")()
	next, _ := m.Update(msg)
	m = next.(model)

	if m.statusMessage != "No songs found" || !m.statusIsError {
		t.Errorf("status = %q (error %v)", m.statusMessage, m.statusIsError)
	}
}

func TestForegroundErrorBanner(t *testing.T) {
	m := newTestModel(threeSongs(), &fakePlayer{}, fakeSearch{})

	next, _ := m.Update(opDoneMsg{op: "Switch", err: errors.New("audio not found"), foreground: true})
	m = next.(model)
	if m.banner == nil || !strings.Contains(m.View(), "audio not found") {
		t.Fatal("foreground failure should block the screen")
	}

	m, _ = press(t, m, "x")
	if m.banner != nil {
		t.Error("any key should dismiss the banner")
	}

	next, _ = m.Update(opDoneMsg{op: "Retry", err: queue.ErrNotFailed})
	m = next.(model)
	if m.banner != nil || !m.statusIsError {
		t.Error("background failure should only show a status message")
	}
}

func TestLoadedSongLyrics(t *testing.T) {
	m := newTestModel(threeSongs(), &fakePlayer{}, fakeSearch{})

	item := *kmodel.NewQueueItem("a", "Song a", "Band")
	item.Lyrics = &kmodel.Lyrics{SyncedLyrics: kmodel.SyncedLyrics{
		{Time: 1, Text: "hello"},
		{Time: 2, Text: ""},
	}}
	next, _ := m.Update(QueueMsg(queue.Event{Kind: queue.EventLoaded, Current: 0, Item: item}))
	m = next.(model)
	if len(m.lines) != 2 || m.noLyrics {
		t.Fatalf("lines = %v noLyrics = %v", m.lines, m.noLyrics)
	}

	// A view computed for another sheet is ignored, even with the same
	// number of lines.
	other := []lyrics.Line{{Time: 0, Text: "x"}, {Time: 5, Text: "y"}}
	next, _ = m.Update(LyricsMsg{Slot: "previous", View: lyrics.Classify(other, 1)})
	m = next.(model)
	if m.view.Active != -1 {
		t.Errorf("view of another song applied, active = %d", m.view.Active)
	}
	next, _ = m.Update(LyricsMsg{Slot: item.Slot, View: lyrics.Classify(other[:1], 1)})
	m = next.(model)
	if m.view.Active != -1 {
		t.Errorf("view of an older sheet applied, active = %d", m.view.Active)
	}

	next, _ = m.Update(LyricsMsg{Slot: item.Slot, View: lyrics.Classify(m.lines, 1.5)})
	m = next.(model)
	if m.view.Active != 0 {
		t.Errorf("active = %d, want 0", m.view.Active)
	}

	bare := *kmodel.NewQueueItem("b", "Song b", "Band")
	next, _ = m.Update(QueueMsg(queue.Event{Kind: queue.EventLoaded, Current: 1, Item: bare}))
	m = next.(model)
	if !m.noLyrics || !strings.Contains(m.lyricsPane.View(), noLyricsText) {
		t.Error("song without lyrics should say so")
	}

	next, _ = m.Update(QueueMsg(queue.Event{Kind: queue.EventCleared, Current: -1}))
	m = next.(model)
	if m.slot != "" || !strings.Contains(m.View(), "No song selected") {
		t.Error("cleared queue should show no song")
	}
}

func TestLyricsView(t *testing.T) {
	lines := []lyrics.Line{
		{Time: 0, Text: "one"},
		{Time: 2, Text: "  "},
		{Time: 4, Text: "three"},
	}
	out := lyricsView(lines, lyrics.Classify(lines, 3), 0)
	rows := strings.Split(out, "\n")
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if !strings.Contains(rows[1], musicNote) {
		t.Errorf("blank line rendered as %q, want a music note", rows[1])
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in       float64
		expected string
	}{
		{0, "00:00"},
		{5.9, "00:05"},
		{65, "01:05"},
		{-3, "00:00"},
		{3600, "60:00"},
	}
	for _, tt := range tests {
		if got := formatTime(tt.in); got != tt.expected {
			t.Errorf("formatTime(%v) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}
