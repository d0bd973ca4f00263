package store

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/soulrrrrr/karaoke-app/internal/model"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestStore(t *testing.T, storage Storage, clock *fakeClock) *Store {
	t.Helper()
	return New(storage,
		WithClock(clock.Now),
		WithLogger(log.New(io.Discard)),
	)
}

func TestLyricsExpireAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	mem := NewMemoryStorage()
	s := newTestStore(t, mem, clock)

	clock.now = clock.now.Add(-25 * time.Hour)
	s.PutLyrics("x", &model.Lyrics{Title: "Old"})
	s.PutLyrics("y", &model.Lyrics{Title: "Fresh"})
	clock.now = clock.now.Add(25 * time.Hour)
	s.PutLyrics("y", &model.Lyrics{Title: "Fresh"})

	if _, ok := s.GetLyrics("x"); ok {
		t.Fatal("expected expired entry to be a miss")
	}
	// Reads never evict.
	if entries := s.LyricsEntries(); len(entries) != 2 {
		t.Fatalf("expected 2 stored entries before eviction, got %d", len(entries))
	}

	if removed := s.EvictExpired(); removed != 1 {
		t.Fatalf("EvictExpired removed %d, want 1", removed)
	}
	entries := s.LyricsEntries()
	if len(entries) != 1 || entries[0].VideoID != "y" {
		t.Fatalf("unexpected entries after eviction: %+v", entries)
	}

	got, ok := s.GetLyrics("y")
	if !ok || got.Title != "Fresh" {
		t.Fatalf("GetLyrics(y) = %+v, %v", got, ok)
	}

	stats := s.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Evictions != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", stats.HitRate)
	}
}

func TestLyricsJustBeforeTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := newTestStore(t, NewMemoryStorage(), clock)

	s.PutLyrics("a", &model.Lyrics{Title: "A"})
	clock.now = clock.now.Add(DefaultLyricsTTL - time.Millisecond)
	if _, ok := s.GetLyrics("a"); !ok {
		t.Fatal("entry younger than the TTL should hit")
	}
	clock.now = clock.now.Add(time.Millisecond)
	if _, ok := s.GetLyrics("a"); ok {
		t.Fatal("entry exactly TTL old should miss")
	}
}

func TestQueueSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t, NewMemoryStorage(), &fakeClock{now: time.Now()})

	if _, ok := s.LoadQueueSnapshot(); ok {
		t.Fatal("expected no snapshot in empty storage")
	}

	a := model.NewQueueItem("a1", "Song A", "Artist A")
	b := model.NewQueueItem("b1", "Song B", "Artist B")
	if err := b.MarkReady(&model.Instrumental{Source: "/files/b1.mp3"}); err != nil {
		t.Fatal(err)
	}
	a.MarkLoading()

	s.SaveQueueSnapshot([]*model.QueueItem{a, b}, 1)

	snap, ok := s.LoadQueueSnapshot()
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if len(snap.Items) != 2 || snap.CurrentIndex != 1 {
		t.Fatalf("unexpected snapshot: %d items, index %d", len(snap.Items), snap.CurrentIndex)
	}
	if snap.Items[0].Slot != a.Slot {
		t.Error("slot identity was not persisted")
	}
	if snap.Items[0].Status != model.StatusQueued {
		t.Errorf("loading item restored as %s, want queued", snap.Items[0].Status)
	}
	if snap.Items[1].Status != model.StatusReady || snap.Items[1].Instrumental.Source != "/files/b1.mp3" {
		t.Errorf("ready item not restored: %+v", snap.Items[1])
	}
}

func TestLoadQueueSnapshotRepairsIndex(t *testing.T) {
	tests := []struct {
		name     string
		queue    string
		index    string
		expected int
	}{
		{"index past end", `[{"videoId":"a"},{"videoId":"b"}]`, "5", 0},
		{"negative index", `[{"videoId":"a"}]`, "-1", 0},
		{"missing index", `[{"videoId":"a"}]`, "", 0},
		{"zero index kept", `[{"videoId":"a"},{"videoId":"b"}]`, "0", 0},
		{"valid index kept", `[{"videoId":"a"},{"videoId":"b"}]`, "1", 1},
		{"empty queue", `[]`, "3", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := NewMemoryStorage()
			_ = mem.SetItem(KeyQueue, tt.queue)
			if tt.index != "" {
				_ = mem.SetItem(KeyCurrentIndex, tt.index)
			}
			s := newTestStore(t, mem, &fakeClock{now: time.Now()})

			snap, ok := s.LoadQueueSnapshot()
			if !ok {
				t.Fatal("expected a snapshot")
			}
			if snap.CurrentIndex != tt.expected {
				t.Errorf("CurrentIndex = %d, want %d", snap.CurrentIndex, tt.expected)
			}
		})
	}
}

func TestLoadQueueSnapshotMalformed(t *testing.T) {
	mem := NewMemoryStorage()
	_ = mem.SetItem(KeyQueue, "{not json")
	s := newTestStore(t, mem, &fakeClock{now: time.Now()})

	snap, ok := s.LoadQueueSnapshot()
	if ok {
		t.Fatal("malformed snapshot should read as absent")
	}
	if snap.CurrentIndex != -1 || len(snap.Items) != 0 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestMalformedLyricsCacheIsReplaced(t *testing.T) {
	mem := NewMemoryStorage()
	_ = mem.SetItem(KeyLyricsCache, "garbage")
	s := newTestStore(t, mem, &fakeClock{now: time.Now()})

	if _, ok := s.GetLyrics("a"); ok {
		t.Fatal("expected miss on corrupted cache")
	}
	s.PutLyrics("a", &model.Lyrics{Title: "A"})
	if _, ok := s.GetLyrics("a"); !ok {
		t.Fatal("expected PutLyrics to replace the corrupted aggregate")
	}
}

type failingStorage struct{}

var errBroken = errors.New("storage broken")

func (failingStorage) GetItem(string) (string, bool, error) { return "", false, errBroken }
func (failingStorage) SetItem(string, string) error         { return errBroken }
func (failingStorage) RemoveItem(string) error              { return errBroken }
func (failingStorage) Keys() ([]string, error)              { return nil, errBroken }
func (failingStorage) Close() error                         { return nil }

func TestStorageFailuresDegrade(t *testing.T) {
	s := newTestStore(t, failingStorage{}, &fakeClock{now: time.Now()})

	s.SaveQueueSnapshot([]*model.QueueItem{model.NewQueueItem("a", "A", "")}, 0)
	if _, ok := s.LoadQueueSnapshot(); ok {
		t.Error("expected no snapshot from failing storage")
	}
	s.PutLyrics("a", &model.Lyrics{Title: "A"})
	if _, ok := s.GetLyrics("a"); ok {
		t.Error("expected cache miss from failing storage")
	}
	if n := s.EvictExpired(); n != 0 {
		t.Errorf("EvictExpired = %d, want 0", n)
	}
	if v := s.Volume(); v != 1 {
		t.Errorf("Volume = %v, want default 1", v)
	}
	s.SetVolume(0.3)
}

func TestVolume(t *testing.T) {
	mem := NewMemoryStorage()
	s := newTestStore(t, mem, &fakeClock{now: time.Now()})

	if v := s.Volume(); v != 1 {
		t.Fatalf("default volume = %v, want 1", v)
	}
	s.SetVolume(0.25)
	if v := s.Volume(); v != 0.25 {
		t.Fatalf("volume = %v, want 0.25", v)
	}
	s.SetVolume(7)
	if v := s.Volume(); v != 1 {
		t.Fatalf("volume = %v, want clamped 1", v)
	}

	_ = mem.SetItem(KeyVolume, "loud")
	if v := s.Volume(); v != 1 {
		t.Fatalf("invalid stored volume = %v, want 1", v)
	}
}
