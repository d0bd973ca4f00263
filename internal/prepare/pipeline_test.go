package prepare

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/soulrrrrr/karaoke-app/internal/lyrics"
	"github.com/soulrrrrr/karaoke-app/internal/model"
	"github.com/soulrrrrr/karaoke-app/internal/store"
)

type fakeCollaborator struct {
	mu          sync.Mutex
	lyricsCalls int
	lyricsErr   error
	processErr  error

	// gate, when set, blocks Process until closed or the context ends.
	gate chan struct{}
}

func (f *fakeCollaborator) Lyrics(ctx context.Context, title, artist string) (*model.Lyrics, error) {
	f.mu.Lock()
	f.lyricsCalls++
	err := f.lyricsErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &model.Lyrics{
		Title:        title,
		Artist:       artist,
		SyncedLyrics: model.SyncedLyrics{lyrics.Line{Time: 1, Text: "la"}},
	}, nil
}

func (f *fakeCollaborator) Process(ctx context.Context, videoID string) (*model.Instrumental, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.processErr != nil {
		return nil, f.processErr
	}
	return &model.Instrumental{Source: "/static/" + videoID + ".mp3"}, nil
}

func (f *fakeCollaborator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lyricsCalls
}

// liveQueue is a minimal slot-addressed queue standing in for the queue
// manager.
type liveQueue struct {
	mu    sync.Mutex
	items map[string]*model.QueueItem
}

func newLiveQueue(items ...*model.QueueItem) *liveQueue {
	q := &liveQueue{items: make(map[string]*model.QueueItem)}
	for _, it := range items {
		q.items[it.Slot] = it
	}
	return q
}

func (q *liveQueue) update(slot string, fn func(*model.QueueItem)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[slot]
	if !ok {
		return false
	}
	fn(item)
	return true
}

func (q *liveQueue) remove(slot string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, slot)
}

func (q *liveQueue) get(slot string) model.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items[slot].Clone()
}

func newTestPipeline(collab Collaborator) (*Pipeline, *store.Store) {
	quiet := log.New(io.Discard)
	cache := store.New(store.NewMemoryStorage(), store.WithLogger(quiet))
	return New(collab, cache, WithLogger(quiet)), cache
}

func TestPipelineReady(t *testing.T) {
	collab := &fakeCollaborator{}
	p, cache := newTestPipeline(collab)
	defer p.Close()

	item := model.NewQueueItem("a1", "Song A", "Artist A")
	q := newLiveQueue(item)

	if err := p.Start(JobFor(item, q.update)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	p.Wait()

	got := q.get(item.Slot)
	if got.Status != model.StatusReady {
		t.Fatalf("status = %s, want ready (err=%q)", got.Status, got.Err)
	}
	if got.Instrumental == nil || got.Instrumental.Source != "/static/a1.mp3" {
		t.Errorf("unexpected instrumental: %+v", got.Instrumental)
	}
	if !got.Lyrics.HasLines() {
		t.Error("lyrics not attached")
	}
	if _, ok := cache.GetLyrics("a1"); !ok {
		t.Error("lyrics not cached")
	}
}

func TestPipelineUsesCachedLyrics(t *testing.T) {
	collab := &fakeCollaborator{}
	p, cache := newTestPipeline(collab)
	defer p.Close()

	cache.PutLyrics("a1", &model.Lyrics{Title: "Cached"})

	item := model.NewQueueItem("a1", "Song A", "Artist A")
	q := newLiveQueue(item)
	_ = p.Start(JobFor(item, q.update))
	p.Wait()

	if collab.calls() != 0 {
		t.Errorf("lyrics fetched %d times despite cache hit", collab.calls())
	}
	if got := q.get(item.Slot); got.Lyrics == nil || got.Lyrics.Title != "Cached" {
		t.Errorf("cached lyrics not used: %+v", got.Lyrics)
	}
}

func TestPipelineFailures(t *testing.T) {
	tests := []struct {
		name   string
		collab *fakeCollaborator
	}{
		{"lyrics failure", &fakeCollaborator{lyricsErr: errors.New("lyrics down")}},
		{"process failure", &fakeCollaborator{processErr: errors.New("separation failed")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, cache := newTestPipeline(tt.collab)
			defer p.Close()

			item := model.NewQueueItem("a1", "Song A", "Artist A")
			q := newLiveQueue(item)
			_ = p.Start(JobFor(item, q.update))
			p.Wait()

			got := q.get(item.Slot)
			if got.Status != model.StatusError {
				t.Fatalf("status = %s, want error", got.Status)
			}
			if got.Err == "" {
				t.Error("error message not recorded")
			}
			if tt.collab.lyricsErr != nil {
				if _, ok := cache.GetLyrics("a1"); ok {
					t.Error("failed lyrics must not be cached")
				}
			}
		})
	}
}

func TestPipelineFailureReleasesSlotBeforeWriteBack(t *testing.T) {
	p, _ := newTestPipeline(&fakeCollaborator{processErr: errors.New("separation failed")})
	defer p.Close()

	item := model.NewQueueItem("a1", "Song A", "Artist A")
	q := newLiveQueue(item)

	var runningAtError bool
	update := func(slot string, fn func(*model.QueueItem)) bool {
		ok := q.update(slot, fn)
		if q.get(slot).Status == model.StatusError {
			runningAtError = p.Running(slot)
		}
		return ok
	}
	_ = p.Start(JobFor(item, update))
	p.Wait()

	if got := q.get(item.Slot).Status; got != model.StatusError {
		t.Fatalf("status = %s, want error", got)
	}
	if runningAtError {
		t.Error("slot still registered when the failure was written back")
	}

	// A retry right after the failure starts a fresh task.
	q.update(item.Slot, func(it *model.QueueItem) { it.Status = model.StatusQueued })
	if err := p.Start(JobFor(item, q.update)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	p.Wait()
	if got := q.get(item.Slot).Status; got != model.StatusError {
		t.Errorf("status after retry = %s, want error again", got)
	}
}

func TestPipelineCancelDiscardsResult(t *testing.T) {
	collab := &fakeCollaborator{gate: make(chan struct{})}
	p, _ := newTestPipeline(collab)
	defer p.Close()

	item := model.NewQueueItem("a1", "Song A", "Artist A")
	q := newLiveQueue(item)
	_ = p.Start(JobFor(item, q.update))

	waitFor(t, func() bool { return q.get(item.Slot).Status == model.StatusLoading })

	p.Cancel(item.Slot)
	close(collab.gate)
	p.Wait()

	if got := q.get(item.Slot); got.Status != model.StatusLoading {
		t.Errorf("cancelled task changed status to %s", got.Status)
	}
	if p.Running(item.Slot) {
		t.Error("cancelled task still registered")
	}
}

func TestPipelineRemovedSlotIsIgnored(t *testing.T) {
	collab := &fakeCollaborator{gate: make(chan struct{})}
	p, _ := newTestPipeline(collab)
	defer p.Close()

	item := model.NewQueueItem("a1", "Song A", "Artist A")
	q := newLiveQueue(item)
	_ = p.Start(JobFor(item, q.update))

	waitFor(t, func() bool { return q.get(item.Slot).Status == model.StatusLoading })
	q.remove(item.Slot)
	close(collab.gate)
	p.Wait()

	if item.Status != model.StatusLoading {
		t.Errorf("result written into a removed item: %s", item.Status)
	}
}

func TestPipelineDoesNotDuplicate(t *testing.T) {
	collab := &fakeCollaborator{gate: make(chan struct{})}
	p, _ := newTestPipeline(collab)
	defer p.Close()

	item := model.NewQueueItem("a1", "Song A", "Artist A")
	q := newLiveQueue(item)
	_ = p.Start(JobFor(item, q.update))
	_ = p.Start(JobFor(item, q.update))

	waitFor(t, func() bool { return q.get(item.Slot).Lyrics != nil })
	close(collab.gate)
	p.Wait()

	if n := collab.calls(); n != 1 {
		t.Errorf("lyrics fetched %d times, want 1", n)
	}
}

func TestPipelineClosed(t *testing.T) {
	p, _ := newTestPipeline(&fakeCollaborator{})
	_ = p.Close()

	item := model.NewQueueItem("a1", "Song A", "Artist A")
	if err := p.Start(JobFor(item, newLiveQueue(item).update)); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
