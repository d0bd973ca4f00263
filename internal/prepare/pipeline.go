package prepare

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/soulrrrrr/karaoke-app/internal/model"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("preparation pipeline is closed")

// Collaborator resolves the assets of a song.
type Collaborator interface {
	Lyrics(ctx context.Context, title, artist string) (*model.Lyrics, error)
	Process(ctx context.Context, videoID string) (*model.Instrumental, error)
}

// LyricsCache is the lyrics half of the local cache store.
type LyricsCache interface {
	GetLyrics(videoID string) (*model.Lyrics, bool)
	PutLyrics(videoID string, lyrics *model.Lyrics)
}

// Updater applies fn to the live queue item occupying slot. It returns
// false when the slot is no longer queued, in which case fn is not called.
type Updater func(slot string, fn func(*model.QueueItem)) bool

// Job describes one item to prepare.
type Job struct {
	Slot    string
	VideoID string
	Title   string
	Artist  string

	// Update writes results back into the queue.
	Update Updater
}

// JobFor builds a Job from a queue item.
func JobFor(item *model.QueueItem, update Updater) Job {
	return Job{
		Slot:    item.Slot,
		VideoID: item.VideoID,
		Title:   item.Title,
		Artist:  item.Artist,
		Update:  update,
	}
}

type task struct {
	cancel context.CancelFunc
}

// Pipeline runs one background preparation task per queue slot.
type Pipeline struct {
	collab Collaborator
	cache  LyricsCache
	logger *log.Logger

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline.
func New(collab Collaborator, cache LyricsCache, opts ...Option) *Pipeline {
	p := &Pipeline{
		collab: collab,
		cache:  cache,
		logger: log.Default().WithPrefix("prepare"),
		tasks:  make(map[string]*task),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches preparation for job unless a task for the same slot is
// already running. It never blocks on the network.
func (p *Pipeline) Start(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if _, running := p.tasks[job.Slot]; running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel}
	p.tasks[job.Slot] = t

	p.wg.Add(1)
	go p.run(ctx, t, job)
	return nil
}

// Cancel cancels the task for slot. Whatever it produces afterwards is
// discarded.
func (p *Pipeline) Cancel(slot string) {
	p.mu.Lock()
	t, ok := p.tasks[slot]
	if ok {
		delete(p.tasks, slot)
	}
	p.mu.Unlock()

	if ok {
		t.cancel()
		p.logger.Debug("Cancelled preparation", "slot", slot)
	}
}

// CancelAll cancels every running task.
func (p *Pipeline) CancelAll() {
	p.mu.Lock()
	tasks := p.tasks
	p.tasks = make(map[string]*task)
	p.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
}

// Running reports whether a task for slot is in flight.
func (p *Pipeline) Running(slot string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tasks[slot]
	return ok
}

// Wait blocks until every started task has returned.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Close cancels all tasks, waits for them and rejects further work.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.CancelAll()
	p.wg.Wait()
	return nil
}

// ResolveLyrics returns lyrics for a song from the cache, fetching and
// caching them on a miss. Payloads carrying an error are never cached.
func (p *Pipeline) ResolveLyrics(ctx context.Context, videoID, title, artist string) (*model.Lyrics, error) {
	if cached, ok := p.cache.GetLyrics(videoID); ok {
		p.logger.Debug("Using cached lyrics", "title", title)
		return cached, nil
	}

	lyrics, err := p.collab.Lyrics(ctx, title, artist)
	if err != nil {
		return nil, err
	}
	if lyrics.Error != "" {
		return lyrics, nil
	}
	p.cache.PutLyrics(videoID, lyrics)
	return lyrics, nil
}

func (p *Pipeline) run(ctx context.Context, t *task, job Job) {
	// release unregisters the task. It runs before the final write-back so
	// a retry triggered by that write can start a new task for the slot.
	release := func() {
		p.mu.Lock()
		if p.tasks[job.Slot] == t {
			delete(p.tasks, job.Slot)
		}
		p.mu.Unlock()
	}
	defer func() {
		release()
		t.cancel()
		p.wg.Done()
	}()

	// apply writes into the live item unless the task was cancelled.
	apply := func(fn func(*model.QueueItem)) bool {
		if ctx.Err() != nil {
			return false
		}
		return job.Update(job.Slot, fn)
	}
	fail := func(err error) {
		if ctx.Err() != nil {
			p.logger.Debug("Discarding cancelled preparation", "title", job.Title)
			return
		}
		p.logger.Error("Error preparing song", "title", job.Title, "err", err)
		release()
		apply(func(item *model.QueueItem) { item.MarkError(err) })
	}

	if !apply(func(item *model.QueueItem) { item.MarkLoading() }) {
		return
	}

	lyrics, err := p.ResolveLyrics(ctx, job.VideoID, job.Title, job.Artist)
	if err == nil && lyrics.Error != "" {
		err = errors.New(lyrics.Error)
	}
	if err != nil {
		fail(err)
		return
	}
	if !apply(func(item *model.QueueItem) { item.Lyrics = lyrics }) {
		return
	}

	inst, err := p.collab.Process(ctx, job.VideoID)
	if err != nil {
		fail(err)
		return
	}

	var readyErr error
	release()
	apply(func(item *model.QueueItem) {
		if readyErr = item.MarkReady(inst); readyErr != nil {
			item.MarkError(readyErr)
		}
	})
	if readyErr != nil {
		p.logger.Error("Error preparing song", "title", job.Title, "err", readyErr)
		return
	}
	p.logger.Debug("Song ready", "title", job.Title)
}
