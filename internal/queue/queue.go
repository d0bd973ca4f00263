package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/soulrrrrr/karaoke-app/internal/backend"
	"github.com/soulrrrrr/karaoke-app/internal/model"
	"github.com/soulrrrrr/karaoke-app/internal/prepare"
	"github.com/soulrrrrr/karaoke-app/internal/store"
)

var (
	// ErrOutOfRange is returned for an index outside the queue.
	ErrOutOfRange = errors.New("queue index out of range")

	// ErrNotFailed is returned when retrying an item that did not fail.
	ErrNotFailed = errors.New("only failed songs can be retried")

	// ErrNoVideo is returned when enqueueing without a video id.
	ErrNoVideo = errors.New("video id is required")
)

// StatusProber checks whether the instrumental of a song is ready.
type StatusProber interface {
	Status(ctx context.Context, videoID string) (backend.Status, error)
}

// Player is the playback controller as seen by the queue.
type Player interface {
	LoadItem(ctx context.Context, item *model.QueueItem) error
	Play() error
	Pause() error
	WasPlaying() bool
	Reset() error
	Clear() error
}

// Preparer runs background preparation per queue slot.
type Preparer interface {
	Start(job prepare.Job) error
	Cancel(slot string)
	CancelAll()
}

// Persister saves and restores the queue snapshot.
type Persister interface {
	SaveQueueSnapshot(items []*model.QueueItem, currentIndex int)
	LoadQueueSnapshot() (store.Snapshot, bool)
}

// LyricsResolver fetches lyrics for display when an item is loaded before
// preparation delivered them.
type LyricsResolver interface {
	ResolveLyrics(ctx context.Context, videoID, title, artist string) (*model.Lyrics, error)
}

// EventKind identifies a queue notification.
type EventKind int

const (
	// EventChanged reports any change to the items or the selection.
	EventChanged EventKind = iota
	// EventLoaded reports that the current item was loaded for playback.
	EventLoaded
	// EventCleared reports that nothing is selected any more.
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventChanged:
		return "changed"
	case EventLoaded:
		return "loaded"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after a change. Item is a copy of the
// current item, the zero value when nothing is selected.
type Event struct {
	Kind    EventKind
	Current int
	Item    model.QueueItem
}

// Stats tracks queue activity.
type Stats struct {
	TotalEnqueued int64
	TotalRemoved  int64
	Switches      int64
	Retries       int64
	LastEnqueue   time.Time
}

// Manager owns the queue and the current index. All mutations are
// serialised; no lock is held while waiting on the network or the output.
type Manager struct {
	prober    StatusProber
	player    Player
	preparer  Preparer
	persister Persister
	lyrics    LyricsResolver
	logger    *log.Logger

	// opMu serialises foreground operations so the item order is stable
	// across their network calls.
	opMu sync.Mutex
	// persistMu keeps snapshot writes in the order they were taken.
	persistMu sync.Mutex

	mu          sync.Mutex
	items       []*model.QueueItem
	current     int
	subscribers []func(Event)
	stats       Stats
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithLyrics sets the resolver used to fetch missing lyrics on load.
func WithLyrics(r LyricsResolver) Option {
	return func(m *Manager) { m.lyrics = r }
}

// New creates an empty manager.
func New(prober StatusProber, player Player, preparer Preparer, persister Persister, opts ...Option) *Manager {
	m := &Manager{
		prober:    prober,
		player:    player,
		preparer:  preparer,
		persister: persister,
		logger:    log.Default().WithPrefix("queue"),
		current:   -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers fn for queue notifications. fn runs on the goroutine
// that made the change and must not call back into the manager's
// mutating operations.
func (m *Manager) Subscribe(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Items returns copies of the queued items in playback order.
func (m *Manager) Items() []model.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.QueueItem, len(m.items))
	for i, item := range m.items {
		out[i] = item.Clone()
	}
	return out
}

// Len returns the number of queued items.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// CurrentIndex returns the selected index, -1 when nothing is selected.
func (m *Manager) CurrentIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Current returns a copy of the selected item.
func (m *Manager) Current() (model.QueueItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current < 0 {
		return model.QueueItem{}, false
	}
	return m.items[m.current].Clone(), true
}

// Stats returns queue activity counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Enqueue appends a song, persists the queue and starts its preparation.
// A song added to an empty queue becomes current and is loaded at once; a
// load failure is returned after the item has been queued.
func (m *Manager) Enqueue(ctx context.Context, videoID, title, artist string) (model.QueueItem, error) {
	if videoID == "" {
		return model.QueueItem{}, ErrNoVideo
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	item := model.NewQueueItem(videoID, title, artist)

	m.mu.Lock()
	m.items = append(m.items, item)
	first := len(m.items) == 1
	if first {
		m.current = 0
	}
	m.stats.TotalEnqueued++
	m.stats.LastEnqueue = time.Now()
	job := prepare.JobFor(item, m.Update)
	m.mu.Unlock()

	m.logger.Info("Queued song", "title", title, "artist", artist)
	m.persist()
	m.notify(EventChanged)

	m.startPreparation(job)

	var err error
	if first {
		err = m.load(ctx, item.Slot, true)
	}
	return m.snapshotOf(item.Slot), err
}

// SwitchTo selects the item at index. Selecting the current item or an
// index outside the queue is a no-op. Playback resumes on the new item
// only if it was running before and the new item is ready.
func (m *Manager) SwitchTo(ctx context.Context, index int) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.switchTo(ctx, index, false)
}

// switchTo runs the switch. fromEnd marks a switch caused by the previous
// track finishing, which resumes playback like a running track would.
func (m *Manager) switchTo(ctx context.Context, index int, fromEnd bool) error {
	m.mu.Lock()
	if index == m.current || index < 0 || index >= len(m.items) {
		m.mu.Unlock()
		return nil
	}
	slot := m.items[index].Slot
	m.mu.Unlock()

	m.probe(ctx, slot)

	wasPlaying := m.player.WasPlaying()
	if err := m.player.Pause(); err != nil {
		m.logger.Warn("Failed to pause playback", "err", err)
	}

	m.mu.Lock()
	m.current = m.indexOf(slot)
	m.stats.Switches++
	m.mu.Unlock()

	err := m.load(ctx, slot, false)
	m.persist()
	m.notify(EventChanged)

	if resetErr := m.player.Reset(); resetErr != nil {
		m.logger.Warn("Failed to reset playback position", "err", resetErr)
	}

	if err != nil {
		return err
	}
	if item := m.snapshotOf(slot); (wasPlaying || fromEnd) && item.Status == model.StatusReady {
		if playErr := m.player.Play(); playErr != nil {
			return fmt.Errorf("resume playback: %w", playErr)
		}
	}
	return nil
}

// AdvanceOnEnd moves to the item after ended, the slot whose track just
// finished, and starts it. It does nothing at the last position, or when
// ended is no longer the current item because the selection changed in the
// meantime. When the next item fails to load nothing is played.
func (m *Manager) AdvanceOnEnd(ctx context.Context, ended string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	current, n := m.current, len(m.items)
	stale := current < 0 || m.items[current].Slot != ended
	m.mu.Unlock()

	if stale {
		m.logger.Debug("Ignoring end of a song that is no longer current")
		return
	}
	if current >= n-1 {
		return
	}
	if err := m.switchTo(ctx, current+1, true); err != nil {
		m.logger.Error("Error switching to next song", "err", err)
		return
	}
	if err := m.player.Play(); err != nil {
		m.logger.Error("Error auto-playing next song", "err", err)
	}
}

// Remove deletes the item at index and cancels its preparation. Removing
// the current item selects the next item, else the previous one, else
// clears the selection.
func (m *Manager) Remove(ctx context.Context, index int) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if index < 0 || index >= len(m.items) {
		m.mu.Unlock()
		return fmt.Errorf("remove %d: %w", index, ErrOutOfRange)
	}
	removed := m.items[index]
	wasCurrent := index == m.current
	m.items = slices.Delete(m.items, index, index+1)

	var next string
	switch {
	case wasCurrent && index < len(m.items):
		next = m.items[index].Slot
	case wasCurrent && index > 0:
		m.current = index - 1
		next = m.items[m.current].Slot
	case wasCurrent:
		m.current = -1
	case index < m.current:
		m.current--
	}
	m.stats.TotalRemoved++
	m.mu.Unlock()

	m.preparer.Cancel(removed.Slot)
	m.logger.Info("Removed song", "title", removed.Title)

	var err error
	if wasCurrent {
		if pauseErr := m.player.Pause(); pauseErr != nil {
			m.logger.Warn("Failed to pause playback", "err", pauseErr)
		}
		if next != "" {
			err = m.load(ctx, next, true)
		} else {
			err = m.clearPlayback()
		}
	}

	m.persist()
	m.notify(EventChanged)
	return err
}

// Retry restarts preparation for a failed item.
func (m *Manager) Retry(ctx context.Context, index int) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if index < 0 || index >= len(m.items) {
		m.mu.Unlock()
		return fmt.Errorf("retry %d: %w", index, ErrOutOfRange)
	}
	item := m.items[index]
	if item.Status != model.StatusError {
		m.mu.Unlock()
		return ErrNotFailed
	}
	item.Status = model.StatusQueued
	job := prepare.JobFor(item, m.Update)
	m.stats.Retries++
	m.mu.Unlock()

	m.logger.Info("Retrying preparation", "title", item.Title)
	m.persist()
	m.notify(EventChanged)
	m.startPreparation(job)
	return nil
}

// Clear empties the queue, cancels all preparation and drops the source.
func (m *Manager) Clear(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.preparer.CancelAll()

	m.mu.Lock()
	m.items = nil
	m.current = -1
	m.mu.Unlock()

	err := m.clearPlayback()
	m.persist()
	m.notify(EventChanged)
	return err
}

// Restore rehydrates the queue from the persisted snapshot. Every item is
// probed: ready items are marked so, the rest are prepared again. The
// saved current item is then loaded. It reports whether a snapshot
// existed.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	snap, ok := m.persister.LoadQueueSnapshot()
	if !ok {
		return false, nil
	}
	items, current := snap.Items, snap.CurrentIndex

	m.mu.Lock()
	m.items = items
	m.current = current
	m.mu.Unlock()
	m.notify(EventChanged)

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(slot string) {
			defer wg.Done()
			if m.probe(ctx, slot) {
				return
			}
			m.mu.Lock()
			idx := m.indexOf(slot)
			var job prepare.Job
			if idx >= 0 {
				job = prepare.JobFor(m.items[idx], m.Update)
			}
			m.mu.Unlock()
			if idx >= 0 {
				m.startPreparation(job)
			}
		}(item.Slot)
	}
	wg.Wait()

	m.logger.Info("Restored queue", "songs", len(items), "current", current)
	m.persist()
	m.notify(EventChanged)

	if current < 0 {
		return true, nil
	}
	return true, m.load(ctx, items[current].Slot, false)
}

// Update applies fn to the live item in slot, persists the queue and
// notifies subscribers. It returns false when the slot is gone. Update is
// the write-back path of the preparation pipeline.
func (m *Manager) Update(slot string, fn func(*model.QueueItem)) bool {
	m.mu.Lock()
	idx := m.indexOf(slot)
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	fn(m.items[idx])
	m.mu.Unlock()

	m.persist()
	m.notify(EventChanged)
	return true
}

// probe refreshes the readiness of slot from the status collaborator and
// reports whether it is ready. Probe failures leave the item unchanged.
func (m *Manager) probe(ctx context.Context, slot string) bool {
	item := m.snapshotOf(slot)
	if item.Slot == "" {
		return false
	}

	st, err := m.prober.Status(ctx, item.VideoID)
	if err != nil {
		m.logger.Warn("Status check failed", "title", item.Title, "err", err)
		return false
	}
	if !st.Ready {
		return false
	}

	ready := false
	m.Update(slot, func(it *model.QueueItem) {
		ready = it.MarkReady(st.Instrumental) == nil
	})
	return ready
}

// load hands the item in slot to the player, fetching lyrics first when
// the item has none. Lyrics failures only affect the display.
func (m *Manager) load(ctx context.Context, slot string, probe bool) error {
	if probe {
		m.probe(ctx, slot)
	}

	item := m.snapshotOf(slot)
	if item.Slot == "" {
		return nil
	}

	if m.lyrics != nil && !item.Lyrics.HasLines() {
		lyrics, err := m.lyrics.ResolveLyrics(ctx, item.VideoID, item.Title, item.Artist)
		switch {
		case err != nil:
			m.logger.Warn("Failed to fetch lyrics", "title", item.Title, "err", err)
		case lyrics != nil:
			m.Update(slot, func(it *model.QueueItem) {
				if !it.Lyrics.HasLines() {
					it.Lyrics = lyrics
				}
			})
			item = m.snapshotOf(slot)
		}
	}

	if err := m.player.LoadItem(ctx, &item); err != nil {
		m.logger.Error("Error loading queued song", "title", item.Title, "err", err)
		return fmt.Errorf("load %q: %w", item.Title, err)
	}

	m.notifyItem(EventLoaded, item)
	return nil
}

func (m *Manager) clearPlayback() error {
	err := m.player.Clear()
	if err != nil {
		m.logger.Warn("Failed to clear playback", "err", err)
	}
	m.notifyItem(EventCleared, model.QueueItem{})
	return err
}

func (m *Manager) startPreparation(job prepare.Job) {
	if err := m.preparer.Start(job); err != nil {
		m.logger.Warn("Failed to start preparation", "title", job.Title, "err", err)
	}
}

// persist writes the current snapshot. Snapshots are written in the
// order they are taken.
func (m *Manager) persist() {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	items := make([]*model.QueueItem, len(m.items))
	for i, item := range m.items {
		c := item.Clone()
		items[i] = &c
	}
	current := m.current
	m.mu.Unlock()

	m.persister.SaveQueueSnapshot(items, current)
}

func (m *Manager) notify(kind EventKind) {
	item, _ := m.Current()
	m.notifyItem(kind, item)
}

func (m *Manager) notifyItem(kind EventKind, item model.QueueItem) {
	m.mu.Lock()
	ev := Event{Kind: kind, Current: m.current, Item: item}
	subs := slices.Clone(m.subscribers)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// snapshotOf returns a copy of the item in slot, the zero value when gone.
func (m *Manager) snapshotOf(slot string) model.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx := m.indexOf(slot); idx >= 0 {
		return m.items[idx].Clone()
	}
	return model.QueueItem{}
}

// indexOf must be called with mu held.
func (m *Manager) indexOf(slot string) int {
	return slices.IndexFunc(m.items, func(it *model.QueueItem) bool {
		return it.Slot == slot
	})
}
