package store

import (
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/soulrrrrr/karaoke-app/internal/model"
)

// Store is the local cache store: queue snapshot, lyrics cache and volume
// preference on top of a Storage backend. Its methods never return storage
// errors; failures are logged and read as empty.
type Store struct {
	storage Storage
	ttl     time.Duration
	now     func() time.Time
	logger  *log.Logger

	// mu serialises read-modify-write cycles on the lyrics aggregate.
	mu    sync.Mutex
	stats Stats
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the lyrics cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used to report storage failures.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store on top of storage.
func New(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		ttl:     DefaultLyricsTTL,
		now:     time.Now,
		logger:  log.Default().WithPrefix("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot is a persisted queue.
type Snapshot struct {
	Items        []*model.QueueItem
	CurrentIndex int
}

// SaveQueueSnapshot overwrites the stored queue and current index.
func (s *Store) SaveQueueSnapshot(items []*model.QueueItem, currentIndex int) {
	if items == nil {
		items = []*model.QueueItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		s.logger.Error("Error saving queue", "err", err)
		return
	}
	if err := s.storage.SetItem(KeyQueue, string(data)); err != nil {
		s.logger.Error("Error saving queue", "err", err)
		return
	}
	if err := s.storage.SetItem(KeyCurrentIndex, strconv.Itoa(currentIndex)); err != nil {
		s.logger.Error("Error saving current index", "err", err)
	}
}

// LoadQueueSnapshot returns the stored queue. ok is false when nothing was
// stored or the stored queue cannot be decoded. A current index that does
// not fit the queue is repaired.
func (s *Store) LoadQueueSnapshot() (snap Snapshot, ok bool) {
	raw, found, err := s.storage.GetItem(KeyQueue)
	if err != nil {
		s.logger.Error("Error loading queue from storage", "err", err)
		return Snapshot{CurrentIndex: -1}, false
	}
	if !found {
		return Snapshot{CurrentIndex: -1}, false
	}

	var items []*model.QueueItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.logger.Error("Error loading queue from storage", "err", err)
		return Snapshot{CurrentIndex: -1}, false
	}

	kept := items[:0]
	for _, item := range items {
		if item == nil || item.VideoID == "" {
			continue
		}
		item.Normalize()
		kept = append(kept, item)
	}

	index := -1
	if rawIndex, found, err := s.storage.GetItem(KeyCurrentIndex); err == nil && found {
		if n, convErr := strconv.Atoi(rawIndex); convErr == nil {
			index = n
		}
	}

	switch {
	case len(kept) == 0:
		index = -1
	case index < 0 || index >= len(kept):
		index = 0
	}

	return Snapshot{Items: kept, CurrentIndex: index}, true
}

// cacheEntry is one record of the lyrics aggregate.
type cacheEntry struct {
	Lyrics    *model.Lyrics `json:"lyrics"`
	Timestamp int64         `json:"timestamp"` // epoch milliseconds
}

// PutLyrics caches lyrics for videoID, stamped with the current time.
func (s *Store) PutLyrics(videoID string, lyrics *model.Lyrics) {
	if videoID == "" || lyrics == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.readCache()
	if err != nil {
		s.logger.Error("Error caching lyrics", "err", err)
		// A corrupted aggregate is replaced rather than blocking caching forever.
		cache = make(map[string]cacheEntry)
	}
	cache[videoID] = cacheEntry{Lyrics: lyrics, Timestamp: s.now().UnixMilli()}
	if err := s.writeCache(cache); err != nil {
		s.logger.Error("Error caching lyrics", "err", err)
	}
}

// GetLyrics returns cached lyrics for videoID when they are younger than
// the TTL. Expired entries are reported as misses but left in place.
func (s *Store) GetLyrics(videoID string) (*model.Lyrics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.readCache()
	if err != nil {
		s.logger.Error("Error reading lyrics cache", "err", err)
		s.stats.Misses++
		return nil, false
	}

	entry, ok := cache[videoID]
	if !ok || entry.Lyrics == nil || s.expired(entry) {
		s.stats.Misses++
		return nil, false
	}
	s.stats.Hits++
	return entry.Lyrics, true
}

// EvictExpired rewrites the lyrics aggregate without expired entries and
// returns how many were removed.
func (s *Store) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.readCache()
	if err != nil {
		s.logger.Error("Error cleaning lyrics cache", "err", err)
		return 0
	}

	removed := 0
	for key, entry := range cache {
		if s.expired(entry) {
			delete(cache, key)
			removed++
		}
	}

	if err := s.writeCache(cache); err != nil {
		s.logger.Error("Error cleaning lyrics cache", "err", err)
		return 0
	}

	s.stats.Evictions += int64(removed)
	s.stats.LastEvict = s.now()
	if removed > 0 {
		s.logger.Debug("Evicted expired lyrics", "count", removed)
	}
	return removed
}

// LyricsEntries lists the lyrics cache, oldest first.
func (s *Store) LyricsEntries() []LyricsEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.readCache()
	if err != nil {
		s.logger.Error("Error reading lyrics cache", "err", err)
		return nil
	}

	entries := make([]LyricsEntry, 0, len(cache))
	for id, e := range cache {
		le := LyricsEntry{
			VideoID:  id,
			CachedAt: time.UnixMilli(e.Timestamp),
			Expired:  s.expired(e),
		}
		if e.Lyrics != nil {
			le.Title = e.Lyrics.Title
			le.Artist = e.Lyrics.Artist
			le.Lines = len(e.Lyrics.SyncedLyrics)
		}
		entries = append(entries, le)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CachedAt.Equal(entries[j].CachedAt) {
			return entries[i].VideoID < entries[j].VideoID
		}
		return entries[i].CachedAt.Before(entries[j].CachedAt)
	})
	return entries
}

// Stats returns lyrics cache metrics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Volume returns the saved volume preference, 1 when unset or invalid.
func (s *Store) Volume() float64 {
	raw, found, err := s.storage.GetItem(KeyVolume)
	if err != nil {
		s.logger.Error("Error reading volume", "err", err)
		return 1
	}
	if !found {
		return 1
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return 1
	}
	return v
}

// SetVolume saves the volume preference.
func (s *Store) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	if err := s.storage.SetItem(KeyVolume, strconv.FormatFloat(v, 'f', -1, 64)); err != nil {
		s.logger.Error("Error saving volume", "err", err)
	}
}

// Close closes the underlying storage.
func (s *Store) Close() error {
	return s.storage.Close()
}

func (s *Store) expired(e cacheEntry) bool {
	return s.now().UnixMilli()-e.Timestamp >= s.ttl.Milliseconds()
}

func (s *Store) readCache() (map[string]cacheEntry, error) {
	raw, found, err := s.storage.GetItem(KeyLyricsCache)
	if err != nil {
		return nil, err
	}
	cache := make(map[string]cacheEntry)
	if !found || raw == "" {
		return cache, nil
	}
	if err := json.Unmarshal([]byte(raw), &cache); err != nil {
		return nil, err
	}
	return cache, nil
}

func (s *Store) writeCache(cache map[string]cacheEntry) error {
	data, err := json.Marshal(cache)
	if err != nil {
		return err
	}
	return s.storage.SetItem(KeyLyricsCache, string(data))
}
