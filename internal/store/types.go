package store

import (
	"errors"
	"time"
)

// Common errors for storage backends.
var (
	// ErrLocked is returned when another process owns the data directory.
	ErrLocked = errors.New("data directory is in use by another karaoke instance")

	// ErrClosed is returned when a closed backend is used.
	ErrClosed = errors.New("storage is closed")

	// ErrCorrupt is returned when a stored value cannot be decoded.
	ErrCorrupt = errors.New("stored value is corrupted")
)

// Keys of the persisted values.
const (
	KeyQueue        = "songQueue"
	KeyCurrentIndex = "currentSongIndex"
	KeyLyricsCache  = "lyricsCache"
	KeyVolume       = "volume"
)

// DefaultLyricsTTL is how long cached lyrics stay valid.
const DefaultLyricsTTL = 24 * time.Hour

// Stats holds lyrics cache metrics for the current process.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64 // hits / (hits + misses)

	LastEvict time.Time
}

// LyricsEntry describes one cached lyrics sheet.
type LyricsEntry struct {
	VideoID  string
	Title    string
	Artist   string
	Lines    int
	CachedAt time.Time
	Expired  bool
}
