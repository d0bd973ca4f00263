package model

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/soulrrrrr/karaoke-app/internal/lyrics"
)

// ErrNoInstrumental is returned when an item is marked ready without a
// playable instrumental source.
var ErrNoInstrumental = errors.New("ready requires an instrumental source")

// SyncedLyrics is the timed lyric sheet of a song. Collaborators deliver it
// either as raw timed text or as an already parsed list of lines; both
// decode into the same ordered slice.
type SyncedLyrics []lyrics.Line

// UnmarshalJSON accepts a raw timed-lyrics string or a [{time,text}] array.
func (s *SyncedLyrics) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	switch {
	case trimmed == "null" || trimmed == "":
		*s = nil
		return nil
	case strings.HasPrefix(trimmed, `"`):
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		*s = lyrics.Parse(raw)
		return nil
	default:
		var lines []lyrics.Line
		if err := json.Unmarshal(b, &lines); err != nil {
			return err
		}
		*s = lines
		return nil
	}
}

// Lyrics is the payload returned by the lyrics collaborator.
type Lyrics struct {
	Title        string       `json:"title,omitempty"`
	Artist       string       `json:"artist,omitempty"`
	SyncedLyrics SyncedLyrics `json:"syncedLyrics,omitempty"`
	SearchQuery  string       `json:"searchQuery,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// HasLines reports whether the payload carries any timed lines.
func (l *Lyrics) HasLines() bool {
	return l != nil && len(l.SyncedLyrics) > 0
}

// Instrumental is the processed, vocals-removed audio of a song.
type Instrumental struct {
	Source     string `json:"instrumental"`
	ShouldPlay *bool  `json:"should_play_instrumental,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Playable reports whether the instrumental can be used as the playback
// source. A processor may explicitly opt out with should_play_instrumental.
func (i *Instrumental) Playable() bool {
	if i == nil || i.Source == "" {
		return false
	}
	return i.ShouldPlay == nil || *i.ShouldPlay
}

// QueueItem is one song occupying a queue slot.
type QueueItem struct {
	// Slot identifies this queue position independently of its index, so
	// background work can tell whether its item is still queued.
	Slot string `json:"slot"`

	VideoID string `json:"videoId"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Status  Status `json:"status"`

	Lyrics       *Lyrics       `json:"lyrics"`
	Instrumental *Instrumental `json:"instrumental"`

	// Err holds the last preparation error for display.
	Err string `json:"lastError,omitempty"`
}

// NewQueueItem creates a queued item with a fresh slot identity.
func NewQueueItem(videoID, title, artist string) *QueueItem {
	return &QueueItem{
		Slot:    uuid.NewString(),
		VideoID: videoID,
		Title:   title,
		Artist:  artist,
		Status:  StatusQueued,
	}
}

// MarkLoading moves the item into the loading state.
func (q *QueueItem) MarkLoading() {
	q.Status = StatusLoading
	q.Err = ""
}

// MarkReady records the instrumental and moves the item to ready.
func (q *QueueItem) MarkReady(inst *Instrumental) error {
	if inst == nil || inst.Source == "" {
		return ErrNoInstrumental
	}
	q.Instrumental = inst
	q.Status = StatusReady
	q.Err = ""
	return nil
}

// MarkError moves the item to the error state.
func (q *QueueItem) MarkError(err error) {
	q.Status = StatusError
	if err != nil {
		q.Err = err.Error()
	}
}

// UseInstrumental reports whether playback should use the processed source.
func (q *QueueItem) UseInstrumental() bool {
	return q.Status == StatusReady && q.Instrumental.Playable()
}

// Clone returns a copy safe to hand to renderers.
func (q *QueueItem) Clone() QueueItem {
	c := *q
	if q.Lyrics != nil {
		l := *q.Lyrics
		l.SyncedLyrics = append(SyncedLyrics(nil), q.Lyrics.SyncedLyrics...)
		c.Lyrics = &l
	}
	if q.Instrumental != nil {
		i := *q.Instrumental
		c.Instrumental = &i
	}
	return c
}

// Normalize repairs an item read back from storage: it assigns a slot when
// missing and demotes states that cannot be trusted after a restart.
func (q *QueueItem) Normalize() {
	if q.Slot == "" {
		q.Slot = uuid.NewString()
	}
	switch {
	case !q.Status.Valid(), q.Status == StatusLoading:
		q.Status = StatusQueued
	case q.Status == StatusReady && (q.Instrumental == nil || q.Instrumental.Source == ""):
		q.Status = StatusQueued
	}
}
