package model

// Status is the preparation state of a queue item.
type Status string

const (
	// StatusQueued means the item was added but preparation has not started.
	StatusQueued Status = "queued"

	// StatusLoading means lyrics and instrumental audio are being resolved.
	StatusLoading Status = "loading"

	// StatusReady means both lyrics and the instrumental are available.
	StatusReady Status = "ready"

	// StatusError means preparation failed; playback falls back to raw audio.
	StatusError Status = "error"
)

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusLoading, StatusReady, StatusError:
		return true
	}
	return false
}

// IsTerminal returns true once preparation has finished, successfully or not.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusError
}
