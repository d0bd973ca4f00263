package audio

import (
	"context"
	"errors"
)

// Common errors for audio outputs.
var (
	ErrNoSource    = errors.New("no audio source loaded")
	ErrClosed      = errors.New("audio output is closed")
	ErrUnavailable = errors.New("audio device not available in this build")
	ErrUnsupported = errors.New("unsupported audio format")
)

// PlayerState is the transport state of an output.
type PlayerState int32

const (
	StateStopped PlayerState = iota // nothing loaded
	StatePaused
	StatePlaying
	StateEnded
	StateClosed
)

func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	case StateEnded:
		return "ended"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventType identifies an output event.
type EventType int

const (
	EventPlay EventType = iota
	EventPause
	EventEnded
	EventMetadata // duration is known
	EventSeeked
)

func (t EventType) String() string {
	switch t {
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventEnded:
		return "ended"
	case EventMetadata:
		return "metadata"
	case EventSeeked:
		return "seeked"
	default:
		return "unknown"
	}
}

// Event is emitted by an output when its state changes.
type Event struct {
	Type     EventType
	Position float64 // seconds
	Duration float64 // seconds
}

// Output is the single audio resource. Positions and durations are in
// seconds.
type Output interface {
	// Load replaces the current source and positions it at zero, paused.
	Load(ctx context.Context, url string) error
	Play() error
	Pause() error
	Paused() bool
	Ended() bool
	Position() float64
	Duration() float64
	SetPosition(seconds float64) error
	SetVolume(volume float64) error
	// Clear drops the current source.
	Clear() error
	Close() error
	Events() <-chan Event
}

const eventBuffer = 64

// emit delivers ev without blocking; a full buffer drops the event.
func emit(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
