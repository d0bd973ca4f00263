// Package lyricsync keeps a lyric sheet in step with audio playback.
package lyricsync

import (
	"slices"
	"sync"
	"time"

	"github.com/soulrrrrr/karaoke-app/internal/lyrics"
)

// DefaultInterval is the polling period while playback runs.
const DefaultInterval = 100 * time.Millisecond

// PositionSource reports the playback position in seconds.
type PositionSource interface {
	Position() float64
}

// Synchronizer polls a PositionSource while running and publishes the
// classified lyric view to its subscribers.
type Synchronizer struct {
	source PositionSource

	mu       sync.RWMutex
	sheet    string
	lines    []lyrics.Line
	view     lyrics.View
	interval time.Duration
	ticker   *time.Ticker
	running  bool

	// Callbacks
	onChange []func(sheet string, v lyrics.View)

	// Control: stopCh ends the current polling goroutine, which closes
	// done on exit.
	stopCh chan struct{}
	done   chan struct{}
}

// New creates a stopped synchronizer. A non-positive interval uses
// DefaultInterval.
func New(source PositionSource, interval time.Duration) *Synchronizer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Synchronizer{
		source:   source,
		interval: interval,
		view:     lyrics.View{Active: -1},
	}
}

// SetLines replaces the lyric sheet and recomputes the view. sheet names
// the song the lines belong to and is passed to every callback with the
// views computed from them.
func (s *Synchronizer) SetLines(sheet string, lines []lyrics.Line) {
	s.mu.Lock()
	s.sheet = sheet
	s.lines = lines
	s.mu.Unlock()
	s.Refresh()
}

// OnChange registers a callback for view changes. Callbacks run on the
// polling goroutine, or on the caller of Refresh and SetLines.
func (s *Synchronizer) OnChange(fn func(sheet string, v lyrics.View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Start begins polling. Starting a running synchronizer is a no-op.
func (s *Synchronizer) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.ticker = time.NewTicker(s.interval)
	go s.loop(s.stopCh, s.done, s.ticker)
	s.mu.Unlock()
}

// Stop halts polling and waits for the polling goroutine to exit. The last
// view is kept.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.ticker.Stop()
	done := s.done
	s.mu.Unlock()

	<-done
}

// IsRunning reports whether the synchronizer is polling.
func (s *Synchronizer) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SetInterval changes the polling period, taking effect immediately when
// running.
func (s *Synchronizer) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
	if s.running {
		s.ticker.Reset(d)
	}
}

// Interval returns the polling period.
func (s *Synchronizer) Interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// View returns the last computed view.
func (s *Synchronizer) View() lyrics.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Refresh recomputes the view from the current position and notifies
// subscribers unconditionally.
func (s *Synchronizer) Refresh() {
	s.update(true)
}

func (s *Synchronizer) loop(stopCh <-chan struct{}, done chan<- struct{}, ticker *time.Ticker) {
	defer close(done)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.update(false)
		}
	}
}

// update classifies the sheet at the current position. Subscribers are
// notified when forced or when the view moved.
func (s *Synchronizer) update(force bool) {
	t := s.source.Position()

	s.mu.Lock()
	view := lyrics.Classify(s.lines, t)
	changed := force || view.T != s.view.T || view.Active != s.view.Active
	s.view = view
	sheet := s.sheet
	callbacks := slices.Clone(s.onChange)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range callbacks {
		fn(sheet, view)
	}
}
