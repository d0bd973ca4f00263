package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMockDuration is the simulated length of sources without an
// explicit duration.
const DefaultMockDuration = 180.0

// MockOutput simulates an audio output without producing sound. Playback
// advances with the wall clock scaled by the delay factor; a factor of zero
// freezes the clock so tests can drive position and end-of-track by hand.
type MockOutput struct {
	mu sync.Mutex

	state     PlayerState
	url       string
	duration  float64
	base      float64 // position when startTime was taken
	startTime time.Time
	volume    float64

	delayFactor float64
	endTimer    *time.Timer
	timerGen    uint64
	now         func() time.Time

	durations map[string]float64
	loads     []string
	events    chan Event
	callbacks MockCallbacks

	// Metrics for testing
	loadCount  atomic.Int64
	playCount  atomic.Int64
	pauseCount atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	// OnLoad runs before a load completes; a non-nil error fails the load.
	OnLoad  func(url string) error
	OnPlay  func()
	OnPause func()
}

// MockOption configures a MockOutput.
type MockOption func(*MockOutput)

// WithDelayFactor sets the playback speed factor. 1.0 is real time, 0.5 is
// double speed, 0 freezes playback.
func WithDelayFactor(factor float64) MockOption {
	return func(m *MockOutput) { m.delayFactor = factor }
}

// WithCallbacks installs test hooks.
func WithCallbacks(cb MockCallbacks) MockOption {
	return func(m *MockOutput) { m.callbacks = cb }
}

// WithDuration sets the simulated duration of url.
func WithDuration(url string, seconds float64) MockOption {
	return func(m *MockOutput) { m.durations[url] = seconds }
}

// NewMockOutput creates a mock output.
func NewMockOutput(opts ...MockOption) *MockOutput {
	m := &MockOutput{
		state:       StateStopped,
		volume:      1.0,
		delayFactor: 1.0,
		now:         time.Now,
		durations:   make(map[string]float64),
		events:      make(chan Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replaces the current source.
func (m *MockOutput) Load(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if url == "" {
		return ErrNoSource
	}
	if m.callbacks.OnLoad != nil {
		if err := m.callbacks.OnLoad(url); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return ErrClosed
	}
	m.stopTimerLocked()

	m.url = url
	m.duration = DefaultMockDuration
	if d, ok := m.durations[url]; ok {
		m.duration = d
	}
	m.base = 0
	m.state = StatePaused
	m.loads = append(m.loads, url)
	m.loadCount.Add(1)

	emit(m.events, Event{Type: EventMetadata, Duration: m.duration})
	return nil
}

// Play starts or resumes playback. Playing an ended source restarts it.
func (m *MockOutput) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateClosed:
		return ErrClosed
	case StateStopped:
		return ErrNoSource
	case StatePlaying:
		return nil
	case StateEnded:
		m.base = 0
	}

	m.startTime = m.now()
	m.state = StatePlaying
	m.playCount.Add(1)
	m.scheduleEndLocked()

	emit(m.events, Event{Type: EventPlay, Position: m.base, Duration: m.duration})
	if m.callbacks.OnPlay != nil {
		m.callbacks.OnPlay()
	}
	return nil
}

// Pause pauses playback. Pausing a paused output is a no-op.
func (m *MockOutput) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return ErrClosed
	}
	if m.state != StatePlaying {
		return nil
	}

	m.base = m.positionLocked()
	m.state = StatePaused
	m.stopTimerLocked()
	m.pauseCount.Add(1)

	emit(m.events, Event{Type: EventPause, Position: m.base, Duration: m.duration})
	if m.callbacks.OnPause != nil {
		m.callbacks.OnPause()
	}
	return nil
}

// Paused reports whether playback is not running.
func (m *MockOutput) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != StatePlaying
}

// Ended reports whether the source played to its end.
func (m *MockOutput) Ended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateEnded
}

// Position returns the playback position in seconds.
func (m *MockOutput) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positionLocked()
}

// Duration returns the source length in seconds, 0 without a source.
func (m *MockOutput) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

// SetPosition moves playback to seconds, clamped to the source.
func (m *MockOutput) SetPosition(seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateClosed:
		return ErrClosed
	case StateStopped:
		return ErrNoSource
	}

	if seconds < 0 {
		seconds = 0
	}
	if seconds > m.duration {
		seconds = m.duration
	}
	m.base = seconds
	if m.state == StateEnded && seconds < m.duration {
		m.state = StatePaused
	}
	if m.state == StatePlaying {
		m.startTime = m.now()
		m.stopTimerLocked()
		m.scheduleEndLocked()
	}

	emit(m.events, Event{Type: EventSeeked, Position: seconds, Duration: m.duration})
	return nil
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (m *MockOutput) SetVolume(volume float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = clampVolume(volume)
	return nil
}

// Clear drops the current source.
func (m *MockOutput) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return ErrClosed
	}
	m.stopTimerLocked()
	m.url = ""
	m.duration = 0
	m.base = 0
	m.state = StateStopped
	return nil
}

// Close releases the output and closes the event channel.
func (m *MockOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return nil
	}
	m.stopTimerLocked()
	m.state = StateClosed
	close(m.events)
	return nil
}

// Events returns the event channel.
func (m *MockOutput) Events() <-chan Event {
	return m.events
}

// Finish simulates the source playing to its natural end.
func (m *MockOutput) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishLocked()
}

// Advance moves a playing source forward by seconds, finishing it when
// the end is reached.
func (m *MockOutput) Advance(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePlaying {
		return
	}
	m.base = m.positionLocked() + seconds
	m.startTime = m.now()
	if m.base >= m.duration {
		m.finishLocked()
	}
}

func (m *MockOutput) finishLocked() {
	if m.state != StatePlaying {
		return
	}
	m.stopTimerLocked()
	m.base = m.duration
	m.state = StateEnded
	emit(m.events, Event{Type: EventEnded, Position: m.duration, Duration: m.duration})
}

func (m *MockOutput) positionLocked() float64 {
	if m.state != StatePlaying {
		return m.base
	}
	pos := m.base
	if m.delayFactor > 0 {
		pos += m.now().Sub(m.startTime).Seconds() / m.delayFactor
	}
	if pos > m.duration {
		pos = m.duration
	}
	return pos
}

func (m *MockOutput) scheduleEndLocked() {
	if m.delayFactor <= 0 {
		return
	}
	remaining := time.Duration((m.duration - m.base) * m.delayFactor * float64(time.Second))
	gen := m.timerGen
	m.endTimer = time.AfterFunc(remaining, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// A timer stopped while already firing must not end a later playback.
		if m.timerGen == gen {
			m.finishLocked()
		}
	})
}

func (m *MockOutput) stopTimerLocked() {
	m.timerGen++
	if m.endTimer != nil {
		m.endTimer.Stop()
		m.endTimer = nil
	}
}

// Test helper methods

// State returns the current state.
func (m *MockOutput) State() PlayerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// URL returns the loaded source.
func (m *MockOutput) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

// Loads returns every loaded source in order.
func (m *MockOutput) Loads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loads...)
}

// Volume returns the current volume.
func (m *MockOutput) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// MockOutputMetrics contains playback metrics for testing.
type MockOutputMetrics struct {
	LoadCount  int64
	PlayCount  int64
	PauseCount int64
}

// Metrics returns playback metrics.
func (m *MockOutput) Metrics() MockOutputMetrics {
	return MockOutputMetrics{
		LoadCount:  m.loadCount.Load(),
		PlayCount:  m.playCount.Load(),
		PauseCount: m.pauseCount.Load(),
	}
}

var _ Output = (*MockOutput)(nil)
