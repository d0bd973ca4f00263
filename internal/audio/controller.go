package audio

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/soulrrrrr/karaoke-app/internal/model"
)

// NudgeStep is the keyboard seek step in seconds.
const NudgeStep = 5.0

// Resolver locates playable sources.
type Resolver interface {
	AudioURL(ctx context.Context, videoID string) (string, error)
	ResolveURL(src string) string
}

// VolumeStore persists the volume preference.
type VolumeStore interface {
	Volume() float64
	SetVolume(v float64)
}

// Controller owns the single audio output: source selection, transport and
// end-of-track notification.
type Controller struct {
	out      Output
	resolver Resolver
	prefs    VolumeStore
	logger   *log.Logger

	// loadMu serialises loads so two never overlap on the output.
	loadMu sync.Mutex

	mu          sync.Mutex
	source      string
	volume      float64
	lastVolume  float64
	onEnded     func()
	subscribers []func(Event)

	done chan struct{}
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *log.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController wraps out and applies the saved volume. It consumes the
// output's events until the output is closed.
func NewController(out Output, resolver Resolver, prefs VolumeStore, opts ...ControllerOption) *Controller {
	c := &Controller{
		out:      out,
		resolver: resolver,
		prefs:    prefs,
		logger:   log.Default().WithPrefix("audio"),
		volume:   1,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if prefs != nil {
		c.volume = clampVolume(prefs.Volume())
	}
	c.lastVolume = c.volume
	if err := out.SetVolume(c.volume); err != nil {
		c.logger.Warn("Failed to apply volume", "err", err)
	}

	go c.loop()
	return c
}

// OnEnded registers the end-of-track handler.
func (c *Controller) OnEnded(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnded = fn
}

// Subscribe registers fn for every output event.
func (c *Controller) Subscribe(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// LoadResource replaces the source with url and positions it at zero. When
// the load fails the previous source is dropped, so nothing stale can play.
func (c *Controller) LoadResource(ctx context.Context, url string) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if err := c.out.Pause(); err != nil {
		return err
	}
	if err := c.out.Load(ctx, url); err != nil {
		if clearErr := c.out.Clear(); clearErr != nil {
			c.logger.Warn("Failed to drop previous source", "err", clearErr)
		}
		c.mu.Lock()
		c.source = ""
		c.mu.Unlock()
		return fmt.Errorf("load %s: %w", url, err)
	}
	if err := c.out.SetPosition(0); err != nil {
		return err
	}

	c.mu.Lock()
	c.source = url
	c.mu.Unlock()
	return nil
}

// SourceFor picks the source of item: the instrumental when the item is
// ready with one, otherwise the raw audio.
func (c *Controller) SourceFor(ctx context.Context, item *model.QueueItem) (string, error) {
	if item.UseInstrumental() {
		return c.resolver.ResolveURL(item.Instrumental.Source), nil
	}
	url, err := c.resolver.AudioURL(ctx, item.VideoID)
	if err != nil {
		return "", fmt.Errorf("resolve audio for %s: %w", item.VideoID, err)
	}
	return url, nil
}

// LoadItem loads the source selected for item. Like LoadResource it leaves
// no source behind when it fails.
func (c *Controller) LoadItem(ctx context.Context, item *model.QueueItem) error {
	url, err := c.SourceFor(ctx, item)
	if err != nil {
		if clearErr := c.Clear(); clearErr != nil {
			c.logger.Warn("Failed to drop previous source", "err", clearErr)
		}
		return err
	}
	c.logger.Debug("Loading song", "title", item.Title, "instrumental", item.UseInstrumental())
	return c.LoadResource(ctx, url)
}

// Play starts playback.
func (c *Controller) Play() error {
	return c.out.Play()
}

// Pause pauses playback.
func (c *Controller) Pause() error {
	return c.out.Pause()
}

// Toggle plays when paused and pauses otherwise.
func (c *Controller) Toggle() error {
	if c.out.Paused() {
		return c.out.Play()
	}
	return c.out.Pause()
}

// Seek moves to fraction of the duration, clamped to [0,1].
func (c *Controller) Seek(fraction float64) error {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	d := c.out.Duration()
	if d <= 0 {
		return nil
	}
	return c.out.SetPosition(fraction * d)
}

// Nudge moves the position by delta seconds, clamped to the source.
func (c *Controller) Nudge(delta float64) error {
	d := c.out.Duration()
	if d <= 0 {
		return nil
	}
	pos := c.out.Position() + delta
	if pos < 0 {
		pos = 0
	}
	if pos > d {
		pos = d
	}
	return c.out.SetPosition(pos)
}

// SetVolume sets and saves the volume.
func (c *Controller) SetVolume(v float64) error {
	v = clampVolume(v)
	if err := c.out.SetVolume(v); err != nil {
		return err
	}

	c.mu.Lock()
	c.volume = v
	if v > 0 {
		c.lastVolume = v
	}
	c.mu.Unlock()

	if c.prefs != nil {
		c.prefs.SetVolume(v)
	}
	return nil
}

// ToggleMute mutes, or restores the volume from before muting. Muting is
// not saved.
func (c *Controller) ToggleMute() error {
	c.mu.Lock()
	target := 0.0
	if c.volume == 0 {
		target = c.lastVolume
		if target == 0 {
			target = 1
		}
	} else {
		c.lastVolume = c.volume
	}
	c.mu.Unlock()

	if err := c.out.SetVolume(target); err != nil {
		return err
	}
	c.mu.Lock()
	c.volume = target
	c.mu.Unlock()
	return nil
}

// Volume returns the current volume.
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// WasPlaying reports whether playback is active: not paused and not ended.
func (c *Controller) WasPlaying() bool {
	return !c.out.Paused() && !c.out.Ended()
}

// Ended reports whether the source played to its end.
func (c *Controller) Ended() bool {
	return c.out.Ended()
}

// Paused reports whether playback is not running.
func (c *Controller) Paused() bool {
	return c.out.Paused()
}

// Position returns the playback position in seconds.
func (c *Controller) Position() float64 {
	return c.out.Position()
}

// Duration returns the source length in seconds.
func (c *Controller) Duration() float64 {
	return c.out.Duration()
}

// Source returns the loaded source URL.
func (c *Controller) Source() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// Reset moves playback to position zero.
func (c *Controller) Reset() error {
	if c.out.Duration() <= 0 {
		return nil
	}
	return c.out.SetPosition(0)
}

// Clear pauses and drops the current source.
func (c *Controller) Clear() error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if err := c.out.Pause(); err != nil {
		return err
	}
	if err := c.out.Clear(); err != nil {
		return err
	}

	c.mu.Lock()
	c.source = ""
	c.mu.Unlock()
	return nil
}

// Close closes the output and waits for the event loop to finish.
func (c *Controller) Close() error {
	err := c.out.Close()
	<-c.done
	return err
}

func (c *Controller) loop() {
	defer close(c.done)

	for ev := range c.out.Events() {
		c.mu.Lock()
		subs := slices.Clone(c.subscribers)
		onEnded := c.onEnded
		c.mu.Unlock()

		for _, fn := range subs {
			fn(ev)
		}
		if ev.Type == EventEnded && onEnded != nil {
			onEnded()
		}
	}
}
