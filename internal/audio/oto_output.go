//go:build !nocgo
// +build !nocgo

package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
)

const (
	// SampleRate of the shared device context.
	SampleRate = 44100

	maxSourceSize = 256 << 20
	watchInterval = 50 * time.Millisecond
)

var (
	otoContext *oto.Context
	otoErr     error
	otoOnce    sync.Once
)

// deviceContext returns the process-wide oto context; oto allows only one.
func deviceContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: pcmChannels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoContext = ctx
	})
	return otoContext, otoErr
}

// OtoOutput plays MP3 sources through the system audio device. Sources are
// downloaded and decoded in full before playback.
type OtoOutput struct {
	context *oto.Context
	client  *http.Client

	mu     sync.Mutex
	player *oto.Player
	// pcm and reader stay referenced while the player reads from them.
	pcm    []byte
	reader *bytes.Reader
	state  PlayerState
	volume float64

	events chan Event
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewOtoOutput opens the audio device. client fetches sources; nil uses
// http.DefaultClient.
func NewOtoOutput(client *http.Client) (Output, error) {
	ctx, err := deviceContext()
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}

	o := &OtoOutput{
		context: ctx,
		client:  client,
		state:   StateStopped,
		volume:  1.0,
		events:  make(chan Event, eventBuffer),
		stopCh:  make(chan struct{}),
	}
	o.wg.Add(1)
	go o.watch()
	return o, nil
}

// Load downloads and decodes url, replacing the current source.
func (o *OtoOutput) Load(ctx context.Context, url string) error {
	if url == "" {
		return ErrNoSource
	}

	pcm, err := o.fetch(ctx, url)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateClosed {
		return ErrClosed
	}
	o.releaseLocked()

	o.pcm = pcm
	o.reader = bytes.NewReader(pcm)
	o.player = o.context.NewPlayer(o.reader)
	o.player.SetVolume(o.volume)
	o.state = StatePaused

	emit(o.events, Event{Type: EventMetadata, Duration: pcmDuration(len(pcm), SampleRate)})
	return nil
}

func (o *OtoOutput) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch audio: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceSize))
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	return resamplePCM(pcm, dec.SampleRate(), SampleRate), nil
}

// Play starts or resumes playback. Playing an ended source restarts it.
func (o *OtoOutput) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateClosed:
		return ErrClosed
	case StateStopped:
		return ErrNoSource
	case StatePlaying:
		return nil
	case StateEnded:
		if _, err := o.player.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind: %w", err)
		}
	}

	o.player.Play()
	o.state = StatePlaying
	emit(o.events, Event{Type: EventPlay, Position: o.positionLocked(), Duration: o.durationLocked()})
	return nil
}

// Pause pauses playback.
func (o *OtoOutput) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateClosed {
		return ErrClosed
	}
	if o.state != StatePlaying {
		return nil
	}
	o.player.Pause()
	o.state = StatePaused
	emit(o.events, Event{Type: EventPause, Position: o.positionLocked(), Duration: o.durationLocked()})
	return nil
}

// Paused reports whether playback is not running.
func (o *OtoOutput) Paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state != StatePlaying
}

// Ended reports whether the source played to its end.
func (o *OtoOutput) Ended() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateEnded
}

// Position returns the playback position in seconds.
func (o *OtoOutput) Position() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.positionLocked()
}

// Duration returns the source length in seconds.
func (o *OtoOutput) Duration() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.durationLocked()
}

// SetPosition moves playback to seconds, clamped to the source.
func (o *OtoOutput) SetPosition(seconds float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateClosed:
		return ErrClosed
	case StateStopped:
		return ErrNoSource
	}

	offset := pcmOffset(seconds, SampleRate)
	if size := int64(len(o.pcm)); offset > size {
		offset = size - size%pcmFrameSize
	}
	if _, err := o.player.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	if o.state == StateEnded && offset < int64(len(o.pcm)) {
		o.state = StatePaused
	}

	emit(o.events, Event{Type: EventSeeked, Position: o.positionLocked(), Duration: o.durationLocked()})
	return nil
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (o *OtoOutput) SetVolume(volume float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.volume = clampVolume(volume)
	if o.player != nil {
		o.player.SetVolume(o.volume)
	}
	return nil
}

// Clear drops the current source.
func (o *OtoOutput) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateClosed {
		return ErrClosed
	}
	o.releaseLocked()
	o.state = StateStopped
	return nil
}

// Close stops playback and releases the source. The device context stays
// open for the life of the process.
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	if o.state == StateClosed {
		o.mu.Unlock()
		return nil
	}
	o.releaseLocked()
	o.state = StateClosed
	close(o.stopCh)
	o.mu.Unlock()

	o.wg.Wait()
	close(o.events)
	return nil
}

// Events returns the event channel.
func (o *OtoOutput) Events() <-chan Event {
	return o.events
}

// watch detects the natural end of playback.
func (o *OtoOutput) watch() {
	defer o.wg.Done()

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.mu.Lock()
			if o.state == StatePlaying && o.player != nil && !o.player.IsPlaying() {
				o.state = StateEnded
				d := o.durationLocked()
				emit(o.events, Event{Type: EventEnded, Position: d, Duration: d})
			}
			o.mu.Unlock()
		}
	}
}

func (o *OtoOutput) positionLocked() float64 {
	if o.player == nil || o.reader == nil {
		return 0
	}
	if o.state == StateEnded {
		return o.durationLocked()
	}
	played := int64(len(o.pcm)) - int64(o.reader.Len()) - int64(o.player.BufferedSize())
	if played < 0 {
		played = 0
	}
	return pcmDuration(int(played), SampleRate)
}

func (o *OtoOutput) durationLocked() float64 {
	return pcmDuration(len(o.pcm), SampleRate)
}

func (o *OtoOutput) releaseLocked() {
	if o.player != nil {
		o.player.Pause()
		_ = o.player.Close()
		o.player = nil
	}
	o.reader = nil
	o.pcm = nil
}
