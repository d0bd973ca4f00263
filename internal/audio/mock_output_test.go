package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockOutput_Transport(t *testing.T) {
	out := NewMockOutput(WithDelayFactor(0), WithDuration("a.mp3", 60))
	defer out.Close()

	if err := out.Play(); !errors.Is(err, ErrNoSource) {
		t.Fatalf("Play without source = %v, want ErrNoSource", err)
	}

	if err := out.Load(context.Background(), "a.mp3"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !out.Paused() || out.Duration() != 60 {
		t.Fatalf("after load: paused=%v duration=%v", out.Paused(), out.Duration())
	}

	if err := out.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	out.Advance(10)
	if pos := out.Position(); pos != 10 {
		t.Errorf("Position = %v, want 10", pos)
	}

	if err := out.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if !out.Paused() || out.Ended() {
		t.Error("expected paused, not ended")
	}

	if err := out.SetPosition(100); err != nil {
		t.Fatalf("SetPosition failed: %v", err)
	}
	if pos := out.Position(); pos != 60 {
		t.Errorf("Position = %v, want clamped 60", pos)
	}
}

func TestMockOutput_NaturalEnd(t *testing.T) {
	out := NewMockOutput(WithDelayFactor(0), WithDuration("a.mp3", 30))
	defer out.Close()

	_ = out.Load(context.Background(), "a.mp3")
	_ = out.Play()
	out.Advance(31)

	if !out.Ended() || !out.Paused() {
		t.Fatalf("expected ended and paused, state=%s", out.State())
	}

	var types []EventType
	for len(out.Events()) > 0 {
		types = append(types, (<-out.Events()).Type)
	}
	expected := []EventType{EventMetadata, EventPlay, EventEnded}
	if len(types) != len(expected) {
		t.Fatalf("events = %v, want %v", types, expected)
	}
	for i := range expected {
		if types[i] != expected[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], expected[i])
		}
	}

	// Playing an ended source restarts it.
	_ = out.Play()
	if pos := out.Position(); pos != 0 {
		t.Errorf("Position after replay = %v, want 0", pos)
	}
}

func TestMockOutput_RealTimeEnd(t *testing.T) {
	out := NewMockOutput(WithDelayFactor(0.01), WithDuration("short.mp3", 2))
	defer out.Close()

	_ = out.Load(context.Background(), "short.mp3")
	_ = out.Play()

	deadline := time.After(2 * time.Second)
	for !out.Ended() {
		select {
		case <-deadline:
			t.Fatal("playback did not end")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestMockOutput_StaleTimerDoesNotEndNewPlayback(t *testing.T) {
	out := NewMockOutput(WithDelayFactor(0.001), WithDuration("a.mp3", 50))
	defer out.Close()

	_ = out.Load(context.Background(), "a.mp3")
	_ = out.Play()
	_ = out.Pause()
	_ = out.SetPosition(0)
	_ = out.Load(context.Background(), "a.mp3")

	time.Sleep(100 * time.Millisecond)
	if out.Ended() {
		t.Error("a stopped timer ended a paused source")
	}
}

func TestMockOutput_LoadFailureAndClose(t *testing.T) {
	boom := errors.New("boom")
	out := NewMockOutput(WithCallbacks(MockCallbacks{
		OnLoad: func(url string) error {
			if url == "bad.mp3" {
				return boom
			}
			return nil
		},
	}))

	if err := out.Load(context.Background(), "bad.mp3"); !errors.Is(err, boom) {
		t.Fatalf("Load = %v, want boom", err)
	}
	if out.Metrics().LoadCount != 0 {
		t.Error("failed load was counted")
	}

	_ = out.Close()
	if err := out.Load(context.Background(), "a.mp3"); !errors.Is(err, ErrClosed) {
		t.Errorf("Load after Close = %v, want ErrClosed", err)
	}
	if _, ok := <-out.Events(); ok {
		t.Error("event channel still open after Close")
	}
}

func TestResamplePCM(t *testing.T) {
	// Two stereo frames at 1 Hz upsampled to 2 Hz.
	in := []byte{
		0x00, 0x00, 0x00, 0x00,
		0x64, 0x00, 0xC8, 0x00, // 100, 200
	}
	out := resamplePCM(in, 1, 2)
	if len(out) != 4*pcmFrameSize {
		t.Fatalf("len = %d, want %d", len(out), 4*pcmFrameSize)
	}
	// Frame 1 sits halfway between the inputs.
	if l := int16(out[4]) | int16(out[5])<<8; l != 50 {
		t.Errorf("left sample = %d, want 50", l)
	}
	if same := resamplePCM(in, 44100, 44100); len(same) != len(in) {
		t.Error("equal rates must return the input")
	}
	if d := pcmDuration(44100*pcmFrameSize, 44100); d != 1 {
		t.Errorf("pcmDuration = %v, want 1", d)
	}
	if off := pcmOffset(0.5, 44100); off%pcmFrameSize != 0 {
		t.Errorf("offset %d not frame aligned", off)
	}
}
