package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSyncedLyricsUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		count int
		first string
	}{
		{"raw text", `{"syncedLyrics":"[00:01.00]hello\n[00:02.00]world"}`, 2, "hello"},
		{"parsed lines", `{"syncedLyrics":[{"time":1.5,"text":"hi"}]}`, 1, "hi"},
		{"null", `{"syncedLyrics":null}`, 0, ""},
		{"missing", `{"title":"x"}`, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l Lyrics
			if err := json.Unmarshal([]byte(tt.input), &l); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if len(l.SyncedLyrics) != tt.count {
				t.Fatalf("got %d lines, want %d", len(l.SyncedLyrics), tt.count)
			}
			if tt.count > 0 && l.SyncedLyrics[0].Text != tt.first {
				t.Errorf("first line = %q, want %q", l.SyncedLyrics[0].Text, tt.first)
			}
		})
	}
}

func TestQueueItemTransitions(t *testing.T) {
	item := NewQueueItem("a1", "Song A", "Artist A")
	if item.Status != StatusQueued {
		t.Fatalf("new item status = %s, want queued", item.Status)
	}
	if item.Slot == "" {
		t.Fatal("new item has no slot")
	}

	item.MarkLoading()
	if item.Status != StatusLoading {
		t.Fatalf("status = %s, want loading", item.Status)
	}

	if err := item.MarkReady(nil); !errors.Is(err, ErrNoInstrumental) {
		t.Fatalf("MarkReady(nil) error = %v, want ErrNoInstrumental", err)
	}
	if item.Status != StatusLoading {
		t.Fatalf("refused MarkReady changed status to %s", item.Status)
	}

	if err := item.MarkReady(&Instrumental{Source: "/files/a1.mp3"}); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}
	if !item.UseInstrumental() {
		t.Error("ready item with instrumental should use it")
	}

	no := false
	item.Instrumental.ShouldPlay = &no
	if item.UseInstrumental() {
		t.Error("should_play_instrumental=false must disable the instrumental")
	}

	item.MarkError(errors.New("boom"))
	if item.Status != StatusError || item.Err != "boom" {
		t.Errorf("after MarkError: status=%s err=%q", item.Status, item.Err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		item     QueueItem
		expected Status
	}{
		{"loading restarts", QueueItem{Status: StatusLoading}, StatusQueued},
		{"unknown status", QueueItem{Status: "weird"}, StatusQueued},
		{"ready without source", QueueItem{Status: StatusReady}, StatusQueued},
		{"ready with source", QueueItem{Status: StatusReady, Instrumental: &Instrumental{Source: "x"}}, StatusReady},
		{"error stays", QueueItem{Status: StatusError}, StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := tt.item
			item.Normalize()
			if item.Status != tt.expected {
				t.Errorf("status = %s, want %s", item.Status, tt.expected)
			}
			if item.Slot == "" {
				t.Error("Normalize did not assign a slot")
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	item := NewQueueItem("a1", "Song A", "Artist A")
	item.Lyrics = &Lyrics{Title: "Song A"}
	item.Lyrics.SyncedLyrics = SyncedLyrics{{Time: 1, Text: "x"}}

	c := item.Clone()
	c.Lyrics.SyncedLyrics[0].Text = "changed"
	c.Lyrics.Title = "changed"

	if item.Lyrics.SyncedLyrics[0].Text != "x" || item.Lyrics.Title != "Song A" {
		t.Error("mutating the clone changed the original")
	}
}
