package store

import (
	"errors"
	"strings"
	"testing"
)

func TestSQLiteStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenSQLite(dir, SQLiteOptions{CompressionLevel: 3})
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}

	small := "hello"
	large := strings.Repeat("la la la ", 500)

	if err := s.SetItem("small", small); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	if err := s.SetItem("large", large); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	got, ok, err := s.GetItem("large")
	if err != nil || !ok {
		t.Fatalf("GetItem(large) = %v, %v", ok, err)
	}
	if got != large {
		t.Error("large value did not round-trip")
	}

	if _, ok, err := s.GetItem("missing"); err != nil || ok {
		t.Errorf("GetItem(missing) = %v, %v; want false, nil", ok, err)
	}

	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "large" || keys[1] != "small" {
		t.Errorf("Keys = %v", keys)
	}

	if err := s.RemoveItem("small"); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if _, ok, _ := s.GetItem("small"); ok {
		t.Error("removed key still present")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopen without compression: compressed values must stay readable.
	s, err = OpenSQLite(dir, SQLiteOptions{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	got, ok, err = s.GetItem("large")
	if err != nil || !ok || got != large {
		t.Errorf("large value unreadable after reopen: ok=%v err=%v", ok, err)
	}
}

func TestSQLiteStorageCompressesLargeValues(t *testing.T) {
	s, err := OpenSQLite(t.TempDir(), SQLiteOptions{CompressionLevel: 3})
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer s.Close()

	large := strings.Repeat("a", 4096)
	blob := s.encode(large)
	if blob[0] != markerZstd {
		t.Fatalf("large value marker = %d, want zstd", blob[0])
	}
	if len(blob) >= len(large) {
		t.Errorf("compressed size %d not smaller than %d", len(blob), len(large))
	}

	if blob := s.encode("tiny"); blob[0] != markerPlain {
		t.Errorf("small value marker = %d, want plain", blob[0])
	}
}

func TestSQLiteStorageLock(t *testing.T) {
	dir := t.TempDir()

	first, err := OpenSQLite(dir, SQLiteOptions{})
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}

	if _, err := OpenSQLite(dir, SQLiteOptions{}); !errors.Is(err, ErrLocked) {
		t.Fatalf("second open error = %v, want ErrLocked", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := OpenSQLite(dir, SQLiteOptions{})
	if err != nil {
		t.Fatalf("open after release failed: %v", err)
	}
	_ = second.Close()

	if _, _, err := second.GetItem("x"); !errors.Is(err, ErrClosed) {
		t.Errorf("GetItem after Close = %v, want ErrClosed", err)
	}
}

func TestMemoryStorage(t *testing.T) {
	m := NewMemoryStorage()
	_ = m.SetItem("b", "2")
	_ = m.SetItem("a", "1")

	keys, _ := m.Keys()
	if len(keys) != 2 || keys[0] != "a" {
		t.Errorf("Keys = %v, want sorted", keys)
	}

	_ = m.Close()
	if err := m.SetItem("c", "3"); !errors.Is(err, ErrClosed) {
		t.Errorf("SetItem after Close = %v, want ErrClosed", err)
	}
}
