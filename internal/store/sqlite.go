package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

const (
	// DatabaseName is the file name of the state database inside the data dir.
	DatabaseName = "karaoke.db"
	lockName     = "karaoke.lock"

	// Values at or below this size are stored as-is.
	compressThreshold = 1024

	markerPlain byte = 0
	markerZstd  byte = 1

	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStorage implements Storage on a single SQLite table. Large values
// are zstd-compressed when that makes them smaller.
type SQLiteStorage struct {
	db   *sql.DB
	path string

	lock *flock.Flock

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu     sync.Mutex
	closed bool
}

// SQLiteOptions configures OpenSQLite.
type SQLiteOptions struct {
	// Shared takes a shared lock on the data directory instead of an
	// exclusive one, for read-mostly commands.
	Shared bool

	// CompressionLevel is the zstd level (1-22). Zero disables compression.
	CompressionLevel int
}

// OpenSQLite opens (creating if needed) the state database in dir.
func OpenSQLite(dir string, opts SQLiteOptions) (*SQLiteStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockName))
	var (
		ok  bool
		err error
	)
	if opts.Shared {
		ok, err = lock.TryRLock()
	} else {
		ok, err = lock.TryLock()
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	path := filepath.Join(dir, DatabaseName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStorage{db: db, path: path, lock: lock}

	if opts.CompressionLevel > 0 {
		s.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.CompressionLevel)))
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// The decoder is always available so a database written with
	// compression stays readable when compression is turned off.
	s.decoder, err = zstd.NewReader(nil)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// GetItem returns the value stored under key.
func (s *SQLiteStorage) GetItem(key string) (string, bool, error) {
	if s.isClosed() {
		return "", false, ErrClosed
	}

	var blob []byte
	err := retryOnBusy(context.Background(), func() error {
		return s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&blob)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}

	value, err := s.decode(blob)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return value, true, nil
}

// SetItem stores value under key, replacing any previous value.
func (s *SQLiteStorage) SetItem(key, value string) error {
	if s.isClosed() {
		return ErrClosed
	}

	blob := s.encode(value)
	return retryOnBusy(context.Background(), func() error {
		_, err := s.db.Exec(
			`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, blob, time.Now().UnixMilli(),
		)
		return err
	})
}

// RemoveItem deletes key.
func (s *SQLiteStorage) RemoveItem(key string) error {
	if s.isClosed() {
		return ErrClosed
	}
	return retryOnBusy(context.Background(), func() error {
		_, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key)
		return err
	})
}

// Keys returns all stored keys in sorted order.
func (s *SQLiteStorage) Keys() ([]string, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	rows, err := s.db.Query("SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database and releases the directory lock.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.encoder != nil {
		if err := s.encoder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.decoder != nil {
		s.decoder.Close()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *SQLiteStorage) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// encode prefixes the value with a marker byte, compressing only when the
// value is large and compression actually reduces its size.
func (s *SQLiteStorage) encode(value string) []byte {
	raw := []byte(value)
	if s.encoder != nil && len(raw) > compressThreshold {
		compressed := s.encoder.EncodeAll(raw, make([]byte, 1, len(raw)/2+1))
		compressed[0] = markerZstd
		if len(compressed) < len(raw)+1 {
			return compressed
		}
	}
	out := make([]byte, 0, len(raw)+1)
	out = append(out, markerPlain)
	return append(out, raw...)
}

func (s *SQLiteStorage) decode(blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", ErrCorrupt
	}
	switch blob[0] {
	case markerPlain:
		return string(blob[1:]), nil
	case markerZstd:
		out, err := s.decoder.DecodeAll(blob[1:], nil)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return string(out), nil
	default:
		return "", ErrCorrupt
	}
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
