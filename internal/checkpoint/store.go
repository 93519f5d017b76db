// Package checkpoint persists a single timestamp value to a file guarded
// by an exclusive advisory lock. The value is the cursor into a remote
// event stream: it only ever moves forward, and holding the lock for the
// duration of a run is what keeps concurrent invocations from processing
// the same events twice.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned by Open when the exclusive lock cannot be
// acquired before the context deadline. A concurrent run holds the store;
// this is recoverable, the caller simply tries again on its next schedule.
var ErrLockTimeout = errors.New("checkpoint: lock acquisition timed out")

// lockRetryDelay is the poll interval while waiting for the file lock.
const lockRetryDelay = 100 * time.Millisecond

// Store is an open, exclusively-locked checkpoint file. It must be
// released with Close when the run finishes.
type Store struct {
	path string
	file *os.File
	lock *flock.Flock
}

// Open opens (creating if needed) the checkpoint file at path and
// acquires its exclusive lock. It blocks until the lock is acquired or
// ctx expires, in which case it returns ErrLockTimeout.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: creating directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("checkpoint: acquiring lock: %w", err)
	}
	if !locked {
		return nil, ErrLockTimeout
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		releaseErr := lock.Unlock()
		return nil, errors.Join(fmt.Errorf("checkpoint: opening %s: %w", path, err), releaseErr)
	}

	return &Store{path: path, file: file, lock: lock}, nil
}

// Read returns the stored timestamp. An empty store is initialized to the
// current UTC time first, so a first-ever run starts from "now" instead of
// replaying the remote service's entire history.
func (s *Store) Read() (string, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("checkpoint: seeking %s: %w", s.path, err)
	}
	data, err := io.ReadAll(s.file)
	if err != nil {
		return "", fmt.Errorf("checkpoint: reading %s: %w", s.path, err)
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		value = time.Now().UTC().Format(time.RFC3339)
		if err := s.Write(value); err != nil {
			return "", err
		}
	}
	return value, nil
}

// Write replaces the stored timestamp with value.
func (s *Store) Write(value string) error {
	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("checkpoint: truncating %s: %w", s.path, err)
	}
	if _, err := s.file.WriteAt([]byte(value), 0); err != nil {
		return fmt.Errorf("checkpoint: writing %s: %w", s.path, err)
	}
	return nil
}

// Close releases the lock and closes the file. Safe to call once.
func (s *Store) Close() error {
	closeErr := s.file.Close()
	unlockErr := s.lock.Unlock()
	if closeErr != nil {
		return fmt.Errorf("checkpoint: closing %s: %w", s.path, closeErr)
	}
	if unlockErr != nil {
		return fmt.Errorf("checkpoint: releasing lock: %w", unlockErr)
	}
	return nil
}
