package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrBusy is returned when a lock is held elsewhere.
var ErrBusy = errors.New("lock is held by another operation")

type Lock struct {
	file *flock.Flock
}

// Acquire obtains a filesystem lock to prevent overlapping operations.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "pkgcache.lock")
	}
	l, ok, err := TryAcquire(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("another package operation is already running (lock: %s): %w", path, ErrBusy)
	}
	return l, nil
}

// TryAcquire attempts the lock once without blocking.
func TryAcquire(path string) (*Lock, bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, err
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil || !ok {
		return nil, ok, err
	}
	return &Lock{file: fl}, true, nil
}

// AcquireContext polls for the lock until it is obtained or ctx ends.
func AcquireContext(ctx context.Context, path string, retry time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	fl := flock.New(path)
	ok, err := fl.TryLockContext(ctx, retry)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("wait for %s: %w", path, ErrBusy)
		}
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("wait for %s: %w", path, ErrBusy)
	}
	return &Lock{file: fl}, nil
}

// Path reports the file backing the lock.
func (l *Lock) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Path()
}

// Release frees the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Unlock()
}
