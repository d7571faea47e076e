package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned when another process holds the lock
var ErrAlreadyRunning = errors.New("another tonebot instance is already running")

// Lock guarantees a single polling process per lock file
type Lock struct {
	path string
	lock *flock.Flock
}

// NewLock creates a lock backed by the file at path
func NewLock(path string) *Lock {
	return &Lock{
		path: path,
		lock: flock.New(path),
	}
}

// Path returns the lock file location
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking
func (l *Lock) Acquire() error {
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create lock directory: %w", err)
		}
	}

	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, l.path)
	}
	return nil
}

// Release frees the lock
func (l *Lock) Release() error {
	return l.lock.Unlock()
}
