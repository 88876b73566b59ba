package service

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// InstanceLock prevents two service processes from sharing one data
// directory. Two event loops over the same store would double-index
// arrivals and race relay jobs.
type InstanceLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewInstanceLock creates a lock at the given path.
func NewInstanceLock(path string) *InstanceLock {
	return &InstanceLock{path: path, flock: flock.New(path)}
}

// TryAcquire attempts to take the lock without blocking. Returns false when
// another instance already holds it.
func (l *InstanceLock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire instance lock: %w", err)
	}

	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Release releases the lock. Safe to call when not held.
func (l *InstanceLock) Release() error {
	if !l.locked {
		return nil
	}

	if err := l.flock.Unlock(); err != nil {
		l.locked = false
		return fmt.Errorf("failed to release instance lock: %w", err)
	}

	l.locked = false
	return nil
}

// Path returns the lock file location.
func (l *InstanceLock) Path() string {
	return l.path
}
