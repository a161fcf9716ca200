// SPDX-License-Identifier: AGPL-3.0-only

// Package singleton elects the one process that runs scheduled prompts
// against a transcript database.
package singleton

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld is returned when another process owns the lock.
var ErrHeld = stderrors.New("singleton: lock held by another process")

// Lock is an acquired ownership lock for a database path.
type Lock struct {
	flock *flock.Flock
}

func newFlock(dbPath string) (*flock.Flock, error) {
	lockPath := dbPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("singleton: create lock directory: %w", err)
	}
	return flock.New(lockPath), nil
}

// Acquire takes the lock for dbPath without blocking. It returns ErrHeld if
// another process already owns it.
func Acquire(dbPath string) (*Lock, error) {
	fl, err := newFlock(dbPath)
	if err != nil {
		return nil, err
	}
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("singleton: try lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, ErrHeld
	}
	return &Lock{flock: fl}, nil
}

// Path is the lock file location.
func (l *Lock) Path() string {
	return l.flock.Path()
}

// Release gives up the lock. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return l.flock.Unlock()
}
