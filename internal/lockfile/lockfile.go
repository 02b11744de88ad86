// Package lockfile serializes writers of the repository-local log files.
//
// Appends to the working log and the rewrite-event log can race when a hook
// invocation re-enters git and triggers another hook process. An advisory
// flock on a sidecar file keeps those appends (and the idempotency check
// that precedes them) atomic with respect to each other.
package lockfile

import (
	"errors"
	"fmt"
	"os"
)

// ErrLockBusy is returned by TryAcquire when another process holds the lock.
var ErrLockBusy = errors.New("lock already held by another process")

// Acquire takes an exclusive lock on path's sidecar lock file, blocking
// until it is available. The returned release func unlocks and closes it.
func Acquire(path string) (release func(), err error) {
	f, err := openLockFile(path)
	if err != nil {
		return nil, err
	}
	if err := flockExclusive(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", f.Name(), err)
	}
	return func() {
		_ = flockUnlock(f)
		_ = f.Close()
	}, nil
}

// TryAcquire is the non-blocking variant of Acquire. It returns ErrLockBusy
// when the lock is held elsewhere, so maintenance commands can skip work
// instead of stalling behind an active hook.
func TryAcquire(path string) (release func(), err error) {
	f, err := openLockFile(path)
	if err != nil {
		return nil, err
	}
	if err := flockExclusiveNonBlock(f); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		_ = flockUnlock(f)
		_ = f.Close()
	}, nil
}

func openLockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file for %s: %w", path, err)
	}
	return f, nil
}
