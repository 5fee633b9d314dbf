//go:build unix

// Package singleinstance guards a file-backed resource so that only one
// process writes to it at a time.
package singleinstance

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// AcquireLock takes an exclusive, non-blocking flock on the lock file at path,
// creating it if needed.
//
// Returns:
//   - release: unlocks and closes the lock file (use with defer)
//   - ok: false if another process holds the lock
//   - err: error if the lock file could not be opened or locked
func AcquireLock(path string) (release func(), ok bool, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, false, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("flock: %w", err)
	}

	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, true, nil
}
