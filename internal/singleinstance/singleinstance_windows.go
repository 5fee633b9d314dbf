//go:build windows

// Package singleinstance guards a file-backed resource so that only one
// process writes to it at a time.
package singleinstance

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"

	"github.com/graaaaa/playpulse/internal/appinfo"
)

// AcquireLock acquires a session-scoped named mutex derived from path.
//
// Returns:
//   - release: function to call when shutting down (use with defer)
//   - ok: true if lock was acquired, false if another instance holds it
//   - err: error if something went wrong
func AcquireLock(path string) (release func(), ok bool, err error) {
	name, err := windows.UTF16PtrFromString(mutexName(path))
	if err != nil {
		return nil, false, err
	}

	h, err := windows.CreateMutex(nil, false, name)
	if err != nil {
		if err == windows.ERROR_ALREADY_EXISTS {
			// We got a handle but do not own the mutex
			if h != 0 {
				windows.CloseHandle(h)
			}
			return nil, false, nil
		}
		return nil, false, err
	}

	return func() {
		windows.CloseHandle(h)
	}, true, nil
}

// mutexName maps a lock path to a mutex name. Backslashes are not allowed
// after the namespace prefix, so the cleaned path is hashed.
func mutexName(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(strings.ToLower(abs)))
	return appinfo.MutexPrefix + hex.EncodeToString(sum[:8])
}
