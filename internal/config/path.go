package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/graaaaa/playpulse/internal/appinfo"
)

// DataDir returns the application data directory path.
// On Windows: %LOCALAPPDATA%/playpulse/
// On other platforms: ~/.config/playpulse/ or equivalent
func DataDir() (string, error) {
	var base string

	if runtime.GOOS == "windows" {
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			base = localAppData
		} else {
			dir, err := os.UserConfigDir()
			if err != nil {
				return "", fmt.Errorf("get user config dir: %w", err)
			}
			base = dir
		}
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("get user config dir: %w", err)
		}
		base = dir
	}

	return filepath.Join(base, appinfo.DirName), nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create data dir %q: %w", dir, err)
	}

	return dir, nil
}

// DefaultPath returns the path of config.yaml in the data directory.
func DefaultPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appinfo.ConfigFileName), nil
}
