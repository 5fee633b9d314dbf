// Package appinfo provides application identity constants.
// These are used across packages for consistent naming.
package appinfo

const (
	// AppName is the display name of the application.
	AppName = "playpulse"

	// DirName is the directory name used for storing application data.
	// Location: %LOCALAPPDATA%/playpulse/ (Windows) or ~/.config/playpulse/ (other)
	DirName = "playpulse"

	// MutexPrefix prefixes the Windows mutex names used for single-writer control.
	// "Local\" scopes the mutex to the current user session.
	MutexPrefix = "Local\\playpulse-"

	// ConfigFileName is the configuration file name.
	ConfigFileName = "config.yaml"

	// DatabaseFileName is the SQLite database file name.
	DatabaseFileName = "playpulse.sqlite"

	// EnvPrefix prefixes every environment variable override.
	EnvPrefix = "PLAYPULSE_"
)
