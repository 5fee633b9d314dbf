package store

import "errors"

// Sentinel errors for the store package.
var (
	// ErrUnknownDriver is returned when the configured backend is not recognised.
	ErrUnknownDriver = errors.New("unknown storage driver")
)
