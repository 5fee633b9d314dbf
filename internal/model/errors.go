package model

import (
	"errors"
	"fmt"
)

// Error categories. Callers wrap these with context using fmt.Errorf and %w,
// and the API layer maps them to status codes with errors.Is.
var (
	// ErrValidation is returned for bad input shape or range.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when an operation conflicts with current state,
	// such as deleting the active event.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned for unknown event or session ids.
	ErrNotFound = errors.New("not found")

	// ErrPersistence is returned when the store is unreachable or a query fails.
	ErrPersistence = errors.New("persistence failure")
)

// Validationf returns an ErrValidation wrapped with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflictf returns an ErrConflict wrapped with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// NotFoundf returns an ErrNotFound wrapped with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Persistence wraps a driver error as ErrPersistence, keeping both in the
// chain. Nil stays nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
