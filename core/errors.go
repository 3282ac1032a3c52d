package core

import (
	"errors"
	"fmt"
)

// Error kinds for the whole domain. Callers match with errors.Is; the HTTP
// layer maps them to status codes.
var (
	// ErrInvalidArgument rejects a request before any mutation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound covers entities that do not exist, are soft-deleted, or
	// belong to another company.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a uniqueness violation, e.g. a duplicate metric
	// name within a company.
	ErrConflict = errors.New("conflict")
	// ErrTxConflict signals concurrent mutation of the same row detected by
	// the storage layer. The orchestrator retries these a bounded number of
	// times before surfacing the failure.
	ErrTxConflict = errors.New("transaction conflict")
)

// InvalidArgumentf wraps ErrInvalidArgument with a formatted message.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidArgument)...)
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Conflictf wraps ErrConflict with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}
