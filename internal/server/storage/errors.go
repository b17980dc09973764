package storage

import "errors"

// Common storage errors
var (
	// ErrEntityNotFound indicates that no field state exists for the entity
	ErrEntityNotFound = errors.New("entity not found")

	// ErrInvalidOperation indicates a malformed operation payload
	ErrInvalidOperation = errors.New("invalid operation")
)
