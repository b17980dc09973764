package store

import "errors"

// Common local store errors
var (
	// ErrEntityNotFound indicates that entity record was not found
	ErrEntityNotFound = errors.New("entity not found")

	// ErrOperationNotFound indicates that outbox operation was not found
	ErrOperationNotFound = errors.New("operation not found")

	// ErrConflictNotFound indicates that conflict marker was not found
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrCursorNotFound indicates that no cursor is stored for the collection
	ErrCursorNotFound = errors.New("cursor not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
