package store

import (
	"context"

	"github.com/iudanet/localsync/internal/models"
)

// EntityStorage defines interface for entity records of the local store.
// All writes are transactional: a crash mid-write never leaves a record
// half-updated. I/O failures are retryable by the caller.
type EntityStorage interface {
	// SaveEntity stores or replaces an entity record
	SaveEntity(ctx context.Context, record *models.EntityRecord) error

	// GetEntity retrieves an entity record by collection and id.
	// Returns ErrEntityNotFound if the record doesn't exist.
	// Tombstoned records are returned with Deleted=true so concurrent
	// merges can observe the deletion stamp.
	GetEntity(ctx context.Context, collection, id string) (*models.EntityRecord, error)

	// ListEntities returns all non-deleted records of a collection
	ListEntities(ctx context.Context, collection string) ([]*models.EntityRecord, error)
}

// OutboxStorage defines interface for the append-only operation log.
// Operations are stored in creation order; operations for the same entity
// and field are always delivered FIFO.
type OutboxStorage interface {
	// PendingOperations returns up to limit pending operations in creation order
	PendingOperations(ctx context.Context, limit int) ([]*models.Operation, error)

	// MarkInFlight transitions pending operations to inFlight
	MarkInFlight(ctx context.Context, ids []string) error

	// MarkAcknowledged removes acknowledged operations from the log
	MarkAcknowledged(ctx context.Context, ids []string) error

	// MarkFailed increments the attempt counter and returns the operation
	// to pending, or moves it to permanentlyFailed once attempts reach
	// maxAttempts. Permanently failed operations are excluded from future
	// push batches but remain visible via FailedOperations.
	MarkFailed(ctx context.Context, ids []string, maxAttempts int) error

	// FailedOperations returns permanently failed operations for manual intervention
	FailedOperations(ctx context.Context) ([]*models.Operation, error)

	// PendingCount returns the number of operations awaiting delivery
	PendingCount(ctx context.Context) (int, error)
}

// CursorStorage defines interface for per-collection sync cursors
type CursorStorage interface {
	// GetCursor returns the stored cursor for a collection.
	// Returns ErrCursorNotFound before the first successful pull.
	GetCursor(ctx context.Context, collection string) (string, error)

	// SaveCursor persists the cursor for a collection
	SaveCursor(ctx context.Context, collection, cursor string) error
}

// ConflictStorage defines interface for unresolved Manual-strategy conflicts
type ConflictStorage interface {
	// ListConflicts returns all unresolved conflicts
	ListConflicts(ctx context.Context) ([]*models.Conflict, error)

	// GetConflict retrieves a conflict by id.
	// Returns ErrConflictNotFound if it doesn't exist.
	GetConflict(ctx context.Context, id string) (*models.Conflict, error)

	// DeleteConflict removes a resolved conflict
	DeleteConflict(ctx context.Context, id string) error
}

// MetadataStorage defines interface for device-level metadata: the stable
// node id and the persisted logical clock state
type MetadataStorage interface {
	// NodeID returns the stable device identifier, generating it on first use
	NodeID(ctx context.Context) (string, error)

	// SaveClockState persists the current logical clock value
	SaveClockState(ctx context.Context, timestamp int64) error

	// ClockState returns the last persisted clock value, 0 on first run
	ClockState(ctx context.Context) (int64, error)
}

// Merger merges one remote change into a local record inside a pull
// transaction. local is nil when no record exists yet. The returned record
// is persisted; a non-nil conflict is stored as an unresolved conflict.
// Validation failures are reported via models.ErrInvalidChange and cause
// the change to be skipped, not the batch to fail.
type Merger interface {
	MergeRemote(local *models.EntityRecord, change *models.RemoteChange) (*models.EntityRecord, *models.Conflict, error)
}

// PullResult reports what a pull batch application did
type PullResult struct {
	Applied   int // записей сохранено
	Conflicts int // конфликтов Manual стратегии сохранено
	Skipped   int // некорректных изменений отброшено
}

// Storage aggregates the full local store contract
type Storage interface {
	EntityStorage
	OutboxStorage
	CursorStorage
	ConflictStorage
	MetadataStorage

	// ApplyLocalMutation persists the mutated record and appends the
	// operation to the outbox atomically. A mutation is never visible
	// without its outbox entry and vice versa.
	ApplyLocalMutation(ctx context.Context, record *models.EntityRecord, op *models.Operation) error

	// ApplyPullBatch merges a whole pull batch and advances the collection
	// cursor in a single transaction. Re-applying the same batch after a
	// crash is harmless: merges are idempotent and the cursor only moves
	// forward with the batch.
	ApplyPullBatch(ctx context.Context, collection string, changes []*models.RemoteChange, cursor string, merger Merger) (*PullResult, error)

	// SaveConflict persists an unresolved conflict outside a pull batch
	SaveConflict(ctx context.Context, conflict *models.Conflict) error

	// Close releases the underlying database
	Close() error
}
