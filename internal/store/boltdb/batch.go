package boltdb

import (
	"context"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/localsync/internal/models"
	"github.com/iudanet/localsync/internal/store"
)

// ApplyLocalMutation persists the mutated record and appends the operation
// to the outbox in one transaction. Крах между записью сущности и outbox
// невозможен: либо видны обе записи, либо ни одной.
func (s *Storage) ApplyLocalMutation(ctx context.Context, record *models.EntityRecord, op *models.Operation) error {
	if s.db == nil {
		return store.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := putEntity(tx, record); err != nil {
			return err
		}
		return appendOperation(tx, op)
	})
	if err != nil {
		return fmt.Errorf("mutation transaction failed: %w", err)
	}

	return nil
}

// ApplyPullBatch merges a whole pull batch and advances the collection
// cursor in a single transaction. Слияние выполняется внутри транзакции,
// поэтому конкурентная локальная мутация не может потеряться между чтением
// и записью. Некорректные изменения пропускаются, транзакция продолжается.
func (s *Storage) ApplyPullBatch(
	ctx context.Context,
	collection string,
	changes []*models.RemoteChange,
	cursor string,
	merger store.Merger,
) (*store.PullResult, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}

	result := &store.PullResult{}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, change := range changes {
			local, err := getEntity(tx, change.Collection, change.EntityID)
			if err != nil && !errors.Is(err, store.ErrEntityNotFound) {
				return err
			}

			merged, conflict, err := merger.MergeRemote(local, change)
			if err != nil {
				if errors.Is(err, models.ErrInvalidChange) {
					// SchemaValidationError: изменение отброшено, batch продолжается
					result.Skipped++
					continue
				}
				return err
			}

			if merged != nil {
				if err := putEntity(tx, merged); err != nil {
					return err
				}
				result.Applied++
			}

			if conflict != nil {
				if err := putConflict(tx, conflict); err != nil {
					return err
				}
				result.Conflicts++
			}
		}

		// Курсор двигается только вместе с durable применением batch
		return tx.Bucket(bucketCursors).Put([]byte(collection), []byte(cursor))
	})
	if err != nil {
		return nil, fmt.Errorf("pull batch transaction failed: %w", err)
	}

	return result, nil
}
