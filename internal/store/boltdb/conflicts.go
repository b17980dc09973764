package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/localsync/internal/models"
	"github.com/iudanet/localsync/internal/store"
)

// SaveConflict persists an unresolved conflict
func (s *Storage) SaveConflict(ctx context.Context, conflict *models.Conflict) error {
	if s.db == nil {
		return store.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return putConflict(tx, conflict)
	})
	if err != nil {
		return fmt.Errorf("conflict transaction failed: %w", err)
	}

	return nil
}

// GetConflict retrieves a conflict by id
func (s *Storage) GetConflict(ctx context.Context, id string) (*models.Conflict, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}

	var conflict *models.Conflict

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketConflicts).Get([]byte(id))
		if data == nil {
			return store.ErrConflictNotFound
		}

		conflict = &models.Conflict{}
		if err := json.Unmarshal(data, conflict); err != nil {
			return fmt.Errorf("failed to unmarshal conflict: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return conflict, nil
}

// ListConflicts returns all unresolved conflicts
func (s *Storage) ListConflicts(ctx context.Context) ([]*models.Conflict, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}

	var conflicts []*models.Conflict

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConflicts).ForEach(func(k, v []byte) error {
			var conflict models.Conflict
			if err := json.Unmarshal(v, &conflict); err != nil {
				return fmt.Errorf("failed to unmarshal conflict: %w", err)
			}
			conflicts = append(conflicts, &conflict)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}

	return conflicts, nil
}

// DeleteConflict removes a resolved conflict
func (s *Storage) DeleteConflict(ctx context.Context, id string) error {
	if s.db == nil {
		return store.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConflicts).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete conflict: %w", err)
	}

	return nil
}

// putConflict сохраняет конфликт внутри открытой транзакции
func putConflict(tx *bbolt.Tx, conflict *models.Conflict) error {
	data, err := json.Marshal(conflict)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict: %w", err)
	}
	if err := tx.Bucket(bucketConflicts).Put([]byte(conflict.ID), data); err != nil {
		return fmt.Errorf("failed to save conflict: %w", err)
	}
	return nil
}
