package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/localsync/internal/store"
)

// GetCursor returns the stored cursor for a collection
func (s *Storage) GetCursor(ctx context.Context, collection string) (string, error) {
	if s.db == nil {
		return "", store.ErrStorageClosed
	}

	var cursor string

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCursors).Get([]byte(collection))
		if data == nil {
			return store.ErrCursorNotFound
		}
		cursor = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}

	return cursor, nil
}

// SaveCursor persists the cursor for a collection
func (s *Storage) SaveCursor(ctx context.Context, collection, cursor string) error {
	if s.db == nil {
		return store.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCursors).Put([]byte(collection), []byte(cursor))
	})
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}

	return nil
}
