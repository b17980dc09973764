package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/localsync/internal/models"
	"github.com/iudanet/localsync/internal/store"
)

// SaveEntity stores or replaces an entity record
func (s *Storage) SaveEntity(ctx context.Context, record *models.EntityRecord) error {
	if s.db == nil {
		return store.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return putEntity(tx, record)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// GetEntity retrieves an entity record by collection and id
func (s *Storage) GetEntity(ctx context.Context, collection, id string) (*models.EntityRecord, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}

	var record *models.EntityRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		record, err = getEntity(tx, collection, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// ListEntities returns all non-deleted records of a collection
func (s *Storage) ListEntities(ctx context.Context, collection string) ([]*models.EntityRecord, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}

	var records []*models.EntityRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEntities).Bucket([]byte(collection))
		if bucket == nil {
			// Коллекции еще нет - возвращаем пустой список
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var record models.EntityRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal entity: %w", err)
			}

			// Tombstone записи в листинг не попадают
			if !record.Deleted {
				records = append(records, &record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	return records, nil
}

// putEntity сохраняет запись внутри открытой транзакции
func putEntity(tx *bbolt.Tx, record *models.EntityRecord) error {
	bucket, err := tx.Bucket(bucketEntities).CreateBucketIfNotExists([]byte(record.Collection))
	if err != nil {
		return fmt.Errorf("failed to create collection bucket: %w", err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	if err := bucket.Put([]byte(record.ID), data); err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}

	return nil
}

// getEntity читает запись внутри открытой транзакции
func getEntity(tx *bbolt.Tx, collection, id string) (*models.EntityRecord, error) {
	bucket := tx.Bucket(bucketEntities).Bucket([]byte(collection))
	if bucket == nil {
		return nil, store.ErrEntityNotFound
	}

	data := bucket.Get([]byte(id))
	if data == nil {
		return nil, store.ErrEntityNotFound
	}

	record := &models.EntityRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	return record, nil
}
