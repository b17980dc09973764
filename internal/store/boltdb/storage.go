package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	// BoltDB bucket names
	bucketEntities  = []byte("entities")  // nested: collection → entity id → record
	bucketOutbox    = []byte("outbox")    // seq (8 byte BE) → operation
	bucketOutboxIDs = []byte("outboxIds") // operation id → seq
	bucketCursors   = []byte("cursors")   // collection → cursor
	bucketConflicts = []byte("conflicts") // conflict id → conflict
	bucketMetadata  = []byte("metadata")  // node id, состояние часов
)

// Storage represents BoltDB local store implementation
type Storage struct {
	db *bbolt.DB
}

// New creates a new BoltDB local store instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}

	// Инициализируем buckets
	if err := storage.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	// Операции, зависшие в inFlight после краха, возвращаются в очередь
	if err := storage.recoverInFlight(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to recover outbox: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// initBuckets создает необходимые buckets, если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{
			bucketEntities,
			bucketOutbox,
			bucketOutboxIDs,
			bucketCursors,
			bucketConflicts,
			bucketMetadata,
		}
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}
