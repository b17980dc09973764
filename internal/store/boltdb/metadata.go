package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/iudanet/localsync/internal/store"
)

const (
	keyNodeID     = "node_id"
	keyClockState = "clock_state"
)

// NodeID возвращает стабильный идентификатор устройства. При первом вызове
// идентификатор генерируется и сохраняется: версионные штампы устройства
// обязаны нести один и тот же node id между перезапусками.
func (s *Storage) NodeID(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", store.ErrStorageClosed
	}

	var nodeID string

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)

		if data := bucket.Get([]byte(keyNodeID)); data != nil {
			nodeID = string(data)
			return nil
		}

		nodeID = uuid.New().String()
		return bucket.Put([]byte(keyNodeID), []byte(nodeID))
	})
	if err != nil {
		return "", fmt.Errorf("failed to load node id: %w", err)
	}

	return nodeID, nil
}

// SaveClockState сохраняет текущее значение логических часов.
// Вызывается после каждой мутации и каждого цикла синхронизации.
func (s *Storage) SaveClockState(ctx context.Context, timestamp int64) error {
	if s.db == nil {
		return store.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		data := make([]byte, 8)
		binary.BigEndian.PutUint64(data, uint64(timestamp))
		return tx.Bucket(bucketMetadata).Put([]byte(keyClockState), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save clock state: %w", err)
	}

	return nil
}

// ClockState возвращает последнее сохраненное значение часов.
// Возвращает 0, если часы еще не сохранялись (первый запуск).
func (s *Storage) ClockState(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, store.ErrStorageClosed
	}

	var timestamp int64

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMetadata).Get([]byte(keyClockState))
		if data == nil {
			return nil
		}
		timestamp = int64(binary.BigEndian.Uint64(data))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load clock state: %w", err)
	}

	return timestamp, nil
}
