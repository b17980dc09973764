package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/localsync/internal/models"
	"github.com/iudanet/localsync/internal/store"
)

// seqKey кодирует порядковый номер операции в сортируемый ключ
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// PendingOperations returns up to limit pending operations in creation order.
// Ключи outbox отсортированы по seq, поэтому обход курсором дает FIFO.
func (s *Storage) PendingOperations(ctx context.Context, limit int) ([]*models.Operation, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}

	var ops []*models.Operation

	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(bucketOutbox).Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var op models.Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			if op.Status != models.OperationPending {
				continue
			}
			ops = append(ops, &op)
			if limit > 0 && len(ops) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read pending operations: %w", err)
	}

	return ops, nil
}

// MarkInFlight transitions pending operations to inFlight
func (s *Storage) MarkInFlight(ctx context.Context, ids []string) error {
	return s.updateOperations(ids, func(op *models.Operation) bool {
		if op.Status != models.OperationPending {
			return false
		}
		op.Status = models.OperationInFlight
		return true
	})
}

// MarkAcknowledged removes acknowledged operations from the log
func (s *Storage) MarkAcknowledged(ctx context.Context, ids []string) error {
	if s.db == nil {
		return store.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		outbox := tx.Bucket(bucketOutbox)
		index := tx.Bucket(bucketOutboxIDs)

		for _, id := range ids {
			seq := index.Get([]byte(id))
			if seq == nil {
				// Уже удалена (повторное подтверждение) - пропускаем
				continue
			}
			if err := outbox.Delete(seq); err != nil {
				return fmt.Errorf("failed to delete operation: %w", err)
			}
			if err := index.Delete([]byte(id)); err != nil {
				return fmt.Errorf("failed to delete operation index: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("acknowledge transaction failed: %w", err)
	}

	return nil
}

// MarkFailed increments attempts and returns operations to pending,
// or moves them to permanentlyFailed once attempts reach maxAttempts.
// Вернувшаяся операция может быть доставлена после более поздних операций
// того же поля. Это безопасно: операции несут итоговое состояние поля,
// и слияние на сервере коммутативно.
func (s *Storage) MarkFailed(ctx context.Context, ids []string, maxAttempts int) error {
	return s.updateOperations(ids, func(op *models.Operation) bool {
		if op.Status == models.OperationPermanentlyFailed {
			return false
		}
		op.Attempts++
		if op.Attempts >= maxAttempts {
			op.Status = models.OperationPermanentlyFailed
		} else {
			// failed → pending: операция вернется в следующий push batch
			op.Status = models.OperationPending
		}
		return true
	})
}

// recoverInFlight возвращает inFlight операции в pending. Вызывается при
// открытии БД: после краха между MarkInFlight и подтверждением операция
// иначе застряла бы навсегда. Повторная доставка безопасна, сервер
// дедуплицирует операции по идентификатору.
func (s *Storage) recoverInFlight() error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		outbox := tx.Bucket(bucketOutbox)
		cursor := outbox.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var op models.Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			if op.Status != models.OperationInFlight {
				continue
			}
			op.Status = models.OperationPending
			data, err := json.Marshal(&op)
			if err != nil {
				return fmt.Errorf("failed to marshal operation: %w", err)
			}
			if err := outbox.Put(k, data); err != nil {
				return fmt.Errorf("failed to save operation: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("recover transaction failed: %w", err)
	}

	return nil
}

// FailedOperations returns permanently failed operations
func (s *Storage) FailedOperations(ctx context.Context) ([]*models.Operation, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}

	var ops []*models.Operation

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOutbox).ForEach(func(k, v []byte) error {
			var op models.Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			if op.Status == models.OperationPermanentlyFailed {
				ops = append(ops, &op)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read failed operations: %w", err)
	}

	return ops, nil
}

// PendingCount returns the number of operations awaiting delivery
func (s *Storage) PendingCount(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, store.ErrStorageClosed
	}

	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOutbox).ForEach(func(k, v []byte) error {
			var op models.Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			if op.Status == models.OperationPending || op.Status == models.OperationInFlight {
				count++
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}

	return count, nil
}

// appendOperation добавляет операцию в outbox внутри открытой транзакции,
// присваивая ей следующий порядковый номер
func appendOperation(tx *bbolt.Tx, op *models.Operation) error {
	outbox := tx.Bucket(bucketOutbox)
	index := tx.Bucket(bucketOutboxIDs)

	seq, err := outbox.NextSequence()
	if err != nil {
		return fmt.Errorf("failed to get next sequence: %w", err)
	}
	op.Seq = seq
	op.Status = models.OperationPending

	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to marshal operation: %w", err)
	}

	if err := outbox.Put(seqKey(seq), data); err != nil {
		return fmt.Errorf("failed to save operation: %w", err)
	}
	if err := index.Put([]byte(op.ID), seqKey(seq)); err != nil {
		return fmt.Errorf("failed to index operation: %w", err)
	}

	return nil
}

// updateOperations применяет изменение к операциям по их идентификаторам
// в одной транзакции. mutate возвращает false, если операция не изменилась.
func (s *Storage) updateOperations(ids []string, mutate func(*models.Operation) bool) error {
	if s.db == nil {
		return store.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		outbox := tx.Bucket(bucketOutbox)
		index := tx.Bucket(bucketOutboxIDs)

		for _, id := range ids {
			seq := index.Get([]byte(id))
			if seq == nil {
				return fmt.Errorf("%w: %s", store.ErrOperationNotFound, id)
			}

			var op models.Operation
			if err := json.Unmarshal(outbox.Get(seq), &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}

			if !mutate(&op) {
				continue
			}

			data, err := json.Marshal(&op)
			if err != nil {
				return fmt.Errorf("failed to marshal operation: %w", err)
			}
			if err := outbox.Put(seq, data); err != nil {
				return fmt.Errorf("failed to save operation: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox transaction failed: %w", err)
	}

	return nil
}
