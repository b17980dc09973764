package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/localsync/internal/models"
	"github.com/iudanet/localsync/internal/server/storage"
)

// tombstoneField — ключ строки field_state, хранящей tombstone всей сущности
const tombstoneField = ""

// ApplyOperation сливает операцию в состояние поля и записывает результат
// в changelog одной транзакцией. Дедупликация по operation id: повторная
// доставка после retry клиента возвращает false без побочных эффектов.
func (s *Storage) ApplyOperation(ctx context.Context, op *models.Operation) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Проверяем, не применялась ли операция раньше
	res, err := tx.ExecContext(ctx,
		`INSERT INTO applied_operations (id, applied_at) VALUES (?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		op.ID, time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record operation id: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if inserted == 0 {
		// Дубликат: состояние уже отражает эту операцию
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return false, nil
	}

	field := op.Field
	deleted := op.Kind == models.OperationDelete
	if deleted {
		field = tombstoneField
	}

	value, stamp, del, err := s.mergeField(ctx, tx, op, field, deleted)
	if err != nil {
		return false, err
	}

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal field value: %w", err)
	}

	// Upsert состояния поля
	_, err = tx.ExecContext(ctx,
		`INSERT INTO field_state (collection, entity_id, field, node_id, value, timestamp, deleted, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(collection, entity_id, field) DO UPDATE SET
		   node_id = excluded.node_id,
		   value = excluded.value,
		   timestamp = excluded.timestamp,
		   deleted = excluded.deleted,
		   updated_at = excluded.updated_at`,
		op.Collection, op.EntityID, field,
		stamp.NodeID, string(valueJSON), stamp.Timestamp,
		boolToInt(del), time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save field state: %w", err)
	}

	// Changelog несет состояние ПОСЛЕ слияния: применение на клиенте
	// идемпотентно независимо от того, сколько раз он прочитает запись
	_, err = tx.ExecContext(ctx,
		`INSERT INTO changelog (collection, entity_id, field, node_id, value, timestamp, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		op.Collection, op.EntityID, field,
		stamp.NodeID, string(valueJSON), stamp.Timestamp,
		boolToInt(del),
	)
	if err != nil {
		return false, fmt.Errorf("failed to append changelog: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// mergeField вычисляет новое состояние поля: CRDT слияние для совпадающих
// CRDT типов, иначе Last-Write-Wins по версионному штампу
func (s *Storage) mergeField(
	ctx context.Context,
	tx *sql.Tx,
	op *models.Operation,
	field string,
	deleted bool,
) (models.FieldValue, models.Version, bool, error) {
	incoming := op.Value
	stamp := op.Stamp()

	var valueJSON string
	var existingTS int64
	var existingNode string
	var existingDeleted int

	err := tx.QueryRowContext(ctx,
		`SELECT value, timestamp, node_id, deleted FROM field_state
		 WHERE collection = ? AND entity_id = ? AND field = ?`,
		op.Collection, op.EntityID, field,
	).Scan(&valueJSON, &existingTS, &existingNode, &existingDeleted)

	if errors.Is(err, sql.ErrNoRows) {
		return incoming, stamp, deleted, nil
	}
	if err != nil {
		return models.FieldValue{}, models.Version{}, false, fmt.Errorf("failed to load field state: %w", err)
	}

	var existing models.FieldValue
	if err := json.Unmarshal([]byte(valueJSON), &existing); err != nil {
		return models.FieldValue{}, models.Version{}, false, fmt.Errorf("failed to unmarshal field state: %w", err)
	}
	existingStamp := models.Version{Timestamp: existingTS, NodeID: existingNode}

	// CRDT слияние коммутативно: порядок доставки не влияет на результат
	if !deleted && existing.Kind == incoming.Kind {
		if merged, mergeErr := models.MergeCRDT(existing, incoming); mergeErr == nil {
			return merged, maxVersion(existingStamp, stamp), false, nil
		}
	}

	// Скаляры и несовпадающие типы: побеждает больший штамп
	if existingStamp.Newer(stamp) {
		return existing, existingStamp, intToBool(existingDeleted), nil
	}
	return incoming, stamp, deleted, nil
}

// ChangesSince возвращает до limit записей changelog коллекции с seq строго
// больше since, в порядке возрастания seq
func (s *Storage) ChangesSince(ctx context.Context, collection string, since int64, limit int) ([]*storage.Change, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, collection, entity_id, field, node_id, value, timestamp, deleted
		 FROM changelog
		 WHERE collection = ? AND seq > ?
		 ORDER BY seq ASC
		 LIMIT ?`,
		collection, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query changelog: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var changes []*storage.Change

	for rows.Next() {
		change := &storage.Change{}
		var valueJSON string
		var deleted int

		err := rows.Scan(
			&change.Seq,
			&change.Collection,
			&change.EntityID,
			&change.Field,
			&change.NodeID,
			&valueJSON,
			&change.Timestamp,
			&deleted,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan changelog row: %w", err)
		}

		if err := json.Unmarshal([]byte(valueJSON), &change.Value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal change value: %w", err)
		}
		change.Deleted = intToBool(deleted)

		changes = append(changes, change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return changes, nil
}

// maxVersion возвращает больший из двух версионных штампов
func maxVersion(a, b models.Version) models.Version {
	if b.Newer(a) {
		return b
	}
	return a
}

// Helper functions for bool/int conversion
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}
