// Package storage определяет контракт серверного хранилища точки
// синхронизации: идемпотентное применение операций и выдача изменений
// по монотонному курсору changelog.
package storage

import (
	"context"

	"github.com/iudanet/localsync/internal/models"
)

// Change представляет одну запись changelog: состояние поля после слияния
// операции плюс порядковый номер, служащий курсором pull.
type Change struct {
	Seq        int64             `json:"seq"`
	Collection string            `json:"collection"`
	EntityID   string            `json:"entity_id"`
	Field      string            `json:"field"`
	NodeID     string            `json:"node_id"`
	Value      models.FieldValue `json:"value"`
	Timestamp  int64             `json:"timestamp"`
	Deleted    bool              `json:"deleted"`
}

// DataStorage определяет интерфейс серверного хранилища
type DataStorage interface {
	// ApplyOperation сливает операцию в состояние поля и добавляет запись
	// в changelog. Идемпотентна по operation id: повторная доставка
	// возвращает false без побочных эффектов.
	ApplyOperation(ctx context.Context, op *models.Operation) (bool, error)

	// ChangesSince возвращает до limit записей changelog коллекции
	// с seq строго больше since, в порядке возрастания seq
	ChangesSince(ctx context.Context, collection string, since int64, limit int) ([]*Change, error)
}
