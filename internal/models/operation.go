package models

import "time"

// OperationKind задает вид локальной мутации.
type OperationKind string

// Виды операций
const (
	OperationSet       OperationKind = "set"       // запись скаляра или регистра
	OperationIncrement OperationKind = "increment" // инкремент счетчика
	OperationDecrement OperationKind = "decrement" // декремент счетчика
	OperationAdd       OperationKind = "add"       // добавление элемента множества
	OperationRemove    OperationKind = "remove"    // удаление элемента множества
	OperationDelete    OperationKind = "delete"    // tombstone всей сущности
)

// OperationStatus задает состояние операции в outbox.
// Переходы: pending → inFlight → acknowledged (строка удаляется)
// или pending → inFlight → failed → pending (повтор)
// или failed → permanentlyFailed после превышения лимита попыток.
type OperationStatus string

// Состояния операции
const (
	OperationPending           OperationStatus = "pending"
	OperationInFlight          OperationStatus = "in_flight"
	OperationFailed            OperationStatus = "failed"
	OperationPermanentlyFailed OperationStatus = "permanently_failed"
)

// Operation представляет неизменяемую запись одной локальной мутации.
// Value содержит состояние поля ПОСЛЕ мутации: доставка состояния делает
// повторное применение на сервере идемпотентным независимо от дедупликации
// по ID. Создается mutation API, добавляется в outbox и удаляется только
// после подтверждения сервером либо окончательного отказа.
type Operation struct {
	CreatedAt time.Time `json:"created_at"` // время создания (информационное)

	ID         string          `json:"id"`         // уникальный идентификатор (UUID), ключ дедупликации
	Collection string          `json:"collection"` // коллекция сущности
	EntityID   string          `json:"entity_id"`  // идентификатор сущности
	Field      string          `json:"field"`      // имя поля (пустое для delete)
	NodeID     string          `json:"node_id"`    // устройство, создавшее операцию
	Status     OperationStatus `json:"status"`     // текущее состояние в outbox
	Kind       OperationKind   `json:"kind"`       // вид мутации
	Value      FieldValue      `json:"value"`      // состояние поля после мутации
	Timestamp  int64           `json:"timestamp"`  // Lamport timestamp мутации
	Attempts   int             `json:"attempts"`   // число неудачных попыток доставки
	Seq        uint64          `json:"seq"`        // локальный порядок создания (FIFO)
}

// Stamp возвращает версионный штамп операции.
func (o *Operation) Stamp() Version {
	return Version{Timestamp: o.Timestamp, NodeID: o.NodeID}
}

// Clone создает копию операции.
func (o *Operation) Clone() *Operation {
	clone := *o
	clone.Value = o.Value.Clone()
	return &clone
}
