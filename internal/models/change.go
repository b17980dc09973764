package models

import (
	"fmt"
	"time"
)

// RemoteChange представляет одно изменение, полученное при pull:
// состояние поля на сервере вместе с его версионным штампом.
// Deleted передает tombstone всей сущности.
type RemoteChange struct {
	Collection string     `json:"collection"`
	EntityID   string     `json:"entity_id"`
	Field      string     `json:"field"`
	NodeID     string     `json:"node_id"`
	Value      FieldValue `json:"value"`
	Timestamp  int64      `json:"timestamp"`
	Deleted    bool       `json:"deleted"`
}

// Stamp возвращает версионный штамп изменения.
func (c *RemoteChange) Stamp() Version {
	return Version{Timestamp: c.Timestamp, NodeID: c.NodeID}
}

// Validate проверяет обязательные поля и корректность значения.
// Некорректное изменение отбрасывается (SchemaValidationError semantics).
func (c *RemoteChange) Validate() error {
	if c.Collection == "" || c.EntityID == "" {
		return fmt.Errorf("%w: missing collection or entity id", ErrInvalidChange)
	}
	if !c.Deleted && c.Field == "" {
		return fmt.Errorf("%w: missing field name", ErrInvalidChange)
	}
	if c.Deleted {
		return nil
	}
	return c.Value.Validate()
}

// Conflict представляет неразрешенный конфликт стратегии Manual:
// обе версии значения сохраняются и остаются доступными, пока вызывающая
// сторона не разрешит конфликт явно.
type Conflict struct {
	CreatedAt time.Time `json:"created_at"`

	ID          string     `json:"id"`
	Collection  string     `json:"collection"`
	EntityID    string     `json:"entity_id"`
	Field       string     `json:"field"`
	Local       FieldValue `json:"local"`
	Remote      FieldValue `json:"remote"`
	LocalStamp  Version    `json:"local_stamp"`
	RemoteStamp Version    `json:"remote_stamp"`
}
