// Package api содержит wire типы протокола синхронизации.
// Значения полей передаются как сырой JSON: конкретная структура
// (скаляр или CRDT состояние) определяется клиентом и сервером.
package api

import "encoding/json"

// Operation представляет одну операцию outbox для push
type Operation struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	EntityID   string          `json:"entity_id"`
	Field      string          `json:"field,omitempty"`
	Kind       string          `json:"kind"`
	NodeID     string          `json:"node_id"`
	Value      json.RawMessage `json:"value,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}

// PushRequest представляет запрос на доставку локальных операций
type PushRequest struct {
	Operations []Operation `json:"operations"`
}

// OperationAck представляет результат применения одной операции.
// Retryable отличает временный отказ (операция вернется в pending)
// от окончательного.
type OperationAck struct {
	OperationID string `json:"operation_id"`
	Error       string `json:"error,omitempty"`
	Acked       bool   `json:"acked"`
	Retryable   bool   `json:"retryable,omitempty"`
}

// PushResponse представляет ответ сервера на push
type PushResponse struct {
	Results []OperationAck `json:"results"`
}

// RemoteChange представляет одно изменение в ответе pull:
// состояние поля на сервере с его версионным штампом
type RemoteChange struct {
	Collection string          `json:"collection"`
	EntityID   string          `json:"entity_id"`
	Field      string          `json:"field,omitempty"`
	NodeID     string          `json:"node_id"`
	Value      json.RawMessage `json:"value,omitempty"`
	Timestamp  int64           `json:"timestamp"`
	Deleted    bool            `json:"deleted,omitempty"`
}

// PullResponse представляет ответ сервера на pull
type PullResponse struct {
	NextCursor string         `json:"next_cursor"`
	Changes    []RemoteChange `json:"changes"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
