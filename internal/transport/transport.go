// Package transport определяет абстрактный интерфейс удаленной точки
// синхронизации и его HTTP реализацию. Wire кодирование за пределами
// JSON DTO не специфицируется.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/localsync/internal/models"
)

// PushResult представляет результат доставки одной операции
type PushResult struct {
	OperationID string // идентификатор операции
	Error       string // описание отказа (пустое при подтверждении)
	Acked       bool   // операция применена сервером
	Retryable   bool   // отказ временный, операцию можно повторить
}

// Transport defines the interface to a remote synchronization endpoint.
// Реализация обязана применять операции идемпотентно по operation id:
// повторная доставка после retry не приводит к двойному применению.
type Transport interface {
	// PushOperations delivers a batch of outbox operations in order
	// and returns a per-operation result
	PushOperations(ctx context.Context, ops []*models.Operation) ([]PushResult, error)

	// PullChanges requests changes since the cursor. An empty cursor
	// means "from the beginning". Returns the batch and the next cursor.
	PullChanges(ctx context.Context, collection, cursor string, limit int) ([]*models.RemoteChange, string, error)
}

// TransientError помечает временную ошибку транспорта: сетевые сбои,
// таймауты, 5xx и 429. Такие ошибки повторяются с экспоненциальным backoff.
type TransientError struct {
	Err error
}

// Error implements the error interface
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient transport error: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient оборачивает ошибку как временную.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether the error is retryable
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
