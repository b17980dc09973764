// Package data реализует mutation API локального хранилища. Мутации
// применяются оптимистично: запись сущности и добавление операции в outbox
// происходят в одной транзакции, проблемы слоя синхронизации никогда
// не приводят к ошибке мутации.
package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/localsync/internal/crdt"
	"github.com/iudanet/localsync/internal/models"
	"github.com/iudanet/localsync/internal/store"
)

// ErrKindMismatch indicates a mutation incompatible with the existing
// field value kind (e.g. increment on a set field)
var ErrKindMismatch = errors.New("field kind mismatch")

// Service предоставляет mutation API поверх локального хранилища
type Service struct {
	storage store.Storage
	clock   *crdt.Clock
	logger  *slog.Logger

	// Сериализует read-modify-write локальных мутаций
	writeMu sync.Mutex
}

// NewService creates a new data service
func NewService(storage store.Storage, clock *crdt.Clock, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		clock:   clock,
		logger:  logger,
	}
}

// Set записывает скалярное значение поля (заголовки, флаги).
// Конфликты разрешаются по штампу поля (Last-Write-Wins).
func (s *Service) Set(ctx context.Context, collection, id, field string, value any) error {
	return s.mutate(ctx, collection, id, field, models.OperationSet,
		func(current models.FieldValue, exists bool) (models.FieldValue, error) {
			return models.ScalarValue(value), nil
		})
}

// IncrementCounter увеличивает монотонный G-Counter (счетчики просмотров
// и другие величины, которые только растут)
func (s *Service) IncrementCounter(ctx context.Context, collection, id, field string, delta int64) error {
	return s.mutate(ctx, collection, id, field, models.OperationIncrement,
		func(current models.FieldValue, exists bool) (models.FieldValue, error) {
			counter := crdt.NewGCounter()
			if exists {
				if current.Kind != models.FieldKindCounter {
					return models.FieldValue{}, fmt.Errorf("%w: %s is %s, not counter",
						ErrKindMismatch, field, current.Kind)
				}
				counter = *current.Counter
			}
			return models.CounterValue(counter.Increment(s.clock.NodeID(), delta)), nil
		})
}

// Increment увеличивает PN-Counter (счетчики с поддержкой отмены)
func (s *Service) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	return s.mutatePN(ctx, collection, id, field, models.OperationIncrement, delta)
}

// Decrement уменьшает PN-Counter
func (s *Service) Decrement(ctx context.Context, collection, id, field string, delta int64) error {
	return s.mutatePN(ctx, collection, id, field, models.OperationDecrement, delta)
}

// AddElement добавляет элемент в LWW-Element-Set поля (теги, членство)
func (s *Service) AddElement(ctx context.Context, collection, id, field, element string) error {
	return s.mutateSet(ctx, collection, id, field, models.OperationAdd, element)
}

// RemoveElement удаляет элемент из LWW-Element-Set поля
func (s *Service) RemoveElement(ctx context.Context, collection, id, field, element string) error {
	return s.mutateSet(ctx, collection, id, field, models.OperationRemove, element)
}

// Delete помечает сущность удаленной (tombstone). Физическая строка
// сохраняется, чтобы конкурентные слияния видели момент удаления.
func (s *Service) Delete(ctx context.Context, collection, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	record, err := s.loadOrCreate(ctx, collection, id)
	if err != nil {
		return err
	}

	timestamp := s.clock.Tick()
	record.MarkDeleted(models.Version{Timestamp: timestamp, NodeID: s.clock.NodeID()})

	op := s.newOperation(collection, id, "", models.OperationDelete, models.FieldValue{Kind: models.FieldKindScalar}, timestamp)
	if err := s.storage.ApplyLocalMutation(ctx, record, op); err != nil {
		return fmt.Errorf("failed to apply delete: %w", err)
	}

	s.logger.Debug("Entity deleted", "collection", collection, "entity_id", id)
	return nil
}

// Get возвращает сущность. Tombstone записи считаются отсутствующими.
func (s *Service) Get(ctx context.Context, collection, id string) (*models.EntityRecord, error) {
	record, err := s.storage.GetEntity(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if record.Deleted {
		return nil, store.ErrEntityNotFound
	}
	return record, nil
}

// List возвращает все неудаленные сущности коллекции
func (s *Service) List(ctx context.Context, collection string) ([]*models.EntityRecord, error) {
	return s.storage.ListEntities(ctx, collection)
}

// PendingCount возвращает количество операций, ожидающих доставки
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.storage.PendingCount(ctx)
}

// Conflicts возвращает неразрешенные конфликты стратегии Manual
func (s *Service) Conflicts(ctx context.Context) ([]*models.Conflict, error) {
	return s.storage.ListConflicts(ctx)
}

// ResolveConflict разрешает конфликт выбранным значением: значение
// проходит обычный путь мутации (новая операция, новый штамп),
// после чего маркер конфликта удаляется.
func (s *Service) ResolveConflict(ctx context.Context, conflictID string, chosen models.FieldValue) error {
	conflict, err := s.storage.GetConflict(ctx, conflictID)
	if err != nil {
		return err
	}
	if err := chosen.Validate(); err != nil {
		return err
	}

	err = s.mutate(ctx, conflict.Collection, conflict.EntityID, conflict.Field, models.OperationSet,
		func(current models.FieldValue, exists bool) (models.FieldValue, error) {
			return chosen.Clone(), nil
		})
	if err != nil {
		return err
	}

	if err := s.storage.DeleteConflict(ctx, conflictID); err != nil {
		return fmt.Errorf("failed to delete resolved conflict: %w", err)
	}

	s.logger.Info("Conflict resolved",
		"conflict_id", conflictID,
		"collection", conflict.Collection,
		"entity_id", conflict.EntityID,
		"field", conflict.Field)
	return nil
}

// mutate выполняет read-modify-write одного поля под writeMu и записывает
// результат вместе с операцией outbox в одной транзакции
func (s *Service) mutate(
	ctx context.Context,
	collection, id, field string,
	kind models.OperationKind,
	apply func(current models.FieldValue, exists bool) (models.FieldValue, error),
) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	record, err := s.loadOrCreate(ctx, collection, id)
	if err != nil {
		return err
	}

	current, exists := record.Fields[field]
	next, err := apply(current, exists)
	if err != nil {
		return err
	}

	timestamp := s.clock.Tick()
	record.SetField(field, next, models.Version{Timestamp: timestamp, NodeID: s.clock.NodeID()})

	op := s.newOperation(collection, id, field, kind, next, timestamp)
	if err := s.storage.ApplyLocalMutation(ctx, record, op); err != nil {
		return fmt.Errorf("failed to apply mutation: %w", err)
	}

	return nil
}

// mutatePN применяет инкремент или декремент к PN-Counter полю
func (s *Service) mutatePN(ctx context.Context, collection, id, field string, kind models.OperationKind, delta int64) error {
	return s.mutate(ctx, collection, id, field, kind,
		func(current models.FieldValue, exists bool) (models.FieldValue, error) {
			counter := crdt.NewPNCounter()
			if exists {
				if current.Kind != models.FieldKindPNCounter {
					return models.FieldValue{}, fmt.Errorf("%w: %s is %s, not pn_counter",
						ErrKindMismatch, field, current.Kind)
				}
				counter = *current.PNCounter
			}
			if kind == models.OperationDecrement {
				return models.PNCounterValue(counter.Decrement(s.clock.NodeID(), delta)), nil
			}
			return models.PNCounterValue(counter.Increment(s.clock.NodeID(), delta)), nil
		})
}

// mutateSet применяет добавление или удаление элемента LWW-Element-Set
func (s *Service) mutateSet(ctx context.Context, collection, id, field string, kind models.OperationKind, element string) error {
	return s.mutate(ctx, collection, id, field, kind,
		func(current models.FieldValue, exists bool) (models.FieldValue, error) {
			set := crdt.NewLWWSet()
			if exists {
				if current.Kind != models.FieldKindSet {
					return models.FieldValue{}, fmt.Errorf("%w: %s is %s, not set",
						ErrKindMismatch, field, current.Kind)
				}
				set = *current.Set
			}
			// Timestamp элемента берется из тех же логических часов,
			// что и штамп поля
			t := s.clock.Now() + 1
			if kind == models.OperationRemove {
				return models.SetValue(set.Remove(element, t)), nil
			}
			return models.SetValue(set.Add(element, t)), nil
		})
}

// loadOrCreate загружает запись или создает новую
func (s *Service) loadOrCreate(ctx context.Context, collection, id string) (*models.EntityRecord, error) {
	record, err := s.storage.GetEntity(ctx, collection, id)
	if err != nil {
		if errors.Is(err, store.ErrEntityNotFound) {
			return models.NewEntityRecord(collection, id), nil
		}
		return nil, fmt.Errorf("failed to load entity: %w", err)
	}
	return record, nil
}

// newOperation создает неизменяемую запись мутации для outbox
func (s *Service) newOperation(collection, id, field string, kind models.OperationKind, value models.FieldValue, timestamp int64) *models.Operation {
	return &models.Operation{
		ID:         uuid.New().String(),
		Collection: collection,
		EntityID:   id,
		Field:      field,
		Kind:       kind,
		NodeID:     s.clock.NodeID(),
		Value:      value.Clone(),
		Timestamp:  timestamp,
		CreatedAt:  time.Now(),
	}
}
