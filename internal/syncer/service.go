// Package syncer реализует координатор синхронизации: push локальных
// операций, pull удаленных изменений, разрешение конфликтов и продвижение
// курсора. Одновременно выполняется не более одного цикла на хранилище.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/iudanet/localsync/internal/models"
	"github.com/iudanet/localsync/internal/store"
	"github.com/iudanet/localsync/internal/transport"
)

// State представляет состояние координатора.
// Машина состояний: Idle → Pushing → Pulling → Resolving → Idle,
// с переходом Idle → Error → Idle при неустранимой ошибке цикла.
type State string

// Состояния координатора
const (
	StateIdle      State = "idle"
	StatePushing   State = "pushing"
	StatePulling   State = "pulling"
	StateResolving State = "resolving"
	StateError     State = "error"
)

// Event представляет смену состояния координатора, наблюдаемую
// через канал событий
type Event struct {
	Time  time.Time
	Err   error
	State State
}

// Config holds configuration for the sync coordinator
type Config struct {
	Collections    []string      // синхронизируемые коллекции
	PushBatchSize  int           // максимум операций в одном push
	PullBatchSize  int           // максимум изменений в одном pull
	MaxAttempts    int           // лимит попыток доставки операции
	MaxRetries     uint64        // лимит повторов цикла при временных ошибках
	BackoffBase    time.Duration // базовая задержка экспоненциального backoff
	BackoffCap     time.Duration // верхняя граница задержки
	RequestTimeout time.Duration // таймаут одного сетевого запроса
}

// DefaultConfig returns a default coordinator configuration
func DefaultConfig(collections ...string) Config {
	return Config{
		Collections:    collections,
		PushBatchSize:  100,
		PullBatchSize:  500,
		MaxAttempts:    5,
		MaxRetries:     5,
		BackoffBase:    500 * time.Millisecond,
		BackoffCap:     30 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// Result contains sync cycle results
type Result struct {
	Pushed    int // операций отправлено
	Acked     int // операций подтверждено сервером
	Failed    int // операций отклонено
	Pulled    int // изменений получено
	Applied   int // записей слито в локальное хранилище
	Conflicts int // неразрешенных конфликтов сохранено
	Skipped   int // некорректных изменений отброшено
}

// merge аккумулирует результаты нескольких batch
func (r *Result) merge(other *Result) {
	r.Pushed += other.Pushed
	r.Acked += other.Acked
	r.Failed += other.Failed
	r.Pulled += other.Pulled
	r.Applied += other.Applied
	r.Conflicts += other.Conflicts
	r.Skipped += other.Skipped
}

// LamportObserver обновляет локальные логические часы по timestamp
// удаленных изменений
type LamportObserver interface {
	Observe(remote int64)
}

// Service координирует циклы синхронизации поверх локального хранилища,
// транспорта и резолвера конфликтов
type Service struct {
	storage   store.Storage
	transport transport.Transport
	merger    store.Merger
	clock     LamportObserver
	logger    *slog.Logger
	cfg       Config

	mu      sync.Mutex // guards running, rerun, state
	state   State
	running bool
	rerun   bool

	events chan Event
}

// NewService creates a new sync coordinator
func NewService(
	storage store.Storage,
	tr transport.Transport,
	merger store.Merger,
	clock LamportObserver,
	logger *slog.Logger,
	cfg Config,
) *Service {
	return &Service{
		storage:   storage,
		transport: tr,
		merger:    merger,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
		state:     StateIdle,
		events:    make(chan Event, 16),
	}
}

// Events возвращает канал событий смены состояния. События публикуются
// без блокировки: при переполненном канале событие теряется.
func (s *Service) Events() <-chan Event {
	return s.events
}

// State returns the current coordinator state
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Conflicts returns unresolved Manual-strategy conflicts
func (s *Service) Conflicts(ctx context.Context) ([]*models.Conflict, error) {
	return s.storage.ListConflicts(ctx)
}

// FailedOperations returns operations that exceeded the retry ceiling
func (s *Service) FailedOperations(ctx context.Context) ([]*models.Operation, error) {
	return s.storage.FailedOperations(ctx)
}

// Sync выполняет полный цикл синхронизации. Если цикл уже идет,
// запрос коалесцируется: после завершения текущего цикла будет выполнен
// еще один, а вызов вернет nil без результата.
func (s *Service) Sync(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.running {
		// Второй триггер во время активного цикла: "выполнить еще раз
		// после завершения", а не бесконечная очередь
		s.rerun = true
		s.mu.Unlock()
		return nil, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var last *Result
	for {
		result, err := s.runCycle(ctx)
		if err != nil {
			return nil, err
		}
		last = result

		s.mu.Lock()
		again := s.rerun
		s.rerun = false
		s.mu.Unlock()
		if !again {
			break
		}
	}
	return last, nil
}

// runCycle выполняет один цикл с повторами при временных ошибках:
// экспоненциальный backoff с jitter, верхней границей и лимитом попыток
func (s *Service) runCycle(ctx context.Context) (*Result, error) {
	backoff := retry.NewExponential(s.cfg.BackoffBase)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithCappedDuration(s.cfg.BackoffCap, backoff)
	backoff = retry.WithMaxRetries(s.cfg.MaxRetries, backoff)

	var result *Result
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := s.cycle(ctx)
		if err != nil {
			if transport.IsTransient(err) {
				s.logger.Warn("Sync cycle failed with transient error, will retry", "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		s.setState(StateError, err)
		s.setState(StateIdle, nil)
		return nil, fmt.Errorf("sync cycle failed: %w", err)
	}

	return result, nil
}

// cycle выполняет фазы Push → Pull → Resolve → advance cursor
func (s *Service) cycle(ctx context.Context) (*Result, error) {
	result := &Result{}

	if err := s.push(ctx, result); err != nil {
		return nil, err
	}

	for _, collection := range s.cfg.Collections {
		if err := s.pull(ctx, collection, result); err != nil {
			return nil, err
		}
	}

	s.setState(StateIdle, nil)

	s.logger.Info("Sync cycle completed",
		"pushed", result.Pushed,
		"acked", result.Acked,
		"failed", result.Failed,
		"pulled", result.Pulled,
		"applied", result.Applied,
		"conflicts", result.Conflicts,
		"skipped", result.Skipped)

	return result, nil
}

// push дренирует outbox в порядке создания ограниченными batch
func (s *Service) push(ctx context.Context, result *Result) error {
	s.setState(StatePushing, nil)

	for {
		// Отмена проверяется только на границе batch
		if err := ctx.Err(); err != nil {
			return err
		}

		ops, err := s.storage.PendingOperations(ctx, s.cfg.PushBatchSize)
		if err != nil {
			return fmt.Errorf("failed to read outbox: %w", err)
		}
		if len(ops) == 0 {
			return nil
		}

		ids := make([]string, 0, len(ops))
		for _, op := range ops {
			ids = append(ids, op.ID)
		}
		if err := s.storage.MarkInFlight(ctx, ids); err != nil {
			return fmt.Errorf("failed to mark operations in flight: %w", err)
		}

		pushCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		results, err := s.transport.PushOperations(pushCtx, ops)
		cancel()
		if err != nil {
			// Весь batch возвращается в pending, цикл повторится с backoff
			if markErr := s.storage.MarkFailed(ctx, ids, s.cfg.MaxAttempts); markErr != nil {
				return fmt.Errorf("failed to mark operations failed: %w", markErr)
			}
			return err
		}

		result.Pushed += len(ops)

		var acked, failed, rejected []string
		answered := make(map[string]bool, len(results))
		for _, res := range results {
			answered[res.OperationID] = true
			switch {
			case res.Acked:
				acked = append(acked, res.OperationID)
			case res.Retryable:
				failed = append(failed, res.OperationID)
			default:
				rejected = append(rejected, res.OperationID)
			}
			if res.Error != "" {
				s.logger.Warn("Operation rejected by server",
					"operation_id", res.OperationID,
					"retryable", res.Retryable,
					"error", res.Error)
			}
		}
		// Операция без ответа сервера считается неудавшейся, иначе она
		// зависла бы в inFlight до перезапуска
		for _, id := range ids {
			if !answered[id] {
				failed = append(failed, id)
			}
		}

		if len(acked) > 0 {
			if err := s.storage.MarkAcknowledged(ctx, acked); err != nil {
				return fmt.Errorf("failed to acknowledge operations: %w", err)
			}
			result.Acked += len(acked)
		}
		if len(failed) > 0 {
			if err := s.storage.MarkFailed(ctx, failed, s.cfg.MaxAttempts); err != nil {
				return fmt.Errorf("failed to mark operations failed: %w", err)
			}
			result.Failed += len(failed)
		}
		if len(rejected) > 0 {
			// Неповторяемый отказ: сразу permanentlyFailed (лимит 1 попытка)
			if err := s.storage.MarkFailed(ctx, rejected, 1); err != nil {
				return fmt.Errorf("failed to mark operations rejected: %w", err)
			}
			result.Failed += len(rejected)
		}

		if len(ops) < s.cfg.PushBatchSize {
			return nil
		}
	}
}

// pull запрашивает изменения коллекции от текущего курсора и применяет их.
// Курсор продвигается атомарно вместе с применением batch, поэтому крах
// между Resolve и advance безопасен: повторный pull того же batch
// идемпотентен.
func (s *Service) pull(ctx context.Context, collection string, result *Result) error {
	cursor, err := s.storage.GetCursor(ctx, collection)
	if err != nil && !errors.Is(err, store.ErrCursorNotFound) {
		return fmt.Errorf("failed to read cursor: %w", err)
	}

	for {
		// Отмена проверяется только на границе batch: примененный batch
		// никогда не откатывается
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setState(StatePulling, nil)

		pullCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		changes, next, err := s.transport.PullChanges(pullCtx, collection, cursor, s.cfg.PullBatchSize)
		cancel()
		if err != nil {
			return err
		}

		if len(changes) == 0 {
			return nil
		}

		s.setState(StateResolving, nil)

		pullResult, err := s.storage.ApplyPullBatch(ctx, collection, changes, next, s.merger)
		if err != nil {
			return fmt.Errorf("failed to apply pull batch: %w", err)
		}

		// Обновляем логические часы по увиденным timestamp
		for _, change := range changes {
			s.clock.Observe(change.Timestamp)
		}

		result.Pulled += len(changes)
		result.Applied += pullResult.Applied
		result.Conflicts += pullResult.Conflicts
		result.Skipped += pullResult.Skipped

		if pullResult.Skipped > 0 {
			s.logger.Warn("Dropped malformed remote changes",
				"collection", collection,
				"skipped", pullResult.Skipped)
		}

		cursor = next

		if len(changes) < s.cfg.PullBatchSize {
			return nil
		}
	}
}

// setState меняет состояние и публикует событие без блокировки
func (s *Service) setState(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	event := Event{State: state, Err: err, Time: time.Now()}
	select {
	case s.events <- event:
	default:
		// Канал переполнен - событие теряется, синхронизация не блокируется
	}
}
