// Package resolver реализует диспетчер стратегий разрешения конфликтов:
// для каждого поля или коллекции настраивается стратегия слияния локальной
// и удаленной версии значения.
package resolver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/localsync/internal/models"
)

// Strategy задает способ разрешения конфликта для поля.
type Strategy string

// Поддерживаемые стратегии
const (
	// ServerWins всегда принимает удаленную версию
	ServerWins Strategy = "server_wins"
	// ClientWins всегда сохраняет локальную версию
	ClientWins Strategy = "client_wins"
	// LastWriteWins выбирает версию с большим версионным штампом.
	// Работает и для полей без CRDT обертки.
	LastWriteWins Strategy = "last_write_wins"
	// CrdtMerge делегирует слияние CRDT примитиву поля
	CrdtMerge Strategy = "crdt_merge"
	// Custom применяет пользовательскую функцию слияния
	Custom Strategy = "custom"
	// Manual сохраняет обе версии как неразрешенный конфликт.
	// Единственная стратегия с нетерминальным результатом.
	Manual Strategy = "manual"
)

// MergeFunc задает пользовательское слияние для стратегии Custom.
// Функция обязана быть детерминированной и коммутативной.
type MergeFunc func(local, remote models.FieldValue) (models.FieldValue, error)

// Rules задает выбор стратегии: сначала точное совпадение
// "collection/field", затем коллекция, затем Default.
type Rules struct {
	Fields      map[string]Strategy  // map["collection/field"]Strategy
	Collections map[string]Strategy  // map[collection]Strategy
	Merges      map[string]MergeFunc // map["collection/field"]MergeFunc для Custom
	Default     Strategy
}

// DefaultRules возвращает правила по умолчанию: LastWriteWins для всего.
func DefaultRules() Rules {
	return Rules{
		Fields:      make(map[string]Strategy),
		Collections: make(map[string]Strategy),
		Merges:      make(map[string]MergeFunc),
		Default:     LastWriteWins,
	}
}

// StrategyFor возвращает стратегию для поля коллекции.
func (r Rules) StrategyFor(collection, field string) Strategy {
	if s, ok := r.Fields[collection+"/"+field]; ok {
		return s
	}
	if s, ok := r.Collections[collection]; ok {
		return s
	}
	if r.Default != "" {
		return r.Default
	}
	return LastWriteWins
}

// mergeFor возвращает пользовательскую функцию слияния для поля.
func (r Rules) mergeFor(collection, field string) MergeFunc {
	return r.Merges[collection+"/"+field]
}

// Resolver применяет настроенные стратегии к удаленным изменениям.
// Реализует store.Merger и используется внутри транзакции pull batch.
type Resolver struct {
	rules  Rules
	logger *slog.Logger
}

// New creates a new conflict resolver
func New(rules Rules, logger *slog.Logger) *Resolver {
	return &Resolver{
		rules:  rules,
		logger: logger,
	}
}

// MergeRemote сливает удаленное изменение в локальную запись.
// local == nil означает, что записи еще нет. Возвращает запись для
// сохранения и, для стратегии Manual, маркер конфликта.
func (rv *Resolver) MergeRemote(local *models.EntityRecord, change *models.RemoteChange) (*models.EntityRecord, *models.Conflict, error) {
	if err := change.Validate(); err != nil {
		rv.logger.Warn("Dropping malformed remote change",
			"collection", change.Collection,
			"entity_id", change.EntityID,
			"error", err)
		return nil, nil, err
	}

	record := local
	if record == nil {
		record = models.NewEntityRecord(change.Collection, change.EntityID)
	}

	// Tombstone всей сущности: LWW по штампу удаления
	if change.Deleted {
		record.MarkDeleted(change.Stamp())
		return record, nil, nil
	}

	localValue, exists := record.Fields[change.Field]
	if !exists {
		// Локальной версии нет - конфликта нет
		record.SetField(change.Field, change.Value, change.Stamp())
		return record, nil, nil
	}

	localStamp := record.FieldStamp(change.Field)
	remoteStamp := change.Stamp()
	strategy := rv.rules.StrategyFor(change.Collection, change.Field)

	switch strategy {
	case ServerWins:
		record.SetField(change.Field, change.Value, remoteStamp)

	case ClientWins:
		// Локальная версия сохраняется, запись не меняется

	case LastWriteWins:
		merged, stamp := resolveLWW(localValue, localStamp, change.Value, remoteStamp)
		record.SetField(change.Field, merged, stamp)

	case CrdtMerge:
		merged, err := models.MergeCRDT(localValue, change.Value)
		if err != nil {
			rv.logger.Warn("CRDT merge rejected remote change",
				"collection", change.Collection,
				"entity_id", change.EntityID,
				"field", change.Field,
				"error", err)
			return nil, nil, err
		}
		record.SetField(change.Field, merged, maxStamp(localStamp, remoteStamp))

	case Custom:
		mergeFn := rv.rules.mergeFor(change.Collection, change.Field)
		if mergeFn == nil {
			return nil, nil, fmt.Errorf("custom merge function not configured for %s/%s",
				change.Collection, change.Field)
		}
		merged, err := mergeFn(localValue, change.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("custom merge failed: %w", err)
		}
		record.SetField(change.Field, merged, maxStamp(localStamp, remoteStamp))

	case Manual:
		// Обе версии остаются доступными до явного разрешения.
		// Идентификатор детерминирован: повторное применение того же batch
		// после краха перезаписывает существующий конфликт, а не плодит копии.
		conflict := &models.Conflict{
			ID:          conflictID(change, remoteStamp),
			Collection:  change.Collection,
			EntityID:    change.EntityID,
			Field:       change.Field,
			Local:       localValue.Clone(),
			Remote:      change.Value.Clone(),
			LocalStamp:  localStamp,
			RemoteStamp: remoteStamp,
			CreatedAt:   time.Now(),
		}
		return record, conflict, nil

	default:
		return nil, nil, fmt.Errorf("unknown conflict strategy %q", strategy)
	}

	return record, nil, nil
}

// conflictID строит стабильный идентификатор конфликта по месту расхождения
// и штампу удаленной версии.
func conflictID(change *models.RemoteChange, remoteStamp models.Version) string {
	return fmt.Sprintf("%s/%s/%s@%d:%s",
		change.Collection, change.EntityID, change.Field,
		remoteStamp.Timestamp, remoteStamp.NodeID)
}

// resolveLWW выбирает версию по правилу Last-Write-Wins: побеждает больший
// версионный штамп. Результат не зависит от порядка аргументов.
func resolveLWW(local models.FieldValue, localStamp models.Version, remote models.FieldValue, remoteStamp models.Version) (models.FieldValue, models.Version) {
	if remoteStamp.Newer(localStamp) {
		return remote, remoteStamp
	}
	return local, localStamp
}

// maxStamp возвращает больший из двух версионных штампов.
func maxStamp(a, b models.Version) models.Version {
	if b.Newer(a) {
		return b
	}
	return a
}
