package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/localsync/internal/models"
	"github.com/iudanet/localsync/internal/server/storage"
	"github.com/iudanet/localsync/pkg/api"
)

// defaultPullLimit ограничивает размер pull batch по умолчанию
const (
	defaultPullLimit = 500
	maxPullLimit     = 1000
)

// DataStorage определяет интерфейс для работы с данными синхронизации
type DataStorage interface {
	ApplyOperation(ctx context.Context, op *models.Operation) (bool, error)
	ChangesSince(ctx context.Context, collection string, since int64, limit int) ([]*storage.Change, error)
}

// SyncHandler handles synchronization requests
type SyncHandler struct {
	logger  *slog.Logger
	storage DataStorage
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, storage DataStorage) *SyncHandler {
	return &SyncHandler{
		logger:  logger,
		storage: storage,
	}
}

// HandlePush обрабатывает POST /api/v1/sync/push.
// Применяет batch операций и возвращает результат по каждой операции.
// Некорректная операция получает неповторяемый отказ, batch продолжается.
func (h *SyncHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode push request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.logger.Info("Push request", "operations_count", len(req.Operations))

	results := make([]api.OperationAck, 0, len(req.Operations))
	applied := 0

	for _, wire := range req.Operations {
		op, err := operationFromWire(wire)
		if err != nil {
			// Schema validation: операция отклоняется без повтора
			h.logger.Warn("Rejecting malformed operation",
				"operation_id", wire.ID,
				"error", err)
			results = append(results, api.OperationAck{
				OperationID: wire.ID,
				Error:       err.Error(),
			})
			continue
		}

		saved, err := h.storage.ApplyOperation(ctx, op)
		if err != nil {
			h.logger.Error("Failed to apply operation", "error", err, "operation_id", op.ID)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if saved {
			applied++
		} else {
			h.logger.Debug("Duplicate operation ignored", "operation_id", op.ID)
		}

		// Дубликат тоже подтверждается: клиент должен удалить операцию
		results = append(results, api.OperationAck{
			OperationID: op.ID,
			Acked:       true,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(api.PushResponse{Results: results}); err != nil {
		h.logger.Error("Failed to encode push response", "error", err)
	}

	h.logger.Info("Push completed",
		"received", len(req.Operations),
		"applied", applied)
}

// HandlePull обрабатывает GET /api/v1/sync/pull?collection=...&cursor=...&limit=...
// Возвращает записи changelog с seq строго больше курсора.
func (h *SyncHandler) HandlePull(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	collection := r.URL.Query().Get("collection")
	if collection == "" {
		http.Error(w, "Missing collection parameter", http.StatusBadRequest)
		return
	}

	var since int64
	if cursorStr := r.URL.Query().Get("cursor"); cursorStr != "" {
		var err error
		since, err = strconv.ParseInt(cursorStr, 10, 64)
		if err != nil {
			h.logger.Warn("Invalid cursor parameter", "cursor", cursorStr, "error", err)
			http.Error(w, "Invalid cursor parameter", http.StatusBadRequest)
			return
		}
	}

	limit := defaultPullLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit > maxPullLimit {
		limit = maxPullLimit
	}

	changes, err := h.storage.ChangesSince(ctx, collection, since, limit)
	if err != nil {
		h.logger.Error("Failed to read changelog", "error", err, "collection", collection)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Курсор следующего запроса: seq последней выданной записи
	nextCursor := since
	apiChanges := make([]api.RemoteChange, 0, len(changes))
	for _, change := range changes {
		wire, err := changeToWire(change)
		if err != nil {
			h.logger.Error("Failed to encode change", "error", err, "seq", change.Seq)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		apiChanges = append(apiChanges, wire)
		nextCursor = change.Seq
	}

	response := api.PullResponse{
		Changes:    apiChanges,
		NextCursor: strconv.FormatInt(nextCursor, 10),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode pull response", "error", err)
	}

	h.logger.Info("Pull completed",
		"collection", collection,
		"since", since,
		"changes_count", len(apiChanges))
}

// operationFromWire конвертирует wire операцию во внутреннюю модель
// и проверяет ее корректность
func operationFromWire(wire api.Operation) (*models.Operation, error) {
	if wire.ID == "" {
		return nil, fmt.Errorf("missing operation id")
	}
	if wire.Collection == "" || wire.EntityID == "" {
		return nil, fmt.Errorf("missing collection or entity id")
	}
	if wire.NodeID == "" {
		return nil, fmt.Errorf("missing node id")
	}

	kind := models.OperationKind(wire.Kind)
	switch kind {
	case models.OperationSet, models.OperationIncrement, models.OperationDecrement,
		models.OperationAdd, models.OperationRemove, models.OperationDelete:
	default:
		return nil, fmt.Errorf("unknown operation kind %q", wire.Kind)
	}

	if kind != models.OperationDelete && wire.Field == "" {
		return nil, fmt.Errorf("missing field name")
	}

	op := &models.Operation{
		ID:         wire.ID,
		Collection: wire.Collection,
		EntityID:   wire.EntityID,
		Field:      wire.Field,
		Kind:       kind,
		NodeID:     wire.NodeID,
		Timestamp:  wire.Timestamp,
	}

	if len(wire.Value) > 0 {
		if err := json.Unmarshal(wire.Value, &op.Value); err != nil {
			return nil, fmt.Errorf("malformed value payload: %v", err)
		}
	}
	if kind != models.OperationDelete {
		if err := op.Value.Validate(); err != nil {
			return nil, fmt.Errorf("invalid value: %v", err)
		}
	}

	return op, nil
}

// changeToWire конвертирует запись changelog в wire формат
func changeToWire(change *storage.Change) (api.RemoteChange, error) {
	value, err := json.Marshal(change.Value)
	if err != nil {
		return api.RemoteChange{}, err
	}
	return api.RemoteChange{
		Collection: change.Collection,
		EntityID:   change.EntityID,
		Field:      change.Field,
		NodeID:     change.NodeID,
		Value:      value,
		Timestamp:  change.Timestamp,
		Deleted:    change.Deleted,
	}, nil
}
