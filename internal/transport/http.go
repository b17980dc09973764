package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/iudanet/localsync/internal/models"
	"github.com/iudanet/localsync/pkg/api"
)

// HTTPTransport представляет HTTP клиент точки синхронизации
type HTTPTransport struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTP создает новый HTTP транспорт
func NewHTTP(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PushOperations delivers a batch of outbox operations
func (t *HTTPTransport) PushOperations(ctx context.Context, ops []*models.Operation) ([]PushResult, error) {
	req := api.PushRequest{
		Operations: make([]api.Operation, 0, len(ops)),
	}
	for _, op := range ops {
		wireOp, err := operationToWire(op)
		if err != nil {
			return nil, fmt.Errorf("failed to encode operation %s: %w", op.ID, err)
		}
		req.Operations = append(req.Operations, wireOp)
	}

	var resp api.PushResponse
	if err := t.doRequest(ctx, http.MethodPost, "/api/v1/sync/push", req, &resp); err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}

	results := make([]PushResult, 0, len(resp.Results))
	for _, ack := range resp.Results {
		results = append(results, PushResult{
			OperationID: ack.OperationID,
			Acked:       ack.Acked,
			Retryable:   ack.Retryable,
			Error:       ack.Error,
		})
	}
	return results, nil
}

// PullChanges requests changes since the cursor
func (t *HTTPTransport) PullChanges(ctx context.Context, collection, cursor string, limit int) ([]*models.RemoteChange, string, error) {
	query := url.Values{}
	query.Set("collection", collection)
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp api.PullResponse
	path := "/api/v1/sync/pull?" + query.Encode()
	if err := t.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, "", fmt.Errorf("pull request failed: %w", err)
	}

	changes := make([]*models.RemoteChange, 0, len(resp.Changes))
	for _, wire := range resp.Changes {
		change, err := changeFromWire(wire)
		if err != nil {
			return nil, "", fmt.Errorf("failed to decode remote change: %w", err)
		}
		changes = append(changes, change)
	}
	return changes, resp.NextCursor, nil
}

// doRequest выполняет HTTP запрос. Сетевые ошибки, 5xx и 429
// классифицируются как временные.
func (t *HTTPTransport) doRequest(ctx context.Context, method, path string, body, result any) error {
	reqURL := t.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// Ошибка сети или таймаут - повторяемая
		return Transient(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transient(fmt.Errorf("failed to read response body: %w", err))
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		msg := string(respBody)
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			msg = errResp.Error
		}

		reqErr := fmt.Errorf("server error (%d): %s", resp.StatusCode, msg)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return Transient(reqErr)
		}
		return reqErr
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// operationToWire конвертирует операцию в wire формат
func operationToWire(op *models.Operation) (api.Operation, error) {
	value, err := json.Marshal(op.Value)
	if err != nil {
		return api.Operation{}, err
	}
	return api.Operation{
		ID:         op.ID,
		Collection: op.Collection,
		EntityID:   op.EntityID,
		Field:      op.Field,
		Kind:       string(op.Kind),
		NodeID:     op.NodeID,
		Value:      value,
		Timestamp:  op.Timestamp,
	}, nil
}

// changeFromWire конвертирует wire изменение во внутреннюю модель
func changeFromWire(wire api.RemoteChange) (*models.RemoteChange, error) {
	change := &models.RemoteChange{
		Collection: wire.Collection,
		EntityID:   wire.EntityID,
		Field:      wire.Field,
		NodeID:     wire.NodeID,
		Timestamp:  wire.Timestamp,
		Deleted:    wire.Deleted,
	}
	if len(wire.Value) > 0 {
		if err := json.Unmarshal(wire.Value, &change.Value); err != nil {
			return nil, err
		}
	}
	return change, nil
}
