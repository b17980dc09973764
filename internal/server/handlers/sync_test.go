package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/localsync/internal/models"
	"github.com/iudanet/localsync/internal/server/storage/sqlite"
	"github.com/iudanet/localsync/pkg/api"
)

func newSyncHandler(t *testing.T) *SyncHandler {
	t.Helper()

	storage, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = storage.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSyncHandler(logger, storage)
}

func wireSetOp(id, entityID, field, value string, timestamp int64) api.Operation {
	raw, _ := json.Marshal(models.ScalarValue(value))
	return api.Operation{
		ID:         id,
		Collection: "notes",
		EntityID:   entityID,
		Field:      field,
		Kind:       "set",
		NodeID:     "deviceA",
		Value:      raw,
		Timestamp:  timestamp,
	}
}

func doPush(t *testing.T, h *SyncHandler, req api.PushRequest) (*httptest.ResponseRecorder, api.PushResponse) {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/sync/push", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.HandlePush(w, r)

	var resp api.PushResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func doPull(t *testing.T, h *SyncHandler, url string) (*httptest.ResponseRecorder, api.PullResponse) {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	h.HandlePull(w, r)

	var resp api.PullResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestSyncHandler_PushAndPull(t *testing.T) {
	h := newSyncHandler(t)

	w, resp := doPush(t, h, api.PushRequest{
		Operations: []api.Operation{
			wireSetOp("op-1", "note-1", "title", "Draft", 1),
			wireSetOp("op-2", "note-1", "body", "hello", 2),
		},
	})

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Acked)
	assert.True(t, resp.Results[1].Acked)

	pw, pull := doPull(t, h, "/api/v1/sync/pull?collection=notes")
	require.Equal(t, http.StatusOK, pw.Code)
	require.Len(t, pull.Changes, 2)
	assert.Equal(t, "2", pull.NextCursor)
	assert.Equal(t, "title", pull.Changes[0].Field)
	assert.Equal(t, "body", pull.Changes[1].Field)
}

func TestSyncHandler_PushDuplicateIsAcked(t *testing.T) {
	h := newSyncHandler(t)

	op := wireSetOp("op-1", "note-1", "title", "Draft", 1)

	_, first := doPush(t, h, api.PushRequest{Operations: []api.Operation{op}})
	require.True(t, first.Results[0].Acked)

	// Повторная доставка после потерянного ответа
	_, second := doPush(t, h, api.PushRequest{Operations: []api.Operation{op}})
	require.True(t, second.Results[0].Acked)

	_, pull := doPull(t, h, "/api/v1/sync/pull?collection=notes")
	assert.Len(t, pull.Changes, 1)
}

func TestSyncHandler_PushRejectsMalformedOperation(t *testing.T) {
	h := newSyncHandler(t)

	bad := wireSetOp("op-bad", "note-1", "", "x", 1) // нет имени поля
	good := wireSetOp("op-good", "note-1", "title", "ok", 2)

	w, resp := doPush(t, h, api.PushRequest{Operations: []api.Operation{bad, good}})

	// Batch продолжается: некорректная операция отклонена без повтора
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp.Results, 2)
	assert.False(t, resp.Results[0].Acked)
	assert.False(t, resp.Results[0].Retryable)
	assert.NotEmpty(t, resp.Results[0].Error)
	assert.True(t, resp.Results[1].Acked)

	_, pull := doPull(t, h, "/api/v1/sync/pull?collection=notes")
	require.Len(t, pull.Changes, 1)
	assert.Equal(t, "title", pull.Changes[0].Field)
}

func TestSyncHandler_PushValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(op *api.Operation)
	}{
		{name: "missing id", mutate: func(op *api.Operation) { op.ID = "" }},
		{name: "missing collection", mutate: func(op *api.Operation) { op.Collection = "" }},
		{name: "missing node id", mutate: func(op *api.Operation) { op.NodeID = "" }},
		{name: "unknown kind", mutate: func(op *api.Operation) { op.Kind = "explode" }},
		{name: "malformed value", mutate: func(op *api.Operation) { op.Value = []byte("{") }},
		{name: "unknown value kind", mutate: func(op *api.Operation) { op.Value = []byte(`{"kind":"blob"}`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newSyncHandler(t)

			op := wireSetOp("op-1", "note-1", "title", "x", 1)
			tt.mutate(&op)

			w, resp := doPush(t, h, api.PushRequest{Operations: []api.Operation{op}})

			require.Equal(t, http.StatusOK, w.Code)
			require.Len(t, resp.Results, 1)
			assert.False(t, resp.Results[0].Acked)
			assert.False(t, resp.Results[0].Retryable)
		})
	}
}

func TestSyncHandler_PullCursor(t *testing.T) {
	h := newSyncHandler(t)

	var ops []api.Operation
	for i := 1; i <= 3; i++ {
		ops = append(ops, wireSetOp("op-"+string(rune('0'+i)), "note-1", "title", "v", int64(i)))
	}
	_, _ = doPush(t, h, api.PushRequest{Operations: ops})

	w, pull := doPull(t, h, "/api/v1/sync/pull?collection=notes&cursor=1&limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, pull.Changes, 1)
	assert.Equal(t, "2", pull.NextCursor)

	// Пустой хвост: курсор не двигается
	w, pull = doPull(t, h, "/api/v1/sync/pull?collection=notes&cursor=3")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, pull.Changes)
	assert.Equal(t, "3", pull.NextCursor)
}

func TestSyncHandler_PullBadRequest(t *testing.T) {
	h := newSyncHandler(t)

	w, _ := doPull(t, h, "/api/v1/sync/pull")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doPull(t, h, "/api/v1/sync/pull?collection=notes&cursor=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doPull(t, h, "/api/v1/sync/pull?collection=notes&limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncHandler_MethodNotAllowed(t *testing.T) {
	h := newSyncHandler(t)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/sync/push", nil)
	w := httptest.NewRecorder()
	h.HandlePush(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	r = httptest.NewRequest(http.MethodPost, "/api/v1/sync/pull", nil)
	w = httptest.NewRecorder()
	h.HandlePull(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
