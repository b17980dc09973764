package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/localsync/internal/crdt"
	"github.com/iudanet/localsync/internal/models"
	"github.com/iudanet/localsync/pkg/api"
)

func TestHTTPTransport_PushOperations(t *testing.T) {
	var received api.PushRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/sync/push", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		resp := api.PushResponse{
			Results: []api.OperationAck{
				{OperationID: received.Operations[0].ID, Acked: true},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	tr := NewHTTP(server.URL)

	op := &models.Operation{
		ID:         "op-1",
		Collection: "notes",
		EntityID:   "note-1",
		Field:      "title",
		Kind:       models.OperationSet,
		NodeID:     "deviceA",
		Value:      models.ScalarValue("Draft"),
		Timestamp:  10,
	}

	results, err := tr.PushOperations(context.Background(), []*models.Operation{op})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Acked)
	assert.Equal(t, "op-1", results[0].OperationID)

	// Wire формат сохраняет все поля операции
	require.Len(t, received.Operations, 1)
	assert.Equal(t, "set", received.Operations[0].Kind)
	assert.Equal(t, int64(10), received.Operations[0].Timestamp)
}

func TestHTTPTransport_PullChanges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/v1/sync/pull", r.URL.Path)
		assert.Equal(t, "notes", r.URL.Query().Get("collection"))
		assert.Equal(t, "5", r.URL.Query().Get("cursor"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))

		value, _ := json.Marshal(models.CounterValue(crdt.NewGCounter().Increment("deviceB", 2)))
		resp := api.PullResponse{
			Changes: []api.RemoteChange{
				{
					Collection: "notes",
					EntityID:   "note-1",
					Field:      "likes",
					NodeID:     "deviceB",
					Value:      value,
					Timestamp:  7,
				},
			},
			NextCursor: "6",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	tr := NewHTTP(server.URL)

	changes, next, err := tr.PullChanges(context.Background(), "notes", "5", 100)

	require.NoError(t, err)
	assert.Equal(t, "6", next)
	require.Len(t, changes, 1)
	assert.Equal(t, "note-1", changes[0].EntityID)
	assert.Equal(t, models.FieldKindCounter, changes[0].Value.Kind)
	assert.Equal(t, int64(2), changes[0].Value.Counter.Value())
}

func TestHTTPTransport_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{name: "internal server error is transient", status: http.StatusInternalServerError, transient: true},
		{name: "bad gateway is transient", status: http.StatusBadGateway, transient: true},
		{name: "too many requests is transient", status: http.StatusTooManyRequests, transient: true},
		{name: "bad request is permanent", status: http.StatusBadRequest, transient: false},
		{name: "forbidden is permanent", status: http.StatusForbidden, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", tt.status)
			}))
			defer server.Close()

			tr := NewHTTP(server.URL)
			_, _, err := tr.PullChanges(context.Background(), "notes", "", 10)

			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestHTTPTransport_NetworkErrorIsTransient(t *testing.T) {
	// Закрытый сервер: соединение отклоняется
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	tr := NewHTTP(server.URL)
	_, _, err := tr.PullChanges(context.Background(), "notes", "", 10)

	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(assert.AnError))
	assert.True(t, IsTransient(Transient(assert.AnError)))
	assert.Nil(t, Transient(nil))
}
