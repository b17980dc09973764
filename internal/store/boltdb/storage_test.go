package boltdb

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/localsync/internal/models"
	"github.com/iudanet/localsync/internal/store"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	storage, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = storage.Close()
	})

	return storage
}

func testRecord(collection, id string) *models.EntityRecord {
	record := models.NewEntityRecord(collection, id)
	record.SetField("title", models.ScalarValue("Draft"),
		models.Version{Timestamp: 1, NodeID: "deviceA"})
	return record
}

func testOperation(id, entityID string, seqHint int) *models.Operation {
	return &models.Operation{
		ID:         id,
		Collection: "notes",
		EntityID:   entityID,
		Field:      "title",
		Kind:       models.OperationSet,
		NodeID:     "deviceA",
		Value:      models.ScalarValue(fmt.Sprintf("v%d", seqHint)),
		Timestamp:  int64(seqHint),
		CreatedAt:  time.Now(),
	}
}

func TestStorage_EntityCRUD(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	record := testRecord("notes", "note-1")
	require.NoError(t, storage.SaveEntity(ctx, record))

	got, err := storage.GetEntity(ctx, "notes", "note-1")
	require.NoError(t, err)
	assert.Equal(t, "note-1", got.ID)
	assert.Equal(t, "Draft", got.Fields["title"].Scalar)
	assert.Equal(t, models.Version{Timestamp: 1, NodeID: "deviceA"}, got.FieldStamp("title"))

	// Несуществующая запись
	_, err = storage.GetEntity(ctx, "notes", "missing")
	assert.ErrorIs(t, err, store.ErrEntityNotFound)

	// Несуществующая коллекция
	_, err = storage.GetEntity(ctx, "missing", "note-1")
	assert.ErrorIs(t, err, store.ErrEntityNotFound)
}

func TestStorage_ListEntitiesSkipsTombstones(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	alive := testRecord("notes", "note-1")
	require.NoError(t, storage.SaveEntity(ctx, alive))

	dead := testRecord("notes", "note-2")
	dead.MarkDeleted(models.Version{Timestamp: 5, NodeID: "deviceA"})
	require.NoError(t, storage.SaveEntity(ctx, dead))

	records, err := storage.ListEntities(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "note-1", records[0].ID)

	// Tombstone остается читаемым по id вместе со штампом удаления
	got, err := storage.GetEntity(ctx, "notes", "note-2")
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Equal(t, int64(5), got.DeletedAt.Timestamp)

	// Пустая коллекция
	empty, err := storage.ListEntities(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStorage_ApplyLocalMutation(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	record := testRecord("notes", "note-1")
	op := testOperation("op-1", "note-1", 1)

	require.NoError(t, storage.ApplyLocalMutation(ctx, record, op))

	// Видны и запись, и операция в outbox
	got, err := storage.GetEntity(ctx, "notes", "note-1")
	require.NoError(t, err)
	assert.Equal(t, "Draft", got.Fields["title"].Scalar)

	ops, err := storage.PendingOperations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "op-1", ops[0].ID)
	assert.Equal(t, models.OperationPending, ops[0].Status)
	assert.NotZero(t, ops[0].Seq)
}

func TestStorage_OutboxFIFO(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	for i := 1; i <= 5; i++ {
		op := testOperation(fmt.Sprintf("op-%d", i), "note-1", i)
		require.NoError(t, storage.ApplyLocalMutation(ctx, testRecord("notes", "note-1"), op))
	}

	// Полный список в порядке создания
	ops, err := storage.PendingOperations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, ops, 5)
	for i, op := range ops {
		assert.Equal(t, fmt.Sprintf("op-%d", i+1), op.ID)
	}

	// Лимит batch сохраняет порядок
	batch, err := storage.PendingOperations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "op-1", batch[0].ID)
	assert.Equal(t, "op-2", batch[1].ID)
}

func TestStorage_OutboxStateMachine(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	op := testOperation("op-1", "note-1", 1)
	require.NoError(t, storage.ApplyLocalMutation(ctx, testRecord("notes", "note-1"), op))

	// pending → inFlight: операция исчезает из push batch
	require.NoError(t, storage.MarkInFlight(ctx, []string{"op-1"}))
	ops, err := storage.PendingOperations(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, ops)

	// inFlight учитывается как ожидающая доставки
	count, err := storage.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// inFlight → failed → pending: операция возвращается в очередь
	require.NoError(t, storage.MarkFailed(ctx, []string{"op-1"}, 5))
	ops, err = storage.PendingOperations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].Attempts)

	// подтверждение удаляет строку
	require.NoError(t, storage.MarkInFlight(ctx, []string{"op-1"}))
	require.NoError(t, storage.MarkAcknowledged(ctx, []string{"op-1"}))
	count, err = storage.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Повторное подтверждение безвредно
	require.NoError(t, storage.MarkAcknowledged(ctx, []string{"op-1"}))
}

func TestStorage_OutboxRetryCeiling(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	op := testOperation("op-1", "note-1", 1)
	require.NoError(t, storage.ApplyLocalMutation(ctx, testRecord("notes", "note-1"), op))

	maxAttempts := 3
	for i := 0; i < maxAttempts; i++ {
		require.NoError(t, storage.MarkFailed(ctx, []string{"op-1"}, maxAttempts))
	}

	// Операция достигла лимита: исключена из push batch
	ops, err := storage.PendingOperations(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, ops)

	count, err := storage.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Но остается видимой для ручного вмешательства
	failed, err := storage.FailedOperations(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, models.OperationPermanentlyFailed, failed[0].Status)
	assert.Equal(t, maxAttempts, failed[0].Attempts)

	// Повторный MarkFailed не двигает счетчик
	require.NoError(t, storage.MarkFailed(ctx, []string{"op-1"}, maxAttempts))
	failed, err = storage.FailedOperations(ctx)
	require.NoError(t, err)
	assert.Equal(t, maxAttempts, failed[0].Attempts)
}

func TestStorage_ReopenRecoversInFlight(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	storage, err := New(ctx, dbPath)
	require.NoError(t, err)

	op := testOperation("op-1", "note-1", 1)
	require.NoError(t, storage.ApplyLocalMutation(ctx, testRecord("notes", "note-1"), op))
	require.NoError(t, storage.MarkInFlight(ctx, []string{"op-1"}))

	// Крах между отправкой и подтверждением
	require.NoError(t, storage.Close())

	reopened, err := New(ctx, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = reopened.Close()
	})

	// Операция вернулась в очередь и будет доставлена повторно
	ops, err := reopened.PendingOperations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "op-1", ops[0].ID)
	assert.Equal(t, models.OperationPending, ops[0].Status)

	count, err := reopened.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStorage_MarkFailedUnknownOperation(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	err := storage.MarkFailed(ctx, []string{"ghost"}, 5)
	assert.ErrorIs(t, err, store.ErrOperationNotFound)
}

func TestStorage_Cursors(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	// До первого pull курсора нет
	_, err := storage.GetCursor(ctx, "notes")
	assert.ErrorIs(t, err, store.ErrCursorNotFound)

	require.NoError(t, storage.SaveCursor(ctx, "notes", "42"))

	cursor, err := storage.GetCursor(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, "42", cursor)

	// Курсоры независимы по коллекциям
	_, err = storage.GetCursor(ctx, "tasks")
	assert.ErrorIs(t, err, store.ErrCursorNotFound)
}

func TestStorage_Conflicts(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	conflict := &models.Conflict{
		ID:          "conflict-1",
		Collection:  "notes",
		EntityID:    "note-1",
		Field:       "title",
		Local:       models.ScalarValue("mine"),
		Remote:      models.ScalarValue("theirs"),
		LocalStamp:  models.Version{Timestamp: 3, NodeID: "deviceA"},
		RemoteStamp: models.Version{Timestamp: 3, NodeID: "deviceB"},
		CreatedAt:   time.Now(),
	}
	require.NoError(t, storage.SaveConflict(ctx, conflict))

	got, err := storage.GetConflict(ctx, "conflict-1")
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Local.Scalar)
	assert.Equal(t, "theirs", got.Remote.Scalar)

	list, err := storage.ListConflicts(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, storage.DeleteConflict(ctx, "conflict-1"))
	_, err = storage.GetConflict(ctx, "conflict-1")
	assert.ErrorIs(t, err, store.ErrConflictNotFound)
}

// stubMerger применяет изменение без стратегий, для изоляции тестов batch
type stubMerger struct{}

func (stubMerger) MergeRemote(local *models.EntityRecord, change *models.RemoteChange) (*models.EntityRecord, *models.Conflict, error) {
	if err := change.Validate(); err != nil {
		return nil, nil, err
	}
	record := local
	if record == nil {
		record = models.NewEntityRecord(change.Collection, change.EntityID)
	}
	record.SetField(change.Field, change.Value, change.Stamp())
	return record, nil, nil
}

func TestStorage_ApplyPullBatch(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	changes := []*models.RemoteChange{
		{
			Collection: "notes",
			EntityID:   "note-1",
			Field:      "title",
			NodeID:     "deviceB",
			Value:      models.ScalarValue("remote"),
			Timestamp:  10,
		},
		{
			// Нет имени поля: отбрасывается, batch продолжается
			Collection: "notes",
			EntityID:   "note-2",
			NodeID:     "deviceB",
			Timestamp:  11,
		},
	}

	result, err := storage.ApplyPullBatch(ctx, "notes", changes, "11", stubMerger{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Conflicts)

	// Запись и курсор видны атомарно
	record, err := storage.GetEntity(ctx, "notes", "note-1")
	require.NoError(t, err)
	assert.Equal(t, "remote", record.Fields["title"].Scalar)

	cursor, err := storage.GetCursor(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, "11", cursor)
}

func TestStorage_ApplyPullBatchReapplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	changes := []*models.RemoteChange{
		{
			Collection: "notes",
			EntityID:   "note-1",
			Field:      "title",
			NodeID:     "deviceB",
			Value:      models.ScalarValue("stable"),
			Timestamp:  10,
		},
	}

	// Повторное применение того же batch после краха координатора
	for i := 0; i < 2; i++ {
		_, err := storage.ApplyPullBatch(ctx, "notes", changes, "10", stubMerger{})
		require.NoError(t, err)
	}

	record, err := storage.GetEntity(ctx, "notes", "note-1")
	require.NoError(t, err)
	assert.Equal(t, "stable", record.Fields["title"].Scalar)
	assert.Equal(t, int64(10), record.FieldStamp("title").Timestamp)
}

func TestStorage_Metadata(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	// Идентификатор устройства генерируется один раз
	nodeID, err := storage.NodeID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, nodeID)

	again, err := storage.NodeID(ctx)
	require.NoError(t, err)
	assert.Equal(t, nodeID, again)

	// Часы: 0 до первого сохранения
	state, err := storage.ClockState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state)

	require.NoError(t, storage.SaveClockState(ctx, 42))
	state, err = storage.ClockState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), state)
}

func TestStorage_Closed(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	require.NoError(t, storage.Close())

	_, err := storage.GetEntity(ctx, "notes", "note-1")
	assert.ErrorIs(t, err, store.ErrStorageClosed)

	err = storage.SaveEntity(ctx, testRecord("notes", "note-1"))
	assert.ErrorIs(t, err, store.ErrStorageClosed)

	_, err = storage.PendingOperations(ctx, 0)
	assert.ErrorIs(t, err, store.ErrStorageClosed)

	_, err = storage.GetCursor(ctx, "notes")
	assert.ErrorIs(t, err, store.ErrStorageClosed)

	// Повторный Close безвреден
	require.NoError(t, storage.Close())
}
