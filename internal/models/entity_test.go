package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/localsync/internal/crdt"
)

func TestVersion_Newer(t *testing.T) {
	tests := []struct {
		name     string
		a        Version
		b        Version
		expected bool
	}{
		{
			name:     "larger timestamp wins",
			a:        Version{Timestamp: 10, NodeID: "node1"},
			b:        Version{Timestamp: 5, NodeID: "node9"},
			expected: true,
		},
		{
			name:     "smaller timestamp loses",
			a:        Version{Timestamp: 3, NodeID: "node9"},
			b:        Version{Timestamp: 5, NodeID: "node1"},
			expected: false,
		},
		{
			name:     "equal timestamp, larger node wins",
			a:        Version{Timestamp: 5, NodeID: "node2"},
			b:        Version{Timestamp: 5, NodeID: "node1"},
			expected: true,
		},
		{
			name:     "equal stamps are not newer",
			a:        Version{Timestamp: 5, NodeID: "node1"},
			b:        Version{Timestamp: 5, NodeID: "node1"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Newer(tt.b))
		})
	}
}

func TestEntityRecord_SetField(t *testing.T) {
	rec := NewEntityRecord("notes", "note-1")

	stamp := Version{Timestamp: 1, NodeID: "deviceA"}
	rec.SetField("title", ScalarValue("Draft"), stamp)

	assert.Equal(t, "Draft", rec.Fields["title"].Scalar)
	assert.Equal(t, stamp, rec.FieldStamp("title"))
}

func TestEntityRecord_TombstoneAndResurrection(t *testing.T) {
	rec := NewEntityRecord("notes", "note-1")
	rec.SetField("title", ScalarValue("Draft"), Version{Timestamp: 1, NodeID: "deviceA"})

	// Удаление с более новым штампом
	rec.MarkDeleted(Version{Timestamp: 5, NodeID: "deviceA"})
	assert.True(t, rec.Deleted)
	assert.NotEmpty(t, rec.Fields, "Tombstone must keep field values")

	// Более старое удаление не понижает штамп
	rec.MarkDeleted(Version{Timestamp: 2, NodeID: "deviceA"})
	assert.Equal(t, int64(5), rec.DeletedAt.Timestamp)

	// Запись новее штампа удаления воскрешает сущность
	rec.SetField("title", ScalarValue("Revived"), Version{Timestamp: 7, NodeID: "deviceB"})
	assert.False(t, rec.Deleted)

	// Запись старее штампа удаления tombstone не снимает
	rec.MarkDeleted(Version{Timestamp: 9, NodeID: "deviceA"})
	rec.SetField("title", ScalarValue("Too old"), Version{Timestamp: 8, NodeID: "deviceB"})
	assert.True(t, rec.Deleted)
}

func TestEntityRecord_CloneIsDeep(t *testing.T) {
	rec := NewEntityRecord("notes", "note-1")
	rec.SetField("tags", SetValue(crdt.NewLWWSet().Add("go", 1)), Version{Timestamp: 1, NodeID: "a"})

	clone := rec.Clone()
	clone.Fields["tags"].Set.Adds["go"] = 100
	clone.SetField("title", ScalarValue("x"), Version{Timestamp: 2, NodeID: "a"})

	require.NotNil(t, rec.Fields["tags"].Set)
	assert.Equal(t, int64(1), rec.Fields["tags"].Set.Adds["go"])
	assert.NotContains(t, rec.Fields, "title")
}
