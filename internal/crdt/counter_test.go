package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGCounter_Increment(t *testing.T) {
	c := NewGCounter()

	c = c.Increment("node1", 1)
	c = c.Increment("node1", 2)
	c = c.Increment("node2", 5)

	assert.Equal(t, int64(8), c.Value())
	assert.Equal(t, int64(3), c.Counts["node1"])
	assert.Equal(t, int64(5), c.Counts["node2"])
}

func TestGCounter_Increment_NonPositiveDelta(t *testing.T) {
	c := NewGCounter().Increment("node1", 3)

	// Слот устройства неубывающий: нулевая и отрицательная delta игнорируются
	assert.Equal(t, int64(3), c.Increment("node1", 0).Value())
	assert.Equal(t, int64(3), c.Increment("node1", -2).Value())
}

func TestGCounter_Increment_DoesNotMutateOriginal(t *testing.T) {
	a := NewGCounter().Increment("node1", 1)
	_ = a.Increment("node1", 10)

	assert.Equal(t, int64(1), a.Value(), "Increment must not mutate the receiver")
}

func TestGCounter_Merge_PointwiseMax(t *testing.T) {
	a := NewGCounter()
	a = a.Increment("node1", 3)
	a = a.Increment("node2", 1)

	b := NewGCounter()
	b = b.Increment("node1", 2)
	b = b.Increment("node3", 4)

	merged := a.Merge(b)

	// max(3,2) + max(1,0) + max(0,4) = 8
	assert.Equal(t, int64(8), merged.Value())
	assert.Equal(t, int64(3), merged.Counts["node1"])
	assert.Equal(t, int64(1), merged.Counts["node2"])
	assert.Equal(t, int64(4), merged.Counts["node3"])
}

func TestGCounter_Merge_Laws(t *testing.T) {
	a := NewGCounter().Increment("node1", 3)
	b := NewGCounter().Increment("node2", 2)
	c := NewGCounter().Increment("node3", 7)

	assert.Equal(t, a.Merge(b), b.Merge(a), "Merge must be commutative")
	assert.Equal(t, a.Merge(b).Merge(c), a.Merge(b.Merge(c)), "Merge must be associative")
	assert.Equal(t, a, a.Merge(a), "Merge must be idempotent")
}

func TestGCounter_TwoDevicesConverge(t *testing.T) {
	// Два устройства офлайн инкрементируют likeCount по одному разу
	deviceA := NewGCounter().Increment("deviceA", 1)
	deviceB := NewGCounter().Increment("deviceB", 1)

	// После синхронизации обе реплики сходятся к 2
	assert.Equal(t, int64(2), deviceA.Merge(deviceB).Value())
	assert.Equal(t, int64(2), deviceB.Merge(deviceA).Value())
}

func TestPNCounter_IncrementDecrement(t *testing.T) {
	c := NewPNCounter()

	c = c.Increment("node1", 5)
	c = c.Decrement("node1", 2)

	assert.Equal(t, int64(3), c.Value())
}

func TestPNCounter_RoundTripWithUnrelatedIncrements(t *testing.T) {
	// Инкремент и декремент на одну и ту же величину на одном устройстве
	// возвращает исходное значение после merge с чужими инкрементами
	local := NewPNCounter()
	local = local.Increment("node1", 4)
	local = local.Decrement("node1", 4)

	other := NewPNCounter().Increment("node2", 7)

	merged := local.Merge(other)
	assert.Equal(t, int64(7), merged.Value())
}

func TestPNCounter_Merge_Laws(t *testing.T) {
	a := NewPNCounter().Increment("node1", 3).Decrement("node1", 1)
	b := NewPNCounter().Increment("node2", 5)
	c := NewPNCounter().Decrement("node3", 2)

	assert.Equal(t, a.Merge(b), b.Merge(a), "Merge must be commutative")
	assert.Equal(t, a.Merge(b).Merge(c), a.Merge(b.Merge(c)), "Merge must be associative")
	assert.Equal(t, a, a.Merge(a), "Merge must be idempotent")
}
