package crdt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClock(t *testing.T) {
	clock := NewClock()

	require.NotNil(t, clock)
	assert.Equal(t, int64(0), clock.Now(), "New clock should start at 0")
	assert.NotEmpty(t, clock.NodeID(), "Clock should have a node ID")
}

func TestNewClockWithNodeID(t *testing.T) {
	clock := NewClockWithNodeID("device-1")

	assert.Equal(t, "device-1", clock.NodeID())
	assert.Equal(t, int64(0), clock.Now())
}

func TestClock_Tick(t *testing.T) {
	clock := NewClock()

	assert.Equal(t, int64(1), clock.Tick())
	assert.Equal(t, int64(2), clock.Tick())
	assert.Equal(t, int64(3), clock.Tick())
	assert.Equal(t, int64(3), clock.Now())
}

func TestClock_Observe(t *testing.T) {
	tests := []struct {
		name         string
		local        int64
		remote       int64
		expectedNow  int64
		expectedTick int64
	}{
		{
			name:         "remote ahead of local",
			local:        5,
			remote:       10,
			expectedNow:  10,
			expectedTick: 11,
		},
		{
			name:         "remote behind local",
			local:        10,
			remote:       3,
			expectedNow:  10,
			expectedTick: 11,
		},
		{
			name:         "remote equals local",
			local:        7,
			remote:       7,
			expectedNow:  7,
			expectedTick: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewClockWithNodeID("device-1")
			clock.Restore(tt.local)

			clock.Observe(tt.remote)

			assert.Equal(t, tt.expectedNow, clock.Now())
			// Следующий Tick должен быть больше любого увиденного значения
			assert.Equal(t, tt.expectedTick, clock.Tick())
		})
	}
}

func TestClock_Restore(t *testing.T) {
	clock := NewClockWithNodeID("device-1")
	clock.Restore(42)

	assert.Equal(t, int64(42), clock.Now())
	assert.Equal(t, int64(43), clock.Tick())
}

func TestClock_ConcurrentTick(t *testing.T) {
	clock := NewClock()

	const goroutines = 10
	const ticksPerGoroutine = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < ticksPerGoroutine; j++ {
				clock.Tick()
			}
		}()
	}
	wg.Wait()

	// Все тики должны быть учтены без потерь
	assert.Equal(t, int64(goroutines*ticksPerGoroutine), clock.Now())
}
