package crdt

import (
	"sync"

	"github.com/google/uuid"
)

// Clock представляет логические часы Лампорта для упорядочивания событий
// в распределенной системе без синхронизации физического времени.
// Каждое устройство (node) имеет свой экземпляр часов; timestamp монотонно
// не убывает в пределах одного устройства.
type Clock struct {
	counter int64      // монотонно возрастающий счетчик
	nodeID  string     // уникальный идентификатор устройства
	mu      sync.Mutex // мьютекс для потокобезопасности
}

// NewClock создает новые логические часы с уникальным идентификатором
// устройства (UUID).
func NewClock() *Clock {
	return &Clock{
		nodeID: uuid.New().String(),
	}
}

// NewClockWithNodeID создает логические часы с заданным идентификатором
// устройства. Используется для тестирования и восстановления состояния.
func NewClockWithNodeID(nodeID string) *Clock {
	return &Clock{
		nodeID: nodeID,
	}
}

// Tick увеличивает счетчик и возвращает новый timestamp.
// Вызывается при создании локальной мутации.
func (c *Clock) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter++
	return c.counter
}

// Observe обновляет счетчик на основе timestamp, полученного от другого
// устройства: counter = max(counter, remote). Следующий Tick гарантированно
// вернет значение больше любого уже увиденного.
func (c *Clock) Observe(remote int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote > c.counter {
		c.counter = remote
	}
}

// Now возвращает текущее значение счетчика без его изменения.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.counter
}

// NodeID возвращает идентификатор устройства.
func (c *Clock) NodeID() string {
	return c.nodeID
}

// Restore устанавливает счетчик в заданное значение.
// Используется при восстановлении состояния после перезапуска.
func (c *Clock) Restore(timestamp int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter = timestamp
}
