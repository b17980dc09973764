package crdt

// GCounter представляет grow-only счетчик: отображение идентификатора
// устройства в неубывающее число инкрементов этого устройства.
// Значение счетчика — сумма по всем устройствам.
// Чистый value type: Increment и Merge возвращают новое состояние.
type GCounter struct {
	Counts map[string]int64 `json:"counts"` // map[nodeID]count
}

// NewGCounter создает пустой grow-only счетчик.
func NewGCounter() GCounter {
	return GCounter{Counts: make(map[string]int64)}
}

// Clone создает глубокую копию счетчика.
func (c GCounter) Clone() GCounter {
	counts := make(map[string]int64, len(c.Counts))
	for node, n := range c.Counts {
		counts[node] = n
	}
	return GCounter{Counts: counts}
}

// Increment возвращает счетчик, в котором слот устройства nodeID увеличен
// на delta. Отрицательная или нулевая delta игнорируется: слот устройства
// обязан быть неубывающим.
func (c GCounter) Increment(nodeID string, delta int64) GCounter {
	if delta <= 0 {
		return c
	}
	next := c.Clone()
	next.Counts[nodeID] += delta
	return next
}

// Value возвращает суммарное значение по всем устройствам.
func (c GCounter) Value() int64 {
	var total int64
	for _, n := range c.Counts {
		total += n
	}
	return total
}

// Merge возвращает поэлементный максимум двух счетчиков с объединением
// множеств ключей. Коммутативен, ассоциативен и идемпотентен.
func (c GCounter) Merge(other GCounter) GCounter {
	merged := c.Clone()
	for node, n := range other.Counts {
		if n > merged.Counts[node] {
			merged.Counts[node] = n
		}
	}
	return merged
}

// PNCounter представляет счетчик с поддержкой уменьшения:
// пара grow-only счетчиков для инкрементов и декрементов.
// Значение = Increments.Value() - Decrements.Value().
type PNCounter struct {
	Increments GCounter `json:"increments"`
	Decrements GCounter `json:"decrements"`
}

// NewPNCounter создает пустой PN-счетчик.
func NewPNCounter() PNCounter {
	return PNCounter{
		Increments: NewGCounter(),
		Decrements: NewGCounter(),
	}
}

// Increment возвращает счетчик, увеличенный на delta для устройства nodeID.
func (c PNCounter) Increment(nodeID string, delta int64) PNCounter {
	return PNCounter{
		Increments: c.Increments.Increment(nodeID, delta),
		Decrements: c.Decrements.Clone(),
	}
}

// Decrement возвращает счетчик, уменьшенный на delta для устройства nodeID.
func (c PNCounter) Decrement(nodeID string, delta int64) PNCounter {
	return PNCounter{
		Increments: c.Increments.Clone(),
		Decrements: c.Decrements.Increment(nodeID, delta),
	}
}

// Value возвращает текущее значение счетчика.
func (c PNCounter) Value() int64 {
	return c.Increments.Value() - c.Decrements.Value()
}

// Merge объединяет каждый из внутренних G-счетчиков независимо.
func (c PNCounter) Merge(other PNCounter) PNCounter {
	return PNCounter{
		Increments: c.Increments.Merge(other.Increments),
		Decrements: c.Decrements.Merge(other.Decrements),
	}
}
