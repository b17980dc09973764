package crdt

// LWWRegister представляет Last-Write-Wins регистр для скалярных полей
// (заголовки, флаги и т.д.). Это чистый value type: все операции возвращают
// новое состояние, не изменяя исходное.
//
// Побеждает запись с большим timestamp; при равных timestamp — запись
// с лексикографически большим NodeID. Такое сравнение дает детерминированный
// полный порядок, поэтому Merge коммутативен, ассоциативен и идемпотентен.
type LWWRegister struct {
	Value     any    `json:"value"`     // текущее значение регистра
	Timestamp int64  `json:"timestamp"` // Lamport timestamp последней записи
	NodeID    string `json:"node_id"`   // устройство, выполнившее запись
}

// NewLWWRegister создает регистр с начальным значением.
func NewLWWRegister(value any, timestamp int64, nodeID string) LWWRegister {
	return LWWRegister{
		Value:     value,
		Timestamp: timestamp,
		NodeID:    nodeID,
	}
}

// NewerThan возвращает true, если запись r новее записи other
// по паре (timestamp, nodeID).
func (r LWWRegister) NewerThan(other LWWRegister) bool {
	if r.Timestamp != other.Timestamp {
		return r.Timestamp > other.Timestamp
	}
	return r.NodeID > other.NodeID
}

// Set возвращает регистр с новым значением, если пара (timestamp, nodeID)
// новее текущей. Иначе возвращает регистр без изменений.
func (r LWWRegister) Set(value any, timestamp int64, nodeID string) LWWRegister {
	next := LWWRegister{
		Value:     value,
		Timestamp: timestamp,
		NodeID:    nodeID,
	}
	if next.NewerThan(r) {
		return next
	}
	return r
}

// Merge возвращает состояние-победитель по тому же сравнению, что и Set.
// Не зависит от порядка аргументов: Merge(a, b) == Merge(b, a).
func (r LWWRegister) Merge(other LWWRegister) LWWRegister {
	if other.NewerThan(r) {
		return other
	}
	return r
}
