package models

import "time"

// Version представляет версионный штамп записи или поля: Lamport timestamp
// плюс идентификатор устройства как детерминированный tie-breaker.
// Пара (Timestamp, NodeID) задает полный порядок на всех мутациях.
type Version struct {
	NodeID    string `json:"node_id"`
	Timestamp int64  `json:"timestamp"`
}

// Newer возвращает true, если v строго новее other.
func (v Version) Newer(other Version) bool {
	if v.Timestamp != other.Timestamp {
		return v.Timestamp > other.Timestamp
	}
	return v.NodeID > other.NodeID
}

// EntityRecord представляет одну сущность локального хранилища:
// отображение имя поля → значение плюс версионный штамп каждого поля.
// Запись принадлежит Local Store и изменяется только через mutation API.
type EntityRecord struct {
	CreatedAt time.Time `json:"created_at"` // время создания (информационное)

	UpdatedAt  time.Time             `json:"updated_at"` // время последнего изменения (информационное)
	ID         string                `json:"id"`         // стабильный идентификатор сущности
	Collection string                `json:"collection"` // имя коллекции
	Fields     map[string]FieldValue `json:"fields"`     // значения полей
	Stamps     map[string]Version    `json:"stamps"`     // версионный штамп каждого поля
	DeletedAt  Version               `json:"deleted_at"` // штамп удаления (tombstone)
	Deleted    bool                  `json:"deleted"`    // soft delete: строка физически не удаляется
}

// NewEntityRecord создает пустую запись.
func NewEntityRecord(collection, id string) *EntityRecord {
	now := time.Now()
	return &EntityRecord{
		ID:         id,
		Collection: collection,
		Fields:     make(map[string]FieldValue),
		Stamps:     make(map[string]Version),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SetField записывает значение поля вместе с его версионным штампом.
// Если штамп новее штампа удаления, tombstone снимается: поздняя запись
// «воскрешает» сущность.
func (e *EntityRecord) SetField(field string, value FieldValue, stamp Version) {
	e.Fields[field] = value
	e.Stamps[field] = stamp
	if e.Deleted && stamp.Newer(e.DeletedAt) {
		e.Deleted = false
	}
	e.UpdatedAt = time.Now()
}

// MarkDeleted помечает запись удаленной, если штамп удаления новее
// текущего. Поля сохраняются, чтобы конкурентные слияния видели
// «удалено в момент T».
func (e *EntityRecord) MarkDeleted(stamp Version) {
	if e.Deleted && !stamp.Newer(e.DeletedAt) {
		return
	}
	e.Deleted = true
	e.DeletedAt = stamp
	e.UpdatedAt = time.Now()
}

// FieldStamp возвращает версионный штамп поля (нулевой, если поле
// не записывалось).
func (e *EntityRecord) FieldStamp(field string) Version {
	return e.Stamps[field]
}

// Clone создает глубокую копию записи.
func (e *EntityRecord) Clone() *EntityRecord {
	fields := make(map[string]FieldValue, len(e.Fields))
	for name, v := range e.Fields {
		fields[name] = v.Clone()
	}
	stamps := make(map[string]Version, len(e.Stamps))
	for name, s := range e.Stamps {
		stamps[name] = s
	}
	return &EntityRecord{
		ID:         e.ID,
		Collection: e.Collection,
		Fields:     fields,
		Stamps:     stamps,
		Deleted:    e.Deleted,
		DeletedAt:  e.DeletedAt,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}
