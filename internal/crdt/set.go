package crdt

import "sort"

// LWWSet представляет LWW-Element-Set: два отображения элемент → timestamp
// (добавления и удаления). Элемент присутствует в множестве, если timestamp
// его добавления строго больше timestamp удаления (отсутствующий timestamp
// считается нулем). Используется для списков тегов и других множеств,
// редактируемых с нескольких устройств.
type LWWSet struct {
	Adds    map[string]int64 `json:"adds"`    // map[element]timestamp добавления
	Removes map[string]int64 `json:"removes"` // map[element]timestamp удаления
}

// NewLWWSet создает пустое множество.
func NewLWWSet() LWWSet {
	return LWWSet{
		Adds:    make(map[string]int64),
		Removes: make(map[string]int64),
	}
}

// Clone создает глубокую копию множества.
func (s LWWSet) Clone() LWWSet {
	adds := make(map[string]int64, len(s.Adds))
	for e, t := range s.Adds {
		adds[e] = t
	}
	removes := make(map[string]int64, len(s.Removes))
	for e, t := range s.Removes {
		removes[e] = t
	}
	return LWWSet{Adds: adds, Removes: removes}
}

// Add возвращает множество, в котором timestamp добавления элемента поднят
// до t. Timestamp только растет: Add со старым t не имеет эффекта.
func (s LWWSet) Add(element string, t int64) LWWSet {
	next := s.Clone()
	if t > next.Adds[element] {
		next.Adds[element] = t
	}
	return next
}

// Remove возвращает множество, в котором timestamp удаления элемента поднят
// до t. Физически элемент не удаляется (tombstone).
func (s LWWSet) Remove(element string, t int64) LWWSet {
	next := s.Clone()
	if t > next.Removes[element] {
		next.Removes[element] = t
	}
	return next
}

// Contains возвращает true, если элемент присутствует:
// timestamp добавления строго больше timestamp удаления.
func (s LWWSet) Contains(element string) bool {
	return s.Adds[element] > s.Removes[element]
}

// Elements возвращает отсортированный список присутствующих элементов.
func (s LWWSet) Elements() []string {
	result := make([]string, 0, len(s.Adds))
	for e := range s.Adds {
		if s.Contains(e) {
			result = append(result, e)
		}
	}
	sort.Strings(result)
	return result
}

// Merge возвращает поэлементный максимум обоих отображений.
// Коммутативен, ассоциативен и идемпотентен.
func (s LWWSet) Merge(other LWWSet) LWWSet {
	merged := s.Clone()
	for e, t := range other.Adds {
		if t > merged.Adds[e] {
			merged.Adds[e] = t
		}
	}
	for e, t := range other.Removes {
		if t > merged.Removes[e] {
			merged.Removes[e] = t
		}
	}
	return merged
}
