package models

import (
	"errors"
	"fmt"

	"github.com/iudanet/localsync/internal/crdt"
)

// ErrInvalidChange indicates a malformed field value or remote change.
// Такие изменения отбрасываются и логируются, цикл синхронизации продолжается.
var ErrInvalidChange = errors.New("invalid change payload")

// FieldKind задает тип значения поля. Закрытый набор вариантов позволяет
// Conflict Resolver выбирать стратегию слияния без рефлексии.
type FieldKind string

// Поддерживаемые типы значений поля
const (
	FieldKindScalar    FieldKind = "scalar"     // обычное значение без CRDT обертки
	FieldKindRegister  FieldKind = "register"   // LWW-Register
	FieldKindCounter   FieldKind = "counter"    // G-Counter
	FieldKindPNCounter FieldKind = "pn_counter" // PN-Counter
	FieldKindSet       FieldKind = "set"        // LWW-Element-Set
)

// FieldValue представляет значение одного поля Entity Record: закрытый
// tagged union из скаляра и четырех CRDT примитивов. Заполнен ровно один
// payload, соответствующий Kind.
type FieldValue struct {
	Scalar    any               `json:"scalar,omitempty"`
	Register  *crdt.LWWRegister `json:"register,omitempty"`
	Counter   *crdt.GCounter    `json:"counter,omitempty"`
	PNCounter *crdt.PNCounter   `json:"pn_counter,omitempty"`
	Set       *crdt.LWWSet      `json:"set,omitempty"`
	Kind      FieldKind         `json:"kind"`
}

// ScalarValue создает скалярное значение поля.
func ScalarValue(v any) FieldValue {
	return FieldValue{Kind: FieldKindScalar, Scalar: v}
}

// RegisterValue создает значение-регистр.
func RegisterValue(r crdt.LWWRegister) FieldValue {
	return FieldValue{Kind: FieldKindRegister, Register: &r}
}

// CounterValue создает значение G-Counter.
func CounterValue(c crdt.GCounter) FieldValue {
	return FieldValue{Kind: FieldKindCounter, Counter: &c}
}

// PNCounterValue создает значение PN-Counter.
func PNCounterValue(c crdt.PNCounter) FieldValue {
	return FieldValue{Kind: FieldKindPNCounter, PNCounter: &c}
}

// SetValue создает значение LWW-Element-Set.
func SetValue(s crdt.LWWSet) FieldValue {
	return FieldValue{Kind: FieldKindSet, Set: &s}
}

// Validate проверяет, что Kind известен и заполнен соответствующий payload.
// Возвращает ErrInvalidChange для некорректных значений.
func (v FieldValue) Validate() error {
	switch v.Kind {
	case FieldKindScalar:
		return nil
	case FieldKindRegister:
		if v.Register == nil {
			return fmt.Errorf("%w: register payload missing", ErrInvalidChange)
		}
	case FieldKindCounter:
		if v.Counter == nil {
			return fmt.Errorf("%w: counter payload missing", ErrInvalidChange)
		}
	case FieldKindPNCounter:
		if v.PNCounter == nil {
			return fmt.Errorf("%w: pn_counter payload missing", ErrInvalidChange)
		}
	case FieldKindSet:
		if v.Set == nil {
			return fmt.Errorf("%w: set payload missing", ErrInvalidChange)
		}
	default:
		return fmt.Errorf("%w: unknown field kind %q", ErrInvalidChange, v.Kind)
	}
	return nil
}

// Clone создает глубокую копию значения.
func (v FieldValue) Clone() FieldValue {
	out := FieldValue{Kind: v.Kind, Scalar: v.Scalar}
	if v.Register != nil {
		r := *v.Register
		out.Register = &r
	}
	if v.Counter != nil {
		c := v.Counter.Clone()
		out.Counter = &c
	}
	if v.PNCounter != nil {
		c := crdt.PNCounter{
			Increments: v.PNCounter.Increments.Clone(),
			Decrements: v.PNCounter.Decrements.Clone(),
		}
		out.PNCounter = &c
	}
	if v.Set != nil {
		s := v.Set.Clone()
		out.Set = &s
	}
	return out
}

// MergeCRDT объединяет два значения одного CRDT типа. Для скаляров CRDT
// слияние не определено: выбор выполняет Conflict Resolver по стратегии поля.
// Возвращает ErrInvalidChange при несовпадении типов.
func MergeCRDT(local, remote FieldValue) (FieldValue, error) {
	if local.Kind != remote.Kind {
		return FieldValue{}, fmt.Errorf("%w: kind mismatch %q vs %q",
			ErrInvalidChange, local.Kind, remote.Kind)
	}
	if err := local.Validate(); err != nil {
		return FieldValue{}, err
	}
	if err := remote.Validate(); err != nil {
		return FieldValue{}, err
	}

	switch local.Kind {
	case FieldKindRegister:
		return RegisterValue(local.Register.Merge(*remote.Register)), nil
	case FieldKindCounter:
		return CounterValue(local.Counter.Merge(*remote.Counter)), nil
	case FieldKindPNCounter:
		return PNCounterValue(local.PNCounter.Merge(*remote.PNCounter)), nil
	case FieldKindSet:
		return SetValue(local.Set.Merge(*remote.Set)), nil
	default:
		return FieldValue{}, fmt.Errorf("%w: scalar fields have no CRDT merge", ErrInvalidChange)
	}
}
