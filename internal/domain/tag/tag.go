// Package tag models the fixed-width sparse attribute schema on chunks:
// a small set of generically typed slots whose human-meaningful names are
// defined per knowledge base by the tag catalog. The search engine treats
// slots as opaque typed columns.
package tag

import "fmt"

// FieldType enumerates the slot kinds.
type FieldType string

const (
	// TypeText is a free-text slot compared case-insensitively.
	TypeText FieldType = "text"
	// TypeNumber is a numeric slot.
	TypeNumber FieldType = "number"
	// TypeDate is a date slot (YYYY-MM-DD at the boundary, Unix seconds in storage).
	TypeDate FieldType = "date"
	// TypeBoolean is a true/false slot.
	TypeBoolean FieldType = "boolean"
)

// IsValid reports whether t is a known field type.
func (t FieldType) IsValid() bool {
	switch t {
	case TypeText, TypeNumber, TypeDate, TypeBoolean:
		return true
	}
	return false
}

// Slot counts per field type. Every chunk carries exactly this many typed
// columns; which of them are populated is up to the knowledge base.
const (
	TextSlotCount    = 7
	NumberSlotCount  = 5
	DateSlotCount    = 2
	BooleanSlotCount = 3
)

// Slot is an internal typed column identifier (e.g. "text3", "date1").
type Slot string

var slotTypes = buildSlotTypes()

func buildSlotTypes() map[Slot]FieldType {
	m := make(map[Slot]FieldType, TextSlotCount+NumberSlotCount+DateSlotCount+BooleanSlotCount)
	add := func(prefix string, n int, t FieldType) {
		for i := 1; i <= n; i++ {
			m[Slot(fmt.Sprintf("%s%d", prefix, i))] = t
		}
	}
	add("text", TextSlotCount, TypeText)
	add("number", NumberSlotCount, TypeNumber)
	add("date", DateSlotCount, TypeDate)
	add("boolean", BooleanSlotCount, TypeBoolean)
	return m
}

// ParseSlot validates a raw slot key against the fixed schema.
func ParseSlot(s string) (Slot, error) {
	if _, ok := slotTypes[Slot(s)]; !ok {
		return "", fmt.Errorf("unknown tag slot %q", s)
	}
	return Slot(s), nil
}

// Type returns the field type of a slot, or "" for an unknown slot.
func (s Slot) Type() FieldType {
	return slotTypes[s]
}

// Slots returns all slot keys of the given type, in schema order.
func Slots(t FieldType) []Slot {
	var prefix string
	var n int
	switch t {
	case TypeText:
		prefix, n = "text", TextSlotCount
	case TypeNumber:
		prefix, n = "number", NumberSlotCount
	case TypeDate:
		prefix, n = "date", DateSlotCount
	case TypeBoolean:
		prefix, n = "boolean", BooleanSlotCount
	default:
		return nil
	}
	out := make([]Slot, n)
	for i := range out {
		out[i] = Slot(fmt.Sprintf("%s%d", prefix, i+1))
	}
	return out
}

// AllSlots returns every slot key in the schema, in schema order.
func AllSlots() []Slot {
	var out []Slot
	for _, t := range []FieldType{TypeText, TypeNumber, TypeDate, TypeBoolean} {
		out = append(out, Slots(t)...)
	}
	return out
}

// Operator enumerates filter comparison operators.
type Operator string

const (
	OpEq          Operator = "eq"
	OpNeq         Operator = "neq"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpGT          Operator = "gt"
	OpGTE         Operator = "gte"
	OpLT          Operator = "lt"
	OpLTE         Operator = "lte"
	OpBetween     Operator = "between"
)

var operatorsByType = map[FieldType]map[Operator]struct{}{
	TypeText: {
		OpEq: {}, OpNeq: {}, OpContains: {}, OpNotContains: {},
		OpStartsWith: {}, OpEndsWith: {},
	},
	TypeNumber: {
		OpEq: {}, OpNeq: {}, OpGT: {}, OpGTE: {}, OpLT: {}, OpLTE: {}, OpBetween: {},
	},
	TypeDate: {
		OpEq: {}, OpNeq: {}, OpGT: {}, OpGTE: {}, OpLT: {}, OpLTE: {}, OpBetween: {},
	},
	TypeBoolean: {
		OpEq: {}, OpNeq: {},
	},
}

// Allows reports whether op is legal for the field type.
func (t FieldType) Allows(op Operator) bool {
	ops, ok := operatorsByType[t]
	if !ok {
		return false
	}
	_, ok = ops[op]
	return ok
}

// Definition maps a user-facing filter name to a typed slot for one
// knowledge base. Produced by the tag catalog.
type Definition struct {
	Slot        Slot
	DisplayName string
	FieldType   FieldType
}

// Validate checks the definition for internal consistency.
func (d Definition) Validate() error {
	if d.DisplayName == "" {
		return fmt.Errorf("tag definition requires a display name")
	}
	if !d.FieldType.IsValid() {
		return fmt.Errorf("tag %q: invalid field type %q", d.DisplayName, d.FieldType)
	}
	if d.Slot.Type() != d.FieldType {
		return fmt.Errorf("tag %q: slot %q is not a %s slot", d.DisplayName, d.Slot, d.FieldType)
	}
	return nil
}
