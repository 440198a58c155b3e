// Package filter holds the two representations of tag filtering: the raw
// boundary Filter as submitted by the caller, and the compiled Predicate
// that has survived validation against the knowledge-base tag catalogs.
// Only predicates reach the storage layer.
package filter

import (
	"fmt"

	"github.com/hexleaf/kbsearch/internal/domain/tag"
)

// Filter is one raw filter condition from the request body. The tag name
// is the per-KB display name, not a slot key; resolution happens during
// compilation.
type Filter struct {
	TagName  string
	Operator tag.Operator
	Value    string
	ValueTo  string
}

// Predicate is a single validated condition bound to a typed slot.
// Constructed only through the typed New* constructors.
type Predicate struct {
	slot      tag.Slot
	fieldType tag.FieldType
	op        tag.Operator

	text  string
	num   float64
	numTo float64
	hasTo bool
}

// NewText builds a text predicate.
func NewText(slot tag.Slot, op tag.Operator, value string) (Predicate, error) {
	if slot.Type() != tag.TypeText {
		return Predicate{}, fmt.Errorf("slot %q is not a text slot", slot)
	}
	if !tag.TypeText.Allows(op) {
		return Predicate{}, fmt.Errorf("operator %q not supported for text tags", op)
	}
	if value == "" {
		return Predicate{}, fmt.Errorf("text predicate requires a value")
	}
	return Predicate{slot: slot, fieldType: tag.TypeText, op: op, text: value}, nil
}

// NewNumber builds a numeric predicate. to is read only for between.
func NewNumber(slot tag.Slot, op tag.Operator, value float64, to ...float64) (Predicate, error) {
	if slot.Type() != tag.TypeNumber {
		return Predicate{}, fmt.Errorf("slot %q is not a number slot", slot)
	}
	return newRange(slot, tag.TypeNumber, op, value, to)
}

// NewDate builds a date predicate over Unix-second bounds. to is read
// only for between.
func NewDate(slot tag.Slot, op tag.Operator, value int64, to ...int64) (Predicate, error) {
	if slot.Type() != tag.TypeDate {
		return Predicate{}, fmt.Errorf("slot %q is not a date slot", slot)
	}
	var upper []float64
	if len(to) > 0 {
		upper = []float64{float64(to[0])}
	}
	return newRange(slot, tag.TypeDate, op, float64(value), upper)
}

func newRange(slot tag.Slot, ft tag.FieldType, op tag.Operator, value float64, to []float64) (Predicate, error) {
	if !ft.Allows(op) {
		return Predicate{}, fmt.Errorf("operator %q not supported for %s tags", op, ft)
	}
	p := Predicate{slot: slot, fieldType: ft, op: op, num: value}
	if op == tag.OpBetween {
		if len(to) == 0 {
			return Predicate{}, fmt.Errorf("between requires an upper bound")
		}
		p.numTo = to[0]
		p.hasTo = true
	}
	return p, nil
}

// NewBoolean builds a boolean predicate.
func NewBoolean(slot tag.Slot, op tag.Operator, value bool) (Predicate, error) {
	if slot.Type() != tag.TypeBoolean {
		return Predicate{}, fmt.Errorf("slot %q is not a boolean slot", slot)
	}
	if !tag.TypeBoolean.Allows(op) {
		return Predicate{}, fmt.Errorf("operator %q not supported for boolean tags", op)
	}
	p := Predicate{slot: slot, fieldType: tag.TypeBoolean, op: op, text: "false"}
	if value {
		p.text = "true"
	}
	return p, nil
}

func (p Predicate) Slot() tag.Slot           { return p.slot }
func (p Predicate) FieldType() tag.FieldType { return p.fieldType }
func (p Predicate) Operator() tag.Operator   { return p.op }

// Text returns the comparison value for text and boolean predicates.
func (p Predicate) Text() string { return p.text }

// Number returns the lower bound for numeric and date predicates, and
// whether an upper bound is present.
func (p Predicate) Number() (value, to float64, hasTo bool) {
	return p.num, p.numTo, p.hasTo
}

// Group is the set of predicates bound to one slot. Members are
// alternatives: a chunk matches the group if any predicate matches.
type Group struct {
	slot       tag.Slot
	predicates []Predicate
}

func (g Group) Slot() tag.Slot          { return g.slot }
func (g Group) Predicates() []Predicate { return g.predicates }

// Set is the compiled form of a request's filters: groups keyed by slot,
// in first-seen order. Groups are conjunctive; a chunk must match every
// group.
type Set struct {
	order  []tag.Slot
	groups map[tag.Slot]*Group
}

// NewSet returns an empty predicate set.
func NewSet() *Set {
	return &Set{groups: make(map[tag.Slot]*Group)}
}

// Add appends a predicate to its slot's group, creating the group on
// first sight of the slot.
func (s *Set) Add(p Predicate) {
	g, ok := s.groups[p.slot]
	if !ok {
		g = &Group{slot: p.slot}
		s.groups[p.slot] = g
		s.order = append(s.order, p.slot)
	}
	g.predicates = append(g.predicates, p)
}

// IsEmpty reports whether no predicates survived compilation.
func (s *Set) IsEmpty() bool { return s == nil || len(s.order) == 0 }

// Len returns the total predicate count across groups.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, slot := range s.order {
		n += len(s.groups[slot].predicates)
	}
	return n
}

// Groups returns the groups in first-seen slot order.
func (s *Set) Groups() []Group {
	if s == nil {
		return nil
	}
	out := make([]Group, 0, len(s.order))
	for _, slot := range s.order {
		out = append(out, *s.groups[slot])
	}
	return out
}
