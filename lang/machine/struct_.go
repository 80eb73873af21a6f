package machine

import (
	"fmt"

	"github.com/mna/nenuphar/lang/token"
)

// A Struct is an immutable mapping from keys to values, preserving insertion
// order. Unlike a Map, a Struct cannot be mutated after creation and has no
// prototype; it is the immutable counterpart to Map the way Tuple is to
// Array.
type Struct struct {
	keys []Value
	vals []Value
}

var (
	_ Value           = (*Struct)(nil)
	_ Mapping         = (*Struct)(nil)
	_ IterableMapping = (*Struct)(nil)
	_ Iterable        = (*Struct)(nil)
)

// NewStruct returns a struct built from the given parallel keys and vals
// slices, preserving their order. Callers should not subsequently modify
// keys or vals.
func NewStruct(keys, vals []Value) *Struct {
	return &Struct{keys: keys, vals: vals}
}

func (s *Struct) String() string { return fmt.Sprintf("struct(%p)", s) }
func (s *Struct) Type() string   { return "struct" }
func (s *Struct) Len() int       { return len(s.keys) }

func (s *Struct) Get(k Value) (Value, bool, error) {
	for i, key := range s.keys {
		eq, err := Compare(token.EQL, key, k)
		if err != nil {
			return nil, false, err
		}
		if eq {
			return s.vals[i], true, nil
		}
	}
	return nil, false, nil
}

// Items returns the struct's (key, value) pairs in their stored order.
func (s *Struct) Items() []*Tuple {
	items := make([]*Tuple, len(s.keys))
	for i := range s.keys {
		items[i] = NewTuple([]Value{s.keys[i], s.vals[i]})
	}
	return items
}

func (s *Struct) Iterate() Iterator { return &structIterator{items: s.Items()} }

type structIterator struct {
	items []*Tuple
	i     int
}

func (it *structIterator) Next(p *Value) bool {
	if it.i >= len(it.items) {
		return false
	}
	*p = it.items[it.i]
	it.i++
	return true
}

func (it *structIterator) Done() {}
