package machine

import (
	"fmt"

	"github.com/dolthub/swiss"
)

// A Map represents a mutable mapping from keys to values (the "table" kind).
// A map may have an optional prototype map: when a key is missing, Get falls
// through to the prototype chain. If you know the exact final number of
// entries, it is more efficient to call NewMap with that size.
type Map struct {
	m     *swiss.Map[Value, Value]
	Proto *Map
}

var (
	_ Value           = (*Map)(nil)
	_ Mapping         = (*Map)(nil)
	_ IterableMapping = (*Map)(nil)
	_ HasSetKey       = (*Map)(nil)
	_ Iterable        = (*Map)(nil)
)

// An IterableMapping is a mapping that supports enumeration.
type IterableMapping interface {
	Mapping
	Iterate() Iterator
	Items() []*Tuple
}

// NewMap returns a map with initial capacity for at least size items.
func NewMap(size int) *Map {
	if size < 1 {
		size = 1
	}
	m := swiss.NewMap[Value, Value](uint32(size))
	return &Map{m: m}
}

func (m *Map) String() string { return fmt.Sprintf("map(%p)", m) }
func (m *Map) Type() string   { return "table" }
func (m *Map) Len() int       { return m.m.Count() }

func (m *Map) Get(k Value) (Value, bool, error) {
	if v, ok := m.m.Get(k); ok {
		return v, true, nil
	}
	if m.Proto != nil {
		return m.Proto.Get(k)
	}
	return nil, false, nil
}

func (m *Map) SetKey(k, v Value) error {
	m.m.Put(k, v)
	return nil
}

// Items returns a snapshot of the map's entries as (key, value) tuples. Order
// is implementation-defined.
func (m *Map) Items() []*Tuple {
	items := make([]*Tuple, 0, m.m.Count())
	m.m.Iter(func(k, v Value) bool {
		items = append(items, NewTuple([]Value{k, v}))
		return false
	})
	return items
}

func (m *Map) Iterate() Iterator {
	return &mapIterator{items: m.Items()}
}

type mapIterator struct {
	items []*Tuple
	i     int
}

func (it *mapIterator) Next(p *Value) bool {
	if it.i >= len(it.items) {
		return false
	}
	*p = it.items[it.i]
	it.i++
	return true
}

func (it *mapIterator) Done() {}
