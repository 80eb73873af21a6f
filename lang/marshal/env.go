package marshal

import "github.com/mna/nenuphar/lang/machine"

// keyValue and keyRef are the two slots an environment entry may carry: a
// resolved value, or an on-stack reference cell that must be dereferenced
// through keyValue first. Mirrors marsh.c's :value/:ref entry shape.
const (
	keyValue = machine.Keyword("value")
	keyRef   = machine.Keyword("ref")
)

// EnvLookup flattens an environment's prototype chain (C4.7) into a single
// table, the way marsh.c's janet_env_lookup builds its forward lookup table
// before marshaling a function's closure. env.Proto already provides
// fallthrough lookup on Get, but a marshaled closure needs the flattened
// table itself, not just lookup behavior, so each binding is resolved here
// into one flat *machine.Map.
//
// For each binding found while walking the chain (closest scope first),
// entry_getval's rule applies: if the bound value is itself a table or
// struct carrying a :value entry, that takes precedence over a :ref entry
// referencing an outer cell.
func EnvLookup(env *machine.Map) *machine.Map {
	out := machine.NewMap(1)
	seen := make(map[machine.Value]bool)

	for e := env; e != nil; e = e.Proto {
		for _, kv := range e.Items() {
			k, v := kv.Index(0), kv.Index(1)
			if seen[k] {
				continue
			}
			seen[k] = true
			_ = out.SetKey(k, entryGetval(v))
		}
	}
	return out
}

// entryGetval resolves one environment entry the way marsh.c's
// entry_getval does: a bare value is returned as-is, but a table or struct
// entry representing a captured binding prefers its :value slot over its
// :ref slot.
func entryGetval(entry machine.Value) machine.Value {
	switch e := entry.(type) {
	case *machine.Map:
		if v, ok, _ := e.Get(keyValue); ok {
			return v
		}
		if v, ok, _ := e.Get(keyRef); ok {
			return v
		}
		return entry
	case *machine.Struct:
		if v, ok, _ := e.Get(keyValue); ok {
			return v
		}
		if v, ok, _ := e.Get(keyRef); ok {
			return v
		}
		return entry
	default:
		return entry
	}
}
