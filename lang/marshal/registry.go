package marshal

import "github.com/mna/nenuphar/lang/machine"

// Registry is a caller-supplied, bidirectional mapping between well-known
// host values and symbolic names (C3). The writer consults it before
// falling through to the generic reference table, letting a host substitute
// a named built-in instead of serializing it; the reader resolves the name
// back to the host's own instance.
type Registry struct {
	byName  map[string]machine.Value
	byValue map[machine.Value]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]machine.Value),
		byValue: make(map[machine.Value]string),
	}
}

// Register associates name with v in both directions. v must be a kind with
// identity-stable equality (functions and abstract values are the typical
// case); registering a content-comparable kind such as a string works too,
// but then any other value sharing that content is also substituted.
func (r *Registry) Register(name string, v machine.Value) {
	r.byName[name] = v
	r.byValue[v] = name
}

func (r *Registry) nameOf(v machine.Value) (string, bool) {
	if r == nil {
		return "", false
	}
	n, ok := r.byValue[v]
	return n, ok
}

func (r *Registry) valueOf(name string) (machine.Value, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.byName[name]
	return v, ok
}
