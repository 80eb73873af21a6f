package machine

import "fmt"

// An Abstract value wraps a host-registered opaque type: a payload that the
// machine itself does not know how to interpret, only how to carry around and
// hand off to the type's own marshal/unmarshal hooks.
type Abstract struct {
	TypeName string
	Data     any
}

var _ Value = (*Abstract)(nil)

func (a *Abstract) String() string { return fmt.Sprintf("abstract(%s %p)", a.TypeName, a) }
func (a *Abstract) Type() string   { return "abstract" }

// AbstractType describes a host-registered opaque type: its wire name, the
// size (in bytes) of one instance on the wire, and the hooks used to encode
// and decode an instance's payload. Size is informative for the reader (it is
// written on the wire so a reader that does not recognize the type name could
// in principle skip the record), but this implementation always requires the
// type to be registered to decode it.
type AbstractType struct {
	Name      string
	Size      int
	Marshal   func(data any) ([]byte, error)
	Unmarshal func(payload []byte) (any, error)
}

// AbstractRegistry is a host-managed mapping from abstract type name to its
// hooks. The embedding host populates it before invoking the marshal
// subsystem; the core never mutates it.
type AbstractRegistry struct {
	types map[string]*AbstractType
}

// NewAbstractRegistry returns an empty registry.
func NewAbstractRegistry() *AbstractRegistry {
	return &AbstractRegistry{types: make(map[string]*AbstractType)}
}

// Register adds or replaces the hooks for the named abstract type.
func (r *AbstractRegistry) Register(t *AbstractType) {
	r.types[t.Name] = t
}

// Lookup returns the registered type by name, or nil if not registered.
func (r *AbstractRegistry) Lookup(name string) *AbstractType {
	if r == nil {
		return nil
	}
	return r.types[name]
}
