package marshal

import (
	"github.com/mna/nenuphar/lang/compiler"
	"github.com/mna/nenuphar/lang/machine"
)

// Lead byte assignments (§4.4). All are >= 200; a byte below 200 is always
// the first byte of a varint integer (§4.1).
const (
	lbReal        = 200
	lbNil         = 201
	lbFalse       = 202
	lbTrue        = 203
	lbFiber       = 204
	lbIntegerLead = lbInteger // 205, shared with the varint codec
	lbString      = 206
	lbSymbol      = 207
	lbKeyword     = 208
	lbArray       = 209
	lbTuple       = 210
	lbTable       = 211
	lbTableProto  = 212
	lbStruct      = 213
	lbBuffer      = 214
	lbFunction    = 215
	lbRegistry    = 216
	lbAbstract    = 217
	lbReference   = 218
	lbFuncEnvRef  = 219
	lbFuncDefRef  = 220
)

// recursionGuard bounds the depth of nested writeValue/readValue calls. The
// original tracks this in the low bits of a packed flags word; a plain
// counter on the Writer/Reader is the more natural Go shape for the same
// bound.
const recursionGuard = 1024

// Writer holds the state for a single marshal call: the output buffer, the
// reference table (C2), the registry (C3), and the function-definition and
// environment interning vectors (C5). A Writer is single-use.
type Writer struct {
	buf []byte

	registry    *Registry
	abstractReg *machine.AbstractRegistry

	// refIDs dedups by native Go equality, which is content equality for
	// String/Symbol/Keyword/Float and identity equality for pointer-backed
	// kinds (*Array, *Map, *Buffer, *Function, *Coroutine, *Abstract) —
	// exactly the split §4.2 requires.
	refIDs map[machine.Value]int32
	// structuralIDs dedups *Tuple/*Struct by content, since Go compares
	// pointers for these rather than their elements.
	structuralIDs map[string]int32
	nextID        int32

	defs    map[*compiler.Funcode]int32
	defList []*compiler.Funcode

	envs    map[*machine.FuncEnv]int32
	envList []*machine.FuncEnv

	depth int
}

func newWriter(reg *Registry, abstractReg *machine.AbstractRegistry) *Writer {
	return &Writer{
		registry:      reg,
		abstractReg:   abstractReg,
		refIDs:        make(map[machine.Value]int32),
		structuralIDs: make(map[string]int32),
		defs:          make(map[*compiler.Funcode]int32),
		envs:          make(map[*machine.FuncEnv]int32),
	}
}

func (w *Writer) enter() error {
	w.depth++
	if w.depth > recursionGuard {
		w.depth--
		return errRecursionDepthExceeded()
	}
	return nil
}

func (w *Writer) leave() { w.depth-- }

func (w *Writer) writeRef(id int32) {
	w.buf = append(w.buf, lbReference)
	w.buf = writeVarint(w.buf, id)
}

// Reader holds the state for a single unmarshal call: the input buffer and
// cursor, the reference table's inverse (C2), the registry (C3), and the
// mirror def/env interning vectors (C5). A Reader is single-use.
type Reader struct {
	data []byte
	off  int

	registry    *Registry
	abstractReg *machine.AbstractRegistry

	refs []machine.Value

	defs    []*compiler.Funcode
	defMods []*machine.Module
	envs    []*machine.FuncEnv

	depth int
}

func newReader(data []byte, reg *Registry, abstractReg *machine.AbstractRegistry) *Reader {
	return &Reader{data: data, registry: reg, abstractReg: abstractReg}
}

func (r *Reader) enter() error {
	r.depth++
	if r.depth > recursionGuard {
		r.depth--
		return errRecursionDepthExceeded()
	}
	return nil
}

func (r *Reader) leave() { r.depth-- }

// errNegativeCount builds the expected-integer error for a count just read
// at r.off that turned out negative. It must not index r.data[r.off] blindly
// for the diagnostic byte: the count's own varint may have been the last
// thing in the buffer, leaving r.off == len(r.data), in which case there is
// no byte to show and the failure is really that the source ended where a
// body was expected.
func (r *Reader) errNegativeCount() error {
	if r.off < len(r.data) {
		return errExpectedInteger(r.off, r.data[r.off])
	}
	return errUnexpectedEnd(r.off)
}

// Marshal encodes v to its binary form. reg, if non-nil, lets well-known
// values be substituted by name instead of serialized.
func Marshal(v machine.Value, reg *Registry) ([]byte, error) {
	return MarshalAbstract(v, reg, nil)
}

// MarshalAbstract is Marshal with an additional registry of host-defined
// abstract types, consulted whenever a *machine.Abstract value is
// encountered.
func MarshalAbstract(v machine.Value, reg *Registry, abstractReg *machine.AbstractRegistry) ([]byte, error) {
	w := newWriter(reg, abstractReg)
	if err := w.writeValue(v); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// Unmarshal decodes one value starting at offset 0 of data, returning the
// value and the remainder of data starting at the first unconsumed byte.
func Unmarshal(data []byte, reg *Registry) (machine.Value, []byte, error) {
	return UnmarshalAbstract(data, reg, nil)
}

// UnmarshalAbstract is Unmarshal with an additional registry of host-defined
// abstract types.
func UnmarshalAbstract(data []byte, reg *Registry, abstractReg *machine.AbstractRegistry) (machine.Value, []byte, error) {
	r := newReader(data, reg, abstractReg)
	v, err := r.readValue()
	if err != nil {
		return nil, nil, err
	}
	return v, data[r.off:], nil
}
