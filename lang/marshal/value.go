package marshal

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/mna/nenuphar/lang/machine"
)

// writeValue dispatches on v's kind, applying the registry (C3), the
// reference table (C2), and the per-kind wire body (C4) in that order.
func (w *Writer) writeValue(v machine.Value) error {
	if err := w.enter(); err != nil {
		return err
	}
	defer w.leave()

	switch t := v.(type) {
	case machine.NilType:
		w.buf = append(w.buf, lbNil)
		return nil
	case machine.Bool:
		if t {
			w.buf = append(w.buf, lbTrue)
		} else {
			w.buf = append(w.buf, lbFalse)
		}
		return nil
	case machine.Float:
		return w.writeNumber(t)
	}

	if name, ok := w.registry.nameOf(v); ok {
		w.buf = append(w.buf, lbRegistry)
		w.buf = writeVarint(w.buf, int32(len(name)))
		w.buf = append(w.buf, name...)
		w.refIDs[v] = w.nextID
		w.nextID++
		return nil
	}

	switch t := v.(type) {
	case machine.String:
		if id, ok := w.refIDs[v]; ok {
			w.writeRef(id)
			return nil
		}
		w.buf = append(w.buf, lbString)
		w.buf = writeVarint(w.buf, int32(len(t)))
		w.buf = append(w.buf, t...)
		w.refIDs[v] = w.nextID
		w.nextID++
		return nil

	case machine.Symbol:
		if id, ok := w.refIDs[v]; ok {
			w.writeRef(id)
			return nil
		}
		w.buf = append(w.buf, lbSymbol)
		w.buf = writeVarint(w.buf, int32(len(t)))
		w.buf = append(w.buf, t...)
		w.refIDs[v] = w.nextID
		w.nextID++
		return nil

	case machine.Keyword:
		if id, ok := w.refIDs[v]; ok {
			w.writeRef(id)
			return nil
		}
		w.buf = append(w.buf, lbKeyword)
		w.buf = writeVarint(w.buf, int32(len(t)))
		w.buf = append(w.buf, t...)
		w.refIDs[v] = w.nextID
		w.nextID++
		return nil

	case *machine.Tuple:
		key := contentKey(t)
		if id, ok := w.structuralIDs[key]; ok {
			w.writeRef(id)
			return nil
		}
		w.buf = append(w.buf, lbTuple)
		elems := t.Elems()
		w.buf = writeVarint(w.buf, int32(len(elems)))
		w.buf = writeVarint(w.buf, int32(t.Flag))
		for _, e := range elems {
			if err := w.writeValue(e); err != nil {
				return err
			}
		}
		// acyclic-from-outside: mark after the body (§4.2)
		w.structuralIDs[key] = w.nextID
		w.nextID++
		return nil

	case *machine.Struct:
		key := contentKey(t)
		if id, ok := w.structuralIDs[key]; ok {
			w.writeRef(id)
			return nil
		}
		w.buf = append(w.buf, lbStruct)
		items := t.Items()
		w.buf = writeVarint(w.buf, int32(len(items)))
		for _, it := range items {
			if err := w.writeValue(it.Index(0)); err != nil {
				return err
			}
			if err := w.writeValue(it.Index(1)); err != nil {
				return err
			}
		}
		w.structuralIDs[key] = w.nextID
		w.nextID++
		return nil

	case *machine.Array:
		if id, ok := w.refIDs[v]; ok {
			w.writeRef(id)
			return nil
		}
		w.buf = append(w.buf, lbArray)
		// cyclic-capable: mark before the body (§4.2)
		w.refIDs[v] = w.nextID
		w.nextID++
		n := t.Len()
		w.buf = writeVarint(w.buf, int32(n))
		for i := 0; i < n; i++ {
			if err := w.writeValue(t.Index(i)); err != nil {
				return err
			}
		}
		return nil

	case *machine.Map:
		if id, ok := w.refIDs[v]; ok {
			w.writeRef(id)
			return nil
		}
		if t.Proto != nil {
			w.buf = append(w.buf, lbTableProto)
		} else {
			w.buf = append(w.buf, lbTable)
		}
		w.refIDs[v] = w.nextID
		w.nextID++
		items := t.Items()
		w.buf = writeVarint(w.buf, int32(len(items)))
		if t.Proto != nil {
			if err := w.writeValue(t.Proto); err != nil {
				return err
			}
		}
		for _, it := range items {
			if err := w.writeValue(it.Index(0)); err != nil {
				return err
			}
			if err := w.writeValue(it.Index(1)); err != nil {
				return err
			}
		}
		return nil

	case *machine.Buffer:
		if id, ok := w.refIDs[v]; ok {
			w.writeRef(id)
			return nil
		}
		w.buf = append(w.buf, lbBuffer)
		w.refIDs[v] = w.nextID
		w.nextID++
		data := t.Bytes()
		w.buf = writeVarint(w.buf, int32(len(data)))
		w.buf = append(w.buf, data...)
		return nil

	case *machine.Function:
		if id, ok := w.refIDs[v]; ok {
			w.writeRef(id)
			return nil
		}
		w.buf = append(w.buf, lbFunction)
		if err := w.writeFuncdefTree(t.Funcode, t.Module); err != nil {
			return err
		}
		// acyclic-from-outside as a value, but marked only after the
		// definition so the function can appear in its own envs.
		w.refIDs[v] = w.nextID
		w.nextID++
		for _, env := range t.Envs {
			if err := w.writeFuncenv(env); err != nil {
				return err
			}
		}
		return nil

	case *machine.Coroutine:
		if id, ok := w.refIDs[v]; ok {
			w.writeRef(id)
			return nil
		}
		w.buf = append(w.buf, lbFiber)
		w.refIDs[v] = w.nextID
		w.nextID++
		return w.writeCoroutineBody(t)

	case *machine.Abstract:
		if id, ok := w.refIDs[v]; ok {
			w.writeRef(id)
			return nil
		}
		at := w.abstractReg.Lookup(t.TypeName)
		if at == nil {
			return errUnregisteredAbstractType(t.TypeName)
		}
		payload, err := at.Marshal(t.Data)
		if err != nil {
			return err
		}
		w.buf = append(w.buf, lbAbstract)
		if err := w.writeValue(machine.Keyword(t.TypeName)); err != nil {
			return err
		}
		w.buf = writeVarint(w.buf, int32(len(payload)))
		w.refIDs[v] = w.nextID
		w.nextID++
		w.buf = append(w.buf, payload...)
		return nil

	default:
		return fmt.Errorf("marshal: unsupported value kind %T", v)
	}
}

// writeNumber implements the integer fast path and the LB_REAL path (§4.4).
func (w *Writer) writeNumber(f machine.Float) error {
	fv := float64(f)
	if fv == math.Trunc(fv) && fv >= math.MinInt32 && fv <= math.MaxInt32 && !math.Signbit(fv) == (fv >= 0) {
		w.buf = writeVarint(w.buf, int32(fv))
		return nil
	}
	if id, ok := w.refIDs[f]; ok {
		w.writeRef(id)
		return nil
	}
	w.buf = append(w.buf, lbReal)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(fv))
	w.buf = append(w.buf, b[:]...)
	w.refIDs[f] = w.nextID
	w.nextID++
	return nil
}

// contentKey computes a structural-equality key for the value kinds the
// reference table dedups by content rather than allocation identity
// (§4.2). It always terminates: tuples and structs cannot cycle back to
// themselves directly (only through a cyclic-capable container, which this
// falls back to keying by pointer).
func contentKey(v machine.Value) string {
	switch t := v.(type) {
	case machine.String:
		return "s:" + string(t)
	case machine.Symbol:
		return "y:" + string(t)
	case machine.Keyword:
		return "k:" + string(t)
	case machine.Float:
		return fmt.Sprintf("n:%v", float64(t))
	case machine.NilType:
		return "nil"
	case machine.Bool:
		return fmt.Sprintf("b:%v", bool(t))
	case *machine.Tuple:
		var sb strings.Builder
		sb.WriteString("t[")
		for _, e := range t.Elems() {
			sb.WriteString(contentKey(e))
			sb.WriteByte(',')
		}
		sb.WriteByte(']')
		return sb.String()
	case *machine.Struct:
		var sb strings.Builder
		sb.WriteString("u[")
		for _, it := range t.Items() {
			sb.WriteString(contentKey(it.Index(0)))
			sb.WriteByte('=')
			sb.WriteString(contentKey(it.Index(1)))
			sb.WriteByte(',')
		}
		sb.WriteByte(']')
		return sb.String()
	default:
		return fmt.Sprintf("id:%p", v)
	}
}

// readValue is the mirror of writeValue.
func (r *Reader) readValue() (machine.Value, error) {
	if err := r.enter(); err != nil {
		return nil, err
	}
	defer r.leave()

	if r.off >= len(r.data) {
		return nil, errUnexpectedEnd(r.off)
	}
	b := r.data[r.off]

	if b < 0xc0 {
		v, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next
		return machine.Float(v), nil
	}

	switch b {
	case lbReal:
		r.off++
		if r.off+8 > len(r.data) {
			return nil, errUnexpectedEnd(r.off)
		}
		bits := binary.LittleEndian.Uint64(r.data[r.off : r.off+8])
		r.off += 8
		f := machine.Float(math.Float64frombits(bits))
		r.refs = append(r.refs, f)
		return f, nil

	case lbNil:
		r.off++
		return machine.Nil, nil

	case lbFalse:
		r.off++
		return machine.False, nil

	case lbTrue:
		r.off++
		return machine.True, nil

	case lbFiber:
		r.off++
		id := len(r.refs)
		co := &machine.Coroutine{}
		r.refs = append(r.refs, co)
		if err := r.readCoroutineBody(co); err != nil {
			return nil, err
		}
		r.refs[id] = co
		return co, nil

	case lbIntegerLead:
		v, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next
		return machine.Float(v), nil

	case lbString:
		r.off++
		n, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next
		if n < 0 || r.off+int(n) > len(r.data) {
			return nil, errUnexpectedEnd(r.off)
		}
		s := machine.String(r.data[r.off : r.off+int(n)])
		r.off += int(n)
		r.refs = append(r.refs, s)
		return s, nil

	case lbSymbol:
		r.off++
		n, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next
		if n < 0 || r.off+int(n) > len(r.data) {
			return nil, errUnexpectedEnd(r.off)
		}
		s := machine.Symbol(r.data[r.off : r.off+int(n)])
		r.off += int(n)
		r.refs = append(r.refs, s)
		return s, nil

	case lbKeyword:
		r.off++
		n, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next
		if n < 0 || r.off+int(n) > len(r.data) {
			return nil, errUnexpectedEnd(r.off)
		}
		k := machine.Keyword(r.data[r.off : r.off+int(n)])
		r.off += int(n)
		r.refs = append(r.refs, k)
		return k, nil

	case lbArray:
		r.off++
		n, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next
		arr := machine.NewArray(make([]machine.Value, 0, maxPrealloc(n)))
		r.refs = append(r.refs, arr)
		for i := int32(0); i < n; i++ {
			ev, err := r.readValue()
			if err != nil {
				return nil, err
			}
			if err := arr.Append(ev); err != nil {
				return nil, err
			}
		}
		return arr, nil

	case lbTuple:
		r.off++
		n, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next
		flag, next2, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next2
		if n < 0 {
			return nil, r.errNegativeCount()
		}
		elems := make([]machine.Value, n)
		for i := range elems {
			ev, err := r.readValue()
			if err != nil {
				return nil, err
			}
			elems[i] = ev
		}
		t := machine.NewTuple(elems)
		t.Flag = uint16(flag)
		r.refs = append(r.refs, t)
		return t, nil

	case lbTable, lbTableProto:
		hasProto := b == lbTableProto
		r.off++
		n, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next
		m := machine.NewMap(maxPrealloc(n))
		r.refs = append(r.refs, m)
		if hasProto {
			pv, err := r.readValue()
			if err != nil {
				return nil, err
			}
			proto, ok := pv.(*machine.Map)
			if !ok {
				return nil, errExpectedType(r.off, "table", pv.Type())
			}
			m.Proto = proto
		}
		for i := int32(0); i < n; i++ {
			k, err := r.readValue()
			if err != nil {
				return nil, err
			}
			v, err := r.readValue()
			if err != nil {
				return nil, err
			}
			if err := m.SetKey(k, v); err != nil {
				return nil, err
			}
		}
		return m, nil

	case lbStruct:
		r.off++
		n, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next
		if n < 0 {
			return nil, r.errNegativeCount()
		}
		keys := make([]machine.Value, n)
		vals := make([]machine.Value, n)
		for i := int32(0); i < n; i++ {
			k, err := r.readValue()
			if err != nil {
				return nil, err
			}
			v, err := r.readValue()
			if err != nil {
				return nil, err
			}
			keys[i], vals[i] = k, v
		}
		s := machine.NewStruct(keys, vals)
		r.refs = append(r.refs, s)
		return s, nil

	case lbBuffer:
		r.off++
		n, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next
		if n < 0 || r.off+int(n) > len(r.data) {
			return nil, errUnexpectedEnd(r.off)
		}
		data := append([]byte(nil), r.data[r.off:r.off+int(n)]...)
		r.off += int(n)
		buf := machine.NewBuffer(data)
		r.refs = append(r.refs, buf)
		return buf, nil

	case lbFunction:
		r.off++
		id := len(r.refs)
		r.refs = append(r.refs, nil)
		fn, err := r.readFunction(id)
		if err != nil {
			return nil, err
		}
		return fn, nil

	case lbRegistry:
		r.off++
		n, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next
		if n < 0 || r.off+int(n) > len(r.data) {
			return nil, errUnexpectedEnd(r.off)
		}
		name := string(r.data[r.off : r.off+int(n)])
		r.off += int(n)
		v, ok := r.registry.valueOf(name)
		if !ok {
			v = machine.Nil
		}
		r.refs = append(r.refs, v)
		return v, nil

	case lbAbstract:
		r.off++
		nameV, err := r.readValue()
		if err != nil {
			return nil, err
		}
		kw, ok := nameV.(machine.Keyword)
		if !ok {
			return nil, errExpectedType(r.off, "keyword", nameV.Type())
		}
		sz, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next
		at := r.abstractReg.Lookup(string(kw))
		if at == nil {
			return nil, errUnregisteredAbstractType(string(kw))
		}
		if sz < 0 || r.off+int(sz) > len(r.data) {
			return nil, errUnexpectedEnd(r.off)
		}
		payload := r.data[r.off : r.off+int(sz)]
		r.off += int(sz)
		data, err := at.Unmarshal(payload)
		if err != nil {
			return nil, err
		}
		a := &machine.Abstract{TypeName: string(kw), Data: data}
		r.refs = append(r.refs, a)
		return a, nil

	case lbReference:
		r.off++
		id, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next
		if id < 0 || int(id) >= len(r.refs) || r.refs[id] == nil {
			return nil, errInvalidReference(r.off, id)
		}
		return r.refs[id], nil

	default:
		return nil, errUnknownLeadByte(r.off, b)
	}
}

func maxPrealloc(n int32) int {
	if n < 0 || n > 1<<20 {
		return 0
	}
	return int(n)
}
