package marshal

import (
	"encoding/binary"
	"fmt"

	"github.com/mna/nenuphar/lang/compiler"
	"github.com/mna/nenuphar/lang/machine"
)

// Function-definition feature flags (§4.5 item 1), packed into one varint.
// HASVARARGS/HASKWARGS/HASDEFERS/HASCATCHES extend the distilled spec's
// five flags with per-function metadata this VM needs at runtime that the
// generic data model doesn't name (see DESIGN.md).
const (
	fdHasName      = 1 << 0
	fdHasSource    = 1 << 1
	fdHasEnvs      = 1 << 2
	fdHasSourceMap = 1 << 3
	fdHasVarargs   = 1 << 4
	fdHasKwargs    = 1 << 5
	fdHasDefers    = 1 << 6
	fdHasCatches   = 1 << 7
)

// insn is one decoded bytecode instruction: an opcode plus its argument, if
// any (arguments are always absent for opcodes below compiler.OpcodeArgMin).
type insn struct {
	op  compiler.Opcode
	arg uint32
}

// decodeInsns walks a Funcode's variable-width bytecode, mirroring
// compiler.NestedFuncodes' walk but yielding every instruction (not just
// MAKEFUNC targets), since the wire format repacks each one into a fixed
// 4-byte word (§4.5's "bytecode word bridging", see DESIGN.md).
func decodeInsns(code []byte) ([]insn, error) {
	var out []insn
	addr := 0
	for addr < len(code) {
		op := compiler.Opcode(code[addr])
		addr++
		var arg uint32
		if op >= compiler.OpcodeArgMin {
			v, n := binary.Uvarint(code[addr:])
			if n <= 0 {
				return nil, errInvalidBytecode(addr)
			}
			arg = uint32(v)
			if isJumpOp(op) && n < 4 {
				n = 4
			}
			addr += n
		}
		out = append(out, insn{op: op, arg: arg})
	}
	return out, nil
}

func isJumpOp(op compiler.Opcode) bool {
	return op >= compiler.JMP && op <= compiler.CATCHJMP
}

// encodeInsns is the inverse of decodeInsns, rebuilding the internal
// variable-width bytecode from a flat instruction list, mirroring
// compiler/opcode.go's encodeInsn (unexported there, so reimplemented here).
func encodeInsns(insns []insn) []byte {
	var code []byte
	for _, in := range insns {
		code = append(code, byte(in.op))
		if in.op < compiler.OpcodeArgMin {
			continue
		}
		if isJumpOp(in.op) {
			code = appendPaddedUvarint(code, in.arg, 4)
		} else {
			code = appendUvarint(code, in.arg)
		}
	}
	return code
}

func appendUvarint(code []byte, x uint32) []byte {
	for x >= 0x80 {
		code = append(code, byte(x)|0x80)
		x >>= 7
	}
	return append(code, byte(x))
}

func appendPaddedUvarint(code []byte, x uint32, n int) []byte {
	for i := 0; i < n-1; i++ {
		code = append(code, byte(x)|0x80)
		x >>= 7
	}
	return append(code, byte(x))
}

const wireArgMask = 0xFFFFFF // 24 bits of argument per packed word

func packWord(op compiler.Opcode, arg uint32) (uint32, error) {
	if arg > wireArgMask {
		return 0, fmt.Errorf("marshal: instruction argument %d exceeds the 24-bit wire limit", arg)
	}
	return uint32(op) | arg<<8, nil
}

func unpackWord(w uint32) (compiler.Opcode, uint32) {
	return compiler.Opcode(w & 0xff), w >> 8
}

// usesName reports whether op's argument indexes Program.Names.
func usesName(op compiler.Opcode) bool {
	switch op {
	case compiler.ATTR, compiler.SETFIELD, compiler.PREDECLARED, compiler.UNIVERSAL:
		return true
	default:
		return false
	}
}

// funcTree holds the result of walking a function-definition tree once,
// before any bytes are written: every funcode reachable from root through
// MAKEFUNC (Program.Functions is one flat pool shared by every function
// compiled from the same unit, not a per-function list — see DESIGN.md),
// and the names/constants any of them reference, each deduped in discovery
// order. Remapping MAKEFUNC/ATTR-like/CONSTANT arguments to positions in
// these lists is what lets the wire form avoid re-embedding the shared pool
// once per function.
type funcTree struct {
	mod      *machine.Module // shared by every funcode in the tree
	pool     []*compiler.Funcode // everything reachable, excluding root
	poolIdx  map[*compiler.Funcode]int32
	names    []string
	nameIdx  map[string]int32
	consts   []machine.Value
	constIdx map[machine.Value]int32
}

func discoverFuncTree(root *compiler.Funcode, mod *machine.Module) (*funcTree, error) {
	t := &funcTree{
		mod:      mod,
		poolIdx:  make(map[*compiler.Funcode]int32),
		nameIdx:  make(map[string]int32),
		constIdx: make(map[machine.Value]int32),
	}
	visited := map[*compiler.Funcode]bool{root: true}
	order := []*compiler.Funcode{root}
	for i := 0; i < len(order); i++ {
		fn := order[i]
		for _, target := range compiler.NestedFuncodes(fn) {
			if !visited[target] {
				visited[target] = true
				order = append(order, target)
			}
		}
		insns, err := decodeInsns(fn.Code)
		if err != nil {
			return nil, err
		}
		for _, in := range insns {
			switch {
			case usesName(in.op):
				nm := fn.Prog.Names[in.arg]
				if _, ok := t.nameIdx[nm]; !ok {
					t.nameIdx[nm] = int32(len(t.names))
					t.names = append(t.names, nm)
				}
			case in.op == compiler.CONSTANT:
				cv := mod.Constants[in.arg]
				if _, ok := t.constIdx[cv]; !ok {
					t.constIdx[cv] = int32(len(t.consts))
					t.consts = append(t.consts, cv)
				}
			}
		}
	}
	t.pool = order[1:]
	for i, fn := range t.pool {
		t.poolIdx[fn] = int32(i)
	}
	return t, nil
}

// writeFuncdefTree implements the embedded-definition protocol (§4.5),
// adapted so the Names/Constants/Functions pools Program/Module share
// across an entire compiled unit (see machine.go's MAKEFUNC, which always
// hands the new closure its creator's Module) are written once per tree
// rather than once per function.
func (w *Writer) writeFuncdefTree(root *compiler.Funcode, mod *machine.Module) error {
	if err := w.enter(); err != nil {
		return err
	}
	defer w.leave()

	if id, ok := w.defs[root]; ok {
		w.buf = append(w.buf, lbFuncDefRef)
		w.buf = writeVarint(w.buf, id)
		return nil
	}
	id := int32(len(w.defList))
	w.defs[root] = id
	w.defList = append(w.defList, root)

	tree, err := discoverFuncTree(root, mod)
	if err != nil {
		return err
	}

	w.buf = writeVarint(w.buf, int32(len(tree.names)))
	for _, nm := range tree.names {
		if err := w.writeValue(machine.String(nm)); err != nil {
			return err
		}
	}
	w.buf = writeVarint(w.buf, int32(len(tree.consts)))
	for _, cv := range tree.consts {
		if err := w.writeValue(cv); err != nil {
			return err
		}
	}
	w.buf = writeVarint(w.buf, int32(len(tree.pool)))

	if err := w.writeFuncdefBody(root, tree); err != nil {
		return err
	}
	for _, fn := range tree.pool {
		if err := w.writeFuncdefBody(fn, tree); err != nil {
			return err
		}
	}
	return nil
}

// writeFuncdefBody writes one funcode's own fields (flags, arity, locals,
// bytecode, env indices, defer/catch tables, source map). It never recurses
// into nested definitions: those are already flattened into tree.pool by
// writeFuncdefTree.
func (w *Writer) writeFuncdefBody(fn *compiler.Funcode, tree *funcTree) error {
	insns, err := decodeInsns(fn.Code)
	if err != nil {
		return err
	}

	flags := 0
	if fn.Name != "" {
		flags |= fdHasName
	}
	if fn.Source != "" {
		flags |= fdHasSource
	}
	if len(fn.EnvIndices) > 0 {
		flags |= fdHasEnvs
	}
	if len(fn.SourceMap) > 0 {
		flags |= fdHasSourceMap
	}
	if fn.HasVarargs {
		flags |= fdHasVarargs
	}
	if fn.HasKwargs {
		flags |= fdHasKwargs
	}
	if len(fn.Defers) > 0 {
		flags |= fdHasDefers
	}
	if len(fn.Catches) > 0 {
		flags |= fdHasCatches
	}

	w.buf = writeVarint(w.buf, int32(flags))
	w.buf = writeVarint(w.buf, int32(fn.MaxStack))
	w.buf = writeVarint(w.buf, int32(fn.NumParams))
	w.buf = writeVarint(w.buf, int32(fn.NumKwonlyParams))
	w.buf = writeVarint(w.buf, int32(len(fn.Locals)))
	w.buf = writeVarint(w.buf, int32(len(fn.Cells)))
	w.buf = writeVarint(w.buf, int32(len(insns)))
	if flags&fdHasEnvs != 0 {
		w.buf = writeVarint(w.buf, int32(len(fn.EnvIndices)))
	}
	if flags&fdHasName != 0 {
		if err := w.writeValue(machine.String(fn.Name)); err != nil {
			return err
		}
	}
	if flags&fdHasSource != 0 {
		if err := w.writeValue(machine.String(fn.Source)); err != nil {
			return err
		}
	}
	for _, l := range fn.Locals {
		if err := w.writeValue(machine.String(l.Name)); err != nil {
			return err
		}
	}
	for _, c := range fn.Cells {
		w.buf = writeVarint(w.buf, int32(c))
	}

	for _, in := range insns {
		arg := in.arg
		switch {
		case in.op == compiler.MAKEFUNC:
			arg = uint32(tree.poolIdx[fn.Prog.Functions[in.arg]])
		case usesName(in.op):
			arg = uint32(tree.nameIdx[fn.Prog.Names[in.arg]])
		case in.op == compiler.CONSTANT:
			arg = uint32(tree.constIdx[tree.mod.Constants[in.arg]])
		}
		word, err := packWord(in.op, arg)
		if err != nil {
			return err
		}
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], word)
		w.buf = append(w.buf, b[:]...)
	}

	for _, idx := range fn.EnvIndices {
		w.buf = writeVarint(w.buf, int32(idx))
	}

	if flags&fdHasDefers != 0 {
		w.buf = writeVarint(w.buf, int32(len(fn.Defers)))
		for _, d := range fn.Defers {
			w.buf = writeVarint(w.buf, int32(d.PC0))
			w.buf = writeVarint(w.buf, int32(d.PC1))
			w.buf = writeVarint(w.buf, int32(d.StartPC))
		}
	}
	if flags&fdHasCatches != 0 {
		w.buf = writeVarint(w.buf, int32(len(fn.Catches)))
		for _, d := range fn.Catches {
			w.buf = writeVarint(w.buf, int32(d.PC0))
			w.buf = writeVarint(w.buf, int32(d.PC1))
			w.buf = writeVarint(w.buf, int32(d.StartPC))
		}
	}
	if flags&fdHasSourceMap != 0 {
		var current int32
		for _, sp := range fn.SourceMap {
			w.buf = writeVarint(w.buf, sp.Start-current)
			w.buf = writeVarint(w.buf, sp.End-sp.Start)
			current = sp.End
		}
	}

	return nil
}

// envOnStack marks, in a funcenv's flags varint, that the environment is a
// view into a live coroutine's data stack (machine.FuncEnv.OnStack), rather
// than an owned value vector. It cannot be inferred from Offset alone: an
// on-stack environment capturing from the very base of a coroutine's data
// has Offset == 0, the same as every off-stack environment.
const envOnStack = 1 << 0

// writeFuncenv implements the embedded-environment protocol (§4.5).
func (w *Writer) writeFuncenv(env *machine.FuncEnv) error {
	if err := w.enter(); err != nil {
		return err
	}
	defer w.leave()

	if id, ok := w.envs[env]; ok {
		w.buf = append(w.buf, lbFuncEnvRef)
		w.buf = writeVarint(w.buf, id)
		return nil
	}
	id := int32(len(w.envList))
	w.envs[env] = id
	w.envList = append(w.envList, env)

	flags := 0
	if env.OnStack() {
		flags |= envOnStack
	}
	w.buf = writeVarint(w.buf, int32(flags))
	w.buf = writeVarint(w.buf, int32(env.Offset))
	w.buf = writeVarint(w.buf, int32(env.Length))

	if env.OnStack() {
		return w.writeValue(env.Coroutine)
	}
	for i := 0; i < env.Length; i++ {
		if err := w.writeValue(env.Vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// readFunctionTree mirrors writeFuncdefTree, returning the root funcode and
// the Module all functions in its tree share.
func (r *Reader) readFunctionTree() (*compiler.Funcode, *machine.Module, error) {
	if err := r.enter(); err != nil {
		return nil, nil, err
	}
	defer r.leave()

	if r.off >= len(r.data) {
		return nil, nil, errUnexpectedEnd(r.off)
	}
	if r.data[r.off] == lbFuncDefRef {
		r.off++
		id, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, nil, err
		}
		r.off = next
		if id < 0 || int(id) >= len(r.defs) || r.defs[id] == nil {
			return nil, nil, errInvalidFuncDefReference(r.off, id)
		}
		return r.defs[id], r.defMods[id], nil
	}

	id := len(r.defs)
	r.defs = append(r.defs, nil)
	r.defMods = append(r.defMods, nil)

	namesLen, next, err := readVarint(r.data, r.off)
	if err != nil {
		return nil, nil, err
	}
	r.off = next
	if namesLen < 0 {
		return nil, nil, r.errNegativeCount()
	}
	names := make([]string, namesLen)
	for i := range names {
		v, err := r.readValue()
		if err != nil {
			return nil, nil, err
		}
		s, ok := v.(machine.String)
		if !ok {
			return nil, nil, errExpectedType(r.off, "string", v.Type())
		}
		names[i] = string(s)
	}

	constsLen, next, err := readVarint(r.data, r.off)
	if err != nil {
		return nil, nil, err
	}
	r.off = next
	if constsLen < 0 {
		return nil, nil, r.errNegativeCount()
	}
	consts := make([]machine.Value, constsLen)
	for i := range consts {
		v, err := r.readValue()
		if err != nil {
			return nil, nil, err
		}
		consts[i] = v
	}

	poolLen, next, err := readVarint(r.data, r.off)
	if err != nil {
		return nil, nil, err
	}
	r.off = next
	if poolLen < 0 {
		return nil, nil, r.errNegativeCount()
	}

	prog := &compiler.Program{Names: names}
	pool := make([]*compiler.Funcode, poolLen)
	prog.Functions = pool
	mod := &machine.Module{Program: prog, Constants: consts}

	root := &compiler.Funcode{Prog: prog}
	if err := r.readFuncdefBody(root); err != nil {
		return nil, nil, err
	}
	for i := range pool {
		fn := &compiler.Funcode{Prog: prog}
		if err := r.readFuncdefBody(fn); err != nil {
			return nil, nil, err
		}
		pool[i] = fn
	}

	r.defs[id] = root
	r.defMods[id] = mod
	return root, mod, nil
}

// readFuncdefBody mirrors writeFuncdefBody, filling in fn in place. It
// neither knows nor needs the tree's name/constant/pool lists: the
// bytecode words it reads already carry the remapped (local) indices the
// writer computed, and fn.Prog (set by the caller before this runs) is
// exactly those lists.
func (r *Reader) readFuncdefBody(fn *compiler.Funcode) error {
	flags, next, err := readVarint(r.data, r.off)
	if err != nil {
		return err
	}
	r.off = next

	maxStack, next, err := readVarint(r.data, r.off)
	if err != nil {
		return err
	}
	r.off = next
	numParams, next, err := readVarint(r.data, r.off)
	if err != nil {
		return err
	}
	r.off = next
	numKwonly, next, err := readVarint(r.data, r.off)
	if err != nil {
		return err
	}
	r.off = next
	numLocals, next, err := readVarint(r.data, r.off)
	if err != nil {
		return err
	}
	r.off = next
	numCells, next, err := readVarint(r.data, r.off)
	if err != nil {
		return err
	}
	r.off = next
	bytecodeLen, next, err := readVarint(r.data, r.off)
	if err != nil {
		return err
	}
	r.off = next

	var envsLen int32
	if flags&fdHasEnvs != 0 {
		envsLen, next, err = readVarint(r.data, r.off)
		if err != nil {
			return err
		}
		r.off = next
	}

	if flags&fdHasName != 0 {
		v, err := r.readValue()
		if err != nil {
			return err
		}
		s, ok := v.(machine.String)
		if !ok {
			return errExpectedType(r.off, "string", v.Type())
		}
		fn.Name = string(s)
	}
	if flags&fdHasSource != 0 {
		v, err := r.readValue()
		if err != nil {
			return err
		}
		s, ok := v.(machine.String)
		if !ok {
			return errExpectedType(r.off, "string", v.Type())
		}
		fn.Source = string(s)
	}

	if numLocals < 0 {
		return r.errNegativeCount()
	}
	fn.Locals = make([]compiler.Binding, numLocals)
	for i := range fn.Locals {
		v, err := r.readValue()
		if err != nil {
			return err
		}
		s, ok := v.(machine.String)
		if !ok {
			return errExpectedType(r.off, "string", v.Type())
		}
		fn.Locals[i].Name = string(s)
	}

	if numCells < 0 {
		return r.errNegativeCount()
	}
	fn.Cells = make([]int, numCells)
	for i := range fn.Cells {
		c, next, err := readVarint(r.data, r.off)
		if err != nil {
			return err
		}
		r.off = next
		fn.Cells[i] = int(c)
	}

	if bytecodeLen < 0 {
		return r.errNegativeCount()
	}
	insns := make([]insn, bytecodeLen)
	for i := range insns {
		if r.off+4 > len(r.data) {
			return errUnexpectedEnd(r.off)
		}
		word := binary.LittleEndian.Uint32(r.data[r.off : r.off+4])
		r.off += 4
		op, arg := unpackWord(word)
		insns[i] = insn{op: op, arg: arg}
	}
	fn.Code = encodeInsns(insns)

	if envsLen < 0 {
		return r.errNegativeCount()
	}
	fn.EnvIndices = make([]int, envsLen)
	for i := range fn.EnvIndices {
		v, next, err := readVarint(r.data, r.off)
		if err != nil {
			return err
		}
		r.off = next
		fn.EnvIndices[i] = int(v)
	}

	if flags&fdHasDefers != 0 {
		n, next, err := readVarint(r.data, r.off)
		if err != nil {
			return err
		}
		r.off = next
		if n < 0 {
			return r.errNegativeCount()
		}
		fn.Defers = make([]compiler.Defer, n)
		for i := range fn.Defers {
			d, err := r.readDefer()
			if err != nil {
				return err
			}
			fn.Defers[i] = d
		}
	}
	if flags&fdHasCatches != 0 {
		n, next, err := readVarint(r.data, r.off)
		if err != nil {
			return err
		}
		r.off = next
		if n < 0 {
			return r.errNegativeCount()
		}
		fn.Catches = make([]compiler.Defer, n)
		for i := range fn.Catches {
			d, err := r.readDefer()
			if err != nil {
				return err
			}
			fn.Catches[i] = d
		}
	}
	if flags&fdHasSourceMap != 0 {
		fn.SourceMap = make([]compiler.SourceSpan, bytecodeLen)
		var current int32
		for i := range fn.SourceMap {
			startDelta, next, err := readVarint(r.data, r.off)
			if err != nil {
				return err
			}
			r.off = next
			endDelta, next, err := readVarint(r.data, r.off)
			if err != nil {
				return err
			}
			r.off = next
			start := current + startDelta
			end := start + endDelta
			fn.SourceMap[i] = compiler.SourceSpan{Start: start, End: end}
			current = end
		}
	}

	fn.MaxStack = int(maxStack)
	fn.NumParams = int(numParams)
	fn.NumKwonlyParams = int(numKwonly)
	fn.HasVarargs = flags&fdHasVarargs != 0
	fn.HasKwargs = flags&fdHasKwargs != 0
	return nil
}

// readDefer reads one (PC0, PC1, StartPC) triple.
func (r *Reader) readDefer() (compiler.Defer, error) {
	pc0, next, err := readVarint(r.data, r.off)
	if err != nil {
		return compiler.Defer{}, err
	}
	r.off = next
	pc1, next, err := readVarint(r.data, r.off)
	if err != nil {
		return compiler.Defer{}, err
	}
	r.off = next
	startPC, next, err := readVarint(r.data, r.off)
	if err != nil {
		return compiler.Defer{}, err
	}
	r.off = next
	return compiler.Defer{PC0: uint32(pc0), PC1: uint32(pc1), StartPC: uint32(startPC)}, nil
}

// readFuncenv mirrors writeFuncenv.
func (r *Reader) readFuncenv() (*machine.FuncEnv, error) {
	if err := r.enter(); err != nil {
		return nil, err
	}
	defer r.leave()

	if r.off >= len(r.data) {
		return nil, errUnexpectedEnd(r.off)
	}
	if r.data[r.off] == lbFuncEnvRef {
		r.off++
		id, next, err := readVarint(r.data, r.off)
		if err != nil {
			return nil, err
		}
		r.off = next
		if id < 0 || int(id) >= len(r.envs) || r.envs[id] == nil {
			return nil, errInvalidFuncEnvReference(r.off, id)
		}
		return r.envs[id], nil
	}

	env := &machine.FuncEnv{}
	r.envs = append(r.envs, env)

	flags, next, err := readVarint(r.data, r.off)
	if err != nil {
		return nil, err
	}
	r.off = next
	offset, next, err := readVarint(r.data, r.off)
	if err != nil {
		return nil, err
	}
	r.off = next
	length, next, err := readVarint(r.data, r.off)
	if err != nil {
		return nil, err
	}
	r.off = next

	env.Offset = int(offset)
	env.Length = int(length)

	if flags&envOnStack != 0 {
		v, err := r.readValue()
		if err != nil {
			return nil, err
		}
		co, ok := v.(*machine.Coroutine)
		if !ok {
			return nil, errExpectedType(r.off, "coroutine", v.Type())
		}
		env.Coroutine = co
	} else {
		if length < 0 {
			return nil, r.errNegativeCount()
		}
		env.Vals = make([]machine.Value, length)
		for i := range env.Vals {
			v, err := r.readValue()
			if err != nil {
				return nil, err
			}
			env.Vals[i] = v
		}
	}

	return env, nil
}

// flattenFreevars rebuilds the flat Tuple the interpreter's FREE/FREECELL
// opcodes index directly (machine.Function.Freevars), by concatenating
// every captured slot across envs in order. machine.Function's Freevars
// field comment calls it "flattened captured cells" but never wires up how
// a marshaled Function reconstructs it from Envs; this is that
// reconstruction (see DESIGN.md).
func flattenFreevars(envs []*machine.FuncEnv) *machine.Tuple {
	var vals []machine.Value
	for _, env := range envs {
		for i := 0; i < env.Length; i++ {
			vals = append(vals, env.Get(i))
		}
	}
	return machine.NewTuple(vals)
}

// readFunction decodes a complete lbFunction record: the definition tree,
// then one embedded environment per entry in the root definition's
// EnvIndices. id is the slot the caller reserved in r.refs. The writer marks
// a function only after its definition tree, so that slot is released while
// the tree is read and the function is appended once the tree is done, before
// the environments are read so that an environment capturing this very
// function (a self-referential closure) resolves correctly.
func (r *Reader) readFunction(id int) (*machine.Function, error) {
	r.refs = r.refs[:id]
	root, mod, err := r.readFunctionTree()
	if err != nil {
		return nil, err
	}

	fnVal := &machine.Function{Funcode: root, Module: mod}
	r.refs = append(r.refs, fnVal)

	envs := make([]*machine.FuncEnv, len(root.EnvIndices))
	for i := range envs {
		env, err := r.readFuncenv()
		if err != nil {
			return nil, err
		}
		envs[i] = env
	}
	fnVal.Envs = envs
	fnVal.Freevars = flattenFreevars(envs)

	return fnVal, nil
}
