package marshal

import (
	"testing"

	"github.com/mna/nenuphar/lang/compiler"
	"github.com/mna/nenuphar/lang/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildSimpleFunction returns a standalone, arity-0 function that loads a
// single constant and returns it: CONSTANT<0>; RETURN. maxStack is the
// function's slot count, which a coroutine frame embedding this function
// must match exactly (§3's slotcount invariant).
func buildSimpleFunction(name string, constVal machine.Value, maxStack int) *machine.Function {
	fn := &compiler.Funcode{
		Name:      name,
		Code:      encodeInsns([]insn{{op: compiler.CONSTANT, arg: 0}, {op: compiler.RETURN}}),
		MaxStack:  maxStack,
		NumParams: 0,
	}
	prog := &compiler.Program{Toplevel: fn}
	fn.Prog = prog
	mod := &machine.Module{Program: prog, Constants: []machine.Value{constVal}}
	return &machine.Function{Funcode: fn, Module: mod}
}

func TestRoundTripSimpleFunction(t *testing.T) {
	fnVal := buildSimpleFunction("simple", machine.Float(42), 1)

	got := roundTrip(t, fnVal)
	gfn, ok := got.(*machine.Function)
	require.True(t, ok)

	assert.Equal(t, "simple", gfn.Funcode.Name)
	assert.Equal(t, fnVal.Funcode.Code, gfn.Funcode.Code)
	assert.Equal(t, fnVal.Funcode.MaxStack, gfn.Funcode.MaxStack)
	assert.Equal(t, fnVal.Funcode.NumParams, gfn.Funcode.NumParams)
	require.Len(t, gfn.Module.Constants, 1)
	assert.Equal(t, machine.Float(42), gfn.Module.Constants[0])
}

// TestRoundTripNestedClosure exercises the whole-function-definition-tree
// design: a root function whose MAKEFUNC targets a nested Funcode reachable
// through Program.Functions.
func TestRoundTripNestedClosure(t *testing.T) {
	prog := &compiler.Program{}
	inner := &compiler.Funcode{
		Name: "inner",
		Prog: prog,
		Code: encodeInsns([]insn{{op: compiler.CONSTANT, arg: 0}, {op: compiler.RETURN}}),
	}
	outer := &compiler.Funcode{
		Name: "outer",
		Prog: prog,
		Code: encodeInsns([]insn{{op: compiler.MAKEFUNC, arg: 0}, {op: compiler.RETURN}}),
	}
	prog.Toplevel = outer
	prog.Functions = []*compiler.Funcode{inner}
	mod := &machine.Module{Program: prog, Constants: []machine.Value{machine.Float(7)}}
	fnVal := &machine.Function{Funcode: outer, Module: mod}

	got := roundTrip(t, fnVal)
	gfn, ok := got.(*machine.Function)
	require.True(t, ok)

	assert.Equal(t, "outer", gfn.Funcode.Name)
	require.Len(t, gfn.Funcode.Prog.Functions, 1)
	assert.Equal(t, "inner", gfn.Funcode.Prog.Functions[0].Name)

	insns, err := decodeInsns(gfn.Funcode.Code)
	require.NoError(t, err)
	require.Len(t, insns, 2)
	assert.Equal(t, compiler.MAKEFUNC, insns[0].op)
	assert.Equal(t, uint32(0), insns[0].arg)
}

// TestRoundTripFunctionEnvs exercises both off-stack and on-stack captured
// environments, specifically with the on-stack environment's Offset at 0 —
// the case that the offset!=0 on-stack test would misclassify, which is why
// an explicit flag bit is used instead (see DESIGN.md).
func TestRoundTripFunctionEnvs(t *testing.T) {
	frameFn := buildSimpleFunction("frame-fn", machine.Float(1), 3)

	co := &machine.Coroutine{
		Status:     machine.CoroutineDead,
		StackStart: 0,
		StackTop:   3,
		MaxStack:   3,
		Data:       []machine.Value{machine.Float(10), machine.Float(20), machine.Float(30)},
		Frames: []*machine.CoroutineFrame{
			{Fn: frameFn, PC: 0, Base: 0, Top: 3, PrevOffset: -1},
		},
	}

	offEnv := machine.NewOffStackEnv([]machine.Value{machine.Float(1), machine.String("captured")})
	onEnv := machine.NewOnStackEnv(co, 0, 3)
	require.Equal(t, 0, onEnv.Offset)
	require.True(t, onEnv.OnStack())

	root := &compiler.Funcode{
		Name:       "closure",
		Code:       encodeInsns([]insn{{op: compiler.RETURN}}),
		EnvIndices: []int{0, 1},
	}
	prog := &compiler.Program{Toplevel: root}
	root.Prog = prog
	mod := &machine.Module{Program: prog}
	fnVal := &machine.Function{
		Funcode: root,
		Module:  mod,
		Envs:    []*machine.FuncEnv{offEnv, onEnv},
	}

	got := roundTrip(t, fnVal)
	gfn, ok := got.(*machine.Function)
	require.True(t, ok)
	require.Len(t, gfn.Envs, 2)

	gOff := gfn.Envs[0]
	assert.False(t, gOff.OnStack())
	assert.Equal(t, []machine.Value{machine.Float(1), machine.String("captured")}, gOff.Vals)

	gOn := gfn.Envs[1]
	require.True(t, gOn.OnStack(), "on-stack environment with Offset==0 must still decode as on-stack")
	assert.Equal(t, 0, gOn.Offset)
	assert.Equal(t, machine.Float(10), gOn.Get(0))
	assert.Equal(t, machine.Float(20), gOn.Get(1))
	assert.Equal(t, machine.Float(30), gOn.Get(2))

	require.NotNil(t, gfn.Freevars)
	elems := gfn.Freevars.Elems()
	require.Len(t, elems, 5)
	assert.Equal(t, machine.Float(1), elems[0])
	assert.Equal(t, machine.String("captured"), elems[1])
	assert.Equal(t, machine.Float(10), elems[2])
	assert.Equal(t, machine.Float(20), elems[3])
	assert.Equal(t, machine.Float(30), elems[4])
}

func TestPackUnpackWord(t *testing.T) {
	word, err := packWord(compiler.CONSTANT, 12345)
	require.NoError(t, err)
	op, arg := unpackWord(word)
	assert.Equal(t, compiler.CONSTANT, op)
	assert.Equal(t, uint32(12345), arg)
}

func TestPackWordRejectsOversizedArg(t *testing.T) {
	_, err := packWord(compiler.CONSTANT, wireArgMask+1)
	require.Error(t, err)
}

func TestDecodeEncodeInsnsRoundTrip(t *testing.T) {
	insns := []insn{
		{op: compiler.CONSTANT, arg: 3},
		{op: compiler.JMP, arg: 100},
		{op: compiler.RETURN},
	}
	code := encodeInsns(insns)
	got, err := decodeInsns(code)
	require.NoError(t, err)
	assert.Equal(t, insns, got)
}
