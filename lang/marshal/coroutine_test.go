package marshal

import (
	"testing"

	"github.com/mna/nenuphar/lang/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoundTripSuspendedCoroutine builds a two-frame suspended coroutine by
// hand and checks that frame bounds, PC, and captured data survive a round
// trip with their absolute Base/Top alignment intact (§4.6, the Base/Top
// redesign documented in DESIGN.md).
func TestRoundTripSuspendedCoroutine(t *testing.T) {
	bottomFn := buildSimpleFunction("bottom", machine.String("paused"), 2)
	topFn := buildSimpleFunction("top", machine.Float(1), 2)

	co := &machine.Coroutine{
		Status:     machine.CoroutineSuspended,
		StackStart: 0,
		StackTop:   5,
		MaxStack:   5,
		Data: []machine.Value{
			machine.Float(1), machine.Float(2),
			machine.String("paused"), machine.Float(3),
		},
		Frames: []*machine.CoroutineFrame{
			{Fn: bottomFn, PC: 1, Base: 0, Top: 2, PrevOffset: -1},
			{Fn: topFn, PC: 1, Base: 2, Top: 4, PrevOffset: 0},
		},
	}

	got := roundTrip(t, co)
	gco, ok := got.(*machine.Coroutine)
	require.True(t, ok)

	assert.Equal(t, machine.CoroutineSuspended, gco.Status)
	assert.Equal(t, co.StackStart, gco.StackStart)
	assert.Equal(t, co.StackTop, gco.StackTop)
	assert.Equal(t, co.MaxStack, gco.MaxStack)
	require.Len(t, gco.Frames, 2)

	bottom := gco.Frames[0]
	assert.Equal(t, -1, bottom.PrevOffset)
	assert.Equal(t, 0, bottom.Base)
	assert.Equal(t, 2, bottom.Top)
	assert.Equal(t, uint32(1), bottom.PC)
	assert.Equal(t, "bottom", bottom.Fn.Funcode.Name)

	top := gco.Frames[1]
	assert.Equal(t, 0, top.PrevOffset)
	assert.Equal(t, 2, top.Base)
	assert.Equal(t, 4, top.Top)
	assert.Equal(t, "top", top.Fn.Funcode.Name)

	// The yielded value, captured in the top frame's data window, survives at
	// its original absolute offset.
	require.True(t, len(gco.Data) >= 3)
	assert.Equal(t, machine.String("paused"), gco.Data[2])
}

func TestMarshalAliveCoroutineRejected(t *testing.T) {
	co := &machine.Coroutine{Status: machine.CoroutineAlive}
	_, err := Marshal(co, nil)
	require.Error(t, err)
	merr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrAliveCoroutine, merr.Kind)
}

func TestRoundTripCoroutineWithChild(t *testing.T) {
	fn := buildSimpleFunction("f", machine.Float(0), 0)
	child := &machine.Coroutine{
		Status: machine.CoroutineSuspended,
		Frames: []*machine.CoroutineFrame{
			{Fn: fn, PC: 0, Base: 0, Top: 0, PrevOffset: -1},
		},
	}
	parent := &machine.Coroutine{
		Status: machine.CoroutineSuspended,
		Frames: []*machine.CoroutineFrame{
			{Fn: fn, PC: 0, Base: 0, Top: 0, PrevOffset: -1},
		},
		Child: child,
	}

	got := roundTrip(t, parent)
	gco, ok := got.(*machine.Coroutine)
	require.True(t, ok)
	require.NotNil(t, gco.Child)
	assert.Equal(t, machine.CoroutineSuspended, gco.Child.Status)
}
