package marshal

import (
	"testing"

	"github.com/mna/nenuphar/lang/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v machine.Value) machine.Value {
	t.Helper()
	data, err := Marshal(v, nil)
	require.NoError(t, err)
	got, rest, err := Unmarshal(data, nil)
	require.NoError(t, err)
	assert.Empty(t, rest)
	return got
}

func TestMarshalExactBytesScalars(t *testing.T) {
	data, err := Marshal(machine.Nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{lbNil}, data)

	data, err = Marshal(machine.Float(0), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, data)

	data, err = Marshal(machine.Float(127), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{127}, data)

	data, err = Marshal(machine.String("hi"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{lbString, 2, 'h', 'i'}, data)
}

func TestRoundTripScalars(t *testing.T) {
	cases := []machine.Value{
		machine.Nil,
		machine.True,
		machine.False,
		machine.Float(42),
		machine.Float(-8192),
		machine.Float(3.5),
		machine.String("hello, world"),
		machine.Symbol("foo"),
		machine.Keyword("bar"),
	}
	for _, v := range cases {
		got := roundTrip(t, v)
		assert.Equal(t, v, got)
	}
}

func TestRoundTripTuple(t *testing.T) {
	tup := machine.NewTuple([]machine.Value{machine.Float(1), machine.String("a"), machine.True})
	tup.Flag = 7

	got := roundTrip(t, tup)
	gt, ok := got.(*machine.Tuple)
	require.True(t, ok)
	assert.Equal(t, tup.Elems(), gt.Elems())
	assert.Equal(t, tup.Flag, gt.Flag)
}

func TestRoundTripStruct(t *testing.T) {
	keys := []machine.Value{machine.Keyword("a"), machine.Keyword("b")}
	vals := []machine.Value{machine.Float(1), machine.Float(2)}
	st := machine.NewStruct(keys, vals)

	got := roundTrip(t, st)
	gs, ok := got.(*machine.Struct)
	require.True(t, ok)
	v, ok2, err := gs.Get(machine.Keyword("a"))
	require.NoError(t, err)
	require.True(t, ok2)
	assert.Equal(t, machine.Float(1), v)
}

func TestRoundTripBuffer(t *testing.T) {
	buf := machine.NewBuffer([]byte("some bytes"))
	got := roundTrip(t, buf)
	gb, ok := got.(*machine.Buffer)
	require.True(t, ok)
	assert.Equal(t, buf.Bytes(), gb.Bytes())
}

func TestRoundTripMapWithProto(t *testing.T) {
	proto := machine.NewMap(1)
	require.NoError(t, proto.SetKey(machine.Keyword("inherited"), machine.Float(99)))

	m := machine.NewMap(1)
	m.Proto = proto
	require.NoError(t, m.SetKey(machine.Keyword("own"), machine.Float(1)))

	got := roundTrip(t, m)
	gm, ok := got.(*machine.Map)
	require.True(t, ok)
	require.NotNil(t, gm.Proto)

	v, ok2, err := gm.Get(machine.Keyword("own"))
	require.NoError(t, err)
	require.True(t, ok2)
	assert.Equal(t, machine.Float(1), v)

	v, ok2, err = gm.Get(machine.Keyword("inherited"))
	require.NoError(t, err)
	require.True(t, ok2)
	assert.Equal(t, machine.Float(99), v)
}

// TestRoundTripSelfReferentialArray exercises the mark-before-body ordering
// (§4.2) that lets a cyclic array survive a round trip: a[0] == a.
func TestRoundTripSelfReferentialArray(t *testing.T) {
	a := machine.NewArray(make([]machine.Value, 1))
	require.NoError(t, a.SetIndex(0, a))

	got := roundTrip(t, a)
	ga, ok := got.(*machine.Array)
	require.True(t, ok)
	assert.Equal(t, 1, ga.Len())
	assert.True(t, ga.Index(0) == machine.Value(ga), "array must reference itself after round trip")
}

func TestRoundTripBackReferenceIdentity(t *testing.T) {
	shared := machine.NewBuffer([]byte("shared"))
	tup := machine.NewTuple([]machine.Value{shared, shared})

	got := roundTrip(t, tup)
	gt, ok := got.(*machine.Tuple)
	require.True(t, ok)
	elems := gt.Elems()
	require.Len(t, elems, 2)
	assert.True(t, elems[0] == elems[1], "two references to the same buffer must decode to the same pointer")
}

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewRegistry()
	wellKnown := machine.NewBuffer([]byte("well-known"))
	reg.Register("my-buffer", wellKnown)

	data, err := Marshal(wellKnown, reg)
	require.NoError(t, err)

	got, _, err := Unmarshal(data, reg)
	require.NoError(t, err)
	assert.True(t, got == machine.Value(wellKnown))
}

func TestUnmarshalUnknownLeadByte(t *testing.T) {
	_, _, err := Unmarshal([]byte{250}, nil)
	require.Error(t, err)
	merr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrUnknownLeadByte, merr.Kind)
}

func TestUnmarshalInvalidReference(t *testing.T) {
	data := append([]byte{lbReference}, writeVarint(nil, 5)...)
	_, _, err := Unmarshal(data, nil)
	require.Error(t, err)
	merr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrInvalidReference, merr.Kind)
}
