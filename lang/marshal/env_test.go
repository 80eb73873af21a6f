package marshal

import (
	"testing"

	"github.com/mna/nenuphar/lang/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvLookupFlattensProtoChain(t *testing.T) {
	outer := machine.NewMap(1)
	require.NoError(t, outer.SetKey(machine.Keyword("x"), machine.Float(1)))

	inner := machine.NewMap(1)
	inner.Proto = outer
	require.NoError(t, inner.SetKey(machine.Keyword("y"), machine.Float(2)))

	flat := EnvLookup(inner)

	v, ok, err := flat.Get(machine.Keyword("x"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, machine.Float(1), v)

	v, ok, err = flat.Get(machine.Keyword("y"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, machine.Float(2), v)
}

func TestEnvLookupClosestScopeWins(t *testing.T) {
	outer := machine.NewMap(1)
	require.NoError(t, outer.SetKey(machine.Keyword("x"), machine.Float(1)))

	inner := machine.NewMap(1)
	inner.Proto = outer
	require.NoError(t, inner.SetKey(machine.Keyword("x"), machine.Float(99)))

	flat := EnvLookup(inner)
	v, ok, err := flat.Get(machine.Keyword("x"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, machine.Float(99), v)
}

func TestEnvLookupValuePrecedesRef(t *testing.T) {
	entry := machine.NewMap(2)
	require.NoError(t, entry.SetKey(keyRef, machine.Float(-1)))
	require.NoError(t, entry.SetKey(keyValue, machine.Float(7)))

	env := machine.NewMap(1)
	require.NoError(t, env.SetKey(machine.Keyword("cell"), entry))

	flat := EnvLookup(env)
	v, ok, err := flat.Get(machine.Keyword("cell"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, machine.Float(7), v)
}

func TestEnvLookupStructEntryRef(t *testing.T) {
	entry := machine.NewStruct(
		[]machine.Value{keyRef},
		[]machine.Value{machine.String("outer-cell")},
	)

	env := machine.NewMap(1)
	require.NoError(t, env.SetKey(machine.Keyword("cell"), entry))

	flat := EnvLookup(env)
	v, ok, err := flat.Get(machine.Keyword("cell"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, machine.String("outer-cell"), v)
}

func TestEnvLookupBareValuePassesThrough(t *testing.T) {
	env := machine.NewMap(1)
	require.NoError(t, env.SetKey(machine.Keyword("plain"), machine.Float(5)))

	flat := EnvLookup(env)
	v, ok, err := flat.Get(machine.Keyword("plain"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, machine.Float(5), v)
}
