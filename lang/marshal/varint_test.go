package marshal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteVarintExactBytes(t *testing.T) {
	cases := []struct {
		name string
		in   int32
		want []byte
	}{
		{"zero", 0, []byte{0}},
		{"max one-byte", 127, []byte{127}},
		{"min two-byte", 128, []byte{0x80, 0x80}},
		{"minus one", -1, []byte{0xBF, 0xFF}},
		{"million", 1_000_000, []byte{205, 0x00, 0x0F, 0x42, 0x40}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := writeVarint(nil, c.in)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestVarintRoundTripBoundaries(t *testing.T) {
	values := []int32{-8193, -8192, -1, 0, 127, 128, 8191, 8192, 1<<31 - 1, -(1 << 31)}
	for _, v := range values {
		buf := writeVarint(nil, v)
		got, next, err := readVarint(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, len(buf), next)
		assert.Equal(t, v, got)
	}
}

func TestReadVarintUnexpectedEnd(t *testing.T) {
	_, _, err := readVarint(nil, 0)
	require.Error(t, err)
	merr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrUnexpectedEndOfSource, merr.Kind)

	// a two-byte form truncated after its first byte
	_, _, err = readVarint([]byte{0x80}, 0)
	require.Error(t, err)
}
