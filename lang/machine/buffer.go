package machine

import "fmt"

// Buffer is a mutable byte sequence, the mutable counterpart to String.
// Buffers compare by allocation identity, not by content.
type Buffer struct {
	data []byte
}

var (
	_ Value     = (*Buffer)(nil)
	_ Indexable = (*Buffer)(nil)
)

// NewBuffer returns a buffer wrapping the given bytes. Callers should not
// subsequently modify data directly.
func NewBuffer(data []byte) *Buffer { return &Buffer{data: data} }

func (b *Buffer) String() string      { return fmt.Sprintf("buffer(%p)", b) }
func (b *Buffer) Type() string        { return "buffer" }
func (b *Buffer) Len() int            { return len(b.data) }
func (b *Buffer) Index(i int) Value   { return Float(b.data[i]) }
func (b *Buffer) Bytes() []byte       { return b.data }
func (b *Buffer) SetBytes(data []byte) { b.data = data }

func (b *Buffer) Append(data ...byte) { b.data = append(b.data, data...) }
