package machine

// Bool is the type of a boolean value (true or false).
type Bool bool

const (
	False = Bool(false)
	True  = Bool(true)
)

var _ Value = False

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

func (b Bool) Type() string { return "bool" }

// Cmp implements comparison of two Bool values.
func (b Bool) Cmp(y Value) (int, error) {
	yb := y.(Bool)
	bi, yi := b2i(b), b2i(yb)
	return bi - yi, nil
}

func b2i(b Bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Ordered = False
