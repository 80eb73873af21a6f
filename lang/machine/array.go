package machine

import (
	"fmt"

	"github.com/mna/nenuphar/lang/token"
)

// An Array represents a mutable, ordered sequence of values.
type Array struct {
	elems     []Value
	itercount uint32 // number of active iterators
}

var (
	_ Value       = (*Array)(nil)
	_ Indexable   = (*Array)(nil)
	_ Sliceable   = (*Array)(nil)
	_ HasSetIndex = (*Array)(nil)
	_ Iterable    = (*Array)(nil)
)

// NewArray returns an array containing the specified elements. Callers should
// not subsequently modify elems.
func NewArray(elems []Value) *Array { return &Array{elems: elems} }

func (a *Array) String() string    { return fmt.Sprintf("array(%p)", a) }
func (a *Array) Type() string      { return "array" }
func (a *Array) Len() int          { return len(a.elems) }
func (a *Array) Index(i int) Value { return a.elems[i] }

func (a *Array) checkMutable(verb string) error {
	if a.itercount > 0 {
		return fmt.Errorf("cannot %s array during iteration", verb)
	}
	return nil
}

func (a *Array) Slice(start, end, step int) Value {
	if step == 1 {
		elems := append([]Value{}, a.elems[start:end]...)
		return NewArray(elems)
	}

	sign := signum(step)
	var list []Value
	for i := start; signum(end-i) == sign; i += step {
		list = append(list, a.elems[i])
	}
	return NewArray(list)
}

func (a *Array) Iterate() Iterator {
	a.itercount++
	return &arrayIterator{a: a}
}

type arrayIterator struct {
	a *Array
	i int
}

func (it *arrayIterator) Next(p *Value) bool {
	if it.i < len(it.a.elems) {
		*p = it.a.elems[it.i]
		it.i++
		return true
	}
	return false
}

func (it *arrayIterator) Done() { it.a.itercount-- }

func (a *Array) SetIndex(i int, v Value) error {
	if err := a.checkMutable("assign to element of"); err != nil {
		return err
	}
	a.elems[i] = v
	return nil
}

func (a *Array) Append(v Value) error {
	if err := a.checkMutable("append to"); err != nil {
		return err
	}
	a.elems = append(a.elems, v)
	return nil
}

func (a *Array) Clear() error {
	if err := a.checkMutable("clear"); err != nil {
		return err
	}
	for i := range a.elems {
		a.elems[i] = nil
	}
	a.elems = a.elems[:0]
	return nil
}

// sliceCompare compares two equal-kind slices of values element by element,
// used by sequence types that implement ordering over their elements.
func sliceCompare(op token.Token, x, y []Value, depth int) (bool, error) {
	if len(x) != len(y) && (op == token.EQL || op == token.NEQ) {
		return op == token.NEQ, nil
	}

	for i := 0; i < len(x) && i < len(y); i++ {
		eq, err := equalDepth(x[i], y[i], depth-1)
		if err != nil {
			return false, err
		}
		if !eq {
			switch op {
			case token.EQL:
				return false, nil
			case token.NEQ:
				return true, nil
			default:
				c, err := compareDepth(op, x[i], y[i], depth-1)
				return c, err
			}
		}
	}

	return threeway(op, len(x)-len(y)), nil
}

func signum(x int) int {
	switch {
	case x > 0:
		return +1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// threeway interprets a three-way comparison value cmp (-1, 0, +1) according
// to the comparison operator op.
func threeway(op token.Token, cmp int) bool {
	switch op {
	case token.EQL:
		return cmp == 0
	case token.NEQ:
		return cmp != 0
	case token.LE:
		return cmp <= 0
	case token.LT:
		return cmp < 0
	case token.GE:
		return cmp >= 0
	case token.GT:
		return cmp > 0
	}
	panic(fmt.Sprintf("unexpected comparison operator: %s", op))
}
