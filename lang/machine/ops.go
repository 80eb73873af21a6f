package machine

import (
	"fmt"

	"github.com/mna/nenuphar/lang/token"
)

// Truth returns the truth value of a value, used by conditional branches and
// the NOT operator.
func Truth(v Value) Bool {
	switch v := v.(type) {
	case NilType:
		return False
	case Bool:
		return v
	case Float:
		return v != 0
	case String:
		return len(v) > 0
	case Symbol:
		return len(v) > 0
	case Keyword:
		return len(v) > 0
	case *Buffer:
		return v.Len() > 0
	case *Array:
		return v.Len() > 0
	case *Tuple:
		return v.Len() > 0
	case *Map:
		return v.Len() > 0
	case *Struct:
		return v.Len() > 0
	default:
		return True
	}
}

// Compare reports the result of the binary comparison operator op applied to
// x and y: EQL, NEQ, LT, LE, GT or GE.
func Compare(op token.Token, x, y Value) (bool, error) {
	return compareDepth(op, x, y, maxCompareDepth)
}

const maxCompareDepth = 10_000

func compareDepth(op token.Token, x, y Value, depth int) (bool, error) {
	if depth < 1 {
		return false, fmt.Errorf("comparison depth limit exceeded")
	}

	if sameType(x, y) {
		if xo, ok := x.(Ordered); ok {
			cmp, err := xo.Cmp(y)
			if err != nil {
				return false, err
			}
			return threeway(op, cmp), nil
		}

		// Non-ordered, comparable-by-content types.
		switch x.(type) {
		case *Tuple:
			return sliceCompare(op, x.(*Tuple).elems, y.(*Tuple).elems, depth)
		case *Array:
			return sliceCompare(op, x.(*Array).elems, y.(*Array).elems, depth)
		}

		if xe, ok := x.(HasEqual); ok {
			eq, err := xe.Equals(y)
			if err != nil {
				return false, err
			}
			switch op {
			case token.EQL:
				return eq, nil
			case token.NEQ:
				return !eq, nil
			}
			return false, fmt.Errorf("%s %s %s not implemented", x.Type(), op, y.Type())
		}

		// identity comparison: same underlying allocation
		switch op {
		case token.EQL:
			return x == y, nil
		case token.NEQ:
			return x != y, nil
		}
		return false, fmt.Errorf("%s %s %s not implemented", x.Type(), op, y.Type())
	}

	// Distinct types are never ordered, but EQL/NEQ are always defined.
	switch op {
	case token.EQL:
		return false, nil
	case token.NEQ:
		return true, nil
	}
	return false, fmt.Errorf("%s %s %s not implemented", x.Type(), op, y.Type())
}

func equalDepth(x, y Value, depth int) (bool, error) {
	return compareDepth(token.EQL, x, y, depth)
}

func sameType(x, y Value) bool { return x.Type() == y.Type() }

// Binary applies the binary operator op (PLUS, MINUS, STAR, ...) to operands
// x and y. Side is implied by x being the left operand, y the right.
func Binary(op token.Token, x, y Value) (Value, error) {
	if xb, ok := x.(HasBinary); ok {
		z, err := xb.Binary(op, y, Left)
		if z != nil || err != nil {
			return z, err
		}
	}
	if yb, ok := y.(HasBinary); ok {
		z, err := yb.Binary(op, x, Right)
		if z != nil || err != nil {
			return z, err
		}
	}

	// numeric arithmetic
	if xf, ok := x.(Float); ok {
		if yf, ok := y.(Float); ok {
			switch op {
			case token.PLUS:
				return xf + yf, nil
			case token.MINUS:
				return xf - yf, nil
			case token.STAR:
				return xf * yf, nil
			case token.SLASH:
				if yf == 0 {
					return nil, fmt.Errorf("division by zero")
				}
				return xf / yf, nil
			}
		}
	}

	return nil, fmt.Errorf("unsupported binary operation: %s %s %s", x.Type(), op, y.Type())
}

// Unary applies the unary operator op (UPLUS, UMINUS, TILDE, POUND) to x.
func Unary(op token.Token, x Value) (Value, error) {
	if xu, ok := x.(HasUnary); ok {
		z, err := xu.Unary(op)
		if z != nil || err != nil {
			return z, err
		}
	}

	switch op {
	case token.PLUS:
		if xf, ok := x.(Float); ok {
			return xf, nil
		}
	case token.MINUS:
		if xf, ok := x.(Float); ok {
			return -xf, nil
		}
	case token.POUND:
		if xs, ok := x.(Sequence); ok {
			return Float(xs.Len()), nil
		}
		if xi, ok := x.(Indexable); ok {
			return Float(xi.Len()), nil
		}
	}

	return nil, fmt.Errorf("unsupported unary operation: %s %s", op, x.Type())
}

// Iterate returns an Iterator for x, or nil if x is not iterable.
func Iterate(x Value) Iterator {
	if xi, ok := x.(Iterable); ok {
		return xi.Iterate()
	}
	return nil
}

// getIndex implements the INDEX opcode: z = x[y].
func getIndex(x, y Value) (Value, error) {
	switch x := x.(type) {
	case Mapping:
		z, found, err := x.Get(y)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("key not found: %s", y)
		}
		return z, nil
	case Indexable:
		yf, ok := y.(Float)
		if !ok {
			return nil, fmt.Errorf("%s index: got %s, want number", x.Type(), y.Type())
		}
		i := int(yf)
		if i < 0 {
			i += x.Len()
		}
		if i < 0 || i >= x.Len() {
			return nil, fmt.Errorf("%s index %d out of range (len %d)", x.Type(), i, x.Len())
		}
		return x.Index(i), nil
	}
	return nil, fmt.Errorf("unhandled index operation %s[%s]", x.Type(), y.Type())
}

// setIndex implements the SETINDEX opcode: x[y] = z.
func setIndex(x, y, z Value) error {
	switch x := x.(type) {
	case HasSetKey:
		return x.SetKey(y, z)
	case HasSetIndex:
		yf, ok := y.(Float)
		if !ok {
			return fmt.Errorf("%s index: got %s, want number", x.Type(), y.Type())
		}
		i := int(yf)
		if i < 0 {
			i += x.Len()
		}
		if i < 0 || i >= x.Len() {
			return fmt.Errorf("%s index %d out of range (len %d)", x.Type(), i, x.Len())
		}
		return x.SetIndex(i, z)
	}
	return fmt.Errorf("%s value does not support item assignment", x.Type())
}

// getAttr implements the ATTR opcode: y = x.name.
func getAttr(x Value, name string) (Value, error) {
	xa, ok := x.(HasAttrs)
	if !ok {
		return nil, fmt.Errorf("%s has no .%s field or method", x.Type(), name)
	}
	v, err := xa.Attr(name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, NoSuchAttrError(fmt.Sprintf("%s has no .%s field or method", x.Type(), name))
	}
	return v, nil
}

// setField implements the SETFIELD opcode: x.name = y.
func setField(x Value, name string, y Value) error {
	xs, ok := x.(HasSetField)
	if !ok {
		return fmt.Errorf("cannot set .%s field of %s", name, x.Type())
	}
	return xs.SetField(name, y)
}
