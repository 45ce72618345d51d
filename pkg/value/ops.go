package value

import (
	"math/big"
	"strings"

	"github.com/chazu/crunch/pkg/fault"
	"github.com/chazu/crunch/pkg/gc"
)

type bitOp struct {
	verb    string
	apply   func(z, x, y *big.Int) *big.Int
	logical func(x, y bool) bool
}

var (
	opAnd = bitOp{"and-ed", (*big.Int).And, func(x, y bool) bool { return x && y }}
	opOr  = bitOp{"or-ed", (*big.Int).Or, func(x, y bool) bool { return x || y }}
	opXor = bitOp{"xor-ed", (*big.Int).Xor, func(x, y bool) bool { return x != y }}
)

// BitAnd returns the bitwise (or, for booleans, logical) and of two values.
func (v RuntimeValue) BitAnd(other RuntimeValue, heap *gc.Gc) (RuntimeValue, error) {
	return v.bitwise(opAnd, other, heap)
}

// BitOr returns the bitwise (or, for booleans, logical) or of two values.
func (v RuntimeValue) BitOr(other RuntimeValue, heap *gc.Gc) (RuntimeValue, error) {
	return v.bitwise(opOr, other, heap)
}

// BitXor returns the bitwise (or, for booleans, logical) xor of two values.
func (v RuntimeValue) BitXor(other RuntimeValue, heap *gc.Gc) (RuntimeValue, error) {
	return v.bitwise(opXor, other, heap)
}

func (v RuntimeValue) bitwise(op bitOp, other RuntimeValue, heap *gc.Gc) (RuntimeValue, error) {
	left, right, err := operands(v, other, heap, op.verb)
	if err != nil {
		return RuntimeValue{}, err
	}

	switch {
	case left.typ == TypeBool:
		return NewBool(op.logical(left.AsBool(), right.AsBool())), nil
	case left.typ == TypePointer:
		x := new(big.Int).SetUint64(left.lo)
		y := new(big.Int).SetUint64(right.lo)
		return NewPointer(op.apply(x, x, y).Uint64()), nil
	case left.typ.IsInteger():
		x, err := left.bigInt(heap)
		if err != nil {
			return RuntimeValue{}, err
		}
		y, err := right.bigInt(heap)
		if err != nil {
			return RuntimeValue{}, err
		}
		return promote(left.typ, op.apply(new(big.Int), x, y), heap)
	default:
		return RuntimeValue{}, fault.Newf(fault.IncompatibleTypes,
			"values of types '%s' and '%s' cannot be %s", left.typ, right.typ, op.verb)
	}
}

// Not returns the bitwise complement of an integer within its width, or the
// logical negation of a boolean.
func (v RuntimeValue) Not(heap *gc.Gc) (RuntimeValue, error) {
	if v.IsNone() {
		return RuntimeValue{}, fault.Newf(fault.NullVar, "a value of type '%s' cannot be negated", v.typ)
	}
	v, err := v.Resolve(heap)
	if err != nil {
		return RuntimeValue{}, err
	}

	switch {
	case v.typ == TypeBool:
		return NewBool(!v.AsBool()), nil
	case v.typ == TypePointer:
		return NewPointer(^v.lo), nil
	case v.typ.Signed():
		x, err := v.bigInt(heap)
		if err != nil {
			return RuntimeValue{}, err
		}
		return promote(v.typ, x.Not(x), heap)
	case v.typ.IsInteger() && v.typ != TypeBigUint:
		x, err := v.bigInt(heap)
		if err != nil {
			return RuntimeValue{}, err
		}
		max := rungs[v.typ].max
		return promote(v.typ, x.Sub(max, x), heap)
	default:
		return RuntimeValue{}, fault.Newf(fault.IncompatibleTypes, "a value of type '%s' cannot be negated", v.typ)
	}
}

// Equal is the deep equality: payloads are compared, dereferencing cached
// values through the heap. Values of different types are unequal; an empty
// register on either side is NullVar.
func (v RuntimeValue) Equal(other RuntimeValue, heap *gc.Gc) (bool, error) {
	if v.IsNone() || other.IsNone() {
		return false, fault.Newf(fault.NullVar,
			"values of types '%s' and '%s' cannot be equal", v.typ, other.typ)
	}
	if v.typ != other.typ {
		return false, nil
	}
	c, err := v.Compare(other, heap)
	if err != nil {
		return false, err
	}
	return c == 0, nil
}

// Compare orders two values of the same type, returning -1, 0 or 1.
func (v RuntimeValue) Compare(other RuntimeValue, heap *gc.Gc) (int, error) {
	left, right, err := operands(v, other, heap, "compared")
	if err != nil {
		return 0, err
	}

	switch {
	case left.typ == TypeBool:
		return compareBools(left.AsBool(), right.AsBool()), nil
	case left.typ == TypePointer:
		return compareOrdered(left.lo, right.lo), nil
	case left.typ == TypeString:
		return strings.Compare(left.str, right.str), nil
	case left.typ.IsInteger():
		x, err := left.bigInt(heap)
		if err != nil {
			return 0, err
		}
		y, err := right.bigInt(heap)
		if err != nil {
			return 0, err
		}
		return x.Cmp(y), nil
	default:
		return 0, fault.Newf(fault.IncompatibleTypes,
			"values of types '%s' and '%s' cannot be compared", left.typ, right.typ)
	}
}
