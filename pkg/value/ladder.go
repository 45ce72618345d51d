package value

import (
	"math/big"

	"github.com/chazu/crunch/pkg/fault"
	"github.com/chazu/crunch/pkg/gc"
)

// rung is one step of an integer width ladder. An arithmetic result that
// does not fit a rung is retried on next, ending at an arbitrary precision
// type that lives on the heap.
type rung struct {
	min, max *big.Int // nil means unbounded
	next     Type
}

func (r rung) fits(x *big.Int) bool {
	if r.min != nil && x.Cmp(r.min) < 0 {
		return false
	}
	if r.max != nil && x.Cmp(r.max) > 0 {
		return false
	}
	return true
}

func unsignedRung(bits uint, next Type) rung {
	max := new(big.Int).Lsh(big.NewInt(1), bits)
	return rung{min: new(big.Int), max: max.Sub(max, big.NewInt(1)), next: next}
}

func signedRung(bits uint, next Type) rung {
	max := new(big.Int).Lsh(big.NewInt(1), bits-1)
	min := new(big.Int).Neg(max)
	return rung{min: min, max: max.Sub(max, big.NewInt(1)), next: next}
}

// Promotion order: 8 -> 16 -> 32 -> 64 -> 128 -> bigint on both ladders.
var rungs = map[Type]rung{
	TypeByte:    unsignedRung(8, TypeU16),
	TypeU16:     unsignedRung(16, TypeU32),
	TypeU32:     unsignedRung(32, TypeU64),
	TypeU64:     unsignedRung(64, TypeU128),
	TypeU128:    unsignedRung(128, TypeBigInt),
	TypeBigUint: {min: new(big.Int), next: TypeNone},

	TypeIByte:  signedRung(8, TypeI16),
	TypeI16:    signedRung(16, TypeI32),
	TypeI32:    signedRung(32, TypeI64),
	TypeI64:    signedRung(64, TypeI128),
	TypeI128:   signedRung(128, TypeBigInt),
	TypeBigInt: {next: TypeNone},
}

// promote stores x in the narrowest rung at or above t that can hold it.
func promote(t Type, x *big.Int, heap *gc.Gc) (RuntimeValue, error) {
	for cur := t; cur != TypeNone; cur = rungs[cur].next {
		if !rungs[cur].fits(x) {
			continue
		}
		if cur.IsBig() {
			return NewBig(cur, x, heap)
		}
		hi, lo := words(x)
		return RuntimeValue{typ: cur, hi: hi, lo: lo}, nil
	}
	return RuntimeValue{}, fault.Newf(fault.IntegerOverflow, "the result %s is too large to fit in a '%s'", x, t)
}

type arithOp struct {
	verb  string
	div   bool
	apply func(z, x, y *big.Int) *big.Int
	// pointer is the checked native operation on pointers; ok is false on
	// overflow.
	pointer func(x, y uint64) (r uint64, ok bool)
}

var (
	opAdd = arithOp{
		verb:  "added",
		apply: (*big.Int).Add,
		pointer: func(x, y uint64) (uint64, bool) {
			r := x + y
			return r, r >= x
		},
	}
	opSub = arithOp{
		verb:  "subtracted",
		apply: (*big.Int).Sub,
		pointer: func(x, y uint64) (uint64, bool) {
			return x - y, y <= x
		},
	}
	opMult = arithOp{
		verb:  "multiplied",
		apply: (*big.Int).Mul,
		pointer: func(x, y uint64) (uint64, bool) {
			if x == 0 || y == 0 {
				return 0, true
			}
			r := x * y
			return r, r/y == x
		},
	}
	opDiv = arithOp{
		verb:  "divided",
		div:   true,
		apply: (*big.Int).Quo,
		pointer: func(x, y uint64) (uint64, bool) {
			return x / y, true
		},
	}
)

// Add returns v + other, promoting through wider integers on overflow.
func (v RuntimeValue) Add(other RuntimeValue, heap *gc.Gc) (RuntimeValue, error) {
	return v.arith(opAdd, other, heap)
}

// Sub returns v - other, promoting through wider integers on overflow.
func (v RuntimeValue) Sub(other RuntimeValue, heap *gc.Gc) (RuntimeValue, error) {
	return v.arith(opSub, other, heap)
}

// Mult returns v * other, promoting through wider integers on overflow.
func (v RuntimeValue) Mult(other RuntimeValue, heap *gc.Gc) (RuntimeValue, error) {
	return v.arith(opMult, other, heap)
}

// Div returns v / other truncated toward zero.
func (v RuntimeValue) Div(other RuntimeValue, heap *gc.Gc) (RuntimeValue, error) {
	return v.arith(opDiv, other, heap)
}

func (v RuntimeValue) arith(op arithOp, other RuntimeValue, heap *gc.Gc) (RuntimeValue, error) {
	left, right, err := operands(v, other, heap, op.verb)
	if err != nil {
		return RuntimeValue{}, err
	}

	switch {
	case left.typ == TypePointer:
		if op.div && right.lo == 0 {
			return RuntimeValue{}, fault.Newf(fault.DivideByZero, "attempted to divide 0x%x by zero", left.lo)
		}
		r, ok := op.pointer(left.lo, right.lo)
		if !ok {
			return RuntimeValue{}, fault.Newf(fault.IntegerOverflow,
				"the attempted operation is too large to fit in a '%s'", left.typ)
		}
		return NewPointer(r), nil

	case left.typ.IsInteger():
		x, err := left.bigInt(heap)
		if err != nil {
			return RuntimeValue{}, err
		}
		y, err := right.bigInt(heap)
		if err != nil {
			return RuntimeValue{}, err
		}
		if op.div && y.Sign() == 0 {
			return RuntimeValue{}, fault.Newf(fault.DivideByZero, "attempted to divide %s by zero", x)
		}
		return promote(left.typ, op.apply(new(big.Int), x, y), heap)

	default:
		return RuntimeValue{}, fault.Newf(fault.IncompatibleTypes,
			"values of types '%s' and '%s' cannot be %s", left.typ, right.typ, op.verb)
	}
}

// operands resolves both sides of a binary operation and checks that they
// share a type.
func operands(left, right RuntimeValue, heap *gc.Gc, verb string) (RuntimeValue, RuntimeValue, error) {
	if left.IsNone() || right.IsNone() {
		return RuntimeValue{}, RuntimeValue{}, fault.Newf(fault.NullVar,
			"values of types '%s' and '%s' cannot be %s", left.typ, right.typ, verb)
	}

	l, err := left.Resolve(heap)
	if err != nil {
		return RuntimeValue{}, RuntimeValue{}, err
	}
	r, err := right.Resolve(heap)
	if err != nil {
		return RuntimeValue{}, RuntimeValue{}, err
	}
	if l.IsNone() || r.IsNone() {
		return RuntimeValue{}, RuntimeValue{}, fault.Newf(fault.NullVar,
			"values of types '%s' and '%s' cannot be %s", l.typ, r.typ, verb)
	}
	if l.typ != r.typ {
		return RuntimeValue{}, RuntimeValue{}, fault.Newf(fault.IncompatibleTypes,
			"values of types '%s' and '%s' cannot be %s", l.typ, r.typ, verb)
	}
	return l, r, nil
}
