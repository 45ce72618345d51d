package value

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/chazu/crunch/pkg/fault"
	"github.com/chazu/crunch/pkg/gc"
)

// Type is the type tag of a RuntimeValue.
type Type uint8

const (
	TypeNone Type = iota
	TypeBool

	TypeByte
	TypeU16
	TypeU32
	TypeU64
	TypeU128
	TypeBigUint

	TypeIByte
	TypeI16
	TypeI32
	TypeI64
	TypeI128
	TypeBigInt

	TypePointer
	TypeString
)

var typeNames = [...]string{
	TypeNone:    "NoneType",
	TypeBool:    "bool",
	TypeByte:    "byte",
	TypeU16:     "uint16",
	TypeU32:     "uint",
	TypeU64:     "uint64",
	TypeU128:    "uint128",
	TypeBigUint: "biguint",
	TypeIByte:   "ibyte",
	TypeI16:     "int16",
	TypeI32:     "int",
	TypeI64:     "int64",
	TypeI128:    "int128",
	TypeBigInt:  "bigint",
	TypePointer: "ptr",
	TypeString:  "str",
}

// String returns the language-level name of the type.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// IsInteger reports whether t is on one of the integer width ladders.
func (t Type) IsInteger() bool {
	return t >= TypeByte && t <= TypeBigInt
}

// IsBig reports whether t is an arbitrary precision integer. Big integers
// always live on the heap.
func (t Type) IsBig() bool {
	return t == TypeBigUint || t == TypeBigInt
}

// Signed reports whether t is on the signed ladder.
func (t Type) Signed() bool {
	return t >= TypeIByte && t <= TypeBigInt
}

// RuntimeValue is the value held in a register. The zero RuntimeValue is an
// empty register (None).
//
// Integers up to 128 bits are stored as two's complement words so register
// values copy by value. A cached value carries only its type and the heap
// slot that holds the payload.
type RuntimeValue struct {
	typ    Type
	cached bool
	id     gc.AllocId
	lo, hi uint64
	str    string
}

// None returns an empty register value.
func None() RuntimeValue { return RuntimeValue{} }

// NewBool creates a register boolean.
func NewBool(b bool) RuntimeValue {
	v := RuntimeValue{typ: TypeBool}
	if b {
		v.lo = 1
	}
	return v
}

// NewPointer creates a register pointer.
func NewPointer(p uint64) RuntimeValue { return RuntimeValue{typ: TypePointer, lo: p} }

// NewString creates a register string.
func NewString(s string) RuntimeValue { return RuntimeValue{typ: TypeString, str: s} }

// NewByte creates a register byte.
func NewByte(u uint8) RuntimeValue { return fromUint64(TypeByte, uint64(u)) }

// NewU16 creates a register uint16.
func NewU16(u uint16) RuntimeValue { return fromUint64(TypeU16, uint64(u)) }

// NewU32 creates a register uint.
func NewU32(u uint32) RuntimeValue { return fromUint64(TypeU32, uint64(u)) }

// NewU64 creates a register uint64.
func NewU64(u uint64) RuntimeValue { return fromUint64(TypeU64, u) }

// NewIByte creates a register ibyte.
func NewIByte(i int8) RuntimeValue { return fromInt64(TypeIByte, int64(i)) }

// NewI16 creates a register int16.
func NewI16(i int16) RuntimeValue { return fromInt64(TypeI16, int64(i)) }

// NewI32 creates a register int, the rung Value Int loads as.
func NewI32(i int32) RuntimeValue { return fromInt64(TypeI32, int64(i)) }

// NewI64 creates a register int64.
func NewI64(i int64) RuntimeValue { return fromInt64(TypeI64, i) }

// NewU128 creates a register uint128 from its high and low words.
func NewU128(hi, lo uint64) RuntimeValue {
	return RuntimeValue{typ: TypeU128, hi: hi, lo: lo}
}

// NewInteger creates a register integer of type t from x. x must fit the
// rung; arbitrary precision types need NewBig.
func NewInteger(t Type, x *big.Int) (RuntimeValue, error) {
	r, ok := rungs[t]
	if !ok || t.IsBig() {
		return RuntimeValue{}, fault.Newf(fault.IncompatibleTypes, "'%s' is not a fixed width integer type", t)
	}
	if !r.fits(x) {
		return RuntimeValue{}, fault.Newf(fault.IntegerOverflow, "%s does not fit in a '%s'", x, t)
	}
	hi, lo := words(x)
	return RuntimeValue{typ: t, hi: hi, lo: lo}, nil
}

// NewBig allocates an arbitrary precision integer on the heap. The slot is
// not rooted.
func NewBig(t Type, x *big.Int, heap *gc.Gc) (RuntimeValue, error) {
	if !t.IsBig() {
		return RuntimeValue{}, fault.Newf(fault.IncompatibleTypes, "'%s' is not an arbitrary precision type", t)
	}
	if t == TypeBigUint && x.Sign() < 0 {
		return RuntimeValue{}, fault.Newf(fault.IntegerOverflow, "%s does not fit in a '%s'", x, t)
	}

	size := 16 + (x.BitLen()+7)/8
	handle, id, err := heap.Allocate(size)
	if err != nil {
		return RuntimeValue{}, err
	}
	if err := heap.Write(id, new(big.Int).Set(x), &handle); err != nil {
		return RuntimeValue{}, err
	}
	return NewCached(t, id), nil
}

// NewCached creates a register value referring to a heap slot.
func NewCached(t Type, id gc.AllocId) RuntimeValue {
	return RuntimeValue{typ: t, cached: true, id: id}
}

// FromValue converts an at-rest value into its register form. None is not a
// loadable operand and yields NullVar.
func FromValue(v Value) (RuntimeValue, error) {
	switch v.Kind() {
	case KindBool:
		return NewBool(v.AsBool()), nil
	case KindInt:
		return NewI32(v.AsInt()), nil
	case KindPointer:
		return NewPointer(v.AsPointer()), nil
	case KindString:
		return NewString(v.AsString()), nil
	default:
		return RuntimeValue{}, fault.New(fault.NullVar, "None cannot be loaded as an operand")
	}
}

// TypeOf returns the runtime type a Value loads as.
func TypeOf(v Value) Type {
	switch v.Kind() {
	case KindBool:
		return TypeBool
	case KindInt:
		return TypeI32
	case KindPointer:
		return TypePointer
	case KindString:
		return TypeString
	default:
		return TypeNone
	}
}

func fromUint64(t Type, u uint64) RuntimeValue {
	return RuntimeValue{typ: t, lo: u}
}

func fromInt64(t Type, i int64) RuntimeValue {
	v := RuntimeValue{typ: t, lo: uint64(i)}
	if i < 0 {
		v.hi = ^uint64(0)
	}
	return v
}

// Type returns the type tag.
func (v RuntimeValue) Type() Type { return v.typ }

// IsNone reports whether the register is empty.
func (v RuntimeValue) IsNone() bool { return v.typ == TypeNone }

// IsCached reports whether the payload lives on the heap.
func (v RuntimeValue) IsCached() bool { return v.cached }

// ID returns the heap slot of a cached value.
func (v RuntimeValue) ID() gc.AllocId { return v.id }

// AsBool returns the boolean payload of a register value.
func (v RuntimeValue) AsBool() bool { return v.lo != 0 }

// AsPointer returns the pointer payload of a register value.
func (v RuntimeValue) AsPointer() uint64 { return v.lo }

// AsString returns the string payload of a register value.
func (v RuntimeValue) AsString() string { return v.str }

// Int64 returns a signed register integer of at most 64 bits.
func (v RuntimeValue) Int64() (int64, bool) {
	if v.cached || !v.typ.Signed() || v.typ == TypeI128 || v.typ.IsBig() {
		return 0, false
	}
	return int64(v.lo), true
}

// Uint64 returns an unsigned register integer of at most 64 bits.
func (v RuntimeValue) Uint64() (uint64, bool) {
	if v.cached || !v.typ.IsInteger() || v.typ.Signed() || v.typ == TypeU128 || v.typ.IsBig() {
		return 0, false
	}
	return v.lo, true
}

// SameType is the shallow equality: it compares type tags only and never
// touches the heap. Use Equal to compare payloads.
func (v RuntimeValue) SameType(other RuntimeValue) bool {
	return v.typ == other.typ
}

// References implements gc.Referencer so a heap slot holding a cached value
// keeps the referenced slot alive.
func (v RuntimeValue) References() []gc.AllocId {
	if v.cached {
		return []gc.AllocId{v.id}
	}
	return nil
}

// Size is the number of heap bytes accounted for the value when saved.
func (v RuntimeValue) Size() int {
	return 32 + len(v.str)
}

// maxResolveDepth bounds chains of cached values referring to cached values.
const maxResolveDepth = 16

// Resolve dereferences a cached scalar into its register form. Register
// values and cached big integers are returned unchanged. Resolving a slot
// that no longer exists is a GcError.
func (v RuntimeValue) Resolve(heap *gc.Gc) (RuntimeValue, error) {
	for depth := 0; depth < maxResolveDepth; depth++ {
		if !v.cached || v.typ.IsBig() {
			if v.cached {
				if _, err := gc.Fetch[*big.Int](heap, v.id); err != nil {
					return RuntimeValue{}, err
				}
			}
			return v, nil
		}

		payload, ok := heap.Peek(v.id)
		if !ok {
			return RuntimeValue{}, fault.Newf(fault.GcError,
				"stale reference: heap location %d holding a '%s' is not allocated", v.id, v.typ)
		}

		var next RuntimeValue
		switch p := payload.(type) {
		case Value:
			rv, err := FromValue(p)
			if err != nil {
				return RuntimeValue{}, err
			}
			next = rv
		case RuntimeValue:
			next = p
		default:
			return RuntimeValue{}, fault.Newf(fault.GcError, "heap location %d holds %T, not a '%s'", v.id, payload, v.typ)
		}
		if !next.IsNone() && next.typ != v.typ {
			return RuntimeValue{}, fault.Newf(fault.GcError,
				"heap location %d holds a '%s', expected a '%s'", v.id, next.typ, v.typ)
		}
		v = next
	}
	return RuntimeValue{}, fault.Newf(fault.GcError, "heap reference chain at %d is too deep", v.id)
}

// Display renders the value the way Print writes it.
func (v RuntimeValue) Display(heap *gc.Gc) (string, error) {
	v, err := v.Resolve(heap)
	if err != nil {
		return "", err
	}

	switch {
	case v.typ == TypeNone:
		return v.typ.String(), nil
	case v.typ == TypeBool:
		return strconv.FormatBool(v.AsBool()), nil
	case v.typ == TypePointer:
		return fmt.Sprintf("0x%x", v.lo), nil
	case v.typ == TypeString:
		return v.str, nil
	case v.typ.IsInteger():
		x, err := v.bigInt(heap)
		if err != nil {
			return "", err
		}
		return x.String(), nil
	default:
		return "", fault.Newf(fault.IncompatibleTypes, "cannot display a value of type %s", v.typ)
	}
}

// String renders the register without touching the heap.
func (v RuntimeValue) String() string {
	if v.cached {
		return fmt.Sprintf("%s@%d", v.typ, v.id)
	}
	switch {
	case v.typ == TypeNone:
		return v.typ.String()
	case v.typ == TypeBool:
		return fmt.Sprintf("%s(%t)", v.typ, v.AsBool())
	case v.typ == TypePointer:
		return fmt.Sprintf("%s(0x%x)", v.typ, v.lo)
	case v.typ == TypeString:
		return fmt.Sprintf("%s(%s)", v.typ, strconv.Quote(v.str))
	default:
		return fmt.Sprintf("%s(%s)", v.typ, v.big128())
	}
}

// bigInt returns the integer payload of a resolved integer value.
func (v RuntimeValue) bigInt(heap *gc.Gc) (*big.Int, error) {
	if v.cached {
		x, err := gc.Fetch[*big.Int](heap, v.id)
		if err != nil {
			return nil, err
		}
		return new(big.Int).Set(x), nil
	}
	return v.big128(), nil
}

var (
	two64  = new(big.Int).Lsh(big.NewInt(1), 64)
	two128 = new(big.Int).Lsh(big.NewInt(1), 128)
	mask64 = new(big.Int).Sub(two64, big.NewInt(1))
)

func (v RuntimeValue) big128() *big.Int {
	x := new(big.Int).SetUint64(v.hi)
	x.Lsh(x, 64)
	x.Or(x, new(big.Int).SetUint64(v.lo))
	if v.typ.Signed() && v.hi>>63 == 1 {
		x.Sub(x, two128)
	}
	return x
}

// words splits x into 128-bit two's complement words. x must fit in 128 bits.
func words(x *big.Int) (hi, lo uint64) {
	y := new(big.Int).Set(x)
	if y.Sign() < 0 {
		y.Add(y, two128)
	}
	lo = new(big.Int).And(y, mask64).Uint64()
	hi = new(big.Int).Rsh(y, 64).Uint64()
	return hi, lo
}
