// Package value defines the values that flow through the virtual machine.
//
// Value is the at-rest form embedded in bytecode operands and heap slots.
// RuntimeValue is what a register holds during execution: either a value
// living directly in the register, or a reference to a heap slot that must be
// resolved through the collector.
package value

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/crunch/pkg/fault"
)

// Kind is the variant tag of a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindPointer
	KindString
)

var kindNames = [...]string{
	KindNone:    "None",
	KindBool:    "Bool",
	KindInt:     "Int",
	KindPointer: "Pointer",
	KindString:  "String",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is an immutable tagged payload. The zero Value is None, the absence
// sentinel, which is never a valid arithmetic operand.
type Value struct {
	kind Kind
	b    bool
	i    int32
	p    uint64
	s    string
}

// Bool creates a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int creates a signed 32-bit integer value.
func Int(i int32) Value { return Value{kind: KindInt, i: i} }

// Pointer creates a pointer-sized unsigned value.
func Pointer(p uint64) Value { return Value{kind: KindPointer, p: p} }

// String creates a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// NoneValue returns the absence sentinel.
func NoneValue() Value { return Value{} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNone reports whether v is the absence sentinel.
func (v Value) IsNone() bool { return v.kind == KindNone }

// AsBool returns the boolean payload; false for other kinds.
func (v Value) AsBool() bool { return v.b }

// AsInt returns the integer payload; zero for other kinds.
func (v Value) AsInt() int32 { return v.i }

// AsPointer returns the pointer payload; zero for other kinds.
func (v Value) AsPointer() uint64 { return v.p }

// AsString returns the string payload; empty for other kinds.
func (v Value) AsString() string { return v.s }

// Size is the number of heap bytes accounted for the value when cached.
func (v Value) Size() int {
	return 16 + len(v.s)
}

// Equal compares two values of the same kind. Comparing different kinds is
// IncompatibleTypes; comparing against None is NullVar.
func (v Value) Equal(other Value) (bool, error) {
	c, err := v.Compare(other)
	if err != nil {
		return false, err
	}
	return c == 0, nil
}

// Compare orders two values of the same kind, returning -1, 0 or 1.
func (v Value) Compare(other Value) (int, error) {
	if v.kind == KindNone || other.kind == KindNone {
		return 0, fault.Newf(fault.NullVar, "values of kinds '%s' and '%s' cannot be compared", v.kind, other.kind)
	}
	if v.kind != other.kind {
		return 0, fault.Newf(fault.IncompatibleTypes, "values of kinds '%s' and '%s' cannot be compared", v.kind, other.kind)
	}

	switch v.kind {
	case KindBool:
		return compareBools(v.b, other.b), nil
	case KindInt:
		return compareOrdered(v.i, other.i), nil
	case KindPointer:
		return compareOrdered(v.p, other.p), nil
	default:
		return strings.Compare(v.s, other.s), nil
	}
}

// String renders the value with its variant, e.g. Int(50).
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("Bool(%t)", v.b)
	case KindInt:
		return fmt.Sprintf("Int(%d)", v.i)
	case KindPointer:
		return fmt.Sprintf("Pointer(0x%x)", v.p)
	case KindString:
		return fmt.Sprintf("String(%s)", strconv.Quote(v.s))
	default:
		return "None"
	}
}

// Display renders the payload alone, the way Print writes it.
func (v Value) Display() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(int64(v.i), 10)
	case KindPointer:
		return fmt.Sprintf("0x%x", v.p)
	case KindString:
		return v.s
	default:
		return TypeNone.String()
	}
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func compareOrdered[T int32 | uint64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
