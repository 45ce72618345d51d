package value

import (
	"math"
	"math/big"
	"testing"

	"github.com/chazu/crunch/pkg/fault"
	"github.com/chazu/crunch/pkg/gc"
)

func TestFromValue(t *testing.T) {
	tests := []struct {
		v    Value
		want RuntimeValue
	}{
		{Bool(true), NewBool(true)},
		{Int(-7), NewI32(-7)},
		{Pointer(12), NewPointer(12)},
		{String("x"), NewString("x")},
	}

	for _, tt := range tests {
		got, err := FromValue(tt.v)
		if err != nil {
			t.Errorf("FromValue(%s) failed: %v", tt.v, err)
			continue
		}
		if got != tt.want {
			t.Errorf("FromValue(%s) = %s, want %s", tt.v, got, tt.want)
		}
		if TypeOf(tt.v) != got.Type() {
			t.Errorf("TypeOf(%s) = %s, want %s", tt.v, TypeOf(tt.v), got.Type())
		}
	}

	if _, err := FromValue(NoneValue()); !fault.IsKind(err, fault.NullVar) {
		t.Errorf("FromValue(None) error = %v, want NullVar", err)
	}
}

func TestArithmetic(t *testing.T) {
	heap := gc.New()
	tests := []struct {
		name string
		op   func(a, b RuntimeValue, heap *gc.Gc) (RuntimeValue, error)
		a, b RuntimeValue
		want RuntimeValue
	}{
		{"add", RuntimeValue.Add, NewI32(10), NewI32(50), NewI32(60)},
		{"sub", RuntimeValue.Sub, NewI32(10), NewI32(50), NewI32(-40)},
		{"mult", RuntimeValue.Mult, NewU32(6), NewU32(7), NewU32(42)},
		{"div", RuntimeValue.Div, NewI32(7), NewI32(-2), NewI32(-3)},
		{"ptr add", RuntimeValue.Add, NewPointer(0x10), NewPointer(0x20), NewPointer(0x30)},
		{"byte promotes", RuntimeValue.Add, NewByte(200), NewByte(100), NewU16(300)},
		{"int promotes", RuntimeValue.Add, NewI32(math.MaxInt32), NewI32(1), NewI64(math.MaxInt32 + 1)},
		{"negative promotes", RuntimeValue.Sub, NewIByte(-100), NewIByte(100), NewI16(-200)},
		{"u64 promotes", RuntimeValue.Mult, NewU64(math.MaxUint64), NewU64(2), NewU128(1, math.MaxUint64-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op(tt.a, tt.b, heap)
			if err != nil {
				t.Fatalf("failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestU128OverflowPromotesToBigInt(t *testing.T) {
	heap := gc.New()
	max := NewU128(math.MaxUint64, math.MaxUint64)

	got, err := max.Add(NewU128(0, 1), heap)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if got.Type() != TypeBigInt {
		t.Fatalf("type = %s, want bigint", got.Type())
	}
	if !got.IsCached() {
		t.Fatal("big integer result is not cached on the heap")
	}
	if heap.IsRoot(got.ID()) {
		t.Error("big integer result should not be rooted")
	}

	s, err := got.Display(heap)
	if err != nil {
		t.Fatalf("Display failed: %v", err)
	}
	if s != "340282366920938463463374607431768211456" {
		t.Errorf("Display = %s", s)
	}

	// Arithmetic continues on the heap value.
	one, err := NewBig(TypeBigInt, bigOne(), heap)
	if err != nil {
		t.Fatal(err)
	}
	back, err := got.Sub(one, heap)
	if err != nil {
		t.Fatalf("Sub failed: %v", err)
	}
	s, _ = back.Display(heap)
	if s != "340282366920938463463374607431768211455" {
		t.Errorf("Display after Sub = %s", s)
	}
}

func TestArithmeticErrors(t *testing.T) {
	heap := gc.New()
	tests := []struct {
		name string
		op   func(a, b RuntimeValue, heap *gc.Gc) (RuntimeValue, error)
		a, b RuntimeValue
		kind fault.Kind
	}{
		{"divide by zero", RuntimeValue.Div, NewI32(1), NewI32(0), fault.DivideByZero},
		{"pointer divide by zero", RuntimeValue.Div, NewPointer(1), NewPointer(0), fault.DivideByZero},
		{"pointer overflow", RuntimeValue.Add, NewPointer(math.MaxUint64), NewPointer(1), fault.IntegerOverflow},
		{"pointer underflow", RuntimeValue.Sub, NewPointer(0), NewPointer(1), fault.IntegerOverflow},
		{"none operand", RuntimeValue.Add, None(), NewI32(1), fault.NullVar},
		{"mixed widths", RuntimeValue.Add, NewI32(1), NewU32(1), fault.IncompatibleTypes},
		{"bool arithmetic", RuntimeValue.Add, NewBool(true), NewBool(true), fault.IncompatibleTypes},
		{"string arithmetic", RuntimeValue.Mult, NewString("a"), NewString("b"), fault.IncompatibleTypes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.op(tt.a, tt.b, heap)
			if !fault.IsKind(err, tt.kind) {
				t.Errorf("error = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestBitwise(t *testing.T) {
	heap := gc.New()

	got, err := NewByte(0xF0).BitAnd(NewByte(0x3C), heap)
	if err != nil || got != NewByte(0x30) {
		t.Errorf("0xF0 & 0x3C = %s, %v; want byte(48)", got, err)
	}
	got, err = NewI32(5).BitOr(NewI32(2), heap)
	if err != nil || got != NewI32(7) {
		t.Errorf("5 | 2 = %s, %v; want int(7)", got, err)
	}
	got, err = NewBool(true).BitXor(NewBool(true), heap)
	if err != nil || got != NewBool(false) {
		t.Errorf("true ^ true = %s, %v; want false", got, err)
	}

	nots := []struct {
		in, want RuntimeValue
	}{
		{NewByte(0), NewByte(255)},
		{NewU16(1), NewU16(0xFFFE)},
		{NewI32(0), NewI32(-1)},
		{NewBool(true), NewBool(false)},
		{NewPointer(0), NewPointer(math.MaxUint64)},
	}
	for _, tt := range nots {
		got, err := tt.in.Not(heap)
		if err != nil {
			t.Errorf("Not(%s) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Not(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}

	huge, err := NewBig(TypeBigUint, bigOne(), heap)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := huge.Not(heap); !fault.IsKind(err, fault.IncompatibleTypes) {
		t.Errorf("Not(biguint) error = %v, want IncompatibleTypes", err)
	}
	if _, err := NewString("s").Not(heap); !fault.IsKind(err, fault.IncompatibleTypes) {
		t.Errorf("Not(str) error = %v, want IncompatibleTypes", err)
	}
}

func TestSameTypeAndEqual(t *testing.T) {
	heap := gc.New()
	a, b := NewI32(1), NewI32(2)

	if !a.SameType(b) {
		t.Error("SameType(int, int) = false")
	}
	eq, err := a.Equal(b, heap)
	if err != nil || eq {
		t.Errorf("Equal(1, 2) = %v, %v; want false, nil", eq, err)
	}

	eq, err = NewI32(1).Equal(NewU32(1), heap)
	if err != nil || eq {
		t.Errorf("Equal(int 1, uint 1) = %v, %v; want false, nil", eq, err)
	}
	if _, err := None().Equal(a, heap); !fault.IsKind(err, fault.NullVar) {
		t.Errorf("Equal(None, int) error = %v, want NullVar", err)
	}
	if _, err := a.Compare(NewString("1"), heap); !fault.IsKind(err, fault.IncompatibleTypes) {
		t.Errorf("Compare(int, str) error = %v, want IncompatibleTypes", err)
	}
}

func TestCachedResolution(t *testing.T) {
	heap := gc.New()
	h, id, err := heap.AllocateID(Int(42).Size(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := heap.Write(id, Int(42), &h); err != nil {
		t.Fatal(err)
	}

	cached := NewCached(TypeI32, id)
	sum, err := cached.Add(NewI32(8), heap)
	if err != nil {
		t.Fatalf("Add on cached value failed: %v", err)
	}
	if sum != NewI32(50) {
		t.Errorf("sum = %s, want int(50)", sum)
	}

	eq, err := cached.Equal(NewI32(42), heap)
	if err != nil || !eq {
		t.Errorf("cached Equal = %v, %v; want true, nil", eq, err)
	}
	if cached.String() != "int@3" {
		t.Errorf("String() = %q, want %q", cached.String(), "int@3")
	}

	stale := NewCached(TypeI32, 99)
	if _, err := stale.Resolve(heap); !fault.IsKind(err, fault.GcError) {
		t.Errorf("stale Resolve error = %v, want GcError", err)
	}

	wrong := NewCached(TypeString, id)
	if _, err := wrong.Resolve(heap); !fault.IsKind(err, fault.GcError) {
		t.Errorf("mistyped Resolve error = %v, want GcError", err)
	}
}

func TestDisplay(t *testing.T) {
	heap := gc.New()
	tests := []struct {
		v    RuntimeValue
		want string
	}{
		{NewI32(-60), "-60"},
		{NewU128(1, 0), "18446744073709551616"},
		{NewBool(false), "false"},
		{NewPointer(0x2a), "0x2a"},
		{NewString("hello"), "hello"},
		{None(), "NoneType"},
	}

	for _, tt := range tests {
		got, err := tt.v.Display(heap)
		if err != nil {
			t.Errorf("Display(%s) failed: %v", tt.v, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Display(%s) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestNewIntegerRange(t *testing.T) {
	if _, err := NewInteger(TypeByte, bigOne().Lsh(bigOne(), 8)); !fault.IsKind(err, fault.IntegerOverflow) {
		t.Errorf("NewInteger(byte, 256) error = %v, want IntegerOverflow", err)
	}
	if _, err := NewInteger(TypeBigInt, bigOne()); !fault.IsKind(err, fault.IncompatibleTypes) {
		t.Errorf("NewInteger(bigint) error = %v, want IncompatibleTypes", err)
	}
	v, err := NewInteger(TypeI16, bigOne().Neg(bigOne()))
	if err != nil || v != NewI16(-1) {
		t.Errorf("NewInteger(int16, -1) = %s, %v", v, err)
	}
}

func bigOne() *big.Int { return big.NewInt(1) }
