package bytecode

import (
	"math"
	"testing"

	"github.com/chazu/crunch/pkg/fault"
	"github.com/chazu/crunch/pkg/value"
)

func TestIndexJump(t *testing.T) {
	// Each case starts where the previous one landed.
	tests := []struct {
		offset int32
		want   Index
	}{
		{10, 11},
		{-10, 2},
		{0, 3},
		{-3, 1},
	}

	pc := Index(0)
	for _, tt := range tests {
		next, err := pc.Jump(tt.offset)
		if err != nil {
			t.Fatalf("Index(%d).Jump(%d) failed: %v", pc, tt.offset, err)
		}
		if next != tt.want {
			t.Errorf("Index(%d).Jump(%d) = %d, want %d", pc, tt.offset, next, tt.want)
		}
		pc = next
	}
}

func TestIndexJumpUnderflow(t *testing.T) {
	if _, err := Index(1).Jump(-5); !fault.IsKind(err, fault.InvalidJump) {
		t.Errorf("underflowing jump error = %v, want InvalidJump", err)
	}
	if _, err := Index(math.MaxUint32).Jump(1); !fault.IsKind(err, fault.InvalidJump) {
		t.Errorf("overflowing jump error = %v, want InvalidJump", err)
	}
	if _, err := Index(math.MaxUint32).Next(); !fault.IsKind(err, fault.InvalidJump) {
		t.Errorf("Next at the end of the index space error = %v, want InvalidJump", err)
	}
}

func TestRegisterRange(t *testing.T) {
	if !Register(NumberRegisters - 1).Valid() {
		t.Errorf("r%d should be valid", NumberRegisters-1)
	}
	if Register(NumberRegisters).Valid() {
		t.Errorf("r%d should be outside the register file", NumberRegisters)
	}
}

func TestValidate(t *testing.T) {
	if err := Add(0, 254).Validate(); err != nil {
		t.Errorf("Add(r0, r254).Validate() = %v", err)
	}
	if err := Add(0, 255).Validate(); !fault.IsKind(err, fault.BytecodeError) {
		t.Errorf("Add(r0, r255).Validate() = %v, want BytecodeError", err)
	}
	if err := Compare(Comparator(9), 0, 1).Validate(); !fault.IsKind(err, fault.BytecodeError) {
		t.Errorf("bad comparator Validate() = %v, want BytecodeError", err)
	}
	if err := (Instruction{Op: 0x1B}).Validate(); !fault.IsKind(err, fault.BytecodeError) {
		t.Errorf("bad header Validate() = %v, want BytecodeError", err)
	}
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		inst Instruction
		want string
	}{
		{Load(value.Int(50), 0), "ld r0, Int(50)"},
		{Cache(2, value.String("hi"), 1), `cache @2, String("hi"), r1`},
		{Sub(3, 4), "sub r3, r4"},
		{Jump(-3), "jmp -3"},
		{Func(2), "func 2"},
		{Halt(), "halt"},
	}

	for _, tt := range tests {
		if got := tt.inst.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
