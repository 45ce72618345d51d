package bytecode

import (
	"encoding/binary"
	"math"
	"reflect"
	"testing"

	"github.com/chazu/crunch/pkg/fault"
	"github.com/chazu/crunch/pkg/value"
)

// everyInstruction uses each opcode at least once, with operands at the edges
// of their ranges.
func everyInstruction() []Instruction {
	return []Instruction{
		Illegal(),
		Load(value.Bool(true), 0),
		Load(value.Bool(false), 1),
		Load(value.Int(math.MinInt32), 2),
		Load(value.Int(math.MaxInt32), 3),
		Load(value.Pointer(math.MaxUint64), 4),
		Load(value.String("hello world"), 254),
		Load(value.String(""), 5),
		Load(value.NoneValue(), 6),
		Cache(0, value.Int(10), 0),
		Cache(math.MaxUint32, value.String("cached"), 7),
		Cache(3, value.Bool(false), 8),
		CompToReg(9),
		OpToReg(10),
		Save(12, 11),
		DropReg(12),
		Drop(99),
		Add(0, 1),
		Sub(2, 3),
		Mult(4, 5),
		Div(6, 7),
		Print(8),
		Jump(-3),
		JumpComp(math.MaxInt32),
		JumpPoint(7),
		And(1, 2),
		Or(3, 4),
		Xor(5, 6),
		Not(7),
		Eq(0, 1),
		NotEq(1, 2),
		GreaterThan(2, 3),
		LessThan(3, 4),
		GreaterEq(4, 5),
		LessEq(5, 6),
		Collect(),
		Return(),
		Halt(),
		Syscall(0xFF, 1, 2, 3, 4, 5, 6),
		Func(math.MaxUint32),
		NoOp(),
	}
}

func TestRoundTrip(t *testing.T) {
	main := everyInstruction()
	others := [][]Instruction{
		{Load(value.String("hello world"), 0), Print(0), Return()},
		{},
		{Func(1), Return()},
	}

	data, err := Encode(main, others)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	gotMain, gotOthers, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(gotMain, main) {
		t.Errorf("main mismatch:\n got %v\nwant %v", gotMain, main)
	}
	if len(gotOthers) != len(others) {
		t.Fatalf("decoded %d auxiliary functions, want %d", len(gotOthers), len(others))
	}
	for i := range others {
		if len(gotOthers[i]) != len(others[i]) {
			t.Errorf("function %d has %d instructions, want %d", i+1, len(gotOthers[i]), len(others[i]))
			continue
		}
		for j := range others[i] {
			if gotOthers[i][j] != others[i][j] {
				t.Errorf("function %d instruction %d = %s, want %s", i+1, j, gotOthers[i][j], others[i][j])
			}
		}
	}
}

func TestInstructionsAreEightBytes(t *testing.T) {
	main := []Instruction{Load(value.Int(1), 0), Halt()}
	data, err := Encode(main, nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// header + function count + instruction count + 2 instructions + empty pool
	want := headerLen + 4 + 4 + 2*InstructionLength + 4
	if len(data) != want {
		t.Errorf("encoded length = %d, want %d", len(data), want)
	}
}

func TestConstantsAreDeduplicated(t *testing.T) {
	main := []Instruction{
		Load(value.String("same"), 0),
		Load(value.String("same"), 1),
		Cache(0, value.String("same"), 2),
	}
	data, err := Encode(main, nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	poolStart := headerLen + 4 + 4 + len(main)*InstructionLength
	if n := binary.BigEndian.Uint32(data[poolStart:]); n != 1 {
		t.Errorf("constant count = %d, want 1", n)
	}
}

func TestDecodeRejectsInvalidHeader(t *testing.T) {
	data, err := Encode([]Instruction{NoOp(), Halt()}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// First instruction byte follows the header, function count and
	// instruction count.
	data[headerLen+8] = 0x1B
	if _, _, err := Decode(data); !fault.IsKind(err, fault.BytecodeError) {
		t.Errorf("Decode with header 0x1B error = %v, want BytecodeError", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	valid, err := Encode([]Instruction{Load(value.String("x"), 0), Add(0, 1)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	firstInst := headerLen + 8

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		kind   fault.Kind
	}{
		{"short", func(b []byte) []byte { return b[:4] }, fault.BytecodeError},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }, fault.BytecodeError},
		{"future version", func(b []byte) []byte { b[5] = 9; return b }, fault.BytecodeError},
		{"truncated body", func(b []byte) []byte { return b[:firstInst+3] }, fault.BytecodeError},
		{"trailing bytes", func(b []byte) []byte { return append(b, 0) }, fault.BytecodeError},
		{"register out of range", func(b []byte) []byte { b[firstInst+8+2] = 255; return b }, fault.BytecodeError},
		{"constant out of range", func(b []byte) []byte { b[firstInst+7] = 5; return b }, fault.BytecodeError},
		{"bad load tag", func(b []byte) []byte { b[firstInst+2] = 9; return b }, fault.BytecodeError},
		{"no functions", func(b []byte) []byte {
			out := append([]byte{}, b[:headerLen]...)
			out = binary.BigEndian.AppendUint32(out, 0)
			return binary.BigEndian.AppendUint32(out, 0)
		}, fault.MissingMain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte{}, valid...))
			if _, _, err := Decode(data); !fault.IsKind(err, tt.kind) {
				t.Errorf("Decode error = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestEncodeRejectsUnrepresentable(t *testing.T) {
	if _, err := Encode([]Instruction{Print(255)}, nil); !fault.IsKind(err, fault.BytecodeError) {
		t.Errorf("Encode(print r255) error = %v, want BytecodeError", err)
	}
	if _, err := Encode([]Instruction{{Op: 0x40}}, nil); !fault.IsKind(err, fault.BytecodeError) {
		t.Errorf("Encode(header 0x40) error = %v, want BytecodeError", err)
	}
}
