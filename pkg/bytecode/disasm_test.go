package bytecode

import (
	"strings"
	"testing"

	"github.com/chazu/crunch/pkg/value"
)

func TestDisassembleProgramHeaders(t *testing.T) {
	output := DisassembleProgram(
		[]Instruction{Halt()},
		[][]Instruction{{Return()}, {Return()}},
	)

	for _, want := range []string{"=> Main Function\n", "=> Function 1\n", "=> Function 2\n"} {
		if !strings.Contains(output, want) {
			t.Errorf("listing missing %q:\n%s", want, output)
		}
	}
}

func TestDisassembleTracksRegisters(t *testing.T) {
	lines := DisassembleToLines([]Instruction{
		Load(value.Int(50), 0),
		Cache(1, value.Int(10), 1),
		Add(0, 1),
		OpToReg(2),
		Print(2),
		DropReg(0),
		Print(0),
		Halt(),
	})

	want := []string{
		"  0000: ld r0, Int(50)",
		"  0001: cache @1, Int(10), r1",
		"  0002: add r0: Int(50), r1: Int(10)",
		"  0003: opr r2",
		"  0004: print r2",
		"  0005: dropr r0",
		"  0006: print r0",
		"  0007: halt",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), strings.Join(lines, "\n"))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestDisassembleJumpTargets(t *testing.T) {
	lines := DisassembleToLines([]Instruction{
		NoOp(),
		NoOp(),
		NoOp(),
		Jump(-3),
		JumpComp(-10),
	})

	if lines[3] != "  0003: jmp -3 -> 0001" {
		t.Errorf("jump line = %q", lines[3])
	}
	if lines[4] != "  0004: jmpcmp -10" {
		t.Errorf("out of range jump line = %q", lines[4])
	}
}

func TestDisassembleEncoded(t *testing.T) {
	data, err := Encode([]Instruction{
		Load(value.String("hi"), 3),
		Print(3),
		Syscall(0, 4, 3, 0, 0, 0, 0),
		LessEq(3, 4),
		Halt(),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	output, err := Disassemble(data)
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	for _, want := range []string{
		`print r3: String("hi")`,
		`sysc 0x0 (r3: String("hi"), r0, r0, r0, r0) -> r4`,
		`lee r3: String("hi"), r4`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("listing missing %q:\n%s", want, output)
		}
	}
}

func TestDisassembleRejectsBadProgram(t *testing.T) {
	if _, err := Disassemble([]byte("nope")); err == nil {
		t.Error("Disassemble of garbage succeeded")
	}
}
