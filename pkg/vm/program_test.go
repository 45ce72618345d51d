package vm

import (
	"bytes"
	"testing"

	"github.com/chazu/crunch/pkg/builder"
	"github.com/chazu/crunch/pkg/bytecode"
	"github.com/chazu/crunch/pkg/fault"
	"github.com/chazu/crunch/pkg/value"
)

// buildProgram assembles a program that multiplies in a callee, counts down
// in a loop and round trips the product through a global heap slot.
func buildProgram(t *testing.T) ([][]bytecode.Instruction, []string) {
	t.Helper()
	b := builder.New()
	mul := b.Intern("mul")
	result := b.Intern("result")
	counter := b.Intern("counter")

	err := b.Function("main", func(b *builder.CodeBuilder, ctx *builder.FunctionContext) error {
		regs := make([]bytecode.Register, 4)
		for i := range regs {
			r, err := ctx.ReserveReg()
			if err != nil {
				return err
			}
			regs[i] = r
		}
		x, y, one, zero := regs[0], regs[1], regs[2], regs[3]
		n, err := ctx.ReserveRegSym(counter)
		if err != nil {
			return err
		}

		// The callee sees the caller's registers.
		ctx.Load(value.Int(6), x).
			Load(value.Int(7), y).
			FuncCall(mul).
			OpToReg(x).
			Print(x)

		top := b.NextJumpID()
		ctx.Load(value.Int(3), n).
			Load(value.Int(1), one).
			Load(value.Int(0), zero).
			JumpPoint(top).
			Print(n).
			Sub(n, one).
			OpToReg(n).
			NotEq(n, zero).
			JumpComp(top)

		ctx.CacheGlobal(result, value.Int(0), y).
			SaveGlobal(result, x).
			Print(y).
			DropGlobal(result).
			Collect().
			Halt()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = b.Function("mul", func(b *builder.CodeBuilder, ctx *builder.FunctionContext) error {
		ctx.Mult(254, 253)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	program, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return program, b.Symbols()
}

func TestBuiltProgramRuns(t *testing.T) {
	program, _ := buildProgram(t)

	var out bytes.Buffer
	vm := New(program, WithOutput(&out))
	if err := vm.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.String() != "4232142" {
		t.Errorf("output = %q, want 4232142", out.String())
	}
	if vm.Heap().Len() != 0 {
		t.Errorf("heap has %d live slots after dropping the global", vm.Heap().Len())
	}
}

func TestEncodedProgramRuns(t *testing.T) {
	program, names := buildProgram(t)

	img, err := bytecode.NewImage("main", names, program[0], program[1:])
	if err != nil {
		t.Fatal(err)
	}
	data, err := bytecode.MarshalImage(img)
	if err != nil {
		t.Fatal(err)
	}

	main, others, decoded, err := bytecode.ReadProgram(data)
	if err != nil {
		t.Fatalf("ReadProgram failed: %v", err)
	}
	if decoded.FunctionName(1) != "mul" {
		t.Errorf("function 1 is named %q, want mul", decoded.FunctionName(1))
	}

	var out bytes.Buffer
	vm := NewProgram(main, others, WithOutput(&out))
	if err := vm.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.String() != "4232142" {
		t.Errorf("output = %q, want 4232142", out.String())
	}
}

func TestUndeclaredLabelFaultsAtRun(t *testing.T) {
	b := builder.New()
	err := b.Function("main", func(b *builder.CodeBuilder, ctx *builder.FunctionContext) error {
		r, err := ctx.ReserveReg()
		if err != nil {
			return err
		}
		ctx.Jump(5).
			Load(value.Int(1), r).
			Print(r)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	program, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var out bytes.Buffer
	vm := New(program, WithOutput(&out))
	if err := vm.Run(); !fault.IsKind(err, fault.IllegalInstruction) {
		t.Errorf("Run error = %v, want IllegalInstruction", err)
	}
	if out.Len() != 0 {
		t.Errorf("output = %q, want nothing", out.String())
	}
}
