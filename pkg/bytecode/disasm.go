package bytecode

import (
	"fmt"
	"strings"

	"github.com/chazu/crunch/pkg/value"
)

// Disassemble decodes a program and returns a human-readable listing.
func Disassemble(data []byte) (string, error) {
	main, others, err := Decode(data)
	if err != nil {
		return "", err
	}
	return DisassembleProgram(main, others), nil
}

// DisassembleProgram returns a listing of main followed by the auxiliary
// functions. Register operands are annotated with their statically known
// contents, tracked along each function from Load, Cache, Save and Drop.
func DisassembleProgram(main []Instruction, others [][]Instruction) string {
	var sb strings.Builder

	sb.WriteString("=> Main Function\n")
	disassembleFunction(&sb, main)

	for i, fn := range others {
		sb.WriteString(fmt.Sprintf("=> Function %d\n", i+1))
		disassembleFunction(&sb, fn)
	}
	return sb.String()
}

// DisassembleToLines returns the listing of a single function, one line per
// instruction, without the function header.
func DisassembleToLines(fn []Instruction) []string {
	var sb strings.Builder
	disassembleFunction(&sb, fn)
	return strings.Split(strings.TrimSuffix(sb.String(), "\n"), "\n")
}

// tracker follows the statically known register and heap contents.
type tracker struct {
	registers [NumberRegisters]value.Value
	heap      map[uint32]value.Value
}

func (t *tracker) reg(r Register) string {
	if r.Valid() && !t.registers[r].IsNone() {
		return fmt.Sprintf("%s: %s", r, t.registers[r])
	}
	return r.String()
}

func (t *tracker) set(r Register, v value.Value) {
	if r.Valid() {
		t.registers[r] = v
	}
}

func (t *tracker) apply(inst Instruction) {
	switch inst.Op {
	case OpLoad:
		t.set(inst.Regs[0], inst.Value)
	case OpCache:
		t.heap[inst.Loc] = inst.Value
		t.set(inst.Regs[0], inst.Value)
	case OpSave:
		if inst.Regs[0].Valid() {
			t.heap[inst.Loc] = t.registers[inst.Regs[0]]
		}
	case OpDrop:
		delete(t.heap, inst.Loc)
	case OpDropReg, OpCompToReg, OpOpToReg:
		t.set(inst.Regs[0], value.NoneValue())
	case OpSyscall:
		t.set(inst.Regs[0], value.NoneValue())
	}
}

func disassembleFunction(sb *strings.Builder, fn []Instruction) {
	t := &tracker{heap: make(map[uint32]value.Value)}

	for pc, inst := range fn {
		// Operands are rendered against the state before the instruction.
		operands := t.operands(Index(pc), inst)
		t.apply(inst)

		if operands == "" {
			sb.WriteString(fmt.Sprintf("  %04d: %s\n", pc, inst.Mnemonic()))
		} else {
			sb.WriteString(fmt.Sprintf("  %04d: %s %s\n", pc, inst.Mnemonic(), operands))
		}
	}
}

func (t *tracker) operands(pc Index, inst Instruction) string {
	switch inst.Op {
	case OpLoad:
		return fmt.Sprintf("%s, %s", inst.Regs[0], inst.Value)
	case OpCache:
		return fmt.Sprintf("@%d, %s, %s", inst.Loc, inst.Value, inst.Regs[0])
	case OpSave:
		return fmt.Sprintf("@%d, %s", inst.Loc, t.reg(inst.Regs[0]))
	case OpDrop:
		if v, ok := t.heap[inst.Loc]; ok {
			return fmt.Sprintf("@%d: %s", inst.Loc, v)
		}
		return fmt.Sprintf("@%d", inst.Loc)
	case OpCompToReg, OpOpToReg, OpDropReg:
		return inst.Regs[0].String()
	case OpPrint, OpNot:
		return t.reg(inst.Regs[0])
	case OpAdd, OpSub, OpMult, OpDiv, OpAnd, OpOr, OpXor, OpCompare:
		return fmt.Sprintf("%s, %s", t.reg(inst.Regs[0]), t.reg(inst.Regs[1]))
	case OpJump, OpJumpComp:
		if target, err := pc.Jump(inst.Offset); err == nil {
			return fmt.Sprintf("%+d -> %04d", inst.Offset, target)
		}
		return fmt.Sprintf("%+d", inst.Offset)
	case OpJumpPoint:
		return fmt.Sprintf("label %d", inst.Loc)
	case OpFunc:
		return fmt.Sprintf("%d", inst.Loc)
	case OpSyscall:
		params := make([]string, 5)
		for i := range params {
			params[i] = t.reg(inst.Regs[i+1])
		}
		return fmt.Sprintf("0x%X (%s) -> %s", inst.Table, strings.Join(params, ", "), inst.Regs[0])
	default:
		return ""
	}
}
