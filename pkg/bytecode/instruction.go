package bytecode

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/crunch/pkg/fault"
	"github.com/chazu/crunch/pkg/value"
)

// NumberRegisters is the size of the register file.
const NumberRegisters = 255

// Register is an index into the register file.
type Register uint8

// Valid reports whether r addresses a slot of the register file.
func (r Register) Valid() bool {
	return int(r) < NumberRegisters
}

func (r Register) String() string {
	return fmt.Sprintf("r%d", uint8(r))
}

// Index is a program counter, counted in instructions.
type Index uint32

// Next returns the index of the following instruction.
func (i Index) Next() (Index, error) {
	if i == math.MaxUint32 {
		return 0, fault.New(fault.InvalidJump, "program counter overflowed")
	}
	return i + 1, nil
}

// Jump applies a relative jump offset. Offsets are relative to the
// instruction after i, so an offset of zero continues sequentially.
func (i Index) Jump(offset int32) (Index, error) {
	target := int64(i) + int64(offset) + 1
	if target < 0 {
		return 0, fault.Newf(fault.InvalidJump, "jump by %d from %d underflows", offset, i)
	}
	if target > math.MaxUint32 {
		return 0, fault.Newf(fault.InvalidJump, "jump by %d from %d overflows", offset, i)
	}
	return Index(target), nil
}

// Instruction is one executable unit. Which operand fields are meaningful
// depends on Op; unused fields are zero so instructions compare with ==.
type Instruction struct {
	Op Opcode

	// Regs holds register operands in order: the target of Load, Cache and
	// the single register instructions, the left and right operands of
	// binary instructions, and the output followed by five parameters of
	// Syscall.
	Regs [6]Register

	Value value.Value // Load, Cache
	Loc   uint32      // heap location for Cache/Save/Drop, label for JumpPoint, function for Func

	Offset int32 // Jump, JumpComp; holds the label id until the builder resolves it
	Cmp    Comparator
	Table  uint8 // Syscall table entry
}

func Illegal() Instruction { return Instruction{Op: OpIllegal} }

func Load(v value.Value, reg Register) Instruction {
	return Instruction{Op: OpLoad, Regs: [6]Register{reg}, Value: v}
}

func Cache(loc uint32, v value.Value, reg Register) Instruction {
	return Instruction{Op: OpCache, Regs: [6]Register{reg}, Value: v, Loc: loc}
}

func CompToReg(reg Register) Instruction { return unary(OpCompToReg, reg) }
func OpToReg(reg Register) Instruction   { return unary(OpOpToReg, reg) }

func Save(loc uint32, reg Register) Instruction {
	return Instruction{Op: OpSave, Regs: [6]Register{reg}, Loc: loc}
}

func DropReg(reg Register) Instruction { return unary(OpDropReg, reg) }
func Drop(loc uint32) Instruction      { return Instruction{Op: OpDrop, Loc: loc} }

func Add(left, right Register) Instruction  { return binaryInst(OpAdd, left, right) }
func Sub(left, right Register) Instruction  { return binaryInst(OpSub, left, right) }
func Mult(left, right Register) Instruction { return binaryInst(OpMult, left, right) }
func Div(left, right Register) Instruction  { return binaryInst(OpDiv, left, right) }

func Print(reg Register) Instruction { return unary(OpPrint, reg) }

func Jump(offset int32) Instruction     { return Instruction{Op: OpJump, Offset: offset} }
func JumpComp(offset int32) Instruction { return Instruction{Op: OpJumpComp, Offset: offset} }
func JumpPoint(label uint32) Instruction {
	return Instruction{Op: OpJumpPoint, Loc: label}
}

func And(left, right Register) Instruction { return binaryInst(OpAnd, left, right) }
func Or(left, right Register) Instruction  { return binaryInst(OpOr, left, right) }
func Xor(left, right Register) Instruction { return binaryInst(OpXor, left, right) }
func Not(reg Register) Instruction         { return unary(OpNot, reg) }

// Compare sets the comparison latch to whether left cmp right holds.
func Compare(cmp Comparator, left, right Register) Instruction {
	inst := binaryInst(OpCompare, left, right)
	inst.Cmp = cmp
	return inst
}

func Eq(left, right Register) Instruction          { return Compare(CmpEq, left, right) }
func NotEq(left, right Register) Instruction       { return Compare(CmpNotEq, left, right) }
func GreaterThan(left, right Register) Instruction { return Compare(CmpGreaterThan, left, right) }
func LessThan(left, right Register) Instruction    { return Compare(CmpLessThan, left, right) }
func GreaterEq(left, right Register) Instruction   { return Compare(CmpGreaterEq, left, right) }
func LessEq(left, right Register) Instruction      { return Compare(CmpLessEq, left, right) }

func Collect() Instruction { return Instruction{Op: OpCollect} }
func Return() Instruction  { return Instruction{Op: OpReturn} }
func Halt() Instruction    { return Instruction{Op: OpHalt} }

// Syscall calls native table entry table with five register parameters and
// stores the result in out.
func Syscall(table uint8, out, p1, p2, p3, p4, p5 Register) Instruction {
	return Instruction{Op: OpSyscall, Table: table, Regs: [6]Register{out, p1, p2, p3, p4, p5}}
}

func Func(index uint32) Instruction { return Instruction{Op: OpFunc, Loc: index} }
func NoOp() Instruction             { return Instruction{Op: OpNoOp} }

func unary(op Opcode, reg Register) Instruction {
	return Instruction{Op: op, Regs: [6]Register{reg}}
}

func binaryInst(op Opcode, left, right Register) Instruction {
	return Instruction{Op: op, Regs: [6]Register{left, right}}
}

// Mnemonic returns the short name used by the disassembler. Comparisons are
// named after their comparator.
func (inst Instruction) Mnemonic() string {
	if inst.Op == OpCompare {
		return inst.Cmp.String()
	}
	return inst.Op.String()
}

// Validate checks that every operand is representable: the header is
// defined, registers address the register file and the comparator exists.
func (inst Instruction) Validate() error {
	if !inst.Op.Valid() {
		return fault.Newf(fault.BytecodeError, "invalid instruction header 0x%02X", byte(inst.Op))
	}
	for i := 0; i < GetOpcodeInfo(inst.Op).RegCount; i++ {
		if !inst.Regs[i].Valid() {
			return fault.Newf(fault.BytecodeError, "%s: register %d is outside the register file", inst.Mnemonic(), inst.Regs[i])
		}
	}
	if inst.Op == OpCompare && !inst.Cmp.Valid() {
		return fault.Newf(fault.BytecodeError, "invalid comparator %d", inst.Cmp)
	}
	return nil
}

// String renders the instruction with its raw operands.
func (inst Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(inst.Mnemonic())

	var operands []string
	switch inst.Op {
	case OpLoad:
		operands = append(operands, inst.Regs[0].String(), inst.Value.String())
	case OpCache:
		operands = append(operands, fmt.Sprintf("@%d", inst.Loc), inst.Value.String(), inst.Regs[0].String())
	case OpSave:
		operands = append(operands, fmt.Sprintf("@%d", inst.Loc), inst.Regs[0].String())
	case OpDrop:
		operands = append(operands, fmt.Sprintf("@%d", inst.Loc))
	case OpJump, OpJumpComp:
		operands = append(operands, fmt.Sprintf("%d", inst.Offset))
	case OpJumpPoint, OpFunc:
		operands = append(operands, fmt.Sprintf("%d", inst.Loc))
	case OpSyscall:
		operands = append(operands, fmt.Sprintf("0x%X", inst.Table))
		for _, r := range inst.Regs {
			operands = append(operands, r.String())
		}
	default:
		for i := 0; i < GetOpcodeInfo(inst.Op).RegCount; i++ {
			operands = append(operands, inst.Regs[i].String())
		}
	}

	if len(operands) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(operands, ", "))
	}
	return sb.String()
}
