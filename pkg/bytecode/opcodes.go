package bytecode

import "fmt"

// Opcode is the one byte header of an encoded instruction.
type Opcode byte

const (
	// ========================================================================
	// Faults (0x00)
	// ========================================================================

	OpIllegal Opcode = 0x00 // Always faults when executed

	// ========================================================================
	// Registers and heap (0x01-0x07)
	// ========================================================================

	OpLoad      Opcode = 0x01 // Load an immediate: Load <reg> <value>
	OpCache     Opcode = 0x02 // Store a value in a rooted heap slot: Cache <loc> <value> <reg>
	OpCompToReg Opcode = 0x03 // Materialize the comparison latch: CompToReg <reg>
	OpOpToReg   Opcode = 0x04 // Move the operation latch: OpToReg <reg>
	OpSave      Opcode = 0x05 // Write a register to a heap slot: Save <loc> <reg>
	OpDropReg   Opcode = 0x06 // Clear a register: DropReg <reg>
	OpDrop      Opcode = 0x07 // Unroot a heap slot: Drop <loc>

	// ========================================================================
	// Arithmetic (0x08-0x0B)
	// ========================================================================

	OpAdd  Opcode = 0x08
	OpSub  Opcode = 0x09
	OpMult Opcode = 0x0A
	OpDiv  Opcode = 0x0B

	OpPrint Opcode = 0x0C // Write a register's display form to the output

	// ========================================================================
	// Control flow (0x0D-0x0F)
	// ========================================================================

	OpJump      Opcode = 0x0D // Relative jump: Jump <offset:i32>
	OpJumpComp  Opcode = 0x0E // Relative jump if the comparison latch is set
	OpJumpPoint Opcode = 0x0F // Label placeholder, resolved away by the builder

	// ========================================================================
	// Bitwise (0x10-0x13)
	// ========================================================================

	OpAnd Opcode = 0x10
	OpOr  Opcode = 0x11
	OpXor Opcode = 0x12
	OpNot Opcode = 0x13

	OpCompare Opcode = 0x14 // Compare two registers: Compare <cmp> <left> <right>

	// ========================================================================
	// Machine (0x15-0x1A)
	// ========================================================================

	OpCollect Opcode = 0x15 // Force a garbage collection
	OpReturn  Opcode = 0x16
	OpHalt    Opcode = 0x17
	OpSyscall Opcode = 0x18 // Native call: Syscall <table> <out> <p1..p5>
	OpFunc    Opcode = 0x19 // Call a function by index: Func <index:u32>
	OpNoOp    Opcode = 0x1A
)

// InstructionLength is the encoded size of every instruction.
const InstructionLength = 8

// OpcodeInfo provides metadata about each opcode for disassembly and
// validation.
type OpcodeInfo struct {
	Name     string // Mnemonic
	RegCount int    // Number of register operands
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpIllegal: {"illegal", 0},

	OpLoad:      {"ld", 1},
	OpCache:     {"cache", 1},
	OpCompToReg: {"compr", 1},
	OpOpToReg:   {"opr", 1},
	OpSave:      {"save", 1},
	OpDropReg:   {"dropr", 1},
	OpDrop:      {"drop", 0},

	OpAdd:  {"add", 2},
	OpSub:  {"sub", 2},
	OpMult: {"mul", 2},
	OpDiv:  {"div", 2},

	OpPrint: {"print", 1},

	OpJump:      {"jmp", 0},
	OpJumpComp:  {"jmpcmp", 0},
	OpJumpPoint: {"jmppt", 0},

	OpAnd: {"and", 2},
	OpOr:  {"or", 2},
	OpXor: {"xor", 2},
	OpNot: {"not", 1},

	OpCompare: {"cmp", 2},

	OpCollect: {"coll", 0},
	OpReturn:  {"ret", 0},
	OpHalt:    {"halt", 0},
	OpSyscall: {"sysc", 6},
	OpFunc:    {"func", 0},
	OpNoOp:    {"nop", 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether op is one of the defined headers.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// IsJump returns true if this opcode is a relative jump.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpComp
}

// IsArith returns true if this opcode writes the operation latch.
func (op Opcode) IsArith() bool {
	return (op >= OpAdd && op <= OpDiv) || (op >= OpAnd && op <= OpNot)
}

// AllOpcodes returns every defined opcode in header order.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := OpIllegal; op <= OpNoOp; op++ {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}

// Comparator selects the relation tested by a Compare instruction.
type Comparator uint8

const (
	CmpEq Comparator = iota
	CmpNotEq
	CmpGreaterThan
	CmpLessThan
	CmpGreaterEq
	CmpLessEq
)

var comparatorNames = [...]string{
	CmpEq:          "eq",
	CmpNotEq:       "neq",
	CmpGreaterThan: "grt",
	CmpLessThan:    "let",
	CmpGreaterEq:   "gre",
	CmpLessEq:      "lee",
}

// String returns the mnemonic of the comparison.
func (c Comparator) String() string {
	if c.Valid() {
		return comparatorNames[c]
	}
	return fmt.Sprintf("UNKNOWN_CMP(%d)", uint8(c))
}

// Valid reports whether c is a defined comparator.
func (c Comparator) Valid() bool {
	return int(c) < len(comparatorNames)
}

// Holds reports whether the ordering result of a Compare (-1, 0 or 1)
// satisfies the relation.
func (c Comparator) Holds(order int) bool {
	switch c {
	case CmpEq:
		return order == 0
	case CmpNotEq:
		return order != 0
	case CmpGreaterThan:
		return order > 0
	case CmpLessThan:
		return order < 0
	case CmpGreaterEq:
		return order >= 0
	case CmpLessEq:
		return order <= 0
	default:
		return false
	}
}
