package builder

import (
	"github.com/chazu/crunch/pkg/bytecode"
	"github.com/chazu/crunch/pkg/fault"
	"github.com/chazu/crunch/pkg/value"
)

// refKind says which operand of a PartialInstruction is still symbolic.
type refKind uint8

const (
	refNone refKind = iota
	// Func target, resolved to a function index.
	refFunc
	// Heap location shared by every function.
	refGlobal
	// Heap location private to the enclosing function.
	refLocal
)

// PartialInstruction is an instruction whose function index or heap
// location may still be symbolic. It is resolved exactly once by Build.
type PartialInstruction struct {
	inst bytecode.Instruction
	ref  refKind
	sym  Symbol
}

// Resolved reports whether the instruction needs no further resolution.
func (p PartialInstruction) Resolved() bool { return p.ref == refNone }

// Instruction returns the underlying instruction. Symbolic operands hold
// their placeholder values.
func (p PartialInstruction) Instruction() bytecode.Instruction { return p.inst }

// regSlot is the assembly time occupancy of one register.
type regSlot struct {
	used  bool
	named bool // reserved for sym rather than anonymously
	sym   Symbol
}

// FunctionContext accumulates the body of one function. Instruction methods
// return the context so calls can be chained.
type FunctionContext struct {
	name      Symbol
	registers [bytecode.NumberRegisters]regSlot
	variables map[Symbol]struct{}
	block     []PartialInstruction
}

func newFunctionContext(name Symbol) *FunctionContext {
	return &FunctionContext{
		name:      name,
		variables: make(map[Symbol]struct{}),
	}
}

// ReserveReg claims the highest free register anonymously.
func (c *FunctionContext) ReserveReg() (bytecode.Register, error) {
	for i := bytecode.NumberRegisters - 1; i >= 0; i-- {
		if !c.registers[i].used {
			c.registers[i] = regSlot{used: true}
			return bytecode.Register(i), nil
		}
	}
	return 0, fault.New(fault.CompilationError, "failed to fetch an available register")
}

// ReserveRegSym claims the lowest free register for sym, so that CachedReg
// can find it later.
func (c *FunctionContext) ReserveRegSym(sym Symbol) (bytecode.Register, error) {
	for i := 0; i < bytecode.NumberRegisters; i++ {
		if !c.registers[i].used {
			c.registers[i] = regSlot{used: true, named: true, sym: sym}
			return bytecode.Register(i), nil
		}
	}
	return 0, fault.New(fault.CompilationError, "failed to fetch an available register")
}

// CachedReg returns the register reserved for sym.
func (c *FunctionContext) CachedReg(sym Symbol) (bytecode.Register, error) {
	for i, slot := range c.registers {
		if slot.used && slot.named && slot.sym == sym {
			return bytecode.Register(i), nil
		}
	}
	return 0, fault.Newf(fault.CompilationError, "no register is reserved for symbol %d", sym)
}

// FreeReg releases a register for reuse.
func (c *FunctionContext) FreeReg(reg bytecode.Register) *FunctionContext {
	if reg.Valid() {
		c.registers[reg] = regSlot{}
	}
	return c
}

// AddVar declares a function local symbol.
func (c *FunctionContext) AddVar(sym Symbol) {
	c.variables[sym] = struct{}{}
}

// HasVar reports whether sym was declared local to this function.
func (c *FunctionContext) HasVar(sym Symbol) bool {
	_, ok := c.variables[sym]
	return ok
}

// Len returns the number of instructions emitted so far.
func (c *FunctionContext) Len() int { return len(c.block) }

// Block returns the instructions emitted so far.
func (c *FunctionContext) Block() []PartialInstruction {
	return append([]PartialInstruction(nil), c.block...)
}

func (c *FunctionContext) emit(inst bytecode.Instruction) *FunctionContext {
	c.block = append(c.block, PartialInstruction{inst: inst})
	return c
}

func (c *FunctionContext) emitRef(inst bytecode.Instruction, ref refKind, sym Symbol) *FunctionContext {
	c.block = append(c.block, PartialInstruction{inst: inst, ref: ref, sym: sym})
	return c
}

func (c *FunctionContext) Load(v value.Value, reg bytecode.Register) *FunctionContext {
	return c.emit(bytecode.Load(v, reg))
}

func (c *FunctionContext) Cache(loc uint32, v value.Value, reg bytecode.Register) *FunctionContext {
	return c.emit(bytecode.Cache(loc, v, reg))
}

func (c *FunctionContext) CompToReg(reg bytecode.Register) *FunctionContext {
	return c.emit(bytecode.CompToReg(reg))
}

func (c *FunctionContext) OpToReg(reg bytecode.Register) *FunctionContext {
	return c.emit(bytecode.OpToReg(reg))
}

func (c *FunctionContext) Save(loc uint32, reg bytecode.Register) *FunctionContext {
	return c.emit(bytecode.Save(loc, reg))
}

// DropReg clears a register at run time and frees it for reuse.
func (c *FunctionContext) DropReg(reg bytecode.Register) *FunctionContext {
	c.emit(bytecode.DropReg(reg))
	return c.FreeReg(reg)
}

func (c *FunctionContext) Drop(loc uint32) *FunctionContext {
	return c.emit(bytecode.Drop(loc))
}

// Global symbols name one heap location for the whole program.

func (c *FunctionContext) CacheGlobal(sym Symbol, v value.Value, reg bytecode.Register) *FunctionContext {
	return c.emitRef(bytecode.Cache(0, v, reg), refGlobal, sym)
}

func (c *FunctionContext) SaveGlobal(sym Symbol, reg bytecode.Register) *FunctionContext {
	return c.emitRef(bytecode.Save(0, reg), refGlobal, sym)
}

func (c *FunctionContext) DropGlobal(sym Symbol) *FunctionContext {
	return c.emitRef(bytecode.Drop(0), refGlobal, sym)
}

// Local symbols name a heap location private to this function.

func (c *FunctionContext) CacheLocal(sym Symbol, v value.Value, reg bytecode.Register) *FunctionContext {
	c.AddVar(sym)
	return c.emitRef(bytecode.Cache(0, v, reg), refLocal, sym)
}

func (c *FunctionContext) SaveLocal(sym Symbol, reg bytecode.Register) *FunctionContext {
	c.AddVar(sym)
	return c.emitRef(bytecode.Save(0, reg), refLocal, sym)
}

func (c *FunctionContext) DropLocal(sym Symbol) *FunctionContext {
	c.AddVar(sym)
	return c.emitRef(bytecode.Drop(0), refLocal, sym)
}

func (c *FunctionContext) Add(left, right bytecode.Register) *FunctionContext {
	return c.emit(bytecode.Add(left, right))
}

func (c *FunctionContext) Sub(left, right bytecode.Register) *FunctionContext {
	return c.emit(bytecode.Sub(left, right))
}

func (c *FunctionContext) Mult(left, right bytecode.Register) *FunctionContext {
	return c.emit(bytecode.Mult(left, right))
}

func (c *FunctionContext) Div(left, right bytecode.Register) *FunctionContext {
	return c.emit(bytecode.Div(left, right))
}

func (c *FunctionContext) Print(reg bytecode.Register) *FunctionContext {
	return c.emit(bytecode.Print(reg))
}

// Jump branches to the JumpPoint declared with label. If the function never
// declares label, Build emits Illegal in its place.
func (c *FunctionContext) Jump(label uint32) *FunctionContext {
	return c.emit(bytecode.Jump(int32(label)))
}

// JumpComp branches to the JumpPoint declared with label if the last
// comparison held.
func (c *FunctionContext) JumpComp(label uint32) *FunctionContext {
	return c.emit(bytecode.JumpComp(int32(label)))
}

func (c *FunctionContext) JumpPoint(label uint32) *FunctionContext {
	return c.emit(bytecode.JumpPoint(label))
}

func (c *FunctionContext) And(left, right bytecode.Register) *FunctionContext {
	return c.emit(bytecode.And(left, right))
}

func (c *FunctionContext) Or(left, right bytecode.Register) *FunctionContext {
	return c.emit(bytecode.Or(left, right))
}

func (c *FunctionContext) Xor(left, right bytecode.Register) *FunctionContext {
	return c.emit(bytecode.Xor(left, right))
}

func (c *FunctionContext) Not(reg bytecode.Register) *FunctionContext {
	return c.emit(bytecode.Not(reg))
}

func (c *FunctionContext) Eq(left, right bytecode.Register) *FunctionContext {
	return c.emit(bytecode.Eq(left, right))
}

func (c *FunctionContext) NotEq(left, right bytecode.Register) *FunctionContext {
	return c.emit(bytecode.NotEq(left, right))
}

func (c *FunctionContext) GreaterThan(left, right bytecode.Register) *FunctionContext {
	return c.emit(bytecode.GreaterThan(left, right))
}

func (c *FunctionContext) LessThan(left, right bytecode.Register) *FunctionContext {
	return c.emit(bytecode.LessThan(left, right))
}

func (c *FunctionContext) GreaterEq(left, right bytecode.Register) *FunctionContext {
	return c.emit(bytecode.GreaterEq(left, right))
}

func (c *FunctionContext) LessEq(left, right bytecode.Register) *FunctionContext {
	return c.emit(bytecode.LessEq(left, right))
}

func (c *FunctionContext) Collect() *FunctionContext { return c.emit(bytecode.Collect()) }
func (c *FunctionContext) Return() *FunctionContext  { return c.emit(bytecode.Return()) }
func (c *FunctionContext) Halt() *FunctionContext    { return c.emit(bytecode.Halt()) }
func (c *FunctionContext) Illegal() *FunctionContext { return c.emit(bytecode.Illegal()) }
func (c *FunctionContext) NoOp() *FunctionContext    { return c.emit(bytecode.NoOp()) }

func (c *FunctionContext) Syscall(table uint8, out, p1, p2, p3, p4, p5 bytecode.Register) *FunctionContext {
	return c.emit(bytecode.Syscall(table, out, p1, p2, p3, p4, p5))
}

// FuncCall calls the function named by sym. The target index is assigned
// when the program is built.
func (c *FunctionContext) FuncCall(sym Symbol) *FunctionContext {
	return c.emitRef(bytecode.Func(0), refFunc, sym)
}
