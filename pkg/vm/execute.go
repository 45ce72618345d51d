package vm

import (
	"io"

	"github.com/chazu/crunch/pkg/bytecode"
	"github.com/chazu/crunch/pkg/fault"
	"github.com/chazu/crunch/pkg/gc"
	"github.com/chazu/crunch/pkg/value"
)

// Execute applies one instruction to the VM state, advancing the program
// counter unless the instruction transfers control itself.
func (vm *VM) Execute(inst bytecode.Instruction) error {
	if err := inst.Validate(); err != nil {
		return err
	}

	switch inst.Op {
	// ============ Registers and Heap ============
	case bytecode.OpLoad:
		v, err := value.FromValue(inst.Value)
		if err != nil {
			return err
		}
		vm.registers[inst.Regs[0]] = v

	case bytecode.OpCache:
		v, err := vm.cache(gc.AllocId(inst.Loc), inst.Value)
		if err != nil {
			return err
		}
		vm.registers[inst.Regs[0]] = v

	case bytecode.OpCompToReg:
		vm.registers[inst.Regs[0]] = value.NewBool(vm.prevComp)

	case bytecode.OpOpToReg:
		vm.registers[inst.Regs[0]], vm.prevOp = vm.prevOp, value.None()

	case bytecode.OpSave:
		v, err := vm.registers[inst.Regs[0]].Resolve(vm.heap)
		if err != nil {
			return err
		}
		if err := vm.heap.Write(gc.AllocId(inst.Loc), v, nil); err != nil {
			return err
		}

	case bytecode.OpDropReg:
		vm.registers[inst.Regs[0]] = value.None()

	case bytecode.OpDrop:
		if err := vm.heap.RemoveRoot(gc.AllocId(inst.Loc)); err != nil {
			return err
		}

	// ============ Arithmetic and Bitwise ============
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMult, bytecode.OpDiv,
		bytecode.OpAnd, bytecode.OpOr, bytecode.OpXor:
		left, right := vm.registers[inst.Regs[0]], vm.registers[inst.Regs[1]]
		result, err := binaryOps[inst.Op](left, right, vm.heap)
		if err != nil {
			return err
		}
		vm.prevOp = result

	case bytecode.OpNot:
		result, err := vm.registers[inst.Regs[0]].Not(vm.heap)
		if err != nil {
			return err
		}
		vm.prevOp = result

	case bytecode.OpCompare:
		held, err := vm.compare(inst.Cmp, vm.registers[inst.Regs[0]], vm.registers[inst.Regs[1]])
		if err != nil {
			return err
		}
		vm.prevComp = held

	// ============ Output ============
	case bytecode.OpPrint:
		s, err := vm.registers[inst.Regs[0]].Display(vm.heap)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(vm.out, s); err != nil {
			return fault.Newf(fault.FileError, "print: %v", err)
		}

	// ============ Control Flow ============
	case bytecode.OpJump:
		return vm.jump(inst.Offset)

	case bytecode.OpJumpComp:
		if vm.prevComp {
			return vm.jump(inst.Offset)
		}

	case bytecode.OpFunc:
		return vm.call(inst.Loc)

	case bytecode.OpReturn:
		return vm.ret()

	case bytecode.OpHalt:
		vm.finished = true
		vm.snapshots = nil
		return nil

	// ============ Misc ============
	case bytecode.OpCollect:
		if err := vm.heap.Collect(); err != nil {
			return err
		}

	case bytecode.OpSyscall:
		result, err := vm.syscall(inst)
		if err != nil {
			return err
		}
		vm.registers[inst.Regs[0]] = result

	case bytecode.OpNoOp:

	case bytecode.OpIllegal, bytecode.OpJumpPoint:
		return fault.Newf(fault.IllegalInstruction, "illegal instruction %s at %d:%04d", inst, vm.current, vm.pc)

	default:
		return fault.Newf(fault.IllegalInstruction, "unknown opcode %s", inst.Op)
	}

	return vm.advance()
}

type binaryOp func(left, right value.RuntimeValue, heap *gc.Gc) (value.RuntimeValue, error)

var binaryOps = map[bytecode.Opcode]binaryOp{
	bytecode.OpAdd:  value.RuntimeValue.Add,
	bytecode.OpSub:  value.RuntimeValue.Sub,
	bytecode.OpMult: value.RuntimeValue.Mult,
	bytecode.OpDiv:  value.RuntimeValue.Div,
	bytecode.OpAnd:  value.RuntimeValue.BitAnd,
	bytecode.OpOr:   value.RuntimeValue.BitOr,
	bytecode.OpXor:  value.RuntimeValue.BitXor,
}

func (vm *VM) advance() error {
	next, err := vm.pc.Next()
	if err != nil {
		return err
	}
	vm.pc = next
	return nil
}

func (vm *VM) jump(offset int32) error {
	target, err := vm.pc.Jump(offset)
	if err != nil {
		return err
	}
	vm.pc = target
	return nil
}

// cache writes v into heap slot id, allocating it if needed, and roots it.
func (vm *VM) cache(id gc.AllocId, v value.Value) (value.RuntimeValue, error) {
	rv, err := value.FromValue(v)
	if err != nil {
		return value.RuntimeValue{}, err
	}

	var handle gc.Handle
	if vm.heap.Contains(id) {
		if handle, err = vm.heap.HandleOf(id); err != nil {
			return value.RuntimeValue{}, err
		}
	} else {
		if handle, _, err = vm.heap.AllocateID(rv.Size(), id); err != nil {
			return value.RuntimeValue{}, err
		}
	}
	if err := vm.heap.Write(id, v, &handle); err != nil {
		return value.RuntimeValue{}, err
	}
	if err := vm.heap.AddRoot(handle); err != nil {
		return value.RuntimeValue{}, err
	}
	return value.NewCached(rv.Type(), id), nil
}

func (vm *VM) compare(cmp bytecode.Comparator, left, right value.RuntimeValue) (bool, error) {
	switch cmp {
	case bytecode.CmpEq, bytecode.CmpNotEq:
		eq, err := left.Equal(right, vm.heap)
		if err != nil {
			return false, err
		}
		return eq == (cmp == bytecode.CmpEq), nil
	default:
		order, err := left.Compare(right, vm.heap)
		if err != nil {
			return false, err
		}
		return cmp.Holds(order), nil
	}
}

// call enters function index, saving the caller's frame.
func (vm *VM) call(index uint32) error {
	if int(index) >= len(vm.functions) {
		return fault.Newf(fault.MissingSymbol, "call to function %d, program has %d", index, len(vm.functions))
	}
	vm.snapshots = append(vm.snapshots, Snapshot{
		Return:    vm.pc,
		Function:  vm.current,
		registers: vm.registers,
	})
	vm.current, vm.pc = index, 0
	return nil
}

// ret leaves the current function. The innermost call frame wins, then the
// plain return stack; with neither the program is finished.
func (vm *VM) ret() error {
	if n := len(vm.snapshots); n > 0 {
		frame := vm.snapshots[n-1]
		vm.snapshots = vm.snapshots[:n-1]
		vm.registers = frame.registers
		vm.current, vm.pc = frame.Function, frame.Return
		if frame.Host {
			vm.returning = true
			return nil
		}
		return vm.advance()
	}

	if n := len(vm.returnStack); n > 0 {
		vm.pc = vm.returnStack[n-1]
		vm.returnStack = vm.returnStack[:n-1]
		return vm.advance()
	}

	vm.finished = true
	return nil
}
