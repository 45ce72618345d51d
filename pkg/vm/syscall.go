package vm

import (
	"fortio.org/safecast"

	"github.com/chazu/crunch/pkg/bytecode"
	"github.com/chazu/crunch/pkg/fault"
	"github.com/chazu/crunch/pkg/value"
)

// SyscallParams is the number of arguments passed to a native function.
const SyscallParams = 5

// SyscallFunc is a native function reachable through Syscall.
type SyscallFunc func(args [SyscallParams]uintptr) (uintptr, error)

// SyscallTable maps a table offset to a native function.
type SyscallTable map[uint8]SyscallFunc

// Lookup returns the function at offset.
func (t SyscallTable) Lookup(offset uint8) (SyscallFunc, error) {
	fn, ok := t[offset]
	if !ok || fn == nil {
		return nil, fault.Newf(fault.MissingValue, "no native function at syscall offset 0x%X", offset)
	}
	return fn, nil
}

func (vm *VM) syscall(inst bytecode.Instruction) (value.RuntimeValue, error) {
	fn, err := vm.syscalls.Lookup(inst.Table)
	if err != nil {
		return value.RuntimeValue{}, err
	}

	var args [SyscallParams]uintptr
	for i := range args {
		if args[i], err = vm.marshal(inst.Regs[i+1]); err != nil {
			return value.RuntimeValue{}, err
		}
	}

	result, err := fn(args)
	if err != nil {
		return value.RuntimeValue{}, fault.Newf(fault.MissingValue, "syscall 0x%X failed: %v", inst.Table, err)
	}
	return value.NewPointer(uint64(result)), nil
}

// marshal converts a register into a native argument. Integers and pointers
// are converted with range checks; every other value passes 0.
func (vm *VM) marshal(reg bytecode.Register) (uintptr, error) {
	v, err := vm.registers[reg].Resolve(vm.heap)
	if err != nil {
		return 0, err
	}

	var word uintptr
	switch t := v.Type(); {
	case t == value.TypePointer:
		word, err = safecast.Convert[uintptr](v.AsPointer())
	case t.IsInteger():
		if i, ok := v.Int64(); ok {
			word, err = safecast.Convert[uintptr](i)
		} else if u, ok := v.Uint64(); ok {
			word, err = safecast.Convert[uintptr](u)
		} else {
			return 0, fault.Newf(fault.IncompatibleTypes, "%s holds a '%s' which does not fit a native word", reg, t)
		}
	default:
		return 0, nil
	}
	if err != nil {
		return 0, fault.Newf(fault.IncompatibleTypes, "%s cannot be passed to a syscall: %v", reg, err)
	}
	return word, nil
}
