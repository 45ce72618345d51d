package vm

import (
	"errors"
	"testing"

	"github.com/chazu/crunch/pkg/bytecode"
	"github.com/chazu/crunch/pkg/fault"
	"github.com/chazu/crunch/pkg/value"
)

func sumTable() SyscallTable {
	return SyscallTable{
		7: func(args [SyscallParams]uintptr) (uintptr, error) {
			var total uintptr
			for _, a := range args {
				total += a
			}
			return total, nil
		},
		8: func([SyscallParams]uintptr) (uintptr, error) {
			return 0, errors.New("boom")
		},
	}
}

func TestSyscallMarshalsRegisters(t *testing.T) {
	vm := New(nil, WithSyscalls(sumTable()))
	mustExecute(t, vm, bytecode.Load(value.Int(2), 1))
	mustExecute(t, vm, bytecode.Load(value.Pointer(40), 2))
	mustExecute(t, vm, bytecode.Load(value.String("ignored"), 3))
	mustExecute(t, vm, bytecode.Cache(0, value.Int(100), 4))

	// r5 is empty and passes 0, as does the string in r3.
	mustExecute(t, vm, bytecode.Syscall(7, 0, 1, 2, 3, 4, 5))
	assertEqual(t, vm, vm.Register(0), value.NewPointer(142))
}

func TestSyscallErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup []bytecode.Instruction
		call  bytecode.Instruction
		kind  fault.Kind
	}{
		{"missing entry", nil, bytecode.Syscall(9, 0, 1, 1, 1, 1, 1), fault.MissingValue},
		{"native failure", nil, bytecode.Syscall(8, 0, 1, 1, 1, 1, 1), fault.MissingValue},
		{"negative argument", []bytecode.Instruction{bytecode.Load(value.Int(-1), 1)},
			bytecode.Syscall(7, 0, 1, 2, 2, 2, 2), fault.IncompatibleTypes},
		{"stale argument", []bytecode.Instruction{bytecode.Cache(3, value.Int(1), 1), bytecode.Drop(3), bytecode.Collect()},
			bytecode.Syscall(7, 0, 1, 2, 2, 2, 2), fault.GcError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := New(nil, WithSyscalls(sumTable()))
			for _, inst := range tt.setup {
				mustExecute(t, vm, inst)
			}
			if err := vm.Execute(tt.call); !fault.IsKind(err, tt.kind) {
				t.Errorf("Syscall error = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestSyscallTableLookup(t *testing.T) {
	table := SyscallTable{1: nil}
	if _, err := table.Lookup(1); !fault.IsKind(err, fault.MissingValue) {
		t.Errorf("Lookup of nil entry error = %v, want MissingValue", err)
	}
}
