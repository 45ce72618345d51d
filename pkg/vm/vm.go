// Package vm executes register bytecode.
//
// A VM owns a register file, a heap and a list of functions. Function 0 is
// main; Run starts there and steps until Halt or until main returns. Calls
// push a Snapshot holding the caller's registers and return address, which
// Return restores.
package vm

import (
	"io"
	"os"

	"github.com/chazu/crunch/pkg/bytecode"
	"github.com/chazu/crunch/pkg/fault"
	"github.com/chazu/crunch/pkg/gc"
	"github.com/chazu/crunch/pkg/value"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("crunch.vm")

// Snapshot is a saved call frame.
type Snapshot struct {
	// Return is the index of the Func instruction that made the call.
	Return bytecode.Index
	// Function is the index of the calling function.
	Function uint32
	// Host marks frames pushed by Invoke; returning from one hands control
	// back to the host instead of resuming bytecode.
	Host      bool
	registers [bytecode.NumberRegisters]value.RuntimeValue
}

// VM is a single threaded register machine.
type VM struct {
	functions [][]bytecode.Instruction
	registers [bytecode.NumberRegisters]value.RuntimeValue
	current   uint32
	pc        bytecode.Index

	prevComp bool
	prevOp   value.RuntimeValue

	returnStack []bytecode.Index
	snapshots   []Snapshot

	finished  bool
	returning bool

	heap     *gc.Gc
	out      io.Writer
	syscalls SyscallTable
	trace    bool
	steps    uint64
}

// Option configures a VM.
type Option func(*VM)

// WithOutput sets the sink Print writes to. The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) {
		vm.out = w
	}
}

// WithHeap sets the heap. The default is an unlimited gc.New().
func WithHeap(heap *gc.Gc) Option {
	return func(vm *VM) {
		vm.heap = heap
	}
}

// WithSyscalls sets the native function table used by Syscall.
func WithSyscalls(table SyscallTable) Option {
	return func(vm *VM) {
		vm.syscalls = table
	}
}

// WithTrace logs every executed instruction at debug level.
func WithTrace(enabled bool) Option {
	return func(vm *VM) {
		vm.trace = enabled
	}
}

// New creates a VM for functions. functions[0] is main.
func New(functions [][]bytecode.Instruction, opts ...Option) *VM {
	vm := &VM{
		functions: functions,
		out:       os.Stdout,
		syscalls:  DefaultSyscalls(),
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.heap == nil {
		vm.heap = gc.New()
	}
	return vm
}

// NewProgram creates a VM from a decoded main function and its auxiliaries.
func NewProgram(main []bytecode.Instruction, others [][]bytecode.Instruction, opts ...Option) *VM {
	functions := make([][]bytecode.Instruction, 0, len(others)+1)
	functions = append(functions, main)
	functions = append(functions, others...)
	return New(functions, opts...)
}

// Run executes from the current position until the program finishes or an
// instruction fails.
func (vm *VM) Run() error {
	if len(vm.functions) == 0 {
		return fault.New(fault.MissingMain, "program has no main function")
	}
	for !vm.finished {
		if err := vm.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes one instruction. Stepping a finished VM does nothing.
func (vm *VM) Step() error {
	if vm.finished {
		return nil
	}
	inst, err := vm.fetch()
	if err != nil {
		return err
	}
	if vm.trace && log.AllowLevel(commonlog.Debug) {
		log.Debugf("[%d:%04d] %s", vm.current, vm.pc, inst)
	}
	vm.steps++
	return vm.Execute(inst)
}

func (vm *VM) fetch() (bytecode.Instruction, error) {
	if int(vm.current) >= len(vm.functions) {
		if len(vm.functions) == 0 {
			return bytecode.Instruction{}, fault.New(fault.MissingMain, "program has no main function")
		}
		return bytecode.Instruction{}, fault.Newf(fault.MissingSymbol, "function %d does not exist", vm.current)
	}
	fn := vm.functions[vm.current]
	if int64(vm.pc) >= int64(len(fn)) {
		return bytecode.Instruction{}, fault.Newf(fault.InvalidJump,
			"instruction %04d is past the end of function %d (%d instructions)", vm.pc, vm.current, len(fn))
	}
	return fn[vm.pc], nil
}

// Invoke calls function index from the host and runs until it returns. The
// caller's registers and position are restored afterwards.
func (vm *VM) Invoke(index uint32) error {
	if int(index) >= len(vm.functions) {
		return fault.Newf(fault.MissingSymbol, "function %d does not exist", index)
	}

	depth := len(vm.snapshots)
	vm.snapshots = append(vm.snapshots, Snapshot{
		Return:    vm.pc,
		Function:  vm.current,
		Host:      true,
		registers: vm.registers,
	})
	vm.current, vm.pc = index, 0
	wasFinished := vm.finished
	vm.finished, vm.returning = false, false

	for !vm.returning && !vm.finished {
		if err := vm.Step(); err != nil {
			return err
		}
	}
	if vm.returning {
		vm.finished = wasFinished
	}
	// A Halt inside the callee discards the host frame along with the rest.
	if len(vm.snapshots) > depth {
		vm.snapshots = vm.snapshots[:depth]
	}
	vm.returning = false
	return nil
}

// PushReturn pushes a plain return address, used by Return when no call
// frame is active.
func (vm *VM) PushReturn(index bytecode.Index) {
	vm.returnStack = append(vm.returnStack, index)
}

// Reset rewinds to the start of main with empty registers and stacks. The
// heap is kept.
func (vm *VM) Reset() {
	vm.registers = [bytecode.NumberRegisters]value.RuntimeValue{}
	vm.current, vm.pc = 0, 0
	vm.prevComp, vm.prevOp = false, value.None()
	vm.returnStack, vm.snapshots = nil, nil
	vm.finished, vm.returning = false, false
	vm.steps = 0
}

// Finished reports whether the program has halted or returned from main.
func (vm *VM) Finished() bool { return vm.finished }

// PC returns the index of the next instruction.
func (vm *VM) PC() bytecode.Index { return vm.pc }

// Function returns the index of the executing function.
func (vm *VM) Function() uint32 { return vm.current }

// Functions returns the number of loaded functions.
func (vm *VM) Functions() int { return len(vm.functions) }

// Code returns the instructions of function index, or nil if there is none.
func (vm *VM) Code(index uint32) []bytecode.Instruction {
	if int(index) >= len(vm.functions) {
		return nil
	}
	return vm.functions[index]
}

// Current returns the next instruction to execute.
func (vm *VM) Current() (bytecode.Instruction, bool) {
	inst, err := vm.fetch()
	return inst, err == nil && !vm.finished
}

// Register returns the contents of a register.
func (vm *VM) Register(reg bytecode.Register) value.RuntimeValue {
	if !reg.Valid() {
		return value.None()
	}
	return vm.registers[reg]
}

// SetRegister overwrites a register.
func (vm *VM) SetRegister(reg bytecode.Register, v value.RuntimeValue) error {
	if !reg.Valid() {
		return fault.Newf(fault.BytecodeError, "register %d is out of range", reg)
	}
	vm.registers[reg] = v
	return nil
}

// PrevComp returns the result of the last comparison.
func (vm *VM) PrevComp() bool { return vm.prevComp }

// PrevOp returns the result of the last arithmetic or bitwise instruction.
func (vm *VM) PrevOp() value.RuntimeValue { return vm.prevOp }

// Depth returns the number of active call frames.
func (vm *VM) Depth() int { return len(vm.snapshots) }

// Steps returns the number of instructions executed.
func (vm *VM) Steps() uint64 { return vm.steps }

// Heap returns the VM's heap.
func (vm *VM) Heap() *gc.Gc { return vm.heap }
