// Package builder assembles functions from symbolic instructions.
//
// A CodeBuilder owns a set of named functions, each accumulated in a
// FunctionContext. Calls, global and local heap slots and jump targets are
// written against symbols and label ids; Build resolves all of them into the
// plain instruction lists the virtual machine executes, with main at index 0.
package builder

import (
	"math"
	"math/rand/v2"

	"github.com/chazu/crunch/pkg/bytecode"
	"github.com/chazu/crunch/pkg/fault"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("crunch.builder")

// MainName is the name of the entry function.
const MainName = "main"

type function struct {
	ctx      *FunctionContext
	index    uint32
	resolved bool // index has been assigned
}

type localKey struct {
	fn  Symbol
	sym Symbol
}

// CodeBuilder collects functions and resolves them into a program.
type CodeBuilder struct {
	symbols   *interner
	functions map[Symbol]*function
	order     []Symbol // declaration order

	gcIDs   map[uint32]struct{}
	globals map[Symbol]uint32
	locals  map[localKey]uint32

	rng        *rand.Rand
	funcIndex  uint32
	lastJumpID uint32

	built bool
	names []string // function names by resolved index, set by Build
}

// Option configures a CodeBuilder.
type Option func(*CodeBuilder)

// WithSeed makes name mangling deterministic.
func WithSeed(seed uint64) Option {
	return func(b *CodeBuilder) {
		b.rng = rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	}
}

// New creates an empty builder.
func New(opts ...Option) *CodeBuilder {
	b := &CodeBuilder{
		symbols:   newInterner(),
		functions: make(map[Symbol]*function),
		gcIDs:     make(map[uint32]struct{}),
		globals:   make(map[Symbol]uint32),
		locals:    make(map[localKey]uint32),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		funcIndex: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Intern returns the symbol for name, creating it if needed.
func (b *CodeBuilder) Intern(name string) Symbol {
	return b.symbols.intern(name)
}

// Name returns the string a symbol was interned from.
func (b *CodeBuilder) Name(sym Symbol) (string, bool) {
	return b.symbols.resolve(sym)
}

// Function declares a function and runs body to fill it in.
func (b *CodeBuilder) Function(name string, body func(*CodeBuilder, *FunctionContext) error) error {
	if b.built {
		return fault.New(fault.CompilationError, "program already built")
	}
	sym := b.symbols.intern(name)
	if _, exists := b.functions[sym]; exists {
		return fault.Newf(fault.CompilationError, "function %q is already declared", name)
	}

	ctx := newFunctionContext(sym)
	if body != nil {
		if err := body(b, ctx); err != nil {
			return err
		}
	}

	b.functions[sym] = &function{ctx: ctx}
	b.order = append(b.order, sym)
	return nil
}

// SolidifyID claims the first heap location at or after requested that no
// other reference uses.
func (b *CodeBuilder) SolidifyID(requested uint32) (uint32, error) {
	id := requested
	for {
		if _, used := b.gcIDs[id]; !used {
			b.gcIDs[id] = struct{}{}
			return id, nil
		}
		if id == math.MaxUint32 {
			return 0, fault.New(fault.CompilationError, "heap location space exhausted")
		}
		id++
	}
}

// NextJumpID returns a fresh label id. Ids start at 1.
func (b *CodeBuilder) NextJumpID() uint32 {
	b.lastJumpID++
	return b.lastJumpID
}

// Symbols returns the function names ordered by resolved index. It is empty
// until Build succeeds.
func (b *CodeBuilder) Symbols() []string {
	return append([]string(nil), b.names...)
}

// Build resolves every function. Element i of the result is the function
// with index i; element 0 is main.
func (b *CodeBuilder) Build() ([][]bytecode.Instruction, error) {
	if b.built {
		return nil, fault.New(fault.CompilationError, "program already built")
	}
	mainSym, ok := b.symbols.lookup(MainName)
	if !ok {
		return nil, fault.New(fault.MissingMain, "no main function declared")
	}
	main, ok := b.functions[mainSym]
	if !ok {
		return nil, fault.New(fault.MissingMain, "no main function declared")
	}
	main.index, main.resolved = 0, true

	b.reserveExplicitLocations()

	// Main first, so that its callees get the lowest indices.
	bodies := make(map[Symbol][]bytecode.Instruction, len(b.functions))
	resolveOrder := append([]Symbol{mainSym}, b.order...)
	for _, sym := range resolveOrder {
		if _, done := bodies[sym]; done {
			continue
		}
		body, err := b.resolve(b.functions[sym].ctx)
		if err != nil {
			return nil, err
		}
		bodies[sym] = body
	}

	for _, sym := range b.order {
		if fn := b.functions[sym]; !fn.resolved {
			fn.index, fn.resolved = b.funcIndex, true
			b.funcIndex++
		}
	}

	program := make([][]bytecode.Instruction, len(b.functions))
	b.names = make([]string, len(b.functions))
	for sym, fn := range b.functions {
		program[fn.index] = bodies[sym]
		b.names[fn.index], _ = b.symbols.resolve(sym)
		log.Debugf("function %s resolved to index %d (%d instructions)", b.names[fn.index], fn.index, len(bodies[sym]))
	}

	b.built = true
	return program, nil
}

// reserveExplicitLocations marks every heap location written literally in an
// instruction so symbolic slots never alias them.
func (b *CodeBuilder) reserveExplicitLocations() {
	for _, sym := range b.order {
		for _, p := range b.functions[sym].ctx.block {
			if p.ref != refNone {
				continue
			}
			switch p.inst.Op {
			case bytecode.OpCache, bytecode.OpSave, bytecode.OpDrop:
				b.gcIDs[p.inst.Loc] = struct{}{}
			}
		}
	}
}

// resolve lowers one function context into concrete instructions.
func (b *CodeBuilder) resolve(ctx *FunctionContext) ([]bytecode.Instruction, error) {
	out := make([]bytecode.Instruction, 0, len(ctx.block)+1)
	for _, p := range ctx.block {
		inst := p.inst
		switch p.ref {
		case refFunc:
			index, err := b.functionIndex(p.sym)
			if err != nil {
				return nil, err
			}
			inst.Loc = index
		case refGlobal:
			loc, ok := b.globals[p.sym]
			if !ok {
				var err error
				if loc, err = b.SolidifyID(0); err != nil {
					return nil, err
				}
				b.globals[p.sym] = loc
			}
			inst.Loc = loc
		case refLocal:
			key := localKey{fn: ctx.name, sym: p.sym}
			loc, ok := b.locals[key]
			if !ok {
				var err error
				if loc, err = b.SolidifyID(0); err != nil {
					return nil, err
				}
				b.locals[key] = loc
			}
			inst.Loc = loc
		}
		out = append(out, inst)
	}

	out, err := patchJumps(out)
	if err != nil {
		return nil, err
	}

	if len(out) == 0 || out[len(out)-1].Op != bytecode.OpReturn {
		out = append(out, bytecode.Return())
	}
	return out, nil
}

// functionIndex returns the index of the function named sym, assigning the
// next free one on first reference.
func (b *CodeBuilder) functionIndex(sym Symbol) (uint32, error) {
	fn, ok := b.functions[sym]
	if !ok {
		name, _ := b.symbols.resolve(sym)
		return 0, fault.Newf(fault.MissingSymbol, "call to undeclared function %q", name)
	}
	if !fn.resolved {
		fn.index, fn.resolved = b.funcIndex, true
		b.funcIndex++
	}
	return fn.index, nil
}

// patchJumps rewrites label ids carried by Jump and JumpComp into offsets
// relative to the jumping instruction, then lowers each JumpPoint to NoOp.
// A jump to a label the function never declares becomes Illegal, so it faults
// when executed instead of branching by its label id.
func patchJumps(block []bytecode.Instruction) ([]bytecode.Instruction, error) {
	labels := make(map[uint32]int)
	for i, inst := range block {
		if inst.Op != bytecode.OpJumpPoint {
			continue
		}
		if _, dup := labels[inst.Loc]; dup {
			return nil, fault.Newf(fault.CompilationError, "jump label %d is declared twice", inst.Loc)
		}
		labels[inst.Loc] = i
	}

	for i, inst := range block {
		switch inst.Op {
		case bytecode.OpJump, bytecode.OpJumpComp:
			target, ok := labels[uint32(inst.Offset)]
			if !ok {
				log.Debugf("jump at %d names undeclared label %d", i, inst.Offset)
				block[i] = bytecode.Illegal()
				continue
			}
			block[i].Offset = int32(target - i)
		}
	}
	for _, i := range labels {
		block[i] = bytecode.NoOp()
	}
	return block, nil
}
