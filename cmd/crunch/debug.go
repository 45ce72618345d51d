package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/crunch/manifest"
	"github.com/chazu/crunch/pkg/bytecode"
	"github.com/chazu/crunch/pkg/vm"
)

const debugPrompt = "(crunch) "

const debugHelp = `Commands:
  s, step [N]   Execute N instructions (default 1)
  c, continue   Run until the program finishes or fails
  r, regs       Show the non-empty registers
  h, heap       Show the live heap slots
  p, pc         Show the next instruction
  l, list       List the current function
  q, quit       Leave the debugger
`

// handleDebugCommand processes the `crunch debug` subcommand.
func handleDebugCommand(args []string, m *manifest.Manifest) {
	if err := debugProgram(programPath(args, m), m); err != nil {
		fail(err)
	}
}

// debugProgram runs the interactive session. Errors are returned so the
// terminal is restored before the caller exits.
func debugProgram(path string, m *manifest.Manifest) error {
	main, others, img, err := readProgram(path)
	if err != nil {
		return err
	}
	opts, closer, err := vm.OptionsFromManifest(m)
	if err != nil {
		return err
	}
	defer closer.Close()

	d := newDebugger(vm.NewProgram(main, others, opts...), img, os.Stdout)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	fmt.Print(debugHelp)
	return d.serve(ln)
}

// lineReader is the part of a liner.State the debugger uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// serve reads commands until quit or end of input.
func (d *debugger) serve(in lineReader) error {
	d.where()
	for {
		line, err := in.Prompt(debugPrompt)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading command: %w", err)
		}
		if strings.TrimSpace(line) != "" {
			in.AppendHistory(line)
		}
		if d.exec(line) {
			return nil
		}
	}
}

// debugger drives a VM one command at a time.
type debugger struct {
	vm   *vm.VM
	img  *bytecode.Image
	out  io.Writer
	last string
}

func newDebugger(machine *vm.VM, img *bytecode.Image, out io.Writer) *debugger {
	return &debugger{vm: machine, img: img, out: out}
}

// exec runs one command line and reports whether the session should end.
// An empty line repeats the previous command.
func (d *debugger) exec(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		line = d.last
	}
	if line == "" {
		return false
	}
	d.last = line

	fields := strings.Fields(line)
	switch fields[0] {
	case "s", "step":
		n := 1
		if len(fields) > 1 {
			parsed, err := strconv.Atoi(fields[1])
			if err != nil || parsed < 1 {
				fmt.Fprintf(d.out, "invalid step count %q\n", fields[1])
				return false
			}
			n = parsed
		}
		d.step(n)
	case "c", "continue":
		d.step(-1)
	case "r", "regs":
		d.registers()
	case "h", "heap":
		d.heap()
	case "p", "pc":
		d.where()
	case "l", "list":
		d.list()
	case "q", "quit":
		return true
	case "help", "?":
		fmt.Fprint(d.out, debugHelp)
	default:
		fmt.Fprintf(d.out, "unknown command %q, try help\n", fields[0])
	}
	return false
}

// step executes n instructions, or runs to completion when n is negative.
func (d *debugger) step(n int) {
	for i := 0; n < 0 || i < n; i++ {
		if d.vm.Finished() {
			fmt.Fprintln(d.out, "program finished")
			return
		}
		if err := d.vm.Step(); err != nil {
			fmt.Fprintln(d.out, err)
			return
		}
	}
	d.where()
}

func (d *debugger) functionName(index uint32) string {
	if d.img != nil {
		return d.img.FunctionName(int(index))
	}
	if index == 0 {
		return "main"
	}
	return fmt.Sprintf("function %d", index)
}

func (d *debugger) where() {
	inst, ok := d.vm.Current()
	if !ok {
		if d.vm.Finished() {
			fmt.Fprintln(d.out, "program finished")
		} else {
			fmt.Fprintf(d.out, "%s: pc %d is outside the function\n", d.functionName(d.vm.Function()), d.vm.PC())
		}
		return
	}
	fmt.Fprintf(d.out, "%s [%04d] %s\n", d.functionName(d.vm.Function()), d.vm.PC(), inst)
}

func (d *debugger) registers() {
	empty := true
	for r := 0; r < bytecode.NumberRegisters; r++ {
		reg := bytecode.Register(r)
		v := d.vm.Register(reg)
		if v.IsNone() {
			continue
		}
		empty = false
		shown, err := v.Display(d.vm.Heap())
		if err != nil {
			shown = err.Error()
		}
		fmt.Fprintf(d.out, "%-5s %-8s %s\n", reg, v.Type(), shown)
	}
	if empty {
		fmt.Fprintln(d.out, "all registers are empty")
	}
	fmt.Fprintf(d.out, "comp  %t\n", d.vm.PrevComp())
	if op := d.vm.PrevOp(); !op.IsNone() {
		fmt.Fprintf(d.out, "op    %s\n", op)
	}
}

func (d *debugger) heap() {
	heap := d.vm.Heap()
	ids := heap.IDs()
	if len(ids) == 0 {
		fmt.Fprintln(d.out, "heap is empty")
		return
	}
	for _, id := range ids {
		payload, _ := heap.Peek(id)
		marker := ""
		if heap.IsRoot(id) {
			marker = " (root)"
		}
		fmt.Fprintf(d.out, "@%d%s %v\n", id, marker, payload)
	}
	fmt.Fprintf(d.out, "%d slots, %d bytes, %d collections\n", heap.Len(), heap.Size(), heap.Collections())
}

func (d *debugger) list() {
	fn := d.vm.Function()
	lines := bytecode.DisassembleToLines(d.vm.Code(fn))
	for i, line := range lines {
		marker := "  "
		if bytecode.Index(i) == d.vm.PC() {
			marker = "=>"
		}
		fmt.Fprintf(d.out, "%s %s\n", marker, line)
	}
}
