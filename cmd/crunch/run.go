package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chazu/crunch/manifest"
	"github.com/chazu/crunch/pkg/bytecode"
	"github.com/chazu/crunch/pkg/vm"
	"github.com/tliron/commonlog"
)

// handleRunCommand processes the `crunch run` subcommand.
func handleRunCommand(args []string, m *manifest.Manifest) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	trace := fs.Bool("trace", false, "Log every executed instruction")
	fs.Parse(args)

	main, others, _, err := readProgram(programPath(fs.Args(), m))
	if err != nil {
		fail(err)
	}
	if err := execute(main, others, m, *trace); err != nil {
		fail(err)
	}
}

// execute runs a decoded program with the manifest's VM settings.
func execute(main []bytecode.Instruction, others [][]bytecode.Instruction, m *manifest.Manifest, trace bool) error {
	opts, closer, err := vm.OptionsFromManifest(m)
	if err != nil {
		return err
	}
	defer closer.Close()

	if trace {
		// Tracing logs at debug level.
		commonlog.SetMaxLevel(commonlog.Debug)
		opts = append(opts, vm.WithTrace(true))
	}

	machine := vm.NewProgram(main, others, opts...)
	return machine.Run()
}

// handleDisasmCommand processes the `crunch disasm` subcommand.
func handleDisasmCommand(args []string, m *manifest.Manifest) {
	main, others, img, err := readProgram(programPath(args, m))
	if err != nil {
		fail(err)
	}
	writeListing(os.Stdout, main, others, img)
}

func writeListing(w io.Writer, main []bytecode.Instruction, others [][]bytecode.Instruction, img *bytecode.Image) {
	if img != nil {
		fmt.Fprintf(w, "; build %s, entry %s\n", img.BuildID, img.Entry)
		for i := 0; i <= len(others); i++ {
			fmt.Fprintf(w, "; function %d: %s\n", i, img.FunctionName(i))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprint(w, bytecode.DisassembleProgram(main, others))
}

// handleInitCommand processes the `crunch init` subcommand.
func handleInitCommand(args []string) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		fail(err)
	}
	if _, err := os.Stat(filepath.Join(abs, manifest.FileName)); err == nil {
		fail(fmt.Errorf("%s already exists in %s", manifest.FileName, abs))
	}

	m := manifest.Default()
	m.Project = manifest.Project{
		Name:  filepath.Base(abs),
		Entry: "main.crunched",
	}
	if err := m.Save(abs); err != nil {
		fail(err)
	}
	fmt.Printf("Wrote %s\n", filepath.Join(abs, manifest.FileName))
}
