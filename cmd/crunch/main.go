// Crunch CLI - runs, inspects and caches register bytecode programs
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/chazu/crunch/manifest"
	"github.com/chazu/crunch/pkg/bytecode"
	"github.com/chazu/crunch/pkg/fault"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbosity := flag.Int("v", -1, "Log verbosity (overrides [log] verbosity in crunch.toml)")
	dir := flag.String("C", ".", "Directory to search for crunch.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: crunch [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run [-trace] [FILE]        Execute a program (default: [project] entry)\n")
		fmt.Fprintf(os.Stderr, "  disasm [FILE]              Print a program listing\n")
		fmt.Fprintf(os.Stderr, "  debug [FILE]               Step through a program interactively\n")
		fmt.Fprintf(os.Stderr, "  store put NAME FILE        Cache a program\n")
		fmt.Fprintf(os.Stderr, "  store get NAME OUT         Write a cached program to OUT\n")
		fmt.Fprintf(os.Stderr, "  store list                 List cached programs\n")
		fmt.Fprintf(os.Stderr, "  store rm NAME              Remove a cached program\n")
		fmt.Fprintf(os.Stderr, "  store run [-trace] NAME    Execute a cached program\n")
		fmt.Fprintf(os.Stderr, "  example [-image] OUT       Write the hello world program\n")
		fmt.Fprintf(os.Stderr, "  init [DIR]                 Write a default crunch.toml\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		fail(err)
	}
	if m == nil {
		m = manifest.Default()
	}
	configureLogging(m, *verbosity)

	switch args[0] {
	case "run":
		handleRunCommand(args[1:], m)
	case "disasm":
		handleDisasmCommand(args[1:], m)
	case "debug":
		handleDebugCommand(args[1:], m)
	case "store":
		handleStoreCommand(args[1:], m)
	case "example":
		handleExampleCommand(args[1:])
	case "init":
		handleInitCommand(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
}

func configureLogging(m *manifest.Manifest, verbosity int) {
	if verbosity < 0 {
		verbosity = m.Log.Verbosity
	}
	var path *string
	if m.Log.File != "" {
		file := m.Resolve(m.Log.File)
		path = &file
	}
	commonlog.Configure(verbosity, path)
}

// fail prints err and exits. Runtime errors already carry their kind.
func fail(err error) {
	var runtimeErr *fault.Error
	if errors.As(err, &runtimeErr) {
		fmt.Fprintln(os.Stderr, runtimeErr.Error())
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

// programPath picks the program named on the command line, falling back to
// the manifest entry.
func programPath(args []string, m *manifest.Manifest) string {
	if len(args) > 0 {
		return args[0]
	}
	if path := m.EntryPath(); path != "" {
		return path
	}
	fmt.Fprintln(os.Stderr, "No program given and no [project] entry in crunch.toml")
	os.Exit(1)
	return ""
}

// readProgram loads a raw program or an image from disk.
func readProgram(path string) ([]bytecode.Instruction, [][]bytecode.Instruction, *bytecode.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, fault.Newf(fault.FileError, "cannot read %s: %v", path, err)
	}
	return bytecode.ReadProgram(data)
}
