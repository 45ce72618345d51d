package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/chazu/crunch/manifest"
	"github.com/chazu/crunch/pkg/bytecode"
	"github.com/chazu/crunch/pkg/store"
)

// handleStoreCommand processes the `crunch store` subcommand.
func handleStoreCommand(args []string, m *manifest.Manifest) {
	if len(args) == 0 {
		printStoreUsage()
		os.Exit(1)
	}

	s, err := store.Open(m.StorePath())
	if err != nil {
		fail(err)
	}
	defer s.Close()

	switch args[0] {
	case "put":
		if len(args) != 3 {
			printStoreUsage()
			os.Exit(1)
		}
		err = storePut(s, args[1], args[2])
	case "get":
		if len(args) != 3 {
			printStoreUsage()
			os.Exit(1)
		}
		err = storeGet(s, args[1], args[2])
	case "list", "ls":
		err = storeList(s)
	case "rm":
		if len(args) != 2 {
			printStoreUsage()
			os.Exit(1)
		}
		if err = s.Delete(args[1]); err == nil {
			fmt.Printf("Removed %s\n", args[1])
		}
	case "run":
		fs := flag.NewFlagSet("store run", flag.ExitOnError)
		trace := fs.Bool("trace", false, "Log every executed instruction")
		fs.Parse(args[1:])
		if fs.NArg() != 1 {
			printStoreUsage()
			os.Exit(1)
		}
		err = storeRun(s, fs.Arg(0), m, *trace)
	default:
		fmt.Fprintf(os.Stderr, "Unknown store command: %s\n", args[0])
		printStoreUsage()
		os.Exit(1)
	}
	if err != nil {
		// Close explicitly, fail exits without running defers.
		s.Close()
		fail(err)
	}
}

func printStoreUsage() {
	fmt.Fprintln(os.Stderr, "Usage: crunch store <put|get|list|rm|run> [args...]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "  put NAME FILE        Cache a program")
	fmt.Fprintln(os.Stderr, "  get NAME OUT         Write a cached program to OUT")
	fmt.Fprintln(os.Stderr, "  list                 List cached programs")
	fmt.Fprintln(os.Stderr, "  rm NAME              Remove a cached program")
	fmt.Fprintln(os.Stderr, "  run [-trace] NAME    Execute a cached program")
}

// storePut validates a program file before caching it.
func storePut(s *store.Store, name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if _, _, _, err := bytecode.ReadProgram(data); err != nil {
		return fmt.Errorf("%s is not a crunch program: %w", path, err)
	}
	hash, err := s.Put(name, data)
	if err != nil {
		return err
	}
	fmt.Printf("Stored %s (%s, %d bytes)\n", name, hash[:12], len(data))
	return nil
}

func storeGet(s *store.Store, name, out string) error {
	data, err := s.Get(name)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0644)
}

func storeList(s *store.Store) error {
	entries, err := s.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No programs stored.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tHASH\tSIZE\tSTORED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.Name, e.Hash[:12], e.Size, e.Created.Format(time.DateTime))
	}
	return w.Flush()
}

func storeRun(s *store.Store, name string, m *manifest.Manifest, trace bool) error {
	data, err := s.Get(name)
	if err != nil {
		return err
	}
	main, others, _, err := bytecode.ReadProgram(data)
	if err != nil {
		return err
	}
	return execute(main, others, m, trace)
}
