// Package manifest handles crunch.toml project configuration.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file.
const FileName = "crunch.toml"

// Manifest represents a crunch.toml project configuration.
type Manifest struct {
	Project Project   `toml:"project"`
	VM      VMConfig  `toml:"vm"`
	GC      GCConfig  `toml:"gc"`
	Log     LogConfig `toml:"log"`
	Store   Store     `toml:"store"`

	// Dir is the directory containing the crunch.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// VMConfig configures the virtual machine.
type VMConfig struct {
	Trace  bool   `toml:"trace"`
	Output string `toml:"output"` // empty means stdout
}

// GCConfig configures the heap.
type GCConfig struct {
	HeapLimit      int  `toml:"heap-limit"`
	LogCollections bool `toml:"log-collections"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Store configures the program cache.
type Store struct {
	Path string `toml:"path"`
}

// Default returns the configuration used when no crunch.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Store.Path == "" {
		m.Store.Path = filepath.Join(".crunch", "programs.db")
	}
}

// Load parses a crunch.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	meta, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}
	if m.GC.HeapLimit < 0 {
		return nil, fmt.Errorf("gc.heap-limit in %s must not be negative", path)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a crunch.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Save writes the manifest as crunch.toml into dir.
func (m *Manifest) Save(dir string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// Resolve returns p relative to the manifest directory unless it is
// already absolute or empty.
func (m *Manifest) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// EntryPath returns the path of the program to run by default.
func (m *Manifest) EntryPath() string {
	return m.Resolve(m.Project.Entry)
}

// StorePath returns the path of the program cache database.
func (m *Manifest) StorePath() string {
	return m.Resolve(m.Store.Path)
}

// OutputPath returns the path Print writes to, or "" for stdout.
func (m *Manifest) OutputPath() string {
	return m.Resolve(m.VM.Output)
}
