package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/chazu/crunch/manifest"
	"github.com/chazu/crunch/pkg/gc"
)

// OptionsFromManifest maps project configuration to VM options. If the
// manifest redirects output to a file, the returned closer closes it; it is
// never nil.
func OptionsFromManifest(m *manifest.Manifest) ([]Option, io.Closer, error) {
	opts := []Option{
		WithTrace(m.VM.Trace),
		WithHeap(gc.New(
			gc.WithHeapLimit(m.GC.HeapLimit),
			gc.WithCollectionLogging(m.GC.LogCollections),
		)),
	}

	path := m.OutputPath()
	if path == "" {
		return opts, nopCloser{}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open vm output %s: %w", path, err)
	}
	return append(opts, WithOutput(f)), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
