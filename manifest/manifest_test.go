package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "hello"
entry = "hello.crunched"

[vm]
trace = true
output = "out.txt"

[gc]
heap-limit = 4096
log-collections = true

[log]
verbosity = 2
file = "crunch.log"

[store]
path = "cache/programs.db"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "hello" {
		t.Errorf("project name = %q, want hello", m.Project.Name)
	}
	if m.Project.Entry != "hello.crunched" {
		t.Errorf("project entry = %q, want hello.crunched", m.Project.Entry)
	}
	if !m.VM.Trace {
		t.Error("vm trace = false, want true")
	}
	if m.GC.HeapLimit != 4096 {
		t.Errorf("gc heap-limit = %d, want 4096", m.GC.HeapLimit)
	}
	if !m.GC.LogCollections {
		t.Error("gc log-collections = false, want true")
	}
	if m.Log.Verbosity != 2 || m.Log.File != "crunch.log" {
		t.Errorf("log = %+v, want verbosity 2, file crunch.log", m.Log)
	}

	abs, _ := filepath.Abs(dir)
	if got, want := m.EntryPath(), filepath.Join(abs, "hello.crunched"); got != want {
		t.Errorf("EntryPath() = %q, want %q", got, want)
	}
	if got, want := m.StorePath(), filepath.Join(abs, "cache", "programs.db"); got != want {
		t.Errorf("StorePath() = %q, want %q", got, want)
	}
	if got, want := m.OutputPath(), filepath.Join(abs, "out.txt"); got != want {
		t.Errorf("OutputPath() = %q, want %q", got, want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Store.Path != filepath.Join(".crunch", "programs.db") {
		t.Errorf("default store path = %q", m.Store.Path)
	}
	if m.VM.Trace || m.GC.HeapLimit != 0 {
		t.Errorf("unexpected non-default settings: %+v %+v", m.VM, m.GC)
	}
	if m.OutputPath() != "" {
		t.Errorf("OutputPath() = %q, want stdout", m.OutputPath())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[vm]
trace = true
speed = "fast"
`)

	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "vm.speed") {
		t.Errorf("Load error = %v, want unknown key vm.speed", err)
	}
}

func TestLoadRejectsNegativeHeapLimit(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[gc]
heap-limit = -1
`)
	if _, err := Load(dir); err == nil {
		t.Error("Load accepted a negative heap limit")
	}
}

func TestLoadParseError(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[project\nname = ")
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "parse error") {
		t.Errorf("Load error = %v, want parse error", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `[project]
name = "found-project"
`)

	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no crunch.toml exists")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := Default()
	m.Project = Project{Name: "saved", Entry: "main.crunched"}
	m.GC.HeapLimit = 1 << 20

	if err := m.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Project != m.Project {
		t.Errorf("project = %+v, want %+v", loaded.Project, m.Project)
	}
	if loaded.GC.HeapLimit != 1<<20 {
		t.Errorf("heap-limit = %d, want %d", loaded.GC.HeapLimit, 1<<20)
	}
	if loaded.Store.Path != m.Store.Path {
		t.Errorf("store path = %q, want %q", loaded.Store.Path, m.Store.Path)
	}
}

func TestResolveKeepsAbsolutePaths(t *testing.T) {
	m := &Manifest{Dir: "/app"}
	if got := m.Resolve("/tmp/x"); got != "/tmp/x" {
		t.Errorf("Resolve(/tmp/x) = %q", got)
	}
	if got := m.Resolve("x"); got != filepath.Join("/app", "x") {
		t.Errorf("Resolve(x) = %q", got)
	}
	if got := m.Resolve(""); got != "" {
		t.Errorf("Resolve(\"\") = %q", got)
	}
}
