package builder

import (
	"fmt"
	"strings"
)

// Symbol is an interned name.
type Symbol uint32

// interner maps names to dense symbols and back.
type interner struct {
	ids   map[string]Symbol
	names []string
}

func newInterner() *interner {
	return &interner{ids: make(map[string]Symbol)}
}

func (in *interner) intern(name string) Symbol {
	if sym, ok := in.ids[name]; ok {
		return sym
	}
	sym := Symbol(len(in.names))
	in.ids[name] = sym
	in.names = append(in.names, name)
	return sym
}

func (in *interner) lookup(name string) (Symbol, bool) {
	sym, ok := in.ids[name]
	return sym, ok
}

func (in *interner) resolve(sym Symbol) (string, bool) {
	if int(sym) >= len(in.names) {
		return "", false
	}
	return in.names[sym], true
}

// MangleStatus is the kind of item a mangled name refers to.
type MangleStatus uint8

const (
	MangleFunction MangleStatus = iota
	MangleGlobal
	MangleLocal
	MangleType
)

func (s MangleStatus) String() string {
	switch s {
	case MangleFunction:
		return "function"
	case MangleGlobal:
		return "global"
	case MangleLocal:
		return "local"
	case MangleType:
		return "type"
	default:
		return fmt.Sprintf("MangleStatus(%d)", uint8(s))
	}
}

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Mangle produces a unique name for a path, e.g.
// __function_4main5inner__Xy3kQ for ["main", "inner"]. Each segment is
// prefixed with its length; the trailing 5 to 14 random characters keep
// names from separate builds apart.
func (b *CodeBuilder) Mangle(path []string, status MangleStatus) string {
	var sb strings.Builder
	sb.WriteString("__")
	sb.WriteString(status.String())
	sb.WriteString("_")
	for _, segment := range path {
		fmt.Fprintf(&sb, "%d%s", len(segment), segment)
	}
	sb.WriteString("__")
	sb.WriteString(b.clobber(5 + b.rng.IntN(10)))
	return sb.String()
}

// clobber returns n random alphanumeric characters.
func (b *CodeBuilder) clobber(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphanumeric[b.rng.IntN(len(alphanumeric))]
	}
	return string(buf)
}
