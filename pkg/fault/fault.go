// Package fault defines the single error type shared by the heap, the value
// model, the code builder and the virtual machine.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a runtime or assembly failure.
type Kind uint8

const (
	// GcError is a heap failure: double free, type mismatch on fetch, or use of
	// an id that was never allocated.
	GcError Kind = iota
	// DivideByZero is raised by Div with a zero divisor.
	DivideByZero
	// IncompatibleTypes is raised when operand types cannot be combined.
	IncompatibleTypes
	// MissingMain is raised when a program has no entry function.
	MissingMain
	// NullVar is raised when an empty register is used as an operand.
	NullVar
	// IllegalInstruction is raised by Illegal and by unresolved JumpPoint.
	IllegalInstruction
	// InvalidJump is raised when control flow leaves a function.
	InvalidJump
	MissingValue
	MissingString
	InvalidString
	FileError
	// BytecodeError is raised by the program codec.
	BytecodeError
	// IntegerOverflow is raised when a value cannot be promoted any further.
	IntegerOverflow
	// CompilationError is raised by the code builder.
	CompilationError
	// MissingSymbol is raised for references to undeclared names.
	MissingSymbol
)

var kindNames = [...]string{
	GcError:            "GcError",
	DivideByZero:       "DivideByZero",
	IncompatibleTypes:  "IncompatibleTypes",
	MissingMain:        "MissingMain",
	NullVar:            "NullVar",
	IllegalInstruction: "IllegalInstruction",
	InvalidJump:        "InvalidJump",
	MissingValue:       "MissingValue",
	MissingString:      "MissingString",
	InvalidString:      "InvalidString",
	FileError:          "FileError",
	BytecodeError:      "BytecodeError",
	IntegerOverflow:    "IntegerOverflow",
	CompilationError:   "CompilationError",
	MissingSymbol:      "MissingSymbol",
}

// String returns the name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error is a classified failure with a human readable message.
type Error struct {
	Kind    Kind
	Message string
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("[Crunch Runtime Error: %s] %s", e.Kind, e.Message)
}

// Is reports whether target is a *Error of the same kind. Messages are not
// compared.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
