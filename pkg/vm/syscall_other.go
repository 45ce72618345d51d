//go:build !unix

package vm

import (
	"os"

	"fortio.org/safecast"
)

// DefaultSyscalls returns the process identity calls the os package
// provides on this platform. Ids it cannot report fail the call.
func DefaultSyscalls() SyscallTable {
	return SyscallTable{
		0: processID(os.Getpid),
		1: processID(os.Getppid),
		2: processID(os.Getuid),
		3: processID(os.Getgid),
		4: processID(os.Geteuid),
		5: processID(os.Getegid),
	}
}

func processID(fn func() int) SyscallFunc {
	return func([SyscallParams]uintptr) (uintptr, error) {
		return safecast.Convert[uintptr](fn())
	}
}
