//go:build !windows

package security

import (
	"os"
	"syscall"
)

// pidAlive reports whether the given PID refers to a running process.
// Signal 0 probes existence without delivering anything.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
