//go:build unix

package abort

import (
	"os"
	"syscall"
)

// killGroup signals the process group led by proc, falling back to the
// process alone when it is not a group leader.
func killGroup(proc *os.Process, sig syscall.Signal) error {
	if err := syscall.Kill(-proc.Pid, sig); err == nil {
		return nil
	}
	return proc.Signal(sig)
}
