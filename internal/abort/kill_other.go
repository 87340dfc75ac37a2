//go:build !unix

package abort

import (
	"os"
	"syscall"
)

func killGroup(proc *os.Process, _ syscall.Signal) error {
	return proc.Kill()
}
