//go:build unix

package agenttools

import (
	"context"
	"os/exec"
	"syscall"
	"time"
)

func shellCommand(ctx context.Context, shell, command string) *exec.Cmd {
	if shell == "" {
		shell = "/bin/sh"
	}
	return exec.CommandContext(ctx, shell, "-c", command)
}

// setProcessGroup starts the command as a group leader so cancellation
// reaches everything it spawned.
func setProcessGroup(cmd *exec.Cmd, exited <-chan struct{}) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		pid := cmd.Process.Pid
		err := syscall.Kill(-pid, syscall.SIGTERM)
		time.AfterFunc(killGrace, func() {
			select {
			case <-exited:
			default:
				_ = syscall.Kill(-pid, syscall.SIGKILL)
			}
		})
		return err
	}
}
