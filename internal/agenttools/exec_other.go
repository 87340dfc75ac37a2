//go:build !unix

package agenttools

import (
	"context"
	"os/exec"
)

func shellCommand(ctx context.Context, shell, command string) *exec.Cmd {
	if shell == "" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, shell, "-c", command)
}

func setProcessGroup(*exec.Cmd, <-chan struct{}) {}
