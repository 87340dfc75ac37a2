package agenttools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxOutput = 1 << 20
	killGrace        = 200 * time.Millisecond
	abortedExitCode  = 130
)

type CommandConfig struct {
	// WorkDir is the default working directory; relative cwd arguments are
	// resolved against it.
	WorkDir string
	// Shell runs the command line, e.g. /bin/sh. Empty uses the platform
	// default.
	Shell     string
	MaxOutput int
}

type CommandParams struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd,omitempty"`
}

type CommandResult struct {
	Success    bool   `json:"success"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exitCode"`
	WasAborted bool   `json:"wasAborted"`
	Command    string `json:"command"`
	WorkingDir string `json:"workingDir"`
}

func CommandTool(cfg CommandConfig) Builtin {
	return Builtin{
		Name:        "executeCommand",
		Description: "Execute a shell command and return the output. Use this to run bash/shell commands.",
		InputSchema: objectSchema(map[string]any{
			"command": stringProp(`The shell command to execute (e.g., "ls -la", "cat file.txt")`),
			"cwd":     stringProp("Working directory to execute the command in (defaults to workspace root)"),
		}, "command"),
		Run: func(ctx context.Context, args json.RawMessage, tc ToolContext) (any, error) {
			var p CommandParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, fmt.Errorf("decode command params: %w", err)
			}
			if strings.TrimSpace(p.Command) == "" {
				return nil, fmt.Errorf("command is required")
			}
			return RunCommand(ctx, cfg, p, tc)
		},
	}
}

// RunCommand executes p.Command in its own process group. Cancelling ctx
// sends SIGTERM to the group and SIGKILL after a short grace period. A
// non-zero exit is reported in the result, not as an error.
func RunCommand(ctx context.Context, cfg CommandConfig, p CommandParams, tc ToolContext) (CommandResult, error) {
	root := cfg.WorkDir
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return CommandResult{}, fmt.Errorf("resolve work dir: %w", err)
	}
	dir := root
	if p.Cwd != "" {
		if filepath.IsAbs(p.Cwd) {
			dir = filepath.Clean(p.Cwd)
		} else {
			dir = filepath.Join(root, p.Cwd)
		}
	}
	res := CommandResult{Command: p.Command, WorkingDir: dir}

	if ctx.Err() != nil {
		res.ExitCode = abortedExitCode
		res.WasAborted = true
		return res, nil
	}

	limit := cfg.MaxOutput
	if limit <= 0 {
		limit = defaultMaxOutput
	}
	stdout := &cappedBuffer{limit: limit}
	stderr := &cappedBuffer{limit: limit}

	cmd := shellCommand(ctx, cfg.Shell, p.Command)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second
	exited := make(chan struct{})
	setProcessGroup(cmd, exited)

	if err := cmd.Start(); err != nil {
		return CommandResult{}, fmt.Errorf("start command: %w", err)
	}
	if tc.Processes != nil {
		tc.Processes.RegisterProcess(tc.RunID, cmd.Process)
		defer tc.Processes.UnregisterProcess(tc.RunID, cmd.Process)
	}
	waitErr := cmd.Wait()
	close(exited)

	res.Stdout = strings.TrimSpace(stdout.String())
	res.Stderr = strings.TrimSpace(stderr.String())
	switch {
	case ctx.Err() != nil:
		res.WasAborted = true
		res.ExitCode = abortedExitCode
	case waitErr != nil:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return CommandResult{}, fmt.Errorf("wait command: %w", waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode == 0 || res.ExitCode == -1 {
			res.ExitCode = 1
		}
	}
	res.Success = res.ExitCode == 0 && !res.WasAborted
	return res, nil
}

// cappedBuffer keeps at most limit bytes and discards the rest.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
