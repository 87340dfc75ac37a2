//go:build unix

package agenttools

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingTracker struct {
	mu           sync.Mutex
	registered   int
	unregistered int
}

func (r *recordingTracker) RegisterProcess(string, *os.Process) {
	r.mu.Lock()
	r.registered++
	r.mu.Unlock()
}

func (r *recordingTracker) UnregisterProcess(string, *os.Process) {
	r.mu.Lock()
	r.unregistered++
	r.mu.Unlock()
}

func TestRunCommandEcho(t *testing.T) {
	dir := t.TempDir()
	tracker := &recordingTracker{}
	res, err := RunCommand(context.Background(), CommandConfig{WorkDir: dir}, CommandParams{Command: "echo hello && pwd"}, ToolContext{RunID: "r1", Processes: tracker})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if !res.Success || res.ExitCode != 0 {
		t.Fatalf("expected success, got %+v", res)
	}
	if !strings.HasPrefix(res.Stdout, "hello\n") || !strings.Contains(res.Stdout, dir) {
		t.Fatalf("unexpected stdout %q", res.Stdout)
	}
	if tracker.registered != 1 || tracker.unregistered != 1 {
		t.Fatalf("expected process to be tracked once, got %d/%d", tracker.registered, tracker.unregistered)
	}
}

func TestRunCommandNonZeroExitIsData(t *testing.T) {
	res, err := RunCommand(context.Background(), CommandConfig{WorkDir: t.TempDir()}, CommandParams{Command: "echo oops >&2; exit 3"}, ToolContext{})
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if res.Success || res.ExitCode != 3 || strings.TrimSpace(res.Stderr) != "oops" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunCommandCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	start := time.Now()
	res, err := RunCommand(ctx, CommandConfig{WorkDir: t.TempDir()}, CommandParams{Command: "sleep 10"}, ToolContext{})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if !res.WasAborted || res.ExitCode != abortedExitCode {
		t.Fatalf("expected aborted result, got %+v", res)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("cancellation took too long")
	}
}

func TestRunCommandCapsOutput(t *testing.T) {
	res, err := RunCommand(context.Background(), CommandConfig{WorkDir: t.TempDir(), MaxOutput: 16}, CommandParams{Command: "printf '%064d' 0"}, ToolContext{})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if len(res.Stdout) != 16 {
		t.Fatalf("expected capped stdout, got %d bytes", len(res.Stdout))
	}
}

func TestCommandToolRequiresCommand(t *testing.T) {
	tool := CommandTool(CommandConfig{})
	if _, err := tool.Run(context.Background(), json.RawMessage(`{"command":"  "}`), ToolContext{}); err == nil {
		t.Fatalf("expected error for empty command")
	}
}
