package abort

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"
	"time"
)

func TestAbortCancelsContextWithCause(t *testing.T) {
	r := NewRegistry(nil)
	ctx := r.CreateForRun(context.Background(), "run-1")
	if r.IsAborted("run-1") {
		t.Fatalf("fresh run must not be aborted")
	}
	if !r.Abort("run-1") {
		t.Fatalf("expected active run")
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("context not cancelled")
	}
	if !errors.Is(context.Cause(ctx), ErrAborted) {
		t.Fatalf("expected ErrAborted cause, got %v", context.Cause(ctx))
	}
	if !r.IsAborted("run-1") {
		t.Fatalf("expected aborted flag")
	}
	r.Cleanup("run-1")
	if r.IsAborted("run-1") {
		t.Fatalf("cleanup must forget the run")
	}
	if r.Abort("run-1") {
		t.Fatalf("abort after cleanup must report inactive")
	}
}

func TestCreateForRunReplacesPreviousEntry(t *testing.T) {
	r := NewRegistry(nil)
	first := r.CreateForRun(context.Background(), "run-1")
	second := r.CreateForRun(context.Background(), "run-1")
	if first.Err() == nil {
		t.Fatalf("previous context must be released")
	}
	if second.Err() != nil {
		t.Fatalf("new context must be live")
	}
	if errors.Is(context.Cause(first), ErrAborted) {
		t.Fatalf("replacement is not an abort")
	}
}

func TestForceAbortKillsTrackedProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sleep binary")
	}
	r := NewRegistry(nil)
	_ = r.CreateForRun(context.Background(), "run-1")

	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("start sleep: %v", err)
	}
	r.RegisterProcess("run-1", cmd.Process)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	r.ForceAbort("run-1")
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected killed process to exit with error")
		}
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatalf("process not killed")
	}
}
