package abort

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"
)

// ErrAborted is the cancellation cause of a run stopped through the registry.
var ErrAborted = errors.New("run aborted")

// KillGrace is how long a gracefully aborted process group gets between
// SIGTERM and SIGKILL.
const KillGrace = 200 * time.Millisecond

type entry struct {
	cancel  context.CancelCauseFunc
	aborted bool
	procs   map[*os.Process]struct{}
	timers  map[*time.Timer]struct{}
}

// Registry issues one cancellation context per active run and tracks the
// child processes started on its behalf.
type Registry struct {
	mu     sync.Mutex
	runs   map[string]*entry
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{runs: map[string]*entry{}, logger: logger}
}

// CreateForRun returns the context that governs runID until Cleanup. Any
// previous entry for the run is cleaned up first.
func (r *Registry) CreateForRun(parent context.Context, runID string) context.Context {
	r.Cleanup(runID)
	ctx, cancel := context.WithCancelCause(parent)
	r.mu.Lock()
	r.runs[runID] = &entry{
		cancel: cancel,
		procs:  map[*os.Process]struct{}{},
		timers: map[*time.Timer]struct{}{},
	}
	r.mu.Unlock()
	return ctx
}

func (r *Registry) RegisterProcess(runID string, proc *os.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.runs[runID]; ok && proc != nil {
		e.procs[proc] = struct{}{}
	}
}

func (r *Registry) UnregisterProcess(runID string, proc *os.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.runs[runID]; ok {
		delete(e.procs, proc)
	}
}

// Abort cancels the run's context and sends SIGTERM to every tracked
// process group, escalating to SIGKILL after KillGrace. It reports whether
// the run was active.
func (r *Registry) Abort(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.runs[runID]
	if !ok {
		return false
	}
	e.aborted = true
	e.cancel(ErrAborted)
	for proc := range e.procs {
		r.signal(proc, syscall.SIGTERM)
		var timer *time.Timer
		timer = time.AfterFunc(KillGrace, func() {
			r.mu.Lock()
			_, tracked := e.procs[proc]
			delete(e.timers, timer)
			r.mu.Unlock()
			if tracked {
				r.signal(proc, syscall.SIGKILL)
			}
		})
		e.timers[timer] = struct{}{}
	}
	return true
}

// ForceAbort cancels the run and kills every tracked process group at once.
func (r *Registry) ForceAbort(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.runs[runID]
	if !ok {
		return false
	}
	e.aborted = true
	e.cancel(ErrAborted)
	stopTimers(e)
	for proc := range e.procs {
		r.signal(proc, syscall.SIGKILL)
	}
	return true
}

func (r *Registry) IsAborted(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.runs[runID]
	return ok && e.aborted
}

// Cleanup forgets the run. Its context is released; tracked processes are
// left alone.
func (r *Registry) Cleanup(runID string) {
	r.mu.Lock()
	e, ok := r.runs[runID]
	if ok {
		delete(r.runs, runID)
		stopTimers(e)
	}
	r.mu.Unlock()
	if ok {
		e.cancel(context.Canceled)
	}
}

func stopTimers(e *entry) {
	for t := range e.timers {
		t.Stop()
	}
	clear(e.timers)
}

func (r *Registry) signal(proc *os.Process, sig syscall.Signal) {
	if err := killGroup(proc, sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		r.logger.Debug("signal process", "pid", proc.Pid, "signal", sig.String(), "err", err)
	}
}
