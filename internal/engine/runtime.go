package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flitsinc/agentrun/internal/ai"
	"github.com/flitsinc/agentrun/internal/runs"
)

var tracer = otel.Tracer("agentrun/engine")

// ErrLeaseLost is returned by Trigger when the run lock could not be renewed
// and processing stopped before the run was settled.
var ErrLeaseLost = errors.New("run lease lost")

// Runtime drives runs to quiescence. A trigger holds the run lock while it
// replays the log, executes passes and appends what they produce.
type Runtime struct {
	Store    RunRepository
	Locks    RunLocker
	Aborts   AbortRegistry
	Inbox    Inbox
	Bus      Publisher
	IDs      IDSource
	Agents   AgentLoader
	Tools    ToolResolver
	Executor ToolExecutor
	Model    ai.Model
	Models   ai.ConfigSource
	Commands CommandGate
	Metrics  *Metrics
	Logger   *slog.Logger
	Now      func() time.Time

	wg sync.WaitGroup
}

func (r *Runtime) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runtime) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Runtime) publish(ctx context.Context, ev runs.Event) {
	r.Metrics.event(string(ev.Type))
	if r.Bus != nil {
		r.Bus.Publish(ctx, ev)
	}
}

// Trigger processes runID until a pass produces nothing, the run is
// suspended on a human, or it is stopped. It returns at once when another
// processor holds the run.
func (r *Runtime) Trigger(ctx context.Context, runID string) error {
	logger := r.logger().With("run_id", runID)
	ok, err := r.Locks.Lock(ctx, runID)
	if err != nil {
		return fmt.Errorf("lock run %s: %w", runID, err)
	}
	if !ok {
		r.Metrics.contended()
		logger.Debug("run is locked by another processor")
		return nil
	}

	// Appends and lifecycle events must land even after the run is
	// cancelled.
	detached := context.WithoutCancel(ctx)
	runCtx, loseLease := context.WithCancelCause(r.Aborts.CreateForRun(ctx, runID))
	stopRenewing := r.keepLease(runCtx, runID, loseLease, logger)
	r.Metrics.runStarted()
	defer func() {
		stopRenewing()
		loseLease(nil)
		r.Aborts.Cleanup(runID)
		if relErr := r.Locks.Release(detached, runID); relErr != nil {
			logger.Error("release run lock", "error", relErr)
		}
		r.publish(detached, runs.Event{RunID: runID, Type: runs.EventProcessingEnd, TS: r.now()})
		r.Metrics.runFinished()
	}()

	r.publish(detached, runs.Event{RunID: runID, Type: runs.EventProcessingStart, TS: r.now()})

	for runCtx.Err() == nil {
		run, err := r.Store.Fetch(detached, runID)
		if err != nil {
			return fmt.Errorf("fetch run %s: %w", runID, err)
		}
		st := Rebuild(run.Log)

		count, passErr := r.runPass(runCtx, detached, runID, st)
		if passErr != nil && runCtx.Err() == nil {
			logger.Error("pass failed", "error", passErr)
			failure := runs.Event{RunID: runID, Type: runs.EventError, Error: passErr.Error(), TS: r.now()}
			if appendErr := r.Store.AppendEvents(detached, runID, []runs.Event{failure}); appendErr != nil {
				return errors.Join(passErr, appendErr)
			}
			r.publish(detached, failure)
			return passErr
		}
		if count == 0 {
			break
		}
	}

	if errors.Is(context.Cause(runCtx), ErrLeaseLost) {
		// another processor may own the log now; nothing more is written
		return fmt.Errorf("run %s: %w", runID, ErrLeaseLost)
	}
	if runCtx.Err() != nil {
		logger.Info("run stopped")
		stopped := runs.Event{RunID: runID, Type: runs.EventRunStopped, Reason: runs.StopUserRequested, TS: r.now()}
		if err := r.Store.AppendEvents(detached, runID, []runs.Event{stopped}); err != nil {
			return fmt.Errorf("append run-stopped: %w", err)
		}
		r.publish(detached, stopped)
	}
	return nil
}

// keepLease renews an expiring run lock until the returned stop function is
// called. A failed renewal cancels ctx with ErrLeaseLost.
func (r *Runtime) keepLease(ctx context.Context, runID string, lose context.CancelCauseFunc, logger *slog.Logger) func() {
	renewer, ok := r.Locks.(LeaseRenewer)
	if !ok || renewer.RenewInterval() <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(renewer.RenewInterval())
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				held, err := renewer.Renew(context.WithoutCancel(ctx), runID)
				if err != nil || !held {
					logger.Error("run lease lost", "held", held, "error", err)
					lose(ErrLeaseLost)
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// runPass consumes one pass, appending every persistent event as soon as it
// is produced.
func (r *Runtime) runPass(runCtx, detached context.Context, runID string, st *AgentState) (int, error) {
	ctx, span := tracer.Start(runCtx, "engine.pass", trace.WithAttributes(
		attribute.String("agentrun.run_id", runID),
		attribute.String("agentrun.agent", st.AgentName),
	))
	defer span.End()
	start := time.Now()
	defer func() { r.Metrics.pass(time.Since(start)) }()

	count := 0
	for ev, err := range r.Pass(ctx, runID, st) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return count, err
		}
		if errors.Is(context.Cause(runCtx), ErrLeaseLost) {
			return count, nil
		}
		count++
		if !ev.Ephemeral() {
			if err := r.Store.AppendEvents(detached, runID, []runs.Event{ev}); err != nil {
				return count, fmt.Errorf("append %s event: %w", ev.Type, err)
			}
		}
		r.publish(detached, ev)
	}
	span.SetAttributes(attribute.Int("agentrun.events", count))
	return count, nil
}

// TriggerAsync runs Trigger in the background. Wait blocks until every
// background trigger has returned.
func (r *Runtime) TriggerAsync(ctx context.Context, runID string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.Trigger(context.WithoutCancel(ctx), runID); err != nil {
			r.logger().Error("trigger run", "run_id", runID, "error", err)
		}
	}()
}

func (r *Runtime) Wait() {
	r.wg.Wait()
}
