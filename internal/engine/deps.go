package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flitsinc/agentrun/internal/agents"
	"github.com/flitsinc/agentrun/internal/agenttools"
	"github.com/flitsinc/agentrun/internal/ai"
	"github.com/flitsinc/agentrun/internal/runs"
)

// RunRepository is the append-only run log.
type RunRepository interface {
	Create(ctx context.Context, run runs.Run) error
	Fetch(ctx context.Context, runID string) (runs.Run, error)
	AppendEvents(ctx context.Context, runID string, events []runs.Event) error
	List(ctx context.Context, cursor string, limit int) ([]runs.Summary, string, error)
}

// RunLocker admits one processor per run.
type RunLocker interface {
	Lock(ctx context.Context, runID string) (bool, error)
	Release(ctx context.Context, runID string) error
}

// LeaseRenewer is implemented by locks whose hold expires. The runtime
// renews the lease while it processes a run and stops if renewal fails.
type LeaseRenewer interface {
	Renew(ctx context.Context, runID string) (bool, error)
	RenewInterval() time.Duration
}

type AbortRegistry interface {
	CreateForRun(parent context.Context, runID string) context.Context
	Cleanup(runID string)
	Abort(runID string) bool
	ForceAbort(runID string) bool
	IsAborted(runID string) bool
	agenttools.ProcessTracker
}

type Inbox interface {
	Enqueue(ctx context.Context, runID, text string) (string, error)
	Dequeue(ctx context.Context, runID string) (*runs.QueuedMessage, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev runs.Event)
}

type IDSource interface {
	Next() string
}

type AgentLoader interface {
	Load(ctx context.Context, name string) (agents.Agent, error)
}

type ToolResolver interface {
	BuildTools(ctx context.Context, a agents.Agent) []ai.ToolSpec
}

type ToolExecutor interface {
	Execute(ctx context.Context, tool agents.ToolAttachment, args json.RawMessage, tc agenttools.ToolContext) (any, error)
}

// CommandGate decides when executeCommand calls need approval and records
// commands approved for good.
type CommandGate interface {
	Blocked(ctx context.Context, command string, session map[string]bool) (bool, error)
	Remember(ctx context.Context, command string) ([]string, error)
}
