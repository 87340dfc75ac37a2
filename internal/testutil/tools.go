package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flitsinc/agentrun/internal/agents"
	"github.com/flitsinc/agentrun/internal/agenttools"
)

// RecordingExecutor records executions and answers from Results, keyed by
// tool name.
type RecordingExecutor struct {
	mu      sync.Mutex
	calls   []ExecutedCall
	Results map[string]any
	Errors  map[string]error
}

type ExecutedCall struct {
	Tool agents.ToolAttachment
	Args json.RawMessage
	Run  string
}

func (e *RecordingExecutor) Execute(_ context.Context, tool agents.ToolAttachment, args json.RawMessage, tc agenttools.ToolContext) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, ExecutedCall{Tool: tool, Args: args, Run: tc.RunID})
	if err, ok := e.Errors[tool.Name]; ok {
		return nil, err
	}
	return e.Results[tool.Name], nil
}

func (e *RecordingExecutor) Calls() []ExecutedCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ExecutedCall(nil), e.calls...)
}
