package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sync"

	"github.com/flitsinc/agentrun/internal/ai"
	"github.com/flitsinc/agentrun/internal/runs"
)

// ScriptedModel is a deterministic model for runtime tests. Each Stream call
// replays the next scripted turn.
type ScriptedModel struct {
	mu       sync.Mutex
	index    int
	turns    [][]runs.StreamEvent
	requests []ai.Request

	// BeforeEvent, when set, runs before each event is yielded.
	BeforeEvent func(turn, event int)
}

func NewScriptedModel(turns ...[]runs.StreamEvent) *ScriptedModel {
	return &ScriptedModel{turns: turns}
}

var _ ai.Model = (*ScriptedModel)(nil)

func (m *ScriptedModel) Stream(_ context.Context, req ai.Request) iter.Seq[runs.StreamEvent] {
	m.mu.Lock()
	turn := m.index
	m.index++
	m.requests = append(m.requests, req)
	var events []runs.StreamEvent
	if turn < len(m.turns) {
		events = m.turns[turn]
	}
	hook := m.BeforeEvent
	m.mu.Unlock()

	return func(yield func(runs.StreamEvent) bool) {
		if turn >= len(m.turns) {
			yield(runs.StreamEvent{Type: runs.StreamError, Error: fmt.Sprintf("script exhausted at turn %d", turn+1)})
			return
		}
		for i, ev := range events {
			if hook != nil {
				hook(turn, i)
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// Requests returns the requests seen so far.
func (m *ScriptedModel) Requests() []ai.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ai.Request(nil), m.requests...)
}

// TextTurn streams a plain text reply.
func TextTurn(text string) []runs.StreamEvent {
	return []runs.StreamEvent{
		{Type: runs.StreamTextStart},
		{Type: runs.StreamTextDelta, Delta: text},
		{Type: runs.StreamTextEnd},
		{Type: runs.StreamFinishStep, FinishReason: "stop"},
	}
}

// ToolTurn streams tool calls; args are encoded as JSON.
func ToolTurn(calls ...ToolCall) []runs.StreamEvent {
	var out []runs.StreamEvent
	for _, c := range calls {
		input, err := json.Marshal(c.Args)
		if err != nil {
			panic(err)
		}
		out = append(out, runs.StreamEvent{Type: runs.StreamToolCall, ToolCallID: c.ID, ToolName: c.Name, Input: input})
	}
	return append(out, runs.StreamEvent{Type: runs.StreamFinishStep, FinishReason: "tool_calls"})
}

type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}
