package agenttools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"sync"
)

var ErrUnknownBuiltin = errors.New("unknown builtin tool")

// ProcessTracker is told about child processes so a forced stop can kill
// them.
type ProcessTracker interface {
	RegisterProcess(runID string, proc *os.Process)
	UnregisterProcess(runID string, proc *os.Process)
}

// ToolContext carries run-scoped values into a tool execution.
type ToolContext struct {
	RunID     string
	Processes ProcessTracker
}

type BuiltinFunc func(ctx context.Context, args json.RawMessage, tc ToolContext) (any, error)

// Builtin is a locally implemented tool. Run is nil for builtins that only
// take part in a run protocol and are never executed directly.
type Builtin struct {
	Name        string
	Description string
	InputSchema map[string]any
	Run         BuiltinFunc
}

type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Builtin
}

func NewRegistry(builtins ...Builtin) *Registry {
	r := &Registry{builtins: map[string]Builtin{}}
	for _, b := range builtins {
		r.Register(b)
	}
	return r
}

func (r *Registry) Register(b Builtin) {
	r.mu.Lock()
	r.builtins[b.Name] = b
	r.mu.Unlock()
}

func (r *Registry) Lookup(name string) (Builtin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builtins[name]
	return b, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.builtins))
	for name := range r.builtins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AskHumanTool is answered by a person through the run's ask-human
// protocol.
func AskHumanTool() Builtin {
	return Builtin{
		Name:        "ask-human",
		Description: "Ask a human before proceeding",
		InputSchema: objectSchema(map[string]any{
			"question": stringProp("The question to ask the human"),
		}, "question"),
	}
}

// DefaultRegistry holds the builtins every deployment offers.
func DefaultRegistry(cfg CommandConfig) *Registry {
	return NewRegistry(AskHumanTool(), CommandTool(cfg), NoopTool())
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
