package agenttools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/flitsinc/agentrun/internal/agents"
	"github.com/flitsinc/agentrun/internal/ai"
)

type AgentLoader interface {
	Load(ctx context.Context, name string) (agents.Agent, error)
}

// Resolver maps an agent's tool attachments to the specs offered to the
// model.
type Resolver struct {
	Builtins *Registry
	Agents   AgentLoader
	Logger   *slog.Logger
}

func (r *Resolver) Resolve(ctx context.Context, name string, tool agents.ToolAttachment) (ai.ToolSpec, bool, error) {
	switch tool.Type {
	case agents.ToolRemote:
		return ai.ToolSpec{Name: name, Description: tool.Description, Parameters: tool.InputSchema}, true, nil
	case agents.ToolAgent:
		if r.Agents == nil {
			return ai.ToolSpec{}, false, fmt.Errorf("no agent loader for sub-agent %s", tool.Name)
		}
		sub, err := r.Agents.Load(ctx, tool.Name)
		if err != nil {
			return ai.ToolSpec{}, false, fmt.Errorf("load sub-agent %s: %w", tool.Name, err)
		}
		return ai.ToolSpec{
			Name:        name,
			Description: sub.Description,
			Parameters: objectSchema(map[string]any{
				"message": stringProp("The message to send to the agent"),
			}, "message"),
		}, true, nil
	case agents.ToolBuiltin:
		if r.Builtins == nil {
			return ai.ToolSpec{}, false, nil
		}
		b, ok := r.Builtins.Lookup(tool.Name)
		if !ok {
			return ai.ToolSpec{}, false, nil
		}
		return ai.ToolSpec{Name: name, Description: b.Description, Parameters: b.InputSchema}, true, nil
	default:
		return ai.ToolSpec{}, false, fmt.Errorf("unknown tool type %q", tool.Type)
	}
}

// BuildTools resolves every attachment of a. Attachments that fail to
// resolve are logged and left out so one broken tool does not stop the run.
func (r *Resolver) BuildTools(ctx context.Context, a agents.Agent) []ai.ToolSpec {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	specs := make([]ai.ToolSpec, 0, len(a.Tools))
	for name, tool := range a.Tools {
		spec, ok, err := r.Resolve(ctx, name, tool)
		if err != nil {
			logger.Warn("skipping tool", "agent", a.Name, "tool", name, "error", err)
			continue
		}
		if !ok {
			logger.Debug("builtin unavailable", "agent", a.Name, "tool", name)
			continue
		}
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}
