package agenttools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flitsinc/agentrun/internal/agents"
)

// RemoteCaller invokes a tool hosted by a remote tool server.
type RemoteCaller interface {
	CallTool(ctx context.Context, server, name string, args map[string]any) (any, error)
}

// Executor runs builtin and remote tools. Sub-agent and ask-human calls are
// driven by the run engine and never reach it.
type Executor struct {
	Builtins *Registry
	Remote   RemoteCaller
	Logger   *slog.Logger

	schemas schemaCache
}

func (e *Executor) Execute(ctx context.Context, tool agents.ToolAttachment, args json.RawMessage, tc ToolContext) (any, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch tool.Type {
	case agents.ToolBuiltin:
		if e.Builtins == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBuiltin, tool.Name)
		}
		b, ok := e.Builtins.Lookup(tool.Name)
		if !ok || b.Run == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBuiltin, tool.Name)
		}
		if err := e.schemas.validate(b.InputSchema, args); err != nil {
			return nil, err
		}
		logger.Debug("execute builtin", "run_id", tc.RunID, "tool", tool.Name)
		return b.Run(ctx, args, tc)
	case agents.ToolRemote:
		if e.Remote == nil {
			return nil, fmt.Errorf("no remote tool caller configured for %s", tool.Name)
		}
		if err := e.schemas.validate(tool.InputSchema, args); err != nil {
			return nil, err
		}
		params := map[string]any{}
		if len(args) > 0 && string(args) != "null" {
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, fmt.Errorf("decode arguments: %w", err)
			}
		}
		logger.Debug("execute remote tool", "run_id", tc.RunID, "tool", tool.Name, "server", tool.Server)
		return e.Remote.CallTool(ctx, tool.Server, tool.Name, params)
	default:
		return nil, fmt.Errorf("tool %s of type %q cannot be executed directly", tool.Name, tool.Type)
	}
}

// Failure is the payload recorded when a tool call fails.
func Failure(err error) map[string]any {
	return map[string]any{"success": false, "error": err.Error()}
}
