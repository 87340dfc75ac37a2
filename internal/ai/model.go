package ai

import (
	"context"
	"iter"
	"strings"

	"github.com/flitsinc/agentrun/internal/agents"
	"github.com/flitsinc/agentrun/internal/runs"
)

// ToolSpec describes a tool to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Request struct {
	Model        string
	Instructions string
	Messages     []runs.Message
	Tools        []ToolSpec
}

// Model streams one turn. A failed turn ends with a StreamError event; the
// sequence never panics on transport errors.
type Model interface {
	Stream(ctx context.Context, req Request) iter.Seq[runs.StreamEvent]
}

type ModelConfig struct {
	Provider            string `json:"provider"`
	Model               string `json:"model"`
	KnowledgeGraphModel string `json:"knowledgeGraphModel,omitempty"`
}

// ConfigSource is consulted on every turn so model changes apply to runs
// already in flight.
type ConfigSource interface {
	ModelConfig(ctx context.Context) (ModelConfig, error)
}

type StaticConfig ModelConfig

func (s StaticConfig) ModelConfig(context.Context) (ModelConfig, error) {
	return ModelConfig(s), nil
}

// ModelFor picks the model name for a turn of agent a.
func ModelFor(cfg ModelConfig, a agents.Agent) string {
	if strings.TrimSpace(a.Model) != "" {
		return resolveModelAlias(cfg.Provider, a.Model)
	}
	if a.KnowledgeGraph && cfg.KnowledgeGraphModel != "" {
		return cfg.KnowledgeGraphModel
	}
	return cfg.Model
}

func resolveModelAlias(provider, model string) string {
	alias := strings.ToLower(strings.TrimSpace(model))
	if alias == "" {
		return model
	}
	switch provider {
	case "openai", "openai-chat":
		switch alias {
		case "fast":
			return "gpt-4.1-mini"
		case "balanced":
			return "gpt-4.1"
		case "smart":
			return "o3"
		}
	case "openrouter":
		switch alias {
		case "fast":
			return "anthropic/claude-3.5-haiku"
		case "balanced":
			return "anthropic/claude-3.5-sonnet"
		case "smart":
			return "anthropic/claude-3-opus"
		}
	}
	return model
}

// Unavailable fails every turn with Err. Used when no client could be built
// so runs still record why the model never answered.
type Unavailable struct {
	Err error
}

func (u Unavailable) Stream(context.Context, Request) iter.Seq[runs.StreamEvent] {
	return func(yield func(runs.StreamEvent) bool) {
		msg := "model unavailable"
		if u.Err != nil {
			msg = u.Err.Error()
		}
		yield(runs.StreamEvent{Type: runs.StreamError, Error: msg})
	}
}
