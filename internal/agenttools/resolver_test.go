package agenttools

import (
	"context"
	"testing"

	"github.com/flitsinc/agentrun/internal/agents"
)

type mapLoader map[string]agents.Agent

func (m mapLoader) Load(_ context.Context, name string) (agents.Agent, error) {
	a, ok := m[name]
	if !ok {
		return agents.Agent{}, agents.ErrAgentNotFound
	}
	return a, nil
}

func TestBuildTools(t *testing.T) {
	r := &Resolver{
		Builtins: DefaultRegistry(CommandConfig{}),
		Agents:   mapLoader{"researcher": {Name: "researcher", Description: "Finds things"}},
	}
	agent := agents.Agent{
		Name: "copilot",
		Tools: map[string]agents.ToolAttachment{
			"search":    {Type: agents.ToolRemote, Name: "search", Description: "Search", InputSchema: map[string]any{"type": "object"}},
			"research":  {Type: agents.ToolAgent, Name: "researcher"},
			"ask":       {Type: agents.ToolBuiltin, Name: "ask-human"},
			"teleport":  {Type: agents.ToolBuiltin, Name: "teleport"},
			"ghost":     {Type: agents.ToolAgent, Name: "ghost"},
			"runScript": {Type: agents.ToolBuiltin, Name: "executeCommand"},
		},
	}
	specs := r.BuildTools(context.Background(), agent)

	var names []string
	for _, s := range specs {
		names = append(names, s.Name)
	}
	want := []string{"ask", "research", "runScript", "search"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}

	research := specs[1]
	if research.Description != "Finds things" {
		t.Fatalf("expected sub-agent description, got %q", research.Description)
	}
	props, _ := research.Parameters["properties"].(map[string]any)
	if _, ok := props["message"]; !ok {
		t.Fatalf("expected message parameter, got %v", research.Parameters)
	}
	askProps, _ := specs[0].Parameters["properties"].(map[string]any)
	if _, ok := askProps["question"]; !ok {
		t.Fatalf("expected question parameter, got %v", specs[0].Parameters)
	}
}
