package agenttools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/flitsinc/agentrun/internal/agents"
)

type fakeRemote struct {
	server, name string
	args         map[string]any
	result       any
	err          error
}

func (f *fakeRemote) CallTool(_ context.Context, server, name string, args map[string]any) (any, error) {
	f.server, f.name, f.args = server, name, args
	return f.result, f.err
}

func TestExecutorRunsBuiltin(t *testing.T) {
	exec := &Executor{Builtins: NewRegistry(NoopTool())}
	out, err := exec.Execute(context.Background(), agents.ToolAttachment{Type: agents.ToolBuiltin, Name: "noop"}, json.RawMessage(`{"comment":"waiting"}`), ToolContext{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	res, ok := out.(map[string]any)
	if !ok || res["comment"] != "waiting" {
		t.Fatalf("unexpected result %#v", out)
	}
}

func TestExecutorValidatesArguments(t *testing.T) {
	exec := &Executor{Builtins: DefaultRegistry(CommandConfig{WorkDir: t.TempDir()})}
	_, err := exec.Execute(context.Background(), agents.ToolAttachment{Type: agents.ToolBuiltin, Name: "executeCommand"}, json.RawMessage(`{"cwd":"x"}`), ToolContext{})
	if err == nil || !strings.Contains(err.Error(), "invalid arguments") {
		t.Fatalf("expected schema validation error, got %v", err)
	}
	_, err = exec.Execute(context.Background(), agents.ToolAttachment{Type: agents.ToolBuiltin, Name: "executeCommand"}, json.RawMessage(`{not json`), ToolContext{})
	if err == nil {
		t.Fatalf("expected error for malformed arguments")
	}
}

func TestExecutorRejectsProtocolTools(t *testing.T) {
	exec := &Executor{Builtins: DefaultRegistry(CommandConfig{})}
	_, err := exec.Execute(context.Background(), agents.ToolAttachment{Type: agents.ToolBuiltin, Name: "ask-human"}, json.RawMessage(`{"question":"?"}`), ToolContext{})
	if !errors.Is(err, ErrUnknownBuiltin) {
		t.Fatalf("expected ErrUnknownBuiltin for ask-human, got %v", err)
	}
	_, err = exec.Execute(context.Background(), agents.ToolAttachment{Type: agents.ToolAgent, Name: "helper"}, nil, ToolContext{})
	if err == nil {
		t.Fatalf("expected error for sub-agent attachment")
	}
	_, err = exec.Execute(context.Background(), agents.ToolAttachment{Type: agents.ToolBuiltin, Name: "missing"}, nil, ToolContext{})
	if !errors.Is(err, ErrUnknownBuiltin) {
		t.Fatalf("expected ErrUnknownBuiltin, got %v", err)
	}
}

func TestExecutorCallsRemote(t *testing.T) {
	remote := &fakeRemote{result: map[string]any{"hits": 2}}
	exec := &Executor{Remote: remote}
	tool := agents.ToolAttachment{
		Type:        agents.ToolRemote,
		Name:        "search",
		Server:      "docs",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{"q": map[string]any{"type": "string"}}, "required": []any{"q"}},
	}
	out, err := exec.Execute(context.Background(), tool, json.RawMessage(`{"q":"go"}`), ToolContext{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if remote.server != "docs" || remote.name != "search" || remote.args["q"] != "go" {
		t.Fatalf("unexpected remote call %+v", remote)
	}
	if res, _ := out.(map[string]any); res["hits"] != 2 {
		t.Fatalf("unexpected result %#v", out)
	}
	if _, err := exec.Execute(context.Background(), tool, json.RawMessage(`{"q":1}`), ToolContext{}); err == nil {
		t.Fatalf("expected validation error for wrong type")
	}
}

func TestFailurePayload(t *testing.T) {
	f := Failure(errors.New("boom"))
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"error":"boom","success":false}` {
		t.Fatalf("unexpected payload %s", data)
	}
}
