package workdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/flitsinc/agentrun/internal/agents"
)

func TestEnsureSeedsAgentsOnce(t *testing.T) {
	root := t.TempDir()
	l := Layout{
		DataDir:   filepath.Join(root, "data"),
		RunsDir:   filepath.Join(root, "data", "runs"),
		AgentsDir: filepath.Join(root, "data", "agents"),
	}
	if err := Ensure(l); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	agent, err := agents.DirRepository{Dir: l.AgentsDir}.Fetch(context.Background(), "workspace")
	if err != nil {
		t.Fatalf("fetch seeded agent: %v", err)
	}
	if _, ok := agent.Tool(agents.BuiltinExecuteCommand); !ok {
		t.Fatalf("expected seeded agent to carry executeCommand, got %+v", agent.Tools)
	}

	custom := filepath.Join(l.AgentsDir, "workspace.md")
	if err := os.WriteFile(custom, []byte("Just answer."), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Ensure(l); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	data, err := os.ReadFile(custom)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "Just answer." {
		t.Fatalf("existing agents dir must be left alone")
	}
}

func TestEnsureRejectsFiles(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Ensure(Layout{DataDir: file}); err == nil {
		t.Fatalf("expected error for a file in place of the data dir")
	}
}
