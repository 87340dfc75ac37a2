package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCmdIncludesSubcommands(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"serve", "runs", "agents"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestNewLoggerRejectsUnknownSettings(t *testing.T) {
	var buf bytes.Buffer
	if _, err := newLogger("loud", "text", &buf); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if _, err := newLogger("info", "xml", &buf); err == nil {
		t.Fatalf("expected invalid format error")
	}
	logger, err := newLogger("debug", "json", &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("hello", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("expected json output, got %q", buf.String())
	}
}

func TestParseSubflow(t *testing.T) {
	got := parseSubflow(" call_1 / call_2/")
	if len(got) != 2 || got[0] != "call_1" || got[1] != "call_2" {
		t.Fatalf("unexpected subflow %v", got)
	}
	if parseSubflow("") != nil {
		t.Fatalf("expected empty subflow")
	}
}

func TestReadDefinition(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "reviewer.yaml")
	if err := os.WriteFile(yamlPath, []byte("description: Reviews diffs\ninstructions: Review carefully.\n"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	agent, err := readDefinition(yamlPath)
	if err != nil {
		t.Fatalf("read yaml: %v", err)
	}
	if agent.Name != "reviewer" || agent.Instructions != "Review carefully." {
		t.Fatalf("unexpected agent %+v", agent)
	}

	mdPath := filepath.Join(dir, "writer.md")
	if err := os.WriteFile(mdPath, []byte("---\ndescription: Writes\n---\nWrite well."), 0o644); err != nil {
		t.Fatalf("write md: %v", err)
	}
	agent, err = readDefinition(mdPath)
	if err != nil {
		t.Fatalf("read md: %v", err)
	}
	if agent.Name != "writer" || agent.Instructions != "Write well." {
		t.Fatalf("unexpected agent %+v", agent)
	}

	if _, err := readDefinition(filepath.Join(dir, "notes.txt")); err == nil {
		t.Fatalf("expected error for missing or unsupported file")
	}
}

func setupDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AGENTRUN_DATA_DIR", dir)
	t.Setenv("AGENTRUN_LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("AGENTRUN_MCP_SERVERS", "")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRunsCommandsWithoutModel(t *testing.T) {
	dir := setupDataDir(t)

	out, err := execute(t, "runs", "new", "copilot", "hello")
	if err != nil {
		t.Fatalf("runs new: %v", err)
	}
	if !strings.Contains(out, `"type":"start"`) {
		t.Fatalf("expected start event, got %q", out)
	}
	if !strings.Contains(out, "llm api key is required") {
		t.Fatalf("expected model error event, got %q", out)
	}

	out, err = execute(t, "runs", "list")
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	if !strings.Contains(out, "copilot") || !strings.Contains(out, "hello") {
		t.Fatalf("expected listed run, got %q", out)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "runs"))
	if err != nil {
		t.Fatalf("read runs dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected mirrored run log, got %d files", len(entries))
	}
}

func TestRunsNewRejectsUnknownAgent(t *testing.T) {
	setupDataDir(t)
	if _, err := execute(t, "runs", "new", "nobody"); err == nil {
		t.Fatalf("expected unknown agent error")
	}
}

func TestAgentsImportAndList(t *testing.T) {
	setupDataDir(t)
	src := filepath.Join(t.TempDir(), "reviewer.md")
	if err := os.WriteFile(src, []byte("Review the diff."), 0o644); err != nil {
		t.Fatalf("write agent: %v", err)
	}
	if _, err := execute(t, "agents", "import", src); err != nil {
		t.Fatalf("import: %v", err)
	}
	out, err := execute(t, "agents", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "reviewer\tdb") || !strings.Contains(out, "workspace\tfile") {
		t.Fatalf("unexpected agent list %q", out)
	}
}
