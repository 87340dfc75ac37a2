package workdir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const exampleAgent = `---
description: Answers questions about the current directory.
tools:
  ask-human:
    type: builtin
  executeCommand:
    type: builtin
---
You are a careful assistant. Inspect the workspace with shell commands before
answering, and ask the human when a request is ambiguous.
`

// Layout is the on-disk shape of a data directory.
type Layout struct {
	DataDir   string
	RunsDir   string
	AgentsDir string
}

// Ensure creates the layout's directories. A new agents directory is seeded
// with an example definition; an existing one is left untouched.
func Ensure(l Layout) error {
	for _, dir := range []string{l.DataDir, l.RunsDir} {
		if dir == "" {
			continue
		}
		if err := ensureDir(dir); err != nil {
			return err
		}
	}
	if l.AgentsDir == "" {
		return nil
	}
	info, err := os.Stat(l.AgentsDir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", l.AgentsDir)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(l.AgentsDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(l.AgentsDir, "workspace.md"), []byte(exampleAgent), 0o644)
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", dir)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
