package agents

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flitsinc/agentrun/internal/idgen"
)

// DirRepository loads agents from <dir>/<name>.md (markdown with
// front-matter) or <dir>/<name>.yaml (a full definition).
type DirRepository struct {
	Dir string
}

func (r DirRepository) Fetch(_ context.Context, name string) (Agent, error) {
	if err := idgen.ValidateName(name); err != nil {
		return Agent{}, fmt.Errorf("%w: %v", ErrAgentNotFound, err)
	}
	md := filepath.Join(r.Dir, name+".md")
	if raw, err := os.ReadFile(md); err == nil {
		return ParseDefinition(name, raw)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Agent{}, fmt.Errorf("read agent %s: %w", name, err)
	}
	for _, ext := range []string{".yaml", ".yml"} {
		raw, err := os.ReadFile(filepath.Join(r.Dir, name+ext))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Agent{}, fmt.Errorf("read agent %s: %w", name, err)
		}
		var agent Agent
		if err := yaml.Unmarshal(raw, &agent); err != nil {
			return Agent{}, fmt.Errorf("parse agent %s: %w", name, err)
		}
		agent.Name = name
		fillToolNames(&agent)
		return agent, nil
	}
	return Agent{}, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
}

// List returns the names of all agents in the directory.
func (r DirRepository) List() ([]string, error) {
	entries, err := os.ReadDir(r.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	seen := map[string]bool{}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		switch ext {
		case ".md", ".yaml", ".yml":
		default:
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if idgen.ValidateName(name) != nil || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
