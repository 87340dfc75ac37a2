package agents

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontMatterDelimiter = "---"

// ParseDefinition builds an agent from markdown instructions with optional
// YAML front-matter. Front-matter may set any field except name and
// instructions; the markdown body becomes the instructions.
func ParseDefinition(name string, raw []byte) (Agent, error) {
	agent := Agent{Name: name, Instructions: string(raw)}
	front, body, ok := splitFrontMatter(raw)
	if !ok {
		return agent, nil
	}
	var meta Agent
	if err := yaml.Unmarshal(front, &meta); err != nil {
		return Agent{}, fmt.Errorf("parse front-matter for %s: %w", name, err)
	}
	meta.Name = name
	meta.Instructions = strings.TrimSpace(string(body))
	fillToolNames(&meta)
	return meta, nil
}

func splitFrontMatter(raw []byte) ([]byte, []byte, bool) {
	if !bytes.HasPrefix(raw, []byte(frontMatterDelimiter)) {
		return nil, nil, false
	}
	end := bytes.Index(raw[len(frontMatterDelimiter):], []byte("\n"+frontMatterDelimiter))
	if end == -1 {
		return nil, nil, false
	}
	end += len(frontMatterDelimiter)
	front := bytes.TrimSpace(raw[len(frontMatterDelimiter):end])
	body := raw[end+len("\n"+frontMatterDelimiter):]
	return front, body, true
}

// fillToolNames lets definitions omit a tool's name when it matches its key.
func fillToolNames(a *Agent) {
	for key, t := range a.Tools {
		if t.Name == "" {
			t.Name = key
			a.Tools[key] = t
		}
	}
}
