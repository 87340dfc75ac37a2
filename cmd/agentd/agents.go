package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flitsinc/agentrun/internal/agents"
	"github.com/flitsinc/agentrun/internal/config"
	"github.com/flitsinc/agentrun/internal/idgen"
)

func buildAgentsCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List and import agent definitions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List agents from the agents directory and the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, nil, false)
			if err != nil {
				return err
			}
			defer a.Close()
			files, err := a.dir.List()
			if err != nil {
				return err
			}
			stored, err := a.agents.List(commandContext(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range files {
				fmt.Fprintf(out, "%s\tfile\n", name)
			}
			for _, name := range stored {
				fmt.Fprintf(out, "%s\tdb\n", name)
			}
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Store agent definitions (.md with front-matter, or .yaml) in the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, nil, false)
			if err != nil {
				return err
			}
			defer a.Close()
			for _, path := range args {
				agent, err := readDefinition(path)
				if err != nil {
					return err
				}
				if err := a.agents.Put(commandContext(cmd), agent); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", agent.Name)
			}
			return nil
		},
	}

	cmd.AddCommand(listCmd, importCmd)
	return cmd
}

// readDefinition names the agent after the file.
func readDefinition(path string) (agents.Agent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return agents.Agent{}, err
	}
	ext := filepath.Ext(path)
	name := strings.TrimSuffix(filepath.Base(path), ext)
	if err := idgen.ValidateName(name); err != nil {
		return agents.Agent{}, fmt.Errorf("agent file %s: %w", path, err)
	}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var agent agents.Agent
		if err := yaml.Unmarshal(raw, &agent); err != nil {
			return agents.Agent{}, fmt.Errorf("parse %s: %w", path, err)
		}
		agent.Name = name
		return agent, nil
	case ".md":
		return agents.ParseDefinition(name, raw)
	default:
		return agents.Agent{}, fmt.Errorf("unsupported agent file %s", path)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
