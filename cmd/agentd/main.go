// Command agentd runs agent runs: either as an HTTP daemon or one command at
// a time against the local data directory.
//
//	agentd serve
//	agentd runs new copilot "list the files here"
//	agentd runs approve RUN CALL --scope session
//	agentd agents import ./reviewer.md
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flitsinc/agentrun/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	flags := &globalFlags{logLevel: cfg.LogLevel, logFormat: cfg.LogFormat}

	root := &cobra.Command{
		Use:           "agentd",
		Short:         "Run and inspect agent runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(flags.logLevel, flags.logFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", flags.logLevel, "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", flags.logFormat, "Log format (text, json)")

	root.AddCommand(
		buildServeCmd(cfg),
		buildRunsCmd(cfg),
		buildAgentsCmd(cfg),
	)
	return root
}

func newLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
