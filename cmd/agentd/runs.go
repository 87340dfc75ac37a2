package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/flitsinc/agentrun/internal/config"
	"github.com/flitsinc/agentrun/internal/runs"
)

// eventPrinter writes published events as JSON lines.
type eventPrinter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	stream bool
}

func newEventPrinter(w io.Writer, stream bool) *eventPrinter {
	return &eventPrinter{enc: json.NewEncoder(w), stream: stream}
}

func (p *eventPrinter) Publish(_ context.Context, ev runs.Event) {
	if ev.Type == runs.EventLLMStream && !p.stream {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(ev)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseSubflow(v string) []string {
	var out []string
	for _, part := range strings.Split(v, "/") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func buildRunsCmd(cfg config.Config) *cobra.Command {
	var stream bool
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Create runs and answer their requests in-process",
		Long: `Create runs and answer their requests in-process.

Commands that feed a run process it until it settles and print every event
as a JSON line. Requests left pending (permissions, questions) are answered
with later commands against the same data directory.`,
	}
	cmd.PersistentFlags().BoolVar(&stream, "stream", false, "Also print model stream events")

	// withApp runs fn against a foreground app whose events go to stdout.
	withApp := func(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
		a, err := newApp(cfg, nil, false)
		if err != nil {
			return err
		}
		defer a.Close()
		a.bus.Mirror(newEventPrinter(cmd.OutOrStdout(), stream))
		return fn(commandContext(cmd), a)
	}

	newCmd := &cobra.Command{
		Use:   "new AGENT [MESSAGE]",
		Short: "Create a run, optionally sending a first message",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				run, err := a.service.CreateRun(ctx, args[0])
				if err != nil {
					return err
				}
				if len(args) == 2 {
					_, err = a.service.SendMessage(ctx, run.ID, args[1])
				}
				return err
			})
		},
	}

	sendCmd := &cobra.Command{
		Use:   "send RUN MESSAGE",
		Short: "Send a user message to a run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				_, err := a.service.SendMessage(ctx, args[0], args[1])
				return err
			})
		},
	}

	permission := func(use, short, response string) *cobra.Command {
		var scope, subflow string
		c := &cobra.Command{
			Use:   use + " RUN TOOL_CALL_ID",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(ctx context.Context, a *app) error {
					return a.service.AuthorizePermission(ctx, args[0], parseSubflow(subflow), args[1], response, scope)
				})
			},
		}
		c.Flags().StringVar(&subflow, "subflow", "", "Subflow path of the request, e.g. call_1/call_2")
		if response == runs.ResponseApprove {
			c.Flags().StringVar(&scope, "scope", runs.ScopeOnce, "Approval scope (once, session, always)")
		}
		return c
	}

	var answerSubflow string
	answerCmd := &cobra.Command{
		Use:   "answer RUN TOOL_CALL_ID REPLY",
		Short: "Reply to a question the agent asked",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return a.service.ReplyToAskHuman(ctx, args[0], parseSubflow(answerSubflow), args[1], args[2])
			})
		},
	}
	answerCmd.Flags().StringVar(&answerSubflow, "subflow", "", "Subflow path of the question")

	var force bool
	stopCmd := &cobra.Command{
		Use:   "stop RUN",
		Short: "Record a stop for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return a.service.Stop(ctx, args[0], force)
			})
		},
	}
	stopCmd.Flags().BoolVar(&force, "force", false, "Kill running commands")

	var showState bool
	showCmd := &cobra.Command{
		Use:   "show RUN",
		Short: "Print a run's log, or its reconstructed state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if showState {
					snap, err := a.service.Snapshot(ctx, args[0])
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), snap)
				}
				run, err := a.service.FetchRun(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), run)
			})
		},
	}
	showCmd.Flags().BoolVar(&showState, "state", false, "Print the reconstructed state instead of the log")

	var (
		cursor string
		limit  int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				items, next, err := a.service.ListRuns(ctx, cursor, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, s := range items {
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", s.ID, s.AgentID, s.CreatedAt.Format("2006-01-02 15:04:05"), s.Title)
				}
				if next != "" {
					fmt.Fprintf(out, "next cursor: %s\n", next)
				}
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&cursor, "cursor", "", "Continue after this cursor")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")

	cmd.AddCommand(
		newCmd,
		sendCmd,
		permission("approve", "Approve a pending permission request", runs.ResponseApprove),
		permission("deny", "Deny a pending permission request", runs.ResponseDeny),
		answerCmd,
		stopCmd,
		showCmd,
		listCmd,
	)
	return cmd
}
