package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flitsinc/agentrun/internal/agents"
	"github.com/flitsinc/agentrun/internal/agenttools"
	"github.com/flitsinc/agentrun/internal/ai"
	"github.com/flitsinc/agentrun/internal/prompt"
	"github.com/flitsinc/agentrun/internal/runs"
)

const deniedResult = "Unable to execute this tool: Permission was denied."

// Pass produces the events of one execution pass over st: resolve pending
// tool calls, then run at most one model turn. Produced events are applied
// to st as they are yielded. Cancellation of ctx ends the sequence early
// without an error.
func (r *Runtime) Pass(ctx context.Context, runID string, st *AgentState) iter.Seq2[runs.Event, error] {
	return r.pass(ctx, runID, st, true)
}

func (r *Runtime) pass(ctx context.Context, runID string, st *AgentState, root bool) iter.Seq2[runs.Event, error] {
	return func(yield func(runs.Event, error) bool) {
		logger := r.logger().With("run_id", runID, "agent", st.AgentName)
		emit := func(ev runs.Event) bool {
			ev.RunID = runID
			if ev.TS.IsZero() {
				ev.TS = r.now()
			}
			st.Ingest(ev)
			return yield(ev, nil)
		}

		if st.AgentName == "" {
			yield(runs.Event{}, errors.New("run has no agent"))
			return
		}
		agent, err := r.Agents.Load(ctx, st.AgentName)
		if err != nil {
			yield(runs.Event{}, fmt.Errorf("load agent %s: %w", st.AgentName, err))
			return
		}

		for _, call := range st.PendingCalls() {
			if ctx.Err() != nil {
				return
			}
			id := call.ToolCallID
			tool, attached := agent.Tool(call.ToolName)
			protocol := tool.Protocol()
			if attached && protocol == agents.ProtocolAskHuman {
				continue
			}
			if st.Denied[id] {
				r.Metrics.toolCall(call.ToolName, "denied")
				if !emit(toolMessage(call, deniedResult)) {
					return
				}
				continue
			}
			if _, waiting := st.PendingPermissions[id]; waiting {
				continue
			}

			if attached && protocol == agents.ProtocolSubAgent {
				child, ok := st.Subflows[id]
				if !ok {
					continue
				}
				if !st.Invoked[id] && !emit(invocation(call)) {
					return
				}
				for ev, err := range r.pass(ctx, runID, child, false) {
					if err != nil {
						yield(runs.Event{}, fmt.Errorf("subflow %s: %w", id, err))
						return
					}
					if !yield(ev.Nested(id), nil) {
						return
					}
				}
				if !child.Settled() {
					continue
				}
				if !r.emitResult(emit, call, child.FinalResponse()) {
					return
				}
				r.Metrics.toolCall(call.ToolName, "success")
				continue
			}

			if !st.Invoked[id] && !emit(invocation(call)) {
				return
			}
			result := r.execute(ctx, runID, agent, call, tool, attached)
			if !r.emitResult(emit, call, result) {
				return
			}
		}

		if st.Suspended() {
			logger.Debug("awaiting human response")
			return
		}
		if len(st.PendingCalls()) > 0 {
			// a subflow is still working or the run was cancelled mid-way
			return
		}

		if root && r.Inbox != nil {
			for {
				if ctx.Err() != nil {
					return
				}
				msg, err := r.Inbox.Dequeue(context.WithoutCancel(ctx), runID)
				if err != nil {
					yield(runs.Event{}, fmt.Errorf("dequeue message: %w", err))
					return
				}
				if msg == nil {
					break
				}
				// a message queued while the model was answering is older
				// than the reply; it is renumbered to keep ids increasing
				id := msg.MessageID
				if id <= st.MaxMessageID() {
					id = r.IDs.Next()
				}
				user := runs.UserMessage(msg.Text)
				if !emit(runs.Event{Type: runs.EventMessage, MessageID: id, Message: &user}) {
					return
				}
			}
		}

		if len(st.Messages) == 0 || st.Terminal() {
			return
		}
		if ctx.Err() != nil {
			return
		}

		msg, ok := r.modelTurn(ctx, agent, st, emit, yield)
		if !ok {
			return
		}

		for _, call := range msg.Content.ToolCalls() {
			tool, attached := agent.Tool(call.ToolName)
			if !attached {
				continue
			}
			switch tool.Protocol() {
			case agents.ProtocolAskHuman:
				if !emit(runs.Event{Type: runs.EventAskHumanRequest, ToolCallID: call.ToolCallID, Query: call.Argument("question")}) {
					return
				}
			case agents.ProtocolCommand:
				if !r.needsPermission(ctx, call, st) {
					continue
				}
				gated := call
				if !emit(runs.Event{Type: runs.EventPermissionRequest, ToolCall: &gated}) {
					return
				}
			case agents.ProtocolSubAgent:
				if !emit(runs.Event{Type: runs.EventSpawnSubflow, AgentName: tool.Name, ToolCallID: call.ToolCallID}) {
					return
				}
				first := runs.UserMessage(call.Argument("message"))
				if !emit(runs.Event{
					Type:      runs.EventMessage,
					Subflow:   []string{call.ToolCallID},
					MessageID: r.IDs.Next(),
					Message:   &first,
				}) {
					return
				}
			}
		}
	}
}

// modelTurn streams one model response. It reports false when the pass
// must stop: the consumer quit, the run was cancelled, or the stream
// failed.
func (r *Runtime) modelTurn(ctx context.Context, agent agents.Agent, st *AgentState, emit func(runs.Event) bool, yield func(runs.Event, error) bool) (runs.Message, bool) {
	cfg, err := r.Models.ModelConfig(ctx)
	if err != nil {
		yield(runs.Event{}, fmt.Errorf("load model config: %w", err))
		return runs.Message{}, false
	}
	req := ai.Request{
		Model:        ai.ModelFor(cfg, agent),
		Instructions: prompt.Instructions(agent, r.now()),
		Messages:     st.Messages,
		Tools:        r.Tools.BuildTools(ctx, agent),
	}
	ctx, span := tracer.Start(ctx, "engine.model_turn", trace.WithAttributes(
		attribute.String("agentrun.agent", agent.Name),
		attribute.String("agentrun.model", req.Model),
	))
	defer span.End()
	r.logger().Debug("model turn", "agent", agent.Name, "model", req.Model, "tools", len(req.Tools))

	var b MessageBuilder
	streamErr := ""
	for sev := range r.Model.Stream(ctx, req) {
		if ctx.Err() != nil {
			r.Metrics.modelTurn("cancelled")
			return runs.Message{}, false
		}
		b.Ingest(sev)
		stream := sev
		if !emit(runs.Event{Type: runs.EventLLMStream, Stream: &stream}) {
			return runs.Message{}, false
		}
		if sev.Type == runs.StreamError {
			streamErr = sev.Error
			if streamErr == "" {
				streamErr = "model stream error"
			}
			if !emit(runs.Event{Type: runs.EventError, Error: streamErr}) {
				return runs.Message{}, false
			}
			break
		}
	}
	if ctx.Err() != nil {
		r.Metrics.modelTurn("cancelled")
		return runs.Message{}, false
	}

	msg := b.Message()
	if !emit(runs.Event{Type: runs.EventMessage, MessageID: r.IDs.Next(), Message: &msg}) {
		return runs.Message{}, false
	}
	if streamErr != "" {
		r.Metrics.modelTurn("error")
		span.SetAttributes(attribute.String("agentrun.stream_error", streamErr))
		return msg, false
	}
	r.Metrics.modelTurn("ok")
	return msg, true
}

func (r *Runtime) needsPermission(ctx context.Context, call runs.Part, st *AgentState) bool {
	command := call.Argument("command")
	if r.Commands == nil {
		return agenttools.IsBlocked(command, nil, st.SessionCommands)
	}
	blocked, err := r.Commands.Blocked(ctx, command, st.SessionCommands)
	if err != nil {
		r.logger().Warn("command allowlist unavailable, asking for permission", "tool_call_id", call.ToolCallID, "error", err)
		return true
	}
	return blocked
}

// execute runs a non-protocol tool. Failures become the call's result so the
// model can see them.
func (r *Runtime) execute(ctx context.Context, runID string, agent agents.Agent, call runs.Part, tool agents.ToolAttachment, attached bool) any {
	logger := r.logger().With("run_id", runID, "agent", agent.Name, "tool_call_id", call.ToolCallID, "tool", call.ToolName)
	if !attached {
		r.Metrics.toolCall(call.ToolName, "failure")
		return agenttools.Failure(fmt.Errorf("tool %s is not available to agent %s", call.ToolName, agent.Name))
	}
	ctx, span := tracer.Start(ctx, "engine.tool", trace.WithAttributes(
		attribute.String("agentrun.tool", call.ToolName),
		attribute.String("agentrun.tool_call_id", call.ToolCallID),
	))
	defer span.End()

	var tracker agenttools.ProcessTracker
	if r.Aborts != nil {
		tracker = r.Aborts
	}
	out, err := r.Executor.Execute(ctx, tool, call.Arguments, agenttools.ToolContext{RunID: runID, Processes: tracker})
	if err != nil {
		logger.Warn("tool failed", "error", err)
		span.RecordError(err)
		r.Metrics.toolCall(call.ToolName, "failure")
		return agenttools.Failure(err)
	}
	r.Metrics.toolCall(call.ToolName, "success")
	return out
}

func (r *Runtime) emitResult(emit func(runs.Event) bool, call runs.Part, result any) bool {
	raw, err := ai.EncodeResult(result)
	if err != nil {
		raw, _ = ai.EncodeResult(agenttools.Failure(fmt.Errorf("encode result: %w", err)))
	}
	if !emit(runs.Event{Type: runs.EventToolResult, ToolCallID: call.ToolCallID, ToolName: call.ToolName, Result: raw}) {
		return false
	}
	return emit(toolMessage(call, string(raw)))
}

func invocation(call runs.Part) runs.Event {
	input := "{}"
	if len(call.Arguments) > 0 && json.Valid(call.Arguments) {
		input = string(call.Arguments)
	}
	return runs.Event{Type: runs.EventToolInvocation, ToolCallID: call.ToolCallID, ToolName: call.ToolName, Input: input}
}

func toolMessage(call runs.Part, body string) runs.Event {
	msg := runs.ToolMessage(call.ToolCallID, call.ToolName, body)
	return runs.Event{Type: runs.EventMessage, Message: &msg}
}
