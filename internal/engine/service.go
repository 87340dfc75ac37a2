package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flitsinc/agentrun/internal/idgen"
	"github.com/flitsinc/agentrun/internal/runs"
)

var (
	ErrNoPendingRequest = errors.New("no pending request for tool call")
	ErrInvalidResponse  = errors.New("invalid permission response")
)

// Service is the external surface of the runtime: creating runs, feeding
// them input and answering their requests. Each input triggers the run.
type Service struct {
	Runtime *Runtime
	// Background triggers return before the run is processed.
	Background bool
	// ForceClose releases remote tool connections on a forced stop.
	ForceClose func() error
}

func (s *Service) trigger(ctx context.Context, runID string) error {
	if s.Background {
		s.Runtime.TriggerAsync(ctx, runID)
		return nil
	}
	return s.Runtime.Trigger(ctx, runID)
}

// CreateRun starts an empty run of agentID.
func (s *Service) CreateRun(ctx context.Context, agentID string) (runs.Run, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return runs.Run{}, errors.New("agent id is required")
	}
	if _, err := s.Runtime.Agents.Load(ctx, agentID); err != nil {
		return runs.Run{}, fmt.Errorf("load agent %s: %w", agentID, err)
	}
	id := idgen.New()
	now := s.Runtime.now()
	run := runs.Run{
		ID:        id,
		AgentID:   agentID,
		CreatedAt: now,
		Log: []runs.Event{{
			RunID:     id,
			Type:      runs.EventStart,
			AgentName: agentID,
			TS:        now,
		}},
	}
	if err := s.Runtime.Store.Create(ctx, run); err != nil {
		return runs.Run{}, fmt.Errorf("create run: %w", err)
	}
	s.Runtime.publish(ctx, run.Log[0])
	return run, nil
}

// SendMessage queues a user message and triggers the run. It returns the
// message id.
func (s *Service) SendMessage(ctx context.Context, runID, text string) (string, error) {
	if _, err := s.Runtime.Store.Fetch(ctx, runID); err != nil {
		return "", err
	}
	id, err := s.Runtime.Inbox.Enqueue(ctx, runID, text)
	if err != nil {
		return "", fmt.Errorf("enqueue message: %w", err)
	}
	return id, s.trigger(ctx, runID)
}

// AuthorizePermission answers a pending permission request. Approving with
// scope "always" also adds the command's programs to the allowlist.
func (s *Service) AuthorizePermission(ctx context.Context, runID string, subflow []string, toolCallID, response, scope string) error {
	if response != runs.ResponseApprove && response != runs.ResponseDeny {
		return fmt.Errorf("%w: response %q", ErrInvalidResponse, response)
	}
	switch scope {
	case "":
		scope = runs.ScopeOnce
	case runs.ScopeOnce, runs.ScopeSession, runs.ScopeAlways:
	default:
		return fmt.Errorf("%w: scope %q", ErrInvalidResponse, scope)
	}
	st, err := s.stateAt(ctx, runID, subflow)
	if err != nil {
		return err
	}
	req, ok := st.PendingPermissions[toolCallID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPendingRequest, toolCallID)
	}
	ev := runs.Event{
		RunID:      runID,
		Type:       runs.EventPermissionResponse,
		Subflow:    subflow,
		ToolCallID: toolCallID,
		Response:   response,
		Scope:      scope,
		TS:         s.Runtime.now(),
	}
	if err := s.record(ctx, runID, ev); err != nil {
		return err
	}
	// the recorded response stands even if remembering fails
	var rememberErr error
	if response == runs.ResponseApprove && scope == runs.ScopeAlways && s.Runtime.Commands != nil && req.ToolCall != nil {
		names, err := s.Runtime.Commands.Remember(ctx, req.ToolCall.Argument("command"))
		if err != nil {
			rememberErr = fmt.Errorf("remember approved commands: %w", err)
			s.Runtime.logger().Error("remember approved commands", "run_id", runID, "error", err)
		} else {
			s.Runtime.logger().Info("commands allowed permanently", "run_id", runID, "commands", names)
		}
	}
	return errors.Join(rememberErr, s.trigger(ctx, runID))
}

// ReplyToAskHuman answers a pending ask-human request.
func (s *Service) ReplyToAskHuman(ctx context.Context, runID string, subflow []string, toolCallID, reply string) error {
	st, err := s.stateAt(ctx, runID, subflow)
	if err != nil {
		return err
	}
	if _, ok := st.PendingAsks[toolCallID]; !ok {
		return fmt.Errorf("%w: %s", ErrNoPendingRequest, toolCallID)
	}
	ev := runs.Event{
		RunID:      runID,
		Type:       runs.EventAskHumanResponse,
		Subflow:    subflow,
		ToolCallID: toolCallID,
		Response:   reply,
		TS:         s.Runtime.now(),
	}
	return s.appendAndTrigger(ctx, runID, ev)
}

func (s *Service) appendAndTrigger(ctx context.Context, runID string, ev runs.Event) error {
	if err := s.record(ctx, runID, ev); err != nil {
		return err
	}
	return s.trigger(ctx, runID)
}

func (s *Service) record(ctx context.Context, runID string, ev runs.Event) error {
	if err := s.Runtime.Store.AppendEvents(ctx, runID, []runs.Event{ev}); err != nil {
		return fmt.Errorf("append %s: %w", ev.Type, err)
	}
	s.Runtime.publish(ctx, ev)
	return nil
}

// Stop cancels the run's processor. A forced stop of a run that is already
// stopping kills its processes outright and drops remote tool connections.
// The processor itself records the run-stopped event.
func (s *Service) Stop(ctx context.Context, runID string, force bool) error {
	if _, err := s.Runtime.Store.Fetch(ctx, runID); err != nil {
		return err
	}
	logger := s.Runtime.logger().With("run_id", runID)
	if force && s.Runtime.Aborts.IsAborted(runID) {
		logger.Info("force stopping run")
		s.Runtime.Aborts.ForceAbort(runID)
		if s.ForceClose != nil {
			if err := s.ForceClose(); err != nil {
				logger.Warn("close remote tools", "error", err)
			}
		}
		return nil
	}
	logger.Info("stopping run")
	s.Runtime.Aborts.Abort(runID)
	return nil
}

func (s *Service) FetchRun(ctx context.Context, runID string) (runs.Run, error) {
	return s.Runtime.Store.Fetch(ctx, runID)
}

func (s *Service) ListRuns(ctx context.Context, cursor string, limit int) ([]runs.Summary, string, error) {
	return s.Runtime.Store.List(ctx, cursor, limit)
}

// Snapshot summarises a run's reconstructed state.
type Snapshot struct {
	RunID              string         `json:"runId"`
	AgentName          string         `json:"agentName"`
	Messages           []runs.Message `json:"messages"`
	PendingToolCalls   []runs.Part    `json:"pendingToolCalls"`
	PendingPermissions []runs.Event   `json:"pendingPermissions"`
	PendingAsks        []runs.Event   `json:"pendingAsks"`
	Settled            bool           `json:"settled"`
	FinalResponse      string         `json:"finalResponse,omitempty"`
}

func (s *Service) Snapshot(ctx context.Context, runID string) (Snapshot, error) {
	run, err := s.Runtime.Store.Fetch(ctx, runID)
	if err != nil {
		return Snapshot{}, err
	}
	st := Rebuild(run.Log)
	snap := Snapshot{
		RunID:              runID,
		AgentName:          st.AgentName,
		Messages:           st.Messages,
		PendingToolCalls:   st.PendingCalls(),
		PendingPermissions: st.AllPendingPermissions(),
		PendingAsks:        st.AllPendingAsks(),
		Settled:            st.Settled(),
		FinalResponse:      st.FinalResponse(),
	}
	if snap.Messages == nil {
		snap.Messages = []runs.Message{}
	}
	if snap.PendingToolCalls == nil {
		snap.PendingToolCalls = []runs.Part{}
	}
	if snap.PendingPermissions == nil {
		snap.PendingPermissions = []runs.Event{}
	}
	if snap.PendingAsks == nil {
		snap.PendingAsks = []runs.Event{}
	}
	return snap, nil
}

func (s *Service) stateAt(ctx context.Context, runID string, subflow []string) (*AgentState, error) {
	run, err := s.Runtime.Store.Fetch(ctx, runID)
	if err != nil {
		return nil, err
	}
	st := Rebuild(run.Log)
	for _, id := range subflow {
		child, ok := st.Subflows[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown subflow %s", ErrNoPendingRequest, id)
		}
		st = child
	}
	return st, nil
}
