package engine

import (
	"encoding/json"

	"github.com/flitsinc/agentrun/internal/agenttools"
	"github.com/flitsinc/agentrun/internal/runs"
)

// AgentState is the view of one run, or of one subflow inside it, rebuilt
// from the event log. Subflows are keyed by the tool-call id that spawned
// them.
type AgentState struct {
	AgentName     string
	Messages      []runs.Message
	LastAssistant *runs.Message
	LastMessageID string

	ToolCalls          map[string]runs.Part
	Pending            map[string]bool
	PendingPermissions map[string]runs.Event
	PendingAsks        map[string]runs.Event
	Approved           map[string]bool
	Denied             map[string]bool
	Invoked            map[string]bool
	SessionCommands    map[string]bool
	Subflows           map[string]*AgentState

	// discovery order of tool calls, requests and subflows
	callOrder    []string
	permOrder    []string
	askOrder     []string
	subflowOrder []string
}

func NewAgentState() *AgentState {
	return &AgentState{
		ToolCalls:          map[string]runs.Part{},
		Pending:            map[string]bool{},
		PendingPermissions: map[string]runs.Event{},
		PendingAsks:        map[string]runs.Event{},
		Approved:           map[string]bool{},
		Denied:             map[string]bool{},
		Invoked:            map[string]bool{},
		SessionCommands:    map[string]bool{},
		Subflows:           map[string]*AgentState{},
	}
}

// Rebuild replays events into a fresh state.
func Rebuild(events []runs.Event) *AgentState {
	s := NewAgentState()
	for _, ev := range events {
		s.Ingest(ev)
	}
	return s
}

func (s *AgentState) subflow(id string) *AgentState {
	child, ok := s.Subflows[id]
	if !ok {
		child = NewAgentState()
		s.Subflows[id] = child
		s.subflowOrder = append(s.subflowOrder, id)
	}
	return child
}

// Ingest applies one event. Events addressed to a subflow are routed down
// the path before they are interpreted.
func (s *AgentState) Ingest(ev runs.Event) {
	if len(ev.Subflow) > 0 {
		child := s.subflow(ev.Subflow[0])
		ev.Subflow = ev.Subflow[1:]
		child.Ingest(ev)
		return
	}
	switch ev.Type {
	case runs.EventStart:
		s.AgentName = ev.AgentName
	case runs.EventSpawnSubflow:
		s.subflow(ev.ToolCallID).AgentName = ev.AgentName
	case runs.EventMessage:
		if ev.MessageID > s.LastMessageID {
			s.LastMessageID = ev.MessageID
		}
		if ev.Message != nil {
			s.ingestMessage(*ev.Message)
		}
	case runs.EventToolInvocation:
		s.Invoked[ev.ToolCallID] = true
	case runs.EventPermissionRequest:
		if ev.ToolCall == nil {
			return
		}
		id := ev.ToolCall.ToolCallID
		if _, ok := s.PendingPermissions[id]; !ok {
			s.permOrder = append(s.permOrder, id)
		}
		s.PendingPermissions[id] = ev
	case runs.EventPermissionResponse:
		switch ev.Response {
		case runs.ResponseApprove:
			s.Approved[ev.ToolCallID] = true
			if ev.Scope == runs.ScopeSession || ev.Scope == runs.ScopeAlways {
				if call, ok := s.ToolCalls[ev.ToolCallID]; ok {
					for _, name := range agenttools.ExtractCommandNames(call.Argument("command")) {
						s.SessionCommands[name] = true
					}
				}
			}
		case runs.ResponseDeny:
			s.Denied[ev.ToolCallID] = true
		}
		delete(s.PendingPermissions, ev.ToolCallID)
		s.permOrder = without(s.permOrder, ev.ToolCallID)
	case runs.EventAskHumanRequest:
		if _, ok := s.PendingAsks[ev.ToolCallID]; !ok {
			s.askOrder = append(s.askOrder, ev.ToolCallID)
		}
		s.PendingAsks[ev.ToolCallID] = ev
	case runs.EventAskHumanResponse:
		if _, ok := s.PendingAsks[ev.ToolCallID]; !ok {
			return
		}
		body, _ := json.Marshal(map[string]string{"userResponse": ev.Response})
		s.ingestMessage(runs.ToolMessage(ev.ToolCallID, s.ToolCalls[ev.ToolCallID].ToolName, string(body)))
		delete(s.PendingAsks, ev.ToolCallID)
		s.askOrder = without(s.askOrder, ev.ToolCallID)
	}
}

func (s *AgentState) ingestMessage(msg runs.Message) {
	s.Messages = append(s.Messages, msg)
	for _, call := range msg.Content.ToolCalls() {
		if _, seen := s.ToolCalls[call.ToolCallID]; !seen {
			s.callOrder = append(s.callOrder, call.ToolCallID)
		}
		s.ToolCalls[call.ToolCallID] = call
		s.Pending[call.ToolCallID] = true
	}
	switch msg.Role {
	case runs.RoleTool:
		delete(s.Pending, msg.ToolCallID)
	case runs.RoleAssistant:
		last := msg
		s.LastAssistant = &last
	}
}

// PendingCalls returns the unresolved tool calls in discovery order.
func (s *AgentState) PendingCalls() []runs.Part {
	var out []runs.Part
	for _, id := range s.callOrder {
		if s.Pending[id] {
			out = append(out, s.ToolCalls[id])
		}
	}
	return out
}

// AllPendingPermissions collects permission requests from this state and
// every subflow, addressed relative to this state.
func (s *AgentState) AllPendingPermissions() []runs.Event {
	var out []runs.Event
	for _, id := range s.subflowOrder {
		for _, ev := range s.Subflows[id].AllPendingPermissions() {
			out = append(out, ev.Nested(id))
		}
	}
	for _, id := range s.permOrder {
		ev := s.PendingPermissions[id]
		ev.Subflow = []string{}
		out = append(out, ev)
	}
	return out
}

// AllPendingAsks is the ask-human counterpart of AllPendingPermissions.
func (s *AgentState) AllPendingAsks() []runs.Event {
	var out []runs.Event
	for _, id := range s.subflowOrder {
		for _, ev := range s.Subflows[id].AllPendingAsks() {
			out = append(out, ev.Nested(id))
		}
	}
	for _, id := range s.askOrder {
		ev := s.PendingAsks[id]
		ev.Subflow = []string{}
		out = append(out, ev)
	}
	return out
}

// Suspended reports whether a human response is awaited anywhere below s.
func (s *AgentState) Suspended() bool {
	if len(s.PendingPermissions) > 0 || len(s.PendingAsks) > 0 {
		return true
	}
	for _, child := range s.Subflows {
		if child.Suspended() {
			return true
		}
	}
	return false
}

// Terminal reports whether the latest message is an assistant reply that
// requests no tools.
func (s *AgentState) Terminal() bool {
	if len(s.Messages) == 0 {
		return false
	}
	return s.Messages[len(s.Messages)-1].Terminal()
}

// Settled reports whether the conversation has reached a final answer with
// nothing left to resolve.
func (s *AgentState) Settled() bool {
	return len(s.Pending) == 0 && !s.Suspended() && s.Terminal()
}

// FinalResponse is the text of the last assistant message.
func (s *AgentState) FinalResponse() string {
	if s.LastAssistant == nil {
		return ""
	}
	return s.LastAssistant.Content.PlainText()
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// MaxMessageID is the largest message id logged at this level or below.
func (s *AgentState) MaxMessageID() string {
	latest := s.LastMessageID
	for _, child := range s.Subflows {
		if id := child.MaxMessageID(); id > latest {
			latest = id
		}
	}
	return latest
}
