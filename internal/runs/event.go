package runs

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrRunNotFound = errors.New("run not found")

type EventType string

const (
	EventStart              EventType = "start"
	EventRunStopped         EventType = "run-stopped"
	EventProcessingStart    EventType = "run-processing-start"
	EventProcessingEnd      EventType = "run-processing-end"
	EventMessage            EventType = "message"
	EventToolInvocation     EventType = "tool-invocation"
	EventToolResult         EventType = "tool-result"
	EventSpawnSubflow       EventType = "spawn-subflow"
	EventPermissionRequest  EventType = "tool-permission-request"
	EventPermissionResponse EventType = "tool-permission-response"
	EventAskHumanRequest    EventType = "ask-human-request"
	EventAskHumanResponse   EventType = "ask-human-response"
	EventLLMStream          EventType = "llm-stream-event"
	EventError              EventType = "error"
)

const (
	ResponseApprove = "approve"
	ResponseDeny    = "deny"

	ScopeOnce    = "once"
	ScopeSession = "session"
	ScopeAlways  = "always"

	StopUserRequested = "user-requested"
	StopForced        = "force-stopped"
)

// Event is the persisted and published record of a run transition. Fields
// not relevant to Type are left zero and omitted on the wire.
type Event struct {
	RunID   string    `json:"runId"`
	Type    EventType `json:"type"`
	Subflow []string  `json:"subflow"`
	TS      time.Time `json:"ts,omitzero"`

	AgentName  string          `json:"agentName,omitempty"`
	MessageID  string          `json:"messageId,omitempty"`
	Message    *Message        `json:"message,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      string          `json:"input,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	ToolCall   *Part           `json:"toolCall,omitempty"`
	Response   string          `json:"response,omitempty"`
	Scope      string          `json:"scope,omitempty"`
	Query      string          `json:"query,omitempty"`
	Stream     *StreamEvent    `json:"event,omitempty"`
	Error      string          `json:"error,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// Ephemeral events are published but never appended to a run log.
func (e Event) Ephemeral() bool {
	return e.Type == EventLLMStream
}

// Normalized returns a copy whose subflow path is never nil.
func (e Event) Normalized() Event {
	if e.Subflow == nil {
		e.Subflow = []string{}
	}
	return e
}

// Nested returns a copy addressed one level deeper, under toolCallID.
func (e Event) Nested(toolCallID string) Event {
	path := make([]string, 0, len(e.Subflow)+1)
	path = append(path, toolCallID)
	path = append(path, e.Subflow...)
	e.Subflow = path
	return e
}

func (e Event) MarshalJSON() ([]byte, error) {
	type wire Event
	return json.Marshal(wire(e.Normalized()))
}

type Run struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	AgentID   string    `json:"agentId"`
	CreatedAt time.Time `json:"createdAt"`
	Log       []Event   `json:"log"`
}

type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	AgentID   string    `json:"agentId"`
	CreatedAt time.Time `json:"createdAt"`
}

// QueuedMessage is a user message waiting in a run's inbox.
type QueuedMessage struct {
	MessageID string `json:"messageId"`
	Text      string `json:"message"`
}

const maxTitleLen = 100

// Title derives a run title from the first user text found in log.
func Title(log []Event) string {
	for _, ev := range log {
		if ev.Type != EventMessage || ev.Message == nil || len(ev.Subflow) > 0 {
			continue
		}
		if ev.Message.Role != RoleUser {
			continue
		}
		text := []rune(ev.Message.Content.PlainText())
		if len(text) > maxTitleLen {
			text = text[:maxTitleLen]
		}
		return string(text)
	}
	return ""
}
