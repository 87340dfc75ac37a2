package engine

import (
	"encoding/json"
	"strings"

	"github.com/flitsinc/agentrun/internal/runs"
)

// MessageBuilder assembles one assistant message from a model turn's
// stream events.
type MessageBuilder struct {
	parts           []runs.Part
	text            strings.Builder
	reasoning       strings.Builder
	reasoningOpts   json.RawMessage
	providerOptions json.RawMessage
}

func (b *MessageBuilder) flush() {
	if b.reasoning.Len() > 0 || len(b.reasoningOpts) > 0 {
		b.parts = append(b.parts, runs.Part{
			Type:            runs.PartReasoning,
			Text:            b.reasoning.String(),
			ProviderOptions: b.reasoningOpts,
		})
		b.reasoning.Reset()
		b.reasoningOpts = nil
	}
	if b.text.Len() > 0 {
		b.parts = append(b.parts, runs.Part{Type: runs.PartText, Text: b.text.String()})
		b.text.Reset()
	}
}

func (b *MessageBuilder) Ingest(ev runs.StreamEvent) {
	switch ev.Type {
	case runs.StreamReasoningEnd:
		b.reasoningOpts = ev.ProviderOptions
		b.flush()
	case runs.StreamTextStart, runs.StreamTextEnd, runs.StreamError:
		b.flush()
	case runs.StreamReasoningDelta:
		b.reasoning.WriteString(ev.Delta)
	case runs.StreamTextDelta:
		b.text.WriteString(ev.Delta)
	case runs.StreamToolCall:
		b.flush()
		b.parts = append(b.parts, runs.Part{
			Type:            runs.PartToolCall,
			ToolCallID:      ev.ToolCallID,
			ToolName:        ev.ToolName,
			Arguments:       toolArguments(ev.Input),
			ProviderOptions: ev.ProviderOptions,
		})
	case runs.StreamFinishStep:
		b.providerOptions = ev.ProviderOptions
	}
}

// toolArguments keeps malformed arguments, such as those cut off by a
// length stop, as a JSON string so the message still encodes and the call
// fails validation instead of the pass.
func toolArguments(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(raw) {
		return raw
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}

func (b *MessageBuilder) Message() runs.Message {
	b.flush()
	return runs.Message{
		Role:            runs.RoleAssistant,
		Content:         runs.PartsContent(b.parts...),
		ProviderOptions: b.providerOptions,
	}
}
