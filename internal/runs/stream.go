package runs

import "encoding/json"

type StreamEventType string

const (
	StreamReasoningStart StreamEventType = "reasoning-start"
	StreamReasoningDelta StreamEventType = "reasoning-delta"
	StreamReasoningEnd   StreamEventType = "reasoning-end"
	StreamTextStart      StreamEventType = "text-start"
	StreamTextDelta      StreamEventType = "text-delta"
	StreamTextEnd        StreamEventType = "text-end"
	StreamToolCall       StreamEventType = "tool-call"
	StreamFinishStep     StreamEventType = "finish-step"
	StreamError          StreamEventType = "error"
)

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// StreamEvent is a provider-neutral chunk of one model turn.
type StreamEvent struct {
	Type            StreamEventType `json:"type"`
	Delta           string          `json:"delta,omitempty"`
	ToolCallID      string          `json:"toolCallId,omitempty"`
	ToolName        string          `json:"toolName,omitempty"`
	Input           json.RawMessage `json:"input,omitempty"`
	FinishReason    string          `json:"finishReason,omitempty"`
	Usage           *Usage          `json:"usage,omitempty"`
	Error           string          `json:"error,omitempty"`
	ProviderOptions json.RawMessage `json:"providerOptions,omitempty"`
}
