package runs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type PartType string

const (
	PartText      PartType = "text"
	PartReasoning PartType = "reasoning"
	PartToolCall  PartType = "tool-call"
)

// Part is one element of a multi-part message. Only the fields relevant to
// Type are populated.
type Part struct {
	Type            PartType        `json:"type"`
	Text            string          `json:"text,omitempty"`
	ToolCallID      string          `json:"toolCallId,omitempty"`
	ToolName        string          `json:"toolName,omitempty"`
	Arguments       json.RawMessage `json:"arguments,omitempty"`
	ProviderOptions json.RawMessage `json:"providerOptions,omitempty"`
}

// Argument decodes a single top-level string argument of a tool call.
func (p Part) Argument(key string) string {
	if len(p.Arguments) == 0 {
		return ""
	}
	var args map[string]any
	if err := json.Unmarshal(p.Arguments, &args); err != nil {
		return ""
	}
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Content is either plain text or an ordered list of parts. On the wire it
// is a JSON string or a JSON array.
type Content struct {
	Text  string
	Parts []Part
	multi bool
}

func TextContent(text string) Content {
	return Content{Text: text}
}

func PartsContent(parts ...Part) Content {
	if parts == nil {
		parts = []Part{}
	}
	return Content{Parts: parts, multi: true}
}

func (c Content) IsParts() bool {
	return c.multi || c.Parts != nil
}

// ToolCalls returns the tool-call parts in order.
func (c Content) ToolCalls() []Part {
	var out []Part
	for _, p := range c.Parts {
		if p.Type == PartToolCall {
			out = append(out, p)
		}
	}
	return out
}

// PlainText concatenates text parts, or returns the plain text body.
func (c Content) PlainText() string {
	if !c.IsParts() {
		return c.Text
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsParts() {
		parts := c.Parts
		if parts == nil {
			parts = []Part{}
		}
		return json.Marshal(parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var parts []Part
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return fmt.Errorf("decode content parts: %w", err)
		}
		*c = PartsContent(parts...)
		return nil
	}
	if bytes.Equal(trimmed, []byte("null")) {
		*c = Content{}
		return nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return fmt.Errorf("decode content text: %w", err)
	}
	*c = Content{Text: text}
	return nil
}

type Message struct {
	Role            Role            `json:"role"`
	Content         Content         `json:"content"`
	ToolCallID      string          `json:"toolCallId,omitempty"`
	ToolName        string          `json:"toolName,omitempty"`
	ProviderOptions json.RawMessage `json:"providerOptions,omitempty"`
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: TextContent(text)}
}

// ToolMessage carries a serialized tool result for toolCallID.
func ToolMessage(toolCallID, toolName, body string) Message {
	return Message{Role: RoleTool, Content: TextContent(body), ToolCallID: toolCallID, ToolName: toolName}
}

// Terminal reports whether m is an assistant message that requests no tools.
func (m Message) Terminal() bool {
	if m.Role != RoleAssistant {
		return false
	}
	return len(m.Content.ToolCalls()) == 0
}
