package ai

import (
	"encoding/json"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/flitsinc/agentrun/internal/runs"
)

func convertMessages(instructions string, messages []runs.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if strings.TrimSpace(instructions) != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: instructions,
		})
	}
	for _, msg := range messages {
		switch msg.Role {
		case runs.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content.PlainText()})
		case runs.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content.PlainText()})
		case runs.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content.PlainText(),
				ToolCallID: msg.ToolCallID,
				Name:       msg.ToolName,
			})
		case runs.RoleAssistant:
			oai := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content.PlainText(),
			}
			for _, call := range msg.Content.ToolCalls() {
				args := string(call.Arguments)
				if strings.TrimSpace(args) == "" {
					args = "{}"
				}
				oai.ToolCalls = append(oai.ToolCalls, openai.ToolCall{
					ID:   call.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.ToolName,
						Arguments: args,
					},
				})
			}
			// Reasoning-only turns have nothing the provider accepts.
			if oai.Content == "" && len(oai.ToolCalls) == 0 {
				continue
			}
			out = append(out, oai)
		}
	}
	return out
}

func convertTools(tools []ToolSpec) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		params := tool.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		}
	}
	return out
}

// EncodeResult serialises a tool result the way tool messages carry it. A
// nil result becomes JSON null.
func EncodeResult(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok && json.Valid(raw) {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}
