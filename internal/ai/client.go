package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/flitsinc/agentrun/internal/runs"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	ollamaBaseURL     = "http://localhost:11434/v1"
)

type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
}

// Client streams chat completions from any OpenAI-compatible endpoint.
type Client struct {
	api      *openai.Client
	provider string
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	switch cfg.Provider {
	case "openai", "openai-chat":
	case "openrouter":
		if baseURL == "" {
			baseURL = openRouterBaseURL
		}
	case "ollama":
		if baseURL == "" {
			baseURL = ollamaBaseURL
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "ollama"
		}
	case "":
		return nil, fmt.Errorf("llm provider is required")
	default:
		if baseURL == "" {
			return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
		}
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &Client{api: openai.NewClientWithConfig(clientConfig), provider: cfg.Provider}, nil
}

func (c *Client) Stream(ctx context.Context, req Request) iter.Seq[runs.StreamEvent] {
	return func(yield func(runs.StreamEvent) bool) {
		if req.Model == "" {
			yield(runs.StreamEvent{Type: runs.StreamError, Error: "llm model is required"})
			return
		}
		chatReq := openai.ChatCompletionRequest{
			Model:         resolveModelAlias(c.provider, req.Model),
			Messages:      convertMessages(req.Instructions, req.Messages),
			Stream:        true,
			StreamOptions: &openai.StreamOptions{IncludeUsage: true},
		}
		if len(req.Tools) > 0 {
			chatReq.Tools = convertTools(req.Tools)
		}

		stream, err := c.api.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			yield(runs.StreamEvent{Type: runs.StreamError, Error: err.Error()})
			return
		}
		defer stream.Close()

		var s streamState
		for {
			if err := ctx.Err(); err != nil {
				yield(runs.StreamEvent{Type: runs.StreamError, Error: err.Error()})
				return
			}
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				for _, ev := range s.finish() {
					if !yield(ev) {
						return
					}
				}
				return
			}
			if err != nil {
				yield(runs.StreamEvent{Type: runs.StreamError, Error: err.Error()})
				return
			}
			for _, ev := range s.apply(response) {
				if !yield(ev) {
					return
				}
			}
		}
	}
}

// streamState turns chat-completion deltas into stream events. Tool calls
// arrive in fragments keyed by index and are emitted once complete.
type streamState struct {
	inText       bool
	toolCalls    map[int]*pendingCall
	finishReason string
	usage        *runs.Usage
}

type pendingCall struct {
	id, name string
	args     strings.Builder
}

func (s *streamState) apply(resp openai.ChatCompletionStreamResponse) []runs.StreamEvent {
	var out []runs.StreamEvent
	if resp.Usage != nil {
		s.usage = &runs.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	delta := choice.Delta
	if delta.Content != "" {
		if !s.inText {
			s.inText = true
			out = append(out, runs.StreamEvent{Type: runs.StreamTextStart})
		}
		out = append(out, runs.StreamEvent{Type: runs.StreamTextDelta, Delta: delta.Content})
	}
	for _, tc := range delta.ToolCalls {
		if s.inText {
			s.inText = false
			out = append(out, runs.StreamEvent{Type: runs.StreamTextEnd})
		}
		index := 0
		if tc.Index != nil {
			index = *tc.Index
		}
		if s.toolCalls == nil {
			s.toolCalls = map[int]*pendingCall{}
		}
		call := s.toolCalls[index]
		if call == nil {
			call = &pendingCall{}
			s.toolCalls[index] = call
		}
		if tc.ID != "" {
			call.id = tc.ID
		}
		if tc.Function.Name != "" {
			call.name = tc.Function.Name
		}
		call.args.WriteString(tc.Function.Arguments)
	}
	if choice.FinishReason != "" {
		s.finishReason = string(choice.FinishReason)
	}
	return out
}

func (s *streamState) finish() []runs.StreamEvent {
	var out []runs.StreamEvent
	if s.inText {
		s.inText = false
		out = append(out, runs.StreamEvent{Type: runs.StreamTextEnd})
	}
	indexes := make([]int, 0, len(s.toolCalls))
	for i := range s.toolCalls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		call := s.toolCalls[i]
		if call.id == "" || call.name == "" {
			continue
		}
		args := strings.TrimSpace(call.args.String())
		if args == "" {
			args = "{}"
		}
		out = append(out, runs.StreamEvent{
			Type:       runs.StreamToolCall,
			ToolCallID: call.id,
			ToolName:   call.name,
			Input:      []byte(args),
		})
	}
	s.toolCalls = nil
	out = append(out, runs.StreamEvent{Type: runs.StreamFinishStep, FinishReason: s.finishReason, Usage: s.usage})
	return out
}
