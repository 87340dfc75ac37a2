package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flitsinc/agentrun/internal/agents"
	"github.com/flitsinc/agentrun/internal/runs"
)

func sseServer(t *testing.T, chunks []string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			if err := json.NewDecoder(r.Body).Decode(seen); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(seq func(func(runs.StreamEvent) bool)) []runs.StreamEvent {
	var out []runs.StreamEvent
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

func TestStreamTextAndToolCalls(t *testing.T) {
	chunks := []string{
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant","content":"Let me "}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"check."}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call-1","type":"function","function":{"name":"search","arguments":"{\"q\":"}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"go\"}"}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`,
	}
	var seen map[string]any
	srv := sseServer(t, chunks, &seen)
	client, err := NewClient(Config{Provider: "openai", APIKey: "test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	events := collect(client.Stream(context.Background(), Request{
		Model:        "gpt-test",
		Instructions: "be brief",
		Messages:     []runs.Message{runs.UserMessage("hi")},
		Tools:        []ToolSpec{{Name: "search", Description: "Search"}},
	}))

	var types []string
	for _, ev := range events {
		types = append(types, string(ev.Type))
	}
	want := "text-start,text-delta,text-delta,text-end,tool-call,finish-step"
	if strings.Join(types, ",") != want {
		t.Fatalf("unexpected event sequence %v", types)
	}
	call := events[4]
	if call.ToolCallID != "call-1" || call.ToolName != "search" || string(call.Input) != `{"q":"go"}` {
		t.Fatalf("unexpected tool call %+v", call)
	}
	finish := events[5]
	if finish.FinishReason != "tool_calls" || finish.Usage == nil || finish.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected finish step %+v", finish)
	}

	if seen["model"] != "gpt-test" {
		t.Fatalf("expected model in request, got %v", seen["model"])
	}
	msgs, _ := seen["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %v", msgs)
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Fatalf("expected instructions as system message, got %v", msgs[0])
	}
}

func TestStreamReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()
	client, err := NewClient(Config{Provider: "openai", APIKey: "test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	events := collect(client.Stream(context.Background(), Request{Model: "nope"}))
	if len(events) != 1 || events[0].Type != runs.StreamError || events[0].Error == "" {
		t.Fatalf("expected a single error event, got %+v", events)
	}
}

func TestNewClientProviders(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error for missing provider")
	}
	if _, err := NewClient(Config{Provider: "openai"}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
	if _, err := NewClient(Config{Provider: "ollama"}); err != nil {
		t.Fatalf("ollama needs no key: %v", err)
	}
	if _, err := NewClient(Config{Provider: "custom"}); err == nil {
		t.Fatalf("expected error for unknown provider without base url")
	}
	if _, err := NewClient(Config{Provider: "custom", APIKey: "k", BaseURL: "http://localhost:1/v1"}); err != nil {
		t.Fatalf("custom provider with base url: %v", err)
	}
}

func TestModelFor(t *testing.T) {
	cfg := ModelConfig{Provider: "openai", Model: "gpt-base", KnowledgeGraphModel: "gpt-kg"}
	if got := ModelFor(cfg, agents.Agent{}); got != "gpt-base" {
		t.Fatalf("expected default model, got %q", got)
	}
	if got := ModelFor(cfg, agents.Agent{KnowledgeGraph: true}); got != "gpt-kg" {
		t.Fatalf("expected knowledge graph model, got %q", got)
	}
	if got := ModelFor(cfg, agents.Agent{Model: "fast"}); got != "gpt-4.1-mini" {
		t.Fatalf("expected alias resolution, got %q", got)
	}
	if got := ModelFor(ModelConfig{Model: "m"}, agents.Agent{KnowledgeGraph: true}); got != "m" {
		t.Fatalf("expected fallback without kg model, got %q", got)
	}
}

func TestUnavailableYieldsError(t *testing.T) {
	var events []runs.StreamEvent
	for ev := range (Unavailable{Err: errors.New("llm api key is required")}).Stream(context.Background(), Request{}) {
		events = append(events, ev)
	}
	if len(events) != 1 || events[0].Type != runs.StreamError {
		t.Fatalf("expected single error event, got %+v", events)
	}
	if events[0].Error != "llm api key is required" {
		t.Fatalf("unexpected error text %q", events[0].Error)
	}
}
