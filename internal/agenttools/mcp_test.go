package agenttools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

func newMCPTestServer(t *testing.T) string {
	t.Helper()
	s := mcpserver.NewMCPServer("docs", "test", mcpserver.WithToolCapabilities(true))
	s.AddTool(
		mcplib.NewTool("search",
			mcplib.WithDescription("Search the docs"),
			mcplib.WithString("q", mcplib.Description("Query"), mcplib.Required()),
		),
		func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			q := request.GetString("q", "")
			return &mcplib.CallToolResult{
				Content: []mcplib.Content{
					mcplib.TextContent{Type: "text", Text: fmt.Sprintf(`{"query":%q,"hits":1}`, q)},
				},
			}, nil
		},
	)
	s.AddTool(
		mcplib.NewTool("broken", mcplib.WithDescription("Always fails")),
		func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			return &mcplib.CallToolResult{
				IsError: true,
				Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: "index offline"}},
			}, nil
		},
	)
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL + "/mcp"
}

func TestMCPCallerCallsRemoteTool(t *testing.T) {
	caller := NewMCPCaller(map[string]string{"docs": newMCPTestServer(t)}, nil)
	defer func() { _ = caller.Close() }()

	out, err := caller.CallTool(context.Background(), "docs", "search", map[string]any{"q": "agents"})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	res, ok := out.(map[string]any)
	if !ok || res["query"] != "agents" {
		t.Fatalf("unexpected result %#v", out)
	}

	// second call reuses the initialised client
	if _, err := caller.CallTool(context.Background(), "docs", "search", map[string]any{"q": "again"}); err != nil {
		t.Fatalf("second call: %v", err)
	}
}

func TestMCPCallerReportsToolErrors(t *testing.T) {
	caller := NewMCPCaller(map[string]string{"docs": newMCPTestServer(t)}, nil)
	defer func() { _ = caller.Close() }()

	_, err := caller.CallTool(context.Background(), "docs", "broken", nil)
	if err == nil || !strings.Contains(err.Error(), "index offline") {
		t.Fatalf("expected remote error, got %v", err)
	}
	if _, err := caller.CallTool(context.Background(), "missing", "search", nil); err == nil {
		t.Fatalf("expected error for unknown server")
	}
}

func TestParseServers(t *testing.T) {
	servers, err := ParseServers("docs=http://a/mcp, files = http://b/mcp ,")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 || servers["files"] != "http://b/mcp" {
		t.Fatalf("unexpected servers %v", servers)
	}
	if _, err := ParseServers("broken"); err == nil {
		t.Fatalf("expected error for entry without url")
	}
}
