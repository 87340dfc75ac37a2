package agenttools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/singleflight"
)

const clientVersion = "0.1.0"

// MCPCaller calls tools on remote MCP servers over streamable HTTP. Clients
// are created on first use and reused until Close.
type MCPCaller struct {
	servers map[string]string
	headers map[string]string

	mu      sync.Mutex
	clients map[string]*mcpclient.Client
	connect singleflight.Group
}

func NewMCPCaller(servers map[string]string, headers map[string]string) *MCPCaller {
	return &MCPCaller{
		servers: servers,
		headers: headers,
		clients: map[string]*mcpclient.Client{},
	}
}

// ParseServers reads a "name=url,name=url" list.
func ParseServers(spec string) (map[string]string, error) {
	out := map[string]string{}
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, url, ok := strings.Cut(item, "=")
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid mcp server entry %q", item)
		}
		out[name] = url
	}
	return out, nil
}

// client returns the cached client for server, connecting on first use.
// Concurrent first calls share one connection attempt.
func (m *MCPCaller) client(ctx context.Context, server string) (*mcpclient.Client, error) {
	m.mu.Lock()
	c, ok := m.clients[server]
	m.mu.Unlock()
	if ok {
		return c, nil
	}
	url, ok := m.servers[server]
	if !ok {
		return nil, fmt.Errorf("unknown mcp server %q", server)
	}
	v, err, _ := m.connect.Do(server, func() (any, error) {
		// the first caller's cancellation must not fail the others
		c, err := m.dial(context.WithoutCancel(ctx), server, url)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.clients[server] = c
		m.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*mcpclient.Client), nil
}

func (m *MCPCaller) dial(ctx context.Context, server, url string) (*mcpclient.Client, error) {
	headers := m.headers
	if headers == nil {
		headers = map[string]string{}
	}
	c, err := mcpclient.NewStreamableHttpClient(url, mcptransport.WithHTTPHeaders(headers))
	if err != nil {
		return nil, fmt.Errorf("create mcp client for %s: %w", server, err)
	}
	_, err = c.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "agentrun", Version: clientVersion},
		},
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize mcp server %s: %w", server, err)
	}
	return c, nil
}

func (m *MCPCaller) CallTool(ctx context.Context, server, name string, args map[string]any) (any, error) {
	c, err := m.client(ctx, server)
	if err != nil {
		return nil, err
	}
	res, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", name, server, err)
	}
	text := collectText(res.Content)
	if res.IsError {
		if text == "" {
			text = "remote tool failed"
		}
		return nil, errors.New(text)
	}
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err == nil {
		return decoded, nil
	}
	return text, nil
}

func (m *MCPCaller) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for name, c := range m.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(m.clients, name)
	}
	return errors.Join(errs...)
}

func collectText(content []mcplib.Content) string {
	var parts []string
	for _, c := range content {
		switch v := c.(type) {
		case mcplib.TextContent:
			parts = append(parts, v.Text)
		case *mcplib.TextContent:
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, "\n")
}
