package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zarathustra-ai/awsops-agent/core"
	"github.com/zarathustra-ai/awsops-agent/logging"
)

const protocolVersion = "2024-11-05"

// RemoteTool describes one tool advertised by a server, with its JSON schema
// already flattened to the map shape the model layer consumes.
type RemoteTool struct {
	Server      string
	Name        string
	Description string
	Schema      map[string]any
}

// Options configures a Client.
type Options struct {
	Logger logging.Logger
}

// Client invokes tools on registered MCP servers. Sessions are established
// lazily per server and reused; public methods are safe for concurrent use.
// Connection state is locked per server, so a slow handshake to one server
// never stalls calls to the others.
type Client struct {
	registry *Registry
	logger   logging.Logger

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

// sessionEntry carries one server's session and its own lock.
type sessionEntry struct {
	mu      sync.Mutex
	session *client.Client
}

// New creates a Client over the given registry.
func New(registry *Registry, optFns ...func(o *Options)) *Client {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Client{
		registry: registry,
		logger:   opts.Logger,
		entries:  make(map[string]*sessionEntry),
	}
}

// Invoke executes a named tool on a registered server. The result is always
// a ToolResult: unknown servers, transport failures and remote tool errors
// all come back as failures with Error set, so the caller can hand them to
// the reasoning step unchanged. No retries happen at this layer.
func (c *Client) Invoke(ctx context.Context, serverName, toolName string, args map[string]any) core.ToolResult {
	session, err := c.session(ctx, serverName)
	if err != nil {
		kind := core.KindTransport
		var unknown *core.UnknownServerError
		if errors.As(err, &unknown) {
			kind = core.KindUnknownServer
		}
		c.logger.Warn("mcp.invoke.connect_failed",
			"server", serverName,
			"tool", toolName,
			"kind", string(kind),
			"error", err.Error(),
		)
		return core.FailedResult(err)
	}

	result, err := session.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	})
	if err != nil {
		// Drop the session so the next call reconnects.
		c.drop(serverName)
		c.logger.Warn("mcp.invoke.transport_error",
			"server", serverName,
			"tool", toolName,
			"kind", string(core.KindTransport),
			"error", err.Error(),
		)
		return core.FailedResult(fmt.Errorf("transport error calling %s.%s: %w", serverName, toolName, err))
	}

	text := flattenContent(result)
	if result.IsError {
		c.logger.Info("mcp.invoke.tool_error",
			"server", serverName,
			"tool", toolName,
			"kind", string(core.KindToolFailure),
		)
		return core.ToolResult{Success: false, Error: text}
	}

	c.logger.Debug("mcp.invoke.success", "server", serverName, "tool", toolName)
	return core.OKResult(text)
}

// ListTools returns the tools advertised by one registered server.
func (c *Client) ListTools(ctx context.Context, serverName string) ([]RemoteTool, error) {
	session, err := c.session(ctx, serverName)
	if err != nil {
		return nil, err
	}

	result, err := session.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.drop(serverName)
		return nil, fmt.Errorf("failed to list tools from %s: %w", serverName, err)
	}

	tools := make([]RemoteTool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, RemoteTool{
			Server:      serverName,
			Name:        t.Name,
			Description: t.Description,
			Schema:      schemaToMap(t.InputSchema),
		})
	}

	c.logger.Info("mcp.tools.listed", "server", serverName, "count", len(tools))
	return tools, nil
}

// Close tears down all established sessions.
func (c *Client) Close() error {
	c.mu.Lock()
	entries := make([]*sessionEntry, 0, len(c.entries))
	for name, entry := range c.entries {
		entries = append(entries, entry)
		delete(c.entries, name)
	}
	c.mu.Unlock()

	var firstErr error
	for _, entry := range entries {
		entry.mu.Lock()
		if entry.session != nil {
			if err := entry.session.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			entry.session = nil
		}
		entry.mu.Unlock()
	}
	return firstErr
}

// session returns an established session for the named server, connecting if
// needed. An unregistered name yields *core.UnknownServerError. Only the
// target server's entry is locked during the handshake.
func (c *Client) session(ctx context.Context, serverName string) (*client.Client, error) {
	server, ok := c.registry.Lookup(serverName)
	if !ok {
		return nil, &core.UnknownServerError{Server: serverName}
	}

	entry := c.entry(serverName)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.session != nil {
		return entry.session, nil
	}

	session, err := c.connect(ctx, server)
	if err != nil {
		return nil, err
	}

	entry.session = session
	return session, nil
}

// entry returns the per-server session slot, creating it on first use.
func (c *Client) entry(serverName string) *sessionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[serverName]
	if !ok {
		entry = &sessionEntry{}
		c.entries[serverName] = entry
	}
	return entry
}

// connect builds, starts and initializes a streamable HTTP session.
func (c *Client) connect(ctx context.Context, server Server) (*client.Client, error) {
	var transportOpts []transport.StreamableHTTPCOption
	if server.AuthToken != "" {
		transportOpts = append(transportOpts, transport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + server.AuthToken,
		}))
	}

	httpTransport, err := transport.NewStreamableHTTP(server.URL, transportOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for %s: %w", server.Name, err)
	}

	session := client.NewClient(httpTransport)
	if err := session.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start session for %s: %w", server.Name, err)
	}

	_, err = session.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "awsops-agent",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to initialize session for %s: %w", server.Name, err)
	}

	c.logger.Info("mcp.server.connected", "server", server.Name, "url", server.URL)
	return session, nil
}

// drop discards a cached session after a transport failure.
func (c *Client) drop(serverName string) {
	c.mu.Lock()
	entry, ok := c.entries[serverName]
	c.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.session != nil {
		_ = entry.session.Close()
		entry.session = nil
	}
}

// flattenContent joins a tool result's content blocks into one string.
func flattenContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}

	var parts []string
	for _, content := range result.Content {
		switch block := content.(type) {
		case *mcp.TextContent:
			parts = append(parts, block.Text)
		case mcp.TextContent:
			parts = append(parts, block.Text)
		default:
			if raw, err := json.Marshal(content); err == nil {
				parts = append(parts, string(raw))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// schemaToMap flattens an MCP input schema to the generic map shape used by
// tool definitions.
func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	m := map[string]any{"type": schema.Type}
	if m["type"] == "" {
		m["type"] = "object"
	}
	if len(schema.Properties) > 0 {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	return m
}
