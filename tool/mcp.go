package tool

import (
	"context"
	"time"

	"github.com/zarathustra-ai/awsops-agent/core"
)

// accountFields are the argument keys carrying account scope. They are always
// owned by the pipeline: values the reasoning step supplies for them are
// discarded before the request's resolved scope is injected.
var accountFields = []string{"profile", "role_arn", "region"}

// Invoker sends a named tool call to a registered remote server. It is
// implemented by mcpclient.Client; tests substitute fakes.
type Invoker interface {
	Invoke(ctx context.Context, serverName, toolName string, args map[string]any) core.ToolResult
}

// MCPTool exposes one remote MCP server tool through the Tool interface.
// It injects the calling request's account context into the outgoing
// arguments for every account field the remote schema declares, so the
// reasoning step can never smuggle a different privilege scope through
// natural-language input.
type MCPTool struct {
	server      string
	name        string
	description string
	schema      map[string]any
	invoker     Invoker
	timeout     time.Duration
}

// NewMCPTool binds a remote tool to the invoker that reaches its server.
// A zero timeout disables the per-call bound.
func NewMCPTool(server, name, description string, schema map[string]any, invoker Invoker, timeout time.Duration) *MCPTool {
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	return &MCPTool{
		server:      server,
		name:        name,
		description: description,
		schema:      schema,
		invoker:     invoker,
		timeout:     timeout,
	}
}

// Name returns the tool name as advertised by the remote server.
func (t *MCPTool) Name() string { return t.name }

// Server returns the owning server's registered name.
func (t *MCPTool) Server() string { return t.server }

// Description returns the remote tool's description.
func (t *MCPTool) Description() string { return t.description }

// Parameters returns the remote tool's input schema.
func (t *MCPTool) Parameters() map[string]any { return t.schema }

// Call injects the account scope and forwards the call to the remote server.
func (t *MCPTool) Call(tc *Context, args map[string]any) core.ToolResult {
	outgoing := make(map[string]any, len(args)+len(accountFields))
	for k, v := range args {
		outgoing[k] = v
	}
	for _, field := range accountFields {
		delete(outgoing, field)
	}

	if SchemaDeclares(t.schema, "role_arn") && tc.Account.RoleARN != "" {
		outgoing["role_arn"] = tc.Account.RoleARN
	}
	if SchemaDeclares(t.schema, "profile") && tc.Account.Profile != "" {
		outgoing["profile"] = tc.Account.Profile
	}
	if SchemaDeclares(t.schema, "region") && tc.Account.Region != "" {
		outgoing["region"] = tc.Account.Region
	}

	ctx := tc.Context
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	result := t.invoker.Invoke(ctx, t.server, t.name, outgoing)
	tc.Logger().Info(
		"tool.call.executed",
		"server", t.server,
		"tool", t.name,
		"fc_id", tc.CallID,
		"duration_ms", time.Since(start).Milliseconds(),
		"success", result.Success,
	)

	return result
}
