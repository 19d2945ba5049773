// Package tool implements the tool catalog that lets the reasoning step
// invoke structured capabilities on remote tool servers with schema validated
// arguments and consistent failure handling.
package tool

import (
	"context"
	"fmt"

	"github.com/zarathustra-ai/awsops-agent/core"
	"github.com/zarathustra-ai/awsops-agent/logging"
)

// Tool defines one callable operation exposed to the reasoning step.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Return failures as data (a failed ToolResult), never panic
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description provided to the
	// reasoning step so it understands when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool. Arguments have been parsed from JSON; they are
	// validated against the tool's schema before dispatch. The result is
	// always a ToolResult: failures become data the reasoning step can react
	// to.
	Call(tc *Context, args map[string]any) core.ToolResult
}

// Context carries the per-call execution scope handed to tools: the ambient
// cancellation context, the request's resolved account scope and the
// function call id for correlation.
type Context struct {
	Context context.Context
	Account core.AccountContext
	CallID  string

	logger logging.Logger
}

// NewContext builds a tool Context. A nil logger is replaced by NoOpLogger.
func NewContext(ctx context.Context, account core.AccountContext, callID string, logger logging.Logger) *Context {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Context{Context: ctx, Account: account, CallID: callID, logger: logger}
}

// Logger returns the call-scoped logger.
func (c *Context) Logger() logging.Logger { return c.logger }

// Registry is a name-indexed tool catalog. It is built once at startup and
// read concurrently by workers afterwards.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a catalog from the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Register adds a tool, replacing any previous registration of the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns the registered tools in no particular order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }

// Execute validates args against the named tool's schema and invokes it.
// An unregistered name or validation failure becomes a failed ToolResult so
// the reasoning step can pick a different tool or fix its arguments.
func (r *Registry) Execute(tc *Context, name string, args map[string]any) core.ToolResult {
	impl, ok := r.tools[name]
	if !ok {
		return core.FailedResult(fmt.Errorf("tool %q not found", name))
	}

	if err := ValidateParameters(args, impl.Parameters()); err != nil {
		tc.Logger().Warn("tool.call.validation_failed", "tool", name, "error", err.Error())
		return core.FailedResult(fmt.Errorf("parameter validation failed: %w", err))
	}

	return impl.Call(tc, args)
}
