// Package mcpclient connects to remote MCP tool servers and executes named
// tools on them.
//
// The package exposes two pieces:
//
//   - Registry: the process-wide, read-mostly catalog of registered servers
//     (name, endpoint, auth token), built once at startup and safe for
//     concurrent reads; reconfiguration happens via atomic swap.
//   - Client: invokes tools over the MCP streamable HTTP transport. Transport
//     failures and remote tool errors are returned as failed ToolResults,
//     never as Go errors, because the orchestration loop feeds them back to
//     the reasoning step as data. The client never retries: blind retries of
//     a mutating operation are unsafe, so retry policy belongs to the layers
//     above.
package mcpclient
