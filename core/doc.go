// Package core provides the foundational domain types used by the AWS ops
// agent. It defines:
//
//   - Requests (one inbound unit of work pulled from the queue)
//   - Account contexts (the profile/role/region scope of privileged calls)
//   - Conversation content (role-based parts: text, function calls, responses)
//   - Tool results (success-or-failure data fed back to the reasoning step)
//   - Outcomes (the single terminal result of processing one request)
//   - The error taxonomy shared across the pipeline
//
// The package intentionally keeps implementation concerns (queue transport,
// model backends, tool invocation) out of scope, exposing small value types
// so the processing pipeline stays decoupled.
package core
