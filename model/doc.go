// Package model defines the reasoning-engine abstraction driving the
// tool-calling loop, plus vendor-neutral request/response types. Concrete
// backends live in the anthropic and openai subpackages; tests use the
// scripted MockModel.
//
// The Model interface is deliberately synchronous: the orchestration loop is
// strictly sequential per request (every tool result is observed before the
// next reasoning step), so a single Response per call is the honest contract.
package model
