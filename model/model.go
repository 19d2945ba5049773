package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/zarathustra-ai/awsops-agent/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the
// model. Parameters is a JSON Schema object (minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by the orchestrator.
type Request struct {
	Instructions string           `json:"instructions"` // System prompt
	Contents     []core.Content   `json:"contents"`     // Conversation history
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is one completed model turn: assistant content that carries text,
// function calls, or both.
type Response struct {
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive the reasoning loop.
// Implementations wrap errors with core.Unrecoverable when retrying within
// the loop budget cannot help (authentication failure, bad configuration).
type Model interface {
	Generate(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// TextResponse builds a final-answer response.
func TextResponse(text string) Response {
	return Response{
		Content:      core.NewTextContent("assistant", text),
		FinishReason: "stop",
	}
}

// ToolCallResponse builds a response requesting one function call.
func ToolCallResponse(id, name, arguments string) Response {
	return Response{
		Content: core.Content{
			Role: "assistant",
			Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        id,
				Name:      name,
				Arguments: arguments,
			}}},
		},
		FinishReason: "tool_calls",
	}
}

// mockTurn is one scripted step of a MockModel.
type mockTurn struct {
	resp Response
	err  error
}

// MockModel is a lightweight scripted Model useful for tests. Turns are
// consumed in order; when the script runs out, the last turn repeats, which
// makes "always requests another tool call" behaviors trivial to express.
type MockModel struct {
	mu    sync.Mutex
	turns []mockTurn
	calls int

	// Requests records every request seen, for assertions.
	Requests []Request
}

// NewMockModel constructs an empty MockModel.
func NewMockModel() *MockModel { return &MockModel{} }

// AddTurn appends a scripted response.
func (m *MockModel) AddTurn(resp Response) *MockModel {
	m.turns = append(m.turns, mockTurn{resp: resp})
	return m
}

// AddError appends a scripted error turn.
func (m *MockModel) AddError(err error) *MockModel {
	m.turns = append(m.turns, mockTurn{err: err})
	return m
}

// Calls returns how many times Generate ran.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Generate implements Model by replaying the script.
func (m *MockModel) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.turns) == 0 {
		return Response{}, fmt.Errorf("mock model has no scripted turns")
	}

	idx := m.calls
	if idx >= len(m.turns) {
		idx = len(m.turns) - 1
	}
	m.calls++
	m.Requests = append(m.Requests, req)

	turn := m.turns[idx]
	if turn.err != nil {
		return Response{}, turn.err
	}
	return turn.resp, nil
}

// Info implements Model.
func (m *MockModel) Info() Info {
	return Info{Name: "mock", Provider: "mock", SupportsTools: true}
}
