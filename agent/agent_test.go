package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zarathustra-ai/awsops-agent/core"
	"github.com/zarathustra-ai/awsops-agent/model"
	"github.com/zarathustra-ai/awsops-agent/scope"
	"github.com/zarathustra-ai/awsops-agent/tool"
)

// recordingTool captures the arguments and account scope of each call.
type recordingTool struct {
	name    string
	schema  map[string]any
	result  core.ToolResult
	gotArgs []map[string]any
	gotAcct []core.AccountContext
}

func (t *recordingTool) Name() string               { return t.name }
func (t *recordingTool) Description() string        { return "test tool" }
func (t *recordingTool) Parameters() map[string]any { return t.schema }

func (t *recordingTool) Call(tc *tool.Context, args map[string]any) core.ToolResult {
	t.gotArgs = append(t.gotArgs, args)
	t.gotAcct = append(t.gotAcct, tc.Account)
	return t.result
}

func newTestOrchestrator(m model.Model, tools ...tool.Tool) *Orchestrator {
	return New(m, tool.NewRegistry(tools...), scope.NewResolver("us-east-1"))
}

func TestProcessFinalAnswerFirstTurn(t *testing.T) {
	mock := model.NewMockModel().AddTurn(model.TextResponse("the bucket exists"))
	orch := newTestOrchestrator(mock)

	out := orch.Process(context.Background(), core.Request{
		MessageID: "m-1",
		Prompt:    "does the bucket exist?",
	})

	assert.True(t, out.Success)
	assert.Equal(t, "m-1", out.MessageID)
	assert.Equal(t, "the bucket exists", out.Response)
	assert.Equal(t, 1, mock.Calls())
}

func TestProcessToolCallThenAnswer(t *testing.T) {
	rt := &recordingTool{
		name: "s3_list_buckets",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"profile": map[string]any{"type": "string"},
				"region":  map[string]any{"type": "string"},
			},
		},
		result: core.OKResult([]string{"assets", "logs"}),
	}

	mock := model.NewMockModel().
		AddTurn(model.ToolCallResponse("call-1", "s3_list_buckets", `{}`)).
		AddTurn(model.TextResponse("two buckets: assets, logs"))
	orch := newTestOrchestrator(mock, rt)

	out := orch.Process(context.Background(), core.Request{
		MessageID: "m-2",
		Prompt:    "list the buckets",
		Profile:   "prod",
	})

	require.True(t, out.Success)
	assert.Equal(t, "two buckets: assets, logs", out.Response)
	assert.Equal(t, 2, mock.Calls())

	require.Len(t, rt.gotAcct, 1)
	assert.Equal(t, "prod", rt.gotAcct[0].Profile)
	assert.Equal(t, "us-east-1", rt.gotAcct[0].Region, "region falls back to the resolver default")
}

func TestProcessToolFailureFedBack(t *testing.T) {
	rt := &recordingTool{
		name:   "route53_change_record",
		schema: map[string]any{"type": "object", "properties": map[string]any{}},
		result: core.FailedResult(errors.New("AccessDenied: not authorized")),
	}

	mock := model.NewMockModel().
		AddTurn(model.ToolCallResponse("call-1", "route53_change_record", `{}`)).
		AddTurn(model.TextResponse("the account lacks route53 permissions"))
	orch := newTestOrchestrator(mock, rt)

	out := orch.Process(context.Background(), core.Request{MessageID: "m-3", Prompt: "update dns"})

	require.True(t, out.Success)
	require.Equal(t, 2, mock.Calls())

	// The second model request must carry the failure as response data.
	second := mock.Requests[1]
	last := second.Contents[len(second.Contents)-1]
	require.Equal(t, "tool", last.Role)
	fr, ok := last.Parts[0].(core.FunctionResponsePart)
	require.True(t, ok)
	assert.Contains(t, fr.FunctionResponse.Error, "AccessDenied")
}

func TestProcessIterationLimit(t *testing.T) {
	rt := &recordingTool{
		name:   "looping_tool",
		schema: map[string]any{"type": "object", "properties": map[string]any{}},
		result: core.OKResult("more data available"),
	}

	// Single scripted turn repeats forever: the model never settles.
	mock := model.NewMockModel().
		AddTurn(model.ToolCallResponse("call-x", "looping_tool", `{}`))
	orch := New(mock, tool.NewRegistry(rt), scope.NewResolver("us-east-1"), func(o *Options) {
		o.MaxIterations = 4
	})

	out := orch.Process(context.Background(), core.Request{MessageID: "m-4", Prompt: "loop"})

	assert.False(t, out.Success)
	assert.Equal(t, core.KindIterationLimit, out.Kind)
	assert.True(t, out.Retryable())
	assert.Equal(t, 4, mock.Calls())
	assert.Len(t, rt.gotArgs, 4)
}

func TestProcessTransientModelErrorConsumesIteration(t *testing.T) {
	mock := model.NewMockModel().
		AddError(errors.New("rate limited")).
		AddTurn(model.TextResponse("done"))
	orch := newTestOrchestrator(mock)

	out := orch.Process(context.Background(), core.Request{MessageID: "m-5", Prompt: "hi"})

	assert.True(t, out.Success)
	assert.Equal(t, 2, mock.Calls())
}

func TestProcessUnrecoverableModelErrorShortCircuits(t *testing.T) {
	mock := model.NewMockModel().
		AddError(core.Unrecoverable(errors.New("api error: 401 unauthorized"))).
		AddTurn(model.TextResponse("unreachable"))
	orch := newTestOrchestrator(mock)

	out := orch.Process(context.Background(), core.Request{MessageID: "m-6", Prompt: "hi"})

	assert.False(t, out.Success)
	assert.Equal(t, core.KindInternal, out.Kind)
	assert.Contains(t, out.Err, "401")
	assert.Equal(t, 1, mock.Calls())
}

func TestProcessInvalidScope(t *testing.T) {
	mock := model.NewMockModel().AddTurn(model.TextResponse("unreachable"))
	orch := newTestOrchestrator(mock)

	out := orch.Process(context.Background(), core.Request{
		MessageID: "m-7",
		Prompt:    "hi",
		RoleARN:   "not-an-arn",
	})

	assert.False(t, out.Success)
	assert.Equal(t, core.KindInvalidScope, out.Kind)
	assert.False(t, out.Retryable())
	assert.Equal(t, 0, mock.Calls(), "model must not run for an unresolvable scope")
}

func TestProcessTimeout(t *testing.T) {
	mock := model.NewMockModel().AddTurn(model.TextResponse("unreachable"))
	orch := New(mock, tool.NewRegistry(), scope.NewResolver(""), func(o *Options) {
		o.RequestTimeout = time.Nanosecond
	})

	out := orch.Process(context.Background(), core.Request{MessageID: "m-8", Prompt: "hi"})

	assert.False(t, out.Success)
	assert.Equal(t, core.KindTimeout, out.Kind)
	assert.True(t, out.Retryable())
}

func TestProcessCancelled(t *testing.T) {
	mock := model.NewMockModel().AddTurn(model.TextResponse("unreachable"))
	orch := newTestOrchestrator(mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := orch.Process(ctx, core.Request{MessageID: "m-9", Prompt: "hi"})

	assert.False(t, out.Success)
	assert.Equal(t, core.KindCancelled, out.Kind)
}

func TestProcessMalformedToolArguments(t *testing.T) {
	rt := &recordingTool{
		name:   "s3_get_object",
		schema: map[string]any{"type": "object", "properties": map[string]any{}},
		result: core.OKResult("ok"),
	}

	mock := model.NewMockModel().
		AddTurn(model.ToolCallResponse("call-1", "s3_get_object", `{not json`)).
		AddTurn(model.TextResponse("retried with fixed arguments"))
	orch := newTestOrchestrator(mock, rt)

	out := orch.Process(context.Background(), core.Request{MessageID: "m-10", Prompt: "get it"})

	require.True(t, out.Success)
	assert.Empty(t, rt.gotArgs, "tool must not run on undecodable arguments")

	second := mock.Requests[1]
	last := second.Contents[len(second.Contents)-1]
	fr, ok := last.Parts[0].(core.FunctionResponsePart)
	require.True(t, ok)
	assert.Contains(t, fr.FunctionResponse.Error, "invalid tool arguments")
}

func TestSeedPromptIncludesContext(t *testing.T) {
	mock := model.NewMockModel().AddTurn(model.TextResponse("ok"))
	orch := newTestOrchestrator(mock)

	out := orch.Process(context.Background(), core.Request{
		MessageID: "m-11",
		Prompt:    "rotate the secret",
		Profile:   "staging",
		Region:    "eu-west-1",
		Metadata:  map[string]string{"ticket": "OPS-42"},
	})

	require.True(t, out.Success)
	require.Len(t, mock.Requests, 1)

	seed := mock.Requests[0].Contents[0].Text()
	assert.Contains(t, seed, "Context:")
	assert.Contains(t, seed, "- profile: staging")
	assert.Contains(t, seed, "- region: eu-west-1")
	assert.Contains(t, seed, "- ticket: OPS-42")
	assert.Contains(t, seed, fmt.Sprintf("Request: %s", "rotate the secret"))
}

func TestToolDefinitionsStableOrder(t *testing.T) {
	a := &recordingTool{name: "b_tool", schema: map[string]any{"type": "object"}}
	b := &recordingTool{name: "a_tool", schema: map[string]any{"type": "object"}}
	orch := newTestOrchestrator(model.NewMockModel(), a, b)

	defs := orch.toolDefinitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "a_tool", defs[0].Function.Name)
	assert.Equal(t, "b_tool", defs[1].Function.Name)
}
