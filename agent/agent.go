// Package agent implements the per-request reasoning loop: seed the
// conversation from the incoming request, alternate model turns with tool
// execution, and reduce the whole exchange to a single terminal Outcome.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/zarathustra-ai/awsops-agent/core"
	"github.com/zarathustra-ai/awsops-agent/logging"
	"github.com/zarathustra-ai/awsops-agent/model"
	"github.com/zarathustra-ai/awsops-agent/scope"
	"github.com/zarathustra-ai/awsops-agent/tool"
)

// DefaultInstructions is the system prompt used when no override is given.
// It mirrors the operational posture expected from the tool catalog: confirm
// the account scope, pick the right tool, report clearly.
const DefaultInstructions = `You are an AI agent specialized in AWS operations.

You have access to tools that can:
- Manage AWS Secrets Manager (create, read, update, delete secrets)
- Manage Route53 DNS records
- Manage S3 buckets and objects
- And more AWS services

When executing operations:
1. Always confirm the target AWS account (via profile or role_arn)
2. Use the appropriate tool for each operation
3. Report results clearly
4. Handle errors gracefully

Be precise, security-conscious, and efficient.`

// Options configure an Orchestrator.
type Options struct {
	// MaxIterations bounds the number of reason->act cycles per request.
	MaxIterations int

	// RequestTimeout bounds the wall-clock time per request; zero disables
	// the per-request deadline.
	RequestTimeout time.Duration

	// Instructions overrides the default system prompt when non-empty.
	Instructions string

	// Logger receives orchestration progress. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Orchestrator drives one request at a time through its model/tool loop.
// Within a request everything is strictly sequential; concurrency exists
// only across requests, one Orchestrator invocation per worker.
type Orchestrator struct {
	model    model.Model
	tools    *tool.Registry
	resolver *scope.Resolver
	opts     Options
}

// New creates an Orchestrator over the given model, tool catalog and scope
// resolver.
func New(m model.Model, tools *tool.Registry, resolver *scope.Resolver, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		MaxIterations:  15,
		RequestTimeout: 5 * time.Minute,
		Instructions:   DefaultInstructions,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 15
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Instructions == "" {
		opts.Instructions = DefaultInstructions
	}
	return &Orchestrator{model: m, tools: tools, resolver: resolver, opts: opts}
}

// Process resolves the request's account scope and runs the reasoning loop
// until the model produces a final text answer or a budget is exhausted.
// It always returns an Outcome; panics inside the loop degrade to an
// internal-error Outcome rather than killing the worker.
func (o *Orchestrator) Process(ctx context.Context, req core.Request) (out core.Outcome) {
	log := o.opts.Logger

	defer func() {
		if r := recover(); r != nil {
			log.Error("agent.panic",
				"message_id", req.MessageID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			out = core.FailureOutcome(req.MessageID, core.KindInternal, fmt.Errorf("internal error: %v", r))
		}
	}()

	account, err := o.resolver.Resolve(req)
	if err != nil {
		log.Warn("agent.scope_rejected", "message_id", req.MessageID, "error", err.Error())
		return core.FailureOutcome(req.MessageID, core.KindInvalidScope, err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if o.opts.RequestTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.opts.RequestTimeout)
		defer cancel()
	}

	contents := []core.Content{core.NewTextContent("user", o.seedPrompt(req, account))}
	mreq := model.Request{
		Instructions: o.opts.Instructions,
		Tools:        o.toolDefinitions(),
	}

	log.Info("agent.start",
		"message_id", req.MessageID,
		"account", account.String(),
		"tools", o.tools.Len(),
		"max_iterations", o.opts.MaxIterations,
	)

	for iteration := 1; iteration <= o.opts.MaxIterations; iteration++ {
		if err := runCtx.Err(); err != nil {
			return o.budgetOutcome(ctx, req.MessageID)
		}

		mreq.Contents = contents
		resp, err := o.model.Generate(runCtx, mreq)
		if err != nil {
			if runCtx.Err() != nil {
				return o.budgetOutcome(ctx, req.MessageID)
			}
			if core.IsUnrecoverable(err) {
				log.Error("agent.model_unrecoverable", "message_id", req.MessageID, "error", err.Error())
				return core.FailureOutcome(req.MessageID, core.KindInternal, err)
			}
			// Transient model failure: the iteration is spent, the next one
			// retries with unchanged history.
			log.Warn("agent.model_retry",
				"message_id", req.MessageID,
				"iteration", iteration,
				"error", err.Error(),
			)
			continue
		}

		contents = append(contents, resp.Content)

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 {
			answer := resp.Content.Text()
			log.Info("agent.done", "message_id", req.MessageID, "iterations", iteration)
			return core.SuccessOutcome(req.MessageID, answer)
		}

		for _, call := range calls {
			contents = append(contents, o.executeCall(runCtx, req, account, call))
			if runCtx.Err() != nil {
				return o.budgetOutcome(ctx, req.MessageID)
			}
		}
	}

	log.Warn("agent.iteration_limit", "message_id", req.MessageID, "max_iterations", o.opts.MaxIterations)
	return core.FailureOutcome(req.MessageID, core.KindIterationLimit,
		fmt.Errorf("no final answer after %d iterations", o.opts.MaxIterations))
}

// executeCall runs one function call through the tool catalog. All failure
// modes, including malformed arguments, come back as function-response data
// so the model can correct itself on the next turn.
func (o *Orchestrator) executeCall(ctx context.Context, req core.Request, account core.AccountContext, call core.FunctionCall) core.Content {
	log := o.opts.Logger

	args := map[string]any{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			log.Warn("agent.tool_args_invalid", "message_id", req.MessageID, "tool", call.Name, "error", err.Error())
			return core.NewFunctionResponseContent(call.ID, call.Name, nil,
				fmt.Errorf("invalid tool arguments: %w", err))
		}
	}

	tc := tool.NewContext(ctx, account, call.ID, log)
	result := o.tools.Execute(tc, call.Name, args)
	if result.Success {
		return core.NewFunctionResponseContent(call.ID, call.Name, result.Data, nil)
	}
	return core.NewFunctionResponseContent(call.ID, call.Name, nil, errors.New(result.Error))
}

// budgetOutcome distinguishes upstream cancellation (shutdown, worker
// teardown) from the request's own deadline firing.
func (o *Orchestrator) budgetOutcome(parent context.Context, messageID string) core.Outcome {
	if parent.Err() != nil {
		return core.FailureOutcome(messageID, core.KindCancelled, errors.New("request cancelled"))
	}
	return core.FailureOutcome(messageID, core.KindTimeout,
		fmt.Errorf("request exceeded %s time budget", o.opts.RequestTimeout))
}

// seedPrompt builds the initial user turn: the request text, prefixed by
// context lines for the resolved account scope and any request metadata.
func (o *Orchestrator) seedPrompt(req core.Request, account core.AccountContext) string {
	lines := account.PromptLines()

	if len(req.Metadata) > 0 {
		keys := make([]string, 0, len(req.Metadata))
		for k := range req.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("- %s: %s", k, req.Metadata[k]))
		}
	}

	if len(lines) == 0 {
		return req.Prompt
	}
	return fmt.Sprintf("Context:\n%s\n\nRequest: %s", strings.Join(lines, "\n"), req.Prompt)
}

// toolDefinitions projects the catalog into model-facing declarations in a
// stable order so prompts are reproducible across runs.
func (o *Orchestrator) toolDefinitions() []model.ToolDefinition {
	tools := o.tools.All()
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })

	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
