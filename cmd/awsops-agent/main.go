// Command awsops-agent runs the queue-driven AWS operations agent: it
// consumes natural-language operation requests from SQS, resolves them with
// a tool-calling model against remote MCP tool servers, and posts results to
// caller-supplied callback URLs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/zarathustra-ai/awsops-agent/agent"
	"github.com/zarathustra-ai/awsops-agent/config"
	"github.com/zarathustra-ai/awsops-agent/dispatch"
	"github.com/zarathustra-ai/awsops-agent/listener"
	"github.com/zarathustra-ai/awsops-agent/logging"
	"github.com/zarathustra-ai/awsops-agent/mcpclient"
	"github.com/zarathustra-ai/awsops-agent/model"
	"github.com/zarathustra-ai/awsops-agent/model/anthropic"
	"github.com/zarathustra-ai/awsops-agent/model/openai"
	"github.com/zarathustra-ai/awsops-agent/scope"
	"github.com/zarathustra-ai/awsops-agent/tool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "awsops-agent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(func(o *logging.Options) {
		o.Level = logging.ParseLevel(cfg.LogLevel)
		o.Format = cfg.LogFormat
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg)

	servers, err := cfg.Servers()
	if err != nil {
		return fmt.Errorf("parse mcp servers: %w", err)
	}
	registered := make([]mcpclient.Server, 0, len(servers))
	for _, s := range servers {
		registered = append(registered, mcpclient.Server{
			Name:      s.Name,
			URL:       s.URL,
			AuthToken: s.AuthToken,
		})
	}
	registry := mcpclient.NewRegistry(registered...)

	mcp := mcpclient.New(registry, func(o *mcpclient.Options) {
		o.Logger = logger
	})
	defer mcp.Close()

	tools, err := discoverTools(ctx, mcp, registry, cfg.ToolTimeout, logger)
	if err != nil {
		return err
	}
	logger.Info("tools.discovered", "count", tools.Len(), "servers", registry.Names())

	mdl, err := buildModel(cfg)
	if err != nil {
		return err
	}
	logger.Info("model.selected", "provider", mdl.Info().Provider, "name", mdl.Info().Name)

	orchestrator := agent.New(mdl, tools, scope.NewResolver(cfg.AWSRegion), func(o *agent.Options) {
		o.MaxIterations = cfg.MaxIterations
		o.RequestTimeout = cfg.RequestTimeout
		o.Logger = logger
	})

	dispatcher := dispatch.New(func(o *dispatch.Options) {
		o.Timeout = cfg.CallbackTimeout
		o.MaxAttempts = cfg.CallbackMaxAttempts
		o.Logger = logger
	})

	l := listener.New(sqsClient, cfg.QueueURL, orchestrator, dispatcher, func(o *listener.Options) {
		o.MaxMessages = cfg.MaxMessages
		o.WaitTime = cfg.WaitTime
		o.VisibilityTimeout = cfg.VisibilityTimeout
		o.MaxWorkers = cfg.MaxWorkers
		o.PollInterval = cfg.PollInterval
		o.Logger = logger
	})

	logger.Info("awsops-agent.start", "queue_url", cfg.QueueURL, "region", cfg.AWSRegion)
	if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("listener: %w", err)
	}
	logger.Info("awsops-agent.stopped")
	return nil
}

// discoverTools lists every registered server's tools and wraps them in the
// catalog used by the reasoning loop. A server that cannot be reached at
// startup is fatal: running with a silently incomplete catalog would make
// requests fail in confusing ways later.
func discoverTools(ctx context.Context, mcp *mcpclient.Client, registry *mcpclient.Registry, toolTimeout time.Duration, logger logging.Logger) (*tool.Registry, error) {
	catalog := tool.NewRegistry()

	for _, name := range registry.Names() {
		remote, err := mcp.ListTools(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("list tools on %q: %w", name, err)
		}
		for _, rt := range remote {
			catalog.Register(tool.NewMCPTool(rt.Server, rt.Name, rt.Description, rt.Schema, mcp, toolTimeout))
		}
		logger.Info("tools.listed", "server", name, "count", len(remote))
	}

	if catalog.Len() == 0 {
		return nil, errors.New("no tools discovered on any server")
	}
	return catalog, nil
}

// buildModel selects the model backend from configuration. API keys come
// from the provider SDKs' own environment conventions.
func buildModel(cfg config.Config) (model.Model, error) {
	switch cfg.ModelProvider {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.ModelID != "" {
				o.Model = anthropicsdk.Model(cfg.ModelID)
			}
		}), nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.ModelID != "" {
				o.Model = cfg.ModelID
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.ModelProvider)
	}
}
