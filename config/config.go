// Package config loads environment-driven settings for the AWS ops agent.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServerConfig is one registered MCP tool server in the process-wide catalog.
type ServerConfig struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	AuthToken string `json:"auth_token,omitempty"`
}

// Config stores environment-driven settings for the service.
type Config struct {
	// QueueURL is the SQS queue to consume requests from.
	QueueURL string `env:"SQS_QUEUE_URL"`
	// AWSRegion is the region of the SQS client and the default region fallback.
	AWSRegion string `env:"AWS_REGION" envDefault:"us-east-1"`
	// MaxMessages is the per-poll receive batch size (1-10 per SQS limits).
	MaxMessages int32 `env:"SQS_MAX_MESSAGES" envDefault:"10"`
	// WaitTime is the long-poll wait in seconds.
	WaitTime int32 `env:"SQS_WAIT_TIME" envDefault:"20"`
	// VisibilityTimeout is the initial message lease in seconds.
	VisibilityTimeout int32 `env:"SQS_VISIBILITY_TIMEOUT" envDefault:"300"`
	// MaxWorkers bounds concurrent request processing.
	MaxWorkers int `env:"MAX_WORKERS" envDefault:"5"`
	// PollInterval is the idle sleep between empty polls.
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`

	// MaxIterations bounds reasoning/tool-call turns per request.
	MaxIterations int `env:"AGENT_MAX_ITERATIONS" envDefault:"15"`
	// RequestTimeout is the wall-clock budget for one request's full loop.
	RequestTimeout time.Duration `env:"AGENT_REQUEST_TIMEOUT" envDefault:"5m"`
	// ToolTimeout bounds a single tool invocation.
	ToolTimeout time.Duration `env:"AGENT_TOOL_TIMEOUT" envDefault:"60s"`

	// ModelProvider selects the reasoning backend: "anthropic" or "openai".
	ModelProvider string `env:"MODEL_PROVIDER" envDefault:"openai"`
	// ModelID overrides the provider's default model identifier.
	ModelID string `env:"MODEL_ID"`

	// CallbackTimeout bounds a single callback delivery attempt.
	CallbackTimeout time.Duration `env:"CALLBACK_TIMEOUT" envDefault:"30s"`
	// CallbackMaxAttempts bounds delivery retries (including the first).
	CallbackMaxAttempts int `env:"CALLBACK_MAX_ATTEMPTS" envDefault:"5"`

	// MCPServers is the JSON-encoded tool server catalog, e.g.
	// [{"name":"aws-ops","url":"https://mcp.internal","auth_token":"..."}]
	MCPServers string `env:"MCP_SERVERS"`
	// AWSOpsURL / AWSOpsToken configure the default "aws-ops" server when
	// MCPServers is not set.
	AWSOpsURL   string `env:"MCP_AWS_OPS_URL"`
	AWSOpsToken string `env:"MCP_AWS_OPS_TOKEN"`

	// LogLevel sets the logger level.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// LogFormat selects json or text output.
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses environment variables into Config and validates the result.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings and bounds.
func (c Config) Validate() error {
	if c.QueueURL == "" {
		return errors.New("missing required environment variable: SQS_QUEUE_URL")
	}
	if c.MaxMessages < 1 || c.MaxMessages > 10 {
		return fmt.Errorf("SQS_MAX_MESSAGES must be 1-10, got %d", c.MaxMessages)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("MAX_WORKERS must be positive, got %d", c.MaxWorkers)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("AGENT_MAX_ITERATIONS must be positive, got %d", c.MaxIterations)
	}
	if c.ModelProvider != "anthropic" && c.ModelProvider != "openai" {
		return fmt.Errorf("MODEL_PROVIDER must be anthropic or openai, got %q", c.ModelProvider)
	}
	return nil
}

// Servers decodes the MCP server catalog. The explicit MCP_SERVERS JSON wins;
// otherwise the single aws-ops server is built from MCP_AWS_OPS_URL. An empty
// catalog is a configuration error: the agent has no tools without servers.
func (c Config) Servers() ([]ServerConfig, error) {
	if c.MCPServers != "" {
		var servers []ServerConfig
		if err := json.Unmarshal([]byte(c.MCPServers), &servers); err != nil {
			return nil, fmt.Errorf("invalid MCP_SERVERS: %w", err)
		}
		for i, s := range servers {
			if s.Name == "" || s.URL == "" {
				return nil, fmt.Errorf("MCP_SERVERS[%d]: name and url are required", i)
			}
		}
		return servers, nil
	}

	if c.AWSOpsURL != "" {
		return []ServerConfig{{Name: "aws-ops", URL: c.AWSOpsURL, AuthToken: c.AWSOpsToken}}, nil
	}

	return nil, errors.New("no MCP servers configured (set MCP_SERVERS or MCP_AWS_OPS_URL)")
}
