package config

import (
	"fmt"
	"net/url"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// MaxAgentTurns bounds agent.max_turns.
const MaxAgentTurns = 50

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.grpc_port",
			Message: fmt.Sprintf("grpc_port must be between 0 and 65535, got %d", c.Server.GRPCPort),
		})
	} else if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.Port {
		errs = append(errs, &ValidationError{
			Field:   "server.grpc_port",
			Message: "grpc_port must differ from port",
		})
	}
	if c.Server.RateLimitPerMin < 0 {
		errs = append(errs, &ValidationError{
			Field:   "server.rate_limit_per_min",
			Message: fmt.Sprintf("rate_limit_per_min cannot be negative, got %d", c.Server.RateLimitPerMin),
		})
	}

	// Validate LLM configuration
	validProviders := map[string]bool{
		"groq":   true,
		"openai": true,
		"custom": true,
	}
	if !validProviders[c.LLM.Provider] {
		errs = append(errs, &ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: groq, openai, custom", c.LLM.Provider),
		})
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, &ValidationError{
			Field:   "llm.api_key",
			Message: "API key is required (set GROQ_API_KEY or AIOPS_LLM_API_KEY)",
		})
	}
	if c.LLM.Provider == "custom" && c.LLM.BaseURL == "" {
		errs = append(errs, &ValidationError{
			Field:   "llm.base_url",
			Message: "base_url is required for the custom provider",
		})
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, &ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("temperature must be between 0 and 2, got %.2f", c.LLM.Temperature),
		})
	}
	if c.LLM.MaxTokens < 1 {
		errs = append(errs, &ValidationError{
			Field:   "llm.max_tokens",
			Message: fmt.Sprintf("max_tokens must be at least 1, got %d", c.LLM.MaxTokens),
		})
	}
	if c.LLM.TimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "llm.timeout_seconds",
			Message: fmt.Sprintf("timeout must be at least 1 second, got %d", c.LLM.TimeoutSeconds),
		})
	}

	// Validate agent configuration
	if c.Agent.MaxTurns < 1 || c.Agent.MaxTurns > MaxAgentTurns {
		errs = append(errs, &ValidationError{
			Field:   "agent.max_turns",
			Message: fmt.Sprintf("max_turns must be between 1 and %d, got %d", MaxAgentTurns, c.Agent.MaxTurns),
		})
	}

	// Validate backend configuration. An empty URL disables the capability.
	for field, raw := range map[string]string{
		"backends.prometheus_url": c.Backends.PrometheusURL,
		"backends.loki_url":       c.Backends.LokiURL,
		"backends.grafana_url":    c.Backends.GrafanaURL,
	} {
		if raw == "" {
			continue
		}
		if err := validateHTTPURL(raw); err != nil {
			errs = append(errs, &ValidationError{Field: field, Message: err.Error()})
		}
	}
	if c.Backends.TimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "backends.timeout_seconds",
			Message: fmt.Sprintf("timeout must be at least 1 second, got %d", c.Backends.TimeoutSeconds),
		})
	}
	if c.Backends.MaxLogLines < 1 {
		errs = append(errs, &ValidationError{
			Field:   "backends.max_log_lines",
			Message: fmt.Sprintf("max_log_lines must be at least 1, got %d", c.Backends.MaxLogLines),
		})
	}

	// Validate database configuration
	if c.Database.Enabled {
		switch c.Database.Type {
		case "sqlite":
			if c.Database.SQLitePath == "" {
				errs = append(errs, &ValidationError{
					Field:   "database.sqlite_path",
					Message: "sqlite_path is required when type is sqlite",
				})
			}
		case "postgres":
			if c.Database.PostgresURL == "" {
				errs = append(errs, &ValidationError{
					Field:   "database.postgres_url",
					Message: "postgres_url is required when type is postgres",
				})
			}
		default:
			errs = append(errs, &ValidationError{
				Field:   "database.type",
				Message: fmt.Sprintf("invalid type '%s', must be one of: sqlite, postgres", c.Database.Type),
			})
		}
	}

	// Validate logging configuration
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format '%s', must be json or console", c.Logging.Format),
		})
	}

	// Validate tracing configuration
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, &ValidationError{
			Field:   "tracing.sampling_rate",
			Message: fmt.Sprintf("sampling_rate must be between 0 and 1, got %.2f", c.Tracing.SamplingRate),
		})
	}

	// Validate evaluation configuration
	if c.Evaluation.SampleSize < 1 {
		errs = append(errs, &ValidationError{
			Field:   "evaluation.sample_size",
			Message: fmt.Sprintf("sample_size must be at least 1, got %d", c.Evaluation.SampleSize),
		})
	}

	return errs
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %q", raw)
	}
	return nil
}
