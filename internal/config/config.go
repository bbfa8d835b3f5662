package config

// Package config provides configuration management for the AIOps agent.
//
// Configuration Sources (priority order, high to low):
//   1. CLI flags (highest priority, applied by the command)
//   2. Environment variables (AIOPS_* prefix, plus the legacy names below)
//   3. YAML config file (default: ./config.yaml)
//   4. .env file, loaded into the environment without overriding it
//   5. Built-in defaults (lowest priority)
//
// Legacy environment variables from earlier deployments are still honored:
//   GROQ_API_KEY, GROQ_MODEL_NAME, PROMETHEUS_URL, LOKI_URL, GRAFANA_URL,
//   OTEL_EXPORTER_OTLP_ENDPOINT
//
// Main Configuration Sections:
//
//   1. Server:     host, port, grpc_port, allowed_origins, rate_limit_per_min
//   2. LLM:        provider (groq | openai | custom), api_key, model, base_url,
//                  temperature, max_tokens, timeout_seconds
//   3. Agent:      max_turns, prompts_file
//   4. Backends:   prometheus_url, loki_url, grafana_url, grafana_org_id,
//                  timeout_seconds, max_log_lines
//   5. Database:   enabled, type (sqlite | postgres), sqlite_path, postgres_url
//   6. Logging:    level, format (json | console), file, audit_file
//   7. Tracing:    endpoint, sampling_rate, service_name
//   8. Evaluation: dataset_path, api_url, sample_size
//
// Only agent.max_turns and logging.level are applied on hot reload.

import (
	"context"
	"time"
)

// Config struct contains all configuration fields
type Config struct {
	// Server configuration
	Server struct {
		Host     string
		Port     int
		GRPCPort int // 0 disables the gRPC health server
		// AllowedOrigins is a list of origins permitted by CORS and the WebSocket upgrader.
		// Use ["*"] to allow any origin (development only).
		AllowedOrigins  []string
		RateLimitPerMin int // 0 disables rate limiting
	}

	// LLM provider configuration
	LLM struct {
		Provider       string
		APIKey         string
		Model          string
		BaseURL        string
		Temperature    float64
		MaxTokens      int
		TimeoutSeconds int
	}

	// Agent loop configuration
	Agent struct {
		MaxTurns    int
		PromptsFile string
	}

	// Observability backends queried by the capabilities
	Backends struct {
		PrometheusURL  string
		LokiURL        string
		GrafanaURL     string
		GrafanaOrgID   int
		TimeoutSeconds int
		MaxLogLines    int
	}

	// Database configuration
	Database struct {
		Enabled     bool
		Type        string
		SQLitePath  string
		PostgresURL string
	}

	// Logging configuration
	Logging struct {
		Level     string
		Format    string
		File      string
		AuditFile string
	}

	// Tracing configuration
	Tracing struct {
		Endpoint     string
		SamplingRate float64
		ServiceName  string
	}

	// Offline evaluation
	Evaluation struct {
		DatasetPath string
		APIURL      string
		SampleSize  int
	}
}

// LLMTimeout is the per-request timeout of the reasoning backend.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// BackendTimeout is the per-call timeout of the capability adapters.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backends.TimeoutSeconds) * time.Second
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches the config file and emits the reloaded configuration.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a configuration manager reading configPath. The
// env files are loaded into the process environment first; ".env" is used
// when none are given.
func NewConfigManager(configPath string, envFiles ...string) (ConfigManager, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	mgr := &viperConfigManager{
		configPath: configPath,
		envFiles:   envFiles,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("config.yaml")
}
