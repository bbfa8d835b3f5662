package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix namespaces every environment override: AIOPS_LLM_API_KEY, AIOPS_AGENT_MAX_TURNS, ...
const envPrefix = "AIOPS"

// legacyEnv maps config keys to the environment variables the first
// deployment of the agent used. The AIOPS_* name wins when both are set.
var legacyEnv = map[string]string{
	"llm.api_key":             "GROQ_API_KEY",
	"llm.model":               "GROQ_MODEL_NAME",
	"backends.prometheus_url": "PROMETHEUS_URL",
	"backends.loki_url":       "LOKI_URL",
	"backends.grafana_url":    "GRAFANA_URL",
	"tracing.endpoint":        "OTEL_EXPORTER_OTLP_ENDPOINT",
}

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	envFiles   []string
	v          *viper.Viper

	mu     sync.RWMutex
	config *Config

	watchOnce sync.Once
	watchChan chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	if err := m.loadEnvFiles(); err != nil {
		return err
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(m.configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		// BindEnv checks the names in order, so the prefixed variable takes precedence.
		if err := v.BindEnv(key, envName(key), legacy); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and environment still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config file %s: %w", m.configPath, err)
		}
	}

	cfg := unmarshalConfig(v)

	m.mu.Lock()
	m.v = v
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// loadEnvFiles exports .env entries that are not already set in the environment.
func (m *viperConfigManager) loadEnvFiles() error {
	for _, path := range m.envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Validate validates the current configuration.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.Get(ctx).Validate()
	if len(errs) == 0 {
		return nil
	}

	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Watch emits the reloaded configuration each time the config file changes.
// Invalid reloads are dropped and the previous configuration stays active.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.watchOnce.Do(func() {
		m.mu.RLock()
		v := m.v
		m.mu.RUnlock()
		if v == nil {
			return
		}

		v.OnConfigChange(func(e fsnotify.Event) {
			if ctx.Err() != nil {
				return
			}
			next := unmarshalConfig(v)
			if len(next.Validate()) > 0 {
				return
			}
			m.mu.Lock()
			m.config = next
			m.mu.Unlock()

			// Drop a stale pending update so the consumer always sees the latest.
			select {
			case <-m.watchChan:
			default:
			}
			select {
			case m.watchChan <- *next:
			default:
			}
		})
		v.WatchConfig()
	})
	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	return m.Load(ctx)
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// setDefaults registers every default so AutomaticEnv can resolve all keys.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.grpc_port", d.Server.GRPCPort)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.rate_limit_per_min", d.Server.RateLimitPerMin)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout_seconds", d.LLM.TimeoutSeconds)

	v.SetDefault("agent.max_turns", d.Agent.MaxTurns)
	v.SetDefault("agent.prompts_file", d.Agent.PromptsFile)

	v.SetDefault("backends.prometheus_url", d.Backends.PrometheusURL)
	v.SetDefault("backends.loki_url", d.Backends.LokiURL)
	v.SetDefault("backends.grafana_url", d.Backends.GrafanaURL)
	v.SetDefault("backends.grafana_org_id", d.Backends.GrafanaOrgID)
	v.SetDefault("backends.timeout_seconds", d.Backends.TimeoutSeconds)
	v.SetDefault("backends.max_log_lines", d.Backends.MaxLogLines)

	v.SetDefault("database.enabled", d.Database.Enabled)
	v.SetDefault("database.type", d.Database.Type)
	v.SetDefault("database.sqlite_path", d.Database.SQLitePath)
	v.SetDefault("database.postgres_url", d.Database.PostgresURL)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.audit_file", d.Logging.AuditFile)

	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.sampling_rate", d.Tracing.SamplingRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	v.SetDefault("evaluation.dataset_path", d.Evaluation.DatasetPath)
	v.SetDefault("evaluation.api_url", d.Evaluation.APIURL)
	v.SetDefault("evaluation.sample_size", d.Evaluation.SampleSize)
}

func unmarshalConfig(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.GRPCPort = v.GetInt("server.grpc_port")
	cfg.Server.AllowedOrigins = splitList(v.GetStringSlice("server.allowed_origins"))
	cfg.Server.RateLimitPerMin = v.GetInt("server.rate_limit_per_min")

	cfg.LLM.Provider = strings.ToLower(v.GetString("llm.provider"))
	cfg.LLM.APIKey = v.GetString("llm.api_key")
	cfg.LLM.Model = v.GetString("llm.model")
	cfg.LLM.BaseURL = v.GetString("llm.base_url")
	cfg.LLM.Temperature = v.GetFloat64("llm.temperature")
	cfg.LLM.MaxTokens = v.GetInt("llm.max_tokens")
	cfg.LLM.TimeoutSeconds = v.GetInt("llm.timeout_seconds")

	cfg.Agent.MaxTurns = v.GetInt("agent.max_turns")
	cfg.Agent.PromptsFile = v.GetString("agent.prompts_file")

	cfg.Backends.PrometheusURL = v.GetString("backends.prometheus_url")
	cfg.Backends.LokiURL = v.GetString("backends.loki_url")
	cfg.Backends.GrafanaURL = v.GetString("backends.grafana_url")
	cfg.Backends.GrafanaOrgID = v.GetInt("backends.grafana_org_id")
	cfg.Backends.TimeoutSeconds = v.GetInt("backends.timeout_seconds")
	cfg.Backends.MaxLogLines = v.GetInt("backends.max_log_lines")

	cfg.Database.Enabled = v.GetBool("database.enabled")
	cfg.Database.Type = strings.ToLower(v.GetString("database.type"))
	cfg.Database.SQLitePath = v.GetString("database.sqlite_path")
	cfg.Database.PostgresURL = v.GetString("database.postgres_url")

	cfg.Logging.Level = strings.ToLower(v.GetString("logging.level"))
	cfg.Logging.Format = strings.ToLower(v.GetString("logging.format"))
	cfg.Logging.File = v.GetString("logging.file")
	cfg.Logging.AuditFile = v.GetString("logging.audit_file")

	cfg.Tracing.Endpoint = v.GetString("tracing.endpoint")
	cfg.Tracing.SamplingRate = v.GetFloat64("tracing.sampling_rate")
	cfg.Tracing.ServiceName = v.GetString("tracing.service_name")

	cfg.Evaluation.DatasetPath = v.GetString("evaluation.dataset_path")
	cfg.Evaluation.APIURL = v.GetString("evaluation.api_url")
	cfg.Evaluation.SampleSize = v.GetInt("evaluation.sample_size")

	return cfg
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
