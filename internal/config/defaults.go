package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8000
	cfg.Server.GRPCPort = 9000
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.RateLimitPerMin = 60

	// LLM defaults
	cfg.LLM.Provider = "groq"
	cfg.LLM.Model = "llama-3.3-70b-versatile"
	cfg.LLM.Temperature = 0.1
	cfg.LLM.MaxTokens = 2048
	cfg.LLM.TimeoutSeconds = 60

	// Agent defaults
	cfg.Agent.MaxTurns = 5

	// Backend defaults
	cfg.Backends.PrometheusURL = "http://localhost:9090"
	cfg.Backends.LokiURL = "http://localhost:3100"
	cfg.Backends.GrafanaURL = "http://localhost:3000"
	cfg.Backends.GrafanaOrgID = 1
	cfg.Backends.TimeoutSeconds = 10
	cfg.Backends.MaxLogLines = 100

	// Database defaults
	cfg.Database.Enabled = true
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLitePath = "aiops-agent.db"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	// Tracing defaults
	cfg.Tracing.SamplingRate = 1.0
	cfg.Tracing.ServiceName = "aiops-agent"

	// Evaluation defaults
	cfg.Evaluation.DatasetPath = "data/News_Category_Dataset_v3.json"
	cfg.Evaluation.APIURL = "http://localhost:8001"
	cfg.Evaluation.SampleSize = 250

	return cfg
}
