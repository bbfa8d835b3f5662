package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/audit"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/capability"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/config"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/journal"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/llm/adapter"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/logging"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/metrics"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/engine"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/prompt"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/server"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/tracing"
)

// app holds the components shared by the commands. Fields are populated
// progressively: loadApp gives config and logging, buildEngine the rest.
type app struct {
	configPath string
	manager    config.ConfigManager
	cfg        *config.Config
	logger     *zap.Logger
	level      zap.AtomicLevel

	audit   audit.Logger
	metrics *metrics.Sink
	journal journal.Store
	hub     *server.EventHub
	backend *adapter.Backend
	engine  *engine.Engine

	closers []func(context.Context) error
}

// loadApp loads configuration and builds the loggers.
func loadApp(ctx context.Context, opts *rootOptions) (*app, error) {
	manager, err := config.NewConfigManager(opts.configPath, opts.envFiles...)
	if err != nil {
		return nil, err
	}
	if err := manager.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := manager.Get(ctx)
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.File = cfg.Logging.File
	logger, level, err := logging.NewWithLevel(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{configPath: opts.configPath, manager: manager, cfg: cfg, logger: logger, level: level}
	a.closers = append(a.closers, func(context.Context) error {
		_ = logger.Sync()
		return nil
	})
	return a, nil
}

// buildRegistry registers every capability whose backend URL is configured.
func (a *app) buildRegistry() (*capability.Registry, error) {
	b := a.cfg.Backends
	var caps []capability.Capability

	if b.PrometheusURL != "" {
		prom, err := capability.NewMetricsQuery(b.PrometheusURL, a.cfg.BackendTimeout(), a.logger.Named("prometheus"))
		if err != nil {
			return nil, err
		}
		caps = append(caps, prom)
	}
	if b.LokiURL != "" {
		loki, err := capability.NewLogQuery(b.LokiURL, a.cfg.BackendTimeout(), b.MaxLogLines, a.logger.Named("loki"))
		if err != nil {
			return nil, err
		}
		caps = append(caps, loki)
	}
	if b.GrafanaURL != "" {
		caps = append(caps, capability.NewDashboardLink(b.GrafanaURL, b.GrafanaOrgID))
	}
	if len(caps) == 0 {
		a.logger.Warn("no observability backend configured, diagnoses will rely on the alert text alone")
	}
	return capability.NewRegistry(caps...)
}

// buildEngine validates the configuration and wires the diagnosis engine
// with its observers. withServer also creates the websocket event hub.
func (a *app) buildEngine(ctx context.Context, withServer bool) error {
	if err := a.manager.Validate(ctx); err != nil {
		return err
	}
	cfg := a.cfg

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  cfg.Tracing.ServiceName,
		Endpoint:     cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	a.metrics = metrics.New()
	hooks := engine.MultiHooks{a.metrics}

	if cfg.Logging.AuditFile != "" {
		auditCfg := audit.DefaultConfig()
		auditCfg.AuditLogPath = cfg.Logging.AuditFile
		a.audit, err = audit.NewLogger(auditCfg, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create audit logger: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return a.audit.Close() })
		hooks = append(hooks, audit.NewObserver(a.audit, a.logger))
		if err := a.audit.LogConfigLoaded(ctx, a.configPath); err != nil {
			a.logger.Warn("audit write failed", zap.Error(err))
		}
	}

	if cfg.Database.Enabled {
		a.journal, err = journal.Open(journal.Config{
			Type:        cfg.Database.Type,
			SQLitePath:  cfg.Database.SQLitePath,
			PostgresURL: cfg.Database.PostgresURL,
		})
		if err != nil {
			return fmt.Errorf("failed to open diagnosis journal: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return a.journal.Close() })
		// Closers run in reverse, so queued records drain before the store closes.
		recorder := journal.NewRecorder(a.journal, a.logger)
		a.closers = append(a.closers, func(context.Context) error { return recorder.Close() })
		hooks = append(hooks, recorder)
	}

	if withServer {
		a.hub = server.NewEventHub(cfg.Server.AllowedOrigins, a.logger.Named("ws"),
			server.WithConnectionGauge(a.metrics.WebSocketConnections))
		hooks = append(hooks, a.hub)
	}

	registry, err := a.buildRegistry()
	if err != nil {
		return fmt.Errorf("failed to register capabilities: %w", err)
	}

	backendOpts := []adapter.Option{
		adapter.WithObserver(a.metrics),
		adapter.WithLogger(a.logger.Named("llm")),
	}
	if counter, err := adapter.NewTokenCounter(cfg.LLM.Model); err != nil {
		a.logger.Warn("token counter unavailable, prompt sizes are not estimated", zap.Error(err))
	} else {
		backendOpts = append(backendOpts, adapter.WithTokenCounter(counter))
	}
	a.backend, err = adapter.New(adapter.Config{
		Provider:    adapter.ProviderType(cfg.LLM.Provider),
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLMTimeout(),
	}, backendOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM backend: %w", err)
	}
	a.metrics.SetModel(a.backend.Model())

	prompts := prompt.NewManager()
	if cfg.Agent.PromptsFile != "" {
		prompts, err = prompt.LoadFile(cfg.Agent.PromptsFile)
		if err != nil {
			return err
		}
	}

	a.engine, err = engine.New(a.backend, registry,
		engine.WithMaxTurns(cfg.Agent.MaxTurns),
		engine.WithPrompts(prompts),
		engine.WithHooks(hooks...),
		engine.WithLogger(a.logger.Named("engine")),
	)
	if err != nil {
		return err
	}

	a.logger.Info("diagnosis engine ready",
		zap.String("provider", string(a.backend.Provider())),
		zap.String("model", a.backend.Model()),
		zap.Strings("capabilities", registry.Names()),
		zap.Int("max_turns", a.engine.MaxTurns()),
		zap.Bool("journal", a.journal != nil),
	)
	return nil
}

// watchConfig applies hot-reloadable settings until ctx is done.
func (a *app) watchConfig(ctx context.Context) {
	updates := a.manager.Watch(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(ctx, cfg)
			}
		}
	}()
}

func (a *app) applyConfig(ctx context.Context, cfg config.Config) {
	if a.engine != nil && cfg.Agent.MaxTurns != a.engine.MaxTurns() {
		a.engine.SetMaxTurns(cfg.Agent.MaxTurns)
		a.logger.Info("max turns updated", zap.Int("max_turns", cfg.Agent.MaxTurns))
	}
	if lvl, err := logging.ParseLevel(cfg.Logging.Level); err == nil && lvl != a.level.Level() {
		a.level.SetLevel(lvl)
		a.logger.Info("log level updated", zap.String("level", lvl.String()))
	}
	if a.audit != nil {
		event := audit.NewEvent(audit.EventConfigChanged).
			WithDescription("configuration reloaded").
			WithMetadata("max_turns", cfg.Agent.MaxTurns).
			WithMetadata("log_level", cfg.Logging.Level)
		if err := a.audit.Log(ctx, event); err != nil {
			a.logger.Warn("audit write failed", zap.Error(err))
		}
	}
}

// close releases everything in reverse order of creation.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
