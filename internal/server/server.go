// Package server exposes the diagnostic engine over HTTP: the Alertmanager
// webhook, a direct diagnosis endpoint, the journal read API, a websocket
// stream of run events, Prometheus metrics and a gRPC health service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/audit"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/capability"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/journal"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/metrics"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/middleware"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/engine"
)

// Diagnoser runs diagnoses. *engine.Engine implements it.
type Diagnoser interface {
	Diagnose(ctx context.Context, alert string) (*engine.Diagnosis, error)
	Descriptors() []capability.Descriptor
	MaxTurns() int
}

// Config holds the listener settings.
type Config struct {
	Host            string
	Port            int
	GRPCPort        int // 0 disables the gRPC health service
	AllowedOrigins  []string
	RateLimitPerMin int // 0 disables rate limiting of the diagnosis endpoints
}

// Option configures a Server.
type Option func(*Server)

// WithJournal enables the diagnoses read API.
func WithJournal(store journal.Store) Option {
	return func(s *Server) { s.journal = store }
}

// WithMetrics serves /metrics from sink and reports request metrics to it.
func WithMetrics(sink *metrics.Sink) Option {
	return func(s *Server) { s.metrics = sink }
}

// WithAudit records server lifecycle events.
func WithAudit(logger audit.Logger) Option {
	return func(s *Server) { s.audit = logger }
}

// WithEventHub streams run events from hub on /ws/diagnoses. The hub must
// also be registered as engine hooks to receive them.
func WithEventHub(hub *EventHub) Option {
	return func(s *Server) { s.hub = hub }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server is the agent's HTTP and gRPC front end.
type Server struct {
	config  Config
	engine  Diagnoser
	journal journal.Store
	metrics *metrics.Sink
	audit   audit.Logger
	hub     *EventHub
	logger  *zap.Logger

	limiter *middleware.RateLimiter
	handler http.Handler

	// HTTP and gRPC servers
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
	httpAddr   string
	grpcAddr   string

	// Lifecycle
	wg sync.WaitGroup

	// State
	mu      sync.RWMutex
	running bool
}

// New creates a server around eng. Handler is usable immediately; Start
// binds the listeners.
func New(cfg Config, eng Diagnoser, opts ...Option) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("diagnosis engine cannot be nil")
	}

	s := &Server{
		config: cfg,
		engine: eng,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.hub == nil {
		s.hub = NewEventHub(cfg.AllowedOrigins, s.logger)
	}
	if cfg.RateLimitPerMin > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimitPerMin)
	}

	s.handler = s.buildHandler()
	return s, nil
}

// buildHandler assembles routes and middleware:
//
//	tracing → cors → router[request id → recovery → access log → metrics] → (rate limit) → handler
func (s *Server) buildHandler() http.Handler {
	router := mux.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.Recovery(s.logger),
		middleware.AccessLog(s.logger),
		middleware.Metrics(s.metrics),
	)

	// Service endpoints
	router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	// Diagnosis endpoints
	diagnose := router.NewRoute().Subrouter()
	if s.limiter != nil {
		diagnose.Use(s.limiter.Handler)
	}
	diagnose.HandleFunc("/diagnose_alert", s.handleDiagnoseAlert).Methods(http.MethodPost)
	diagnose.HandleFunc("/api/v1/diagnose", s.handleDiagnose).Methods(http.MethodPost)

	// Read API
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/capabilities", s.handleCapabilities).Methods(http.MethodGet)
	api.HandleFunc("/diagnoses", s.handleListDiagnoses).Methods(http.MethodGet)
	api.HandleFunc("/diagnoses/{id}", s.handleGetDiagnosis).Methods(http.MethodGet)

	// Event stream
	router.HandleFunc("/ws/diagnoses", s.hub.ServeWS).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, middleware.TraceIDHeader},
		AllowCredentials: true,
	})
	return middleware.Tracing(c.Handler(router))
}

// Handler returns the complete HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the HTTP listener (and the gRPC listener when configured) and
// serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server is already running")
	}

	httpListener, err := net.Listen("tcp", net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen for HTTP: %w", err)
	}

	var grpcListener net.Listener
	if s.config.GRPCPort > 0 {
		grpcListener, err = net.Listen("tcp", net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.GRPCPort)))
		if err != nil {
			httpListener.Close()
			return fmt.Errorf("failed to listen for gRPC: %w", err)
		}
	}

	s.httpServer = &http.Server{
		Handler:     s.handler,
		ReadTimeout: 30 * time.Second,
		// A diagnosis spans several LLM round trips.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	s.httpAddr = httpListener.Addr().String()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	if grpcListener != nil {
		s.grpcServer = grpc.NewServer(grpc.ConnectionTimeout(30 * time.Second))
		s.health = health.NewServer()
		grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
		s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		s.grpcAddr = grpcListener.Addr().String()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.grpcServer.Serve(grpcListener); err != nil {
				s.logger.Error("gRPC server error", zap.Error(err))
			}
		}()
	}

	s.running = true
	s.metrics.SetServing(true)
	s.logger.Info("server started",
		zap.String("http_addr", s.httpAddr),
		zap.String("grpc_addr", s.grpcAddr),
		zap.Int("capabilities", len(s.engine.Descriptors())),
		zap.Bool("journal", s.journal != nil),
	)
	if s.audit != nil {
		if err := s.audit.LogServerStarted(context.Background(), s.httpAddr); err != nil {
			s.logger.Warn("audit write failed", zap.Error(err))
		}
	}
	return nil
}

// Stop drains in-flight requests, closes websocket clients and stops the
// gRPC server. Diagnoses already running are allowed to finish within ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("stopping server")
	s.metrics.SetServing(false)

	if s.health != nil {
		s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	s.hub.Close()

	var shutdownErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		shutdownErr = fmt.Errorf("HTTP shutdown: %w", err)
		s.logger.Error("error shutting down HTTP server", zap.Error(err))
	}

	if s.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.logger.Warn("gRPC server forced to stop")
			s.grpcServer.Stop()
		}
	}

	s.wg.Wait()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.audit != nil {
		if err := s.audit.LogServerShutdown(context.Background()); err != nil {
			s.logger.Warn("audit write failed", zap.Error(err))
		}
	}

	s.logger.Info("server stopped")
	return shutdownErr
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the bound HTTP address once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.httpAddr
}

// GRPCAddr returns the bound gRPC address, empty when disabled.
func (s *Server) GRPCAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grpcAddr
}
