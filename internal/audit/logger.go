package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/logging"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// Diagnosis lifecycle
	LogDiagnosisStarted(ctx context.Context, runID, alert string) error
	LogDiagnosisCompleted(ctx context.Context, runID, outcome string, turns int, duration time.Duration) error
	LogDiagnosisFailed(ctx context.Context, runID string, err error) error

	// LogCapabilityInvoked logs one capability dispatch
	LogCapabilityInvoked(ctx context.Context, runID, capability, status string, duration time.Duration, err error) error

	// Configuration and process lifecycle
	LogConfigLoaded(ctx context.Context, path string) error
	LogServerStarted(ctx context.Context, addr string) error
	LogServerShutdown(ctx context.Context) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// BufferSize is the number of events held before a forced flush
	BufferSize int

	// FlushInterval is the period of the background flush
	FlushInterval time.Duration
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath:  "logs/audit.log",
		MaxSize:       100, // megabytes
		MaxBackups:    10,
		MaxAge:        30, // days
		Compress:      true,
		BufferSize:    100,
		FlushInterval: time.Second,
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
}

// NewLogger creates a new audit logger writing to config.AuditLogPath.
// appLogger receives the logger's own failures and may be nil.
func NewLogger(config *Config, appLogger *zap.Logger) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AuditLogPath == "" {
		return nil, errors.New("audit log path is required")
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}
	if appLogger == nil {
		appLogger = zap.NewNop()
	}

	// Audit logs are always INFO level, append-only
	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(logging.EncoderConfig()),
		logging.RotatingWriter(config.AuditLogPath, logging.Config{
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}),
		zapcore.InfoLevel,
	)

	logger := &auditLogger{
		appLogger:   appLogger.Named("audit"),
		auditLogger: zap.New(auditCore),
		config:      config,
		buffer:      make([]*Event, 0, config.BufferSize),
		flushTicker: time.NewTicker(config.FlushInterval),
		stopCh:      make(chan struct{}),
	}

	// Start auto-flush goroutine
	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	if event.CorrelationID == "" {
		event.CorrelationID = GetCorrelationID(ctx)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= l.config.BufferSize {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogDiagnosisStarted logs when a run starts
func (l *auditLogger) LogDiagnosisStarted(ctx context.Context, runID, alert string) error {
	event := NewEvent(EventDiagnosisStarted).
		WithRun(runID, alert).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("Diagnosis %s started", runID))

	return l.Log(ctx, event)
}

// LogDiagnosisCompleted logs when a run produces a result
func (l *auditLogger) LogDiagnosisCompleted(ctx context.Context, runID, outcome string, turns int, duration time.Duration) error {
	event := NewEvent(EventDiagnosisCompleted).
		WithRun(runID, "").
		WithOutcome(outcome).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("turns", turns).
		WithDescription(fmt.Sprintf("Diagnosis %s completed", runID))

	return l.Log(ctx, event)
}

// LogDiagnosisFailed logs a pipeline failure
func (l *auditLogger) LogDiagnosisFailed(ctx context.Context, runID string, err error) error {
	event := NewEvent(EventDiagnosisFailed).
		WithRun(runID, "").
		WithError(err, "diagnosis_error").
		WithDescription(fmt.Sprintf("Diagnosis %s failed", runID))

	return l.Log(ctx, event)
}

// LogCapabilityInvoked logs one dispatch. A failed invocation is still a
// successful dispatch from the run's point of view, so err only annotates it.
func (l *auditLogger) LogCapabilityInvoked(ctx context.Context, runID, capability, status string, duration time.Duration, err error) error {
	event := NewEvent(EventCapabilityInvoked).
		WithRun(runID, "").
		WithCapability(capability, status).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("Capability %s invoked", capability))
	if err != nil {
		event.WithError(err, status)
	}

	return l.Log(ctx, event)
}

// LogConfigLoaded logs the configuration source
func (l *auditLogger) LogConfigLoaded(ctx context.Context, path string) error {
	event := NewEvent(EventConfigLoaded).
		WithResult(ResultSuccess).
		WithMetadata("path", path).
		WithDescription("Configuration loaded")

	return l.Log(ctx, event)
}

// LogServerStarted logs the listening address
func (l *auditLogger) LogServerStarted(ctx context.Context, addr string) error {
	event := NewEvent(EventServerStarted).
		WithResult(ResultSuccess).
		WithMetadata("addr", addr).
		WithDescription(fmt.Sprintf("Server listening on %s", addr))

	return l.Log(ctx, event)
}

// LogServerShutdown logs a graceful shutdown
func (l *auditLogger) LogServerShutdown(ctx context.Context) error {
	event := NewEvent(EventServerShutdown).
		WithResult(ResultSuccess).
		WithDescription("Server shutting down")

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	return l.auditLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopCh)
		l.flushTicker.Stop()
	})

	return l.Sync()
}

type correlationKey struct{}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds correlation ID to context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}
