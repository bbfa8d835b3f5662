package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, mutate func(*Config)) (Logger, *Config) {
	t.Helper()
	config := &Config{
		AuditLogPath:  filepath.Join(t.TempDir(), "audit.log"),
		MaxSize:       10,
		MaxBackups:    3,
		FlushInterval: time.Hour,
	}
	if mutate != nil {
		mutate(config)
	}

	logger, err := NewLogger(config, nil)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger, config
}

func readAudit(t *testing.T, logger Logger, path string) string {
	t.Helper()
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}
	return string(content)
}

func TestNewLoggerRequiresPath(t *testing.T) {
	_, err := NewLogger(&Config{}, nil)
	if err == nil {
		t.Fatal("Expected error for empty audit log path")
	}
	if !strings.Contains(err.Error(), "audit log path is required") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.AuditLogPath != "logs/audit.log" {
		t.Errorf("Expected audit log path 'logs/audit.log', got %s", config.AuditLogPath)
	}
	if config.MaxSize != 100 {
		t.Errorf("Expected max size 100, got %d", config.MaxSize)
	}
	if config.BufferSize != 100 {
		t.Errorf("Expected buffer size 100, got %d", config.BufferSize)
	}
}

func TestLogDiagnosisLifecycle(t *testing.T) {
	logger, config := newTestLogger(t, nil)
	ctx := context.Background()

	if err := logger.LogDiagnosisStarted(ctx, "run-456", "Alert 'HighRMSE' for service 'model-server': rmse high"); err != nil {
		t.Fatalf("LogDiagnosisStarted failed: %v", err)
	}
	if err := logger.LogCapabilityInvoked(ctx, "run-456", "PrometheusQuery", "ok", 120*time.Millisecond, nil); err != nil {
		t.Fatalf("LogCapabilityInvoked failed: %v", err)
	}
	if err := logger.LogDiagnosisCompleted(ctx, "run-456", "solution_proposed", 3, 5*time.Second); err != nil {
		t.Fatalf("LogDiagnosisCompleted failed: %v", err)
	}

	logContent := readAudit(t, logger, config.AuditLogPath)
	for _, want := range []string{"run-456", "diagnosis.started", "capability.invoked", "PrometheusQuery", "diagnosis.completed", "solution_proposed", "HighRMSE"} {
		if !strings.Contains(logContent, want) {
			t.Errorf("Log does not contain %q", want)
		}
	}
}

func TestLogDiagnosisFailed(t *testing.T) {
	logger, config := newTestLogger(t, nil)

	if err := logger.LogDiagnosisFailed(context.Background(), "run-9", errors.New("finalizer panicked")); err != nil {
		t.Fatalf("LogDiagnosisFailed failed: %v", err)
	}

	logContent := readAudit(t, logger, config.AuditLogPath)
	if !strings.Contains(logContent, "diagnosis.failed") || !strings.Contains(logContent, "finalizer panicked") {
		t.Errorf("Log does not contain failure: %s", logContent)
	}
	if !strings.Contains(logContent, `"result":"failure"`) {
		t.Error("Log does not contain failure result")
	}
}

func TestLogTakesCorrelationIDFromContext(t *testing.T) {
	logger, config := newTestLogger(t, nil)
	ctx := WithCorrelationID(context.Background(), "req-abc")

	if err := logger.LogServerStarted(ctx, ":8000"); err != nil {
		t.Fatalf("LogServerStarted failed: %v", err)
	}

	logContent := readAudit(t, logger, config.AuditLogPath)
	if !strings.Contains(logContent, `"correlation_id":"req-abc"`) {
		t.Errorf("Log does not carry context correlation ID: %s", logContent)
	}
}

func TestBufferAutoFlush(t *testing.T) {
	logger, config := newTestLogger(t, func(c *Config) { c.FlushInterval = 50 * time.Millisecond })

	for i := 0; i < 5; i++ {
		if err := logger.LogConfigLoaded(context.Background(), "config.yaml"); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if content, err := os.ReadFile(config.AuditLogPath); err == nil && len(content) > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("Audit log is empty after auto-flush")
}

func TestBufferFullFlush(t *testing.T) {
	logger, config := newTestLogger(t, func(c *Config) { c.BufferSize = 10 })

	for i := 0; i < 25; i++ {
		if err := logger.Log(context.Background(), NewEvent(EventConfigChanged).WithResult(ResultSuccess)); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	lines := strings.Split(readAudit(t, logger, config.AuditLogPath), "\n")
	eventCount := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			eventCount++
		}
	}
	if eventCount != 25 {
		t.Errorf("Expected 25 events, got %d", eventCount)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	logger, _ := newTestLogger(t, nil)
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestCorrelationID(t *testing.T) {
	ctx := context.Background()

	if id := GetCorrelationID(ctx); id != "" {
		t.Errorf("Expected empty correlation ID, got %s", id)
	}

	ctx = WithCorrelationID(ctx, "test-correlation-id")
	if id := GetCorrelationID(ctx); id != "test-correlation-id" {
		t.Errorf("Expected 'test-correlation-id', got %s", id)
	}
}

func TestEventBuilderChain(t *testing.T) {
	event := NewEvent(EventCapabilityInvoked).
		WithCorrelationID("corr-123").
		WithRun("run-1", "Alert 'X'").
		WithCapability("LokiLogSearch", "reachability").
		WithDescription("Capability LokiLogSearch invoked").
		WithResult(ResultSuccess).
		WithDuration(3*time.Second).
		WithError(errors.New("connection refused"), "reachability")

	if event.CorrelationID != "corr-123" || event.RunID != "run-1" || event.Alert != "Alert 'X'" {
		t.Errorf("Unexpected identity fields: %+v", event)
	}
	if event.Capability != "LokiLogSearch" || event.Status != "reachability" {
		t.Errorf("Unexpected capability fields: %+v", event)
	}
	if event.Result != ResultFailure {
		t.Errorf("Expected WithError to mark failure, got %s", event.Result)
	}
	if event.DurationMs != 3000 {
		t.Errorf("Expected duration 3000ms, got %d", event.DurationMs)
	}
}
