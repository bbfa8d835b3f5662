// Package metrics is the Prometheus sink of the agent. Every collector lives
// on a private registry owned by a Sink, so tests and multiple agents in one
// process never share counters.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/llm/types"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/engine"
)

const namespace = "aiops_agent"

// Sink records agent metrics. It implements engine.Hooks, the reasoning
// backend observer and the HTTP request observer.
type Sink struct {
	registry *prometheus.Registry

	// Run metrics
	RunsTotal      prometheus.Counter
	DiagnosisTotal *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	Turns          prometheus.Histogram
	ErrorsTotal    *prometheus.CounterVec

	// Capability metrics
	CapabilityCalls    *prometheus.CounterVec
	CapabilityDuration *prometheus.HistogramVec

	// LLM metrics
	LLMRequestsTotal   *prometheus.CounterVec
	LLMTokensUsed      *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMModelInfo       *prometheus.GaugeVec

	// API metrics
	APIRequestsTotal  prometheus.Counter
	APIRequestLatency prometheus.Histogram

	// WebSocket metrics
	WebSocketConnections prometheus.Gauge

	// Status is 1 while the agent serves requests
	Status prometheus.Gauge
}

var _ engine.Hooks = (*Sink)(nil)

// New creates a sink with its own registry, including the Go and process collectors.
func New() *Sink {
	s := &Sink{
		registry: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of diagnosis runs started",
		}),
		DiagnosisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnosis_total",
			Help:      "Total number of finished diagnoses by outcome",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Diagnosis run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~4min
		}),
		Turns: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turns",
			Help:      "Reasoning turns used per diagnosis",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by endpoint and type",
		}, []string{"endpoint", "error_type"}),

		CapabilityCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_calls_total",
			Help:      "Total number of capability invocations",
		}, []string{"capability", "status"}),
		CapabilityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_duration_seconds",
			Help:      "Capability invocation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		}, []string{"capability"}),

		LLMRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM API requests",
		}, []string{"provider", "model", "status"}),
		LLMTokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Total number of LLM tokens consumed",
		}, []string{"provider", "model", "type"}), // type: input/output
		LLMRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		}, []string{"provider", "model"}),
		LLMModelInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "llm_model_info",
			Help:      "Information about the LLM model in use",
		}, []string{"model_name"}),

		APIRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		}),
		APIRequestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_latency_seconds",
			Help:      "API request latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10},
		}),

		WebSocketConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Current number of active WebSocket connections",
		}),

		Status: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "Agent status (1=serving, 0=stopped)",
		}),
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		s.RunsTotal, s.DiagnosisTotal, s.RunDuration, s.Turns, s.ErrorsTotal,
		s.CapabilityCalls, s.CapabilityDuration,
		s.LLMRequestsTotal, s.LLMTokensUsed, s.LLMRequestDuration, s.LLMModelInfo,
		s.APIRequestsTotal, s.APIRequestLatency,
		s.WebSocketConnections, s.Status,
	)
	return s
}

// Registry exposes the private registry.
func (s *Sink) Registry() *prometheus.Registry { return s.registry }

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// SetModel publishes the model in use.
func (s *Sink) SetModel(model string) {
	s.LLMModelInfo.Reset()
	s.LLMModelInfo.WithLabelValues(model).Set(1)
}

// SetServing flips the status gauge.
func (s *Sink) SetServing(serving bool) {
	if serving {
		s.Status.Set(1)
		return
	}
	s.Status.Set(0)
}

// RecordError counts one error.
func (s *Sink) RecordError(endpoint, errorType string) {
	s.ErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// ObserveRequest records one HTTP request. Errors are counted where they
// happen, not from the response status, so a failed run is counted once.
func (s *Sink) ObserveRequest(_ string, _ int, duration time.Duration) {
	s.APIRequestsTotal.Inc()
	s.APIRequestLatency.Observe(duration.Seconds())
}

// ObserveLLMRequest records one reasoning backend request.
func (s *Sink) ObserveLLMRequest(provider, model, status string, duration time.Duration, usage types.TokenUsage) {
	s.LLMRequestsTotal.WithLabelValues(provider, model, status).Inc()
	s.LLMRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if usage.PromptTokens > 0 {
		s.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		s.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(usage.CompletionTokens))
	}
}

func (s *Sink) RunStarted(context.Context, engine.RunInfo) {
	s.RunsTotal.Inc()
}

func (s *Sink) TurnCompleted(context.Context, engine.RunInfo, int, engine.Decision) {}

func (s *Sink) CapabilityInvoked(_ context.Context, _ engine.RunInfo, inv engine.Invocation) {
	s.CapabilityCalls.WithLabelValues(inv.Capability, string(inv.Status)).Inc()
	s.CapabilityDuration.WithLabelValues(inv.Capability).Observe(inv.Duration.Seconds())
}

func (s *Sink) RunFinished(_ context.Context, _ engine.RunInfo, d *engine.Diagnosis) {
	s.DiagnosisTotal.WithLabelValues(string(d.Outcome)).Inc()
	s.RunDuration.Observe(d.Duration.Seconds())
	s.Turns.Observe(float64(d.Turns))
	if d.Error != "" {
		s.RecordError("diagnose", "pipeline_failure")
	}
}
