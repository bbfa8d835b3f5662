package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

// MetricsQueryName is the registered name of the Prometheus capability.
const MetricsQueryName = "PrometheusQuery"

// MetricsQueryArgs are the arguments accepted by the Prometheus capability.
type MetricsQueryArgs struct {
	Query            string `json:"query" jsonschema:"required,description=The PromQL query to execute on Prometheus. Example: rate(node_cpu_seconds_total[5m])"`
	TimeRangeMinutes int    `json:"time_range_minutes,omitempty" jsonschema:"minimum=1,default=5,description=The time range in minutes for the query"`
	StepSeconds      int    `json:"step_seconds,omitempty" jsonschema:"minimum=1,default=30,description=The query resolution step width in seconds"`
	TargetService    string `json:"target_service,omitempty" jsonschema:"description=The specific service to filter metrics for"`
}

// MetricsQuery runs time-ranged PromQL queries through the Prometheus HTTP API.
type MetricsQuery struct {
	api     promv1.API
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewMetricsQuery creates the Prometheus capability for the server at address.
func NewMetricsQuery(address string, timeout time.Duration, logger *zap.Logger) (*MetricsQuery, error) {
	if address == "" {
		return nil, fmt.Errorf("prometheus address is required")
	}
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MetricsQuery{
		api:     promv1.NewAPI(client),
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}, nil
}

func (m *MetricsQuery) Descriptor() Descriptor {
	return Descriptor{
		Name: MetricsQueryName,
		Description: "Executes a PromQL query on Prometheus to retrieve time-series data. " +
			"Useful for fetching metrics like CPU usage, memory, request rates, model error metrics, etc.",
		Parameters: MustGenerateSchema[MetricsQueryArgs](),
	}
}

func (m *MetricsQuery) Invoke(ctx context.Context, raw map[string]interface{}) (string, error) {
	args := MetricsQueryArgs{TimeRangeMinutes: 5, StepSeconds: 30}
	if err := decodeArgs(MetricsQueryName, raw, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", validationError(MetricsQueryName, "query must not be empty")
	}
	if args.TimeRangeMinutes <= 0 {
		return "", validationError(MetricsQueryName, "time_range_minutes must be positive")
	}
	if args.StepSeconds <= 0 {
		return "", validationError(MetricsQueryName, "step_seconds must be positive")
	}

	m.logger.Info("prometheus query",
		zap.String("query", args.Query),
		zap.Int("time_range_minutes", args.TimeRangeMinutes),
		zap.String("target_service", args.TargetService),
	)

	end := m.now()
	r := promv1.Range{
		Start: end.Add(-time.Duration(args.TimeRangeMinutes) * time.Minute),
		End:   end,
		Step:  time.Duration(args.StepSeconds) * time.Second,
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	value, warnings, err := m.api.QueryRange(ctx, args.Query, r)
	if err != nil {
		var apiErr *promv1.Error
		if errors.As(err, &apiErr) && apiErr.Type != promv1.ErrTimeout && apiErr.Type != promv1.ErrCanceled {
			return "", backendError(MetricsQueryName, err)
		}
		return "", reachabilityError(MetricsQueryName, err)
	}
	if len(warnings) > 0 {
		m.logger.Warn("prometheus returned warnings", zap.Strings("warnings", warnings))
	}

	return formatMatrix(value), nil
}

// formatMatrix renders a range-query result one series per line.
func formatMatrix(value model.Value) string {
	matrix, ok := value.(model.Matrix)
	if !ok || len(matrix) == 0 {
		return "Prometheus query: No data found for the given query and time range."
	}

	lines := make([]string, 0, len(matrix))
	for _, stream := range matrix {
		names := make([]string, 0, len(stream.Metric))
		for k := range stream.Metric {
			names = append(names, string(k))
		}
		sort.Strings(names)

		labels := make([]string, 0, len(names))
		for _, k := range names {
			labels = append(labels, fmt.Sprintf("%s='%s'", k, stream.Metric[model.LabelName(k)]))
		}

		values := make([]string, 0, len(stream.Values))
		for _, p := range stream.Values {
			values = append(values, fmt.Sprintf("%.2f", float64(p.Value)))
		}
		lines = append(lines, fmt.Sprintf("{ %s } values: %s", strings.Join(labels, ", "), strings.Join(values, ", ")))
	}
	return "Prometheus query results:\n" + strings.Join(lines, "\n")
}
