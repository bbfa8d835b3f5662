package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LogQueryName is the registered name of the Loki capability.
const LogQueryName = "LokiLogSearch"

const (
	defaultLogLimit = 10
	maxLogLimit     = 100
)

// LogQueryArgs are the arguments accepted by the Loki capability.
type LogQueryArgs struct {
	Query            string `json:"query" jsonschema:"required,description=The LogQL query to execute on Loki: a stream selector optionally followed by line filters"`
	TimeRangeMinutes int    `json:"time_range_minutes,omitempty" jsonschema:"minimum=1,default=5,description=The time range in minutes for the query"`
	Limit            int    `json:"limit,omitempty" jsonschema:"default=10,description=Maximum number of log lines to return"`
	TargetService    string `json:"target_service,omitempty" jsonschema:"description=The specific service to filter logs for"`
}

// LogQuery searches Loki with the query_range endpoint.
type LogQuery struct {
	baseURL    string
	httpClient *http.Client
	maxLines   int
	now        func() time.Time
	logger     *zap.Logger
}

type lokiResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// NewLogQuery creates the Loki capability. maxLines caps every response
// regardless of the requested limit; zero means maxLogLimit.
func NewLogQuery(baseURL string, timeout time.Duration, maxLines int, logger *zap.Logger) (*LogQuery, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("loki address is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxLines <= 0 || maxLines > maxLogLimit {
		maxLines = maxLogLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogQuery{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxLines:   maxLines,
		now:        time.Now,
		logger:     logger,
	}, nil
}

func (l *LogQuery) Descriptor() Descriptor {
	return Descriptor{
		Name: LogQueryName,
		Description: "Executes a LogQL query on Loki to retrieve log entries. " +
			"Useful for finding errors, warnings, or specific events in application logs.",
		Parameters: MustGenerateSchema[LogQueryArgs](),
	}
}

func (l *LogQuery) Invoke(ctx context.Context, raw map[string]interface{}) (string, error) {
	args := LogQueryArgs{TimeRangeMinutes: 5, Limit: defaultLogLimit}
	if err := decodeArgs(LogQueryName, raw, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", validationError(LogQueryName, "query must not be empty")
	}
	if args.TimeRangeMinutes <= 0 {
		return "", validationError(LogQueryName, "time_range_minutes must be positive")
	}
	limit := clampLimit(args.Limit, l.maxLines)

	end := l.now()
	start := end.Add(-time.Duration(args.TimeRangeMinutes) * time.Minute)

	params := url.Values{}
	params.Set("query", args.Query)
	params.Set("start", strconv.FormatInt(start.UnixNano(), 10))
	params.Set("end", strconv.FormatInt(end.UnixNano(), 10))
	params.Set("limit", strconv.Itoa(limit))

	l.logger.Info("loki query",
		zap.String("query", args.Query),
		zap.Int("limit", limit),
		zap.String("target_service", args.TargetService),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/loki/api/v1/query_range?"+params.Encode(), nil)
	if err != nil {
		return "", validationError(LogQueryName, "build request: %v", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", reachabilityError(LogQueryName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", reachabilityError(LogQueryName, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", backendError(LogQueryName, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed lokiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", backendError(LogQueryName, fmt.Errorf("decode response: %w", err))
	}
	if parsed.Status != "success" {
		return "", backendError(LogQueryName, fmt.Errorf("query status %q", parsed.Status))
	}

	var lines []string
	for _, stream := range parsed.Data.Result {
		labels := formatStream(stream.Stream)
		for _, v := range stream.Values {
			lines = append(lines, fmt.Sprintf("%s %s %s", v[0], labels, v[1]))
		}
	}
	if len(lines) == 0 {
		return "Loki log search: No logs found for the given query and time range.", nil
	}
	if len(lines) > limit {
		lines = lines[:limit]
	}
	return "Loki log search results:\n" + strings.Join(lines, "\n"), nil
}

// clampLimit maps out-of-range limits to the default, then applies the
// configured ceiling.
func clampLimit(limit, ceiling int) int {
	if limit <= 0 || limit > maxLogLimit {
		limit = defaultLogLimit
	}
	if limit > ceiling {
		limit = ceiling
	}
	return limit
}

func formatStream(stream map[string]string) string {
	keys := make([]string, 0, len(stream))
	for k := range stream {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, stream[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
