package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// DefaultTimeout bounds one evaluation request; the classifier scores every
// item synchronously.
const DefaultTimeout = 300 * time.Second

var (
	// ErrNoItems is returned when there is nothing to evaluate.
	ErrNoItems = errors.New("no items to evaluate")
)

// StatusError is returned for non-2xx classifier responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("evaluation API error (status %d): %s", e.StatusCode, e.Body)
}

// Result is the classifier's evaluation report.
type Result struct {
	Message        string  `json:"message"`
	Accuracy       float64 `json:"accuracy"`
	EvaluatedItems int     `json:"evaluated_items"`
}

// Client posts samples to a classifier's /evaluate endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client for the classifier API at baseURL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid evaluation API URL %q", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: strings.TrimRight(u.String(), "/") + "/evaluate",
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// Evaluate sends items and returns the classifier's report.
func (c *Client) Evaluate(ctx context.Context, items []Item) (*Result, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal items: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("evaluation request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode evaluation response %q: %w", string(raw), err)
	}
	return &result, nil
}

// Config drives Run.
type Config struct {
	DatasetPath string
	APIURL      string
	SampleSize  int
	Timeout     time.Duration
}

// Report summarizes one evaluation run.
type Report struct {
	Loaded int
	Sent   int
	Result *Result
}

// Run loads and samples the dataset, then evaluates the sample.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) (*Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := NewClient(cfg.APIURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	logger.Info("loading dataset", zap.String("path", cfg.DatasetPath), zap.Int("sample_size", cfg.SampleSize))
	items, err := LoadDataset(ctx, cfg.DatasetPath, logger)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("dataset %s: %w", cfg.DatasetPath, ErrNoItems)
	}

	sample := Sample(items, cfg.SampleSize, nil)
	logger.Info("sending sample for evaluation",
		zap.Int("loaded", len(items)),
		zap.Int("sent", len(sample)),
		zap.String("endpoint", client.endpoint),
	)
	result, err := client.Evaluate(ctx, sample)
	if err != nil {
		return nil, err
	}
	logger.Info("evaluation completed",
		zap.Float64("accuracy", result.Accuracy),
		zap.Int("evaluated_items", result.EvaluatedItems),
	)
	return &Report{Loaded: len(items), Sent: len(sample), Result: result}, nil
}
