package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func datasetLines(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `{"link":"https://example.com/%d","headline":"headline %d","category":"politics","authors":"x"}`+"\n", i, i)
	}
	return b.String()
}

func TestParseDataset(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	input := `{"headline":"Stocks rally","category":"business"}
not json

{"headline":"Team wins final","category":"Sports"}
{"category":"world news"}
`
	items, err := ParseDataset(context.Background(), strings.NewReader(input), zap.New(core))
	require.NoError(t, err)

	assert.Equal(t, []Item{
		{Text: "Stocks rally", TrueLabel: "BUSINESS"},
		{Text: "Team wins final", TrueLabel: "SPORTS"},
		{Text: "", TrueLabel: "WORLD NEWS"},
	}, items)

	warnings := logs.FilterMessage("skipping malformed dataset line").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, int64(2), warnings[0].ContextMap()["line"])
}

func TestParseDataset_ShardsPreserveOrder(t *testing.T) {
	const n = 5*linesPerShard + 17
	items, err := ParseDataset(context.Background(), strings.NewReader(datasetLines(n)), nil)
	require.NoError(t, err)
	require.Len(t, items, n)
	for i, item := range items {
		if item.Text != fmt.Sprintf("headline %d", i) {
			t.Fatalf("item %d out of order: %q", i, item.Text)
		}
	}
	assert.Equal(t, "POLITICS", items[n-1].TrueLabel)
}

func TestParseDataset_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ParseDataset(ctx, strings.NewReader(datasetLines(10)), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadDataset_MissingFile(t *testing.T) {
	_, err := LoadDataset(context.Background(), filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSample(t *testing.T) {
	items := make([]Item, 100)
	for i := range items {
		items[i] = Item{Text: fmt.Sprint(i)}
	}

	got := Sample(items, 10, rand.New(rand.NewPCG(1, 2)))
	require.Len(t, got, 10)
	seen := map[string]bool{}
	for _, it := range got {
		assert.False(t, seen[it.Text], "duplicate %s", it.Text)
		seen[it.Text] = true
	}

	assert.Len(t, Sample(items, 250, nil), 100, "small datasets are sent whole")
	assert.Len(t, Sample(items, 0, nil), 100)
}

func evaluationServer(t *testing.T, status int, reply string, got *[]Item) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/evaluate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientEvaluate(t *testing.T) {
	var got []Item
	srv := evaluationServer(t, http.StatusOK,
		`{"message":"Model evaluation completed","accuracy":0.8125,"evaluated_items":2}`, &got)

	client, err := NewClient(srv.URL+"/", time.Second)
	require.NoError(t, err)

	items := []Item{{Text: "Stocks rally", TrueLabel: "BUSINESS"}, {Text: "Team wins", TrueLabel: "SPORTS"}}
	result, err := client.Evaluate(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, items, got)
	assert.InDelta(t, 0.8125, result.Accuracy, 1e-9)
	assert.Equal(t, 2, result.EvaluatedItems)
}

func TestClientEvaluate_Errors(t *testing.T) {
	_, err := NewClient("not a url", 0)
	assert.Error(t, err)

	client, err := NewClient("http://localhost:8001", 0)
	require.NoError(t, err)
	_, err = client.Evaluate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoItems)

	srv := evaluationServer(t, http.StatusBadRequest, `{"detail":"No items provided for evaluation."}`, nil)
	client, err = NewClient(srv.URL, time.Second)
	require.NoError(t, err)
	_, err = client.Evaluate(context.Background(), []Item{{Text: "x"}})
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, se.Body, "No items provided")

	srv = evaluationServer(t, http.StatusOK, `<html>`, nil)
	client, err = NewClient(srv.URL, time.Second)
	require.NoError(t, err)
	_, err = client.Evaluate(context.Background(), []Item{{Text: "x"}})
	assert.ErrorContains(t, err, "decode evaluation response")
}

func TestRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "news.json")
	require.NoError(t, os.WriteFile(path, []byte(datasetLines(40)), 0o644))

	var got []Item
	srv := evaluationServer(t, http.StatusOK, `{"message":"ok","accuracy":0.5,"evaluated_items":25}`, &got)

	report, err := Run(context.Background(), Config{DatasetPath: path, APIURL: srv.URL, SampleSize: 25, Timeout: time.Second}, nil)
	require.NoError(t, err)
	assert.Equal(t, 40, report.Loaded)
	assert.Equal(t, 25, report.Sent)
	assert.Len(t, got, 25)
	assert.Equal(t, 25, report.Result.EvaluatedItems)
}

func TestRun_EmptyDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o644))

	_, err := Run(context.Background(), Config{DatasetPath: path, APIURL: "http://localhost:8001", SampleSize: 10}, nil)
	assert.ErrorIs(t, err, ErrNoItems)
}
