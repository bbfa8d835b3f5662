package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/capability"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/engine"
)

func init() {
	color.NoColor = true
}

func TestAlertFromInput(t *testing.T) {
	dir := t.TempDir()
	payload := filepath.Join(dir, "alert.json")
	require.NoError(t, os.WriteFile(payload, []byte(`{"alerts":[{"labels":{"alertname":"HighRMSE","service":"model-server"},"annotations":{"summary":"RMSE above 0.5"}}]}`), 0o644))
	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"alerts":`), 0o644))

	got, err := alertFromInput([]string{"disk full on db-1"}, "")
	require.NoError(t, err)
	assert.Equal(t, "disk full on db-1", got)

	got, err = alertFromInput(nil, payload)
	require.NoError(t, err)
	assert.Equal(t, "Alert 'HighRMSE' for service 'model-server': RMSE above 0.5", got)

	_, err = alertFromInput([]string{"x"}, payload)
	assert.Error(t, err)
	_, err = alertFromInput(nil, "")
	assert.Error(t, err)
	_, err = alertFromInput([]string{"  "}, "")
	assert.Error(t, err)
	_, err = alertFromInput(nil, broken)
	assert.Error(t, err)
}

func TestPrintTranscript(t *testing.T) {
	d := &engine.Diagnosis{
		RunID:        "run-1",
		AlertSummary: "model_rmse is 28.5",
		Result:       "Model drift detected. Proposed solution: retrain.",
		Outcome:      engine.OutcomeSolutionProposed,
		Turns:        3,
		Observations: 1,
		Duration:     1500 * time.Millisecond,
		History: []engine.Entry{
			{Role: engine.RoleSystem, Content: "system prompt"},
			{Role: engine.RoleUser, Content: "Diagnose this alert: model_rmse is 28.5"},
			{Role: engine.RoleAssistant, Request: &engine.CapabilityRequest{Name: "PrometheusQuery", Arguments: map[string]interface{}{"query": "model_rmse"}}},
			{Role: engine.RoleObservation, Capability: "PrometheusQuery", Content: "Prometheus query results:\n{ } values: 28.50"},
			{Role: engine.RoleAssistant, Rejected: true},
			{Role: engine.RoleAssistant, Content: "The model is drifting.\nMore detail."},
		},
	}

	var buf bytes.Buffer
	printTranscript(&buf, d)
	out := buf.String()

	assert.Contains(t, out, "Run: run-1")
	assert.NotContains(t, out, "system prompt")
	assert.Contains(t, out, `turn 1: PrometheusQuery {"query":"model_rmse"}`)
	assert.Contains(t, out, "    Prometheus query results:\n    { } values: 28.50")
	assert.Contains(t, out, "turn 2: requested several capabilities at once, rejected")
	assert.Contains(t, out, "turn 3: The model is drifting. …")
	assert.Contains(t, out, "Outcome: solution_proposed (3 turns, 1 observations, 1.5s)")
	assert.True(t, strings.HasSuffix(out, "Proposed solution: retrain.\n"))
}

func TestPrintCapabilities(t *testing.T) {
	var buf bytes.Buffer
	printCapabilities(&buf, nil, false)
	assert.Contains(t, buf.String(), "No capability enabled")

	buf.Reset()
	printCapabilities(&buf, []capability.Descriptor{{
		Name:        "LokiLogSearch",
		Description: "Search logs",
		Parameters: map[string]interface{}{"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
			"limit": map[string]interface{}{"type": "integer"},
		}},
	}}, true)
	out := buf.String()
	assert.Contains(t, out, "LokiLogSearch\n  Search logs\n")
	assert.Less(t, strings.Index(out, "limit"), strings.Index(out, "query"), "properties are sorted")
}

func TestCapabilitiesCommand(t *testing.T) {
	for _, key := range []string{"PROMETHEUS_URL", "LOKI_URL", "GRAFANA_URL", "AIOPS_BACKENDS_PROMETHEUS_URL", "AIOPS_BACKENDS_LOKI_URL", "AIOPS_BACKENDS_GRAFANA_URL"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
backends:
  prometheus_url: http://prometheus:9090
  loki_url: http://loki:3100
  grafana_url: http://grafana:3000
logging:
  level: error
`), 0o644))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"capabilities", "--config", cfgPath, "--env-file", filepath.Join(dir, "missing.env")})
	require.NoError(t, cmd.Execute())

	for _, name := range []string{"PrometheusQuery", "LokiLogSearch", "GrafanaDashboardLink"} {
		assert.Contains(t, out.String(), name)
	}
}

func TestDiagnoseCommandRequiresAlert(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"diagnose"})
	assert.ErrorContains(t, cmd.Execute(), "alert description or --payload is required")
}
