package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Defaults(t *testing.T) {
	m := NewManager()

	assert.Contains(t, m.SystemPrompt(), "ONE tool at a time")
	assert.Equal(t, "Diagnose this alert: Alert 'HighRMSE' for service 'model': rmse up", m.AlertPrompt("Alert 'HighRMSE' for service 'model': rmse up"))
}

func TestManager_FinalizeWithObservations(t *testing.T) {
	m := NewManager()

	sys, user, err := m.Finalize(FinalizeInput{
		Alert: "HighRMSE on model-server",
		Observations: []Observation{
			{Capability: "PrometheusQuery", Text: "value=28.5 (threshold=25.0)"},
			{Capability: "LokiLogSearch", Text: "Loki log search: No logs found for the given query and time range."},
		},
		Notes: []string{"RMSE is above its threshold."},
	})
	require.NoError(t, err)

	assert.Contains(t, sys, "propose a potential solution")
	assert.Contains(t, user, "Alert: HighRMSE on model-server")
	assert.Contains(t, user, "1. [PrometheusQuery] value=28.5 (threshold=25.0)")
	assert.Contains(t, user, "2. [LokiLogSearch] Loki log search")
	assert.Contains(t, user, "- RMSE is above its threshold.")
	assert.Contains(t, user, "what is your diagnosis and proposed solution?")
	assert.NotContains(t, user, "insufficient evidence")
}

func TestManager_FinalizeWithoutObservations(t *testing.T) {
	_, user, err := NewManager().Finalize(FinalizeInput{Alert: "HighLatency"})
	require.NoError(t, err)

	assert.Contains(t, user, "No observations were gathered")
	assert.Contains(t, user, "insufficient evidence")
	assert.NotContains(t, user, "Agent notes")
}

func TestLoadFile_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
system: "You are a terse SRE."
finalize_user: "Alert={{.Alert}} n={{len .Observations}}"
`), 0o600))

	m, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "You are a terse SRE.", m.SystemPrompt())

	sys, user, err := m.Finalize(FinalizeInput{Alert: "X", Observations: []Observation{{Capability: "A", Text: "b"}}})
	require.NoError(t, err)
	assert.Equal(t, defaultFinalizeSystemPrompt, sys)
	assert.Equal(t, "Alert=X n=1", user)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("finalize_user: \"{{.Alert\"\n"), 0o600))
	_, err = LoadFile(path)
	assert.Error(t, err)

	m, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, defaultSystemPrompt, m.SystemPrompt())
}
