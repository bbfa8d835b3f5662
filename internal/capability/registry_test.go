package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoCapability(name string) *Func {
	return &Func{
		Desc: Descriptor{Name: name, Description: "echo", Parameters: MustGenerateSchema[MetricsQueryArgs]()},
		Fn: func(_ context.Context, args map[string]interface{}) (string, error) {
			return "ok", nil
		},
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(echoCapability("A"), echoCapability("A"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNewRegistry_RejectsEmptyName(t *testing.T) {
	_, err := NewRegistry(echoCapability(""))
	require.Error(t, err)
}

func TestRegistry_LookupIsCaseSensitive(t *testing.T) {
	r, err := NewRegistry(echoCapability("PrometheusQuery"))
	require.NoError(t, err)

	_, ok := r.Lookup("PrometheusQuery")
	assert.True(t, ok)
	_, ok = r.Lookup("prometheusquery")
	assert.False(t, ok)
}

func TestRegistry_DescriptorsAreCopies(t *testing.T) {
	r, err := NewRegistry(echoCapability("A"), echoCapability("B"))
	require.NoError(t, err)

	d := r.Descriptors()
	require.Len(t, d, 2)
	d[0].Name = "mutated"
	assert.Equal(t, "A", r.Descriptors()[0].Name)
	assert.Equal(t, []string{"A", "B"}, r.Names())
}

func TestRegistry_Validate(t *testing.T) {
	r, err := NewRegistry(echoCapability("PrometheusQuery"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr string
	}{
		{name: "valid with defaults", args: map[string]interface{}{"query": "up"}},
		{name: "valid full", args: map[string]interface{}{"query": "up", "time_range_minutes": float64(15), "step_seconds": float64(60)}},
		{name: "missing query", args: map[string]interface{}{"time_range_minutes": float64(5)}, wantErr: "query"},
		{name: "wrong type", args: map[string]interface{}{"query": 42}, wantErr: "query"},
		{name: "zero time range", args: map[string]interface{}{"query": "up", "time_range_minutes": float64(0)}, wantErr: "time_range_minutes"},
		{name: "negative time range", args: map[string]interface{}{"query": "up", "time_range_minutes": float64(-5)}, wantErr: "time_range_minutes"},
		{name: "fractional integer", args: map[string]interface{}{"query": "up", "step_seconds": 1.5}, wantErr: "step_seconds"},
		{name: "nil args", args: nil, wantErr: "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate("PrometheusQuery", tt.args)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsKind(err, KindValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAdapterError_Unwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := reachabilityError("LokiLogSearch", base)

	assert.ErrorIs(t, err, base)
	assert.True(t, IsKind(err, KindReachability))
	assert.False(t, IsKind(err, KindBackend))
	assert.Equal(t, "LokiLogSearch reachability error: connection refused", err.Error())
}

func TestGenerateSchema_RequiredAndMinimum(t *testing.T) {
	s, err := GenerateSchema[DashboardLinkArgs]()
	require.NoError(t, err)

	assert.Equal(t, "object", s["type"])
	assert.Equal(t, []interface{}{"dashboard_uid"}, s["required"])

	props, ok := s["properties"].(map[string]interface{})
	require.True(t, ok)
	tr, ok := props["time_range_minutes"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, tr["minimum"])
	assert.Equal(t, "integer", tr["type"])
}
