package context

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertmanagerPayload_Summary(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "full alert",
			body: `{"alerts":[{"labels":{"alertname":"HighModelRMSE","service":"model-server"},"annotations":{"summary":"RMSE above 25 for 5m"}}]}`,
			want: "Alert 'HighModelRMSE' for service 'model-server': RMSE above 25 for 5m",
		},
		{
			name: "only first alert is used",
			body: `{"alerts":[{"labels":{"alertname":"A"}},{"labels":{"alertname":"B"}}]}`,
			want: "Alert 'A' for service 'Unknown Service': No summary provided.",
		},
		{
			name: "no alerts",
			body: `{}`,
			want: "Alert 'Unknown Alert' for service 'Unknown Service': No summary provided.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p AlertmanagerPayload
			require.NoError(t, json.Unmarshal([]byte(tt.body), &p))
			assert.Equal(t, tt.want, p.Summary())
		})
	}
}
