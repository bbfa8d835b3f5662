// Package context turns inbound alert payloads into the one-line alert
// summary a diagnosis starts from.
package context

import (
	"fmt"
	"strings"
)

const (
	defaultAlertName = "Unknown Alert"
	defaultService   = "Unknown Service"
	defaultSummary   = "No summary provided."
)

// Alert is one alert of an Alertmanager webhook notification.
type Alert struct {
	Status      string            `json:"status,omitempty"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    string            `json:"startsAt,omitempty"`
	EndsAt      string            `json:"endsAt,omitempty"`
}

// AlertmanagerPayload is the subset of the Alertmanager webhook body the agent reads.
type AlertmanagerPayload struct {
	Receiver          string            `json:"receiver,omitempty"`
	Status            string            `json:"status,omitempty"`
	Alerts            []Alert           `json:"alerts"`
	GroupLabels       map[string]string `json:"groupLabels,omitempty"`
	CommonLabels      map[string]string `json:"commonLabels,omitempty"`
	CommonAnnotations map[string]string `json:"commonAnnotations,omitempty"`
}

// Summary describes the first alert of the payload. Missing fields fall
// back to fixed placeholders, so an empty payload still yields a summary.
func (p AlertmanagerPayload) Summary() string {
	var first Alert
	if len(p.Alerts) > 0 {
		first = p.Alerts[0]
	}
	return Summarize(first.Labels["alertname"], first.Labels["service"], first.Annotations["summary"])
}

// Summarize formats an alert summary line.
func Summarize(name, service, summary string) string {
	name = orDefault(name, defaultAlertName)
	service = orDefault(service, defaultService)
	summary = orDefault(summary, defaultSummary)
	return fmt.Sprintf("Alert '%s' for service '%s': %s", name, service, summary)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
