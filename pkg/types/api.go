// Package types defines the public request and response types of the
// diagnostic agent's HTTP and websocket API.
package types

import "time"

// Request types

// DiagnoseRequest starts a diagnosis from a free-text alert description.
type DiagnoseRequest struct {
	AlertDescription string `json:"alert_description"`
}

// Response types

// DiagnoseResponse is returned by POST /api/v1/diagnose.
type DiagnoseResponse struct {
	Diagnosis    string `json:"diagnosis"`
	RunID        string `json:"run_id"`
	Outcome      string `json:"outcome"`
	Turns        int    `json:"turns"`
	Observations int    `json:"observations"`
}

// AlertDiagnosisResponse is returned by the Alertmanager webhook.
type AlertDiagnosisResponse struct {
	Status         string `json:"status"`
	AgentDiagnosis string `json:"agent_diagnosis"`
	RunID          string `json:"run_id"`
	Outcome        string `json:"outcome"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by the liveness and readiness probes.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// WelcomeResponse is returned by GET /.
type WelcomeResponse struct {
	Message string `json:"message"`
}

// CapabilityInfo describes one capability the agent can invoke.
type CapabilityInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// CapabilitiesResponse lists the registered capabilities.
type CapabilitiesResponse struct {
	Capabilities []CapabilityInfo `json:"capabilities"`
	MaxTurns     int              `json:"max_turns"`
}

// DiagnosisSummary is one journaled diagnosis without its conversation.
type DiagnosisSummary struct {
	RunID        string    `json:"run_id"`
	AlertSummary string    `json:"alert_summary"`
	Outcome      string    `json:"outcome"`
	Turns        int       `json:"turns"`
	Observations int       `json:"observations"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	DurationMs   int64     `json:"duration_ms"`
}

// HistoryEntry is one turn of a journaled conversation.
type HistoryEntry struct {
	Role       string                 `json:"role"`
	Content    string                 `json:"content"`
	Capability string                 `json:"capability,omitempty"`
	Arguments  map[string]interface{} `json:"arguments,omitempty"`
	Rejected   bool                   `json:"rejected,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// DiagnosisDetail is a journaled diagnosis with its result and conversation.
type DiagnosisDetail struct {
	DiagnosisSummary
	Result     string         `json:"result"`
	FinishedAt time.Time      `json:"finished_at"`
	History    []HistoryEntry `json:"history"`
}

// DiagnosesResponse lists recent diagnoses.
type DiagnosesResponse struct {
	Diagnoses []DiagnosisSummary `json:"diagnoses"`
	Count     int                `json:"count"`
	Outcomes  map[string]int     `json:"outcomes"`
}

// Event types streamed on /ws/diagnoses.
const (
	EventRunStarted        = "run_started"
	EventTurnCompleted     = "turn_completed"
	EventCapabilityInvoked = "capability_invoked"
	EventRunFinished       = "run_finished"
	EventHeartbeat         = "heartbeat"
)

// Event is one message of the diagnosis event stream.
type Event struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id,omitempty"`
	Alert      string    `json:"alert,omitempty"`
	Turn       int       `json:"turn,omitempty"`
	Decision   string    `json:"decision,omitempty"`
	Capability string    `json:"capability,omitempty"`
	Status     string    `json:"status,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
