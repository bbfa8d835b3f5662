package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/journal"
	alertctx "github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/context"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/engine"
	"github.com/kpoilly/AIOps-Agent-Experiments/pkg/types"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "AIOps Diagnostic Agent Service is running and ready to diagnose alerts!"

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.WelcomeResponse{Message: WelcomeMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}

// handleReady reports ready once the server is serving and, when a journal
// is configured, its database answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.IsRunning() {
		writeJSON(w, http.StatusServiceUnavailable, types.HealthResponse{Status: "not_ready", Timestamp: time.Now().UTC()})
		return
	}
	if s.journal != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.journal.Ping(ctx); err != nil {
			s.logger.Warn("journal not reachable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, types.HealthResponse{Status: "not_ready", Timestamp: time.Now().UTC()})
			return
		}
	}
	writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ready", Timestamp: time.Now().UTC()})
}

// handleDiagnoseAlert is the Alertmanager webhook receiver.
func (s *Server) handleDiagnoseAlert(w http.ResponseWriter, r *http.Request) {
	var payload alertctx.AlertmanagerPayload
	if err := decodeBody(w, r, &payload); err != nil {
		s.metrics.RecordError("/diagnose_alert", "bad_request")
		writeError(w, http.StatusBadRequest, "Invalid alert payload", err)
		return
	}

	diag, err := s.diagnose(r, payload.Summary())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Agent diagnostic failed: %v", err), nil)
		return
	}
	writeJSON(w, http.StatusOK, types.AlertDiagnosisResponse{
		Status:         "success",
		AgentDiagnosis: diag.Result,
		RunID:          diag.RunID,
		Outcome:        string(diag.Outcome),
	})
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	var req types.DiagnoseRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.metrics.RecordError("/api/v1/diagnose", "bad_request")
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	diag, err := s.diagnose(r, req.AlertDescription)
	if errors.Is(err, engine.ErrEmptyAlert) {
		writeError(w, http.StatusBadRequest, "alert_description is required", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Agent diagnostic failed: %v", err), nil)
		return
	}
	writeJSON(w, http.StatusOK, types.DiagnoseResponse{
		Diagnosis:    diag.Result,
		RunID:        diag.RunID,
		Outcome:      string(diag.Outcome),
		Turns:        diag.Turns,
		Observations: diag.Observations,
	})
}

// diagnose runs the engine detached from client cancellation: a caller that
// hangs up does not abort a run. Shutdown still waits for it.
func (s *Server) diagnose(r *http.Request, alert string) (*engine.Diagnosis, error) {
	diag, err := s.engine.Diagnose(context.WithoutCancel(r.Context()), alert)
	if err != nil && !errors.Is(err, engine.ErrEmptyAlert) {
		s.logger.Error("diagnosis failed", zap.Error(err), zap.String("alert", alert))
	}
	return diag, err
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	descriptors := s.engine.Descriptors()
	resp := types.CapabilitiesResponse{
		Capabilities: make([]types.CapabilityInfo, 0, len(descriptors)),
		MaxTurns:     s.engine.MaxTurns(),
	}
	for _, d := range descriptors {
		resp.Capabilities = append(resp.Capabilities, types.CapabilityInfo{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDiagnoses(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "Diagnosis journal is disabled", nil)
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxListLimit)
	}

	records, err := s.journal.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list diagnoses", zap.Error(err))
		s.metrics.RecordError("/api/v1/diagnoses", "journal_failure")
		writeError(w, http.StatusInternalServerError, "Failed to list diagnoses", err)
		return
	}
	outcomes, err := s.journal.CountByOutcome(r.Context())
	if err != nil {
		s.logger.Error("failed to count diagnoses", zap.Error(err))
		s.metrics.RecordError("/api/v1/diagnoses", "journal_failure")
		writeError(w, http.StatusInternalServerError, "Failed to list diagnoses", err)
		return
	}

	resp := types.DiagnosesResponse{
		Diagnoses: make([]types.DiagnosisSummary, 0, len(records)),
		Count:     len(records),
		Outcomes:  outcomes,
	}
	for _, rec := range records {
		resp.Diagnoses = append(resp.Diagnoses, summaryOf(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDiagnosis(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "Diagnosis journal is disabled", nil)
		return
	}

	id := mux.Vars(r)["id"]
	rec, err := s.journal.Get(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Diagnosis %s not found", id), nil)
		return
	}
	if err != nil {
		s.logger.Error("failed to load diagnosis", zap.String("run_id", id), zap.Error(err))
		s.metrics.RecordError("/api/v1/diagnoses/{id}", "journal_failure")
		writeError(w, http.StatusInternalServerError, "Failed to load diagnosis", err)
		return
	}

	entries, err := rec.Entries()
	if err != nil {
		s.metrics.RecordError("/api/v1/diagnoses/{id}", "journal_failure")
		writeError(w, http.StatusInternalServerError, "Failed to decode diagnosis history", err)
		return
	}
	detail := types.DiagnosisDetail{
		DiagnosisSummary: summaryOf(rec),
		Result:           rec.Result,
		FinishedAt:       rec.FinishedAt,
		History:          make([]types.HistoryEntry, 0, len(entries)),
	}
	for _, e := range entries {
		h := types.HistoryEntry{
			Role:       string(e.Role),
			Content:    e.Content,
			Capability: e.Capability,
			Rejected:   e.Rejected,
			Timestamp:  e.Timestamp,
		}
		if e.Request != nil {
			h.Capability = e.Request.Name
			h.Arguments = e.Request.Arguments
		}
		detail.History = append(detail.History, h)
	}
	writeJSON(w, http.StatusOK, detail)
}

func summaryOf(rec *journal.Record) types.DiagnosisSummary {
	return types.DiagnosisSummary{
		RunID:        rec.RunID,
		AlertSummary: rec.AlertSummary,
		Outcome:      rec.Outcome,
		Turns:        rec.Turns,
		Observations: rec.Observations,
		Error:        rec.Error,
		StartedAt:    rec.StartedAt,
		DurationMs:   rec.DurationMs,
	}
}

// Helpers

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := types.ErrorResponse{Error: message, Code: status}
	if err != nil {
		resp.Details = strings.TrimSpace(err.Error())
	}
	writeJSON(w, status, resp)
}
