// Package journal persists finished diagnoses so operators can review what
// the agent concluded, which capabilities it called and why.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/engine"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("diagnosis not found")

// Store is the persistence interface of the journal.
type Store interface {
	// Save writes (or overwrites) one diagnosis.
	Save(ctx context.Context, rec *Record) error

	// Get returns the diagnosis with the given run ID, or ErrNotFound.
	Get(ctx context.Context, runID string) (*Record, error)

	// List returns the most recent diagnoses first. History is not loaded.
	List(ctx context.Context, limit int) ([]*Record, error)

	// CountByOutcome returns the number of diagnoses per outcome.
	CountByOutcome(ctx context.Context) (map[string]int, error)

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// Close releases database resources.
	Close() error
}

// Record is one persisted diagnosis.
type Record struct {
	RunID        string    `db:"id" json:"run_id"`
	AlertSummary string    `db:"alert_summary" json:"alert_summary"`
	Result       string    `db:"result" json:"result"`
	Outcome      string    `db:"outcome" json:"outcome"`
	Turns        int       `db:"turns" json:"turns"`
	Observations int       `db:"observations" json:"observations"`
	History      string    `db:"history" json:"-"` // JSON array of engine.Entry
	Error        string    `db:"error" json:"error,omitempty"`
	StartedAt    time.Time `db:"started_at" json:"started_at"`
	FinishedAt   time.Time `db:"finished_at" json:"finished_at"`
	DurationMs   int64     `db:"duration_ms" json:"duration_ms"`
}

// FromDiagnosis converts an engine diagnosis into a record.
func FromDiagnosis(d *engine.Diagnosis) (*Record, error) {
	history := d.History
	if history == nil {
		history = []engine.Entry{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return &Record{
		RunID:        d.RunID,
		AlertSummary: d.AlertSummary,
		Result:       d.Result,
		Outcome:      string(d.Outcome),
		Turns:        d.Turns,
		Observations: d.Observations,
		History:      string(raw),
		Error:        d.Error,
		StartedAt:    d.StartedAt.UTC(),
		FinishedAt:   d.FinishedAt.UTC(),
		DurationMs:   d.Duration.Milliseconds(),
	}, nil
}

// Entries decodes the stored conversation history.
func (r *Record) Entries() ([]engine.Entry, error) {
	if r.History == "" {
		return nil, nil
	}
	var entries []engine.Entry
	if err := json.Unmarshal([]byte(r.History), &entries); err != nil {
		return nil, fmt.Errorf("decode history of %s: %w", r.RunID, err)
	}
	return entries, nil
}
