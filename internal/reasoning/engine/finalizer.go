package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/prompt"
)

// Fixed results used when the backend cannot produce a summary.
const (
	UnavailableResult          = "Diagnosis unavailable: the reasoning backend could not produce a summary."
	InsufficientEvidenceResult = "Insufficient evidence: no observations were gathered for this alert."
)

// Finalizer produces the terminal diagnosis of a run with one
// non-looping backend call.
type Finalizer struct {
	backend Backend
	prompts *prompt.Manager
	logger  *zap.Logger
}

// NewFinalizer creates a finalizer.
func NewFinalizer(backend Backend, prompts *prompt.Manager, logger *zap.Logger) *Finalizer {
	if prompts == nil {
		prompts = prompt.NewManager()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finalizer{backend: backend, prompts: prompts, logger: logger}
}

// Finalize sets and returns the state's result. On an already finalized
// state it returns the existing result without calling the backend. It
// always yields a non-empty result.
func (f *Finalizer) Finalize(ctx context.Context, state *State) string {
	if result, done := state.Result(); done {
		return result
	}

	observations := state.Observations()
	in := prompt.FinalizeInput{Alert: state.AlertSummary}
	for _, o := range observations {
		in.Observations = append(in.Observations, prompt.Observation{Capability: o.Capability, Text: o.Content})
	}
	in.Notes = agentNotes(state.history)

	system, user, err := f.prompts.Finalize(in)
	if err != nil {
		f.logger.Error("finalize prompt failed", zap.String("run_id", state.RunID), zap.Error(err))
		state.setResult(UnavailableResult, true)
		return UnavailableResult
	}

	now := time.Now().UTC()
	reply, err := f.backend.Complete(ctx, []Entry{
		{Role: RoleSystem, Content: system, Timestamp: now},
		{Role: RoleUser, Content: user, Timestamp: now},
	}, nil)

	result := strings.TrimSpace(reply.Content)
	switch {
	case err != nil:
		f.logger.Warn("finalize call failed, using fallback", zap.String("run_id", state.RunID), zap.Error(err))
		state.setResult(UnavailableResult, true)
	case result == "" && len(observations) == 0:
		state.setResult(InsufficientEvidenceResult, false)
	case result == "":
		f.logger.Warn("finalize returned an empty summary", zap.String("run_id", state.RunID))
		state.setResult(UnavailableResult, true)
	case len(observations) == 0:
		// A summary without evidence always leads with the fixed statement.
		state.setResult(InsufficientEvidenceResult+"\n\n"+result, false)
	default:
		state.setResult(result, false)
	}

	final, _ := state.Result()
	return final
}

// agentNotes collects the non-empty assistant texts of the run.
func agentNotes(history []Entry) []string {
	var notes []string
	for _, e := range history {
		if e.Role != RoleAssistant {
			continue
		}
		if s := strings.TrimSpace(e.Content); s != "" {
			notes = append(notes, s)
		}
	}
	return notes
}
