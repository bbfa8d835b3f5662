package engine

import (
	"context"
	"time"
)

// RunInfo identifies a run to hooks.
type RunInfo struct {
	RunID        string    `json:"run_id"`
	AlertSummary string    `json:"alert_summary"`
	StartedAt    time.Time `json:"started_at"`
}

// Hooks observe the lifecycle of every run. Implementations are called
// synchronously from the run's goroutine and must not block.
type Hooks interface {
	RunStarted(ctx context.Context, run RunInfo)
	TurnCompleted(ctx context.Context, run RunInfo, turn int, decision Decision)
	CapabilityInvoked(ctx context.Context, run RunInfo, inv Invocation)
	RunFinished(ctx context.Context, run RunInfo, d *Diagnosis)
}

// NopHooks ignores every event.
type NopHooks struct{}

func (NopHooks) RunStarted(context.Context, RunInfo)                    {}
func (NopHooks) TurnCompleted(context.Context, RunInfo, int, Decision)  {}
func (NopHooks) CapabilityInvoked(context.Context, RunInfo, Invocation) {}
func (NopHooks) RunFinished(context.Context, RunInfo, *Diagnosis)       {}

// MultiHooks fans every event out in order.
type MultiHooks []Hooks

func (m MultiHooks) RunStarted(ctx context.Context, run RunInfo) {
	for _, h := range m {
		h.RunStarted(ctx, run)
	}
}

func (m MultiHooks) TurnCompleted(ctx context.Context, run RunInfo, turn int, decision Decision) {
	for _, h := range m {
		h.TurnCompleted(ctx, run, turn, decision)
	}
}

func (m MultiHooks) CapabilityInvoked(ctx context.Context, run RunInfo, inv Invocation) {
	for _, h := range m {
		h.CapabilityInvoked(ctx, run, inv)
	}
}

func (m MultiHooks) RunFinished(ctx context.Context, run RunInfo, d *Diagnosis) {
	for _, h := range m {
		h.RunFinished(ctx, run, d)
	}
}
