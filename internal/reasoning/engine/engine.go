// Package engine is the diagnostic orchestrator: a reason-act-observe loop
// that alternates a reasoning step with at most one capability call per turn
// until the backend concludes or the turn budget runs out, then finalizes.
//
//	REASONING ──dispatch──▶ DISPATCH ──▶ REASONING
//	    │
//	    └──finalize / budget / backend failure──▶ FINALIZE ──▶ TERMINAL
//
// Every run owns a fresh State. The capability registry, the backend and the
// prompts are shared read-only by all concurrent runs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/capability"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/prompt"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/tracing"
)

// DefaultMaxTurns is the turn budget when none is configured.
const DefaultMaxTurns = 5

// ErrEmptyAlert is returned by Diagnose for a blank alert description.
var ErrEmptyAlert = errors.New("alert description is required")

// Diagnosis is the result of one run.
type Diagnosis struct {
	RunID        string        `json:"run_id"`
	AlertSummary string        `json:"alert_summary"`
	Result       string        `json:"result"`
	Outcome      Outcome       `json:"outcome"`
	Turns        int           `json:"turns"`
	Observations int           `json:"observations"`
	History      []Entry       `json:"history,omitempty"`
	Error        string        `json:"error,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Duration     time.Duration `json:"duration"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxTurns sets the turn budget. Non-positive values are ignored.
func WithMaxTurns(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTurns.Store(int64(n))
		}
	}
}

// WithHooks installs lifecycle observers, called in the given order.
func WithHooks(hooks ...Hooks) Option {
	return func(e *Engine) {
		e.hooks = MultiHooks(hooks)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPrompts replaces the built-in prompts.
func WithPrompts(p *prompt.Manager) Option {
	return func(e *Engine) {
		if p != nil {
			e.prompts = p
		}
	}
}

// WithIDGenerator replaces the run ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// Engine drives diagnoses. It is safe for concurrent use.
type Engine struct {
	registry   *capability.Registry
	reasoner   *Reasoner
	dispatcher *Dispatcher
	finalizer  *Finalizer
	prompts    *prompt.Manager
	hooks      Hooks
	logger     *zap.Logger
	newID      func() string
	maxTurns   atomic.Int64
}

// New creates an engine over backend and registry.
func New(backend Backend, registry *capability.Registry, opts ...Option) (*Engine, error) {
	if backend == nil {
		return nil, fmt.Errorf("reasoning backend is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("capability registry is required")
	}

	e := &Engine{
		registry: registry,
		reasoner: NewReasoner(backend),
		prompts:  prompt.NewManager(),
		hooks:    NopHooks{},
		logger:   zap.NewNop(),
		newID:    uuid.NewString,
	}
	e.maxTurns.Store(DefaultMaxTurns)
	for _, opt := range opts {
		opt(e)
	}
	e.dispatcher = NewDispatcher(registry, e.logger)
	e.finalizer = NewFinalizer(backend, e.prompts, e.logger)
	return e, nil
}

// MaxTurns returns the current turn budget.
func (e *Engine) MaxTurns() int { return int(e.maxTurns.Load()) }

// SetMaxTurns changes the budget for runs started afterwards. Non-positive
// values are ignored.
func (e *Engine) SetMaxTurns(n int) {
	if n > 0 {
		e.maxTurns.Store(int64(n))
	}
}

// Descriptors lists the registered capabilities.
func (e *Engine) Descriptors() []capability.Descriptor {
	return e.registry.Descriptors()
}

// Diagnose runs one diagnosis to completion. Failures inside the run are
// absorbed into the result; an error is returned only for a blank alert or
// when the run itself panics.
func (e *Engine) Diagnose(ctx context.Context, alert string) (diag *Diagnosis, err error) {
	alert = strings.TrimSpace(alert)
	if alert == "" {
		return nil, ErrEmptyAlert
	}

	run := RunInfo{RunID: e.newID(), AlertSummary: alert, StartedAt: time.Now().UTC()}
	ctx, span := tracing.StartSpan(ctx, "diagnosis.run", attribute.String("diagnosis.run_id", run.RunID))
	defer span.End()

	logger := e.logger.With(zap.String("run_id", run.RunID))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("diagnosis %s failed: %v", run.RunID, r)
			diag = nil
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			logger.Error("diagnosis panicked", zap.Any("panic", r))
			e.finishFailed(ctx, run, err)
		}
	}()

	e.hooks.RunStarted(ctx, run)
	logger.Info("diagnosis started", zap.String("alert", alert), zap.Int("max_turns", e.MaxTurns()))

	state := newState(run.RunID, alert, e.prompts.SystemPrompt(), e.prompts.AlertPrompt(alert))
	e.loop(ctx, state, run, logger)

	fctx, fspan := tracing.StartSpan(ctx, "diagnosis.finalize")
	result := e.finalizer.Finalize(fctx, state)
	fspan.End()

	finished := time.Now().UTC()
	diag = &Diagnosis{
		RunID:        run.RunID,
		AlertSummary: alert,
		Result:       result,
		Outcome:      ClassifyOutcome(result, state.fellBack),
		Turns:        state.TurnCount(),
		Observations: len(state.Observations()),
		History:      state.History(),
		StartedAt:    run.StartedAt,
		FinishedAt:   finished,
		Duration:     finished.Sub(run.StartedAt),
	}

	span.SetAttributes(
		attribute.Int("diagnosis.turns", diag.Turns),
		attribute.String("diagnosis.outcome", string(diag.Outcome)),
	)
	logger.Info("diagnosis finished",
		zap.String("outcome", string(diag.Outcome)),
		zap.Int("turns", diag.Turns),
		zap.Int("observations", diag.Observations),
		zap.Duration("duration", diag.Duration),
	)
	e.hooks.RunFinished(ctx, run, diag)
	return diag, nil
}

// ─── Loop ─────────────────────────────────────────────────────────────────────

func (e *Engine) loop(ctx context.Context, state *State, run RunInfo, logger *zap.Logger) {
	maxTurns := e.MaxTurns()
	descriptors := e.registry.Descriptors()

	for state.TurnCount() < maxTurns {
		sctx, span := tracing.StartSpan(ctx, "diagnosis.reason", attribute.Int("diagnosis.turn", state.TurnCount()+1))
		entry, err := e.reasoner.Step(sctx, state.History(), descriptors)
		span.End()
		state.incrementTurn()
		turn := state.TurnCount()

		if err != nil {
			logger.Warn("reasoning step failed, finalizing early", zap.Int("turn", turn), zap.Error(err))
			e.hooks.TurnCompleted(ctx, run, turn, RouteFinalize)
			return
		}

		state.append(entry)
		decision := Route(entry)
		e.hooks.TurnCompleted(ctx, run, turn, decision)
		if entry.Rejected {
			logger.Warn("multiple capability requests rejected", zap.Int("turn", turn))
		}
		if decision == RouteFinalize {
			return
		}

		dctx, dspan := tracing.StartSpan(ctx, "diagnosis.dispatch", attribute.String("capability.name", entry.Request.Name))
		obs, inv := e.dispatcher.Dispatch(dctx, *entry.Request)
		dspan.SetAttributes(attribute.String("capability.status", string(inv.Status)))
		dspan.End()

		state.append(obs)
		e.hooks.CapabilityInvoked(ctx, run, inv)
	}
	logger.Info("turn budget exhausted", zap.Int("max_turns", maxTurns))
}

// finishFailed reports a panicked run to the hooks. A panicking hook is
// swallowed here since the run has already failed.
func (e *Engine) finishFailed(ctx context.Context, run RunInfo, cause error) {
	defer func() { _ = recover() }()
	finished := time.Now().UTC()
	e.hooks.RunFinished(ctx, run, &Diagnosis{
		RunID:        run.RunID,
		AlertSummary: run.AlertSummary,
		Outcome:      OutcomeFailed,
		Error:        cause.Error(),
		StartedAt:    run.StartedAt,
		FinishedAt:   finished,
		Duration:     finished.Sub(run.StartedAt),
	})
}
