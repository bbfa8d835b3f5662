package audit

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/engine"
)

// Observer writes the audit trail of every diagnosis run.
type Observer struct {
	logger Logger
	app    *zap.Logger
}

var _ engine.Hooks = (*Observer)(nil)

// NewObserver adapts logger to engine hooks. Write failures go to app.
func NewObserver(logger Logger, app *zap.Logger) *Observer {
	if app == nil {
		app = zap.NewNop()
	}
	return &Observer{logger: logger, app: app}
}

func (o *Observer) RunStarted(ctx context.Context, run engine.RunInfo) {
	o.check(o.logger.LogDiagnosisStarted(ctx, run.RunID, run.AlertSummary))
}

func (o *Observer) TurnCompleted(context.Context, engine.RunInfo, int, engine.Decision) {}

func (o *Observer) CapabilityInvoked(ctx context.Context, run engine.RunInfo, inv engine.Invocation) {
	o.check(o.logger.LogCapabilityInvoked(ctx, run.RunID, inv.Capability, string(inv.Status), inv.Duration, inv.Err))
}

func (o *Observer) RunFinished(ctx context.Context, run engine.RunInfo, d *engine.Diagnosis) {
	if d.Error != "" {
		o.check(o.logger.LogDiagnosisFailed(ctx, run.RunID, errors.New(d.Error)))
		return
	}
	o.check(o.logger.LogDiagnosisCompleted(ctx, run.RunID, string(d.Outcome), d.Turns, d.Duration))
}

func (o *Observer) check(err error) {
	if err != nil {
		o.app.Warn("failed to write audit event", zap.Error(err))
	}
}
