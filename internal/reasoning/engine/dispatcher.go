package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/capability"
)

// InvocationStatus classifies the outcome of one dispatch.
type InvocationStatus string

const (
	StatusOK           InvocationStatus = "ok"
	StatusUnrecognized InvocationStatus = "unrecognized"
	StatusValidation   InvocationStatus = "validation"
	StatusReachability InvocationStatus = "reachability"
	StatusBackend      InvocationStatus = "backend"
)

// Invocation describes one dispatch for hooks.
type Invocation struct {
	Capability string                 `json:"capability"`
	Arguments  map[string]interface{} `json:"arguments,omitempty"`
	Status     InvocationStatus       `json:"status"`
	Duration   time.Duration          `json:"duration"`
	Err        error                  `json:"-"`
}

// Dispatcher executes capability requests against the registry. Every
// outcome, including failure, becomes an observation entry.
type Dispatcher struct {
	registry *capability.Registry
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *capability.Registry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch runs exactly one capability. It never returns an error: unknown
// names, rejected arguments and adapter failures are all reported in the
// observation content.
func (d *Dispatcher) Dispatch(ctx context.Context, req CapabilityRequest) (Entry, Invocation) {
	inv := Invocation{Capability: req.Name, Arguments: req.Arguments}
	obs := Entry{
		Role:       RoleObservation,
		Capability: req.Name,
		RequestID:  req.ID,
	}

	c, ok := d.registry.Lookup(req.Name)
	if !ok {
		inv.Status = StatusUnrecognized
		obs.Content = fmt.Sprintf("Capability %q is unrecognized. Available capabilities: %s.",
			req.Name, strings.Join(d.registry.Names(), ", "))
		d.logger.Warn("unrecognized capability requested", zap.String("capability", req.Name))
		obs.Timestamp = time.Now().UTC()
		return obs, inv
	}

	if err := d.registry.Validate(req.Name, req.Arguments); err != nil {
		inv.Status = StatusValidation
		inv.Err = err
		obs.Content = fmt.Sprintf("Capability %q rejected its arguments: %v", req.Name, unwrapAdapter(err))
		d.logger.Info("capability arguments rejected", zap.String("capability", req.Name), zap.Error(err))
		obs.Timestamp = time.Now().UTC()
		return obs, inv
	}

	start := time.Now()
	out, err := invoke(ctx, c, req.Arguments)
	inv.Duration = time.Since(start)
	obs.Timestamp = time.Now().UTC()

	if err == nil {
		inv.Status = StatusOK
		obs.Content = out
		return obs, inv
	}

	inv.Err = err
	switch {
	case capability.IsKind(err, capability.KindValidation):
		inv.Status = StatusValidation
		obs.Content = fmt.Sprintf("Capability %q rejected its arguments: %v", req.Name, unwrapAdapter(err))
	case capability.IsKind(err, capability.KindReachability):
		inv.Status = StatusReachability
		obs.Content = fmt.Sprintf("Capability %q failed: the backing service could not be reached: %v", req.Name, unwrapAdapter(err))
	default:
		inv.Status = StatusBackend
		obs.Content = fmt.Sprintf("Capability %q failed: the backing service returned an error: %v", req.Name, unwrapAdapter(err))
	}
	d.logger.Warn("capability failed",
		zap.String("capability", req.Name),
		zap.String("status", string(inv.Status)),
		zap.Duration("duration", inv.Duration),
		zap.Error(err),
	)
	return obs, inv
}

// invoke shields the run from a panicking adapter.
func invoke(ctx context.Context, c capability.Capability, args map[string]interface{}) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("capability panicked: %v", r)
		}
	}()
	return c.Invoke(ctx, args)
}

func unwrapAdapter(err error) error {
	var ae *capability.AdapterError
	if errors.As(err, &ae) && ae.Err != nil {
		return ae.Err
	}
	return err
}
