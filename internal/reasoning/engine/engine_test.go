package engine_test

// Tests for the diagnostic loop. Strategy: inject a scripted reasoning
// backend and in-memory capabilities so every path of the state machine runs
// without a model or an observability stack.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/capability"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/engine"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

// scriptedBackend answers reasoning calls from replies in order, then with
// always (or a plain "done" text). Finalize calls are recognised by their nil
// descriptor list.
type scriptedBackend struct {
	mu          sync.Mutex
	replies     []engine.Reply
	always      *engine.Reply
	reasonErr   error
	finalize    func(history []engine.Entry) (engine.Reply, error)
	reasonCalls int
	finalCalls  int
}

func (b *scriptedBackend) Complete(_ context.Context, history []engine.Entry, descriptors []capability.Descriptor) (engine.Reply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if descriptors == nil {
		b.finalCalls++
		if b.finalize != nil {
			return b.finalize(history)
		}
		return echoLastUser(history)
	}

	b.reasonCalls++
	if b.reasonErr != nil {
		return engine.Reply{}, b.reasonErr
	}
	if len(b.replies) > 0 {
		r := b.replies[0]
		b.replies = b.replies[1:]
		return r, nil
	}
	if b.always != nil {
		return *b.always, nil
	}
	return engine.Reply{Content: "done"}, nil
}

func echoLastUser(history []engine.Entry) (engine.Reply, error) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == engine.RoleUser {
			return engine.Reply{Content: "Summary of evidence:\n" + history[i].Content}, nil
		}
	}
	return engine.Reply{}, nil
}

func request(name string, args map[string]interface{}) engine.Reply {
	return engine.Reply{Requests: []engine.CapabilityRequest{{ID: "call_" + name, Name: name, Arguments: args}}}
}

type capabilityCalls struct {
	mu    sync.Mutex
	calls []string
}

func (c *capabilityCalls) add(name string) {
	c.mu.Lock()
	c.calls = append(c.calls, name)
	c.mu.Unlock()
}

func (c *capabilityCalls) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func newRegistry(t *testing.T, calls *capabilityCalls) *capability.Registry {
	t.Helper()

	prom := &capability.Func{
		Desc: capability.Descriptor{
			Name:        capability.MetricsQueryName,
			Description: "metrics",
			Parameters:  capability.MustGenerateSchema[capability.MetricsQueryArgs](),
		},
		Fn: func(_ context.Context, args map[string]interface{}) (string, error) {
			calls.add(capability.MetricsQueryName)
			q, _ := args["query"].(string)
			if strings.Contains(q, "rmse") {
				return "value=28.5 (threshold=25.0)", nil
			}
			return "Prometheus query: No data found for the given query and time range.", nil
		},
	}
	loki := &capability.Func{
		Desc: capability.Descriptor{
			Name:        capability.LogQueryName,
			Description: "logs",
			Parameters:  capability.MustGenerateSchema[capability.LogQueryArgs](),
		},
		Fn: func(_ context.Context, _ map[string]interface{}) (string, error) {
			calls.add(capability.LogQueryName)
			return "Loki log search: No logs found for the given query and time range.", nil
		},
	}

	r, err := capability.NewRegistry(prom, loki)
	require.NoError(t, err)
	return r
}

type recordingHooks struct {
	mu          sync.Mutex
	events      []string
	invocations []engine.Invocation
	finished    []*engine.Diagnosis
}

func (h *recordingHooks) record(ev string) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

func (h *recordingHooks) RunStarted(_ context.Context, _ engine.RunInfo) { h.record("started") }

func (h *recordingHooks) TurnCompleted(_ context.Context, _ engine.RunInfo, turn int, d engine.Decision) {
	h.record(fmt.Sprintf("turn:%d:%s", turn, d))
}

func (h *recordingHooks) CapabilityInvoked(_ context.Context, _ engine.RunInfo, inv engine.Invocation) {
	h.mu.Lock()
	h.invocations = append(h.invocations, inv)
	h.mu.Unlock()
	h.record("capability:" + inv.Capability + ":" + string(inv.Status))
}

func (h *recordingHooks) RunFinished(_ context.Context, _ engine.RunInfo, d *engine.Diagnosis) {
	h.mu.Lock()
	h.finished = append(h.finished, d)
	h.mu.Unlock()
	h.record("finished:" + string(d.Outcome))
}

func newEngine(t *testing.T, backend engine.Backend, calls *capabilityCalls, opts ...engine.Option) *engine.Engine {
	t.Helper()
	e, err := engine.New(backend, newRegistry(t, calls), opts...)
	require.NoError(t, err)
	return e
}

func observations(d *engine.Diagnosis) []engine.Entry {
	var out []engine.Entry
	for _, e := range d.History {
		if e.Role == engine.RoleObservation {
			out = append(out, e)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := engine.New(nil, newRegistry(t, &capabilityCalls{}))
	assert.Error(t, err)

	_, err = engine.New(&scriptedBackend{}, nil)
	assert.Error(t, err)
}

func TestDiagnose_RequiresAlert(t *testing.T) {
	e := newEngine(t, &scriptedBackend{}, &capabilityCalls{})
	_, err := e.Diagnose(context.Background(), "   ")
	assert.ErrorIs(t, err, engine.ErrEmptyAlert)
}

func TestDiagnose_RMSEBreach(t *testing.T) {
	backend := &scriptedBackend{replies: []engine.Reply{
		request(capability.MetricsQueryName, map[string]interface{}{"query": "model_rmse{service=\"model-server\"}", "time_range_minutes": 15}),
		request(capability.LogQueryName, map[string]interface{}{"query": `{service="model-server"} |= "error"`}),
		{Content: "RMSE is above its threshold and no errors were logged."},
	}}
	calls := &capabilityCalls{}
	e := newEngine(t, backend, calls, engine.WithMaxTurns(5))

	d, err := e.Diagnose(context.Background(), "Alert 'HighModelRMSE' for service 'model-server': RMSE above 25")
	require.NoError(t, err)

	assert.Equal(t, 3, d.Turns)
	assert.LessOrEqual(t, d.Turns, e.MaxTurns())
	assert.Equal(t, 2, d.Observations)
	assert.Equal(t, []string{capability.MetricsQueryName, capability.LogQueryName}, calls.calls)
	assert.Equal(t, 1, backend.finalCalls)

	assert.Contains(t, d.Result, "28.5")
	assert.Contains(t, d.Result, "threshold=25.0")
	assert.Equal(t, engine.OutcomeSolutionProposed, d.Outcome)
	assert.NotEmpty(t, d.RunID)
}

func TestDiagnose_PlainTextFinalizesOnFirstTurn(t *testing.T) {
	backend := &scriptedBackend{
		always: &engine.Reply{Content: "Everything looks healthy."},
		finalize: func([]engine.Entry) (engine.Reply, error) {
			return engine.Reply{Content: "Gateway latency is likely a slow upstream."}, nil
		},
	}
	calls := &capabilityCalls{}
	hooks := &recordingHooks{}
	e := newEngine(t, backend, calls, engine.WithHooks(hooks))

	d, err := e.Diagnose(context.Background(), "HighLatency on gateway")
	require.NoError(t, err)

	assert.Equal(t, 1, d.Turns)
	assert.Equal(t, 1, backend.reasonCalls)
	assert.Zero(t, calls.count())
	assert.Empty(t, hooks.invocations)
	assert.True(t, strings.HasPrefix(d.Result, engine.InsufficientEvidenceResult), d.Result)
	assert.Contains(t, d.Result, "Gateway latency is likely a slow upstream.")
	assert.Equal(t, []string{"started", "turn:1:finalize", "finished:info"}, hooks.events)
}

func TestDiagnose_TurnBudgetForcesFinalize(t *testing.T) {
	loop := request(capability.MetricsQueryName, map[string]interface{}{"query": "up"})
	backend := &scriptedBackend{always: &loop}
	calls := &capabilityCalls{}
	e := newEngine(t, backend, calls, engine.WithMaxTurns(3))

	d, err := e.Diagnose(context.Background(), "NodeDown")
	require.NoError(t, err)

	assert.Equal(t, 3, d.Turns)
	assert.Equal(t, 3, backend.reasonCalls)
	assert.Equal(t, 3, calls.count())
	assert.Equal(t, 1, backend.finalCalls)
	assert.NotEmpty(t, d.Result)
}

func TestDiagnose_SetMaxTurnsAppliesToNextRun(t *testing.T) {
	loop := request(capability.MetricsQueryName, map[string]interface{}{"query": "up"})
	backend := &scriptedBackend{always: &loop}
	e := newEngine(t, backend, &capabilityCalls{})

	e.SetMaxTurns(2)
	e.SetMaxTurns(0)
	assert.Equal(t, 2, e.MaxTurns())

	d, err := e.Diagnose(context.Background(), "NodeDown")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Turns)
}

func TestDiagnose_RejectsMultipleCapabilitiesPerTurn(t *testing.T) {
	backend := &scriptedBackend{replies: []engine.Reply{{
		Content: "Let me look at everything.",
		Requests: []engine.CapabilityRequest{
			{ID: "a", Name: capability.MetricsQueryName, Arguments: map[string]interface{}{"query": "up"}},
			{ID: "b", Name: capability.LogQueryName, Arguments: map[string]interface{}{"query": `{job="x"}`}},
		},
	}}}
	calls := &capabilityCalls{}
	hooks := &recordingHooks{}
	e := newEngine(t, backend, calls, engine.WithHooks(hooks))

	d, err := e.Diagnose(context.Background(), "HighErrorRate")
	require.NoError(t, err)

	assert.Zero(t, calls.count())
	assert.Empty(t, hooks.invocations)
	assert.Equal(t, 1, d.Turns)

	last := d.History[len(d.History)-1]
	assert.Equal(t, engine.RoleAssistant, last.Role)
	assert.True(t, last.Rejected)
	assert.Nil(t, last.Request)
	assert.Contains(t, last.Content, "only one capability may be invoked per turn")
	assert.NotEmpty(t, d.Result)
}

func TestDiagnose_UnknownCapabilityContinues(t *testing.T) {
	backend := &scriptedBackend{replies: []engine.Reply{
		request("KubectlExec", map[string]interface{}{"cmd": "get pods"}),
		{Content: "Cannot run kubectl; concluding."},
	}}
	hooks := &recordingHooks{}
	e := newEngine(t, backend, &capabilityCalls{}, engine.WithHooks(hooks))

	d, err := e.Diagnose(context.Background(), "PodCrashLooping")
	require.NoError(t, err)

	obs := observations(d)
	require.Len(t, obs, 1)
	assert.Contains(t, obs[0].Content, `Capability "KubectlExec" is unrecognized`)
	assert.Contains(t, obs[0].Content, capability.LogQueryName)
	assert.Equal(t, "call_KubectlExec", obs[0].RequestID)
	assert.Equal(t, 2, d.Turns)

	require.Len(t, hooks.invocations, 1)
	assert.Equal(t, engine.StatusUnrecognized, hooks.invocations[0].Status)
}

func TestDiagnose_ZeroTimeRangeIsRejectedBeforeInvoke(t *testing.T) {
	backend := &scriptedBackend{replies: []engine.Reply{
		request(capability.MetricsQueryName, map[string]interface{}{"query": "model_rmse", "time_range_minutes": 0}),
		request(capability.LogQueryName, map[string]interface{}{"query": `{job="x"}`, "time_range_minutes": 0}),
		{Content: "I could not gather data."},
	}}
	calls := &capabilityCalls{}
	hooks := &recordingHooks{}
	e := newEngine(t, backend, calls, engine.WithHooks(hooks))

	d, err := e.Diagnose(context.Background(), "HighModelRMSE")
	require.NoError(t, err)

	assert.Zero(t, calls.count())
	assert.Equal(t, 3, d.Turns)

	obs := observations(d)
	require.Len(t, obs, 2)
	for _, o := range obs {
		assert.Contains(t, o.Content, "rejected its arguments")
		assert.Contains(t, o.Content, "time_range_minutes")
	}
	for _, inv := range hooks.invocations {
		assert.Equal(t, engine.StatusValidation, inv.Status)
	}
}

func TestDiagnose_AdapterFailureBecomesObservation(t *testing.T) {
	failing := &capability.Func{
		Desc: capability.Descriptor{Name: "Flaky", Parameters: map[string]interface{}{"type": "object"}},
		Fn: func(context.Context, map[string]interface{}) (string, error) {
			return "", &capability.AdapterError{Kind: capability.KindReachability, Capability: "Flaky", Err: errors.New("dial tcp: connection refused")}
		},
	}
	reg, err := capability.NewRegistry(failing)
	require.NoError(t, err)

	backend := &scriptedBackend{replies: []engine.Reply{request("Flaky", nil), {Content: "Backend is down."}}}
	e, err := engine.New(backend, reg)
	require.NoError(t, err)

	d, err := e.Diagnose(context.Background(), "ServiceDown")
	require.NoError(t, err)

	obs := observations(d)
	require.Len(t, obs, 1)
	assert.Contains(t, obs[0].Content, "could not be reached")
	assert.Contains(t, obs[0].Content, "connection refused")
	assert.Equal(t, 2, d.Turns)
}

func TestDiagnose_ReasoningUnavailableFinalizesEarly(t *testing.T) {
	backend := &scriptedBackend{reasonErr: errors.New("503 from provider")}
	e := newEngine(t, backend, &capabilityCalls{})

	d, err := e.Diagnose(context.Background(), "HighLatency")
	require.NoError(t, err)

	assert.Equal(t, 1, d.Turns)
	assert.Equal(t, 1, backend.finalCalls)
	assert.Contains(t, d.Result, "No observations were gathered")
}

func TestDiagnose_FinalizerFallback(t *testing.T) {
	backend := &scriptedBackend{
		reasonErr: errors.New("timeout"),
		finalize: func([]engine.Entry) (engine.Reply, error) {
			return engine.Reply{}, engine.ErrReasoningUnavailable
		},
	}
	e := newEngine(t, backend, &capabilityCalls{})

	d, err := e.Diagnose(context.Background(), "HighLatency")
	require.NoError(t, err)
	assert.Equal(t, engine.UnavailableResult, d.Result)
	assert.Equal(t, engine.OutcomeFailed, d.Outcome)
}

func TestDiagnose_PanicIsPipelineFailure(t *testing.T) {
	backend := &scriptedBackend{finalize: func([]engine.Entry) (engine.Reply, error) {
		panic("boom")
	}}
	hooks := &recordingHooks{}
	e := newEngine(t, backend, &capabilityCalls{}, engine.WithHooks(hooks))

	d, err := e.Diagnose(context.Background(), "HighLatency")
	require.Error(t, err)
	assert.Nil(t, d)
	assert.Contains(t, err.Error(), "boom")

	require.Len(t, hooks.finished, 1)
	assert.Equal(t, engine.OutcomeFailed, hooks.finished[0].Outcome)
	assert.NotEmpty(t, hooks.finished[0].Error)
}

func TestDiagnose_HookOrder(t *testing.T) {
	backend := &scriptedBackend{replies: []engine.Reply{
		request(capability.MetricsQueryName, map[string]interface{}{"query": "rmse"}),
		{Content: "critical: RMSE breached"},
	}, finalize: func([]engine.Entry) (engine.Reply, error) {
		return engine.Reply{Content: "Critical drift detected on the model."}, nil
	}}
	hooks := &recordingHooks{}
	e := newEngine(t, backend, &capabilityCalls{}, engine.WithHooks(hooks), engine.WithIDGenerator(func() string { return "run-1" }))

	d, err := e.Diagnose(context.Background(), "HighModelRMSE")
	require.NoError(t, err)

	assert.Equal(t, "run-1", d.RunID)
	assert.Equal(t, engine.OutcomeEscalated, d.Outcome)
	assert.Equal(t, []string{
		"started",
		"turn:1:dispatch",
		"capability:PrometheusQuery:ok",
		"turn:2:finalize",
		"finished:escalated",
	}, hooks.events)
}

// isolationBackend is stateless: it requests one metrics query tagged with
// the run's alert, then concludes.
type isolationBackend struct{}

func (isolationBackend) Complete(_ context.Context, history []engine.Entry, descriptors []capability.Descriptor) (engine.Reply, error) {
	if descriptors == nil {
		return echoLastUser(history)
	}
	for _, e := range history {
		if e.Role == engine.RoleObservation {
			return engine.Reply{Content: "concluded"}, nil
		}
	}
	alert := history[1].Content
	return request(capability.MetricsQueryName, map[string]interface{}{"query": alert}), nil
}

func TestDiagnose_ConcurrentRunsDoNotShareHistory(t *testing.T) {
	e := newEngine(t, isolationBackend{}, &capabilityCalls{})

	const runs = 16
	results := make([]*engine.Diagnosis, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := e.Diagnose(context.Background(), fmt.Sprintf("alert-%02d", i))
			assert.NoError(t, err)
			results[i] = d
		}(i)
	}
	wg.Wait()

	ids := map[string]bool{}
	for i, d := range results {
		require.NotNil(t, d)
		own := fmt.Sprintf("alert-%02d", i)
		assert.Len(t, d.History, 5)
		for _, entry := range d.History {
			for j := 0; j < runs; j++ {
				if j != i {
					assert.NotContains(t, entry.Content, fmt.Sprintf("alert-%02d", j))
				}
			}
		}
		assert.Contains(t, d.Result, own)
		ids[d.RunID] = true
	}
	assert.Len(t, ids, runs)
}
