package exec

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowtitan/flowtitan/internal/action"
	"github.com/flowtitan/flowtitan/internal/cfg"
	"github.com/flowtitan/flowtitan/internal/compiler"
	"github.com/flowtitan/flowtitan/internal/dsl"
	"github.com/flowtitan/flowtitan/internal/events"
	"github.com/flowtitan/flowtitan/internal/negotiator"
	"github.com/flowtitan/flowtitan/internal/policy"
	"github.com/flowtitan/flowtitan/internal/registry"
)

type scriptedProvider struct {
	results []scriptedResult
	calls   int32
}

type scriptedResult struct {
	result map[string]interface{}
	err    error
	delay  time.Duration
}

func (p *scriptedProvider) Execute(ctx context.Context, act action.Action) (map[string]interface{}, error) {
	i := int(atomic.AddInt32(&p.calls, 1)) - 1
	if i >= len(p.results) {
		return map[string]interface{}{"status": "success"}, nil
	}
	r := p.results[i]
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.result, r.err
}

func compileSrc(t *testing.T, src string) *cfg.CFG {
	t.Helper()
	root, err := dsl.Parse(src)
	require.NoError(t, err)
	g, err := compiler.Compile(root)
	require.NoError(t, err)
	return g
}

func newOrchestratorHarness(maxWorkers int64) (*Orchestrator, *scriptedProvider) {
	reg := registry.New()
	neg := negotiator.New(reg, policy.New(nil, policy.Permissive))
	pool := NewWorkerPool(maxWorkers, neg, reg)
	provider := &scriptedProvider{}
	pool.RegisterProvider("sandbox", provider)
	bus := events.NewBus(8)
	return NewOrchestrator(pool, bus, time.Second), provider
}

func TestExecutePlanLinearSuccessCompletesAndTracksBothTasks(t *testing.T) {
	g := compileSrc(t, "t1 = task(name=\"load\")\nt2 = task(name=\"process\", data=t1.result)\n")
	orch, provider := newOrchestratorHarness(4)
	provider.results = []scriptedResult{
		{result: map[string]interface{}{"status": "success", "value": 1}},
		{result: map[string]interface{}{"status": "success", "value": 2}},
	}

	result := orch.ExecutePlan(context.Background(), "sess-1", "plan-1", g, negotiator.CallerContext{Trust: policy.TrustMedium})

	require.Equal(t, "completed", result.Status)
	var okCount int
	for _, n := range result.Nodes {
		if n.Status == "ok" {
			okCount++
		}
	}
	assert.Equal(t, 2, okCount)

	h1, err := g.CanonicalHash()
	require.NoError(t, err)
	g2 := compileSrc(t, "t1 = task(name=\"load\")\nt2 = task(name=\"process\", data=t1.result)\n")
	h2, err := g2.CanonicalHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestExecutePlanDecisionFollowsUnresolvedConditionToFalseBranch(t *testing.T) {
	g := compileSrc(t, "if t1.ok:\n    task(name=\"a\")\nelse:\n    task(name=\"b\")\n")
	orch, provider := newOrchestratorHarness(4)
	provider.results = []scriptedResult{{result: map[string]interface{}{"status": "success"}}}

	result := orch.ExecutePlan(context.Background(), "sess-1", "plan-2", g, negotiator.CallerContext{Trust: policy.TrustMedium})
	require.Equal(t, "completed", result.Status)
	require.Len(t, result.Nodes, 1, "exactly one branch's task should run")
}

func TestExecutePlanLoopIteratesFixedItemSequence(t *testing.T) {
	g := compileSrc(t, "t0 = task(name=\"list\")\nfor x in t0.items:\n    task(name=\"upload\", item=x)\n")
	orch, provider := newOrchestratorHarness(4)
	provider.results = []scriptedResult{
		{result: map[string]interface{}{"status": "success", "items": []interface{}{1, 2}}},
		{result: map[string]interface{}{"status": "success"}},
		{result: map[string]interface{}{"status": "success"}},
	}

	result := orch.ExecutePlan(context.Background(), "sess-1", "plan-3", g, negotiator.CallerContext{Trust: policy.TrustMedium})
	require.Equal(t, "completed", result.Status)

	var taskOk int
	for _, n := range result.Nodes {
		if n.Status == "ok" {
			taskOk++
		}
	}
	assert.Equal(t, 3, taskOk) // list task + 2 loop iterations
}

func TestExecutePlanRetryAbsorbsFailuresThenSucceeds(t *testing.T) {
	g := compileSrc(t, "retry attempts=3 backoff=0.01:\n    task(name=\"save\")\n")
	orch, provider := newOrchestratorHarness(4)
	provider.results = []scriptedResult{
		{err: errors.New("boom")},
		{err: errors.New("boom again")},
		{result: map[string]interface{}{"status": "success"}},
	}

	var attempts int32
	unsub := orch.bus.Subscribe(string(events.RetryAttempt), func(events.Event) {
		atomic.AddInt32(&attempts, 1)
	})
	defer unsub()

	start := time.Now()
	result := orch.ExecutePlan(context.Background(), "sess-1", "plan-4", g, negotiator.CallerContext{Trust: policy.TrustMedium})
	elapsed := time.Since(start)
	orch.bus.Shutdown() // drain in-flight async handlers before reading attempts

	require.Equal(t, "completed", result.Status)
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&attempts)), 3)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestExecutePlanRetryExhaustionFailsPlan(t *testing.T) {
	g := compileSrc(t, "retry attempts=2 backoff=0.01:\n    task(name=\"save\")\n")
	orch, provider := newOrchestratorHarness(4)
	provider.results = []scriptedResult{
		{err: errors.New("boom")},
		{err: errors.New("boom again")},
	}

	result := orch.ExecutePlan(context.Background(), "sess-1", "plan-5", g, negotiator.CallerContext{Trust: policy.TrustMedium})
	require.Equal(t, "failed", result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestExecutePlanParallelGroupRunsConcurrently(t *testing.T) {
	g := cfg.New()
	g.AddNode(cfg.NewStart("start", "start"))
	a := cfg.NewTask("a", "task:a", "a")
	a.Metadata = map[string]interface{}{"dsl_call": map[string]interface{}{"name": "a", "args": map[string]interface{}{}}, "parallel_group": "grp"}
	b := cfg.NewTask("b", "task:b", "b")
	b.Metadata = map[string]interface{}{"dsl_call": map[string]interface{}{"name": "b", "args": map[string]interface{}{}}, "parallel_group": "grp"}
	g.AddNode(a)
	g.AddNode(b)
	g.AddNode(cfg.NewEnd("end", "end"))
	require.NoError(t, g.AddEdge("start", "a", "next"))
	require.NoError(t, g.AddEdge("a", "b", "next"))
	require.NoError(t, g.AddEdge("b", "end", "next"))
	require.NoError(t, g.ValidateIntegrity())

	orch, provider := newOrchestratorHarness(4)
	provider.results = []scriptedResult{
		{result: map[string]interface{}{"status": "success"}, delay: 30 * time.Millisecond},
		{result: map[string]interface{}{"status": "success"}, delay: 30 * time.Millisecond},
	}

	start := time.Now()
	result := orch.ExecutePlan(context.Background(), "sess-1", "plan-6", g, negotiator.CallerContext{Trust: policy.TrustMedium})
	elapsed := time.Since(start)

	require.Equal(t, "completed", result.Status)
	assert.Less(t, elapsed, 55*time.Millisecond, "parallel group members should overlap, not run back to back")
}
