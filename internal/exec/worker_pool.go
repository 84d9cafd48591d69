package exec

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/flowtitan/flowtitan/internal/action"
	"github.com/flowtitan/flowtitan/internal/negotiator"
	"github.com/flowtitan/flowtitan/internal/registry"
)

// DispatchResult is a worker pool invocation's outcome (§4.6).
type DispatchResult struct {
	Status string // "ok" | "error"
	Result map[string]interface{}
	Error  string
}

// Provider executes an Action synchronously on the goroutine that called
// Dispatch, which already holds a permit of the pool's concurrency gate.
type Provider interface {
	Execute(ctx context.Context, act action.Action) (map[string]interface{}, error)
}

// ActionRequest bundles everything the pool needs to resolve and dispatch
// one Action (§4.6's "action request").
type ActionRequest struct {
	Action   action.Action
	NodeMeta map[string]interface{}
	Context  map[string]interface{}
	Caller   negotiator.CallerContext
}

// WorkerPool is the bounded-concurrency dispatcher: a semaphore gates how
// many provider calls run at once; thread_workers has no direct Go analog
// since goroutines aren't OS threads, so MaxWorkers is the only knob.
type WorkerPool struct {
	sem        *semaphore.Weighted
	negotiator *negotiator.Negotiator
	registry   *registry.Registry
	providers  map[string]Provider // "sandbox", "hostbridge"
}

func NewWorkerPool(maxWorkers int64, neg *negotiator.Negotiator, reg *registry.Registry) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 16
	}
	return &WorkerPool{
		sem:        semaphore.NewWeighted(maxWorkers),
		negotiator: neg,
		registry:   reg,
		providers:  map[string]Provider{},
	}
}

// RegisterProvider installs a built-in provider implementation under name
// ("sandbox" or "hostbridge"); plugin providers are resolved through the
// capability registry instead.
func (p *WorkerPool) RegisterProvider(name string, provider Provider) {
	p.providers[name] = provider
}

// Dispatch acquires a concurrency permit, resolves the final provider, and
// executes the action. Cancelling ctx releases the permit without running
// the provider.
func (p *WorkerPool) Dispatch(ctx context.Context, req ActionRequest) DispatchResult {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return DispatchResult{Status: "error", Error: err.Error()}
	}
	defer p.sem.Release(1)

	providerName := p.resolveProvider(req)
	return p.invoke(ctx, providerName, req)
}

func (p *WorkerPool) resolveProvider(req ActionRequest) string {
	if p.negotiator != nil {
		decision := p.negotiator.Decide(req.Action, req.Caller)
		if decision.Provider != "" {
			return decision.Provider
		}
	}
	if hint, ok := req.NodeMeta["provider"].(string); ok && hint != "" {
		return hint
	}
	if req.Action.Type == action.TypePlugin && req.Action.Module != "" {
		return req.Action.Module
	}
	return "sandbox"
}

func (p *WorkerPool) invoke(ctx context.Context, providerName string, req ActionRequest) DispatchResult {
	switch providerName {
	case "simulated":
		return DispatchResult{Status: "ok", Result: map[string]interface{}{"message": "simulated"}}

	case "denied":
		return DispatchResult{Status: "error", Error: "action denied by policy"}

	case "sandbox", "hostbridge":
		provider, ok := p.providers[providerName]
		if !ok {
			return DispatchResult{Status: "error", Error: fmt.Sprintf("provider %q not configured", providerName)}
		}
		return p.run(ctx, provider, req)

	default:
		plugin, ok := p.registry.Lookup(providerName)
		if !ok {
			return DispatchResult{Status: "error", Error: fmt.Sprintf("plugin %q not registered", providerName)}
		}
		return p.runPlugin(ctx, plugin, req)
	}
}

func (p *WorkerPool) run(ctx context.Context, provider Provider, req ActionRequest) DispatchResult {
	result, err := provider.Execute(ctx, req.Action)
	if err != nil {
		return DispatchResult{Status: "error", Error: err.Error()}
	}
	return DispatchResult{Status: "ok", Result: result}
}

func (p *WorkerPool) runPlugin(ctx context.Context, plugin registry.Plugin, req ActionRequest) DispatchResult {
	command := req.Action.Command
	if command == "" {
		command = "run"
	}
	args := req.Action.Args
	if args == nil {
		args = map[string]interface{}{}
	}

	if async, ok := plugin.(registry.AsyncPlugin); ok {
		result, err := async.ExecuteAsync(command, args)
		if err == nil {
			return DispatchResult{Status: "ok", Result: asMap(result)}
		}
		// fall through to sync retry, mirroring the teacher's async-then-sync fallback
	}

	result, err := plugin.Execute(command, args)
	if err != nil {
		return DispatchResult{Status: "error", Error: err.Error()}
	}
	_ = ctx
	return DispatchResult{Status: "ok", Result: asMap(result)}
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{"value": v}
}
