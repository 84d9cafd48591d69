package exec

import (
	"sync"

	"github.com/flowtitan/flowtitan/internal/cfg"
	"github.com/flowtitan/flowtitan/internal/logging"
	"github.com/flowtitan/flowtitan/internal/value"
)

type loopContext struct {
	items        []value.Value
	currentIndex int
	maxIter      int
}

// LoopEngine tracks per-loop-node iteration state across repeated visits to
// the same Loop node during orchestration (§4.7's Loop semantics).
type LoopEngine struct {
	mu        sync.Mutex
	evaluator *ConditionEvaluator
	contexts  map[string]*loopContext
}

func NewLoopEngine(evaluator *ConditionEvaluator) *LoopEngine {
	return &LoopEngine{evaluator: evaluator, contexts: map[string]*loopContext{}}
}

// ShouldContinue decides whether node's next iteration should run. On the
// first call for a node it evaluates the iterable expression once and
// caches it. Returns the current item and true while iteration should
// continue; returns (Null, false) once exhausted or capped, which the
// orchestrator treats as the loop's "break" edge.
func (e *LoopEngine) ShouldContinue(node *cfg.Node) (item value.Value, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, exists := e.contexts[node.ID]
	if !exists {
		resolved, err := e.evaluator.Resolve(node.IterableExpr)
		list, isList := resolved.List()
		if err != nil || !isList {
			logging.Get(logging.CategoryExec).Warn("loop %s iterable did not resolve to a list: %v", node.ID, err)
			return value.NullValue(), false
		}
		maxIter := node.MaxIterations
		if maxIter <= 0 {
			maxIter = 1000
		}
		ctx = &loopContext{items: list, maxIter: maxIter}
		e.contexts[node.ID] = ctx
	}

	if ctx.currentIndex >= len(ctx.items) {
		delete(e.contexts, node.ID)
		return value.NullValue(), false
	}
	if ctx.currentIndex >= ctx.maxIter {
		logging.Get(logging.CategoryExec).Warn("loop %s hit max_iterations", node.ID)
		delete(e.contexts, node.ID)
		return value.NullValue(), false
	}

	current := ctx.items[ctx.currentIndex]
	ctx.currentIndex++
	return current, true
}

// Reset drops any cached iteration state for node, forcing the iterable to
// be re-evaluated on the next ShouldContinue call. The orchestrator does
// not call it: ShouldContinue already drops a node's state once the loop
// is exhausted or capped, so a re-entered loop starts afresh.
func (e *LoopEngine) Reset(nodeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.contexts, nodeID)
}
