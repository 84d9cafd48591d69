package exec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowtitan/flowtitan/internal/action"
	"github.com/flowtitan/flowtitan/internal/cfg"
	"github.com/flowtitan/flowtitan/internal/events"
	"github.com/flowtitan/flowtitan/internal/negotiator"
	"github.com/flowtitan/flowtitan/internal/value"
)

// NodeOutcome is one executed node's terminal status, collected into a
// PlanResult as the orchestrator walks the graph.
type NodeOutcome struct {
	NodeID string
	Status string // "ok" | "error"
	Result map[string]interface{}
	Error  string
}

// PlanResult is ExecutePlan's return value (§4.7).
type PlanResult struct {
	PlanID  string
	Status  string // "completed" | "failed"
	Elapsed time.Duration
	Nodes   []NodeOutcome
	Error   string
}

// Orchestrator walks a compiled CFG from entry to exit, dispatching Task
// actions through the worker pool and resolving Decision/Loop/Retry/
// parallel-group semantics along the way (§4.7). Traversal follows labeled
// successor edges directly; it never flattens the graph into a list.
type Orchestrator struct {
	pool                *WorkerPool
	bus                 *events.Bus
	nodeDispatchTimeout time.Duration
}

func NewOrchestrator(pool *WorkerPool, bus *events.Bus, nodeDispatchTimeout time.Duration) *Orchestrator {
	if nodeDispatchTimeout <= 0 {
		nodeDispatchTimeout = 30 * time.Second
	}
	return &Orchestrator{pool: pool, bus: bus, nodeDispatchTimeout: nodeDispatchTimeout}
}

// ExecutePlan traverses g from g.Entry, stopping at g.Exit or the first
// unhandled node failure. A nil bus is allowed (events are dropped), which
// keeps the orchestrator usable without a running event subsystem in tests.
func (o *Orchestrator) ExecutePlan(ctx context.Context, sessionID, planID string, g *cfg.CFG, caller negotiator.CallerContext) PlanResult {
	start := time.Now()
	tracker := NewStateTracker()
	vars := newVarStore()
	loops := NewLoopEngine(NewConditionEvaluator(resolverOver(tracker, vars)))

	result := PlanResult{PlanID: planID}
	var outcomes []NodeOutcome

	currentID := g.Entry
	steps := 0
	for currentID != "" && currentID != g.Exit {
		steps++
		if steps > 1_000_000 {
			result.Status = "failed"
			result.Error = "exceeded maximum traversal step guard"
			break
		}

		node, ok := g.Nodes[currentID]
		if !ok {
			result.Status = "failed"
			result.Error = fmt.Sprintf("node %q not found", currentID)
			break
		}

		var next string
		var err error
		if _, marked := isParallelMarked(node); marked {
			group := o.collectParallelGroup(g, currentID)
			next, err = o.runParallelGroup(ctx, sessionID, planID, g, group, tracker, loops, vars, caller, &outcomes)
		} else {
			next, err = o.step(ctx, sessionID, planID, g, node, tracker, loops, vars, caller, &outcomes)
		}

		if err != nil {
			result.Status = "failed"
			result.Error = err.Error()
			o.emit(sessionID, planID, currentID, events.ErrorOccurred, map[string]interface{}{
				"node_id": currentID,
				"error":   err.Error(),
			})
			break
		}
		currentID = next
	}

	if result.Status == "" {
		result.Status = "completed"
	}
	result.Elapsed = time.Since(start)
	result.Nodes = outcomes

	o.emit(sessionID, planID, "", events.PlanCompleted, map[string]interface{}{
		"plan_id":         planID,
		"status":          result.Status,
		"elapsed_seconds": result.Elapsed.Seconds(),
	})
	return result
}

// step executes a single node per its kind and returns the id to advance
// to next ("" means advance to exit, per the §4.7 tie-break).
func (o *Orchestrator) step(ctx context.Context, sessionID, planID string, g *cfg.CFG, node *cfg.Node, tracker *StateTracker, loops *LoopEngine, vars *varStore, caller negotiator.CallerContext, outcomes *[]NodeOutcome) (string, error) {
	switch node.Kind {
	case cfg.KindTask:
		return o.stepTask(ctx, sessionID, planID, node, tracker, vars, caller, outcomes)
	case cfg.KindDecision:
		return o.stepDecision(sessionID, planID, node, tracker, vars)
	case cfg.KindLoop:
		return o.stepLoop(sessionID, planID, node, loops, vars)
	case cfg.KindRetry:
		return o.stepRetry(ctx, sessionID, planID, g, node, tracker, loops, vars, caller, outcomes)
	default: // start, end, noop, call (untyped passthrough)
		o.emit(sessionID, planID, node.ID, events.NodeStarted, map[string]interface{}{"node_id": node.ID, "name": node.Name})
		o.emit(sessionID, planID, node.ID, events.NodeFinished, map[string]interface{}{"node_id": node.ID, "name": node.Name})
		return defaultNext(node), nil
	}
}

func (o *Orchestrator) stepTask(ctx context.Context, sessionID, planID string, node *cfg.Node, tracker *StateTracker, vars *varStore, caller negotiator.CallerContext, outcomes *[]NodeOutcome) (string, error) {
	tracker.EnsureNode(node.ID, node.TaskRef)
	o.emit(sessionID, planID, node.ID, events.NodeStarted, map[string]interface{}{"node_id": node.ID, "name": node.Name})
	tracker.SetRunning(node.ID)
	o.emit(sessionID, planID, node.ID, events.TaskStarted, map[string]interface{}{"node_id": node.ID, "task_ref": node.TaskRef})

	act := o.buildAction(node, tracker, vars)
	dispatchCtx, cancel := context.WithTimeout(ctx, o.nodeDispatchTimeout)
	dr := o.pool.Dispatch(dispatchCtx, ActionRequest{
		Action:   act,
		NodeMeta: node.Metadata,
		Caller:   caller,
	})
	cancel()

	if dr.Status == "ok" {
		tracker.SetCompleted(node.ID, value.FromAny(dr.Result))
		*outcomes = append(*outcomes, NodeOutcome{NodeID: node.ID, Status: "ok", Result: dr.Result})
		o.emit(sessionID, planID, node.ID, events.TaskFinished, map[string]interface{}{"node_id": node.ID, "result": dr.Result})
		o.emit(sessionID, planID, node.ID, events.NodeFinished, map[string]interface{}{"node_id": node.ID, "status": "ok"})
		return defaultNext(node), nil
	}

	tracker.SetFailed(node.ID, dr.Error)
	*outcomes = append(*outcomes, NodeOutcome{NodeID: node.ID, Status: "error", Error: dr.Error})
	o.emit(sessionID, planID, node.ID, events.TaskFinished, map[string]interface{}{"node_id": node.ID, "error": dr.Error})
	o.emit(sessionID, planID, node.ID, events.NodeFinished, map[string]interface{}{"node_id": node.ID, "status": "error"})
	if node.ContinueOnError {
		return defaultNext(node), nil
	}
	return "", fmt.Errorf("task %s failed: %s", node.ID, dr.Error)
}

// buildAction turns the compiler's metadata.dsl_call = {name, args} shape
// into an Action, resolving any {"expr": "..."} argument against the
// current state/var bindings.
func (o *Orchestrator) buildAction(node *cfg.Node, tracker *StateTracker, vars *varStore) action.Action {
	call, _ := node.Metadata["dsl_call"].(map[string]interface{})
	name, _ := call["name"].(string)
	rawArgs, _ := call["args"].(map[string]interface{})

	evaluator := NewConditionEvaluator(resolverOver(tracker, vars))
	args := make(map[string]interface{}, len(rawArgs))
	for k, v := range rawArgs {
		if exprMap, ok := v.(map[string]interface{}); ok {
			if text, ok := exprMap["expr"].(string); ok {
				if resolved, err := evaluator.Resolve(text); err == nil {
					args[k] = value.ToAny(resolved)
					continue
				}
			}
		}
		args[k] = v
	}

	actionType := action.TypeExec
	switch hint, _ := node.Metadata["action_type"].(string); hint {
	case "plugin":
		actionType = action.TypePlugin
	case "host":
		actionType = action.TypeHost
	case "simulated":
		actionType = action.TypeSimulated
	}
	module, _ := node.Metadata["module"].(string)

	return action.Action{
		Type:     actionType,
		Command:  name,
		Module:   module,
		Args:     args,
		Metadata: node.Metadata,
	}
}

func (o *Orchestrator) stepDecision(sessionID, planID string, node *cfg.Node, tracker *StateTracker, vars *varStore) (string, error) {
	o.emit(sessionID, planID, node.ID, events.NodeStarted, map[string]interface{}{"node_id": node.ID})

	evaluator := NewConditionEvaluator(resolverOver(tracker, vars))
	taken := evaluator.Evaluate(node.Condition)
	branch := "false"
	if taken {
		branch = "true"
	}

	o.emit(sessionID, planID, node.ID, events.DecisionTaken, map[string]interface{}{
		"node_id":   node.ID,
		"condition": node.Condition,
		"branch":    branch,
	})
	o.emit(sessionID, planID, node.ID, events.NodeFinished, map[string]interface{}{"node_id": node.ID})
	return node.Successors[branch], nil
}

func (o *Orchestrator) stepLoop(sessionID, planID string, node *cfg.Node, loops *LoopEngine, vars *varStore) (string, error) {
	o.emit(sessionID, planID, node.ID, events.NodeStarted, map[string]interface{}{"node_id": node.ID})

	item, ok := loops.ShouldContinue(node)
	if !ok {
		o.emit(sessionID, planID, node.ID, events.NodeFinished, map[string]interface{}{"node_id": node.ID, "branch": "break"})
		return node.Successors["break"], nil
	}

	o.emit(sessionID, planID, node.ID, events.LoopIteration, map[string]interface{}{
		"node_id":      node.ID,
		"iterator_var": node.IteratorVar,
		"item":         value.ToAny(item),
	})
	bodyID := node.Successors["body"]
	if bodyID == "" {
		// empty body tie-break: treat as break
		return node.Successors["break"], nil
	}
	if node.IteratorVar != "" {
		vars.set(node.IteratorVar, item)
	}
	return bodyID, nil
}

func (o *Orchestrator) stepRetry(ctx context.Context, sessionID, planID string, g *cfg.CFG, node *cfg.Node, tracker *StateTracker, loops *LoopEngine, vars *varStore, caller negotiator.CallerContext, outcomes *[]NodeOutcome) (string, error) {
	o.emit(sessionID, planID, node.ID, events.NodeStarted, map[string]interface{}{"node_id": node.ID})

	re := NewRetryEngine()
	attempt := 0
	result := re.Run(func() (map[string]interface{}, bool, error) {
		attempt++
		res, success, err := o.runRetryChild(ctx, sessionID, planID, g, node.ChildNodeID, tracker, loops, vars, caller, outcomes)
		o.emit(sessionID, planID, node.ID, events.RetryAttempt, map[string]interface{}{
			"node_id": node.ID,
			"attempt": attempt,
			"success": success && err == nil,
		})
		return res, success, err
	}, node.Attempts, node.BackoffSeconds)

	if !result.Success {
		msg := "retry budget exhausted"
		if result.LastErr != nil {
			msg = result.LastErr.Error()
		}
		*outcomes = append(*outcomes, NodeOutcome{NodeID: node.ID, Status: "error", Error: msg})
		o.emit(sessionID, planID, node.ID, events.NodeFinished, map[string]interface{}{"node_id": node.ID, "status": "error"})
		return "", fmt.Errorf("retry %s exhausted %d attempt(s): %s", node.ID, node.Attempts, msg)
	}

	*outcomes = append(*outcomes, NodeOutcome{NodeID: node.ID, Status: "ok", Result: result.Result})
	o.emit(sessionID, planID, node.ID, events.NodeFinished, map[string]interface{}{"node_id": node.ID, "status": "ok"})
	return defaultNext(node), nil
}

// runRetryChild walks the subgraph rooted at childID to its dead end (the
// compiler never wires the child chain back into the generic successor
// graph, so the walk stops the moment a node has no outgoing edge). The
// last dispatched outcome's status determines attempt success.
func (o *Orchestrator) runRetryChild(ctx context.Context, sessionID, planID string, g *cfg.CFG, childID string, tracker *StateTracker, loops *LoopEngine, vars *varStore, caller negotiator.CallerContext, outcomes *[]NodeOutcome) (map[string]interface{}, bool, error) {
	currentID := childID
	var lastResult map[string]interface{}
	ok := true
	steps := 0
	for currentID != "" {
		steps++
		if steps > 100_000 {
			return lastResult, false, fmt.Errorf("retry subgraph exceeded step guard")
		}
		node, exists := g.Nodes[currentID]
		if !exists {
			return lastResult, false, fmt.Errorf("retry child node %q not found", currentID)
		}

		before := len(*outcomes)
		next, err := o.step(ctx, sessionID, planID, g, node, tracker, loops, vars, caller, outcomes)
		if len(*outcomes) > before {
			last := (*outcomes)[len(*outcomes)-1]
			lastResult = last.Result
			ok = last.Status == "ok"
		}
		if err != nil {
			return lastResult, false, err
		}
		currentID = next
	}
	return lastResult, ok, nil
}

func isParallelMarked(node *cfg.Node) (group string, marked bool) {
	if node.Metadata == nil {
		return "", false
	}
	if g, ok := node.Metadata["parallel_group"].(string); ok && g != "" {
		return g, true
	}
	if p, ok := node.Metadata["parallel"].(bool); ok && p {
		return "", true
	}
	return "", false
}

// collectParallelGroup gathers the contiguous run of nodes starting at
// startID that share a parallel marker, following only the generic "next"
// chain (mirrors the teacher's list-contiguity grouping, adapted to walk
// graph edges instead of a flat node list).
func (o *Orchestrator) collectParallelGroup(g *cfg.CFG, startID string) []string {
	ids := []string{startID}
	node := g.Nodes[startID]
	group, _ := isParallelMarked(node)

	cur := defaultNext(node)
	for cur != "" {
		next, ok := g.Nodes[cur]
		if !ok {
			break
		}
		ng, marked := isParallelMarked(next)
		if !marked || (group != "" && ng != group) {
			break
		}
		ids = append(ids, cur)
		cur = defaultNext(next)
	}
	return ids
}

// runParallelGroup dispatches every member concurrently and waits for all
// to finish. Any member failure aborts the plan unless that member's
// metadata sets continue_on_error.
func (o *Orchestrator) runParallelGroup(ctx context.Context, sessionID, planID string, g *cfg.CFG, ids []string, tracker *StateTracker, loops *LoopEngine, vars *varStore, caller negotiator.CallerContext, outcomes *[]NodeOutcome) (string, error) {
	var wg sync.WaitGroup
	memberOutcomes := make([]NodeOutcome, len(ids))
	memberErrs := make([]error, len(ids))

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			node := g.Nodes[id]
			var local []NodeOutcome
			_, err := o.step(ctx, sessionID, planID, g, node, tracker, loops, vars, caller, &local)
			if len(local) > 0 {
				memberOutcomes[i] = local[len(local)-1]
			} else {
				memberOutcomes[i] = NodeOutcome{NodeID: id, Status: "ok"}
			}
			memberErrs[i] = err
		}(i, id)
	}
	wg.Wait()

	var firstErr error
	for i, err := range memberErrs {
		*outcomes = append(*outcomes, memberOutcomes[i])
		member := g.Nodes[ids[i]]
		continueOnError, _ := member.Metadata["continue_on_error"].(bool)
		if err != nil && !member.ContinueOnError && !continueOnError && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return "", firstErr
	}
	return defaultNext(g.Nodes[ids[len(ids)-1]]), nil
}

// defaultNext resolves the generic forward edge off a node: "next" for
// ordinary statement chains, "continue" for a loop body's tail (the edge
// that cycles back into the loop node). No edge present means advance to
// exit, per §4.7's tie-break.
func defaultNext(node *cfg.Node) string {
	if next, ok := node.Successors["next"]; ok && next != "" {
		return next
	}
	if next, ok := node.Successors["continue"]; ok && next != "" {
		return next
	}
	return ""
}

func (o *Orchestrator) emit(sessionID, planID, nodeID string, t events.Type, payload map[string]interface{}) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.New(t, sessionID, planID, nodeID, payload))
}

// varStore is a concurrency-safe binding of loop iterator variables,
// shared by the resolver used in condition/arg evaluation. A plain map
// isn't safe here because parallel groups dispatch member nodes on their
// own goroutines.
type varStore struct {
	mu sync.RWMutex
	m  map[string]value.Value
}

func newVarStore() *varStore { return &varStore{m: map[string]value.Value{}} }

func (v *varStore) set(name string, val value.Value) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.m[name] = val
}

func (v *varStore) get(name string) (value.Value, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.m[name]
	return val, ok
}

func resolverOver(tracker *StateTracker, vars *varStore) Resolver {
	return func(name string) value.Value {
		if v, ok := vars.get(name); ok {
			return v
		}
		if st, ok := tracker.GetStateByTaskName(name); ok {
			return st.Result
		}
		return value.NullValue()
	}
}
