// Package compiler implements the AST->CFG compilation pass (§4.2): it
// walks DSL statements in order, emitting CFG nodes with stable ids and
// wiring successor edges per node kind, then validates the result.
package compiler

import (
	"fmt"

	"github.com/flowtitan/flowtitan/internal/cfg"
	"github.com/flowtitan/flowtitan/internal/dsl"
	"github.com/flowtitan/flowtitan/internal/errs"
	"github.com/flowtitan/flowtitan/internal/value"
)

type context struct {
	cfg     *cfg.CFG
	counter map[string]int
}

func (c *context) nextID(prefix string) string {
	c.counter[prefix]++
	return fmt.Sprintf("%s_%06d", prefix, c.counter[prefix])
}

// Compile turns a parsed AST Root into a validated CFG. An implicit Start
// node precedes the first statement and an implicit End node follows the
// last; an empty DSL compiles to Start directly wired to End.
func Compile(root *dsl.Root) (*cfg.CFG, error) {
	g := cfg.New()
	ctx := &context{cfg: g, counter: map[string]int{}}

	startID := ctx.nextID("start")
	g.AddNode(cfg.NewStart(startID, "start"))

	prevID := startID
	for _, stmt := range root.Statements {
		next, err := compileStmt(stmt, ctx, prevID)
		if err != nil {
			return nil, err
		}
		prevID = next
	}

	endID := ctx.nextID("end")
	g.AddNode(cfg.NewEnd(endID, "end"))
	if err := g.AddEdge(prevID, endID, "next"); err != nil {
		return nil, errs.New(errs.Validation, "compiler.compile", err)
	}

	if err := g.ValidateIntegrity(); err != nil {
		return nil, err
	}
	return g, nil
}

func compileStmt(stmt dsl.Node, ctx *context, prevID string) (string, error) {
	switch t := stmt.(type) {
	case *dsl.Assign:
		call, ok := t.Value.(*dsl.TaskCall)
		if !ok {
			return "", errs.NewAt(errs.Validation, "compiler.compile_stmt", t.LineNo, fmt.Errorf("unsupported assignment RHS"))
		}
		nodeID := compileTaskCall(call, ctx, t.Target)
		if err := ctx.cfg.AddEdge(prevID, nodeID, "next"); err != nil {
			return "", errs.New(errs.Validation, "compiler.compile_stmt", err)
		}
		return nodeID, nil

	case *dsl.TaskCall:
		nodeID := compileTaskCall(t, ctx, "")
		if err := ctx.cfg.AddEdge(prevID, nodeID, "next"); err != nil {
			return "", errs.New(errs.Validation, "compiler.compile_stmt", err)
		}
		return nodeID, nil

	case *dsl.If:
		return compileIf(t, ctx, prevID)

	case *dsl.For:
		return compileFor(t, ctx, prevID)

	case *dsl.Retry:
		return compileRetry(t, ctx, prevID)

	default:
		noopID := ctx.nextID("noop")
		ctx.cfg.AddNode(cfg.NewNoOp(noopID, "noop_stmt"))
		if err := ctx.cfg.AddEdge(prevID, noopID, "next"); err != nil {
			return "", errs.New(errs.Validation, "compiler.compile_stmt", err)
		}
		return noopID, nil
	}
}

func compileTaskCall(call *dsl.TaskCall, ctx *context, assignVar string) string {
	taskRef := assignVar
	if taskRef == "" {
		taskRef = ctx.nextID("task_ref")
	}
	nodeID := ctx.nextID("task")
	n := cfg.NewTask(nodeID, "task:"+call.Name, taskRef)
	n.Metadata = map[string]interface{}{
		"dsl_call": map[string]interface{}{
			"name": call.Name,
			"args": serializeArgs(call.Args),
		},
	}
	ctx.cfg.AddNode(n)
	return nodeID
}

func serializeArgs(args map[string]dsl.Node) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		switch t := v.(type) {
		case *dsl.Value:
			out[k] = valueToAny(t)
		case *dsl.Expr:
			out[k] = map[string]interface{}{"expr": t.Text}
		}
	}
	return out
}

// compileBody compiles a statement list into a chain rooted via a fresh
// edge from parentID labeled label, returning the chain's tail id and the
// id of its first node (so the caller can (re)label the entry edge).
func compileBody(body []dsl.Node, ctx *context, parentID, label string) (entryID, tailID string, err error) {
	if len(body) == 0 {
		return "", "", nil
	}
	prev := parentID
	for i, stmt := range body {
		next, err := compileStmt(stmt, ctx, prev)
		if err != nil {
			return "", "", err
		}
		if i == 0 {
			entryID = next
		}
		prev = next
	}
	ctx.cfg.Nodes[parentID].Successors[label] = entryID
	return entryID, prev, nil
}

// compileChain compiles a statement list with no parent wiring at all,
// used for a retry node's child subgraph: the orchestrator runs this
// subgraph privately (via child_node_id), so it must never be threaded
// into the generic successor graph the outer traversal follows.
func compileChain(body []dsl.Node, ctx *context) (headID, tailID string, err error) {
	if len(body) == 0 {
		return "", "", nil
	}
	// A dummy anchor node lets compileStmt wire edges uniformly; it sits in
	// the CFG only while the body compiles, its "next" edge is read off
	// directly, and it is then deleted.
	anchorID := ctx.nextID("anchor")
	ctx.cfg.AddNode(cfg.NewNoOp(anchorID, "retry_body_anchor"))
	_, tail, err := compileBody(body, ctx, anchorID, "next")
	if err != nil {
		return "", "", err
	}
	head := ctx.cfg.Nodes[anchorID].Successors["next"]
	delete(ctx.cfg.Nodes, anchorID)
	return head, tail, nil
}

func compileIf(node *dsl.If, ctx *context, prevID string) (string, error) {
	decID := ctx.nextID("dec")
	dn := cfg.NewDecision(decID, "decision", node.Condition.Text)
	ctx.cfg.AddNode(dn)
	if err := ctx.cfg.AddEdge(prevID, decID, "next"); err != nil {
		return "", err
	}

	_, trueTail, err := compileBody(node.Body, ctx, decID, "true")
	if err != nil {
		return "", err
	}
	if trueTail == "" {
		noopID := ctx.nextID("noop")
		ctx.cfg.AddNode(cfg.NewNoOp(noopID, "noop_true"))
		if err := ctx.cfg.AddEdge(decID, noopID, "true"); err != nil {
			return "", err
		}
		trueTail = noopID
	}

	_, falseTail, err := compileBody(node.OrElse, ctx, decID, "false")
	if err != nil {
		return "", err
	}
	if falseTail == "" {
		noopID := ctx.nextID("noop")
		ctx.cfg.AddNode(cfg.NewNoOp(noopID, "noop_false"))
		if err := ctx.cfg.AddEdge(decID, noopID, "false"); err != nil {
			return "", err
		}
		falseTail = noopID
	}

	joinID := ctx.nextID("noop")
	ctx.cfg.AddNode(cfg.NewNoOp(joinID, "join"))
	if err := ctx.cfg.AddEdge(trueTail, joinID, "next"); err != nil {
		return "", err
	}
	if err := ctx.cfg.AddEdge(falseTail, joinID, "next"); err != nil {
		return "", err
	}
	return joinID, nil
}

func compileFor(node *dsl.For, ctx *context, prevID string) (string, error) {
	loopID := ctx.nextID("loop")
	iterable := ""
	if e, ok := node.Iterable.(*dsl.Expr); ok {
		iterable = e.Text
	}
	ln := cfg.NewLoop(loopID, "loop", node.Iterator, iterable)
	ctx.cfg.AddNode(ln)
	if err := ctx.cfg.AddEdge(prevID, loopID, "next"); err != nil {
		return "", err
	}

	_, bodyTail, err := compileBody(node.Body, ctx, loopID, "body")
	if err != nil {
		return "", err
	}
	if bodyTail == "" {
		noopID := ctx.nextID("noop")
		ctx.cfg.AddNode(cfg.NewNoOp(noopID, "noop_body"))
		if err := ctx.cfg.AddEdge(loopID, noopID, "body"); err != nil {
			return "", err
		}
		bodyTail = noopID
	}

	if err := ctx.cfg.AddEdge(bodyTail, loopID, "continue"); err != nil {
		return "", err
	}

	exitID := ctx.nextID("noop")
	ctx.cfg.AddNode(cfg.NewNoOp(exitID, "loop_exit"))
	if err := ctx.cfg.AddEdge(loopID, exitID, "break"); err != nil {
		return "", err
	}
	return exitID, nil
}

// compileRetry wires a Retry construct as: prevID -> retryID -> successID,
// a single "next" edge a generic forward-walk follows straight through the
// whole retry. The guarded body is compiled as a detached chain reachable
// only through rn.ChildNodeID; the orchestrator alone walks it, re-running
// it under backoff/attempts control, so it is never part of the generic
// successor graph (graph.py keeps child_node_id separate from successors
// for exactly this reason).
func compileRetry(node *dsl.Retry, ctx *context, prevID string) (string, error) {
	retryID := ctx.nextID("retry")
	backoff := node.Backoff
	if backoff == 0 {
		backoff = 1.0
	}
	rn := cfg.NewRetry(retryID, "retry", node.Attempts, backoff)
	ctx.cfg.AddNode(rn)
	if err := ctx.cfg.AddEdge(prevID, retryID, "next"); err != nil {
		return "", err
	}

	childID, _, err := compileChain(node.Body, ctx)
	if err != nil {
		return "", err
	}
	if childID == "" {
		noopID := ctx.nextID("noop")
		ctx.cfg.AddNode(cfg.NewNoOp(noopID, "noop_retry"))
		childID = noopID
	}
	rn.ChildNodeID = childID

	successID := ctx.nextID("noop")
	ctx.cfg.AddNode(cfg.NewNoOp(successID, "retry_success"))
	if err := ctx.cfg.AddEdge(retryID, successID, "next"); err != nil {
		return "", err
	}
	return successID, nil
}

func valueToAny(v *dsl.Value) interface{} {
	return value.ToAny(v.Val)
}
