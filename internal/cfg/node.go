// Package cfg defines the compiled control-flow-graph model: typed nodes,
// labeled successor edges, integrity validation, and the deterministic
// canonical hash used for plan identity and provenance.
package cfg

// NodeKind tags a CFG node's variant.
type NodeKind string

const (
	KindStart    NodeKind = "start"
	KindEnd      NodeKind = "end"
	KindTask     NodeKind = "task"
	KindDecision NodeKind = "decision"
	KindLoop     NodeKind = "loop"
	KindRetry    NodeKind = "retry"
	KindNoOp     NodeKind = "noop"
	KindCall     NodeKind = "call"
)

// Node is a single CFG node. Kind-specific fields are populated only for
// the matching Kind; all other kinds leave them at zero value.
type Node struct {
	ID          string            `json:"id"`
	Kind        NodeKind          `json:"type"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Successors  map[string]string `json:"successors"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// task
	TaskRef          string  `json:"task_ref,omitempty"`
	TimeoutSeconds   float64 `json:"timeout_seconds,omitempty"`
	SupportsParallel bool    `json:"supports_parallel,omitempty"`

	// decision
	Condition string `json:"condition,omitempty"`

	// loop
	IteratorVar     string `json:"iterator_var,omitempty"`
	IterableExpr    string `json:"iterable_expr,omitempty"`
	MaxIterations   int    `json:"max_iterations,omitempty"`
	ContinueOnError bool   `json:"continue_on_error,omitempty"`

	// retry
	Attempts       int     `json:"attempts,omitempty"`
	BackoffSeconds float64 `json:"backoff_seconds,omitempty"`
	ChildNodeID    string  `json:"child_node_id,omitempty"`

	// call
	TargetService string                 `json:"target_service,omitempty"`
	Arguments     map[string]interface{} `json:"arguments,omitempty"`
	ResultVar     string                 `json:"result_var,omitempty"`
}

func newNode(kind NodeKind, id, name string) *Node {
	return &Node{ID: id, Kind: kind, Name: name, Successors: map[string]string{}}
}

func NewStart(id, name string) *Node { return newNode(KindStart, id, name) }
func NewEnd(id, name string) *Node   { return newNode(KindEnd, id, name) }
func NewNoOp(id, name string) *Node  { return newNode(KindNoOp, id, name) }

func NewTask(id, name, taskRef string) *Node {
	n := newNode(KindTask, id, name)
	n.TaskRef = taskRef
	return n
}

func NewDecision(id, name, condition string) *Node {
	n := newNode(KindDecision, id, name)
	n.Condition = condition
	return n
}

func NewLoop(id, name, iteratorVar, iterableExpr string) *Node {
	n := newNode(KindLoop, id, name)
	n.IteratorVar = iteratorVar
	n.IterableExpr = iterableExpr
	n.MaxIterations = 1000
	return n
}

func NewRetry(id, name string, attempts int, backoffSeconds float64) *Node {
	n := newNode(KindRetry, id, name)
	n.Attempts = attempts
	n.BackoffSeconds = backoffSeconds
	return n
}

func NewCall(id, name, targetService, resultVar string) *Node {
	n := newNode(KindCall, id, name)
	n.TargetService = targetService
	n.ResultVar = resultVar
	n.Arguments = map[string]interface{}{}
	return n
}
