// Package exec implements plan execution: per-node state tracking, the
// condition evaluator, loop/retry iteration engines, the bounded worker
// pool, and the orchestrator that ties them together (§4.4-§4.7).
package exec

import (
	"sync"
	"time"

	"github.com/flowtitan/flowtitan/internal/value"
)

// NodeStatus is a node's execution lifecycle state.
type NodeStatus string

const (
	StatusPending   NodeStatus = "pending"
	StatusRunning   NodeStatus = "running"
	StatusCompleted NodeStatus = "completed"
	StatusFailed    NodeStatus = "failed"
)

// NodeState is one node's tracked execution state.
type NodeState struct {
	ID         string
	Name       string
	Status     NodeStatus
	Result     value.Value
	StartedAt  time.Time
	FinishedAt time.Time
	Attempts   int
}

// StateTracker is a thread-safe node_id -> NodeState map with a secondary
// by-name index (§4.4).
type StateTracker struct {
	mu        sync.RWMutex
	states    map[string]*NodeState
	nameIndex map[string][]string
}

func NewStateTracker() *StateTracker {
	return &StateTracker{
		states:    map[string]*NodeState{},
		nameIndex: map[string][]string{},
	}
}

// EnsureNode creates the node's state on first reference and returns it
// (a copy, safe for the caller to read without further locking).
func (t *StateTracker) EnsureNode(id, name string) NodeState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.ensureLocked(id, name)
}

func (t *StateTracker) ensureLocked(id, name string) *NodeState {
	s, ok := t.states[id]
	if !ok {
		if name == "" {
			name = id
		}
		s = &NodeState{ID: id, Name: name, Status: StatusPending}
		t.states[id] = s
	}
	if name != "" {
		t.nameIndex[name] = append(t.nameIndex[name], id)
	}
	return s
}

// SetRunning marks the node running, bumping its attempt counter.
func (t *StateTracker) SetRunning(id string) NodeState {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.ensureLocked(id, "")
	s.Status = StatusRunning
	s.StartedAt = time.Now()
	s.Attempts++
	return *s
}

// SetCompleted marks the node completed with result.
func (t *StateTracker) SetCompleted(id string, result value.Value) NodeState {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.ensureLocked(id, "")
	s.Status = StatusCompleted
	s.Result = result
	s.FinishedAt = time.Now()
	return *s
}

// SetFailed marks the node failed, storing the error under result.error.
func (t *StateTracker) SetFailed(id string, errMsg string) NodeState {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.ensureLocked(id, "")
	s.Status = StatusFailed
	s.Result = value.OfMap(map[string]value.Value{"error": value.OfString(errMsg)})
	s.FinishedAt = time.Now()
	return *s
}

// Get returns the node's state, if tracked.
func (t *StateTracker) Get(id string) (NodeState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[id]
	if !ok {
		return NodeState{}, false
	}
	return *s, true
}

// ListAll returns a snapshot of every tracked node's state.
func (t *StateTracker) ListAll() map[string]NodeState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]NodeState, len(t.states))
	for id, s := range t.states {
		out[id] = *s
	}
	return out
}

// GetStateByTaskName returns the most recently finished node registered
// under name, or false if none exist.
func (t *StateTracker) GetStateByTaskName(name string) (NodeState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids, ok := t.nameIndex[name]
	if !ok || len(ids) == 0 {
		return NodeState{}, false
	}
	var best *NodeState
	for _, id := range ids {
		s, ok := t.states[id]
		if !ok {
			continue
		}
		if best == nil || s.FinishedAt.After(best.FinishedAt) {
			best = s
		}
	}
	if best == nil {
		return NodeState{}, false
	}
	return *best, true
}
