// Package events defines the typed event envelope published on the runtime
// event bus and the provenance chaining derived from it (§4.11, §6.9).
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// Type is one of the closed set of event types the runtime emits.
type Type string

const (
	PlanCreated    Type = "plan.created"
	DSLProduced    Type = "dsl.produced"
	ASTParsed      Type = "ast.parsed"
	NodeStarted    Type = "node.started"
	NodeFinished   Type = "node.finished"
	LoopIteration  Type = "loop.iteration"
	RetryAttempt   Type = "retry.attempt"
	DecisionTaken  Type = "decision.taken"
	TaskStarted    Type = "task.started"
	TaskFinished   Type = "task.finished"
	PlanCompleted  Type = "plan.completed"
	ErrorOccurred  Type = "error.occurred"

	// Perception / autonomy (§4.14)
	PerceptionTranscript Type = "perception.transcript"
	PerceptionSignal     Type = "perception.signal"
	AutonomyAskUser      Type = "autonomy.ask_user_confirmation"

	// Skills (§4.13, §4.15)
	SkillProposal      Type = "skill.proposal"
	SkillFusedProposal Type = "skill.fused_proposal"

	// Cognition: load balancer (§4.16) and cognitive loop (§4.18)
	CognitionLoadChanged      Type = "cognition.load.changed"
	CognitionLoadHigh         Type = "cognition.load.high"
	CognitionLoadLow          Type = "cognition.load.low"
	CognitionProposalThrottled Type = "cognition.proposal.throttled"
	CognitionCycle            Type = "cognition.cycle"

	// Reliability: supervisor (§4.17)
	ReliabilityServiceDead Type = "reliability.service.dead"
)

// Event is the envelope carried across the event bus and into provenance.
type Event struct {
	ID        string                 `json:"id,omitempty"`
	Type      Type                   `json:"type"`
	Timestamp string                 `json:"timestamp"`
	SessionID string                 `json:"session_id,omitempty"`
	PlanID    string                 `json:"plan_id,omitempty"`
	NodeID    string                 `json:"node_id,omitempty"`
	Payload   map[string]interface{} `json:"payload"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// New builds an Event with the current UTC timestamp and non-nil maps.
func New(t Type, sessionID, planID, nodeID string, payload map[string]interface{}) Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Event{
		Type:      t,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: sessionID,
		PlanID:    planID,
		NodeID:    nodeID,
		Payload:   payload,
		Metadata:  map[string]interface{}{},
	}
}

// Topic is the dotted string a subscriber matches against (equal to Type
// for built-in events, but kept distinct so callers may publish ad hoc
// topics such as "skill.custom_name").
func (e Event) Topic() string { return string(e.Type) }

// ProvenanceEntry is a hash-chained, tamper-evident record of one event.
type ProvenanceEntry struct {
	Event          Event  `json:"event"`
	PreviousHash   string `json:"previous_hash,omitempty"`
	EntryCanonical string `json:"entry_canonical"`
	EntryHash      string `json:"entry_hash"`
}

// ToProvenanceEntry canonicalizes the event as sorted-key, compact JSON and
// hashes it. The hash covers the event alone; previousHash is stored beside
// it, so an altered entry no longer matches the PreviousHash recorded by the
// entry that follows it.
func (e Event) ToProvenanceEntry(previousHash string) (ProvenanceEntry, error) {
	canonical, err := canonicalJSON(e)
	if err != nil {
		return ProvenanceEntry{}, err
	}
	sum := sha256.Sum256(canonical)
	return ProvenanceEntry{
		Event:          e,
		PreviousHash:   previousHash,
		EntryCanonical: string(canonical),
		EntryHash:      hex.EncodeToString(sum[:]),
	}, nil
}

// canonicalJSON renders a value as compact JSON with map keys in sorted
// order, matching json.dumps(..., sort_keys=True, separators=(",", ":")).
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalSorted(generic)
}

func marshalSorted(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		return marshalSortedMap(t)
	case []interface{}:
		out := []byte{'['}
		for i, e := range t {
			if i > 0 {
				out = append(out, ',')
			}
			b, err := marshalSorted(e)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		out = append(out, ']')
		return out, nil
	default:
		return json.Marshal(v)
	}
}

func marshalSortedMap(m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			out = append(out, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		out = append(out, kb...)
		out = append(out, ':')
		vb, err := marshalSorted(m[k])
		if err != nil {
			return nil, err
		}
		out = append(out, vb...)
	}
	out = append(out, '}')
	return out, nil
}
