// Package policy implements the rule-based decision engine that gates
// provider actions by subsystem, action name, and caller trust level (§4.8).
package policy

import (
	"regexp"
	"strings"
	"sync"
)

// TrustLevel is a totally ordered caller trust rating. Unknown levels sort
// below Low.
type TrustLevel string

const (
	TrustLow    TrustLevel = "low"
	TrustMedium TrustLevel = "medium"
	TrustHigh   TrustLevel = "high"
)

var trustOrder = map[TrustLevel]int{TrustLow: 0, TrustMedium: 1, TrustHigh: 2}

func rank(t TrustLevel) int {
	if r, ok := trustOrder[t]; ok {
		return r
	}
	return -1
}

// Effect is the outcome of a matched or default-applied rule.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// Mode is the engine's default behavior when no rule matches.
type Mode string

const (
	Permissive  Mode = "permissive"
	Restrictive Mode = "restrictive"
)

// Rule is one ordered policy entry. Subsystem and Action match exactly or
// via "*"; Action additionally tries a regexp match when the literal match
// fails. MinTrust, if set, requires the caller's trust to be >= it.
type Rule struct {
	Subsystem string
	Action    string
	Effect    Effect
	MinTrust  TrustLevel
}

// DefaultRules mirrors the engine's built-in baseline: hostbridge access
// needs high trust, filesystem/http are broadly allowed, sandbox needs at
// least medium trust.
func DefaultRules() []Rule {
	return []Rule{
		{Subsystem: "hostbridge", Action: "*", Effect: Allow, MinTrust: TrustHigh},
		{Subsystem: "hostbridge", Action: "*", Effect: Deny},
		{Subsystem: "filesystem", Action: "*", Effect: Allow, MinTrust: TrustLow},
		{Subsystem: "http", Action: "*", Effect: Allow, MinTrust: TrustLow},
		{Subsystem: "sandbox", Action: "*", Effect: Allow, MinTrust: TrustMedium},
	}
}

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Engine is a thread-safe ordered rule matcher with a default mode.
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
	mode  Mode
}

// New creates an Engine. A nil or empty rules slice uses DefaultRules.
func New(rules []Rule, mode Mode) *Engine {
	if mode == "" {
		mode = Permissive
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Engine{rules: rules, mode: mode}
}

// LoadRules atomically replaces the rule set.
func (e *Engine) LoadRules(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
}

func (e *Engine) matchRule(subsystem, action string, trust TrustLevel) (Rule, bool) {
	for _, r := range e.rules {
		if r.Subsystem != "*" && r.Subsystem != subsystem {
			continue
		}
		if r.Action != "*" && r.Action != action {
			matched, err := regexp.MatchString("^(?:"+r.Action+")$", action)
			if err != nil || !matched {
				continue
			}
		}
		if r.MinTrust != "" && rank(trust) < rank(r.MinTrust) {
			continue
		}
		return r, true
	}
	return Rule{}, false
}

// Allow evaluates whether actor (at trustLevel) may perform action against
// a resource identified by subsystem (the resource's "subsystem", "plugin",
// or "module" key — callers pass whichever applies, "unknown" otherwise).
func (e *Engine) Allow(trustLevel TrustLevel, action, subsystem string) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			decision = e.errorDefault()
		}
	}()

	if trustLevel == "" {
		trustLevel = TrustLow
	}
	trustLevel = TrustLevel(strings.ToLower(string(trustLevel)))
	if subsystem == "" {
		subsystem = "unknown"
	}

	e.mu.RLock()
	rule, ok := e.matchRule(subsystem, action, trustLevel)
	mode := e.mode
	e.mu.RUnlock()

	if ok {
		return Decision{Allowed: rule.Effect == Allow, Reason: "matched_rule:" + string(rule.Effect)}
	}
	if mode == Permissive {
		return Decision{Allowed: true, Reason: "permissive_default_allow"}
	}
	return Decision{Allowed: false, Reason: "restrictive_default_deny"}
}

func (e *Engine) errorDefault() Decision {
	if e.mode == Permissive {
		return Decision{Allowed: true, Reason: "policy_error_permissive_allow"}
	}
	return Decision{Allowed: false, Reason: "policy_error_restrictive_deny"}
}
