// Package negotiator implements provider selection for an Action, gated by
// the policy engine (§4.9).
package negotiator

import (
	"github.com/flowtitan/flowtitan/internal/action"
	"github.com/flowtitan/flowtitan/internal/policy"
	"github.com/flowtitan/flowtitan/internal/registry"
)

// CallerContext carries the identity the policy engine checks trust against.
type CallerContext struct {
	UserID string
	Trust  policy.TrustLevel
}

// Negotiator selects a provider for an Action, then consults the policy
// engine before returning a final decision.
type Negotiator struct {
	registry *registry.Registry
	policy   *policy.Engine
}

func New(reg *registry.Registry, pol *policy.Engine) *Negotiator {
	return &Negotiator{registry: reg, policy: pol}
}

// Decide picks a tentative provider by Action.Type, then defers to the
// policy engine; on deny it returns provider "denied" with the engine's
// reason, never the tentative pick.
func (n *Negotiator) Decide(act action.Action, caller CallerContext) action.Decision {
	tentative, subsystem := n.tentativeProvider(act)

	decision := n.policy.Allow(caller.Trust, act.Command, subsystem)
	if !decision.Allowed {
		return action.Decision{Provider: "denied", Reason: decision.Reason}
	}
	return action.Decision{Provider: tentative, Reason: decision.Reason}
}

func (n *Negotiator) tentativeProvider(act action.Action) (provider, subsystem string) {
	switch act.Type {
	case action.TypePlugin:
		if act.Module != "" {
			if _, ok := n.registry.Lookup(act.Module); ok {
				return act.Module, act.Module
			}
		}
		return "sandbox", "sandbox"

	case action.TypeHost:
		return "hostbridge", "hostbridge"

	case action.TypeExec:
		if preferred := act.PreferredProvider(); preferred != "" {
			if preferred == "hostbridge" {
				return "hostbridge", "hostbridge"
			}
			if _, ok := n.registry.Lookup(preferred); ok {
				return preferred, preferred
			}
		}
		return "sandbox", "sandbox"

	case action.TypeSimulated:
		return "simulated", "simulated"

	default:
		return "sandbox", "sandbox"
	}
}
