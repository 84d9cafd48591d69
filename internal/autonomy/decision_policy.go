// Package autonomy implements the autonomy control loop (§4.14): a decision
// policy gating do/ask/ignore outcomes for incoming perception events and
// skill proposals, and an engine that drives classification, planning, and
// dispatch to the orchestrator.
package autonomy

import (
	"strings"

	"github.com/flowtitan/flowtitan/internal/config"
	"github.com/flowtitan/flowtitan/internal/skills"
)

// Mode is the runtime autonomy mode (§4.14's closing note): full, hybrid,
// or ask_first.
type Mode string

const (
	ModeFull     Mode = "full"
	ModeHybrid   Mode = "hybrid"
	ModeAskFirst Mode = "ask_first"
)

// Outcome is one of do/ask/ignore, the only three decisions the policy
// ever returns.
type Outcome string

const (
	Do     Outcome = "do"
	Ask    Outcome = "ask"
	Ignore Outcome = "ignore"
)

// Decision is the result of evaluating an intent or a skill proposal.
type Decision struct {
	Outcome    Outcome
	Reason     string
	Confidence float64
}

// ContextGetter reads and writes the runtime-override key autonomy_mode
// (and any other per-session context); satisfied by *session.Store via a
// thin adapter at the composition root.
type ContextGetter interface {
	Get(key string, def interface{}) interface{}
	Set(key string, value interface{})
}

// Intent is the small structured record an intent classifier produces
// from an event (glossary: "Intent").
type Intent struct {
	Name       string
	Confidence float64
	Params     map[string]interface{}
}

// DecisionPolicy evaluates intents and skill proposals against the
// runtime autonomy mode and confidence/risk thresholds.
type DecisionPolicy struct {
	cfg         config.AutonomyConfig
	ctxGet      ContextGetter
	defaultMode Mode
}

// NewDecisionPolicy builds a policy. ctxGet may be nil, in which case the
// config's mode is always used (no runtime override).
func NewDecisionPolicy(cfg config.AutonomyConfig, ctxGet ContextGetter) *DecisionPolicy {
	mode := Mode(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = ModeHybrid
	}
	return &DecisionPolicy{cfg: cfg, ctxGet: ctxGet, defaultMode: mode}
}

// GetAutonomyMode returns the active mode: the context-store override
// takes precedence over the config default (§4.14's closing note).
func (p *DecisionPolicy) GetAutonomyMode() Mode {
	if p.ctxGet != nil {
		if v := p.ctxGet.Get("autonomy_mode", nil); v != nil {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return Mode(strings.ToLower(strings.TrimSpace(s)))
			}
		}
	}
	return p.defaultMode
}

// SetAutonomyMode flips the runtime override immediately; it persists only
// as long as the context store does.
func (p *DecisionPolicy) SetAutonomyMode(mode Mode) {
	if p.ctxGet != nil {
		p.ctxGet.Set("autonomy_mode", string(mode))
		return
	}
	p.defaultMode = mode
}

// Evaluate applies §4.14 step 5's decision table to a classified intent.
func (p *DecisionPolicy) Evaluate(intent Intent) Decision {
	mode := p.GetAutonomyMode()
	if mode == ModeAskFirst {
		return Decision{Outcome: Ask, Reason: "autonomy_mode_ask_first", Confidence: 0}
	}

	conf := intent.Confidence
	high := orDefault(p.cfg.HighConfidenceThresh, 0.85)
	medium := orDefault(p.cfg.MediumConfidenceThresh, 0.65)

	if conf >= high {
		return Decision{Outcome: Do, Reason: "high_confidence", Confidence: conf}
	}
	if conf >= medium {
		if mode == ModeFull {
			return Decision{Outcome: Do, Reason: "medium_confidence_full_mode", Confidence: conf}
		}
		return Decision{Outcome: Ask, Reason: "medium_confidence_hybrid", Confidence: conf}
	}
	return Decision{Outcome: Ignore, Reason: "low_confidence", Confidence: conf}
}

// DecideForProposal evaluates a skill.Proposal, layering risk on top of
// the confidence/mode logic Evaluate uses.
func (p *DecisionPolicy) DecideForProposal(prop skills.Proposal) Decision {
	mode := p.GetAutonomyMode()
	if mode == ModeAskFirst {
		return Decision{Outcome: Ask, Reason: "autonomy_mode_ask_first", Confidence: prop.Confidence}
	}

	conf := prop.Confidence
	high := orDefault(p.cfg.HighConfidenceThresh, 0.85)
	medium := orDefault(p.cfg.MediumConfidenceThresh, 0.65)
	lowRiskAuto := orDefault(p.cfg.LowRiskAutoConfidence, 0.5)
	if lowRiskAuto < medium {
		lowRiskAuto = medium
	}

	switch prop.Risk {
	case skills.RiskLow:
		if conf >= lowRiskAuto {
			return Decision{Outcome: Do, Reason: "low_risk_confident", Confidence: conf}
		}
		if mode == ModeFull {
			return Decision{Outcome: Do, Reason: "low_risk_full_mode", Confidence: conf}
		}
		return Decision{Outcome: Ask, Reason: "low_risk_hybrid_ask", Confidence: conf}

	case skills.RiskMedium:
		if mode == ModeFull && conf >= high {
			return Decision{Outcome: Do, Reason: "medium_risk_full_confident", Confidence: conf}
		}
		return Decision{Outcome: Ask, Reason: "medium_risk_default_ask", Confidence: conf}

	default: // high risk, or unset: always ask
		return Decision{Outcome: Ask, Reason: "high_risk_always_ask", Confidence: conf}
	}
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
