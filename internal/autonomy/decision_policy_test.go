package autonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowtitan/flowtitan/internal/config"
	"github.com/flowtitan/flowtitan/internal/skills"
)

type fakeCtxGetter struct{ values map[string]interface{} }

func (f *fakeCtxGetter) Get(key string, def interface{}) interface{} {
	if v, ok := f.values[key]; ok {
		return v
	}
	return def
}
func (f *fakeCtxGetter) Set(key string, value interface{}) {
	if f.values == nil {
		f.values = map[string]interface{}{}
	}
	f.values[key] = value
}

func testCfg() config.AutonomyConfig {
	return config.AutonomyConfig{Mode: "hybrid", HighConfidenceThresh: 0.85, MediumConfidenceThresh: 0.65, LowRiskAutoConfidence: 0.5}
}

func TestEvaluateAskFirstModeAlwaysAsks(t *testing.T) {
	p := NewDecisionPolicy(testCfg(), &fakeCtxGetter{values: map[string]interface{}{"autonomy_mode": "ask_first"}})
	d := p.Evaluate(Intent{Name: "x", Confidence: 0.99})
	assert.Equal(t, Ask, d.Outcome)
}

func TestEvaluateHighConfidenceAlwaysDoes(t *testing.T) {
	p := NewDecisionPolicy(testCfg(), nil)
	d := p.Evaluate(Intent{Name: "x", Confidence: 0.9})
	assert.Equal(t, Do, d.Outcome)
}

func TestEvaluateMediumConfidenceAsksInHybridDoesInFull(t *testing.T) {
	hybrid := NewDecisionPolicy(testCfg(), nil)
	d := hybrid.Evaluate(Intent{Name: "x", Confidence: 0.7})
	assert.Equal(t, Ask, d.Outcome)

	cfg := testCfg()
	cfg.Mode = "full"
	full := NewDecisionPolicy(cfg, nil)
	d = full.Evaluate(Intent{Name: "x", Confidence: 0.7})
	assert.Equal(t, Do, d.Outcome)
}

func TestEvaluateLowConfidenceIgnores(t *testing.T) {
	p := NewDecisionPolicy(testCfg(), nil)
	d := p.Evaluate(Intent{Name: "x", Confidence: 0.1})
	assert.Equal(t, Ignore, d.Outcome)
}

func TestDecideForProposalHighRiskAlwaysAsks(t *testing.T) {
	p := NewDecisionPolicy(testCfg(), nil)
	d := p.DecideForProposal(skills.Proposal{Risk: skills.RiskHigh, Confidence: 0.99})
	assert.Equal(t, Ask, d.Outcome)
}

func TestDecideForProposalLowRiskConfidentDoes(t *testing.T) {
	p := NewDecisionPolicy(testCfg(), nil)
	// low_risk_auto (0.5) is raised to the medium threshold (0.65).
	d := p.DecideForProposal(skills.Proposal{Risk: skills.RiskLow, Confidence: 0.7})
	assert.Equal(t, Do, d.Outcome)
}

func TestDecideForProposalLowRiskLowConfidenceAsksInHybrid(t *testing.T) {
	p := NewDecisionPolicy(testCfg(), nil)
	d := p.DecideForProposal(skills.Proposal{Risk: skills.RiskLow, Confidence: 0.2})
	assert.Equal(t, Ask, d.Outcome)
}

func TestSetAutonomyModeFlipsRuntimeBehaviorImmediately(t *testing.T) {
	getter := &fakeCtxGetter{}
	p := NewDecisionPolicy(testCfg(), getter)
	assert.Equal(t, Do, p.Evaluate(Intent{Confidence: 0.9}).Outcome)

	p.SetAutonomyMode(ModeAskFirst)
	assert.Equal(t, Ask, p.Evaluate(Intent{Confidence: 0.9}).Outcome)
}
