package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRulesDenyHostbridgeBelowHighTrust(t *testing.T) {
	e := New(nil, Permissive)
	d := e.Allow(TrustMedium, "anything", "hostbridge")
	assert.False(t, d.Allowed)
	assert.Equal(t, "matched_rule:deny", d.Reason)
}

func TestDefaultRulesAllowSandboxAtMediumTrust(t *testing.T) {
	e := New(nil, Permissive)
	d := e.Allow(TrustMedium, "run", "sandbox")
	assert.True(t, d.Allowed)
}

func TestDefaultRulesDenySandboxBelowMediumTrust(t *testing.T) {
	e := New(nil, Restrictive)
	d := e.Allow(TrustLow, "run", "sandbox")
	assert.False(t, d.Allowed)
	assert.Equal(t, "restrictive_default_deny", d.Reason)
}

func TestUnmatchedSubsystemFallsBackToMode(t *testing.T) {
	permissive := New(nil, Permissive)
	d := permissive.Allow(TrustLow, "whatever", "unknown_subsystem")
	assert.True(t, d.Allowed)
	assert.Equal(t, "permissive_default_allow", d.Reason)

	restrictive := New(nil, Restrictive)
	d2 := restrictive.Allow(TrustLow, "whatever", "unknown_subsystem")
	assert.False(t, d2.Allowed)
}

func TestActionRegexMatch(t *testing.T) {
	e := New([]Rule{{Subsystem: "custom", Action: "read_.*", Effect: Allow, MinTrust: TrustLow}}, Restrictive)
	d := e.Allow(TrustLow, "read_file", "custom")
	assert.True(t, d.Allowed)

	d2 := e.Allow(TrustLow, "write_file", "custom")
	assert.False(t, d2.Allowed)
}

func TestUnknownTrustLevelRanksBelowLow(t *testing.T) {
	e := New([]Rule{{Subsystem: "sys", Action: "*", Effect: Allow, MinTrust: TrustLow}}, Restrictive)
	d := e.Allow(TrustLevel("bogus"), "act", "sys")
	assert.False(t, d.Allowed)
}

func TestLoadRulesReplacesRuleSet(t *testing.T) {
	e := New(DefaultRules(), Permissive)
	e.LoadRules([]Rule{{Subsystem: "hostbridge", Action: "*", Effect: Allow, MinTrust: TrustLow}})
	d := e.Allow(TrustLow, "anything", "hostbridge")
	assert.True(t, d.Allowed)
}
