package negotiator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowtitan/flowtitan/internal/action"
	"github.com/flowtitan/flowtitan/internal/policy"
	"github.com/flowtitan/flowtitan/internal/registry"
)

type noopPlugin struct{}

func (noopPlugin) Execute(string, map[string]interface{}) (interface{}, error) { return nil, nil }

func TestDecidePluginFallsBackToSandboxWhenUnregistered(t *testing.T) {
	n := New(registry.New(), policy.New(nil, policy.Permissive))
	d := n.Decide(action.Action{Type: action.TypePlugin, Module: "ghost"}, CallerContext{Trust: policy.TrustMedium})
	assert.Equal(t, "sandbox", d.Provider)
}

func TestDecidePluginUsesRegisteredModule(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("uploader", noopPlugin{}, registry.Manifest{}, false))
	n := New(reg, policy.New(nil, policy.Permissive))
	d := n.Decide(action.Action{Type: action.TypePlugin, Module: "uploader"}, CallerContext{Trust: policy.TrustMedium})
	assert.Equal(t, "uploader", d.Provider)
}

func TestDecideHostDeniedWithoutHighTrust(t *testing.T) {
	n := New(registry.New(), policy.New(nil, policy.Permissive))
	d := n.Decide(action.Action{Type: action.TypeHost}, CallerContext{Trust: policy.TrustMedium})
	assert.Equal(t, "denied", d.Provider)
}

func TestDecideHostAllowedWithHighTrust(t *testing.T) {
	n := New(registry.New(), policy.New(nil, policy.Permissive))
	d := n.Decide(action.Action{Type: action.TypeHost}, CallerContext{Trust: policy.TrustHigh})
	assert.Equal(t, "hostbridge", d.Provider)
}

func TestDecideExecPreferredProviderHonoredWhenRegistered(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("fast_exec", noopPlugin{}, registry.Manifest{}, false))
	n := New(reg, policy.New(nil, policy.Permissive))
	act := action.Action{Type: action.TypeExec, Metadata: map[string]interface{}{"preferred_provider": "fast_exec"}}
	d := n.Decide(act, CallerContext{Trust: policy.TrustMedium})
	assert.Equal(t, "fast_exec", d.Provider)
}

func TestDecideSimulatedAlwaysSimulated(t *testing.T) {
	n := New(registry.New(), policy.New(nil, policy.Permissive))
	d := n.Decide(action.Action{Type: action.TypeSimulated}, CallerContext{Trust: policy.TrustLow})
	assert.Equal(t, "simulated", d.Provider)
}
