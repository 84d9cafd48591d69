package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlugin struct {
	calls []string
}

func (f *fakePlugin) Execute(action string, args map[string]interface{}) (interface{}, error) {
	f.calls = append(f.calls, action)
	return map[string]interface{}{"status": "ok"}, nil
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	p := &fakePlugin{}
	require.NoError(t, r.Register("uploader", p, Manifest{Actions: map[string]ActionManifest{
		"upload": {Description: "uploads a file", Args: map[string]ArgSpec{"path": {Type: "string", Required: true}}},
	}}, false))

	got, ok := r.Lookup("uploader")
	require.True(t, ok)
	assert.Same(t, p, got)

	m, ok := r.Manifest("uploader")
	require.True(t, ok)
	assert.Contains(t, m.Actions, "upload")
}

func TestRegisterWithoutOverwriteRejectsDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("a", &fakePlugin{}, Manifest{}, false))
	err := r.Register("a", &fakePlugin{}, Manifest{}, false)
	assert.Error(t, err)
}

func TestRegisterWithOverwriteReplaces(t *testing.T) {
	r := New()
	first := &fakePlugin{}
	second := &fakePlugin{}
	require.NoError(t, r.Register("a", first, Manifest{}, false))
	require.NoError(t, r.Register("a", second, Manifest{}, true))

	got, _ := r.Lookup("a")
	assert.Same(t, second, got)
}

func TestUnregisterRemovesEntry(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("a", &fakePlugin{}, Manifest{}, false))
	r.Unregister("a")
	_, ok := r.Lookup("a")
	assert.False(t, ok)
}

func TestListReturnsSortedNames(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("zeta", &fakePlugin{}, Manifest{}, false))
	require.NoError(t, r.Register("alpha", &fakePlugin{}, Manifest{}, false))
	assert.Equal(t, []string{"alpha", "zeta"}, r.List())
}
