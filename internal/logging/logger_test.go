package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetFallsBackToNopWithoutInitialize(t *testing.T) {
	l := Get(CategoryCore)
	assert.NotNil(t, l)
	assert.NotPanics(t, func() {
		l.Debug("noop %d", 1)
		l.Info("noop %d", 2)
		l.Warn("noop %d", 3)
		l.Error("noop %d", 4)
	})
}

func TestGetIsStablePerCategory(t *testing.T) {
	a := Get(CategoryDSL)
	b := Get(CategoryDSL)
	assert.Same(t, a, b)
}

func TestWithDerivesIndependentLogger(t *testing.T) {
	base := Get(CategoryExec)
	derived := base.With("plan_id", "abc")
	assert.NotSame(t, base, derived)
	assert.NotPanics(t, func() { derived.Info("derived logger works") })
}

func TestInitializeIsIdempotent(t *testing.T) {
	require := func(err error) {
		if err != nil {
			t.Fatalf("Initialize returned error: %v", err)
		}
	}
	require(Initialize("debug"))
	require(Initialize("info"))
	assert.NotPanics(t, func() { Core("initialized twice is fine") })
}
