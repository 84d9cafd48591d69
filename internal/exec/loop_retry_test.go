package exec

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowtitan/flowtitan/internal/cfg"
	"github.com/flowtitan/flowtitan/internal/value"
)

func TestLoopEngineIteratesFixedSequenceThenBreaks(t *testing.T) {
	ce := NewConditionEvaluator(resolverFrom(map[string]value.Value{
		"t1": value.OfMap(map[string]value.Value{
			"items": value.OfList([]value.Value{value.OfInt(1), value.OfInt(2)}),
		}),
	}))
	le := NewLoopEngine(ce)
	node := cfg.NewLoop("loop_1", "loop", "x", "t1.items")

	item1, ok1 := le.ShouldContinue(node)
	assert.True(t, ok1)
	i1, _ := item1.Int()
	assert.EqualValues(t, 1, i1)

	item2, ok2 := le.ShouldContinue(node)
	assert.True(t, ok2)
	i2, _ := item2.Int()
	assert.EqualValues(t, 2, i2)

	_, ok3 := le.ShouldContinue(node)
	assert.False(t, ok3)
}

func TestLoopEngineOverEmptyIterableBreaksImmediately(t *testing.T) {
	ce := NewConditionEvaluator(resolverFrom(map[string]value.Value{
		"t1": value.OfMap(map[string]value.Value{"items": value.OfList(nil)}),
	}))
	le := NewLoopEngine(ce)
	node := cfg.NewLoop("loop_1", "loop", "x", "t1.items")

	_, ok := le.ShouldContinue(node)
	assert.False(t, ok)
}

func TestLoopEngineCapsAtMaxIterations(t *testing.T) {
	items := make([]value.Value, 5)
	for i := range items {
		items[i] = value.OfInt(int64(i))
	}
	ce := NewConditionEvaluator(resolverFrom(map[string]value.Value{
		"t1": value.OfMap(map[string]value.Value{"items": value.OfList(items)}),
	}))
	le := NewLoopEngine(ce)
	node := cfg.NewLoop("loop_1", "loop", "x", "t1.items")
	node.MaxIterations = 2

	_, ok1 := le.ShouldContinue(node)
	assert.True(t, ok1)
	_, ok2 := le.ShouldContinue(node)
	assert.True(t, ok2)
	_, ok3 := le.ShouldContinue(node)
	assert.False(t, ok3)
}

func TestRetryEngineAbsorbsFailuresThenSucceeds(t *testing.T) {
	re := NewRetryEngine().WithSleepFunc(func(time.Duration) {})
	calls := 0
	result := re.Run(func() (map[string]interface{}, bool, error) {
		calls++
		if calls < 3 {
			return nil, false, errors.New("boom")
		}
		return map[string]interface{}{"status": "success"}, true, nil
	}, 3, 0.01)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
}

func TestRetryEngineExhaustsAttemptsOnPersistentFailure(t *testing.T) {
	re := NewRetryEngine().WithSleepFunc(func(time.Duration) {})
	calls := 0
	result := re.Run(func() (map[string]interface{}, bool, error) {
		calls++
		return nil, false, errors.New("always fails")
	}, 3, 0.01)

	assert.False(t, result.Success)
	assert.Equal(t, 3, calls)
	assert.Error(t, result.LastErr)
}

func TestRetrySleepsBetweenAttemptsNotAfterLast(t *testing.T) {
	var sleeps int
	re := NewRetryEngine().WithSleepFunc(func(time.Duration) { sleeps++ })
	re.Run(func() (map[string]interface{}, bool, error) {
		return nil, false, errors.New("boom")
	}, 3, 0.01)
	assert.Equal(t, 2, sleeps)
}
