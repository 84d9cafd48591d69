package cognition

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowtitan/flowtitan/internal/config"
	"github.com/flowtitan/flowtitan/internal/events"
)

type countingTicker struct{ calls int32 }

func (c *countingTicker) TickAll(context.Context) { atomic.AddInt32(&c.calls, 1) }

type countingFlusher struct{ calls int32 }

func (c *countingFlusher) Flush() { atomic.AddInt32(&c.calls, 1) }

func fastLoopConfig() CognitiveLoopConfig {
	return CognitiveLoopConfig{ReflectionEveryNCycles: 2, ConsolidateEveryMCycles: 3, PredictEveryOtherCycle: 1}
}

func TestCognitiveLoopTicksSkillsAndFlushesReasonerEveryCycle(t *testing.T) {
	bus := events.NewBus(8)
	ticker := &countingTicker{}
	flusher := &countingFlusher{}
	loop := NewCognitiveLoop(bus, ticker, flusher, nil, fastLoopConfig())
	loop.interval = 5 * time.Millisecond

	loop.Start(context.Background())
	defer loop.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&ticker.calls) >= 2 }, time.Second, 2*time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&flusher.calls), int32(2))
}

func TestCognitiveLoopPublishesCycleEvent(t *testing.T) {
	bus := events.NewBus(8)
	var cycles int32
	unsub := bus.Subscribe(string(events.CognitionCycle), func(events.Event) { atomic.AddInt32(&cycles, 1) })
	defer unsub()

	loop := NewCognitiveLoop(bus, nil, nil, nil, fastLoopConfig())
	loop.interval = 5 * time.Millisecond
	loop.Start(context.Background())
	defer loop.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&cycles) >= 2 }, time.Second, 2*time.Millisecond)
}

func TestCognitiveLoopRunsReflectionOnlyOnItsCadence(t *testing.T) {
	bus := events.NewBus(8)
	var reflections int32
	loop := NewCognitiveLoop(bus, nil, nil, nil, fastLoopConfig(), WithReflection(func(context.Context) {
		atomic.AddInt32(&reflections, 1)
	}))
	loop.interval = 5 * time.Millisecond
	loop.Start(context.Background())
	defer loop.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&reflections) >= 1 }, time.Second, 2*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	// reflection runs every 2nd cycle, not every cycle.
	assert.Less(t, atomic.LoadInt32(&reflections), int32(20))
}

func TestCognitiveLoopAdaptsIntervalTowardMaxUnderHighLoad(t *testing.T) {
	lb := NewLoadBalancer(nil, config.CognitionConfig{WarnThreshold: 0.6, HighThreshold: 0.85, SoftCapacity: 2.0, DecaySpread: 6.0})
	for i := 0; i < 50; i++ {
		lb.RecordEvent(KindProposal, 2.0)
	}
	loop := NewCognitiveLoop(nil, nil, nil, lb, fastLoopConfig())
	loop.interval = time.Second

	loop.runCycle(context.Background())

	assert.GreaterOrEqual(t, loop.interval, time.Second)
}
