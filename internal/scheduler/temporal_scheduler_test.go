package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowtitan/flowtitan/internal/events"
)

func TestScheduleDispatchesOneOffJobThenRemovesIt(t *testing.T) {
	bus := events.NewBus(8)
	var fired int32
	unsub := bus.Subscribe("job.fire", func(events.Event) { atomic.AddInt32(&fired, 1) })
	defer unsub()

	s := New(bus, nil, nil, "")
	s.Start()
	defer s.Stop()

	id := s.Schedule(time.Now(), map[string]interface{}{"type": "job.fire"}, 0, "")

	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, j := range s.List() {
			if j.ID == id {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
}

func TestScheduleRecurringJobFiresMultipleTimes(t *testing.T) {
	bus := events.NewBus(8)
	var fired int32
	unsub := bus.Subscribe("job.tick", func(events.Event) { atomic.AddInt32(&fired, 1) })
	defer unsub()

	s := New(bus, nil, nil, "")
	s.Start()
	defer s.Stop()

	s.Schedule(time.Now(), map[string]interface{}{"type": "job.tick"}, 15*time.Millisecond, "")

	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestCancelPreventsFutureDispatch(t *testing.T) {
	bus := events.NewBus(8)
	var fired int32
	unsub := bus.Subscribe("job.cancel_me", func(events.Event) { atomic.AddInt32(&fired, 1) })
	defer unsub()

	s := New(bus, nil, nil, "")
	id := s.Schedule(time.Now().Add(50*time.Millisecond), map[string]interface{}{"type": "job.cancel_me"}, 0, "")
	ok := s.Cancel(id)
	require.True(t, ok)

	s.Start()
	defer s.Stop()

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

type fakePool struct {
	calls int32
}

func (p *fakePool) Submit(fn func()) error {
	atomic.AddInt32(&p.calls, 1)
	fn()
	return nil
}

func TestScheduleFallsBackToWorkerPoolWithoutBus(t *testing.T) {
	pool := &fakePool{}
	s := New(nil, pool, nil, "")
	s.Start()
	defer s.Stop()

	s.Schedule(time.Now(), map[string]interface{}{}, 0, "")

	require.Eventually(t, func() bool { return atomic.LoadInt32(&pool.calls) >= 1 }, time.Second, 5*time.Millisecond)
}
