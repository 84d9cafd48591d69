package reliability

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowtitan/flowtitan/internal/events"
)

func TestWatchRestartsAFailingServiceWithBackoff(t *testing.T) {
	s := NewSupervisor(nil)
	var runs int32
	s.Watch("flaky", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("boom")
	}, WatchOptions{Restart: true, Timeout: time.Second, MaxRetries: 10})
	defer s.StopAll()

	// The first restart waits 2^1 s plus jitter 0.2*sin(1), about 2.17 s.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, 3*time.Second, 5*time.Millisecond)
}

func TestWatchMarksServiceDeadAfterMaxRetries(t *testing.T) {
	bus := events.NewBus(8)
	var deadEvents int32
	unsub := bus.Subscribe(string(events.ReliabilityServiceDead), func(events.Event) { atomic.AddInt32(&deadEvents, 1) })
	defer unsub()

	s := NewSupervisor(bus)
	s.maxBackoff = time.Millisecond
	s.Watch("doomed", func(ctx context.Context) error {
		return errors.New("always fails")
	}, WatchOptions{Restart: true, Timeout: time.Second, MaxRetries: 2})
	defer s.StopAll()

	require.Eventually(t, func() bool {
		h := s.Health()["doomed"]
		return h.Dead
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&deadEvents))
}

func TestWatchCancelsAHungService(t *testing.T) {
	s := NewSupervisor(nil)
	started := make(chan struct{})
	s.Watch("hangs", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, WatchOptions{Restart: false, Timeout: 10 * time.Millisecond, MaxRetries: 1})
	defer s.StopAll()

	<-started
	require.Eventually(t, func() bool {
		h := s.Health()["hangs"]
		return h.Failures > 0 || h.Dead
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWatchIsIdempotentForAnAlreadyRunningService(t *testing.T) {
	s := NewSupervisor(nil)
	var starts int32
	run := func(ctx context.Context) error {
		atomic.AddInt32(&starts, 1)
		<-ctx.Done()
		return nil
	}
	s.Watch("svc", run, WatchOptions{Restart: true, Timeout: time.Second})
	s.Watch("svc", run, WatchOptions{Restart: true, Timeout: time.Second})
	defer s.StopAll()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&starts))
}

func TestStopServiceHaltsItsGoroutine(t *testing.T) {
	s := NewSupervisor(nil)
	s.Watch("stoppable", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}, WatchOptions{Restart: true, Timeout: time.Second})

	s.StopService("stoppable")
	s.wg.Wait()
	assert.Empty(t, s.Health())
}
