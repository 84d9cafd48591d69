package events

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/flowtitan/flowtitan/internal/logging"
)

// Handler receives one published event. Handlers run concurrently and must
// not block indefinitely; a panic in a handler is recovered and logged so
// one bad subscriber can never take down the bus.
type Handler func(Event)

type subscription struct {
	id      uint64
	pattern string
	handler Handler
}

// Bus is a topic pub/sub with exact and single-level wildcard matching
// ("foo.*" matches "foo.x" but not "foo.x.y"; "*" matches everything).
// Publish dispatches handlers on a bounded worker pool; PublishBlocking
// invokes them inline on the caller's goroutine.
type Bus struct {
	mu       sync.RWMutex
	subs     []subscription
	nextSub  uint64
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	closed   atomic.Bool
	log      *logging.Logger
}

// NewBus creates a bus whose async dispatch pool admits at most
// maxConcurrentHandlers in-flight handler invocations at once.
func NewBus(maxConcurrentHandlers int64) *Bus {
	if maxConcurrentHandlers <= 0 {
		maxConcurrentHandlers = 32
	}
	return &Bus{
		sem: semaphore.NewWeighted(maxConcurrentHandlers),
		log: logging.Get(logging.CategoryCore),
	}
}

// Subscribe registers handler for every topic matching pattern. It returns
// an unsubscribe function.
func (b *Bus) Subscribe(pattern string, handler Handler) func() {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs = append(b.subs, subscription{id: id, pattern: pattern, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish dispatches event to every matching subscriber on the bounded
// worker pool; it does not wait for handlers to finish. A no-op once the
// bus is shut down.
func (b *Bus) Publish(event Event) {
	b.publish(event, false)
}

// PublishBlocking invokes every matching handler inline, in subscription
// order, before returning.
func (b *Bus) PublishBlocking(event Event) {
	b.publish(event, true)
}

func (b *Bus) publish(event Event, block bool) {
	if b.closed.Load() {
		return
	}
	matched := b.matchingHandlers(event.Topic())
	for _, h := range matched {
		h := h
		if block {
			b.invoke(h, event)
			continue
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			ctx := context.Background()
			if err := b.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer b.sem.Release(1)
			b.invoke(h, event)
		}()
	}
}

func (b *Bus) invoke(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked for topic %s: %v", event.Topic(), r)
		}
	}()
	h(event)
}

func (b *Bus) matchingHandlers(topic string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if topicMatches(s.pattern, topic) {
			out = append(out, s.handler)
		}
	}
	return out
}

// topicMatches implements exact match, global "*", and single-level
// "prefix.*" wildcard matching.
func topicMatches(pattern, topic string) bool {
	if pattern == "*" || pattern == topic {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		rest := strings.TrimPrefix(topic, prefix+".")
		return rest != topic && !strings.Contains(rest, ".")
	}
	return false
}

// Shutdown refuses further publishes and waits for in-flight async
// handlers to drain.
func (b *Bus) Shutdown() {
	b.closed.Store(true)
	b.wg.Wait()
}
