package skills

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/flowtitan/flowtitan/internal/logging"
)

// EventBus is the subset of internal/events.Bus the manager needs. Kept as
// a narrow interface so this package stays free of an import cycle and
// stays testable with a fake bus.
type EventBus interface {
	Subscribe(pattern string, handler func(topic string, payload map[string]interface{})) func()
	Publish(topic string, payload map[string]interface{})
}

// Manager owns every registered skill's lifecycle, event dispatch, and
// tick scheduling (§4.13).
type Manager struct {
	mu       sync.RWMutex
	skills   []Skill
	bus      EventBus
	unsub    func()
	lastTick map[string]time.Time

	ctxFactory func(skillName string) *Context

	log *logging.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager builds a Manager. ctxFactory produces the per-skill Context
// handed to OnEvent/Tick — the caller binds PublishEvent/QueryMemory/etc
// there since those depend on components (planner, orchestrator, session
// store) this package does not import.
func NewManager(bus EventBus, ctxFactory func(skillName string) *Context) *Manager {
	return &Manager{
		bus:        bus,
		lastTick:   map[string]time.Time{},
		ctxFactory: ctxFactory,
		log:        logging.Get(logging.CategorySkills),
		stop:       make(chan struct{}),
	}
}

// Register adds a skill and calls its OnStart hook.
func (m *Manager) Register(ctx context.Context, s Skill) error {
	m.mu.Lock()
	m.skills = append(m.skills, s)
	m.lastTick[s.Name()] = time.Now()
	m.mu.Unlock()
	return m.safeCall(ctx, s.Name(), "on_start", func() error { return s.OnStart(ctx) })
}

// Start subscribes to the event bus with the widest pattern available
// ("*") and launches the tick-scheduling loop, which runs every
// tickResolution and invokes the ticks that are due. Events are not queued
// for that loop: each delivered event is dispatched to the matching skills
// as soon as it arrives.
func (m *Manager) Start(ctx context.Context, tickResolution time.Duration) {
	if tickResolution <= 0 {
		tickResolution = 250 * time.Millisecond
	}
	m.unsub = m.bus.Subscribe("*", func(topic string, payload map[string]interface{}) {
		m.dispatchEvent(ctx, Event{Topic: topic, Payload: payload})
	})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(tickResolution)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.runDueTicks(ctx)
			}
		}
	}()
}

// Stop unsubscribes from the bus, halts the tick loop, and calls every
// skill's OnStop hook.
func (m *Manager) Stop(ctx context.Context) {
	m.stopOnce.Do(func() { close(m.stop) })
	if m.unsub != nil {
		m.unsub()
	}
	m.wg.Wait()

	m.mu.RLock()
	skillsCopy := append([]Skill(nil), m.skills...)
	m.mu.RUnlock()
	for _, s := range skillsCopy {
		_ = m.safeCall(ctx, s.Name(), "on_stop", func() error { return s.OnStop(ctx) })
	}
}

// dispatchEvent runs every subscribing skill's OnEvent as an isolated
// background call: a panic or error in one skill never affects another.
func (m *Manager) dispatchEvent(ctx context.Context, event Event) {
	m.mu.RLock()
	skillsCopy := append([]Skill(nil), m.skills...)
	m.mu.RUnlock()

	for _, s := range skillsCopy {
		if !subscriptionMatches(s.Subscriptions(), event.Topic) {
			continue
		}
		s := s
		go func() {
			sctx := m.ctxFactory(s.Name())
			_ = m.safeCall(ctx, s.Name(), "on_event", func() error { return s.OnEvent(ctx, event, sctx) })
		}()
	}
}

func (m *Manager) runDueTicks(ctx context.Context) {
	now := time.Now()
	m.mu.Lock()
	var due []Skill
	for _, s := range m.skills {
		interval := s.TickInterval()
		if interval <= 0 {
			continue
		}
		if now.Sub(m.lastTick[s.Name()]) >= interval {
			m.lastTick[s.Name()] = now
			due = append(due, s)
		}
	}
	m.mu.Unlock()

	for _, s := range due {
		s := s
		go func() {
			sctx := m.ctxFactory(s.Name())
			_ = m.safeCall(ctx, s.Name(), "tick", func() error { return s.Tick(ctx, sctx) })
		}()
	}
}

// TickAll invokes Tick on every registered skill immediately, regardless
// of its TickInterval — used by the cognitive loop's skill-manager
// tick-all step (§4.18 step 3).
func (m *Manager) TickAll(ctx context.Context) {
	m.mu.RLock()
	skillsCopy := append([]Skill(nil), m.skills...)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range skillsCopy {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx := m.ctxFactory(s.Name())
			_ = m.safeCall(ctx, s.Name(), "tick", func() error { return s.Tick(ctx, sctx) })
		}()
	}
	wg.Wait()
}

func (m *Manager) safeCall(_ context.Context, skillName, phase string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("skill %s panicked during %s: %v", skillName, phase, r)
		}
	}()
	if err = fn(); err != nil {
		m.log.Error("skill %s failed during %s: %v", skillName, phase, err)
	}
	return err
}

// subscriptionMatches reports whether topic matches any of the glob
// patterns in subs, using the bus's own exact / "*" / "prefix.*" rules.
func subscriptionMatches(subs []string, topic string) bool {
	for _, pattern := range subs {
		if pattern == "*" || pattern == topic {
			return true
		}
		if strings.HasSuffix(pattern, ".*") {
			prefix := strings.TrimSuffix(pattern, ".*")
			rest := strings.TrimPrefix(topic, prefix+".")
			if rest != topic && !strings.Contains(rest, ".") {
				return true
			}
		}
	}
	return false
}
