package cognition

import (
	"context"
	"sync"
	"time"

	"github.com/flowtitan/flowtitan/internal/events"
	"github.com/flowtitan/flowtitan/internal/logging"
	"github.com/flowtitan/flowtitan/internal/reliability"
)

const (
	minInterval = 300 * time.Millisecond
	maxInterval = 5 * time.Second

	reflectionEveryNCycles   = 90
	consolidateEveryMCycles  = 60
	predictEveryOtherCycle   = 2
)

// SkillTicker is the narrow view of internal/skills.Manager the loop
// needs for its tick-all step.
type SkillTicker interface {
	TickAll(ctx context.Context)
}

// AutonomyStepper runs one pass of perception-driven decisioning; in
// practice internal/autonomy.Engine is event-driven and needs no direct
// step call, so this is an optional hook for a polling-style autonomy
// component.
type AutonomyStepper interface {
	Step(ctx context.Context)
}

// ProposalFlusher lets the loop flush partially-filled cross-skill
// reasoner buffers every cycle even if no new proposal arrived.
type ProposalFlusher interface {
	Flush()
}

// CognitiveLoopConfig exposes the fixed cadence knobs (§4.18).
type CognitiveLoopConfig struct {
	ReflectionEveryNCycles  int
	ConsolidateEveryMCycles int
	PredictEveryOtherCycle  int
}

// CognitiveLoop is the adaptive-interval heartbeat that drives the
// supervisor health check, skill ticking, cross-skill fusion,
// autonomy stepping, and periodic reflection/consolidation (§4.18).
type CognitiveLoop struct {
	mu       sync.Mutex
	interval time.Duration
	cycle    int64

	skills     SkillTicker
	reasoner   ProposalFlusher
	lb         *LoadBalancer
	autonomy   AutonomyStepper
	supervisor *reliability.Supervisor

	reflect     func(ctx context.Context)
	consolidate func(ctx context.Context)
	predict     func(ctx context.Context)

	cfg CognitiveLoopConfig

	bus *events.Bus
	log *logging.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// LoopOption configures an optional CognitiveLoop collaborator.
type LoopOption func(*CognitiveLoop)

func WithAutonomyStepper(s AutonomyStepper) LoopOption { return func(l *CognitiveLoop) { l.autonomy = s } }
func WithSupervisor(s *reliability.Supervisor) LoopOption {
	return func(l *CognitiveLoop) { l.supervisor = s }
}
func WithReflection(fn func(ctx context.Context)) LoopOption {
	return func(l *CognitiveLoop) { l.reflect = fn }
}
func WithMemoryConsolidation(fn func(ctx context.Context)) LoopOption {
	return func(l *CognitiveLoop) { l.consolidate = fn }
}
func WithPredictiveContext(fn func(ctx context.Context)) LoopOption {
	return func(l *CognitiveLoop) { l.predict = fn }
}

// NewCognitiveLoop wires the heartbeat. skillMgr and reasoner may be nil
// to skip those steps; lb may be nil to disable interval adaptation and
// skip load-gated steps (they then always run).
func NewCognitiveLoop(bus *events.Bus, skillMgr SkillTicker, reasoner ProposalFlusher, lb *LoadBalancer, cfg CognitiveLoopConfig, opts ...LoopOption) *CognitiveLoop {
	if cfg.ReflectionEveryNCycles <= 0 {
		cfg.ReflectionEveryNCycles = reflectionEveryNCycles
	}
	if cfg.ConsolidateEveryMCycles <= 0 {
		cfg.ConsolidateEveryMCycles = consolidateEveryMCycles
	}
	if cfg.PredictEveryOtherCycle <= 0 {
		cfg.PredictEveryOtherCycle = predictEveryOtherCycle
	}
	l := &CognitiveLoop{
		interval: time.Second,
		skills:   skillMgr,
		reasoner: reasoner,
		lb:       lb,
		cfg:      cfg,
		bus:      bus,
		log:      logging.Get(logging.CategoryCognition),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the heartbeat goroutine.
func (l *CognitiveLoop) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.run(ctx)
}

// Stop halts the heartbeat and waits for the in-flight cycle to finish.
func (l *CognitiveLoop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
}

func (l *CognitiveLoop) run(ctx context.Context) {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		interval := l.interval
		l.mu.Unlock()

		select {
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(interval):
			l.runCycle(ctx)
		}
	}
}

// runCycle executes the exact ten-step order (§4.18): health check,
// perception tick (delegated to the autonomy engine's own event loop —
// this step is a no-op unless an AutonomyStepper is wired), skill
// tick-all, cross-skill fusion flush (every cycle), predictive context
// (every Nth cycle), autonomy step, reflection (every Nth cycle),
// memory consolidation (every Mth cycle), publish cognition.cycle,
// adapt interval.
func (l *CognitiveLoop) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("cognitive loop cycle panicked: %v", r)
		}
	}()

	n := l.nextCycle()

	if l.supervisor != nil {
		for name, h := range l.supervisor.Health() {
			if h.Dead {
				l.log.Warn("cognitive loop cycle %d: service %s is dead", n, name)
			}
		}
	}

	if l.permit("skill_manager") && l.skills != nil {
		l.skills.TickAll(ctx)
	}

	if l.reasoner != nil {
		l.reasoner.Flush()
	}

	if n%int64(l.cfg.PredictEveryOtherCycle) == 0 && l.permit("predictive_context") && l.predict != nil {
		l.predict(ctx)
	}

	if l.autonomy != nil {
		l.autonomy.Step(ctx)
	}

	if n%int64(l.cfg.ReflectionEveryNCycles) == 0 && l.permit("reflection_engine") && l.reflect != nil {
		l.reflect(ctx)
	}

	if n%int64(l.cfg.ConsolidateEveryMCycles) == 0 && l.permit("memory_consolidator") && l.consolidate != nil {
		l.consolidate(ctx)
	}

	if l.bus != nil {
		l.bus.Publish(events.New(events.CognitionCycle, "", "", "", map[string]interface{}{"cycle": n}))
	}

	l.adaptInterval()
}

// permit consults the load balancer's per-service gate; with no load
// balancer wired, every step always runs.
func (l *CognitiveLoop) permit(service string) bool {
	if l.lb == nil {
		return true
	}
	return l.lb.AllowService(service)
}

// adaptInterval raises the heartbeat period toward maxInterval under
// sustained high load and lowers it toward minInterval when load is low
// (§4.18's dynamic interval adaptation).
func (l *CognitiveLoop) adaptInterval() {
	if l.lb == nil {
		return
	}
	load := l.lb.GetLoad()

	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case load > 0.8:
		l.interval += 100 * time.Millisecond
	case load < 0.3:
		l.interval -= 100 * time.Millisecond
	}
	if l.interval < minInterval {
		l.interval = minInterval
	}
	if l.interval > maxInterval {
		l.interval = maxInterval
	}
}

// nextCycle increments the cycle counter. Only the single loop goroutine
// ever touches l.cycle, so no atomic is needed here.
func (l *CognitiveLoop) nextCycle() int64 {
	l.cycle++
	return l.cycle
}
