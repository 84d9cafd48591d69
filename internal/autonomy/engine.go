package autonomy

import (
	"context"
	"sync"
	"time"

	"github.com/flowtitan/flowtitan/internal/cfg"
	"github.com/flowtitan/flowtitan/internal/config"
	"github.com/flowtitan/flowtitan/internal/events"
	"github.com/flowtitan/flowtitan/internal/logging"
	"github.com/flowtitan/flowtitan/internal/negotiator"
)

// PerceptionEvent is the narrow view of an events.Event the engine needs
// for staleness/self-origin checks and classification.
type PerceptionEvent struct {
	Type      string
	Source    string
	Text      string
	Timestamp time.Time
	SessionID string
	Caller    negotiator.CallerContext
	Raw       events.Event
}

// IntentClassifier turns a perception event into an Intent. Non-textual
// events never reach this: the engine synthesizes a default intent first
// (§4.14 step 4).
type IntentClassifier interface {
	Classify(ctx context.Context, event PerceptionEvent) (Intent, error)
}

// Planner requests a compiled plan (CFG) from a textual prompt, e.g. via
// an LLM-style DSL generator followed by the compiler.
type Planner interface {
	Plan(ctx context.Context, prompt string) (*cfg.CFG, error)
}

// PlanDispatcher is the orchestrator entry point the engine calls for a
// "do" decision.
type PlanDispatcher interface {
	ExecutePlan(ctx context.Context, sessionID, planID string, g *cfg.CFG, caller negotiator.CallerContext) interface{}
}

// EpisodeRecorder records the outcome of processing one event, for replay
// and audit (the original's "episodic memory").
type EpisodeRecorder interface {
	RecordEpisode(event PerceptionEvent, intent Intent, decision Decision, outcome map[string]interface{})
}

type noopRecorder struct{}

func (noopRecorder) RecordEpisode(PerceptionEvent, Intent, Decision, map[string]interface{}) {}

// Engine is the autonomy control loop (§4.14): it subscribes to
// perception.*, classifies, consults the decision policy, and on "do"
// plans and dispatches to the orchestrator.
type Engine struct {
	policy     *DecisionPolicy
	classifier IntentClassifier
	planner    Planner
	dispatcher PlanDispatcher
	recorder   EpisodeRecorder
	bus        *events.Bus

	intentTimeout time.Duration
	plannerTimeout time.Duration
	orchTimeout    time.Duration
	maxAge         time.Duration

	queue   chan PerceptionEvent
	workers int

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	unsub    func()

	log *logging.Logger
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

func WithEpisodeRecorder(r EpisodeRecorder) Option { return func(e *Engine) { e.recorder = r } }

// NewEngine builds an Engine. queueSize and concurrency come from
// config.QueueConfig (autonomy_event_queue_size, autonomy_event_concurrency);
// maxEventAge bounds how stale an event may be before it is dropped.
func NewEngine(
	bus *events.Bus,
	policy *DecisionPolicy,
	classifier IntentClassifier,
	planner Planner,
	dispatcher PlanDispatcher,
	timeouts config.TimeoutConfig,
	queueSize, concurrency int,
	maxEventAge time.Duration,
	opts ...Option,
) *Engine {
	if queueSize <= 0 {
		queueSize = 256
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if maxEventAge <= 0 {
		maxEventAge = 10 * time.Second
	}
	e := &Engine{
		policy:         policy,
		classifier:     classifier,
		planner:        planner,
		dispatcher:     dispatcher,
		recorder:       noopRecorder{},
		bus:            bus,
		intentTimeout:  parseOrDefault(timeouts.IntentClassify, 10*time.Second),
		plannerTimeout: parseOrDefault(timeouts.PlannerGeneration, 20*time.Second),
		orchTimeout:    parseOrDefault(timeouts.NodeDispatch, 30*time.Second),
		maxAge:         maxEventAge,
		queue:          make(chan PerceptionEvent, queueSize),
		workers:        concurrency,
		stop:           make(chan struct{}),
		log:            logging.Get(logging.CategoryAutonomy),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start subscribes to perception.* (falling back to exact per-type topics
// the caller also wires, per §4.14 step 1) and launches the worker pool.
func (e *Engine) Start() {
	e.unsub = e.bus.Subscribe("perception.*", e.onEvent)
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
}

// Stop halts event intake and waits for in-flight processing to drain.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	if e.unsub != nil {
		e.unsub()
	}
	e.wg.Wait()
}

func (e *Engine) onEvent(evt events.Event) {
	if str(evt.Metadata["source"]) == "autonomy" {
		return
	}
	ts, err := time.Parse(time.RFC3339Nano, evt.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	if time.Since(ts) > e.maxAge {
		e.log.Debug("dropping stale perception event %s (age %s)", evt.Topic(), time.Since(ts))
		return
	}

	pe := PerceptionEvent{
		Type:      evt.Topic(),
		Source:    str(evt.Metadata["source"]),
		Text:      str(evt.Payload["text"]),
		Timestamp: ts,
		SessionID: evt.SessionID,
		Raw:       evt,
	}

	select {
	case e.queue <- pe:
	default:
		e.log.Warn("autonomy event queue full; dropping event %s", evt.Topic())
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case pe := <-e.queue:
			e.process(pe)
		}
	}
}

func (e *Engine) process(pe PerceptionEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("autonomy event processing panicked for %s: %v", pe.Type, r)
		}
	}()

	intent := e.classify(pe)
	decision := e.policy.Evaluate(intent)

	switch decision.Outcome {
	case Ignore:
		e.recorder.RecordEpisode(pe, intent, decision, map[string]interface{}{"status": "ignored"})
	case Ask:
		e.publishAskUser(pe, intent, decision)
		e.recorder.RecordEpisode(pe, intent, decision, map[string]interface{}{"status": "ask"})
	case Do:
		outcome := e.handleDo(pe, intent)
		e.recorder.RecordEpisode(pe, intent, decision, outcome)
	}
}

func (e *Engine) classify(pe PerceptionEvent) Intent {
	if e.classifier == nil || pe.Text == "" {
		return defaultIntentFor(pe)
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.intentTimeout)
	defer cancel()
	intent, err := e.classifier.Classify(ctx, pe)
	if err != nil {
		e.log.Warn("intent classification failed for %s: %v", pe.Type, err)
		return defaultIntentFor(pe)
	}
	return intent
}

// defaultIntentFor synthesizes a zero-confidence intent for non-textual
// events (§4.14 step 4, "else branch").
func defaultIntentFor(pe PerceptionEvent) Intent {
	return Intent{Name: "event:" + pe.Type, Confidence: 0, Params: map[string]interface{}{}}
}

func (e *Engine) publishAskUser(pe PerceptionEvent, intent Intent, decision Decision) {
	e.bus.Publish(events.New(events.AutonomyAskUser, pe.SessionID, "", "", map[string]interface{}{
		"event":  pe.Raw,
		"intent": intent,
		"reason": decision.Reason,
	}))
}

func (e *Engine) handleDo(pe PerceptionEvent, intent Intent) map[string]interface{} {
	if e.planner == nil || e.dispatcher == nil {
		return map[string]interface{}{"status": "no_planner_or_dispatcher"}
	}

	prompt := buildPlanningPrompt(pe, intent)

	planCtx, cancel := context.WithTimeout(context.Background(), e.plannerTimeout)
	plan, err := e.planner.Plan(planCtx, prompt)
	cancel()
	if err != nil {
		e.log.Warn("planner failed for intent %s: %v", intent.Name, err)
		return map[string]interface{}{"status": "no_plan", "error": err.Error()}
	}

	dispatchCtx, dcancel := context.WithTimeout(context.Background(), e.orchTimeout)
	defer dcancel()
	result := e.dispatcher.ExecutePlan(dispatchCtx, pe.SessionID, "", plan, pe.Caller)
	return map[string]interface{}{"status": "dispatched", "result": result}
}

func buildPlanningPrompt(pe PerceptionEvent, intent Intent) string {
	return "intent=" + intent.Name + " event=" + pe.Type + " text=" + pe.Text
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func parseOrDefault(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
