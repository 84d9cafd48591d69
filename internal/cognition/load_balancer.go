// Package cognition implements the cognitive-layer components that sit
// above the autonomy engine: the load balancer (§4.16), the cross-skill
// reasoner (§4.15), and the cognitive loop heartbeat (§4.18).
package cognition

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/flowtitan/flowtitan/internal/config"
	"github.com/flowtitan/flowtitan/internal/events"
	"github.com/flowtitan/flowtitan/internal/logging"
	"github.com/flowtitan/flowtitan/internal/skills"
)

// EventKind is the category of occurrence recorded against the load
// balancer's decayed history (§4.16).
type EventKind string

const (
	KindProposal EventKind = "proposal"
	KindTick     EventKind = "tick"
	KindIO       EventKind = "io"
)

const (
	proposalBaseWeight = 1.0
	tickBaseWeight     = 0.5
	ioBaseWeight       = 0.8
	decaySpreadDefault = 6.0
	windowSeconds      = 30.0
)

// serviceSensitivity mirrors the original's conservative per-service
// admission thresholds for §4.18's perception/skills/reflection/memory
// "permit" gates.
var serviceSensitivity = map[string]float64{
	"memory_consolidator":  0.7,
	"reflection_engine":    0.65,
	"predictive_context":   0.6,
	"temporal_scheduler":   0.85,
	"skill_manager":        0.5,
	"perception":           0.55,
	"skills":               0.5,
	"fusion":               0.6,
	"predict":              0.6,
	"autonomy":             0.5,
}

type historyEntry struct {
	at     time.Time
	weight float64
}

// LoadBalancer maintains a smoothed cognitive-load value in [0,1] and
// gates proposal admission and background-service ticks against it.
type LoadBalancer struct {
	mu      sync.Mutex
	history []historyEntry
	load    float64
	lastEmit float64

	warn, high   float64
	softCapacity float64
	decaySpread  float64

	bus *events.Bus
	log *logging.Logger
	rng *rand.Rand
}

// NewLoadBalancer builds a LoadBalancer from §4.16's config knobs.
func NewLoadBalancer(bus *events.Bus, cfg config.CognitionConfig) *LoadBalancer {
	warn := cfg.WarnThreshold
	if warn == 0 {
		warn = 0.6
	}
	high := cfg.HighThreshold
	if high == 0 {
		high = 0.85
	}
	spread := cfg.DecaySpread
	if spread == 0 {
		spread = decaySpreadDefault
	}
	capacity := cfg.SoftCapacity
	if capacity == 0 {
		capacity = spread * 4
	}
	return &LoadBalancer{
		warn:         warn,
		high:         high,
		softCapacity: capacity,
		decaySpread:  spread,
		bus:          bus,
		log:          logging.Get(logging.CategoryCognition),
		rng:          rand.New(rand.NewSource(1)),
	}
}

// RecordEvent adds a weighted occurrence to the decayed history and
// recomputes the smoothed load synchronously (§9's decay kernel:
// 2^(-age/spread)).
func (lb *LoadBalancer) RecordEvent(kind EventKind, weight float64) {
	if weight == 0 {
		weight = defaultWeightFor(kind)
	}
	lb.mu.Lock()
	now := time.Now()
	lb.history = append(lb.history, historyEntry{at: now, weight: weight})
	cutoff := now.Add(-2 * windowSeconds * time.Second)
	kept := lb.history[:0]
	for _, h := range lb.history {
		if h.at.After(cutoff) {
			kept = append(kept, h)
		}
	}
	lb.history = kept

	total := 0.0
	for _, h := range lb.history {
		age := now.Sub(h.at).Seconds()
		decay := math.Pow(2.0, -age/lb.decaySpread)
		total += h.weight * decay
	}
	newLoad := total / lb.softCapacity
	if newLoad < 0 {
		newLoad = 0
	}
	if newLoad > 1 {
		newLoad = 1
	}
	changed := math.Abs(newLoad-lb.load) > 0.01
	lb.load = newLoad
	prev := lb.lastEmit
	lb.mu.Unlock()

	if changed && lb.bus != nil {
		lb.emitLoadChange(newLoad, prev)
	}
}

func defaultWeightFor(kind EventKind) float64 {
	switch kind {
	case KindProposal:
		return proposalBaseWeight
	case KindTick:
		return tickBaseWeight
	case KindIO:
		return ioBaseWeight
	default:
		return 0.5
	}
}

func (lb *LoadBalancer) emitLoadChange(load, prev float64) {
	lb.mu.Lock()
	lb.lastEmit = load
	warn, high := lb.warn, lb.high
	lb.mu.Unlock()

	lb.bus.Publish(events.New(events.CognitionLoadChanged, "", "", "", map[string]interface{}{"load": load}))
	if load >= high {
		lb.bus.Publish(events.New(events.CognitionLoadHigh, "", "", "", map[string]interface{}{"load": load}))
	} else if load <= warn*0.8 && prev >= warn {
		lb.bus.Publish(events.New(events.CognitionLoadLow, "", "", "", map[string]interface{}{"load": load}))
	}
}

// GetLoad returns the current smoothed load.
func (lb *LoadBalancer) GetLoad() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.load
}

// AllowProposal implements §4.16's three-regime admission table for a
// skill proposal.
func (lb *LoadBalancer) AllowProposal(prop skills.Proposal, priority int) bool {
	lb.RecordEvent(KindProposal, proposalBaseWeight)
	load := lb.GetLoad()

	if load < lb.warn {
		return true
	}

	risk := prop.Risk
	conf := prop.Confidence

	if load < lb.high {
		if risk == skills.RiskLow || risk == skills.RiskMedium {
			if conf >= 0.5 || priority >= 80 {
				return true
			}
		}
		if risk == skills.RiskHigh && priority >= 95 {
			return true
		}
		if conf >= 0.6 {
			return true
		}
		lb.publishThrottled(prop, "moderate_load_rejected")
		return false
	}

	// at or above high: strict
	if risk == skills.RiskLow || risk == "" {
		if conf >= 0.75 || priority >= 90 {
			return true
		}
	}
	if priority >= 98 {
		return true
	}
	lb.publishThrottled(prop, "high_load_rejected")
	return false
}

func (lb *LoadBalancer) publishThrottled(prop skills.Proposal, reason string) {
	if lb.bus == nil {
		return
	}
	lb.bus.Publish(events.New(events.CognitionProposalThrottled, "", "", "", map[string]interface{}{
		"skill_name": prop.SkillName, "intent": prop.Intent, "reason": reason,
	}))
}

// AllowService decides whether a background service named serviceName
// may run this cycle, per §4.16's per-service sensitivity and
// probabilistic skip under load.
func (lb *LoadBalancer) AllowService(serviceName string) bool {
	lb.RecordEvent(KindTick, tickBaseWeight)
	load := lb.GetLoad()

	sens, ok := serviceSensitivity[serviceName]
	if !ok {
		sens = 0.6
	}
	if load < sens {
		return true
	}

	prob := 1.0 - (load-sens)*2.0
	if prob < 0 {
		prob = 0
	}
	allowed := lb.rng.Float64() < prob
	if !allowed {
		lb.RecordEvent(KindIO, ioBaseWeight)
	}
	return allowed
}
