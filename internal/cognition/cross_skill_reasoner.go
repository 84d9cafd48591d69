package cognition

import (
	"sync"
	"time"

	"github.com/flowtitan/flowtitan/internal/events"
	"github.com/flowtitan/flowtitan/internal/logging"
	"github.com/flowtitan/flowtitan/internal/skills"
)

const defaultFuseWindow = 3 * time.Second

// fusionRule recognizes a set of buffered intents and produces a fused
// proposal intent name when satisfied.
type fusionRule struct {
	name    string
	matches func(intents map[string]int) bool
	fuse    func(buf []skills.Proposal) string
}

var fusionRules = []fusionRule{
	{
		name: "summarize_and_notify",
		matches: func(i map[string]int) bool {
			return i["summarize_page"] > 0 && i["read_notification"] > 0
		},
		fuse: func([]skills.Proposal) string { return "summarize_and_notify" },
	},
	{
		name:    "resume_workflow",
		matches: func(i map[string]int) bool { return i["continue_task"] > 0 },
		fuse:    func([]skills.Proposal) string { return "resume_workflow" },
	},
	{
		name: "batch_summarize",
		matches: func(i map[string]int) bool {
			count := 0
			for name, n := range i {
				if hasPrefix(name, "summarize") {
					count += n
				}
			}
			return count >= 2
		},
		fuse: func([]skills.Proposal) string { return "batch_summarize" },
	},
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// CrossSkillReasoner buffers skill proposals within a fuse-time window and
// applies rule-based fusion to them (§4.15).
type CrossSkillReasoner struct {
	mu         sync.Mutex
	buffer     []skills.Proposal
	windowOpen time.Time
	fuseWindow time.Duration

	bus *events.Bus
	log *logging.Logger
}

// NewCrossSkillReasoner builds a reasoner with the given fuse-time window
// (zero uses the spec's default of 3s).
func NewCrossSkillReasoner(bus *events.Bus, fuseWindow time.Duration) *CrossSkillReasoner {
	if fuseWindow <= 0 {
		fuseWindow = defaultFuseWindow
	}
	return &CrossSkillReasoner{
		fuseWindow: fuseWindow,
		bus:        bus,
		log:        logging.Get(logging.CategoryCognition),
	}
}

// HandleProposal buffers a new skill proposal and attempts fusion. It
// should be wired to skill.proposal events.
func (r *CrossSkillReasoner) HandleProposal(prop skills.Proposal) {
	r.mu.Lock()
	now := time.Now()
	if len(r.buffer) == 0 || now.Sub(r.windowOpen) > r.fuseWindow {
		r.buffer = nil
		r.windowOpen = now
	}
	r.buffer = append(r.buffer, prop)
	fused, rule := r.attemptFusionLocked()
	var buf []skills.Proposal
	if fused {
		buf = r.buffer
		r.buffer = nil
	}
	r.mu.Unlock()

	if fused {
		r.emitFused(rule, buf)
	}
}

// attemptFusionLocked must be called with r.mu held.
func (r *CrossSkillReasoner) attemptFusionLocked() (bool, fusionRule) {
	counts := map[string]int{}
	for _, p := range r.buffer {
		counts[p.Intent]++
	}
	for _, rule := range fusionRules {
		if rule.matches(counts) {
			return true, rule
		}
	}
	return false, fusionRule{}
}

func (r *CrossSkillReasoner) emitFused(rule fusionRule, buf []skills.Proposal) {
	intent := rule.fuse(buf)
	skillNames := make([]string, 0, len(buf))
	for _, p := range buf {
		skillNames = append(skillNames, p.SkillName)
	}
	r.log.Info("fused %d proposals into %s via rule %s", len(buf), intent, rule.name)
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.New(events.SkillFusedProposal, "", "", "", map[string]interface{}{
		"fused_intent": intent,
		"rule":         rule.name,
		"source_skills": skillNames,
		"proposals":     buf,
	}))
}

// Flush clears any buffered, unfused proposals older than the fuse
// window — called periodically by the cognitive loop so a stale partial
// buffer never blocks new fusions indefinitely.
func (r *CrossSkillReasoner) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buffer) > 0 && time.Since(r.windowOpen) > r.fuseWindow {
		r.buffer = nil
	}
}
