// Package skills implements the Skill contract and SkillManager (§4.13):
// event- and tick-driven proposal producers that carry a cooldown and a
// priority setting, each isolated from the others' panics and errors. The
// manager does not order skills by priority.
package skills

import (
	"context"
	"sync/atomic"
	"time"
)

// Context is the helper bundle handed to a Skill's OnEvent/Tick callbacks.
// Concrete callables are bound by the SkillManager that constructs it.
type Context struct {
	SessionID string

	PublishEvent func(topic string, payload map[string]interface{})
	QueryMemory  func(ctx context.Context, query string, k int) ([]map[string]interface{}, error)
	PlanWithDSL  func(ctx context.Context, dslText string) (interface{}, error)
	ExecutePlan  func(ctx context.Context, plan interface{}) (interface{}, error)
	RuntimeGet   func(key string, def interface{}) interface{}
	RuntimeSet   func(key string, value interface{})
}

// Skill is the contract every autonomous skill implements. Subscriptions
// is a list of topic globs (exact, "*", or single-level "prefix.*", matched
// the same way the event bus matches them); TickInterval<=0 means no
// periodic tick.
type Skill interface {
	Name() string
	Subscriptions() []string
	TickInterval() time.Duration
	Priority() int
	Cooldown() time.Duration

	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
	OnEvent(ctx context.Context, event Event, sctx *Context) error
	Tick(ctx context.Context, sctx *Context) error
}

// Event is the minimal envelope a skill callback receives — deliberately
// narrower than events.Event so this package never imports internal/events
// and create a dependency cycle with whatever wires the manager to the bus.
type Event struct {
	Topic   string
	Payload map[string]interface{}
}

// BaseSkill gives concrete skills the cooldown bookkeeping and no-op
// lifecycle hooks every skill needs, matching titan's BaseSkill (a skill
// embeds this and overrides only what it needs).
type BaseSkill struct {
	SkillName      string
	SkillTopics    []string
	SkillTick      time.Duration
	SkillPriority  int
	SkillCooldown  time.Duration
	lastActionNano int64
}

func (b *BaseSkill) Name() string               { return b.SkillName }
func (b *BaseSkill) Subscriptions() []string     { return b.SkillTopics }
func (b *BaseSkill) TickInterval() time.Duration { return b.SkillTick }
func (b *BaseSkill) Priority() int                { return b.SkillPriority }
func (b *BaseSkill) Cooldown() time.Duration      { return b.SkillCooldown }

func (b *BaseSkill) OnStart(context.Context) error                        { return nil }
func (b *BaseSkill) OnStop(context.Context) error                         { return nil }
func (b *BaseSkill) OnEvent(context.Context, Event, *Context) error       { return nil }
func (b *BaseSkill) Tick(context.Context, *Context) error                 { return nil }

// AllowedToAct reports whether enough time has passed since the last
// visible action to act again (§4.13's cooldown enforcement).
func (b *BaseSkill) AllowedToAct() bool {
	last := atomic.LoadInt64(&b.lastActionNano)
	if last == 0 {
		return true
	}
	return time.Since(time.Unix(0, last)) >= b.SkillCooldown
}

// MarkAction records "now" as the last visible action, resetting the
// cooldown window.
func (b *BaseSkill) MarkAction() {
	atomic.StoreInt64(&b.lastActionNano, time.Now().UnixNano())
}
