package skills

import "github.com/flowtitan/flowtitan/internal/events"

// busAdapter narrows an *events.Bus down to the EventBus interface this
// package depends on, translating between events.Event and the
// topic/payload pair skills see.
type busAdapter struct {
	bus *events.Bus
}

// NewBusAdapter wraps bus so it satisfies EventBus.
func NewBusAdapter(bus *events.Bus) EventBus {
	return &busAdapter{bus: bus}
}

func (a *busAdapter) Subscribe(pattern string, handler func(topic string, payload map[string]interface{})) func() {
	return a.bus.Subscribe(pattern, func(e events.Event) {
		handler(e.Topic(), e.Payload)
	})
}

func (a *busAdapter) Publish(topic string, payload map[string]interface{}) {
	a.bus.Publish(events.New(events.Type(topic), "", "", "", payload))
}
