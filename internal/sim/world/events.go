package world

import "bubbles.ai/internal/protocol"

// EventBus fans lifecycle events out to subscribers and keeps them buffered
// until drained. The world publishes only; delivery timing relative to the
// next step is not guaranteed to consumers.
type EventBus struct {
	subs   map[int]func(protocol.Event)
	order  []int
	nextID int

	buf   []protocol.Event
	muted bool
}

func NewEventBus() *EventBus {
	return &EventBus{subs: map[int]func(protocol.Event){}}
}

// Subscribe registers fn and returns a function that removes it.
func (b *EventBus) Subscribe(fn func(protocol.Event)) func() {
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	b.order = append(b.order, id)
	return func() {
		delete(b.subs, id)
		for i, x := range b.order {
			if x == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// SetMuted drops events instead of delivering them (used while replaying).
func (b *EventBus) SetMuted(m bool) { b.muted = m }

func (b *EventBus) Publish(ev protocol.Event) {
	if b.muted {
		return
	}
	b.buf = append(b.buf, ev)
	for _, id := range b.order {
		b.subs[id](ev)
	}
}

// Drain returns and clears the buffered events.
func (b *EventBus) Drain() []protocol.Event {
	out := b.buf
	b.buf = nil
	return out
}

func pv(v Vec2) protocol.Vec2 { return protocol.Vec2{X: v.X, Y: v.Y} }
func vp(v protocol.Vec2) Vec2 { return Vec2{X: v.X, Y: v.Y} }

func (w *World) publish(typ protocol.EventType, id string, pos Vec2) {
	w.events.Publish(protocol.Event{Type: typ, ID: id, Position: pv(pos), Timestamp: w.clock})
}

const (
	EventCreateBubble    = protocol.EventCreateBubble
	EventDestroyBubble   = protocol.EventDestroyBubble
	EventCreateResource  = protocol.EventCreateResource
	EventDestroyResource = protocol.EventDestroyResource
	EventCreatePortal    = protocol.EventCreatePortal
	EventInputRejected   = protocol.EventInputRejected
)
