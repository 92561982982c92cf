package timeline

import (
	"sort"

	"bubbles.ai/internal/protocol"
	"bubbles.ai/internal/sim/world"
)

type displayEntry struct {
	create  protocol.EventType
	destroy protocol.EventType
	pos     world.Vec2
}

// displayIndex lists the entities a presentation layer draws, keyed by id.
func displayIndex(w *world.World) map[string]displayEntry {
	idx := map[string]displayEntry{}
	for _, b := range w.Bubbles() {
		idx[b.ID] = displayEntry{world.EventCreateBubble, world.EventDestroyBubble, b.Position()}
	}
	for _, r := range w.Resources() {
		idx[r.ID] = displayEntry{world.EventCreateResource, world.EventDestroyResource, r.Position()}
	}
	for _, p := range w.Portals() {
		// Portals are never destroyed; an empty destroy type skips them.
		idx[p.ID] = displayEntry{world.EventCreatePortal, "", p.Position()}
	}
	return idx
}

// diffDisplay turns a timeline swap into the create/destroy events the
// presentation layer would have seen had the new history been the only one.
// Destroys come first, then creates, each in id order.
func diffDisplay(before, after map[string]displayEntry, ts int64) []protocol.Event {
	var gone, born []string
	for id, e := range before {
		if _, ok := after[id]; !ok && e.destroy != "" {
			gone = append(gone, id)
		}
	}
	for id := range after {
		if _, ok := before[id]; !ok {
			born = append(born, id)
		}
	}
	sort.Strings(gone)
	sort.Strings(born)

	out := make([]protocol.Event, 0, len(gone)+len(born))
	for _, id := range gone {
		e := before[id]
		out = append(out, protocol.Event{Type: e.destroy, ID: id, Position: protocol.Vec2{X: e.pos.X, Y: e.pos.Y}, Timestamp: ts})
	}
	for _, id := range born {
		e := after[id]
		out = append(out, protocol.Event{Type: e.create, ID: id, Position: protocol.Vec2{X: e.pos.X, Y: e.pos.Y}, Timestamp: ts})
	}
	return out
}
