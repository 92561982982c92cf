package world

import "bubbles.ai/internal/sim/physics"

// handleContact classifies a contact by the kind tags on both bodies and
// either queues a transfer or adjusts restitution. It runs inside the engine
// step and must not touch bodies; the first matching rule wins.
func (w *World) handleContact(c *physics.Contact) {
	a, okA := c.A.UserData.(EntityRef)
	b, okB := c.B.UserData.(EntityRef)
	if !okA || !okB {
		return
	}
	if cmd, ok := classify(a, b, c); ok {
		w.enqueue(cmd)
	}
}

// pairOf reports whether {a,b} is the kind pair {x,y}, returning them in
// that order.
func pairOf(a, b EntityRef, x, y EntityKind) (EntityRef, EntityRef, bool) {
	switch {
	case a.Kind == x && b.Kind == y:
		return a, b, true
	case b.Kind == x && a.Kind == y:
		return b, a, true
	}
	return EntityRef{}, EntityRef{}, false
}

func classify(a, b EntityRef, c *physics.Contact) (Command, bool) {
	if r, d, ok := pairOf(a, b, KindPortal, KindBubble); ok {
		return Command{Op: OpPortalAbsorbBubble, ReceiverID: r.ID, DonorID: d.ID}, true
	}
	if a.Kind == KindBubble && b.Kind == KindBubble {
		ma, mb := c.A.Mass(), c.B.Mass()
		switch {
		case ma > mb:
			return Command{Op: OpBubbleAbsorbBubble, ReceiverID: a.ID, DonorID: b.ID}, true
		case mb > ma:
			return Command{Op: OpBubbleAbsorbBubble, ReceiverID: b.ID, DonorID: a.ID}, true
		}
		return Command{}, false
	}
	if r, d, ok := pairOf(a, b, KindBubble, KindResource); ok {
		return Command{Op: OpBubbleAbsorbResource, ReceiverID: r.ID, DonorID: d.ID}, true
	}
	if r, d, ok := pairOf(a, b, KindPortal, KindResource); ok {
		return Command{Op: OpPortalAbsorbResource, ReceiverID: r.ID, DonorID: d.ID}, true
	}
	if r, d, ok := pairOf(a, b, KindNode, KindResource); ok {
		return Command{Op: OpNodeAbsorbResource, ReceiverID: r.ID, DonorID: d.ID}, true
	}
	if r, d, ok := pairOf(a, b, KindNode, KindBubble); ok {
		return Command{Op: OpNodeAbsorbBubble, ReceiverID: r.ID, DonorID: d.ID}, true
	}
	if a.Kind == KindResource && b.Kind == KindResource {
		c.SetRestitution(1)
		return Command{}, false
	}
	if a.Kind == KindBubble || b.Kind == KindBubble {
		c.SetRestitution(1)
	}
	return Command{}, false
}
