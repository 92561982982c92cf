package world

import (
	"math"
	"testing"

	"bubbles.ai/internal/protocol"
	"bubbles.ai/internal/sim/tuning"
)

const (
	alice = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	bob   = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := New(tuning.Defaults(), 0)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func near(a, b float64) bool { return math.Abs(a-b) <= 1e-9 }

func mustPortal(t *testing.T, w *World, owner string, x, y, mass float64) *Portal {
	t.Helper()
	p, err := w.CreatePortal(owner, Vec2{X: x, Y: y}, mass)
	if err != nil {
		t.Fatalf("create portal: %v", err)
	}
	return p
}

func mustBubble(t *testing.T, w *World, owner string, x, y, mass float64) *Bubble {
	t.Helper()
	b, err := w.CreateBubble(owner, Vec2{X: x, Y: y}, Vec2{}, mass)
	if err != nil {
		t.Fatalf("create bubble: %v", err)
	}
	return b
}

func eventsOf(evs []protocol.Event, typ protocol.EventType) []protocol.Event {
	var out []protocol.Event
	for _, e := range evs {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
