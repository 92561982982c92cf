package world

import (
	"testing"

	"bubbles.ai/internal/sim/physics"
)

func testContact(t *testing.T, a, b EntityRef, ma, mb float64) *physics.Contact {
	t.Helper()
	e := physics.New(physics.Config{Width: 100, Height: 100, Cell: 16})
	ba, err := e.CreateBody(physics.Dynamic, Vec2{}, a)
	if err != nil {
		t.Fatalf("body: %v", err)
	}
	bb, err := e.CreateBody(physics.Dynamic, Vec2{X: 1}, b)
	if err != nil {
		t.Fatalf("body: %v", err)
	}
	if err := e.SetMassData(ba, ma); err != nil {
		t.Fatalf("mass: %v", err)
	}
	if err := e.SetMassData(bb, mb); err != nil {
		t.Fatalf("mass: %v", err)
	}
	return &physics.Contact{A: ba, B: bb}
}

func TestClassify_Priority(t *testing.T) {
	ref := func(k EntityKind, id string) EntityRef { return EntityRef{ID: id, Kind: k} }
	cases := []struct {
		name   string
		a, b   EntityRef
		ma, mb float64
		want   Command
		queued bool
		bouncy bool
	}{
		{"portal+bubble", ref(KindPortal, "P"), ref(KindBubble, "B1"), 1, 1, Command{OpPortalAbsorbBubble, "P", "B1"}, true, false},
		{"bubble+portal", ref(KindBubble, "B1"), ref(KindPortal, "P"), 1, 1, Command{OpPortalAbsorbBubble, "P", "B1"}, true, false},
		{"bubble larger A", ref(KindBubble, "B1"), ref(KindBubble, "B2"), 5, 2, Command{OpBubbleAbsorbBubble, "B1", "B2"}, true, false},
		{"bubble larger B", ref(KindBubble, "B1"), ref(KindBubble, "B2"), 2, 5, Command{OpBubbleAbsorbBubble, "B2", "B1"}, true, false},
		{"bubble tie", ref(KindBubble, "B1"), ref(KindBubble, "B2"), 3, 3, Command{}, false, false},
		{"resource+bubble", ref(KindResource, "R1"), ref(KindBubble, "B1"), 1, 1, Command{OpBubbleAbsorbResource, "B1", "R1"}, true, false},
		{"portal+resource", ref(KindPortal, "P"), ref(KindResource, "R1"), 1, 1, Command{OpPortalAbsorbResource, "P", "R1"}, true, false},
		{"resource+node", ref(KindResource, "R1"), ref(KindNode, "N1"), 1, 1, Command{OpNodeAbsorbResource, "N1", "R1"}, true, false},
		{"node+bubble", ref(KindNode, "N1"), ref(KindBubble, "B1"), 1, 1, Command{OpNodeAbsorbBubble, "N1", "B1"}, true, false},
		{"resource+resource", ref(KindResource, "R1"), ref(KindResource, "R2"), 1, 1, Command{}, false, true},
		{"bubble+obstacle", ref(KindBubble, "B1"), ref(KindObstacle, "O1"), 1, 1, Command{}, false, true},
		{"resource+obstacle", ref(KindResource, "R1"), ref(KindObstacle, "O1"), 1, 1, Command{}, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := testContact(t, tc.a, tc.b, tc.ma, tc.mb)
			got, ok := classify(tc.a, tc.b, c)
			if ok != tc.queued || got != tc.want {
				t.Fatalf("got %+v,%v want %+v,%v", got, ok, tc.want, tc.queued)
			}
			if bouncy := c.Restitution() == 1; bouncy != tc.bouncy {
				t.Fatalf("restitution=%v", c.Restitution())
			}
		})
	}
}

func TestContactIsDeferredUntilAfterStep(t *testing.T) {
	w := newTestWorld(t)
	p := mustPortal(t, w, alice, 100, 100, 10)
	b := mustBubble(t, w, alice, 101, 100, 1)

	var queuedDuringStep int
	w.engine.SetContactListener(func(c *physics.Contact) {
		w.handleContact(c)
		queuedDuringStep = w.PendingCommands()
		if b.Mass() != 1 || p.Mass != 10 {
			t.Fatalf("mass mutated inside contact callback")
		}
	})

	w.Advance(20)
	if queuedDuringStep != 1 {
		t.Fatalf("queued during step=%d", queuedDuringStep)
	}
	if w.PendingCommands() != 0 {
		t.Fatalf("queue not drained")
	}
	if !near(b.Mass(), 0.96) || !near(p.Mass, 10.04) {
		t.Fatalf("after drain bubble=%v portal=%v", b.Mass(), p.Mass)
	}
}

func TestDrainSkipsVanishedParticipants(t *testing.T) {
	w := newTestWorld(t)
	big := mustBubble(t, w, alice, 100, 100, 5)
	w.enqueue(Command{Op: OpBubbleAbsorbBubble, ReceiverID: big.ID, DonorID: "B999"})
	w.enqueue(Command{Op: OpPortalAbsorbBubble, ReceiverID: "nobody", DonorID: big.ID})
	w.drainCommands(0.02)
	if big.Mass() != 5 {
		t.Fatalf("mass=%v", big.Mass())
	}
}
