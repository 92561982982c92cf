package world

import (
	"errors"
	"testing"
)

func TestEmitBubble_MoreThanPortalHoldsFails(t *testing.T) {
	w := newTestWorld(t)
	p := mustPortal(t, w, alice, 100, 100, 10)
	w.Events().Drain()

	if _, err := w.EmitBubble(p.ID, 10.5, Vec2{X: 1}); !errors.Is(err, ErrInvalidEmission) {
		t.Fatalf("err=%v want ErrInvalidEmission", err)
	}
	if p.Mass != 10 || p.BodyMass() != 10 {
		t.Fatalf("portal mutated: mass=%v body=%v", p.Mass, p.BodyMass())
	}
	if len(w.Bubbles()) != 0 || len(w.Events().Drain()) != 0 {
		t.Fatalf("failed emission left traces")
	}
	if _, err := w.EmitBubble(p.ID, 0, Vec2{X: 1}); !errors.Is(err, ErrInvalidEmission) {
		t.Fatalf("zero mass: err=%v", err)
	}
}

func TestEmitBubble_FromPortalPlacementAndMomentum(t *testing.T) {
	w := newTestWorld(t)
	p := mustPortal(t, w, alice, 100, 100, 10)
	r0 := p.Radius()

	b, err := w.EmitBubble(p.ID, 4, Vec2{X: 2})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if !near(p.Mass, 6) || !near(b.Mass(), 4) {
		t.Fatalf("portal=%v bubble=%v", p.Mass, b.Mass())
	}
	wantX := 100 + r0 + MassToRadius(4)
	if pos := b.Position(); !near(pos.X, wantX) || !near(pos.Y, 100) {
		t.Fatalf("pos=%+v want x=%v", pos, wantX)
	}
	// Relative speed is donorMassAfter / emittedMass along the unit direction.
	if v := b.Velocity(); !near(v.X, 6.0/4.0) || !near(v.Y, 0) {
		t.Fatalf("vel=%+v", v)
	}
	if b.Owner != alice {
		t.Fatalf("owner=%q", b.Owner)
	}
	if evs := eventsOf(w.Events().Drain(), EventCreateBubble); len(evs) != 1 || evs[0].ID != b.ID {
		t.Fatalf("create events: %+v", evs)
	}
}

func TestEmitBubble_ZeroDirectionDefaultsToDiagonal(t *testing.T) {
	w := newTestWorld(t)
	p := mustPortal(t, w, alice, 100, 100, 10)
	b, err := w.EmitBubble(p.ID, 1, Vec2{})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	pos := b.Position()
	if !(pos.X > 100) || !near(pos.X-100, pos.Y-100) {
		t.Fatalf("pos=%+v not on the diagonal", pos)
	}
}

func TestEmitBubble_WholeBubbleDestroysDonor(t *testing.T) {
	w := newTestWorld(t)
	src := mustBubble(t, w, alice, 100, 100, 3)
	child, err := w.EmitBubble(src.ID, 3, Vec2{Y: 1})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if _, ok := w.Bubble(src.ID); ok {
		t.Fatalf("empty donor survived")
	}
	if !near(child.Mass(), 3) || !near(w.TotalMass(), 3) {
		t.Fatalf("child=%v total=%v", child.Mass(), w.TotalMass())
	}
}

func TestEmitResource_RequiresComposition(t *testing.T) {
	w := newTestWorld(t)
	b := mustBubble(t, w, alice, 100, 100, 5)
	if _, err := w.EmitResource(b.ID, ResourcePlasma, 1, Vec2{X: 1}); !errors.Is(err, ErrInvalidEmission) {
		t.Fatalf("err=%v", err)
	}
	b.Resources[ResourcePlasma] = 2
	r, err := w.EmitResource(b.ID, ResourcePlasma, 1.5, Vec2{X: 1})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if r.Kind != ResourcePlasma || !near(r.Mass(), 1.5) {
		t.Fatalf("resource %+v mass=%v", r, r.Mass())
	}
	if !near(b.Mass(), 3.5) || !near(b.Resources[ResourcePlasma], 0.5) {
		t.Fatalf("bubble mass=%v plasma=%v", b.Mass(), b.Resources[ResourcePlasma])
	}
}

func TestEmitResource_NodeOwnKindOnly(t *testing.T) {
	w := newTestWorld(t)
	n, err := w.CreateNode("", ResourceIce, Vec2{X: 200, Y: 200}, 3, Vec2{X: 1})
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	if _, err := w.EmitResource(n.ID, ResourceEnergy, 1, Vec2{X: 1}); !errors.Is(err, ErrInvalidEmission) {
		t.Fatalf("foreign kind: err=%v", err)
	}
	if _, err := w.EmitResource(n.ID, ResourceIce, 1, Vec2{X: 1}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if !near(n.Mass, 2) {
		t.Fatalf("node mass=%v", n.Mass)
	}
	if _, err := w.EmitBubble(n.ID, 1, Vec2{X: 1}); !errors.Is(err, ErrInvalidEmission) {
		t.Fatalf("node bubble: err=%v", err)
	}
}

func TestEmitUnknownDonor(t *testing.T) {
	w := newTestWorld(t)
	if _, err := w.EmitBubble("B404", 1, Vec2{X: 1}); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("err=%v", err)
	}
}
