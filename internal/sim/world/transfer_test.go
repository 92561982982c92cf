package world

import (
	"math"
	"testing"

	"bubbles.ai/internal/sim/tuning"
)

func TestPortalAbsorbBubble_ConservesMassWithinRate(t *testing.T) {
	w := newTestWorld(t)
	p := mustPortal(t, w, alice, 100, 100, 10)
	b := mustBubble(t, w, alice, 300, 300, 5)

	const elapsed = 0.02
	before := p.Mass + b.Mass()
	got := w.PortalAbsorbBubble(p, b, elapsed)

	if !near(p.Mass+b.Mass(), before) {
		t.Fatalf("mass not conserved: before=%v after=%v", before, p.Mass+b.Mass())
	}
	if got > w.tune.MassPerSecond*elapsed+1e-12 {
		t.Fatalf("moved %v, cap %v", got, w.tune.MassPerSecond*elapsed)
	}
	if !near(p.Mass, 10+got) || !near(p.BodyMass(), p.Mass) {
		t.Fatalf("portal mass=%v body=%v", p.Mass, p.BodyMass())
	}
	if !near(p.Radius(), MassToRadius(p.Mass)) {
		t.Fatalf("portal fixture not rebuilt: r=%v", p.Radius())
	}
}

func TestPortalAbsorbBubble_IncrementalOverManySteps(t *testing.T) {
	w := newTestWorld(t)
	p := mustPortal(t, w, alice, 100, 100, 10)
	b := mustBubble(t, w, alice, 300, 300, 1)

	steps := 0
	for {
		if _, ok := w.Bubble(b.ID); !ok {
			break
		}
		w.PortalAbsorbBubble(p, b, 0.125)
		steps++
		if steps > 1000 {
			t.Fatalf("bubble never drained")
		}
	}
	// 1 mass at 0.25 per call.
	if steps != 4 {
		t.Fatalf("steps=%d want 4", steps)
	}
	if !near(p.Mass, 11) {
		t.Fatalf("portal mass=%v", p.Mass)
	}
	if len(eventsOf(w.Events().Drain(), EventDestroyBubble)) != 1 {
		t.Fatalf("expected one DestroyBubble event")
	}
}

func TestBubbleAbsorbBubble_LargerAbsorbs(t *testing.T) {
	w := newTestWorld(t)
	small := mustBubble(t, w, alice, 100, 100, 2)
	large := mustBubble(t, w, bob, 200, 200, 8)

	got := w.BubbleAbsorbBubble(small, large, 0.5)
	if !near(got, 1) {
		t.Fatalf("moved %v want 1", got)
	}
	if !near(large.Mass(), 9) || !near(small.Mass(), 1) {
		t.Fatalf("masses large=%v small=%v", large.Mass(), small.Mass())
	}
}

func TestBubbleAbsorbBubble_EqualMassIsNoOp(t *testing.T) {
	w := newTestWorld(t)
	a := mustBubble(t, w, alice, 100, 100, 3)
	b := mustBubble(t, w, bob, 200, 200, 3)

	if got := w.BubbleAbsorbBubble(a, b, 1); got != 0 {
		t.Fatalf("moved %v", got)
	}
	if a.Mass() != 3 || b.Mass() != 3 {
		t.Fatalf("masses changed: %v %v", a.Mass(), b.Mass())
	}
}

func TestBubbleAbsorbResource_TracksComposition(t *testing.T) {
	w := newTestWorld(t)
	b := mustBubble(t, w, alice, 100, 100, 4)
	r, err := w.CreateResource("", ResourceIce, Vec2{X: 200, Y: 200}, Vec2{}, 0.03)
	if err != nil {
		t.Fatalf("create resource: %v", err)
	}
	got := w.BubbleAbsorbResource(b, r, 0.02)
	if !near(got, 0.03) {
		t.Fatalf("moved %v", got)
	}
	if !near(b.Mass(), 4.03) || !near(b.Resources[ResourceIce], 0.03) {
		t.Fatalf("bubble mass=%v ice=%v", b.Mass(), b.Resources[ResourceIce])
	}
	if _, ok := w.Resource(r.ID); ok {
		t.Fatalf("drained resource still present")
	}
}

func TestCompositionMovesProportionally(t *testing.T) {
	w := newTestWorld(t)
	p := mustPortal(t, w, alice, 100, 100, 10)
	b := mustBubble(t, w, alice, 300, 300, 4)
	b.Resources[ResourceEnergy] = 2

	w.PortalAbsorbBubble(p, b, 0.5) // moves 1 of 4
	if !near(b.Resources[ResourceEnergy], 1.5) || !near(p.Resources[ResourceEnergy], 0.5) {
		t.Fatalf("bubble energy=%v portal energy=%v", b.Resources[ResourceEnergy], p.Resources[ResourceEnergy])
	}
}

func TestNodeAbsorbResource_OnlyOwnKind(t *testing.T) {
	w := newTestWorld(t)
	n, err := w.CreateNode("", ResourceEnergy, Vec2{X: 50, Y: 50}, 5, Vec2{X: 1})
	if err != nil {
		t.Fatalf("create node: %v", err)
	}
	ice, _ := w.CreateResource("", ResourceIce, Vec2{X: 100, Y: 100}, Vec2{}, 1)
	energy, _ := w.CreateResource("", ResourceEnergy, Vec2{X: 150, Y: 150}, Vec2{}, 1)

	if got := w.NodeAbsorbResource(n, ice, 1); got != 0 {
		t.Fatalf("absorbed foreign kind: %v", got)
	}
	if got := w.NodeAbsorbResource(n, energy, 0.25); !near(got, 0.5) {
		t.Fatalf("moved %v", got)
	}
	if !near(n.Mass, 5.5) || !near(energy.Mass(), 0.5) {
		t.Fatalf("node=%v resource=%v", n.Mass, energy.Mass())
	}
}

func TestApplyPortalGrowth_Clamped(t *testing.T) {
	w := newTestWorld(t)
	p := mustPortal(t, w, alice, 100, 100, 10)

	p.Mass = 20
	w.ApplyPortalGrowth(p, 0.02)
	if !near(p.BodyMass(), 10.04) {
		t.Fatalf("grow: body=%v", p.BodyMass())
	}

	p.Mass = 10
	w.ApplyPortalGrowth(p, 0.01)
	if !near(p.BodyMass(), 10.02) {
		t.Fatalf("shrink: body=%v", p.BodyMass())
	}

	w.ApplyPortalGrowth(p, 10)
	if !near(p.BodyMass(), 10) {
		t.Fatalf("overshoot: body=%v", p.BodyMass())
	}
}

func TestApplyPortalGravity(t *testing.T) {
	tune := tuning.Defaults()
	tune.GravitationalConstant = 1
	w, err := New(tune, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p := mustPortal(t, w, alice, 100, 100, 10)
	b := mustBubble(t, w, alice, 110, 100, 1)

	w.ApplyPortalGravity(p, b)
	w.engine.Step(0.02)
	if v := b.Velocity(); !(v.X < 0) || math.Abs(v.Y) > 1e-12 {
		t.Fatalf("velocity %+v not toward portal", v)
	}
}
