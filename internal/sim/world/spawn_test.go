package world

import (
	"errors"
	"math"
	"testing"

	"bubbles.ai/internal/sim/tuning"
)

func TestMassToRadius_MonotoneAndRoundTrip(t *testing.T) {
	prev := -1.0
	for _, m := range []float64{1e-6, 0.001, 0.5, 1, 2, 10, 1234.5, 1e9} {
		r := MassToRadius(m)
		if !(r > prev) {
			t.Fatalf("radius not increasing at m=%v: %v <= %v", m, r, prev)
		}
		prev = r
		if back := RadiusToMass(r); math.Abs(back-m) > 1e-9*math.Max(1, m) {
			t.Fatalf("round trip m=%v got %v", m, back)
		}
	}
}

func TestSpawnHash_InUnitInterval(t *testing.T) {
	for k := 0; k < 500; k++ {
		for _, v := range []float64{spawnHash(float64(k), 0), spawnHash(0, float64(k))} {
			if v < 0 || v >= 1 {
				t.Fatalf("hash(%d)=%v", k, v)
			}
		}
	}
}

func TestGenerateSpawnPoint_KeepsClearance(t *testing.T) {
	w := newTestWorld(t)
	mustPortal(t, w, alice, 0, 0, 50)
	mustPortal(t, w, bob, 200, 200, 30)
	if _, err := w.CreateObstacle(Vec2{X: 100, Y: 100}, []Vec2{{X: -5, Y: -5}, {X: 5, Y: -5}, {X: 0, Y: 5}}); err != nil {
		t.Fatalf("obstacle: %v", err)
	}

	const mass = 6
	clearance := 2 * MassToRadius(mass)
	for i := 0; i < 40; i++ {
		p, err := w.GenerateSpawnPoint(mass)
		if err != nil {
			t.Fatalf("spawn %d: %v", i, err)
		}
		for _, x := range w.Portals() {
			if p.Dist(x.Position()) < clearance {
				t.Fatalf("spawn %d at %+v too close to portal %s", i, p, x.ID)
			}
		}
		for _, x := range w.Bubbles() {
			if p.Dist(x.Position()) < clearance {
				t.Fatalf("spawn %d at %+v too close to bubble %s", i, p, x.ID)
			}
		}
		for _, x := range w.Obstacles() {
			if p.Dist(x.Position()) < clearance {
				t.Fatalf("spawn %d at %+v too close to obstacle %s", i, p, x.ID)
			}
		}
		mustBubble(t, w, alice, p.X, p.Y, mass)
	}
}

func TestGenerateSpawnPoint_Reproducible(t *testing.T) {
	a, b := newTestWorld(t), newTestWorld(t)
	for _, w := range []*World{a, b} {
		mustPortal(t, w, alice, 0, 0, 10)
		mustBubble(t, w, bob, 150, 150, 4)
	}
	pa, err := a.GenerateSpawnPoint(3)
	if err != nil {
		t.Fatalf("a: %v", err)
	}
	pb, err := b.GenerateSpawnPoint(3)
	if err != nil {
		t.Fatalf("b: %v", err)
	}
	if math.Float64bits(pa.X) != math.Float64bits(pb.X) || math.Float64bits(pa.Y) != math.Float64bits(pb.Y) {
		t.Fatalf("spawn differs: %+v vs %+v", pa, pb)
	}
}

func TestGenerateSpawnPoint_EmptyWorldUsesOrigin(t *testing.T) {
	w := newTestWorld(t)
	p, err := w.GenerateSpawnPoint(1)
	if err != nil || !p.IsZero() {
		t.Fatalf("p=%+v err=%v", p, err)
	}
}

func TestGenerateSpawnPoint_GivesUp(t *testing.T) {
	tune := tuning.Defaults()
	tune.SpawnMaxAttempts = 3
	w, err := New(tune, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	// Clearance larger than the world diagonal around a central portal.
	mustPortal(t, w, alice, 200, 200, 10)
	if _, err := w.GenerateSpawnPoint(RadiusToMass(400)); !errors.Is(err, ErrNoSpawnPoint) {
		t.Fatalf("err=%v", err)
	}
}
