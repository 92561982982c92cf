package world

import "math"

// spawnHash is a cheap reproducible value in [0,1). The integer mix follows
// 32-bit two's-complement arithmetic so the sequence is identical on every
// platform.
func spawnHash(x, y float64) float64 {
	h := int32(uint32(int64(math.Floor(x))*0x1f1f1f1f)) ^ int32(int64(math.Floor(y)))
	n := math.Sin(float64(h)) * 10000
	return n - math.Floor(n)
}

// GenerateSpawnPoint returns the first candidate position that keeps
// 2*radius(mass) clearance from every portal, bubble and obstacle.
// Candidate 0 is the origin; candidate k+1 is hashed from k.
func (w *World) GenerateSpawnPoint(mass float64) (Vec2, error) {
	clearance := 2 * MassToRadius(mass)
	var p Vec2
	for attempt := 0; attempt < w.tune.SpawnMaxAttempts; attempt++ {
		if attempt > 0 {
			k := float64(attempt - 1)
			p = Vec2{X: spawnHash(k, 0) * w.tune.WorldWidth, Y: spawnHash(0, k) * w.tune.WorldHeight}
		}
		if w.spawnClear(p, clearance) {
			return p, nil
		}
	}
	return Vec2{}, ErrNoSpawnPoint
}

func (w *World) spawnClear(p Vec2, clearance float64) bool {
	for _, x := range w.portals.values() {
		if p.Dist(x.Position()) < clearance {
			return false
		}
	}
	for _, x := range w.bubbles.values() {
		if p.Dist(x.Position()) < clearance {
			return false
		}
	}
	for _, x := range w.obstacles.values() {
		if p.Dist(x.Position()) < clearance {
			return false
		}
	}
	return true
}
