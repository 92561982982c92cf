package world

import "math"

// applyEffects runs the continuous per-step passes in a fixed order.
func (w *World) applyEffects(elapsed float64) {
	for _, p := range w.portals.values() {
		w.ApplyPortalGrowth(p, elapsed)
	}
	w.emitFromNodes()
	w.emitFromPunctures()
}

// applyGravity accumulates portal pull on every bubble. It runs right before
// the physics step consumes forces, so no force is pending at a boundary.
func (w *World) applyGravity() {
	if w.tune.GravitationalConstant == 0 {
		return
	}
	for _, p := range w.portals.values() {
		for _, b := range w.bubbles.values() {
			w.ApplyPortalGravity(p, b)
		}
	}
}

func (w *World) emitFromNodes() {
	interval := w.tune.NodeEmitIntervalMs
	for _, n := range w.nodes.values() {
		if w.clock-n.LastEmission < interval || n.Mass < w.tune.NodeEmitMass {
			continue
		}
		n.LastEmission = w.clock
		_, _ = w.EmitResource(n.ID, n.Kind, w.tune.NodeEmitMass, n.EmissionDirection)
	}
}

func (w *World) emitFromPunctures() {
	interval := w.tune.PunctureEmitIntervalMs
	for _, b := range w.bubbles.values() {
		if len(b.Punctures) == 0 || w.clock-b.LastPunctureEmit < interval {
			continue
		}
		b.LastPunctureEmit = w.clock
		kept := b.Punctures[:0]
		for _, pc := range b.Punctures {
			if _, alive := w.bubbles.get(b.ID); !alive {
				break
			}
			amt := math.Min(math.Min(w.tune.PunctureEmitMass, pc.Remaining), math.Min(b.Resources[pc.Kind], b.Mass()))
			if amt > 0 {
				if _, err := w.EmitResource(b.ID, pc.Kind, amt, pc.Point); err == nil {
					pc.Remaining -= amt
				}
			}
			if pc.Remaining > 0 && b.Resources[pc.Kind] > 0 {
				kept = append(kept, pc)
			}
		}
		b.Punctures = kept
	}
}

// Puncture opens a leak of up to amount of kind at point (relative to the
// bubble centre). A second puncture at the same point adds to the first.
func (w *World) Puncture(bubbleID string, point Vec2, kind ResourceKind, amount float64) error {
	b, ok := w.bubbles.get(bubbleID)
	if !ok {
		return ErrUnknownEntity
	}
	if !(amount > 0) || point.IsZero() {
		return ErrInvalidInput
	}
	for i := range b.Punctures {
		if b.Punctures[i].Point == point {
			if b.Punctures[i].Kind != kind {
				return ErrInvalidInput
			}
			b.Punctures[i].Remaining += amount
			return nil
		}
	}
	b.Punctures = append(b.Punctures, Puncture{Point: point, Kind: kind, Remaining: amount})
	return nil
}
