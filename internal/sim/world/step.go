package world

// Advance runs fixed steps until the next step would pass target. At each
// boundary the boundary hook runs first, then the inputs due at that clock.
// The clock never exceeds target; a target behind the clock does nothing.
func (w *World) Advance(target int64) {
	if target < w.clock {
		return
	}
	step := w.tune.StepMillis
	for {
		if !w.boundaryDone {
			if w.onBoundary != nil {
				w.onBoundary(w)
			}
			w.boundaryDone = true
		}
		for _, in := range w.inputs.Due(w.clock) {
			_ = w.ApplyInput(in)
		}
		if w.clock+step > target {
			return
		}
		w.stepOnce()
	}
}

// stepOnce is one physics sub-step followed by the resolution phase.
func (w *World) stepOnce() {
	dt := w.tune.StepSeconds()
	w.applyGravity()
	w.engine.Step(dt)
	w.drainCommands(dt)
	w.clock += w.tune.StepMillis
	w.boundaryDone = false
	w.applyEffects(dt)
}
