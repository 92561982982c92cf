package world

import "math"

// Mass-transfer rules. Each moves min(donorMass, MassPerSecond*elapsed)
// from donor to receiver and rebuilds both fixtures. They never fail: a rule
// with nothing to move is a no-op. The return value is the amount moved.

func (w *World) transferCap(donorMass, elapsed float64) float64 {
	if donorMass <= 0 || elapsed <= 0 {
		return 0
	}
	return math.Min(donorMass, w.tune.MassPerSecond*elapsed)
}

// moveComposition moves the fraction f of every kind in from into to.
// to may be nil when the receiver does not track composition.
func moveComposition(from, to map[ResourceKind]float64, f float64) {
	if f <= 0 {
		return
	}
	if f > 1 {
		f = 1
	}
	for _, k := range sortedKinds(from) {
		amt := from[k] * f
		if f == 1 {
			amt = from[k]
		}
		if to != nil {
			to[k] += amt
		}
		if rest := from[k] - amt; rest > 0 {
			from[k] = rest
		} else {
			delete(from, k)
		}
	}
}

func (w *World) PortalAbsorbBubble(p *Portal, b *Bubble, elapsed float64) float64 {
	bm := b.Mass()
	amount := w.transferCap(bm, elapsed)
	if amount == 0 {
		return 0
	}
	moveComposition(b.Resources, p.Resources, amount/bm)
	w.setPortalMass(p, p.Mass+amount)
	w.setBubbleMass(b, bm-amount)
	return amount
}

// BubbleAbsorbBubble lets the strictly larger bubble absorb the smaller.
// Masses are compared at call time; equal masses transfer nothing.
func (w *World) BubbleAbsorbBubble(a, b *Bubble, elapsed float64) float64 {
	am, bm := a.Mass(), b.Mass()
	if am == bm {
		return 0
	}
	recv, donor := a, b
	if bm > am {
		recv, donor = b, a
	}
	dm := donor.Mass()
	amount := w.transferCap(dm, elapsed)
	if amount == 0 {
		return 0
	}
	moveComposition(donor.Resources, recv.Resources, amount/dm)
	w.setBubbleMass(recv, recv.Mass()+amount)
	w.setBubbleMass(donor, dm-amount)
	return amount
}

func (w *World) BubbleAbsorbResource(b *Bubble, r *Resource, elapsed float64) float64 {
	rm := r.Mass()
	amount := w.transferCap(rm, elapsed)
	if amount == 0 {
		return 0
	}
	b.Resources[r.Kind] += amount
	w.setBubbleMass(b, b.Mass()+amount)
	w.setResourceMass(r, rm-amount)
	return amount
}

func (w *World) PortalAbsorbResource(p *Portal, r *Resource, elapsed float64) float64 {
	rm := r.Mass()
	amount := w.transferCap(rm, elapsed)
	if amount == 0 {
		return 0
	}
	p.Resources[r.Kind] += amount
	w.setPortalMass(p, p.Mass+amount)
	w.setResourceMass(r, rm-amount)
	return amount
}

// NodeAbsorbResource only takes back resources of the node's own kind.
func (w *World) NodeAbsorbResource(n *ResourceNode, r *Resource, elapsed float64) float64 {
	if r.Kind != n.Kind {
		return 0
	}
	rm := r.Mass()
	amount := w.transferCap(rm, elapsed)
	if amount == 0 {
		return 0
	}
	w.setNodeMass(n, n.Mass+amount)
	w.setResourceMass(r, rm-amount)
	return amount
}

func (w *World) NodeAbsorbBubble(n *ResourceNode, b *Bubble, elapsed float64) float64 {
	bm := b.Mass()
	amount := w.transferCap(bm, elapsed)
	if amount == 0 {
		return 0
	}
	moveComposition(b.Resources, nil, amount/bm)
	w.setNodeMass(n, n.Mass+amount)
	w.setBubbleMass(b, bm-amount)
	return amount
}

// ApplyPortalGrowth moves the portal body mass toward its target mass,
// at most MassPerSecond*elapsed in either direction.
func (w *World) ApplyPortalGrowth(p *Portal, elapsed float64) {
	body := p.BodyMass()
	target := w.staticMass(p.Mass)
	delta := target - body
	if delta == 0 {
		return
	}
	limit := w.tune.MassPerSecond * elapsed
	if delta > 0 {
		delta = math.Min(delta, limit)
	} else {
		delta = math.Max(delta, -limit)
	}
	w.setPortalBodyMass(p, body+delta)
}

// ApplyPortalGravity pulls b toward p with G*m1*m2/r^2. A zero constant
// disables it.
func (w *World) ApplyPortalGravity(p *Portal, b *Bubble) {
	g := w.tune.GravitationalConstant
	if g == 0 {
		return
	}
	delta := p.Position().Sub(b.Position())
	r := delta.Len()
	if r == 0 {
		return
	}
	f := g * p.Mass * b.Mass() / (r * r)
	b.body.ApplyForce(delta.Normalize().Scale(f))
}
