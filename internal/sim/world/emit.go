package world

import (
	"fmt"
	"math"
)

// emission is the resolved donor of an emit: where it is, how big, and how to
// take mass away from it.
type emission struct {
	pos    Vec2
	vel    Vec2
	radius float64
	mass   float64
	owner  string

	// resources is the donor composition, nil for nodes.
	resources map[ResourceKind]float64
	// debit removes amount from the donor once the new entity exists.
	debit func(amount float64)
}

func (w *World) donor(id string) (*emission, error) {
	if p, ok := w.portals.get(id); ok {
		e := &emission{pos: p.Position(), vel: p.Velocity(), radius: p.Radius(), mass: p.Mass, owner: p.Owner, resources: p.Resources}
		e.debit = func(a float64) { w.setPortalMass(p, p.Mass-a) }
		return e, nil
	}
	if b, ok := w.bubbles.get(id); ok {
		e := &emission{pos: b.Position(), vel: b.Velocity(), radius: b.Radius(), mass: b.Mass(), owner: b.Owner, resources: b.Resources}
		e.debit = func(a float64) { w.setBubbleMass(b, b.Mass()-a) }
		return e, nil
	}
	if n, ok := w.nodes.get(id); ok {
		e := &emission{pos: n.Position(), radius: n.body.Radius(), mass: n.Mass, owner: n.Owner}
		e.debit = func(a float64) { w.setNodeMass(n, n.Mass-a) }
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, id)
}

func emitDirection(dir Vec2) Vec2 {
	if dir.IsZero() || math.IsNaN(dir.X) || math.IsNaN(dir.Y) {
		return Vec2{X: 1, Y: 1}.Normalize()
	}
	return dir.Normalize()
}

// emitPlacement returns the spawn point on the donor's surface along dir and
// the momentum-conserving velocity for a new body of mass m.
func emitPlacement(d *emission, dir Vec2, m, donorAfter float64) (Vec2, Vec2) {
	pos := d.pos.Add(dir.Scale(d.radius + MassToRadius(m)))
	vel := d.vel.Add(dir.Scale(donorAfter / m))
	return pos, vel
}

// EmitBubble splits mass off a portal or bubble into a new bubble owned by
// the donor's owner.
func (w *World) EmitBubble(donorID string, mass float64, dir Vec2) (*Bubble, error) {
	d, err := w.donor(donorID)
	if err != nil {
		return nil, err
	}
	if _, isNode := w.nodes.get(donorID); isNode {
		return nil, fmt.Errorf("%w: nodes emit resources only", ErrInvalidEmission)
	}
	if !(mass > 0) || mass > d.mass {
		return nil, fmt.Errorf("%w: mass %v of %v", ErrInvalidEmission, mass, d.mass)
	}
	dir = emitDirection(dir)
	after := d.mass - mass
	pos, vel := emitPlacement(d, dir, mass, after)

	f := mass / d.mass
	b, err := w.CreateBubble(d.owner, pos, vel, mass)
	if err != nil {
		return nil, err
	}
	moveComposition(d.resources, b.Resources, f)
	d.debit(mass)
	return b, nil
}

// EmitResource ejects mass of one kind. Portals and bubbles need that much of
// the kind in their composition; nodes emit only their own kind.
func (w *World) EmitResource(donorID string, kind ResourceKind, mass float64, dir Vec2) (*Resource, error) {
	d, err := w.donor(donorID)
	if err != nil {
		return nil, err
	}
	if !(mass > 0) || mass > d.mass {
		return nil, fmt.Errorf("%w: mass %v of %v", ErrInvalidEmission, mass, d.mass)
	}
	if n, isNode := w.nodes.get(donorID); isNode {
		if n.Kind != kind {
			return nil, fmt.Errorf("%w: node emits %s", ErrInvalidEmission, n.Kind)
		}
	} else if d.resources[kind] < mass {
		return nil, fmt.Errorf("%w: %v %s held", ErrInvalidEmission, d.resources[kind], kind)
	}
	dir = emitDirection(dir)
	after := d.mass - mass
	pos, vel := emitPlacement(d, dir, mass, after)

	r, err := w.CreateResource(d.owner, kind, pos, vel, mass)
	if err != nil {
		return nil, err
	}
	if d.resources != nil {
		if rest := d.resources[kind] - mass; rest > 0 {
			d.resources[kind] = rest
		} else {
			delete(d.resources, kind)
		}
	}
	d.debit(mass)
	return r, nil
}
