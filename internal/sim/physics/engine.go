package physics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/solarlune/resolv"
)

// ErrLocked is returned when bodies or fixtures are mutated from inside a
// contact callback. Callers must defer structural changes until Step returns.
var ErrLocked = errors.New("physics: engine locked during step")

type BodyType uint8

const (
	Static BodyType = iota
	Dynamic
)

const (
	// Bodies closer than this are still considered touching, so resting
	// contacts keep reporting every step.
	contactSlop = 0.01
	// Fraction of penetration (beyond slop) removed per step.
	positionCorrection = 0.8
	// Broad-phase boxes are padded so pairs straddling a cell edge are still
	// checked.
	broadphaseMargin = 1.0
)

type Config struct {
	Width  float64
	Height float64
	// Broad-phase cell size in world units.
	Cell int
	// Walls keeps dynamic bodies inside [0,Width]x[0,Height] with elastic bounces.
	Walls bool
}

type Fixture struct {
	Radius  float64
	Density float64
}

// Body is a rigid circle. Position and velocity are owned by the engine.
type Body struct {
	id  uint64
	typ BodyType

	pos   Vec2
	vel   Vec2
	force Vec2

	mass    float64
	invMass float64

	fixture *Fixture
	obj     *resolv.Object

	destroyed bool

	// UserData is opaque to the engine and handed back in contacts.
	UserData any
}

func (b *Body) ID() uint64 { return b.id }
func (b *Body) Type() BodyType { return b.typ }
func (b *Body) Position() Vec2 { return b.pos }
func (b *Body) LinearVelocity() Vec2 { return b.vel }
func (b *Body) SetLinearVelocity(v Vec2) { b.vel = v }
func (b *Body) Mass() float64 { return b.mass }
func (b *Body) Fixture() *Fixture { return b.fixture }

// Radius of the body's fixture, 0 without one.
func (b *Body) Radius() float64 {
	if b.fixture == nil {
		return 0
	}
	return b.fixture.Radius
}

// ApplyForce accumulates a force for the next step (dynamic bodies only).
func (b *Body) ApplyForce(f Vec2) {
	if b.typ != Dynamic {
		return
	}
	b.force = b.force.Add(f)
}

// Contact is delivered to the listener once per touching pair per step.
type Contact struct {
	A, B *Body
	// Normal points from A to B.
	Normal Vec2
	Depth  float64

	restitution float64
}

func (c *Contact) SetRestitution(e float64) { c.restitution = e }
func (c *Contact) Restitution() float64 { return c.restitution }

type ContactListener func(c *Contact)

type Engine struct {
	cfg   Config
	space *resolv.Space

	bodies []*Body
	nextID uint64

	listener ContactListener
	locked   bool
}

func New(cfg Config) *Engine {
	if cfg.Cell <= 0 {
		cfg.Cell = 16
	}
	w := int(math.Ceil(cfg.Width))
	h := int(math.Ceil(cfg.Height))
	if w < cfg.Cell {
		w = cfg.Cell
	}
	if h < cfg.Cell {
		h = cfg.Cell
	}
	return &Engine{
		cfg:   cfg,
		space: resolv.NewSpace(w, h, cfg.Cell, cfg.Cell),
	}
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) SetContactListener(fn ContactListener) { e.listener = fn }

// Bodies returns live bodies in creation order.
func (e *Engine) Bodies() []*Body {
	out := make([]*Body, len(e.bodies))
	copy(out, e.bodies)
	return out
}

func (e *Engine) BodyCount() int { return len(e.bodies) }

func (e *Engine) CreateBody(typ BodyType, pos Vec2, userData any) (*Body, error) {
	if e.locked {
		return nil, ErrLocked
	}
	e.nextID++
	b := &Body{id: e.nextID, typ: typ, pos: pos, UserData: userData}
	e.bodies = append(e.bodies, b)
	return b, nil
}

func (e *Engine) DestroyBody(b *Body) error {
	if e.locked {
		return ErrLocked
	}
	if b == nil || b.destroyed {
		return nil
	}
	if b.obj != nil {
		e.space.Remove(b.obj)
		b.obj = nil
	}
	b.destroyed = true
	for i, x := range e.bodies {
		if x == b {
			e.bodies = append(e.bodies[:i], e.bodies[i+1:]...)
			break
		}
	}
	return nil
}

// CreateCircleFixture attaches the body's only fixture and resets its mass
// data to density*area. An existing fixture must be destroyed first.
func (e *Engine) CreateCircleFixture(b *Body, radius, density float64) error {
	if e.locked {
		return ErrLocked
	}
	if b.destroyed {
		return fmt.Errorf("physics: body %d destroyed", b.id)
	}
	if b.fixture != nil {
		return fmt.Errorf("physics: body %d already has a fixture", b.id)
	}
	if radius <= 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
		return fmt.Errorf("physics: invalid radius %v", radius)
	}
	b.fixture = &Fixture{Radius: radius, Density: density}
	ext := radius + broadphaseMargin
	b.obj = resolv.NewObject(b.pos.X-ext, b.pos.Y-ext, 2*ext, 2*ext)
	b.obj.Data = b
	e.space.Add(b.obj)
	return e.SetMassData(b, density*math.Pi*radius*radius)
}

func (e *Engine) DestroyFixture(b *Body) error {
	if e.locked {
		return ErrLocked
	}
	if b.obj != nil {
		e.space.Remove(b.obj)
		b.obj = nil
	}
	b.fixture = nil
	return nil
}

// SetMassData overrides the body's mass. Static bodies keep an infinite
// inverse mass regardless of the stored value.
func (e *Engine) SetMassData(b *Body, mass float64) error {
	if e.locked {
		return ErrLocked
	}
	if mass <= 0 || math.IsNaN(mass) || math.IsInf(mass, 0) {
		return fmt.Errorf("physics: invalid mass %v", mass)
	}
	b.mass = mass
	if b.typ == Dynamic {
		b.invMass = 1 / mass
	} else {
		b.invMass = 0
	}
	return nil
}

func (e *Engine) SetPosition(b *Body, p Vec2) {
	b.pos = p
	e.syncObject(b)
}

func (e *Engine) syncObject(b *Body) {
	if b.obj == nil || b.fixture == nil {
		return
	}
	ext := b.fixture.Radius + broadphaseMargin
	b.obj.X = b.pos.X - ext
	b.obj.Y = b.pos.Y - ext
	b.obj.W = 2 * ext
	b.obj.H = 2 * ext
	b.obj.Update()
}

// Step advances the world by dt seconds: integrate, confine, detect contacts,
// notify the listener, then resolve each contact with its restitution.
func (e *Engine) Step(dt float64) {
	for _, b := range e.bodies {
		if b.typ != Dynamic {
			continue
		}
		b.vel = b.vel.Add(b.force.Scale(b.invMass * dt))
		b.pos = b.pos.Add(b.vel.Scale(dt))
		b.force = Vec2{}
		if e.cfg.Walls {
			e.confine(b)
		}
		e.syncObject(b)
	}

	contacts := e.findContacts()

	e.locked = true
	if e.listener != nil {
		for _, c := range contacts {
			e.listener(c)
		}
	}
	e.locked = false

	for _, c := range contacts {
		resolve(c)
	}
	for _, c := range contacts {
		e.syncObject(c.A)
		e.syncObject(c.B)
	}
}

func (e *Engine) confine(b *Body) {
	r := b.Radius()
	if b.pos.X-r < 0 {
		b.pos.X = r
		b.vel.X = math.Abs(b.vel.X)
	} else if b.pos.X+r > e.cfg.Width {
		b.pos.X = e.cfg.Width - r
		b.vel.X = -math.Abs(b.vel.X)
	}
	if b.pos.Y-r < 0 {
		b.pos.Y = r
		b.vel.Y = math.Abs(b.vel.Y)
	} else if b.pos.Y+r > e.cfg.Height {
		b.pos.Y = e.cfg.Height - r
		b.vel.Y = -math.Abs(b.vel.Y)
	}
}

type pairKey struct{ a, b uint64 }

// findContacts returns touching pairs sorted by (lower id, higher id), which
// makes delivery order a function of body creation order only.
func (e *Engine) findContacts() []*Contact {
	seen := map[pairKey]struct{}{}
	var out []*Contact
	for _, b := range e.bodies {
		if b.obj == nil {
			continue
		}
		coll := b.obj.Check(0, 0)
		if coll == nil {
			continue
		}
		for _, o := range coll.Objects {
			other, ok := o.Data.(*Body)
			if !ok || other == b || other.destroyed {
				continue
			}
			if b.typ == Static && other.typ == Static {
				continue
			}
			a, c := b, other
			if a.id > c.id {
				a, c = c, a
			}
			k := pairKey{a.id, c.id}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			if ct := narrow(a, c); ct != nil {
				out = append(out, ct)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A.id != out[j].A.id {
			return out[i].A.id < out[j].A.id
		}
		return out[i].B.id < out[j].B.id
	})
	return out
}

func narrow(a, b *Body) *Contact {
	d := b.pos.Sub(a.pos)
	dist := d.Len()
	sum := a.Radius() + b.Radius()
	if dist >= sum+contactSlop {
		return nil
	}
	n := Vec2{X: 1}
	if dist > 0 {
		n = d.Scale(1 / dist)
	}
	return &Contact{A: a, B: b, Normal: n, Depth: sum - dist}
}

func resolve(c *Contact) {
	a, b := c.A, c.B
	inv := a.invMass + b.invMass
	if inv == 0 {
		return
	}
	vn := b.vel.Sub(a.vel).Dot(c.Normal)
	if vn < 0 {
		j := -(1 + c.restitution) * vn / inv
		a.vel = a.vel.Sub(c.Normal.Scale(j * a.invMass))
		b.vel = b.vel.Add(c.Normal.Scale(j * b.invMass))
	}
	if pen := c.Depth - contactSlop; pen > 0 {
		corr := c.Normal.Scale(pen * positionCorrection / inv)
		a.pos = a.pos.Sub(corr.Scale(a.invMass))
		b.pos = b.pos.Add(corr.Scale(b.invMass))
	}
}
