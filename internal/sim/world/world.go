package world

import (
	"fmt"
	"math"

	"bubbles.ai/internal/sim/physics"
	"bubbles.ai/internal/sim/tuning"
)

// World is a single-threaded deterministic simulation: entities, the physics
// engine backing them, the pending input queue and the command queue.
// Two Worlds never share state; all access must come from one goroutine.
type World struct {
	tune   tuning.Tuning
	engine *physics.Engine

	// clock is the integer-millisecond timestamp of the current step boundary.
	clock int64
	// boundaryDone is set once the boundary hook has run for clock.
	boundaryDone bool

	users     *registry[*User]
	bubbles   *registry[*Bubble]
	portals   *registry[*Portal]
	obstacles *registry[*Obstacle]
	nodes     *registry[*ResourceNode]
	resources *registry[*Resource]

	commands []Command
	inputs   InputQueue
	events   *EventBus

	nextSeq      uint64
	nextBubble   uint64
	nextResource uint64
	nextNode     uint64
	nextObstacle uint64

	// Optional hook called once per step boundary, before due inputs apply.
	onBoundary func(w *World)
}

// New builds an empty world whose clock starts at origin.
func New(tune tuning.Tuning, origin int64) (*World, error) {
	if err := tune.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	w := &World{
		tune:  tune,
		clock: origin,
		engine: physics.New(physics.Config{
			Width:  tune.WorldWidth,
			Height: tune.WorldHeight,
			Cell:   tune.BroadphaseCell,
			Walls:  true,
		}),
		users:     newRegistry[*User](),
		bubbles:   newRegistry[*Bubble](),
		portals:   newRegistry[*Portal](),
		obstacles: newRegistry[*Obstacle](),
		nodes:     newRegistry[*ResourceNode](),
		resources: newRegistry[*Resource](),
		events:    NewEventBus(),
	}
	w.engine.SetContactListener(w.handleContact)
	return w, nil
}

func (w *World) Tuning() tuning.Tuning { return w.tune }
func (w *World) Clock() int64 { return w.clock }
func (w *World) Events() *EventBus { return w.events }

// SetBoundaryHook installs fn to run once at every step boundary before the
// inputs due at that boundary are applied.
func (w *World) SetBoundaryHook(fn func(w *World)) { w.onBoundary = fn }

func (w *World) User(addr string) (*User, bool) { return w.users.get(addr) }
func (w *World) Bubble(id string) (*Bubble, bool) { return w.bubbles.get(id) }
func (w *World) Portal(id string) (*Portal, bool) { return w.portals.get(id) }
func (w *World) Obstacle(id string) (*Obstacle, bool) { return w.obstacles.get(id) }
func (w *World) Node(id string) (*ResourceNode, bool) { return w.nodes.get(id) }
func (w *World) Resource(id string) (*Resource, bool) { return w.resources.get(id) }
func (w *World) Users() []*User { return w.users.values() }
func (w *World) Bubbles() []*Bubble { return w.bubbles.values() }
func (w *World) Portals() []*Portal { return w.portals.values() }
func (w *World) Obstacles() []*Obstacle { return w.obstacles.values() }
func (w *World) Nodes() []*ResourceNode { return w.nodes.values() }
func (w *World) Resources() []*Resource { return w.resources.values() }

// TotalMass sums target portal mass, node mass and body mass of bubbles and
// resources.
func (w *World) TotalMass() float64 {
	var m float64
	for _, b := range w.bubbles.values() {
		m += b.Mass()
	}
	for _, p := range w.portals.values() {
		m += p.Mass
	}
	for _, n := range w.nodes.values() {
		m += n.Mass
	}
	for _, r := range w.resources.values() {
		m += r.Mass()
	}
	return m
}

func (w *World) seq() uint64 {
	w.nextSeq++
	return w.nextSeq
}

func (w *World) newBody(typ physics.BodyType, pos Vec2, ref EntityRef, mass float64) (*physics.Body, error) {
	body, err := w.engine.CreateBody(typ, pos, ref)
	if err != nil {
		return nil, err
	}
	if err := w.setFixture(body, mass); err != nil {
		_ = w.engine.DestroyBody(body)
		return nil, err
	}
	return body, nil
}

// setFixture replaces the body's circle so its radius matches mass, then pins
// the mass data. The old fixture is destroyed first.
func (w *World) setFixture(body *physics.Body, mass float64) error {
	if body.Fixture() != nil {
		if err := w.engine.DestroyFixture(body); err != nil {
			return err
		}
	}
	if err := w.engine.CreateCircleFixture(body, MassToRadius(mass), 1); err != nil {
		return err
	}
	return w.engine.SetMassData(body, mass)
}

func (w *World) staticMass(m float64) float64 {
	return math.Max(m, w.tune.MinBodyMass)
}

func (w *World) userOrCreate(addr string) *User {
	if u, ok := w.users.get(addr); ok {
		return u
	}
	u := &User{Address: addr}
	w.users.add(addr, u)
	return u
}

// CreatePortal places owner's portal; its id is the owner address.
func (w *World) CreatePortal(owner string, pos Vec2, mass float64) (*Portal, error) {
	if _, ok := w.portals.get(owner); ok {
		return nil, fmt.Errorf("%w: %s", ErrPortalExists, owner)
	}
	if mass < 0 {
		return nil, fmt.Errorf("%w: negative portal mass", ErrInvalidInput)
	}
	body, err := w.newBody(physics.Static, pos, EntityRef{ID: owner, Kind: KindPortal}, w.staticMass(mass))
	if err != nil {
		return nil, err
	}
	p := &Portal{ID: owner, Owner: owner, seq: w.seq(), body: body, Mass: mass, Resources: map[ResourceKind]float64{}}
	w.portals.add(p.ID, p)
	w.publish(EventCreatePortal, p.ID, pos)
	return p, nil
}

func (w *World) CreateBubble(owner string, pos, vel Vec2, mass float64) (*Bubble, error) {
	if !(mass > 0) {
		return nil, fmt.Errorf("%w: bubble mass must be > 0", ErrInvalidInput)
	}
	w.nextBubble++
	id := fmt.Sprintf("B%d", w.nextBubble)
	body, err := w.newBody(physics.Dynamic, pos, EntityRef{ID: id, Kind: KindBubble}, mass)
	if err != nil {
		w.nextBubble--
		return nil, err
	}
	body.SetLinearVelocity(vel)
	b := &Bubble{ID: id, Owner: owner, seq: w.seq(), body: body, Resources: map[ResourceKind]float64{}, LastPunctureEmit: w.clock}
	w.bubbles.add(id, b)
	w.publish(EventCreateBubble, id, pos)
	return b, nil
}

func (w *World) CreateResource(owner string, kind ResourceKind, pos, vel Vec2, mass float64) (*Resource, error) {
	if !(mass > 0) {
		return nil, fmt.Errorf("%w: resource mass must be > 0", ErrInvalidInput)
	}
	w.nextResource++
	id := fmt.Sprintf("R%d", w.nextResource)
	body, err := w.newBody(physics.Dynamic, pos, EntityRef{ID: id, Kind: KindResource}, mass)
	if err != nil {
		w.nextResource--
		return nil, err
	}
	body.SetLinearVelocity(vel)
	r := &Resource{ID: id, Owner: owner, Kind: kind, seq: w.seq(), body: body}
	w.resources.add(id, r)
	w.publish(EventCreateResource, id, pos)
	return r, nil
}

func (w *World) CreateNode(owner string, kind ResourceKind, pos Vec2, mass float64, dir Vec2) (*ResourceNode, error) {
	if mass < 0 {
		return nil, fmt.Errorf("%w: negative node mass", ErrInvalidInput)
	}
	w.nextNode++
	id := fmt.Sprintf("N%d", w.nextNode)
	body, err := w.newBody(physics.Static, pos, EntityRef{ID: id, Kind: KindNode}, w.staticMass(mass))
	if err != nil {
		w.nextNode--
		return nil, err
	}
	n := &ResourceNode{
		ID: id, Owner: owner, Kind: kind, seq: w.seq(), body: body,
		Mass: mass, EmissionDirection: emissionDir(dir), LastEmission: w.clock,
	}
	w.nodes.add(id, n)
	return n, nil
}

// CreateObstacle places a static polygon; physics sees its enclosing circle.
func (w *World) CreateObstacle(pos Vec2, vertices []Vec2) (*Obstacle, error) {
	r := boundingRadius(vertices)
	if len(vertices) < 3 || r <= 0 {
		return nil, fmt.Errorf("%w: obstacle needs 3+ vertices", ErrInvalidInput)
	}
	w.nextObstacle++
	id := fmt.Sprintf("O%d", w.nextObstacle)
	body, err := w.newBody(physics.Static, pos, EntityRef{ID: id, Kind: KindObstacle}, RadiusToMass(r))
	if err != nil {
		w.nextObstacle--
		return nil, err
	}
	o := &Obstacle{ID: id, seq: w.seq(), body: body, Vertices: append([]Vec2(nil), vertices...)}
	w.obstacles.add(id, o)
	return o, nil
}

func (w *World) destroyBubble(b *Bubble) {
	pos := b.Position()
	_ = w.engine.DestroyBody(b.body)
	w.bubbles.remove(b.ID)
	w.publish(EventDestroyBubble, b.ID, pos)
}

func (w *World) destroyResource(r *Resource) {
	pos := r.Position()
	_ = w.engine.DestroyBody(r.body)
	w.resources.remove(r.ID)
	w.publish(EventDestroyResource, r.ID, pos)
}

// setBubbleMass rebuilds the fixture, or destroys the bubble at zero mass.
func (w *World) setBubbleMass(b *Bubble, m float64) {
	if m <= 0 {
		w.destroyBubble(b)
		return
	}
	_ = w.setFixture(b.body, m)
}

func (w *World) setResourceMass(r *Resource, m float64) {
	if m <= 0 {
		w.destroyResource(r)
		return
	}
	_ = w.setFixture(r.body, m)
}

// setPortalMass moves both target and body mass, like a direct transfer.
func (w *World) setPortalMass(p *Portal, m float64) {
	p.Mass = m
	_ = w.setFixture(p.body, w.staticMass(m))
}

func (w *World) setPortalBodyMass(p *Portal, m float64) {
	_ = w.setFixture(p.body, w.staticMass(m))
}

func (w *World) setNodeMass(n *ResourceNode, m float64) {
	n.Mass = m
	_ = w.setFixture(n.body, w.staticMass(m))
}

func emissionDir(d Vec2) Vec2 {
	if d.IsZero() {
		return Vec2{X: 1, Y: 1}.Normalize()
	}
	return d.Normalize()
}
