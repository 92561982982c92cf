package world

import (
	"fmt"
	"math"
	"sort"

	"bubbles.ai/internal/sim/physics"
)

type Vec2 = physics.Vec2

type EntityKind uint8

const (
	KindUser EntityKind = iota + 1
	KindBubble
	KindPortal
	KindObstacle
	KindNode
	KindResource
)

func (k EntityKind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindBubble:
		return "bubble"
	case KindPortal:
		return "portal"
	case KindObstacle:
		return "obstacle"
	case KindNode:
		return "node"
	case KindResource:
		return "resource"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// EntityRef is the physics body's user data: one tag is enough to classify a
// contact.
type EntityRef struct {
	ID   string
	Kind EntityKind
}

type ResourceKind string

const (
	ResourceEnergy ResourceKind = "energy"
	ResourcePlasma ResourceKind = "plasma"
	ResourceIce    ResourceKind = "ice"
)

func ParseResourceKind(s string) (ResourceKind, error) {
	switch k := ResourceKind(s); k {
	case ResourceEnergy, ResourcePlasma, ResourceIce:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown resource %q", ErrInvalidInput, s)
}

// MassToRadius and RadiusToMass assume density 1.
func MassToRadius(m float64) float64 { return math.Sqrt(m / math.Pi) }
func RadiusToMass(r float64) float64 { return math.Pi * r * r }

type User struct {
	Address string
	Balance float64
}

type Puncture struct {
	// Point is relative to the bubble centre.
	Point     Vec2
	Kind      ResourceKind
	Remaining float64
}

type Bubble struct {
	ID    string
	Owner string

	seq  uint64
	body *physics.Body

	Resources        map[ResourceKind]float64
	Punctures        []Puncture
	LastPunctureEmit int64
}

func (b *Bubble) Mass() float64 { return b.body.Mass() }
func (b *Bubble) Radius() float64 { return b.body.Radius() }
func (b *Bubble) Position() Vec2 { return b.body.Position() }
func (b *Bubble) Velocity() Vec2 { return b.body.LinearVelocity() }
func (b *Bubble) Body() *physics.Body { return b.body }

// Portal.Mass is the target mass. The physics body converges toward it at the
// transfer rate.
type Portal struct {
	ID    string
	Owner string

	seq  uint64
	body *physics.Body

	Mass      float64
	Resources map[ResourceKind]float64
}

func (p *Portal) BodyMass() float64 { return p.body.Mass() }
func (p *Portal) Radius() float64 { return p.body.Radius() }
func (p *Portal) Position() Vec2 { return p.body.Position() }
func (p *Portal) Velocity() Vec2 { return p.body.LinearVelocity() }

type Obstacle struct {
	ID string

	seq  uint64
	body *physics.Body

	// Vertices are relative to the body position.
	Vertices []Vec2
}

func (o *Obstacle) Position() Vec2 { return o.body.Position() }
func (o *Obstacle) Radius() float64 { return o.body.Radius() }

type ResourceNode struct {
	ID    string
	Owner string
	Kind  ResourceKind

	seq  uint64
	body *physics.Body

	Mass              float64
	EmissionDirection Vec2
	LastEmission      int64
}

func (n *ResourceNode) Position() Vec2 { return n.body.Position() }

type Resource struct {
	ID    string
	Owner string
	Kind  ResourceKind

	seq  uint64
	body *physics.Body
}

func (r *Resource) Mass() float64 { return r.body.Mass() }
func (r *Resource) Position() Vec2 { return r.body.Position() }
func (r *Resource) Velocity() Vec2 { return r.body.LinearVelocity() }

// boundingRadius is the enclosing circle of a polygon centred on the origin.
func boundingRadius(vs []Vec2) float64 {
	var r float64
	for _, v := range vs {
		if l := v.Len(); l > r {
			r = l
		}
	}
	return r
}

func sortedKinds(m map[ResourceKind]float64) []ResourceKind {
	ks := make([]ResourceKind, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Slice(ks, func(i, j int) bool { return ks[i] < ks[j] })
	return ks
}
