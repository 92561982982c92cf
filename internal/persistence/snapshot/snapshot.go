package snapshot

import (
	"encoding/json"

	"bubbles.ai/internal/protocol"
)

const Version = 1

// Snapshot is the full exchange form of a world at one timestamp. Entity
// slices keep the live collections' insertion order; consumers key by id.
type Snapshot struct {
	Version       int              `json:"version" msgpack:"version"`
	Timestamp     int64            `json:"timestamp" msgpack:"timestamp"`
	PendingInputs []protocol.Input `json:"pendingInputs" msgpack:"pendingInputs"`

	Users     []UserV1     `json:"users" msgpack:"users"`
	Bubbles   []BubbleV1   `json:"bubbles" msgpack:"bubbles"`
	Portals   []PortalV1   `json:"portals" msgpack:"portals"`
	Obstacles []ObstacleV1 `json:"obstacles" msgpack:"obstacles"`
	Nodes     []NodeV1     `json:"nodes" msgpack:"nodes"`
	Resources []ResourceV1 `json:"resources" msgpack:"resources"`

	Counters CountersV1 `json:"counters" msgpack:"counters"`
}

type UserV1 struct {
	Address string  `json:"address" msgpack:"address"`
	Balance float64 `json:"balance" msgpack:"balance"`
}

// Seq is the body creation order; import recreates bodies in that order so
// contact delivery matches the original world.
type BubbleV1 struct {
	Seq              uint64             `json:"seq" msgpack:"seq"`
	ID               string             `json:"id" msgpack:"id"`
	Owner            string             `json:"owner" msgpack:"owner"`
	Position         protocol.Vec2      `json:"position" msgpack:"position"`
	Velocity         protocol.Vec2      `json:"velocity" msgpack:"velocity"`
	Mass             float64            `json:"mass" msgpack:"mass"`
	Resources        map[string]float64 `json:"resources,omitempty" msgpack:"resources,omitempty"`
	LastPunctureEmit int64              `json:"lastPunctureEmit" msgpack:"lastPunctureEmit"`
	Punctures        []PunctureV1       `json:"punctures,omitempty" msgpack:"punctures,omitempty"`
}

type PunctureV1 struct {
	Point     protocol.Vec2 `json:"point" msgpack:"point"`
	Resource  string        `json:"resource" msgpack:"resource"`
	Remaining float64       `json:"remaining" msgpack:"remaining"`
}

// PortalV1.Mass is the target mass; BodyMass is what the physics body
// currently carries while growth catches up.
type PortalV1 struct {
	Seq       uint64             `json:"seq" msgpack:"seq"`
	ID        string             `json:"id" msgpack:"id"`
	Owner     string             `json:"owner" msgpack:"owner"`
	Position  protocol.Vec2      `json:"position" msgpack:"position"`
	Mass      float64            `json:"mass" msgpack:"mass"`
	BodyMass  float64            `json:"bodyMass" msgpack:"bodyMass"`
	Resources map[string]float64 `json:"resources,omitempty" msgpack:"resources,omitempty"`
}

type ObstacleV1 struct {
	Seq      uint64          `json:"seq" msgpack:"seq"`
	ID       string          `json:"id" msgpack:"id"`
	Position protocol.Vec2   `json:"position" msgpack:"position"`
	Velocity protocol.Vec2   `json:"velocity" msgpack:"velocity"`
	Vertices []protocol.Vec2 `json:"vertices" msgpack:"vertices"`
}

type NodeV1 struct {
	Seq               uint64        `json:"seq" msgpack:"seq"`
	Type              string        `json:"type" msgpack:"type"`
	ID                string        `json:"id" msgpack:"id"`
	Owner             string        `json:"owner" msgpack:"owner"`
	Position          protocol.Vec2 `json:"position" msgpack:"position"`
	Mass              float64       `json:"mass" msgpack:"mass"`
	EmissionDirection protocol.Vec2 `json:"emissionDirection" msgpack:"emissionDirection"`
	LastEmission      int64         `json:"lastEmission" msgpack:"lastEmission"`
}

type ResourceV1 struct {
	Seq      uint64        `json:"seq" msgpack:"seq"`
	Type     string        `json:"type" msgpack:"type"`
	ID       string        `json:"id" msgpack:"id"`
	Owner    string        `json:"owner" msgpack:"owner"`
	Position protocol.Vec2 `json:"position" msgpack:"position"`
	Velocity protocol.Vec2 `json:"velocity" msgpack:"velocity"`
	Mass     float64       `json:"mass" msgpack:"mass"`
}

type CountersV1 struct {
	NextSeq      uint64 `json:"next_seq" msgpack:"next_seq"`
	NextBubble   uint64 `json:"next_bubble" msgpack:"next_bubble"`
	NextResource uint64 `json:"next_resource" msgpack:"next_resource"`
	NextNode     uint64 `json:"next_node" msgpack:"next_node"`
	NextObstacle uint64 `json:"next_obstacle" msgpack:"next_obstacle"`
}

// New returns an empty snapshot whose slices encode as [] rather than null.
func New(ts int64) *Snapshot {
	return &Snapshot{
		Version:       Version,
		Timestamp:     ts,
		PendingInputs: []protocol.Input{},
		Users:         []UserV1{},
		Bubbles:       []BubbleV1{},
		Portals:       []PortalV1{},
		Obstacles:     []ObstacleV1{},
		Nodes:         []NodeV1{},
		Resources:     []ResourceV1{},
	}
}

// Payload is the canonical JSON form handed to the presentation layer.
func Payload(s *Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// TotalMass sums every mass-bearing entity. Portal target mass is counted, not
// the lagging body mass.
func (s *Snapshot) TotalMass() float64 {
	var m float64
	for _, b := range s.Bubbles {
		m += b.Mass
	}
	for _, p := range s.Portals {
		m += p.Mass
	}
	for _, n := range s.Nodes {
		m += n.Mass
	}
	for _, r := range s.Resources {
		m += r.Mass
	}
	return m
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.PendingInputs = append([]protocol.Input{}, s.PendingInputs...)
	out.Users = append([]UserV1{}, s.Users...)
	out.Bubbles = make([]BubbleV1, len(s.Bubbles))
	for i, b := range s.Bubbles {
		b.Resources = cloneMap(b.Resources)
		b.Punctures = append([]PunctureV1(nil), b.Punctures...)
		out.Bubbles[i] = b
	}
	out.Portals = make([]PortalV1, len(s.Portals))
	for i, p := range s.Portals {
		p.Resources = cloneMap(p.Resources)
		out.Portals[i] = p
	}
	out.Obstacles = make([]ObstacleV1, len(s.Obstacles))
	for i, o := range s.Obstacles {
		o.Vertices = append([]protocol.Vec2(nil), o.Vertices...)
		out.Obstacles[i] = o
	}
	out.Nodes = append([]NodeV1{}, s.Nodes...)
	out.Resources = append([]ResourceV1{}, s.Resources...)
	return &out
}

func cloneMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
