package world

import (
	"bubbles.ai/internal/persistence/snapshot"
	"bubbles.ai/internal/protocol"
)

// CreateState captures the world into a fresh snapshot.
func (w *World) CreateState() *snapshot.Snapshot {
	s := snapshot.New(w.clock)
	w.UpdateState(s)
	return s
}

// UpdateState overwrites s with the current world. Entity slices follow
// registry insertion order; nothing in s aliases live world memory.
func (w *World) UpdateState(s *snapshot.Snapshot) {
	// Must be called from the goroutine that owns the world.
	s.Version = snapshot.Version
	s.Timestamp = w.clock
	s.PendingInputs = append(s.PendingInputs[:0], w.inputs.Pending()...)

	s.Users = s.Users[:0]
	for _, u := range w.users.values() {
		s.Users = append(s.Users, snapshot.UserV1{Address: u.Address, Balance: u.Balance})
	}

	s.Bubbles = s.Bubbles[:0]
	for _, b := range w.bubbles.values() {
		var punctures []snapshot.PunctureV1
		for _, pc := range b.Punctures {
			punctures = append(punctures, snapshot.PunctureV1{Point: pv(pc.Point), Resource: string(pc.Kind), Remaining: pc.Remaining})
		}
		s.Bubbles = append(s.Bubbles, snapshot.BubbleV1{
			Seq:              b.seq,
			ID:               b.ID,
			Owner:            b.Owner,
			Position:         pv(b.Position()),
			Velocity:         pv(b.Velocity()),
			Mass:             b.Mass(),
			Resources:        exportKinds(b.Resources),
			LastPunctureEmit: b.LastPunctureEmit,
			Punctures:        punctures,
		})
	}

	s.Portals = s.Portals[:0]
	for _, p := range w.portals.values() {
		s.Portals = append(s.Portals, snapshot.PortalV1{
			Seq:       p.seq,
			ID:        p.ID,
			Owner:     p.Owner,
			Position:  pv(p.Position()),
			Mass:      p.Mass,
			BodyMass:  p.BodyMass(),
			Resources: exportKinds(p.Resources),
		})
	}

	s.Obstacles = s.Obstacles[:0]
	for _, o := range w.obstacles.values() {
		verts := make([]protocol.Vec2, 0, len(o.Vertices))
		for _, v := range o.Vertices {
			verts = append(verts, pv(v))
		}
		s.Obstacles = append(s.Obstacles, snapshot.ObstacleV1{
			Seq:      o.seq,
			ID:       o.ID,
			Position: pv(o.Position()),
			Velocity: pv(o.body.LinearVelocity()),
			Vertices: verts,
		})
	}

	s.Nodes = s.Nodes[:0]
	for _, n := range w.nodes.values() {
		s.Nodes = append(s.Nodes, snapshot.NodeV1{
			Seq:               n.seq,
			Type:              string(n.Kind),
			ID:                n.ID,
			Owner:             n.Owner,
			Position:          pv(n.Position()),
			Mass:              n.Mass,
			EmissionDirection: pv(n.EmissionDirection),
			LastEmission:      n.LastEmission,
		})
	}

	s.Resources = s.Resources[:0]
	for _, r := range w.resources.values() {
		s.Resources = append(s.Resources, snapshot.ResourceV1{
			Seq:      r.seq,
			Type:     string(r.Kind),
			ID:       r.ID,
			Owner:    r.Owner,
			Position: pv(r.Position()),
			Velocity: pv(r.Velocity()),
			Mass:     r.Mass(),
		})
	}

	s.Counters = snapshot.CountersV1{
		NextSeq:      w.nextSeq,
		NextBubble:   w.nextBubble,
		NextResource: w.nextResource,
		NextNode:     w.nextNode,
		NextObstacle: w.nextObstacle,
	}
}

func exportKinds(m map[ResourceKind]float64) map[string]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}
