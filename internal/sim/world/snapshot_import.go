package world

import (
	"fmt"
	"sort"

	"bubbles.ai/internal/persistence/snapshot"
	"bubbles.ai/internal/sim/physics"
	"bubbles.ai/internal/sim/tuning"
)

// ImportState builds a new world from s with a fresh physics engine. Bodies
// are recreated in their original creation order so contacts are delivered
// in the same order as in the world that produced s. No events are
// published. The boundary hook of the new world will run at s.Timestamp.
func ImportState(tune tuning.Tuning, s *snapshot.Snapshot) (*World, error) {
	if s == nil {
		return nil, fmt.Errorf("import: nil snapshot")
	}
	if s.Version != snapshot.Version {
		return nil, fmt.Errorf("unsupported snapshot version: %d", s.Version)
	}
	w, err := New(tune, s.Timestamp)
	if err != nil {
		return nil, err
	}

	for _, u := range s.Users {
		w.users.add(u.Address, &User{Address: u.Address, Balance: u.Balance})
	}

	type pending struct {
		seq  uint64
		id   string
		make func() error
	}
	var all []pending

	for _, rec := range s.Bubbles {
		rec := rec
		all = append(all, pending{rec.Seq, rec.ID, func() error {
			if !(rec.Mass > 0) {
				return fmt.Errorf("bubble %s: mass %v", rec.ID, rec.Mass)
			}
			body, err := w.newBody(physics.Dynamic, vp(rec.Position), EntityRef{ID: rec.ID, Kind: KindBubble}, rec.Mass)
			if err != nil {
				return err
			}
			body.SetLinearVelocity(vp(rec.Velocity))
			b := &Bubble{ID: rec.ID, Owner: rec.Owner, seq: rec.Seq, body: body, LastPunctureEmit: rec.LastPunctureEmit}
			if b.Resources, err = importKinds(rec.Resources); err != nil {
				return err
			}
			for _, pc := range rec.Punctures {
				kind, err := ParseResourceKind(pc.Resource)
				if err != nil {
					return err
				}
				b.Punctures = append(b.Punctures, Puncture{Point: vp(pc.Point), Kind: kind, Remaining: pc.Remaining})
			}
			w.bubbles.add(b.ID, b)
			return nil
		}})
	}
	for _, rec := range s.Portals {
		rec := rec
		all = append(all, pending{rec.Seq, rec.ID, func() error {
			body, err := w.newBody(physics.Static, vp(rec.Position), EntityRef{ID: rec.ID, Kind: KindPortal}, w.staticMass(rec.BodyMass))
			if err != nil {
				return err
			}
			p := &Portal{ID: rec.ID, Owner: rec.Owner, seq: rec.Seq, body: body, Mass: rec.Mass}
			if p.Resources, err = importKinds(rec.Resources); err != nil {
				return err
			}
			w.portals.add(p.ID, p)
			return nil
		}})
	}
	for _, rec := range s.Obstacles {
		rec := rec
		all = append(all, pending{rec.Seq, rec.ID, func() error {
			verts := make([]Vec2, 0, len(rec.Vertices))
			for _, v := range rec.Vertices {
				verts = append(verts, vp(v))
			}
			body, err := w.newBody(physics.Static, vp(rec.Position), EntityRef{ID: rec.ID, Kind: KindObstacle}, RadiusToMass(boundingRadius(verts)))
			if err != nil {
				return err
			}
			body.SetLinearVelocity(vp(rec.Velocity))
			w.obstacles.add(rec.ID, &Obstacle{ID: rec.ID, seq: rec.Seq, body: body, Vertices: verts})
			return nil
		}})
	}
	for _, rec := range s.Nodes {
		rec := rec
		all = append(all, pending{rec.Seq, rec.ID, func() error {
			kind, err := ParseResourceKind(rec.Type)
			if err != nil {
				return err
			}
			body, err := w.newBody(physics.Static, vp(rec.Position), EntityRef{ID: rec.ID, Kind: KindNode}, w.staticMass(rec.Mass))
			if err != nil {
				return err
			}
			w.nodes.add(rec.ID, &ResourceNode{
				ID: rec.ID, Owner: rec.Owner, Kind: kind, seq: rec.Seq, body: body,
				Mass: rec.Mass, EmissionDirection: vp(rec.EmissionDirection), LastEmission: rec.LastEmission,
			})
			return nil
		}})
	}
	for _, rec := range s.Resources {
		rec := rec
		all = append(all, pending{rec.Seq, rec.ID, func() error {
			kind, err := ParseResourceKind(rec.Type)
			if err != nil {
				return err
			}
			if !(rec.Mass > 0) {
				return fmt.Errorf("resource %s: mass %v", rec.ID, rec.Mass)
			}
			body, err := w.newBody(physics.Dynamic, vp(rec.Position), EntityRef{ID: rec.ID, Kind: KindResource}, rec.Mass)
			if err != nil {
				return err
			}
			body.SetLinearVelocity(vp(rec.Velocity))
			w.resources.add(rec.ID, &Resource{ID: rec.ID, Owner: rec.Owner, Kind: kind, seq: rec.Seq, body: body})
			return nil
		}})
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	for _, p := range all {
		if err := p.make(); err != nil {
			return nil, fmt.Errorf("import %s: %w", p.id, err)
		}
	}

	for _, in := range s.PendingInputs {
		w.inputs.Push(in)
	}

	c := s.Counters
	w.nextSeq = c.NextSeq
	w.nextBubble = c.NextBubble
	w.nextResource = c.NextResource
	w.nextNode = c.NextNode
	w.nextObstacle = c.NextObstacle
	return w, nil
}

func importKinds(m map[string]float64) (map[ResourceKind]float64, error) {
	out := make(map[ResourceKind]float64, len(m))
	for k, v := range m {
		kind, err := ParseResourceKind(k)
		if err != nil {
			return nil, err
		}
		out[kind] = v
	}
	return out, nil
}
