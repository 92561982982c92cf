package world

import (
	"fmt"

	"bubbles.ai/internal/protocol"
	"bubbles.ai/internal/sim/tuning"
)

func vec(a [2]float64) Vec2 { return Vec2{X: a[0], Y: a[1]} }

// ApplyGenesis populates a fresh world. Addresses are normalized so genesis
// owners compare equal to input actors.
func (w *World) ApplyGenesis(g tuning.Genesis) error {
	norm := func(a string) (string, error) {
		if a == "" {
			return "", nil
		}
		return protocol.NormalizeAddress(a)
	}
	for i, u := range g.Users {
		addr, err := norm(u.Address)
		if err != nil || addr == "" {
			return fmt.Errorf("genesis user %d: %v", i, err)
		}
		w.userOrCreate(addr).Balance += u.Balance
	}
	for i, o := range g.Obstacles {
		verts := make([]Vec2, 0, len(o.Vertices))
		for _, v := range o.Vertices {
			verts = append(verts, vec(v))
		}
		if _, err := w.CreateObstacle(vec(o.Position), verts); err != nil {
			return fmt.Errorf("genesis obstacle %d: %w", i, err)
		}
	}
	for i, n := range g.Nodes {
		owner, err := norm(n.Owner)
		if err != nil {
			return fmt.Errorf("genesis node %d: %w", i, err)
		}
		kind, err := ParseResourceKind(n.Kind)
		if err != nil {
			return fmt.Errorf("genesis node %d: %w", i, err)
		}
		if _, err := w.CreateNode(owner, kind, vec(n.Position), n.Mass, vec(n.Direction)); err != nil {
			return fmt.Errorf("genesis node %d: %w", i, err)
		}
	}
	for i, p := range g.Portals {
		owner, err := norm(p.Owner)
		if err != nil || owner == "" {
			return fmt.Errorf("genesis portal %d: %v", i, err)
		}
		if _, err := w.CreatePortal(owner, vec(p.Position), p.Mass); err != nil {
			return fmt.Errorf("genesis portal %d: %w", i, err)
		}
	}
	for i, b := range g.Bubbles {
		owner, err := norm(b.Owner)
		if err != nil {
			return fmt.Errorf("genesis bubble %d: %w", i, err)
		}
		if _, err := w.CreateBubble(owner, vec(b.Position), vec(b.Velocity), b.Mass); err != nil {
			return fmt.Errorf("genesis bubble %d: %w", i, err)
		}
	}
	return nil
}
