package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Digest hashes the simulated state at the current clock. Pending inputs are
// not part of it: two worlds that reached the same state through different
// queues digest equal.
func (w *World) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteI64(h, &tmp, w.clock)
	w.digestUsers(h, &tmp)
	w.digestBubbles(h, &tmp)
	w.digestPortals(h, &tmp)
	w.digestObstacles(h, &tmp)
	w.digestNodes(h, &tmp)
	w.digestResources(h, &tmp)
	digestWriteU64(h, &tmp, w.nextSeq)
	digestWriteU64(h, &tmp, w.nextBubble)
	digestWriteU64(h, &tmp, w.nextResource)

	return hex.EncodeToString(h.Sum(nil))
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteVec(h hashWriter, tmp *[8]byte, v Vec2) {
	digestWriteF64(h, tmp, v.X)
	digestWriteF64(h, tmp, v.Y)
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func digestWriteKinds(h hashWriter, tmp *[8]byte, m map[ResourceKind]float64) {
	ks := sortedKinds(m)
	digestWriteU64(h, tmp, uint64(len(ks)))
	for _, k := range ks {
		digestWriteString(h, tmp, string(k))
		digestWriteF64(h, tmp, m[k])
	}
}

func (w *World) digestUsers(h hashWriter, tmp *[8]byte) {
	us := w.users.values()
	digestWriteU64(h, tmp, uint64(len(us)))
	for _, u := range us {
		digestWriteString(h, tmp, u.Address)
		digestWriteF64(h, tmp, u.Balance)
	}
}

func (w *World) digestBubbles(h hashWriter, tmp *[8]byte) {
	bs := w.bubbles.values()
	digestWriteU64(h, tmp, uint64(len(bs)))
	for _, b := range bs {
		digestWriteString(h, tmp, b.ID)
		digestWriteString(h, tmp, b.Owner)
		digestWriteVec(h, tmp, b.Position())
		digestWriteVec(h, tmp, b.Velocity())
		digestWriteF64(h, tmp, b.Mass())
		digestWriteKinds(h, tmp, b.Resources)
		digestWriteI64(h, tmp, b.LastPunctureEmit)
		digestWriteU64(h, tmp, uint64(len(b.Punctures)))
		for _, pc := range b.Punctures {
			digestWriteVec(h, tmp, pc.Point)
			digestWriteString(h, tmp, string(pc.Kind))
			digestWriteF64(h, tmp, pc.Remaining)
		}
	}
}

func (w *World) digestPortals(h hashWriter, tmp *[8]byte) {
	ps := w.portals.values()
	digestWriteU64(h, tmp, uint64(len(ps)))
	for _, p := range ps {
		digestWriteString(h, tmp, p.ID)
		digestWriteVec(h, tmp, p.Position())
		digestWriteF64(h, tmp, p.Mass)
		digestWriteF64(h, tmp, p.BodyMass())
		digestWriteKinds(h, tmp, p.Resources)
	}
}

func (w *World) digestObstacles(h hashWriter, tmp *[8]byte) {
	obs := w.obstacles.values()
	digestWriteU64(h, tmp, uint64(len(obs)))
	for _, o := range obs {
		digestWriteString(h, tmp, o.ID)
		digestWriteVec(h, tmp, o.Position())
	}
}

func (w *World) digestNodes(h hashWriter, tmp *[8]byte) {
	ns := w.nodes.values()
	digestWriteU64(h, tmp, uint64(len(ns)))
	for _, n := range ns {
		digestWriteString(h, tmp, n.ID)
		digestWriteString(h, tmp, string(n.Kind))
		digestWriteF64(h, tmp, n.Mass)
		digestWriteI64(h, tmp, n.LastEmission)
	}
}

func (w *World) digestResources(h hashWriter, tmp *[8]byte) {
	rs := w.resources.values()
	digestWriteU64(h, tmp, uint64(len(rs)))
	for _, r := range rs {
		digestWriteString(h, tmp, r.ID)
		digestWriteString(h, tmp, string(r.Kind))
		digestWriteVec(h, tmp, r.Position())
		digestWriteVec(h, tmp, r.Velocity())
		digestWriteF64(h, tmp, r.Mass())
	}
}
