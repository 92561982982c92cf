package worldtest

import (
	"path/filepath"
	"testing"

	"bubbles.ai/internal/persistence/snapshot"
	"bubbles.ai/internal/protocol"
	"bubbles.ai/internal/sim/tuning"
	world "bubbles.ai/internal/sim/world"
)

const (
	Alice = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	Bob   = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

// ConfigDir is the repo configs directory relative to this package.
var ConfigDir = filepath.Join("..", "..", "..", "configs")

// Harness drives a world through its exported API only, so tests can sit
// outside the world package.
type Harness struct {
	T    *testing.T
	Tune tuning.Tuning
	W    *world.World
}

// LoadConfigs reads tuning.yaml and genesis.yaml from ConfigDir.
func LoadConfigs(t *testing.T) (tuning.Tuning, tuning.Genesis) {
	t.Helper()
	tune, err := tuning.Load(filepath.Join(ConfigDir, "tuning.yaml"))
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	g, err := tuning.LoadGenesis(filepath.Join(ConfigDir, "genesis.yaml"))
	if err != nil {
		t.Fatalf("load genesis: %v", err)
	}
	return tune, g
}

// NewHarness builds a genesis world from the repo configs.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	tune, g := LoadConfigs(t)
	w, err := world.New(tune, 0)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	if err := w.ApplyGenesis(g); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return &Harness{T: t, Tune: tune, W: w}
}

// NewHarnessFromSnapshot imports s with the repo tuning.
func NewHarnessFromSnapshot(t *testing.T, s *snapshot.Snapshot) *Harness {
	t.Helper()
	tune, _ := LoadConfigs(t)
	w, err := world.ImportState(tune, s)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	return &Harness{T: t, Tune: tune, W: w}
}

func (h *Harness) Schedule(ins ...protocol.Input) {
	h.T.Helper()
	for _, in := range ins {
		if err := h.W.Schedule(in); err != nil {
			h.T.Fatalf("schedule %s: %v", in.Key(), err)
		}
	}
}

// RunTo advances to ts and returns the digest there.
func (h *Harness) RunTo(ts int64) string {
	h.W.Advance(ts)
	return h.W.Digest()
}

// Script is a fixed input stream exercising every input type.
func Script() []protocol.Input {
	return []protocol.Input{
		{Type: protocol.InputDeposit, Timestamp: 0, Actor: Bob, Amount: 25},
		{Type: protocol.InputCreatePortal, Timestamp: 200, Actor: Bob, Amount: 20},
		{Type: protocol.InputEmit, Timestamp: 400, Actor: Alice, EntityID: "B1", Amount: 2, Direction: protocol.Vec2{X: 1, Y: 1}},
		{Type: protocol.InputAddPortalMass, Timestamp: 600, Actor: Alice, Amount: 10},
		{Type: protocol.InputEmit, Timestamp: 800, Actor: Alice, EntityID: Alice, Amount: 5, Direction: protocol.Vec2{X: 0, Y: 1}},
		{Type: protocol.InputPuncture, Timestamp: 1000, Actor: Bob, EntityID: "B2", Resource: "energy", Amount: 1, Point: protocol.Vec2{X: 1}},
		{Type: protocol.InputRemovePortalMass, Timestamp: 1500, Actor: Bob, Amount: 5},
		{Type: protocol.InputWithdraw, Timestamp: 1600, Actor: Bob, Amount: 5},
		{Type: protocol.InputEmitResource, Timestamp: 2000, Actor: Alice, EntityID: Alice, Resource: "ice", Amount: 1},
		{Type: protocol.InputEmit, Timestamp: 2400, Actor: Bob, EntityID: "B1", Amount: 1},
	}
}
