package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("mass_per_second: 5\nstep_ms: 10\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.MassPerSecond != 5 || got.StepMillis != 10 {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.WorldWidth != Defaults().WorldWidth {
		t.Fatalf("world_width=%v want default %v", got.WorldWidth, Defaults().WorldWidth)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("step_ms: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_SnapshotIntervalOnStepGrid(t *testing.T) {
	tu := Defaults()
	tu.SnapshotEveryMs = 1010
	if err := tu.Validate(); err == nil {
		t.Fatalf("interval off the step grid accepted")
	}
}

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if got := Defaults().StepSeconds(); got != 0.02 {
		t.Fatalf("StepSeconds=%v", got)
	}
}

func TestLoadGenesis(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.yaml")
	raw := `
portals:
  - owner: "0x0000000000000000000000000000000000000002"
    position: [200, 200]
    mass: 10
nodes:
  - owner: "0x0000000000000000000000000000000000000001"
    kind: energy
    position: [50, 60]
    mass: 20
    direction: [1, 0]
obstacles:
  - position: [100, 100]
    vertices: [[-5, -5], [5, -5], [0, 5]]
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	g, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis: %v", err)
	}
	if len(g.Nodes) != 1 || g.Nodes[0].Kind != "energy" || g.Nodes[0].Position != [2]float64{50, 60} {
		t.Fatalf("nodes: %+v", g.Nodes)
	}
	if len(g.Obstacles) != 1 || len(g.Obstacles[0].Vertices) != 3 {
		t.Fatalf("obstacles: %+v", g.Obstacles)
	}
	if len(g.Portals) != 1 || g.Portals[0].Mass != 10 {
		t.Fatalf("portals: %+v", g.Portals)
	}
}

func TestLoadGenesisRejectsEmptyBubble(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	raw := "bubbles:\n  - owner: x\n    position: [1, 1]\n    mass: 0\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadGenesis(path); err == nil {
		t.Fatalf("expected error for zero-mass bubble")
	}
}
