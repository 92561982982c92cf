package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the simulation constants. Every replica of a timeline must run
// with identical values or replay digests diverge.
type Tuning struct {
	StepMillis    int64   `yaml:"step_ms" json:"step_ms"`
	MassPerSecond float64 `yaml:"mass_per_second" json:"mass_per_second"`
	WorldWidth    float64 `yaml:"world_width" json:"world_width"`
	WorldHeight   float64 `yaml:"world_height" json:"world_height"`
	MinBodyMass   float64 `yaml:"min_body_mass" json:"min_body_mass"`

	GravitationalConstant float64 `yaml:"gravitational_constant" json:"gravitational_constant"`

	SnapshotEveryMs   int64 `yaml:"snapshot_every_ms" json:"snapshot_every_ms"`
	SnapshotRetention int   `yaml:"snapshot_retention" json:"snapshot_retention"`

	SpawnMaxAttempts int `yaml:"spawn_max_attempts" json:"spawn_max_attempts"`

	NodeEmitIntervalMs int64   `yaml:"node_emit_interval_ms" json:"node_emit_interval_ms"`
	NodeEmitMass       float64 `yaml:"node_emit_mass" json:"node_emit_mass"`

	PunctureEmitIntervalMs int64   `yaml:"puncture_emit_interval_ms" json:"puncture_emit_interval_ms"`
	PunctureEmitMass       float64 `yaml:"puncture_emit_mass" json:"puncture_emit_mass"`

	BroadphaseCell int `yaml:"broadphase_cell" json:"broadphase_cell"`
}

func Defaults() Tuning {
	return Tuning{
		StepMillis:             20,
		MassPerSecond:          2,
		WorldWidth:             400,
		WorldHeight:            400,
		MinBodyMass:            0.001,
		SnapshotEveryMs:        1000,
		SnapshotRetention:      120,
		SpawnMaxAttempts:       10000,
		NodeEmitIntervalMs:     2000,
		NodeEmitMass:           1,
		PunctureEmitIntervalMs: 500,
		PunctureEmitMass:       0.5,
		BroadphaseCell:         16,
	}
}

// StepSeconds is the fixed physics delta.
func (t Tuning) StepSeconds() float64 { return float64(t.StepMillis) / 1000 }

func (t Tuning) Validate() error {
	switch {
	case t.StepMillis <= 0:
		return fmt.Errorf("step_ms must be > 0")
	case t.MassPerSecond <= 0:
		return fmt.Errorf("mass_per_second must be > 0")
	case t.WorldWidth <= 0 || t.WorldHeight <= 0:
		return fmt.Errorf("world size must be > 0")
	case t.MinBodyMass <= 0:
		return fmt.Errorf("min_body_mass must be > 0")
	case t.GravitationalConstant < 0:
		return fmt.Errorf("gravitational_constant must be >= 0")
	case t.SnapshotEveryMs < t.StepMillis || t.SnapshotEveryMs%t.StepMillis != 0:
		return fmt.Errorf("snapshot_every_ms must be a positive multiple of step_ms")
	case t.SnapshotRetention < 2:
		return fmt.Errorf("snapshot_retention must be >= 2")
	case t.SpawnMaxAttempts <= 0:
		return fmt.Errorf("spawn_max_attempts must be > 0")
	case t.NodeEmitIntervalMs <= 0 || t.NodeEmitMass <= 0:
		return fmt.Errorf("node emission must be positive")
	case t.PunctureEmitIntervalMs <= 0 || t.PunctureEmitMass <= 0:
		return fmt.Errorf("puncture emission must be positive")
	case t.BroadphaseCell <= 0:
		return fmt.Errorf("broadphase_cell must be > 0")
	}
	return nil
}

// Load reads a tuning file. Keys missing from the file keep their defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
