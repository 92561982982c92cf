package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Genesis describes the fixed bodies a fresh world starts with.
type Genesis struct {
	Users     []GenesisUser     `yaml:"users"`
	Portals   []GenesisPortal   `yaml:"portals"`
	Bubbles   []GenesisBubble   `yaml:"bubbles"`
	Nodes     []GenesisNode     `yaml:"nodes"`
	Obstacles []GenesisObstacle `yaml:"obstacles"`
}

type GenesisUser struct {
	Address string  `yaml:"address"`
	Balance float64 `yaml:"balance"`
}

type GenesisPortal struct {
	Owner    string     `yaml:"owner"`
	Position [2]float64 `yaml:"position"`
	Mass     float64    `yaml:"mass"`
}

type GenesisBubble struct {
	Owner    string     `yaml:"owner"`
	Position [2]float64 `yaml:"position"`
	Velocity [2]float64 `yaml:"velocity"`
	Mass     float64    `yaml:"mass"`
}

type GenesisNode struct {
	Owner     string     `yaml:"owner"`
	Kind      string     `yaml:"kind"`
	Position  [2]float64 `yaml:"position"`
	Mass      float64    `yaml:"mass"`
	Direction [2]float64 `yaml:"direction"`
}

type GenesisObstacle struct {
	Position [2]float64   `yaml:"position"`
	Vertices [][2]float64 `yaml:"vertices"`
}

func LoadGenesis(path string) (Genesis, error) {
	var g Genesis
	raw, err := os.ReadFile(path)
	if err != nil {
		return g, err
	}
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return g, fmt.Errorf("genesis.yaml: %w", err)
	}
	for i, p := range g.Portals {
		if p.Owner == "" || p.Mass < 0 {
			return g, fmt.Errorf("genesis.yaml: portal %d: need owner and mass >= 0", i)
		}
	}
	for i, b := range g.Bubbles {
		if !(b.Mass > 0) {
			return g, fmt.Errorf("genesis.yaml: bubble %d: mass must be > 0", i)
		}
	}
	for i, n := range g.Nodes {
		if n.Mass < 0 {
			return g, fmt.Errorf("genesis.yaml: node %d: negative mass", i)
		}
	}
	for i, o := range g.Obstacles {
		if len(o.Vertices) < 3 {
			return g, fmt.Errorf("genesis.yaml: obstacle %d: need at least 3 vertices", i)
		}
	}
	return g, nil
}
