package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mithra-energy/mithra/internal/model"
)

type rawTopology struct {
	Switchboard struct {
		ID string `yaml:"id"`
	} `yaml:"switchboard"`
	Guards []rawGuard `yaml:"guards"`
}

type rawGuard struct {
	ID     string     `yaml:"id"`
	Type   string     `yaml:"type"`
	Miners []rawMiner `yaml:"miners"`
}

type rawMiner struct {
	ID          string  `yaml:"id"`
	Pinset      int     `yaml:"pinset"`
	Plug        string  `yaml:"plug"`
	Phase       int     `yaml:"phase"`
	Consumption float64 `yaml:"consumption"`
}

// LoadTopology parses the YAML topology file at path and returns a
// validated model.Topology. The topology is authoritative for an entire
// billing period (§1 Non-goals: no dynamic reconfiguration at run time).
func LoadTopology(path string) (*model.Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newValidationError("topology", "cannot read YAML file %q: %v", path, err)
	}

	var raw rawTopology
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, newValidationError("topology", "cannot parse YAML: %v", err)
	}

	if raw.Switchboard.ID == "" {
		return nil, newValidationError("topology", "switchboard.id is required")
	}

	top := model.NewTopology(raw.Switchboard.ID)

	for _, g := range raw.Guards {
		if g.ID == "" {
			return nil, newValidationError("topology", "guard entry missing id")
		}
		if _, dup := top.Guards[g.ID]; dup {
			return nil, newValidationError("topology", "duplicate guard id %q", g.ID)
		}
		boardType, ok := model.ParseGuardType(g.Type)
		if !ok {
			return nil, newValidationError("topology", "guard %q has unsupported type %q", g.ID, g.Type)
		}

		guard := &model.Guard{ID: g.ID, BoardType: boardType, State: model.Inaccessible}
		top.Guards[g.ID] = guard

		for _, m := range g.Miners {
			if m.ID == "" {
				return nil, newValidationError("topology", "guard %q has a miner entry missing id", g.ID)
			}
			if _, dup := top.Miners[m.ID]; dup {
				return nil, newValidationError("topology", "duplicate miner id %q", m.ID)
			}
			if m.Plug == "" {
				return nil, newValidationError("topology", "miner %q missing plug id", m.ID)
			}
			if _, dup := top.Plugs[m.Plug]; dup {
				return nil, newValidationError("topology", "duplicate plug id %q", m.Plug)
			}

			top.Plugs[m.Plug] = &model.Plug{ID: m.Plug, MinerID: m.ID, State: model.Inaccessible}
			top.Miners[m.ID] = &model.Miner{
				ID:                   m.ID,
				PlugID:               m.Plug,
				GuardID:              g.ID,
				Pinset:               m.Pinset,
				Phase:                m.Phase,
				EstimatedConsumption: m.Consumption,
				State:                model.MinerUndefined,
				Target:               model.TargetNone,
				Included:             true,
			}
			guard.Miners = append(guard.Miners, m.ID)
		}
	}

	if err := top.Validate(); err != nil {
		return nil, newValidationError("topology", "%v", err)
	}

	return top, nil
}
