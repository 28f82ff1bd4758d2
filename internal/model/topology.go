package model

import "fmt"

// Topology is the immutable-after-start-up device graph: one switchboard,
// a set of guards, a set of miners, and a set of plugs, with miner records
// cross-referencing their guard and plug by id. Once constructed and
// validated it is owned exclusively by the reconciler (I2); every mutation
// of a device's mutable fields happens through reconciler code, never
// concurrently from a listener goroutine.
type Topology struct {
	Switchboard *Switchboard
	Guards      map[string]*Guard
	Miners      map[string]*Miner
	Plugs       map[string]*Plug
}

// NewTopology builds an empty topology rooted at the given switchboard id.
func NewTopology(switchboardID string) *Topology {
	return &Topology{
		Switchboard: &Switchboard{ID: switchboardID, State: Inaccessible},
		Guards:      make(map[string]*Guard),
		Miners:      make(map[string]*Miner),
		Plugs:       make(map[string]*Plug),
	}
}

// Validate enforces the Data Model uniqueness invariants: miner ids,
// plug ids, and guard ids are each globally unique by construction (they
// are map keys), but (guard, pinset) pairs, pinset bounds, and phase range
// must be checked explicitly.
func (t *Topology) Validate() error {
	type guardPinset struct {
		guard  string
		pinset int
	}
	seenPinsets := make(map[guardPinset]string)

	for minerID, m := range t.Miners {
		guard, ok := t.Guards[m.GuardID]
		if !ok {
			return fmt.Errorf("miner %q references unknown guard %q", minerID, m.GuardID)
		}
		if _, ok := t.Plugs[m.PlugID]; !ok {
			return fmt.Errorf("miner %q references unknown plug %q", minerID, m.PlugID)
		}
		if m.Phase < 0 || m.Phase > 2 {
			return fmt.Errorf("miner %q has phase %d outside {0,1,2}", minerID, m.Phase)
		}
		limit := guard.BoardType.PinsetLimit()
		if m.Pinset < 0 || m.Pinset >= limit {
			return fmt.Errorf("miner %q has pinset %d outside [0,%d) for guard %q", minerID, m.Pinset, limit, m.GuardID)
		}
		key := guardPinset{guard: m.GuardID, pinset: m.Pinset}
		if existing, dup := seenPinsets[key]; dup {
			return fmt.Errorf("guard %q pinset %d is shared by miners %q and %q", m.GuardID, m.Pinset, existing, minerID)
		}
		seenPinsets[key] = minerID
	}

	for plugID, p := range t.Plugs {
		if p.MinerID == "" {
			continue
		}
		if _, ok := t.Miners[p.MinerID]; !ok {
			return fmt.Errorf("plug %q references unknown miner %q", plugID, p.MinerID)
		}
	}

	return nil
}

// IncludedMiners returns the ids of every miner with Included == true.
func (t *Topology) IncludedMiners() []string {
	var ids []string
	for id, m := range t.Miners {
		if m.Included {
			ids = append(ids, id)
		}
	}
	return ids
}
