package model

import (
	"math"
	"strings"
	"time"
)

// MinerState is a miner's lifecycle state, driven both by reconciler intent
// and by guard reports. See the miner state machine design for the full
// transition tables.
type MinerState string

const (
	MinerUndefined      MinerState = "Undefined"
	MinerPoweredOff     MinerState = "PoweredOff"
	MinerStarting       MinerState = "Starting"
	MinerRunning        MinerState = "Running"
	MinerStopping       MinerState = "Stopping"
	MinerHardStopping   MinerState = "HardStopping"
	MinerRestarting     MinerState = "Restarting"
	MinerHardRestarting MinerState = "HardRestarting"
	MinerAborted        MinerState = "Aborted"
	MinerUnreachable    MinerState = "Unreachable"
)

// ParseMinerState parses a guard-reported state name case-insensitively.
func ParseMinerState(s string) (MinerState, bool) {
	switch strings.ToLower(s) {
	case "undefined":
		return MinerUndefined, true
	case "poweredoff":
		return MinerPoweredOff, true
	case "starting":
		return MinerStarting, true
	case "running":
		return MinerRunning, true
	case "stopping":
		return MinerStopping, true
	case "hardstopping":
		return MinerHardStopping, true
	case "restarting":
		return MinerRestarting, true
	case "hardrestarting":
		return MinerHardRestarting, true
	case "aborted":
		return MinerAborted, true
	case "unreachable":
		return MinerUnreachable, true
	default:
		return "", false
	}
}

// TargetState is the state the reconciler wants a miner to reach. The zero
// value TargetNone means "no explicit intent" (I3): no other value may ever
// be assigned to a Miner's Target field.
type TargetState string

const (
	TargetNone       TargetState = ""
	TargetRunning    TargetState = "Running"
	TargetPoweredOff TargetState = "PoweredOff"
)

// Miner is a single cryptocurrency ASIC wired to exactly one guard pinset
// and one plug.
type Miner struct {
	ID                   string
	PlugID               string
	GuardID              string
	Pinset               int
	Phase                int
	EstimatedConsumption float64
	PowerConsumption     *float64
	State                MinerState
	Target               TargetState
	CommandTS            *time.Time
	Included             bool
}

// PowerWatts returns the miner's observed power if known, else its
// configured estimate, rounded up to an integer watt as the scheduler
// requires.
func (m *Miner) PowerWatts() int {
	w := m.EstimatedConsumption
	if m.PowerConsumption != nil {
		w = *m.PowerConsumption
	}
	return int(math.Ceil(w))
}

// IsSteady reports whether the miner is in one of the four states that
// never carry a pending command (I6).
func (m *Miner) IsSteady() bool {
	switch m.State {
	case MinerRunning, MinerPoweredOff, MinerAborted, MinerUnreachable:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the miner is in one of the two states that
// always target PoweredOff (I4).
func (m *Miner) IsTerminal() bool {
	return m.State == MinerAborted || m.State == MinerUnreachable
}
