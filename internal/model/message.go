package model

import "time"

// Message is the sealed set of events listeners post to the reconciler's
// main channel. It is a closed tagged union: the unexported marker method
// means only the variants declared in this file can implement it, giving
// the reconciler's dispatch switch the same exhaustiveness guarantee the
// original tagged enum had.
type Message interface {
	isMessage()
}

// EnergyMinerMessage reports a plug's energy delta for one miner, gated by
// the plug listener's 90s window (see listeners.PlugAccumulator).
type EnergyMinerMessage struct {
	Ts           time.Time
	MinerID      string
	ConsumedWmin uint64
	Phase        int
	PowerW       float64
}

func (EnergyMinerMessage) isMessage() {}

// EnergySwitchboardMessage reports one complete 12-slot switchboard
// reading (see listeners.SwitchboardAccumulator).
type EnergySwitchboardMessage struct {
	Ts               time.Time
	ConsumedWmin     [3]uint64
	ReturnedWmin     [3]uint64
	TotalConsumedKWh [3]float64
	TotalReturnedKWh [3]float64
}

func (EnergySwitchboardMessage) isMessage() {}

// GuardMessage wraps a parsed guard-topic event for one guard.
type GuardMessage struct {
	GuardID string
	Ts      time.Time
	Data    GuardData
}

func (GuardMessage) isMessage() {}

// PlugMessage reports a plug's relay position (on/off).
type PlugMessage struct {
	PlugID string
	Ts     time.Time
	IsOn   bool
}

func (PlugMessage) isMessage() {}

// UserMessage reports an operator include/exclude command for a miner.
type UserMessage struct {
	MinerID string
	Command UserCommand
}

func (UserMessage) isMessage() {}

// GuardData is the sealed set of guard-topic event payloads.
type GuardData interface {
	isGuardData()
}

// GuardAlert is an unsolicited report that a miner's power diverged from
// what Mithra commanded.
type GuardAlert struct {
	MinerID string
	Alert   MinerAlert
}

func (GuardAlert) isGuardData() {}

// GuardCommand is the guard's response to a previously issued miner
// command.
type GuardCommand struct {
	MinerID       string
	CommandStatus CommandStatus
	MinerState    MinerState
}

func (GuardCommand) isGuardData() {}

// GuardConfigured reports that a guard accepted its pinset assignment.
type GuardConfigured struct{}

func (GuardConfigured) isGuardData() {}

// GuardPing is a liveness heartbeat; it carries no payload beyond refreshing
// the guard's last-seen timestamp.
type GuardPing struct{}

func (GuardPing) isGuardData() {}

// GuardStarted reports that a guard (re)booted and needs configuring.
type GuardStarted struct{}

func (GuardStarted) isGuardData() {}

// GuardState reports a miner's current state in response to a StateReport
// command.
type GuardState struct {
	MinerID string
	State   MinerState
}

func (GuardState) isGuardData() {}

// EnergyRecord is the sealed set of rows the DB writer persists. It is
// deliberately distinct from Message: the switchboard and plug listeners
// post the same reading to both the main channel and the DB channel, but
// the per-tick grid-consumption accounting the reconciler computes is
// posted only to the DB channel, never to the reconciler's own main loop.
type EnergyRecord interface {
	isEnergyRecord()
}

// SwitchboardRecord is one row of switchboard_YYYY_MM.
type SwitchboardRecord struct {
	Ts               time.Time
	ConsumedWmin     [3]uint64
	ReturnedWmin     [3]uint64
	TotalConsumedKWh [3]float64
	TotalReturnedKWh [3]float64
}

func (SwitchboardRecord) isEnergyRecord() {}

// MinerRecord is one row of miners_YYYY_MM.
type MinerRecord struct {
	Ts           time.Time
	Name         string
	ConsumedWmin uint64
	Phase        int
	PowerW       float64
}

func (MinerRecord) isEnergyRecord() {}

// MinersGridRecord is one row of miners_grid_YYYY_MM.
type MinersGridRecord struct {
	Ts           time.Time
	ConsumedWmin uint64
	Phase        int
}

func (MinersGridRecord) isEnergyRecord() {}
