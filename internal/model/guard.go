package model

import "time"

// Guard is a microcontroller driving the power/reset lines of up to
// BoardType.PinsetLimit() miners. It owns the authoritative power state of
// every miner wired to it and reports alerts when that state diverges from
// what Mithra commanded.
type Guard struct {
	ID        string
	Miners    []string // miner ids assigned to this guard, insertion order preserved
	BoardType GuardType
	State     DeviceState
	LastSeen  time.Time
}
