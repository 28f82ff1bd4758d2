package model

import "time"

// Plug is a smart relay in series with a single miner's mains lead. It
// reports per-miner power/energy telemetry and can be commanded on or off
// remotely.
type Plug struct {
	ID        string
	MinerID   string
	State     DeviceState
	IsEnabled bool
	LastSeen  time.Time
}
