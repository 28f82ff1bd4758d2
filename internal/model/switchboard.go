package model

import "time"

// Switchboard is the three-phase electricity meter at the grid connection;
// there is exactly one per installation.
type Switchboard struct {
	ID       string
	State    DeviceState
	LastSeen time.Time
}
