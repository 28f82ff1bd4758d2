// Package model contains the domain types shared by every subsystem: the
// device topology, its mutable per-entity state, and the sealed message
// types exchanged between listeners, the reconciler, and the DB writer.
package model

import "strings"

// DeviceState is the liveness/configuration state shared by switchboards,
// guards, and plugs. Not every value is reachable by every device kind
// (plugs and switchboards never see StartingUp), matching the original
// system's single shared enum.
type DeviceState string

const (
	Available     DeviceState = "Available"
	ConfigExpired DeviceState = "ConfigExpired"
	Inaccessible  DeviceState = "Inaccessible"
	StartingUp    DeviceState = "StartingUp"
)

// ShellyType identifies the announced model of a meter or plug device.
type ShellyType string

const (
	ShellyMeter ShellyType = "SHEM-3"
	ShellyPlug  ShellyType = "SHPLG-S"
)

// ParseShellyType maps an announce payload's "model" field to a ShellyType.
func ParseShellyType(s string) (ShellyType, bool) {
	switch s {
	case string(ShellyMeter):
		return ShellyMeter, true
	case string(ShellyPlug):
		return ShellyPlug, true
	default:
		return "", false
	}
}

// GuardType identifies the microcontroller board type driving a guard.
type GuardType string

const (
	GuardESP32 GuardType = "ESP32"
)

// ParseGuardType maps an announce payload's "type" field to a GuardType.
func ParseGuardType(s string) (GuardType, bool) {
	if s == string(GuardESP32) {
		return GuardESP32, true
	}
	return "", false
}

// PinsetLimit returns the number of pinset slots a guard of this type
// exposes. The list of board types can grow; each one declares its own
// limit here rather than hardcoding 4 everywhere it's checked.
func (t GuardType) PinsetLimit() int {
	switch t {
	case GuardESP32:
		return 4
	default:
		return 0
	}
}

// CommandStatus is the outcome a guard reports for a previously issued
// miner command.
type CommandStatus string

const (
	CommandBusy       CommandStatus = "Busy"
	CommandDisallowed CommandStatus = "Disallowed"
	CommandDone       CommandStatus = "Done"
	CommandFailed     CommandStatus = "Failed"
	CommandUndefined  CommandStatus = "Undefined"
)

// ParseCommandStatus parses the "command=<...>" field of a guard command
// report, case-insensitively, matching the original's FromStr behavior.
func ParseCommandStatus(s string) (CommandStatus, bool) {
	switch strings.ToLower(s) {
	case "busy":
		return CommandBusy, true
	case "disallowed":
		return CommandDisallowed, true
	case "done":
		return CommandDone, true
	case "failed":
		return CommandFailed, true
	case "undefined":
		return CommandUndefined, true
	default:
		return "", false
	}
}

// MinerAlert is an unsolicited report from a guard that a miner's power
// state diverged from what Mithra commanded.
type MinerAlert string

const (
	AlertPoweredOn  MinerAlert = "PoweredOn"
	AlertPoweredOff MinerAlert = "PoweredOff"
)

// ParseMinerAlert parses a guard alert payload case-insensitively.
func ParseMinerAlert(s string) (MinerAlert, bool) {
	switch strings.ToLower(s) {
	case "poweredon":
		return AlertPoweredOn, true
	case "poweredoff":
		return AlertPoweredOff, true
	default:
		return "", false
	}
}

// UserCommand is an operator-issued include/exclude command for a miner.
type UserCommand string

const (
	UserInclude UserCommand = "Include"
	UserExclude UserCommand = "Exclude"
)

// ParseUserCommand parses a "user/<mid>" payload case-insensitively.
func ParseUserCommand(s string) (UserCommand, bool) {
	switch strings.ToLower(s) {
	case "include":
		return UserInclude, true
	case "exclude":
		return UserExclude, true
	default:
		return "", false
	}
}
