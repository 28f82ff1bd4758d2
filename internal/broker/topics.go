package broker

import "fmt"

// Topic builders. Every format string here mirrors a format! call from the
// original guard/plug/switchboard protocol so the wire shape never drifts
// from what the firmware on the other end actually expects.

// AnnounceShellies and AnnounceGuards are the two discovery topics every
// freshly booted device publishes itself onto.
const (
	AnnounceShellies = "shellies/announce"
	AnnounceGuards   = "guards/announce"
	GuardsStarted    = "guards/started"

	// ShelliesBroadcastCommand and GuardsBroadcastCommand are the two
	// fleet-wide topics Mithra publishes an "announce" trigger to at
	// start-up, prompting every switchboard, plug, and guard to report
	// itself on AnnounceShellies/AnnounceGuards.
	ShelliesBroadcastCommand = "shellies/command"
	GuardsBroadcastCommand   = "guards/command"

	announcePayload = "announce"
)

// PublishAnnounce triggers every device to self-report on the two
// announce topics.
func PublishAnnounce(p Publisher) error {
	if err := p.Publish(ShelliesBroadcastCommand, announcePayload); err != nil {
		return err
	}
	return p.Publish(GuardsBroadcastCommand, announcePayload)
}

// SwitchboardTopics returns the four emeter subtopics a switchboard with
// the given id publishes its per-phase energy counters on.
func SwitchboardTopics(switchboardID string) []string {
	return []string{
		fmt.Sprintf("shellies/%s/emeter/+/energy", switchboardID),
		fmt.Sprintf("shellies/%s/emeter/+/returned_energy", switchboardID),
		fmt.Sprintf("shellies/%s/emeter/+/total", switchboardID),
		fmt.Sprintf("shellies/%s/emeter/+/total_returned", switchboardID),
	}
}

// SwitchboardEmeterTopic renders the concrete topic a single switchboard
// phase index and field (energy, returned_energy, total, total_returned)
// arrive on, for tests that need to construct exact inbound topics.
func SwitchboardEmeterTopic(switchboardID string, phase int, field string) string {
	return fmt.Sprintf("shellies/%s/emeter/%d/%s", switchboardID, phase, field)
}

// GuardConfiguredTopic, GuardPingTopic, and GuardCommandTopic format the
// per-guard topics used for the configuration handshake and command/report
// protocol.
func GuardConfiguredTopic(guardID string) string { return fmt.Sprintf("guards/%s/configured", guardID) }
func GuardPingTopic(guardID string) string       { return fmt.Sprintf("guards/%s/ping", guardID) }
func GuardCommandTopic(guardID string) string    { return fmt.Sprintf("guards/%s/command", guardID) }

// GuardConfigTopic is the topic Mithra publishes a guard's pinset
// assignment to once it reports having started up.
func GuardConfigTopic(guardID string) string { return fmt.Sprintf("guards/%s/config", guardID) }

// MinerAlertTopic, MinerCommandTopic, and MinerStatusTopic are the three
// per-(guard,miner) topics a guard reports on once a miner is subscribed.
func MinerAlertTopic(guardID, minerID string) string {
	return fmt.Sprintf("guards/%s/miners/%s/alert", guardID, minerID)
}
func MinerCommandTopic(guardID, minerID string) string {
	return fmt.Sprintf("guards/%s/miners/%s/command", guardID, minerID)
}
func MinerStatusTopic(guardID, minerID string) string {
	return fmt.Sprintf("guards/%s/miners/%s/status", guardID, minerID)
}

// MinerCommandPublishTopic is the topic Mithra publishes a miner command
// to: the same path as MinerCommandTopic's prefix but without the
// subscribed-report suffix -- the guard listens on "miners/<mid>" directly.
func MinerCommandPublishTopic(guardID, minerID string) string {
	return fmt.Sprintf("guards/%s/miners/%s", guardID, minerID)
}

// PlugPowerTopic and PlugEnergyTopic are the two subtopics a plug reports
// its instantaneous power draw and its cumulative energy counter on.
func PlugPowerTopic(plugID string) string  { return fmt.Sprintf("shellies/%s/relay/0/power", plugID) }
func PlugEnergyTopic(plugID string) string { return fmt.Sprintf("shellies/%s/relay/0/energy", plugID) }

// PlugRelayTopic is the on/off state a plug reports whenever its relay
// toggles, independent of the 90-second energy window.
func PlugRelayTopic(plugID string) string { return fmt.Sprintf("shellies/%s/relay/0", plugID) }

// PlugCommandTopic is the topic Mithra publishes "on"/"off" to in order to
// cut power to a plug directly, bypassing the guard (used for HardStop and
// for the watchdog's Unreachable handling).
func PlugCommandTopic(plugID string) string { return fmt.Sprintf("shellies/%s/relay/0/command", plugID) }

// UserTopic is the per-miner topic an operator publishes Include/Exclude
// commands to.
func UserTopic(minerID string) string { return fmt.Sprintf("user/%s", minerID) }

const (
	plugOnPayload  = "on"
	plugOffPayload = "off"
	guardReset     = "reset"
)

// PlugEnable publishes the "on" command for a plug.
func PlugEnable(p Publisher, plugID string) error {
	return p.Publish(PlugCommandTopic(plugID), plugOnPayload)
}

// PlugCutOff publishes the "off" command for a plug.
func PlugCutOff(p Publisher, plugID string) error {
	return p.Publish(PlugCommandTopic(plugID), plugOffPayload)
}

// GuardReset publishes the "reset" command that forces a guard to forget
// its stale pinset configuration and re-announce itself.
func GuardReset(p Publisher, guardID string) error {
	return p.Publish(GuardCommandTopic(guardID), guardReset)
}

// GuardSendCommand publishes a miner lifecycle command (StateReport,
// PowerOn, PowerOff, HardStop, Restart, HardRestart) to a guard.
func GuardSendCommand(p Publisher, guardID, minerID, command string) error {
	return p.Publish(MinerCommandPublishTopic(guardID, minerID), command)
}

// SubscribeMiner wires up the three per-miner guard topics.
func SubscribeMiner(s Subscriber, guardID, minerID string, handler func(Message)) error {
	for _, topic := range []string{
		MinerAlertTopic(guardID, minerID),
		MinerCommandTopic(guardID, minerID),
		MinerStatusTopic(guardID, minerID),
	} {
		if err := s.Subscribe(topic, handler); err != nil {
			return err
		}
	}
	return nil
}

// UnsubscribeMiner tears down the three per-miner guard topics, used when
// a user Exclude command takes a miner out of service.
func UnsubscribeMiner(s Subscriber, guardID, minerID string) error {
	for _, topic := range []string{
		MinerAlertTopic(guardID, minerID),
		MinerCommandTopic(guardID, minerID),
		MinerStatusTopic(guardID, minerID),
	} {
		if err := s.Unsubscribe(topic); err != nil {
			return err
		}
	}
	return nil
}

// SubscribePlug wires up the two energy-reporting subtopics for a plug.
func SubscribePlug(s Subscriber, plugID string, handler func(Message)) error {
	for _, topic := range []string{PlugPowerTopic(plugID), PlugEnergyTopic(plugID)} {
		if err := s.Subscribe(topic, handler); err != nil {
			return err
		}
	}
	return nil
}

// UnsubscribePlug tears down the two energy-reporting subtopics for a plug.
func UnsubscribePlug(s Subscriber, plugID string) error {
	for _, topic := range []string{PlugPowerTopic(plugID), PlugEnergyTopic(plugID)} {
		if err := s.Unsubscribe(topic); err != nil {
			return err
		}
	}
	return nil
}
