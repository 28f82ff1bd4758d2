package reconciler

import (
	"time"

	"github.com/mithra-energy/mithra/internal/broker"
	"github.com/mithra-energy/mithra/internal/model"
)

// Liveness windows the watchdog pass checks each device against, matching
// validate_devices's hardcoded timeouts exactly: the switchboard emits a
// reading roughly every 10s so 150s tolerates several missed beats, guards
// ping every ~10s but a 5 minute silence means their firmware truly
// dropped off and their plugs must be cut for safety, and plugs report on
// relay toggle so 60s of silence is already unusual.
const (
	switchboardTimeout = 150 * time.Second
	guardTimeout       = 45 * time.Second
	guardCutoffTimeout = 5 * time.Minute
	plugTimeout        = 60 * time.Second
)

// Command round-trip timeouts: how long the reconciler waits for a guard
// to report back before treating its own optimistic state transition as
// stuck and re-querying with StateReport.
const (
	stoppingTimeout       = 130 * time.Second
	hardStoppingTimeout   = 12 * time.Second
	startingTimeout       = 7 * time.Second
	restartingTimeout     = 12 * time.Second
	hardRestartingTimeout = 20 * time.Second
	undefinedTimeout      = 10 * time.Second
)

// ValidateDevices is validate_devices: it marks the switchboard, guards,
// and plugs Inaccessible once their last-seen timestamp falls outside
// their liveness window, cuts or restores power as guards come and go,
// and converges every miner's reported state toward its target,
// re-querying with StateReport any command whose guard response never
// arrived.
func (r *Reconciler) ValidateDevices() {
	now := r.now()

	r.validateSwitchboard(now)

	for guardID, guard := range r.Topology.Guards {
		r.validateGuard(guardID, guard, now)
	}
}

func (r *Reconciler) validateSwitchboard(now time.Time) {
	sb := r.Topology.Switchboard
	if now.Sub(sb.LastSeen) > switchboardTimeout {
		if sb.State == model.Available {
			sb.State = model.Inaccessible
			for _, miner := range r.Topology.Miners {
				miner.Target = model.TargetPoweredOff
			}
		}
	} else if sb.State == model.Inaccessible {
		sb.State = model.Available
	}
}

func (r *Reconciler) validateGuard(guardID string, guard *model.Guard, now time.Time) {
	sinceSeen := now.Sub(guard.LastSeen)

	switch {
	case sinceSeen > guardTimeout:
		if guard.State == model.Available {
			guard.State = model.Inaccessible
		}
		if sinceSeen > guardCutoffTimeout {
			for _, minerID := range guard.Miners {
				miner := r.Topology.Miners[minerID]
				plug := r.Topology.Plugs[miner.PlugID]
				if miner.Included && plug.IsEnabled {
					broker.PlugCutOff(r.PlugsPub, miner.PlugID)
				}
			}
		}

	case guard.State == model.Inaccessible:
		guard.State = model.Available
		if sinceSeen <= guardCutoffTimeout {
			for _, minerID := range guard.Miners {
				miner := r.Topology.Miners[minerID]
				plug := r.Topology.Plugs[miner.PlugID]
				if miner.Included && !plug.IsEnabled {
					broker.PlugEnable(r.PlugsPub, miner.PlugID)
					broker.GuardSendCommand(r.GuardsPub, guardID, minerID, "StateReport")
					miner.State = model.MinerUndefined
					ts := now
					miner.CommandTS = &ts
				}
			}
		}

	default:
		for _, minerID := range guard.Miners {
			r.validateMiner(guardID, minerID, now)
		}
	}
}

func (r *Reconciler) validateMiner(guardID, minerID string, now time.Time) {
	miner := r.Topology.Miners[minerID]
	if !miner.Included {
		return
	}
	plug := r.Topology.Plugs[miner.PlugID]

	if now.Sub(plug.LastSeen) > plugTimeout {
		plug.State = model.Inaccessible
	} else if plug.State == model.Inaccessible {
		plug.State = model.Available
	}

	if !plug.IsEnabled {
		if miner.Target == model.TargetRunning {
			broker.PlugEnable(r.PlugsPub, miner.PlugID)
		}
		switch miner.State {
		case model.MinerAborted, model.MinerPoweredOff, model.MinerUnreachable:
		default:
			r.Log.Printf("miner %q has disabled plug but is not powered off, state %v", minerID, miner.State)
		}
	}

	switch miner.Target {
	case model.TargetRunning, model.TargetPoweredOff, model.TargetNone:
	default:
		r.Log.Printf("miner %q has improper target state %v", minerID, miner.Target)
	}

	r.reconcileMinerState(guardID, minerID, miner, plug, now)
}

// reconcileMinerState implements the (state, target, command_ts) match in
// validate_devices that drives every miner toward its target, in the same
// arm order as the original so an ambiguous combination resolves the same
// way.
func (r *Reconciler) reconcileMinerState(guardID, minerID string, miner *model.Miner, plug *model.Plug, now time.Time) {
	switch {
	case miner.State == model.MinerPoweredOff && miner.Target == model.TargetPoweredOff:
		return
	case miner.State == model.MinerRunning && miner.Target == model.TargetRunning:
		return
	case miner.State == model.MinerPoweredOff && miner.Target == model.TargetRunning:
		broker.GuardSendCommand(r.GuardsPub, guardID, minerID, "PowerOn")
		miner.State = model.MinerStarting
		ts := now
		miner.CommandTS = &ts
		return
	case miner.State == model.MinerRunning && miner.Target == model.TargetPoweredOff:
		broker.GuardSendCommand(r.GuardsPub, guardID, minerID, "PowerOff")
		miner.State = model.MinerStopping
		ts := now
		miner.CommandTS = &ts
		return
	}

	if miner.CommandTS != nil {
		switch miner.State {
		case model.MinerStopping:
			r.retryIfExpired(guardID, minerID, miner, now, stoppingTimeout, "should be powered off")
			return
		case model.MinerHardStopping:
			r.retryIfExpired(guardID, minerID, miner, now, hardStoppingTimeout, "should be powered off")
			return
		case model.MinerStarting:
			r.retryIfExpired(guardID, minerID, miner, now, startingTimeout, "should be running")
			return
		case model.MinerRestarting:
			r.retryIfExpired(guardID, minerID, miner, now, restartingTimeout, "restarting failed")
			return
		case model.MinerHardRestarting:
			r.retryIfExpired(guardID, minerID, miner, now, hardRestartingTimeout, "hard restarting failed")
			return
		case model.MinerUndefined:
			if now.Sub(*miner.CommandTS) > undefinedTimeout {
				r.Log.Printf("miner %q has undefined state", minerID)
				broker.GuardSendCommand(r.GuardsPub, guardID, minerID, "StateReport")
				ts := now
				miner.CommandTS = &ts
			}
			return
		}
	}

	switch miner.State {
	case model.MinerAborted:
		miner.Target = model.TargetPoweredOff
		return
	case model.MinerUnreachable:
		if plug.IsEnabled {
			broker.PlugCutOff(r.PlugsPub, miner.PlugID)
		}
		miner.Target = model.TargetPoweredOff
		return
	}

	if miner.Target == model.TargetNone {
		return
	}

	r.Log.Printf("miner %q has undesirable state=%v target=%v", minerID, miner.State, miner.Target)
}

func (r *Reconciler) retryIfExpired(guardID, minerID string, miner *model.Miner, now time.Time, timeout time.Duration, reason string) {
	if now.Sub(*miner.CommandTS) > timeout {
		r.Log.Printf("miner %q %s, resetting local state", minerID, reason)
		broker.GuardSendCommand(r.GuardsPub, guardID, minerID, "StateReport")
		miner.State = model.MinerUndefined
		ts := now
		miner.CommandTS = &ts
	}
}
