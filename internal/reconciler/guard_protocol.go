package reconciler

import (
	"strconv"
	"strings"

	"github.com/mithra-energy/mithra/internal/broker"
	"github.com/mithra-energy/mithra/internal/model"
)

// HandleGuardMessage is handle_guard_msg: it reacts to every guard-topic
// event, driving the miner state machine from guard reports and retrying
// or escalating commands whose outcome diverged from what the reconciler
// expected.
func (r *Reconciler) HandleGuardMessage(msg model.GuardMessage) {
	guard, ok := r.Topology.Guards[msg.GuardID]
	if !ok {
		r.Log.Printf("undefined guard %q", msg.GuardID)
		return
	}
	guard.LastSeen = msg.Ts

	switch data := msg.Data.(type) {
	case model.GuardAlert:
		r.handleGuardAlert(data)
	case model.GuardCommand:
		r.handleGuardCommand(msg.GuardID, data)
	case model.GuardConfigured:
		r.handleGuardConfigured(msg.GuardID, guard)
	case model.GuardPing:
		// last_seen already updated above; nothing else to do.
	case model.GuardStarted:
		r.handleGuardStarted(msg.GuardID, guard)
	case model.GuardState:
		r.handleGuardState(msg.GuardID, data)
	}
}

func (r *Reconciler) handleGuardAlert(data model.GuardAlert) {
	miner, ok := r.Topology.Miners[data.MinerID]
	if !ok || !miner.Included {
		return
	}

	switch data.Alert {
	case model.AlertPoweredOff:
		// Miner was running but is powered off now.
		miner.State = model.MinerAborted
	case model.AlertPoweredOn:
		// Miner runs unexpectedly, cut power off by plug.
		miner.State = model.MinerUnreachable
		broker.PlugCutOff(r.PlugsPub, miner.PlugID)
	}
}

func (r *Reconciler) handleGuardCommand(guardID string, data model.GuardCommand) {
	miner, ok := r.Topology.Miners[data.MinerID]
	if !ok || !miner.Included {
		return
	}

	if data.CommandStatus == model.CommandBusy {
		r.Log.Printf("mithra made illegal operations while guard %q was running a command", guardID)
		return
	}
	if data.CommandStatus == model.CommandDisallowed {
		r.Log.Printf("mithra made illegal operations to miner %q state", data.MinerID)
		return
	}

	now := r.now()

	switch data.CommandStatus {
	case model.CommandDone:
		switch {
		case miner.State == model.MinerStarting && data.MinerState == model.MinerRunning,
			miner.State == model.MinerStopping && data.MinerState == model.MinerPoweredOff,
			miner.State == model.MinerHardStopping && data.MinerState == model.MinerPoweredOff,
			miner.State == model.MinerRestarting && data.MinerState == model.MinerRunning,
			miner.State == model.MinerHardRestarting && data.MinerState == model.MinerRunning:
			// Guard returns that command execution succeeded.
			miner.State = data.MinerState
			miner.CommandTS = nil
		default:
			r.Log.Printf("miner %q wrong state: guard reported %v, mithra has %v", data.MinerID, data.MinerState, miner.State)
			broker.GuardSendCommand(r.GuardsPub, guardID, data.MinerID, "StateReport")
			miner.State = model.MinerUndefined
			miner.CommandTS = &now
		}

	case model.CommandFailed:
		switch {
		case miner.State == model.MinerStopping && data.MinerState == model.MinerUnreachable:
			// Try hardstop.
			broker.GuardSendCommand(r.GuardsPub, guardID, data.MinerID, "HardStop")
			miner.State = model.MinerHardStopping
			miner.CommandTS = &now
		case miner.State == model.MinerHardStopping && data.MinerState == model.MinerUnreachable:
			broker.PlugCutOff(r.PlugsPub, miner.PlugID)
			miner.State = model.MinerUnreachable
			miner.Target = model.TargetPoweredOff
			miner.CommandTS = nil
		case (miner.State == model.MinerStarting || miner.State == model.MinerRestarting || miner.State == model.MinerHardRestarting) &&
			data.MinerState == model.MinerAborted:
			miner.State = data.MinerState
			miner.Target = model.TargetPoweredOff
			miner.CommandTS = nil
		default:
			r.Log.Printf("miner %q wrong state: guard reported %v, mithra has %v", data.MinerID, data.MinerState, miner.State)
			broker.GuardSendCommand(r.GuardsPub, guardID, data.MinerID, "StateReport")
			miner.State = model.MinerUndefined
			miner.CommandTS = &now
		}
	}
}

func (r *Reconciler) handleGuardConfigured(guardID string, guard *model.Guard) {
	if guard.State != model.StartingUp {
		r.Log.Printf("guard %q sent configured without a prior started message", guardID)
		broker.GuardReset(r.GuardsPub, guardID)
		return
	}

	guard.State = model.Available

	now := r.now()
	for _, minerID := range guard.Miners {
		miner, ok := r.Topology.Miners[minerID]
		if !ok || !miner.Included {
			continue
		}
		broker.GuardSendCommand(r.GuardsPub, guardID, minerID, "StateReport")
		ts := now
		miner.CommandTS = &ts
	}
}

func (r *Reconciler) handleGuardStarted(guardID string, guard *model.Guard) {
	guard.State = model.StartingUp

	for _, minerID := range guard.Miners {
		if miner, ok := r.Topology.Miners[minerID]; ok {
			miner.State = model.MinerUndefined
		}
	}

	payload := GuardConfigPayload(guard, r.Topology.Miners)
	if err := r.GuardsPub.Publish(broker.GuardConfigTopic(guardID), payload); err != nil {
		r.Log.Printf("publish guard config for %q: %v", guardID, err)
	}
}

func (r *Reconciler) handleGuardState(guardID string, data model.GuardState) {
	if data.State == model.MinerUndefined {
		r.Log.Printf("guard %q sent undefined miner state", guardID)
		return
	}

	miner, ok := r.Topology.Miners[data.MinerID]
	if !ok || !miner.Included {
		return
	}

	if miner.State != model.MinerUndefined {
		r.Log.Printf("miner %q state report on guard %q while state already known", data.MinerID, guardID)
		return
	}

	switch data.State {
	case model.MinerStarting, model.MinerStopping, model.MinerHardStopping, model.MinerRestarting, model.MinerHardRestarting:
		ts := r.now()
		miner.CommandTS = &ts
	case model.MinerRunning, model.MinerPoweredOff, model.MinerAborted, model.MinerUnreachable:
		miner.CommandTS = nil
	}
	miner.State = data.State
}

// GuardConfigPayload renders a guard's pinset assignment as get_guard_config
// does: "<count> <miner id> <pinset> <miner id> <pinset> ...".
func GuardConfigPayload(guard *model.Guard, miners map[string]*model.Miner) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(guard.Miners)))
	for _, minerID := range guard.Miners {
		miner := miners[minerID]
		b.WriteByte(' ')
		b.WriteString(minerID)
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(miner.Pinset))
	}
	return b.String()
}
