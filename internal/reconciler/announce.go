package reconciler

import (
	"encoding/json"
	"fmt"

	"github.com/mithra-energy/mithra/internal/model"
)

type shellyAnnouncePayload struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

type guardAnnouncePayload struct {
	ID     string               `json:"id"`
	Type   string               `json:"type"`
	Miners []guardAnnounceMiner `json:"miners"`
}

type guardAnnounceMiner struct {
	ID     string `json:"id"`
	Pinset int    `json:"pinset"`
}

// HandleShelliesAnnounce is parse_announce's "shellies/announce" branch: it
// marks the switchboard, or a configured plug, Available once its announce
// payload surfaces. An announce for an id the topology doesn't recognize,
// or a model the reconciler doesn't understand, is silently ignored --
// exactly as the original's Err(_) and id-mismatch branches do.
func HandleShelliesAnnounce(top *model.Topology, payload []byte) error {
	var msg shellyAnnouncePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("reconciler: malformed shellies announce: %w", err)
	}

	kind, ok := model.ParseShellyType(msg.Model)
	if !ok {
		return nil
	}

	switch kind {
	case model.ShellyMeter:
		if top.Switchboard.ID == msg.ID {
			top.Switchboard.State = model.Available
		}
	case model.ShellyPlug:
		if plug, ok := top.Plugs[msg.ID]; ok {
			plug.State = model.Available
		}
	}
	return nil
}

// HandleGuardsAnnounce is parse_announce's "guards/announce" branch. An
// announcing guard not present in the topology is ignored (it isn't ours
// to manage). A board type mismatch or a miner the config file never
// declared is reported as an error for the caller to treat as fatal,
// matching the original's process::exit(1) calls. A miner announced under
// a different guard or pinset than configured is skipped, which leaves
// the guard ConfigExpired. A guard that announces every configured miner
// with its configured pinset goes straight to Available, skipping the
// usual config handshake.
func HandleGuardsAnnounce(top *model.Topology, payload []byte) error {
	var msg guardAnnouncePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("reconciler: malformed guards announce: %w", err)
	}

	guard, ok := top.Guards[msg.ID]
	if !ok {
		return nil
	}

	boardType, ok := model.ParseGuardType(msg.Type)
	if !ok {
		return fmt.Errorf("reconciler: guard %q announced unknown board type %q", msg.ID, msg.Type)
	}
	if guard.BoardType != boardType {
		return fmt.Errorf("reconciler: guard %q has different board type than configured", msg.ID)
	}

	guard.State = model.ConfigExpired

	remaining := make(map[string]bool, len(guard.Miners))
	for _, id := range guard.Miners {
		remaining[id] = true
	}

	for _, am := range msg.Miners {
		miner, ok := top.Miners[am.ID]
		if !ok {
			return fmt.Errorf("reconciler: miner %q announced by guard %q is not configured", am.ID, msg.ID)
		}
		if miner.GuardID != msg.ID || miner.Pinset != am.Pinset {
			// Miner has different configuration than announced; skip it
			// rather than clearing it from remaining.
			continue
		}
		delete(remaining, am.ID)
	}

	if len(remaining) == 0 {
		guard.State = model.Available
	}
	return nil
}
