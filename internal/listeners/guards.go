package listeners

import (
	"fmt"
	"strings"
	"time"

	"github.com/mithra-energy/mithra/internal/model"
)

// ParseGuardTopic classifies a "guards/..." publish and extracts the
// guard id (and, where applicable, the miner id) embedded in the topic
// path, mirroring the per-guard subscription set wired up in run().
//
//   guards/started                          -> kind "started"
//   guards/<gid>/configured                 -> kind "configured"
//   guards/<gid>/ping                       -> kind "ping"
//   guards/<gid>/miners/<mid>/alert         -> kind "alert"
//   guards/<gid>/miners/<mid>/command       -> kind "command"
//   guards/<gid>/miners/<mid>/status        -> kind "status"
func ParseGuardTopic(topic string) (kind, guardID, minerID string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 1 || parts[0] != "guards" {
		return "", "", "", fmt.Errorf("guards: not a guard topic %q", topic)
	}

	switch len(parts) {
	case 2:
		if parts[1] == "started" {
			return "started", "", "", nil
		}
	case 3:
		switch parts[2] {
		case "configured":
			return "configured", parts[1], "", nil
		case "ping":
			return "ping", parts[1], "", nil
		}
	case 5:
		if parts[2] == "miners" {
			switch parts[4] {
			case "alert", "command", "status":
				return parts[4], parts[1], parts[3], nil
			}
		}
	}
	return "", "", "", fmt.Errorf("guards: unrecognized guard topic %q", topic)
}

// ParseGuardPayload turns a classified guard publish into a GuardMessage.
// Command reports carry both the outcome and the resulting miner state as
// a keyed, comma-separated pair ("command=Done, state=Running"); alert and
// status payloads carry a single bare token; started/configured/ping carry
// no payload at all.
func ParseGuardPayload(kind, guardID, minerID string, payload []byte, now time.Time) (model.GuardMessage, error) {
	text := strings.TrimSpace(string(payload))

	switch kind {
	case "started":
		// "guards/started" is a broadcast topic with no guard id in its
		// path, so the freshly booted guard must identify itself in the
		// payload body instead.
		id := text
		if id == "" {
			return model.GuardMessage{}, fmt.Errorf("guards: started payload missing guard id")
		}
		return model.GuardMessage{GuardID: id, Ts: now, Data: model.GuardStarted{}}, nil

	case "configured":
		return model.GuardMessage{GuardID: guardID, Ts: now, Data: model.GuardConfigured{}}, nil

	case "ping":
		return model.GuardMessage{GuardID: guardID, Ts: now, Data: model.GuardPing{}}, nil

	case "alert":
		alert, ok := model.ParseMinerAlert(text)
		if !ok {
			return model.GuardMessage{}, fmt.Errorf("guards: unrecognized alert payload %q for miner %q", text, minerID)
		}
		return model.GuardMessage{GuardID: guardID, Ts: now, Data: model.GuardAlert{MinerID: minerID, Alert: alert}}, nil

	case "status":
		state, ok := model.ParseMinerState(text)
		if !ok {
			return model.GuardMessage{}, fmt.Errorf("guards: unrecognized state payload %q for miner %q", text, minerID)
		}
		return model.GuardMessage{GuardID: guardID, Ts: now, Data: model.GuardState{MinerID: minerID, State: state}}, nil

	case "command":
		fields := strings.Split(text, ",")
		if len(fields) != 2 {
			return model.GuardMessage{}, fmt.Errorf("guards: malformed command payload %q for miner %q", text, minerID)
		}
		statusText := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(fields[0]), "command="))
		stateText := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(fields[1]), "state="))
		status, ok := model.ParseCommandStatus(statusText)
		if !ok {
			return model.GuardMessage{}, fmt.Errorf("guards: unrecognized command status %q for miner %q", statusText, minerID)
		}
		state, ok := model.ParseMinerState(stateText)
		if !ok {
			return model.GuardMessage{}, fmt.Errorf("guards: unrecognized command state %q for miner %q", stateText, minerID)
		}
		return model.GuardMessage{
			GuardID: guardID,
			Ts:      now,
			Data:    model.GuardCommand{MinerID: minerID, CommandStatus: status, MinerState: state},
		}, nil

	default:
		return model.GuardMessage{}, fmt.Errorf("guards: unhandled topic kind %q", kind)
	}
}
