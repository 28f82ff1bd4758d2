package listeners

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mithra-energy/mithra/internal/model"
)

// PlugState is the per-miner bookkeeping a PlugAccumulator carries between
// publishes: the last time any reading arrived, the running lifetime energy
// counter, and the windowed power peak.
type PlugState struct {
	LastReceived   *time.Time
	EnergyConsumed uint64
	Power          float64
	Phase          int
	Name           string
}

// PlugAccumulator reproduces the original miners_loop's 90-second window:
// within 90s of the last reading for a miner, successive power samples are
// maxed rather than replaced, and an energy delta is only emitted for
// samples that land inside that same window and that increase the lifetime
// counter. A reading more than 90s stale starts a fresh window instead of
// emitting a delta, since the gap likely means the counter was reset by a
// power cycle and the delta would be meaningless.
type PlugAccumulator struct {
	window time.Duration
	miners map[string]*PlugState
}

// NewPlugAccumulator builds an accumulator seeded with one PlugState per
// tracked miner (keyed by plug id, matching the original's per-connection
// miners map).
func NewPlugAccumulator(seed map[string]*PlugState) *PlugAccumulator {
	if seed == nil {
		seed = make(map[string]*PlugState)
	}
	return &PlugAccumulator{window: 90 * time.Second, miners: seed}
}

// Feed parses one plug relay publish. It returns (message, true) when an
// energy delta was emitted; "power" samples never themselves produce a
// message, only updating the tracked peak for the next "energy" sample.
func (a *PlugAccumulator) Feed(plugID, field string, payload []byte, now time.Time) (model.EnergyMinerMessage, bool, error) {
	state, ok := a.miners[plugID]
	if !ok {
		return model.EnergyMinerMessage{}, false, fmt.Errorf("plugs: unknown plug id %q", plugID)
	}
	text := strings.TrimSpace(string(payload))

	switch field {
	case "power":
		p, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return model.EnergyMinerMessage{}, false, fmt.Errorf("plugs: bad power payload for %q: %w", plugID, err)
		}
		if state.LastReceived != nil && state.LastReceived.Add(a.window).After(now) {
			if p > state.Power {
				state.Power = p
			}
		} else {
			state.Power = p
		}
		return model.EnergyMinerMessage{}, false, nil

	case "energy":
		consumedNow, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return model.EnergyMinerMessage{}, false, fmt.Errorf("plugs: bad energy payload for %q: %w", plugID, err)
		}

		var emit bool
		var msg model.EnergyMinerMessage
		if state.LastReceived != nil && state.LastReceived.Add(a.window).After(now) && state.EnergyConsumed < consumedNow {
			msg = model.EnergyMinerMessage{
				Ts:           time.Now().UTC(),
				MinerID:      state.Name,
				ConsumedWmin: consumedNow - state.EnergyConsumed,
				Phase:        state.Phase,
				PowerW:       state.Power,
			}
			emit = true
		}

		state.EnergyConsumed = consumedNow
		t := now
		state.LastReceived = &t
		return msg, emit, nil

	default:
		return model.EnergyMinerMessage{}, false, nil
	}
}

// ParseRelaySubtopic extracts the plug id and field from
// "shellies/<plug-id>/relay/0/<field>".
func ParseRelaySubtopic(topic string) (plugID, field string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "shellies" || parts[2] != "relay" || parts[3] != "0" {
		return "", "", fmt.Errorf("plugs: malformed relay topic %q", topic)
	}
	return parts[1], parts[4], nil
}

// ParseRelayState parses a bare "shellies/<plug-id>/relay/0" publish into
// its on/off boolean, used for the plug listener's relay-state topic
// separate from the power/energy subtopics.
func ParseRelayState(payload []byte) (bool, error) {
	text := strings.ToLower(strings.TrimSpace(string(payload)))
	switch text {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("plugs: unrecognized relay payload %q", text)
	}
}
