// Package listeners turns raw broker.Message payloads into model.EnergyRecord
// and model.Message values, reproducing the original per-topic MQTT
// receiver loops' buffering and windowing behavior exactly.
package listeners

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mithra-energy/mithra/internal/model"
)

// SwitchboardAccumulator reassembles the four per-phase emeter subtopics a
// switchboard publishes into one complete 12-slot reading. A reading is
// complete only once all three phases have reported "energy" and
// "returned_energy" (the per-minute flow counters); "total" and
// "total_returned" (the lifetime counters) are accepted only after that
// first half is complete, and are silently dropped otherwise -- this
// mirrors the original's `if !energy_collected { continue; }` guard, which
// discards out-of-order total/total_returned publishes rather than
// buffering them for the next cycle.
type SwitchboardAccumulator struct {
	energyCollected bool
	totalCollected  bool

	energyConsumedWmin [3]*uint64
	energyReturnedWmin [3]*uint64
	totalConsumedKWh   [3]*float64
	totalReturnedKWh   [3]*float64
}

// NewSwitchboardAccumulator returns an empty accumulator.
func NewSwitchboardAccumulator() *SwitchboardAccumulator {
	return &SwitchboardAccumulator{}
}

// Feed parses one switchboard emeter publish and returns a complete
// EnergySwitchboardMessage (and true) once all twelve slots have been
// filled, resetting internal state for the next cycle. It returns
// (zero value, false) while the reading is still incomplete.
func (a *SwitchboardAccumulator) Feed(topic string, payload []byte) (model.EnergySwitchboardMessage, bool, error) {
	phase, field, err := parseEmeterTopic(topic)
	if err != nil {
		return model.EnergySwitchboardMessage{}, false, err
	}
	text := strings.TrimSpace(string(payload))

	switch field {
	case "energy":
		v, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return model.EnergySwitchboardMessage{}, false, fmt.Errorf("switchboard: bad energy payload on %s: %w", topic, err)
		}
		a.energyConsumedWmin[phase] = &v
	case "returned_energy":
		v, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return model.EnergySwitchboardMessage{}, false, fmt.Errorf("switchboard: bad returned_energy payload on %s: %w", topic, err)
		}
		a.energyReturnedWmin[phase] = &v
	case "total":
		if !a.energyCollected {
			return model.EnergySwitchboardMessage{}, false, nil
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return model.EnergySwitchboardMessage{}, false, fmt.Errorf("switchboard: bad total payload on %s: %w", topic, err)
		}
		a.totalConsumedKWh[phase] = &v
	case "total_returned":
		if !a.energyCollected {
			return model.EnergySwitchboardMessage{}, false, nil
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return model.EnergySwitchboardMessage{}, false, fmt.Errorf("switchboard: bad total_returned payload on %s: %w", topic, err)
		}
		a.totalReturnedKWh[phase] = &v
	default:
		// Unrecognized field: the original falls through to the flush
		// check unconditionally too, since only the total/total_returned
		// guard above issues an explicit continue.
	}

	if !a.energyCollected {
		a.energyCollected = allSet(a.energyConsumedWmin[:]) && allSet(a.energyReturnedWmin[:])
		return model.EnergySwitchboardMessage{}, false, nil
	}
	if !a.totalCollected {
		a.totalCollected = allSet(a.totalConsumedKWh[:]) && allSet(a.totalReturnedKWh[:])
		if !a.totalCollected {
			return model.EnergySwitchboardMessage{}, false, nil
		}
	}

	msg := model.EnergySwitchboardMessage{
		Ts: time.Now().UTC(),
		ConsumedWmin: [3]uint64{
			*a.energyConsumedWmin[0], *a.energyConsumedWmin[1], *a.energyConsumedWmin[2],
		},
		ReturnedWmin: [3]uint64{
			*a.energyReturnedWmin[0], *a.energyReturnedWmin[1], *a.energyReturnedWmin[2],
		},
		TotalConsumedKWh: [3]float64{
			*a.totalConsumedKWh[0], *a.totalConsumedKWh[1], *a.totalConsumedKWh[2],
		},
		TotalReturnedKWh: [3]float64{
			*a.totalReturnedKWh[0], *a.totalReturnedKWh[1], *a.totalReturnedKWh[2],
		},
	}

	a.energyConsumedWmin = [3]*uint64{}
	a.energyReturnedWmin = [3]*uint64{}
	a.totalConsumedKWh = [3]*float64{}
	a.totalReturnedKWh = [3]*float64{}
	a.energyCollected = false
	a.totalCollected = false

	return msg, true, nil
}

func allSet[T any](a []*T) bool {
	for _, v := range a {
		if v == nil {
			return false
		}
	}
	return true
}

// parseEmeterTopic extracts the phase index and field name from
// "shellies/<id>/emeter/<phase>/<field>".
func parseEmeterTopic(topic string) (phase int, field string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "shellies" || parts[2] != "emeter" {
		return 0, "", fmt.Errorf("switchboard: malformed emeter topic %q", topic)
	}
	idx, err := strconv.Atoi(parts[3])
	if err != nil || idx < 0 || idx > 2 {
		return 0, "", fmt.Errorf("switchboard: bad phase index in topic %q", topic)
	}
	return idx, parts[4], nil
}
