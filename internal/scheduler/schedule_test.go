package scheduler

import (
	"testing"
	"time"

	"github.com/mithra-energy/mithra/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTopology() *model.Topology {
	top := model.NewTopology("sb1")
	top.Switchboard.State = model.Available
	top.Guards["g1"] = &model.Guard{ID: "g1", State: model.Available, Miners: []string{"m1", "m2"}}
	top.Plugs["p1"] = &model.Plug{ID: "p1", MinerID: "m1", State: model.Available, IsEnabled: true}
	top.Plugs["p2"] = &model.Plug{ID: "p2", MinerID: "m2", State: model.Available, IsEnabled: true}
	top.Miners["m1"] = &model.Miner{
		ID: "m1", GuardID: "g1", PlugID: "p1", Phase: 0,
		EstimatedConsumption: 500, State: model.MinerRunning, Included: true,
	}
	top.Miners["m2"] = &model.Miner{
		ID: "m2", GuardID: "g1", PlugID: "p2", Phase: 0,
		EstimatedConsumption: 500, State: model.MinerPoweredOff, Included: true,
	}
	return top
}

func TestCollectMinersBucketsByStateWhenNoTarget(t *testing.T) {
	top := buildTopology()
	pm := CollectMiners(top)

	ids := func(cands []Candidate) []string {
		var out []string
		for _, c := range cands {
			out = append(out, c.ID)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"m1"}, ids(pm.Running[0]))
	assert.ElementsMatch(t, []string{"m2"}, ids(pm.Runnable[0]))
}

func TestCollectMinersSkipsExcludedMiners(t *testing.T) {
	top := buildTopology()
	top.Miners["m2"].Included = false
	pm := CollectMiners(top)
	assert.Empty(t, pm.Runnable[0])
}

func TestCollectMinersSkipsGuardsNotAvailable(t *testing.T) {
	top := buildTopology()
	top.Guards["g1"].State = model.ConfigExpired
	pm := CollectMiners(top)
	assert.Empty(t, pm.Running[0])
	assert.Empty(t, pm.Runnable[0])
}

func TestCollectMinersHonorsExplicitTargetOverState(t *testing.T) {
	top := buildTopology()
	top.Miners["m2"].Target = model.TargetRunning
	top.Miners["m2"].State = model.MinerStarting
	pm := CollectMiners(top)

	var runningIDs []string
	for _, c := range pm.Running[0] {
		runningIDs = append(runningIDs, c.ID)
	}
	assert.Contains(t, runningIDs, "m2")
}

func TestScheduleEnergyResourcesStopsAllWhenOverBudget(t *testing.T) {
	top := buildTopology()
	pm := CollectMiners(top)

	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	totals := EnergyTotals{
		TotalConsumedKWh: [3]float64{10, 0, 0},
		TotalReturnedKWh: [3]float64{1, 0, 0},
	}

	decision := ScheduleEnergyResources(pm, start, end, totals, time.Minute, 0.9, now)
	require.Empty(t, decision.ToRun)
	assert.ElementsMatch(t, []string{"m1", "m2"}, decision.ToStop)
}

func TestScheduleEnergyResourcesRunsExtraMinersWhenSurplusAbundant(t *testing.T) {
	top := buildTopology()
	pm := CollectMiners(top)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	totals := EnergyTotals{
		TotalConsumedKWh:       [3]float64{0.01, 0, 0},
		TotalReturnedKWh:       [3]float64{1000, 0, 0},
		LastReturnedWmin:       [3]uint64{10000, 0, 0},
		LastMinersConsumedWmin: [3]uint64{0, 0, 0},
	}

	decision := ScheduleEnergyResources(pm, start, end, totals, time.Minute, 0.9, now)
	assert.Contains(t, decision.ToRun, "m1")
}
