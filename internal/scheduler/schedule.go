package scheduler

import (
	"math"
	"time"

	"github.com/mithra-energy/mithra/internal/model"
)

// monthEnergyUtilization estimates, for each calendar month (January at
// index 0), the fraction of a day's solar production that is realized by
// the time of a scheduling tick -- winter months front-load less of their
// output than summer months, so the same instantaneous production figure
// implies less "safe" headroom to allocate to miners in December than in
// June.
var monthEnergyUtilization = [12]float64{
	0.4, 0.4, 0.55,
	0.7, 0.8, 0.8,
	0.8, 0.8, 0.7,
	0.55, 0.4, 0.4,
}

// PhaseMiners buckets a topology's included miners by household phase,
// separately tracking miners already running (or targeted to run) from
// miners that are stopped or stoppable (or targeted to stop).
type PhaseMiners struct {
	Running  [3][]Candidate
	Runnable [3][]Candidate
}

// CollectMiners classifies every included miner on an Available guard and
// an Available, enabled plug into the Running or Runnable bucket for its
// phase, exactly reproducing collect_miners's three-way branch on target
// state: an explicit Running target buckets as running (unless the miner
// is already terminal), an explicit PoweredOff target buckets as runnable,
// and no target at all falls back to the miner's own reported state.
func CollectMiners(top *model.Topology) PhaseMiners {
	var out PhaseMiners

	for _, guard := range top.Guards {
		if guard.State != model.Available {
			continue
		}
		for _, minerID := range guard.Miners {
			miner, ok := top.Miners[minerID]
			if !ok || !miner.Included {
				continue
			}
			plug, ok := top.Plugs[miner.PlugID]
			if !ok || plug.State != model.Available || !plug.IsEnabled {
				continue
			}

			phase := miner.Phase
			watts := miner.PowerWatts()
			cand := Candidate{ID: miner.ID, Watts: watts}

			switch miner.Target {
			case model.TargetRunning:
				if !miner.IsTerminal() {
					out.Running[phase] = append(out.Running[phase], cand)
				}
			case model.TargetPoweredOff:
				if !miner.IsTerminal() {
					out.Runnable[phase] = append(out.Runnable[phase], cand)
				}
			case model.TargetNone:
				switch miner.State {
				case model.MinerPoweredOff, model.MinerStopping, model.MinerHardStopping:
					out.Runnable[phase] = append(out.Runnable[phase], cand)
				case model.MinerRunning, model.MinerStarting, model.MinerRestarting, model.MinerHardRestarting:
					out.Running[phase] = append(out.Running[phase], cand)
				}
			}
		}
	}

	return out
}

// EnergyTotals carries the accumulators the reconciler's main loop has
// been maintaining since the last scheduling tick: switchboard lifetime
// counters, per-phase flow since the last tick, and grid-drawn miner
// consumption for the current billing period.
type EnergyTotals struct {
	TotalConsumedKWh       [3]float64
	TotalReturnedKWh       [3]float64
	MinerGridConsumedWmin  [3]uint64
	LastConsumedWmin       [3]uint64
	LastReturnedWmin       [3]uint64
	LastMinersConsumedWmin [3]uint64
}

// Decision is the outcome of one scheduling tick: the miner ids to bring
// up and the miner ids to bring down. A miner named in neither slice is
// left alone.
type Decision struct {
	ToRun  []string
	ToStop []string
}

// ScheduleEnergyResources is schedule_energy_resources: it decides, given
// the current billing period's energy accounting, which miners to run and
// which to stop. RecoveryRatio is the contract's fraction of exported
// energy that may be drawn back without charge.
func ScheduleEnergyResources(
	miners PhaseMiners,
	periodStart, periodEnd time.Time,
	totals EnergyTotals,
	lastScheduleElapsed time.Duration,
	recoveryRatio float64,
	now time.Time,
) Decision {
	month := int(now.Month()) - 1

	var sumTotalConsumedKWh, sumTotalReturnedKWh float64
	for i := 0; i < 3; i++ {
		sumTotalConsumedKWh += totals.TotalConsumedKWh[i]
		sumTotalReturnedKWh += totals.TotalReturnedKWh[i]
	}
	sumRecoverableKWh := sumTotalReturnedKWh * recoveryRatio

	// Scenario 1: consumed more than can ever be recovered -- stop
	// everything, there is no scheduling budget left this period.
	if sumTotalConsumedKWh >= sumRecoverableKWh {
		var toStop []string
		for i := 0; i < 3; i++ {
			for _, c := range miners.Running[i] {
				toStop = append(toStop, c.ID)
			}
			for _, c := range miners.Runnable[i] {
				toStop = append(toStop, c.ID)
			}
		}
		return Decision{ToStop: toStop}
	}

	var sumMinerGridConsumedWmin float64
	for _, v := range totals.MinerGridConsumedWmin {
		sumMinerGridConsumedWmin += float64(v)
	}

	sinceStart := now.Sub(periodStart).Seconds()
	untilEnd := periodEnd.Sub(now).Seconds()

	avgPowerConsumption := (sumTotalConsumedKWh*1000.0*3600.0 - sumMinerGridConsumedWmin*60.0) / sinceStart
	availablePower := (sumRecoverableKWh * 1000.0 * 3600.0) / untilEnd
	effectiveAvailablePower := availablePower - avgPowerConsumption

	var lastProductionW, lastEffectivePowerW [3]float64
	elapsed := lastScheduleElapsed.Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	for i := 0; i < 3; i++ {
		produced := float64(totals.LastReturnedWmin[i]) + float64(totals.LastMinersConsumedWmin[i]) - float64(totals.LastConsumedWmin[i])
		if produced < 0 {
			produced = 0
		}
		productionW := produced * 60.0 / elapsed
		lastProductionW[i] = productionW
		lastEffectivePowerW[i] = math.Floor(productionW * monthEnergyUtilization[month])
	}

	// Scenario 2: solar is running well ahead of what the period needs --
	// pool all three phases into one knapsack pass and let miners on any
	// phase soak up the surplus, each capped at 90% of its own phase's
	// last-observed production plus the shared average-power budget so no
	// single phase gets starved.
	if effectiveAvailablePower >= 1.0 {
		var all []phasedEntry
		for i := 0; i < 3; i++ {
			for _, c := range miners.Running[i] {
				all = append(all, phasedEntry{id: c.ID, watts: c.Watts, phase: i})
			}
			for _, c := range miners.Runnable[i] {
				all = append(all, phasedEntry{id: c.ID, watts: c.Watts, phase: i})
			}
		}

		avgPower := int(math.Floor(effectiveAvailablePower))
		var phaseCap [3]int
		for i := 0; i < 3; i++ {
			phaseCap[i] = int(math.Floor(lastProductionW[i]*0.9)) + avgPower
		}

		toRun, toStop := Knapsack3Phase(all, phaseCap, avgPower)
		return Decision{ToRun: toRun, ToStop: toStop}
	}

	// Scenario 3: track production trend since the last tick, per phase
	// independently -- if this phase is producing at least as much as its
	// running miners already draw, try to add runnable miners up to that
	// budget; otherwise shed running miners down to it.
	var toRun, toStop []string
	for i := 0; i < 3; i++ {
		var runningPowerW float64
		for _, c := range miners.Running[i] {
			runningPowerW += math.Ceil(float64(c.Watts))
		}

		budget := int(lastEffectivePowerW[i])

		if runningPowerW <= lastEffectivePowerW[i] {
			run, stop := Knapsack1(miners.Runnable[i], budget)
			toRun = append(toRun, run...)
			toStop = append(toStop, stop...)
			for _, c := range miners.Running[i] {
				toRun = append(toRun, c.ID)
			}
		} else {
			run, stop := Knapsack1(miners.Running[i], budget)
			toRun = append(toRun, run...)
			toStop = append(toStop, stop...)
			for _, c := range miners.Runnable[i] {
				toStop = append(toStop, c.ID)
			}
		}
	}

	return Decision{ToRun: toRun, ToStop: toStop}
}
