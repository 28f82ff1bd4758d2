package scheduler

// Candidate is one miner eligible for a knapsack pass: its id and its
// power draw in integer watts (the scheduler always works in ceil'd
// watts, never fractional power).
type Candidate struct {
	ID    string
	Watts int
}

// phasedEntry is an internal knapsack1Phases candidate tagged with which
// of the three household phases it draws from.
type phasedEntry struct {
	id    string
	watts int
	phase int
}

// dpSlot1 is one entry of the 1-D knapsack table: which candidate index
// was added to reach this exact wattage, or unset if no combination of
// candidates sums to it.
type dpSlot1 struct {
	set bool
	idx int
}

// Knapsack1 selects the 0/1 subset of candidates whose total wattage is
// as large as possible without exceeding maxPower,
// reproducing dp_knapsack1's exact reverse-fill, first-fit table
// construction (ties go to the first candidate index that reaches a given
// wattage, which in turn means earlier entries in the input slice are
// preferred when multiple subsets achieve the same sum).
//
// If no subset (including the empty one) is recorded as feasible -- which
// dp_knapsack1's walk down from maxPower treats as a failure once it would
// underflow past zero -- every candidate is returned in toStop and toRun
// is empty, matching the original's "give up, stop everything" fallback.
func Knapsack1(candidates []Candidate, maxPower int) (toRun, toStop []string) {
	if maxPower < 0 {
		maxPower = 0
	}
	dp := make([]dpSlot1, maxPower+1)

	for idx, c := range candidates {
		for i := maxPower; i > c.Watts; i-- {
			if !dp[i].set && dp[i-c.Watts].set {
				dp[i] = dpSlot1{set: true, idx: idx}
			}
		}
		if c.Watts <= maxPower && !dp[c.Watts].set {
			dp[c.Watts] = dpSlot1{set: true, idx: idx}
		}
	}

	idx := maxPower
	for !dp[idx].set {
		if idx == 0 {
			stop := make([]string, len(candidates))
			for i, c := range candidates {
				stop[i] = c.ID
			}
			return nil, stop
		}
		idx--
	}

	chosen := make(map[int]bool)
	for idx > 0 {
		i := dp[idx].idx
		chosen[i] = true
		idx -= candidates[i].Watts
	}

	for i, c := range candidates {
		if chosen[i] {
			toRun = append(toRun, c.ID)
		} else {
			toStop = append(toStop, c.ID)
		}
	}
	return toRun, toStop
}

// dpSlot3 is one entry of the 3-D (per-phase-capped) knapsack table.
type dpSlot3 struct {
	set    bool
	idx    int
	phases [3]int
}

// Knapsack3Phase is dp_knapsack2: a 0/1 knapsack over candidates drawn
// from all three household phases at once, maximizing total wattage up to
// avgPower while never letting any single phase's chosen subset exceed
// that phase's own production cap (phaseCap[p] = 0.9·phase_production[p] +
// avgPower in the caller, per Scenario 2's "exploit abundant solar"
// branch).
func Knapsack3Phase(candidates []phasedEntry, phaseCap [3]int, avgPower int) (toRun, toStop []string) {
	maxPower := avgPower
	if maxPower < 0 {
		maxPower = 0
	}
	dp := make([]dpSlot3, maxPower+1)

	for idx, c := range candidates {
		for i := maxPower; i > c.watts; i-- {
			prev := dp[i-c.watts]
			if !dp[i].set && prev.set && prev.phases[c.phase]+c.watts <= phaseCap[c.phase] {
				phases := prev.phases
				phases[c.phase] += c.watts
				dp[i] = dpSlot3{set: true, idx: idx, phases: phases}
			}
		}
		if c.watts <= maxPower && !dp[c.watts].set {
			var phases [3]int
			phases[c.phase] += c.watts
			dp[c.watts] = dpSlot3{set: true, idx: idx, phases: phases}
		}
	}

	idx := maxPower
	for !dp[idx].set {
		if idx == 0 {
			stop := make([]string, len(candidates))
			for i, c := range candidates {
				stop[i] = c.id
			}
			return nil, stop
		}
		idx--
	}

	chosen := make(map[int]bool)
	for idx > 0 {
		i := dp[idx].idx
		chosen[i] = true
		idx -= candidates[i].watts
	}

	for i, c := range candidates {
		if chosen[i] {
			toRun = append(toRun, c.id)
		} else {
			toStop = append(toStop, c.id)
		}
	}
	return toRun, toStop
}
