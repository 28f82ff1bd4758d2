package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKnapsack1PicksHighestValueWithinBudget(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", Watts: 300},
		{ID: "b", Watts: 500},
		{ID: "c", Watts: 700},
	}
	toRun, toStop := Knapsack1(candidates, 800)

	assert.ElementsMatch(t, []string{"a", "b"}, toRun)
	assert.ElementsMatch(t, []string{"c"}, toStop)
}

func TestKnapsack1ExactFitUsesWholeBudget(t *testing.T) {
	candidates := []Candidate{{ID: "a", Watts: 400}, {ID: "b", Watts: 400}}
	toRun, toStop := Knapsack1(candidates, 400)
	assert.ElementsMatch(t, []string{"a"}, toRun)
	assert.ElementsMatch(t, []string{"b"}, toStop)
}

func TestKnapsack1NoFeasibleSolutionStopsEverything(t *testing.T) {
	candidates := []Candidate{{ID: "a", Watts: 10}, {ID: "b", Watts: 20}}
	toRun, toStop := Knapsack1(candidates, -1)
	assert.Empty(t, toRun)
	assert.ElementsMatch(t, []string{"a", "b"}, toStop)
}

func TestKnapsack1EmptyCandidatesYieldsEmptyResult(t *testing.T) {
	toRun, toStop := Knapsack1(nil, 1000)
	assert.Empty(t, toRun)
	assert.Empty(t, toStop)
}

func TestKnapsack3PhaseRespectsPerPhaseCap(t *testing.T) {
	candidates := []phasedEntry{
		{id: "a", watts: 100, phase: 0},
		{id: "b", watts: 100, phase: 0},
		{id: "c", watts: 100, phase: 1},
	}
	// phase 0 can only hold one of a/b
	toRun, toStop := Knapsack3Phase(candidates, [3]int{100, 100, 100}, 300)

	var phase0Run int
	for _, id := range toRun {
		if id == "a" || id == "b" {
			phase0Run++
		}
	}
	assert.LessOrEqual(t, phase0Run, 1)
	assert.Contains(t, toRun, "c")
	_ = toStop
}
