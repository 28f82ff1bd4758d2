package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMinerStateCaseInsensitive(t *testing.T) {
	s, ok := ParseMinerState("rUnNiNg")
	require.True(t, ok)
	assert.Equal(t, MinerRunning, s)

	_, ok = ParseMinerState("not-a-state")
	assert.False(t, ok)
}

func TestPowerWattsPrefersObservedOverEstimate(t *testing.T) {
	m := &Miner{EstimatedConsumption: 1200}
	assert.Equal(t, 1200, m.PowerWatts())

	observed := 850.2
	m.PowerConsumption = &observed
	assert.Equal(t, 851, m.PowerWatts(), "power must round up to the nearest watt")
}

func TestIsSteadyMatchesCommandTsInvariant(t *testing.T) {
	steady := []MinerState{MinerRunning, MinerPoweredOff, MinerAborted, MinerUnreachable}
	unsteady := []MinerState{MinerUndefined, MinerStarting, MinerStopping, MinerHardStopping, MinerRestarting, MinerHardRestarting}

	for _, s := range steady {
		m := &Miner{State: s}
		assert.Truef(t, m.IsSteady(), "%s should be steady", s)
	}
	for _, s := range unsteady {
		m := &Miner{State: s}
		assert.Falsef(t, m.IsSteady(), "%s should not be steady", s)
	}
}

func TestIsTerminalImpliesPoweredOffTarget(t *testing.T) {
	for _, s := range []MinerState{MinerAborted, MinerUnreachable} {
		m := &Miner{State: s, Target: TargetPoweredOff}
		assert.True(t, m.IsTerminal())
	}
	m := &Miner{State: MinerRunning}
	assert.False(t, m.IsTerminal())
}

func TestCommandTsStampedOnStarting(t *testing.T) {
	now := time.Now()
	m := &Miner{State: MinerStarting, CommandTS: &now}
	assert.NotNil(t, m.CommandTS)
	assert.False(t, m.IsSteady())
}
