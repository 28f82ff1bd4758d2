package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/mithra-energy/mithra/internal/broker"
	"github.com/mithra-energy/mithra/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMinerEnergyAccumulatesPerPhase(t *testing.T) {
	r, _, _ := newTestReconciler()
	r.dispatch(model.EnergyMinerMessage{MinerID: "m1", ConsumedWmin: 40, Phase: 0, PowerW: 500})

	assert.Equal(t, uint64(40), r.acct.MinersConsumedWmin[0])
	assert.Equal(t, uint64(40), r.lastMinersConsumedWmin[0])
	require.NotNil(t, r.Topology.Miners["m1"].PowerConsumption)
	assert.Equal(t, 500.0, *r.Topology.Miners["m1"].PowerConsumption)
}

func TestHandleSwitchboardEnergyUpdatesTotalsAndCountsMessage(t *testing.T) {
	r, _, _ := newTestReconciler()
	r.dispatch(model.EnergySwitchboardMessage{
		Ts:               r.now(),
		ConsumedWmin:     [3]uint64{10, 0, 0},
		ReturnedWmin:     [3]uint64{5, 0, 0},
		TotalConsumedKWh: [3]float64{1, 0, 0},
		TotalReturnedKWh: [3]float64{2, 0, 0},
	})

	assert.Equal(t, 1, r.switchboardReceivedMsgs)
	assert.Equal(t, uint64(10), r.lastSwitchboardConsumedWmin[0])
	assert.Equal(t, [3]float64{1, 0, 0}, r.actualTotalConsumedKWh)
	assert.Equal(t, r.now(), r.Topology.Switchboard.LastSeen)
}

func TestHandleUserMessageExcludeUnsubscribesAndMarksUndefined(t *testing.T) {
	r, guards, plugs := newTestReconciler()
	delivered := false
	handler := func(broker.Message) { delivered = true }
	require.NoError(t, broker.SubscribeMiner(guards, "g1", "m1", handler))
	require.NoError(t, broker.SubscribePlug(plugs, "p1", handler))
	r.dispatch(model.UserMessage{MinerID: "m1", Command: model.UserExclude})

	miner := r.Topology.Miners["m1"]
	assert.False(t, miner.Included)
	assert.Equal(t, model.MinerUndefined, miner.State)
	guards.Deliver(broker.MinerAlertTopic("g1", "m1"), []byte("PoweredOff"))
	guards.Deliver(broker.MinerCommandTopic("g1", "m1"), []byte("x"))
	guards.Deliver(broker.MinerStatusTopic("g1", "m1"), []byte("x"))
	plugs.Deliver(broker.PlugPowerTopic("p1"), []byte("1"))
	plugs.Deliver(broker.PlugEnergyTopic("p1"), []byte("1"))
	assert.False(t, delivered, "exclude must drop the miner's guard and plug subscriptions")
}

func TestHandleUserMessageExcludeIgnoredWhenAlreadyExcluded(t *testing.T) {
	r, _, _ := newTestReconciler()
	r.Topology.Miners["m1"].Included = false
	r.dispatch(model.UserMessage{MinerID: "m1", Command: model.UserExclude})
	assert.False(t, r.Topology.Miners["m1"].Included)
}

func TestHandleUserMessageIncludeResubscribesAndQueriesState(t *testing.T) {
	r, guards, _ := newTestReconciler()
	r.Topology.Miners["m1"].Included = false

	r.dispatch(model.UserMessage{MinerID: "m1", Command: model.UserInclude})

	miner := r.Topology.Miners["m1"]
	assert.True(t, miner.Included)
	assert.Equal(t, model.MinerUndefined, miner.State)
	require.NotNil(t, miner.CommandTS)
	pub, ok := guards.LastPublished(broker.MinerCommandPublishTopic("g1", "m1"))
	require.True(t, ok)
	assert.Equal(t, "StateReport", pub.Payload)
}

func TestTickClearsAllTargetsWhenSwitchboardUnavailable(t *testing.T) {
	r, _, _ := newTestReconciler()
	r.Topology.Switchboard.State = model.Inaccessible
	r.Topology.Switchboard.LastSeen = r.now().Add(-200 * time.Second)
	r.Topology.Guards["g1"].LastSeen = r.now()
	r.Topology.Miners["m1"].Target = model.TargetRunning

	r.PeriodEnd = r.now().Add(24 * time.Hour)
	shutdown := r.tick()

	assert.False(t, shutdown)
	assert.Equal(t, model.TargetPoweredOff, r.Topology.Miners["m1"].Target)
	assert.Equal(t, 0, r.switchboardReceivedMsgs)
}

func TestTickSignalsShutdownNearPeriodEnd(t *testing.T) {
	r, _, _ := newTestReconciler()
	r.Topology.Switchboard.LastSeen = r.now()
	r.Topology.Guards["g1"].LastSeen = r.now()
	r.Topology.Plugs["p1"].LastSeen = r.now()
	r.PeriodEnd = r.now().Add(10 * time.Second)

	assert.True(t, r.tick())
}

func TestRunStopsWhenContextCanceled(t *testing.T) {
	r, _, _ := newTestReconciler()
	r.PeriodEnd = r.now().Add(24 * time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	messages := make(chan model.Message)

	done := make(chan struct{})
	go func() {
		r.Run(ctx, messages)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
