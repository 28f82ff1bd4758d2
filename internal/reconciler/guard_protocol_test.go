package reconciler

import (
	"log"
	"testing"
	"time"

	"github.com/mithra-energy/mithra/internal/broker"
	"github.com/mithra-energy/mithra/internal/config"
	"github.com/mithra-energy/mithra/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler() (*Reconciler, *broker.Fake, *broker.Fake) {
	top := model.NewTopology("sb1")
	top.Guards["g1"] = &model.Guard{ID: "g1", BoardType: model.GuardESP32, Miners: []string{"m1"}}
	top.Plugs["p1"] = &model.Plug{ID: "p1", MinerID: "m1", IsEnabled: true}
	top.Miners["m1"] = &model.Miner{ID: "m1", GuardID: "g1", PlugID: "p1", Included: true, State: model.MinerRunning}

	guards := broker.NewFake()
	plugs := broker.NewFake()
	records := make(chan model.EnergyRecord, 8)

	r := New(top, config.Contract{RecoveryRatio: 0.9}, time.Time{}, time.Time{}, Accounting{}, guards, guards, plugs, plugs, HandlerFactory{}, records, log.New(log.Writer(), "", 0))
	fixed := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }
	return r, guards, plugs
}

func TestHandleGuardAlertPoweredOffAbortsMiner(t *testing.T) {
	r, _, _ := newTestReconciler()
	r.HandleGuardMessage(model.GuardMessage{
		GuardID: "g1", Ts: r.now(),
		Data: model.GuardAlert{MinerID: "m1", Alert: model.AlertPoweredOff},
	})
	assert.Equal(t, model.MinerAborted, r.Topology.Miners["m1"].State)
}

func TestHandleGuardAlertPoweredOnCutsPowerAndMarksUnreachable(t *testing.T) {
	r, _, plugs := newTestReconciler()
	r.HandleGuardMessage(model.GuardMessage{
		GuardID: "g1", Ts: r.now(),
		Data: model.GuardAlert{MinerID: "m1", Alert: model.AlertPoweredOn},
	})
	assert.Equal(t, model.MinerUnreachable, r.Topology.Miners["m1"].State)
	pub, ok := plugs.LastPublished(broker.PlugCommandTopic("p1"))
	require.True(t, ok)
	assert.Equal(t, "off", pub.Payload)
}

func TestHandleGuardCommandDoneAdvancesExpectedTransition(t *testing.T) {
	r, _, _ := newTestReconciler()
	r.Topology.Miners["m1"].State = model.MinerStarting
	r.HandleGuardMessage(model.GuardMessage{
		GuardID: "g1", Ts: r.now(),
		Data: model.GuardCommand{MinerID: "m1", CommandStatus: model.CommandDone, MinerState: model.MinerRunning},
	})
	miner := r.Topology.Miners["m1"]
	assert.Equal(t, model.MinerRunning, miner.State)
	assert.Nil(t, miner.CommandTS)
}

func TestHandleGuardCommandDoneWithUnexpectedStateResetsToUndefined(t *testing.T) {
	r, guards, _ := newTestReconciler()
	r.Topology.Miners["m1"].State = model.MinerPoweredOff
	r.HandleGuardMessage(model.GuardMessage{
		GuardID: "g1", Ts: r.now(),
		Data: model.GuardCommand{MinerID: "m1", CommandStatus: model.CommandDone, MinerState: model.MinerRunning},
	})
	miner := r.Topology.Miners["m1"]
	assert.Equal(t, model.MinerUndefined, miner.State)
	require.NotNil(t, miner.CommandTS)
	pub, ok := guards.LastPublished(broker.MinerCommandPublishTopic("g1", "m1"))
	require.True(t, ok)
	assert.Equal(t, "StateReport", pub.Payload)
}

func TestHandleGuardCommandFailedStoppingEscalatesToHardStop(t *testing.T) {
	r, guards, _ := newTestReconciler()
	r.Topology.Miners["m1"].State = model.MinerStopping
	r.HandleGuardMessage(model.GuardMessage{
		GuardID: "g1", Ts: r.now(),
		Data: model.GuardCommand{MinerID: "m1", CommandStatus: model.CommandFailed, MinerState: model.MinerUnreachable},
	})
	miner := r.Topology.Miners["m1"]
	assert.Equal(t, model.MinerHardStopping, miner.State)
	pub, ok := guards.LastPublished(broker.MinerCommandPublishTopic("g1", "m1"))
	require.True(t, ok)
	assert.Equal(t, "HardStop", pub.Payload)
}

func TestHandleGuardCommandFailedHardStoppingCutsPlugAndTargetsPoweredOff(t *testing.T) {
	r, _, plugs := newTestReconciler()
	r.Topology.Miners["m1"].State = model.MinerHardStopping
	r.HandleGuardMessage(model.GuardMessage{
		GuardID: "g1", Ts: r.now(),
		Data: model.GuardCommand{MinerID: "m1", CommandStatus: model.CommandFailed, MinerState: model.MinerUnreachable},
	})
	miner := r.Topology.Miners["m1"]
	assert.Equal(t, model.MinerUnreachable, miner.State)
	assert.Equal(t, model.TargetPoweredOff, miner.Target)
	_, ok := plugs.LastPublished(broker.PlugCommandTopic("p1"))
	require.True(t, ok)
}

func TestHandleGuardCommandBusyIsIgnored(t *testing.T) {
	r, guards, _ := newTestReconciler()
	r.Topology.Miners["m1"].State = model.MinerStarting
	r.HandleGuardMessage(model.GuardMessage{
		GuardID: "g1", Ts: r.now(),
		Data: model.GuardCommand{MinerID: "m1", CommandStatus: model.CommandBusy, MinerState: model.MinerRunning},
	})
	assert.Equal(t, model.MinerStarting, r.Topology.Miners["m1"].State)
	assert.Empty(t, guards.Published)
}

func TestHandleGuardConfiguredWithoutStartedResetsGuard(t *testing.T) {
	r, guards, _ := newTestReconciler()
	r.Topology.Guards["g1"].State = model.Available
	r.HandleGuardMessage(model.GuardMessage{GuardID: "g1", Ts: r.now(), Data: model.GuardConfigured{}})
	pub, ok := guards.LastPublished(broker.GuardCommandTopic("g1"))
	require.True(t, ok)
	assert.Equal(t, "reset", pub.Payload)
}

func TestHandleGuardConfiguredAfterStartedQueriesEveryIncludedMiner(t *testing.T) {
	r, guards, _ := newTestReconciler()
	r.Topology.Guards["g1"].State = model.StartingUp
	r.HandleGuardMessage(model.GuardMessage{GuardID: "g1", Ts: r.now(), Data: model.GuardConfigured{}})
	assert.Equal(t, model.Available, r.Topology.Guards["g1"].State)
	pub, ok := guards.LastPublished(broker.MinerCommandPublishTopic("g1", "m1"))
	require.True(t, ok)
	assert.Equal(t, "StateReport", pub.Payload)
}

func TestHandleGuardStartedPublishesPinsetConfig(t *testing.T) {
	r, guards, _ := newTestReconciler()
	r.Topology.Miners["m1"].Pinset = 2
	r.HandleGuardMessage(model.GuardMessage{GuardID: "g1", Ts: r.now(), Data: model.GuardStarted{}})
	assert.Equal(t, model.StartingUp, r.Topology.Guards["g1"].State)
	assert.Equal(t, model.MinerUndefined, r.Topology.Miners["m1"].State)
	pub, ok := guards.LastPublished(broker.GuardConfigTopic("g1"))
	require.True(t, ok)
	assert.Equal(t, "1 m1 2", pub.Payload)
}

func TestHandleGuardStateSetsCommandTSForTransitionalStates(t *testing.T) {
	r, _, _ := newTestReconciler()
	r.Topology.Miners["m1"].State = model.MinerUndefined
	r.HandleGuardMessage(model.GuardMessage{
		GuardID: "g1", Ts: r.now(),
		Data: model.GuardState{MinerID: "m1", State: model.MinerStarting},
	})
	miner := r.Topology.Miners["m1"]
	assert.Equal(t, model.MinerStarting, miner.State)
	require.NotNil(t, miner.CommandTS)
}

func TestHandleGuardStateIgnoredWhenMinerStateAlreadyKnown(t *testing.T) {
	r, _, _ := newTestReconciler()
	r.Topology.Miners["m1"].State = model.MinerRunning
	r.HandleGuardMessage(model.GuardMessage{
		GuardID: "g1", Ts: r.now(),
		Data: model.GuardState{MinerID: "m1", State: model.MinerStarting},
	})
	assert.Equal(t, model.MinerRunning, r.Topology.Miners["m1"].State)
}
