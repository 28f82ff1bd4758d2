package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardSendCommandPublishesToMinerTopic(t *testing.T) {
	f := NewFake()
	require.NoError(t, GuardSendCommand(f, "g1", "m1", "StateReport"))
	p, ok := f.LastPublished("guards/g1/miners/m1")
	require.True(t, ok)
	assert.Equal(t, "StateReport", p.Payload)
}

func TestPlugCutOffAndEnablePublishOnOffPayloads(t *testing.T) {
	f := NewFake()
	require.NoError(t, PlugCutOff(f, "p1"))
	require.NoError(t, PlugEnable(f, "p1"))

	off := f.Published[0]
	require.Equal(t, "shellies/p1/relay/0/command", off.Topic)
	assert.Equal(t, "off", off.Payload)

	require.NoError(t, PlugEnable(f, "p1"))
	on, ok := f.LastPublished("shellies/p1/relay/0/command")
	require.True(t, ok)
	assert.Equal(t, "on", on.Payload)
}

func TestSubscribeMinerWiresAllThreeTopics(t *testing.T) {
	f := NewFake()
	var got []Message
	err := SubscribeMiner(f, "g1", "m1", func(m Message) { got = append(got, m) })
	require.NoError(t, err)

	f.Deliver("guards/g1/miners/m1/alert", []byte("PoweredOff"))
	f.Deliver("guards/g1/miners/m1/command", []byte("command=Done state=Running"))
	f.Deliver("guards/g1/miners/m1/status", []byte("Running"))

	require.Len(t, got, 3)
}

func TestUnsubscribeMinerRemovesAllThreeTopics(t *testing.T) {
	f := NewFake()
	delivered := false
	require.NoError(t, SubscribeMiner(f, "g1", "m1", func(Message) { delivered = true }))
	require.NoError(t, UnsubscribeMiner(f, "g1", "m1"))

	f.Deliver(MinerAlertTopic("g1", "m1"), []byte("x"))
	f.Deliver(MinerCommandTopic("g1", "m1"), []byte("x"))
	f.Deliver(MinerStatusTopic("g1", "m1"), []byte("x"))
	assert.False(t, delivered, "no handler may remain on any of the three topics")
}

func TestSwitchboardTopicsCoversAllFourFields(t *testing.T) {
	topics := SwitchboardTopics("sb1")
	assert.ElementsMatch(t, []string{
		"shellies/sb1/emeter/+/energy",
		"shellies/sb1/emeter/+/returned_energy",
		"shellies/sb1/emeter/+/total",
		"shellies/sb1/emeter/+/total_returned",
	}, topics)
}
