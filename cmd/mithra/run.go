package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mithra-energy/mithra/internal/broker"
	"github.com/mithra-energy/mithra/internal/config"
	"github.com/mithra-energy/mithra/internal/listeners"
	"github.com/mithra-energy/mithra/internal/model"
	"github.com/mithra-energy/mithra/internal/reconciler"
	"github.com/mithra-energy/mithra/internal/scheduler"
	"github.com/mithra-energy/mithra/internal/storage"
)

// announceWindow is how long Mithra waits, after broadcasting an announce
// request, for every switchboard, plug, and guard to report itself.
const announceWindow = 30 * time.Second

// messageBuffer and recordBuffer size the reconciler's inbound channels:
// Go has no unbounded mpsc::channel equivalent, so both are given a
// generous buffer (several seconds of peak listener throughput at the
// fleet sizes this system targets) rather than left unbuffered, trading a
// bounded worst case for never blocking a listener goroutine under normal
// load. See internal/reconciler/reconciler.go for the corresponding
// non-blocking send on the records side.
const (
	messageBuffer = 512
	recordBuffer  = 512
)

// Run wires the topology to a live broker and database and runs the
// reconciler until the context is canceled or the current billing period
// is about to end, mirroring the original System::init/System::run pair.
func Run(ctx context.Context, servers *config.ServerConfig, topology *model.Topology) error {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	periodStart, periodEnd := scheduler.CurrentBillingPeriod(
		servers.Contract.StartYear, servers.Contract.StartMonth, servers.Contract.BillingPeriodMonths, time.Now().UTC(),
	)
	logger.Printf("billing period: %s to %s", periodStart.Format("2006-01-02"), periodEnd.Format("2006-01-02"))

	if err := announceDevices(ctx, servers, topology, logger); err != nil {
		return fmt.Errorf("announce phase: %w", err)
	}
	if topology.Switchboard.State != model.Available {
		return fmt.Errorf("switchboard %q is not available", topology.Switchboard.ID)
	}

	repo, err := storage.NewRepository(servers.Database.DSN(), logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer repo.Close()

	if err := repo.EnsureBillingPeriodSchema(ctx, periodStart, periodEnd); err != nil {
		return fmt.Errorf("preparing billing period schema: %w", err)
	}

	startConsumedKWh, startReturnedKWh, ok, err := repo.GetSwitchboardParams(ctx, periodStart)
	if err != nil {
		return fmt.Errorf("reading switchboard starting totals: %w", err)
	}
	if ok {
		logger.Printf("switchboard starting totals recovered from database")
	} else {
		logger.Printf("no switchboard data in database yet, sampling MQTT directly")
		startConsumedKWh, startReturnedKWh, err = readSwitchboardTotals(ctx, servers, topology.Switchboard.ID)
		if err != nil {
			return fmt.Errorf("sampling switchboard totals: %w", err)
		}
	}

	var acct reconciler.Accounting
	acct.StartConsumedKWh = startConsumedKWh
	acct.StartReturnedKWh = startReturnedKWh
	for phase := 0; phase < 3; phase++ {
		consumed, err := repo.GetMinersConsumption(ctx, periodStart, phase)
		if err != nil {
			return fmt.Errorf("reading miner consumption: %w", err)
		}
		acct.MinersConsumedWmin[phase] = consumed

		gridConsumed, err := repo.GetMinersGridConsumption(ctx, periodStart, phase)
		if err != nil {
			return fmt.Errorf("reading miner grid consumption: %w", err)
		}
		acct.MinersGridConsumedWmin[phase] = gridConsumed
	}
	logger.Printf("miners have consumed %v Wmin this period (%v Wmin from the grid)", acct.MinersConsumedWmin, acct.MinersGridConsumedWmin)

	messages := make(chan model.Message, messageBuffer)
	records := make(chan model.EnergyRecord, recordBuffer)

	switchboardClient, err := newBrokerClient(servers, "Switchboard_loop")
	if err != nil {
		return err
	}
	defer switchboardClient.Disconnect(250)

	plugsClient, err := newBrokerClient(servers, "Plugs_loop")
	if err != nil {
		return err
	}
	defer plugsClient.Disconnect(250)

	guardsClient, err := newBrokerClient(servers, "Guards_loop")
	if err != nil {
		return err
	}
	defer guardsClient.Disconnect(250)

	userClient, err := newBrokerClient(servers, "User_loop")
	if err != nil {
		return err
	}
	defer userClient.Disconnect(250)

	if err := subscribeSwitchboard(switchboardClient, topology, messages, records, logger); err != nil {
		return err
	}
	plugHandler, err := subscribePlugs(plugsClient, topology, messages, records, logger)
	if err != nil {
		return err
	}
	guardHandler, err := subscribeGuards(guardsClient, topology, messages, logger)
	if err != nil {
		return err
	}
	if err := subscribeUsers(userClient, topology, messages, logger); err != nil {
		return err
	}
	handlers := reconciler.HandlerFactory{GuardHandler: guardHandler, PlugHandler: plugHandler}

	// Reset any guard whose pinset configuration expired while Mithra was
	// down, and re-query the current state of every miner on a guard that
	// is already available, matching the original's start-up pass over
	// each guard's reported state.
	for guardID, guard := range topology.Guards {
		switch guard.State {
		case model.ConfigExpired:
			if err := broker.GuardReset(guardsClient, guardID); err != nil {
				logger.Printf("resetting guard %s: %v", guardID, err)
			}
		case model.Available:
			for _, minerID := range guard.Miners {
				if err := broker.GuardSendCommand(guardsClient, guardID, minerID, "StateReport"); err != nil {
					logger.Printf("querying miner %s state: %v", minerID, err)
					continue
				}
				ts := time.Now().UTC()
				topology.Miners[minerID].CommandTS = &ts
			}
		}
	}

	writer := storage.NewWriter(repo, logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		writer.Run(ctx, records)
	}()

	r := reconciler.New(topology, servers.Contract, periodStart, periodEnd, acct,
		guardsClient, guardsClient, plugsClient, plugsClient, handlers, records, logger)

	logger.Println("mithra is running")
	r.Run(ctx, messages)

	close(records)
	wg.Wait()
	logger.Println("mithra main loop exited")
	return nil
}

func newBrokerClient(servers *config.ServerConfig, clientID string) (*broker.Client, error) {
	client, err := broker.NewClient(broker.Options{
		Host:      servers.Broker.Host,
		Port:      servers.Broker.Port,
		User:      servers.Broker.User,
		Password:  servers.Broker.Password,
		ClientID:  clientID,
		KeepAlive: 60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting %s: %w", clientID, err)
	}
	return client, nil
}

// announceDevices triggers every switchboard, plug, and guard to
// self-report on the two announce topics and gives them announceWindow
// to respond, updating topology in place.
func announceDevices(ctx context.Context, servers *config.ServerConfig, topology *model.Topology, logger *log.Logger) error {
	client, err := newBrokerClient(servers, "Announce_loop")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := client.Subscribe(broker.AnnounceShellies, func(msg broker.Message) {
		if err := reconciler.HandleShelliesAnnounce(topology, msg.Payload); err != nil {
			logger.Printf("shellies announce: %v", err)
		}
	}); err != nil {
		return err
	}
	if err := client.Subscribe(broker.AnnounceGuards, func(msg broker.Message) {
		if err := reconciler.HandleGuardsAnnounce(topology, msg.Payload); err != nil {
			logger.Printf("guards announce: %v", err)
		}
	}); err != nil {
		return err
	}

	if err := broker.PublishAnnounce(client); err != nil {
		return fmt.Errorf("publishing announce request: %w", err)
	}
	logger.Printf("announce request sent, waiting %s for devices to report in", announceWindow)

	select {
	case <-time.After(announceWindow):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readSwitchboardTotals samples the switchboard's lifetime total/
// total_returned counters directly off MQTT, used when the database has
// no rows yet for the current billing period.
func readSwitchboardTotals(ctx context.Context, servers *config.ServerConfig, switchboardID string) (consumed, returned [3]float64, err error) {
	client, err := newBrokerClient(servers, "Initial_loop")
	if err != nil {
		return consumed, returned, err
	}
	defer client.Disconnect(250)

	var mu sync.Mutex
	var haveConsumed, haveReturned [3]bool
	done := make(chan struct{})
	var closeOnce sync.Once

	checkComplete := func() {
		for i := 0; i < 3; i++ {
			if !haveConsumed[i] || !haveReturned[i] {
				return
			}
		}
		closeOnce.Do(func() { close(done) })
	}

	for phase := 0; phase < 3; phase++ {
		phase := phase
		consumedTopic := broker.SwitchboardEmeterTopic(switchboardID, phase, "total")
		returnedTopic := broker.SwitchboardEmeterTopic(switchboardID, phase, "total_returned")

		if err := client.Subscribe(consumedTopic, func(msg broker.Message) {
			v, parseErr := strconv.ParseFloat(strings.TrimSpace(string(msg.Payload)), 64)
			if parseErr != nil {
				return
			}
			mu.Lock()
			consumed[phase] = v
			haveConsumed[phase] = true
			checkComplete()
			mu.Unlock()
		}); err != nil {
			return consumed, returned, err
		}
		if err := client.Subscribe(returnedTopic, func(msg broker.Message) {
			v, parseErr := strconv.ParseFloat(strings.TrimSpace(string(msg.Payload)), 64)
			if parseErr != nil {
				return
			}
			mu.Lock()
			returned[phase] = v
			haveReturned[phase] = true
			checkComplete()
			mu.Unlock()
		}); err != nil {
			return consumed, returned, err
		}
	}

	select {
	case <-done:
		return consumed, returned, nil
	case <-ctx.Done():
		return consumed, returned, ctx.Err()
	}
}

// subscribeSwitchboard wires the four emeter subtopics into a single
// SwitchboardAccumulator and forwards each completed reading to both the
// reconciler's message channel and the storage writer's record channel.
func subscribeSwitchboard(client *broker.Client, topology *model.Topology, messages chan<- model.Message, records chan<- model.EnergyRecord, logger *log.Logger) error {
	acc := listeners.NewSwitchboardAccumulator()
	handler := func(msg broker.Message) {
		reading, complete, err := acc.Feed(msg.Topic, msg.Payload)
		if err != nil {
			logger.Printf("switchboard: %v", err)
			return
		}
		if !complete {
			return
		}
		messages <- reading
		records <- model.SwitchboardRecord{
			Ts:               reading.Ts,
			ConsumedWmin:     reading.ConsumedWmin,
			ReturnedWmin:     reading.ReturnedWmin,
			TotalConsumedKWh: reading.TotalConsumedKWh,
			TotalReturnedKWh: reading.TotalReturnedKWh,
		}
	}
	for _, topic := range broker.SwitchboardTopics(topology.Switchboard.ID) {
		if err := client.Subscribe(topic, handler); err != nil {
			return fmt.Errorf("subscribing switchboard topic %s: %w", topic, err)
		}
	}
	return nil
}

// subscribePlugs wires every miner's plug relay subtopics into a shared
// PlugAccumulator and the plug's bare relay-state topic into a PlugMessage.
// It returns a factory the reconciler can use to re-subscribe a single
// plug's energy subtopics on a user Include command.
func subscribePlugs(client *broker.Client, topology *model.Topology, messages chan<- model.Message, records chan<- model.EnergyRecord, logger *log.Logger) (func(string) func(broker.Message), error) {
	seed := make(map[string]*listeners.PlugState)
	for _, miner := range topology.Miners {
		seed[miner.PlugID] = &listeners.PlugState{Phase: miner.Phase, Name: miner.ID}
	}
	acc := listeners.NewPlugAccumulator(seed)

	relayHandler := func(msg broker.Message) {
		plugID, field, err := listeners.ParseRelaySubtopic(msg.Topic)
		if err != nil {
			logger.Printf("plugs: %v", err)
			return
		}
		reading, emit, err := acc.Feed(plugID, field, msg.Payload, time.Now().UTC())
		if err != nil {
			logger.Printf("plugs: %v", err)
			return
		}
		if !emit {
			return
		}
		messages <- reading
		records <- model.MinerRecord{Ts: reading.Ts, Name: reading.MinerID, ConsumedWmin: reading.ConsumedWmin, Phase: reading.Phase, PowerW: reading.PowerW}
	}

	for _, miner := range topology.Miners {
		if err := broker.SubscribePlug(client, miner.PlugID, relayHandler); err != nil {
			return nil, fmt.Errorf("subscribing plug %s: %w", miner.PlugID, err)
		}
		plugID := miner.PlugID
		topic := broker.PlugRelayTopic(plugID)
		if err := client.Subscribe(topic, func(msg broker.Message) {
			isOn, err := listeners.ParseRelayState(msg.Payload)
			if err != nil {
				logger.Printf("plugs: %v", err)
				return
			}
			messages <- model.PlugMessage{PlugID: plugID, Ts: time.Now().UTC(), IsOn: isOn}
		}); err != nil {
			return nil, fmt.Errorf("subscribing plug relay state %s: %w", topic, err)
		}
	}

	plugHandler := func(plugID string) func(broker.Message) {
		return relayHandler
	}
	return plugHandler, nil
}

// subscribeGuards wires every guard's lifecycle topics (started, pinset
// handshake, liveness ping, and each of its miners' alert/command/status
// subtopics) and returns a factory the reconciler can use to re-subscribe
// a single miner's guard topics at runtime on a user Include command.
func subscribeGuards(client *broker.Client, topology *model.Topology, messages chan<- model.Message, logger *log.Logger) (func(string, string) func(broker.Message), error) {
	minerHandler := func(guardID, minerID string) func(broker.Message) {
		return func(msg broker.Message) {
			kind, _, _, err := listeners.ParseGuardTopic(msg.Topic)
			if err != nil {
				logger.Printf("guards: %v", err)
				return
			}
			gm, err := listeners.ParseGuardPayload(kind, guardID, minerID, msg.Payload, time.Now().UTC())
			if err != nil {
				logger.Printf("guards: %v", err)
				return
			}
			messages <- gm
		}
	}

	guardLevelHandler := func(guardID string) func(broker.Message) {
		return func(msg broker.Message) {
			kind, gid, _, err := listeners.ParseGuardTopic(msg.Topic)
			if err != nil {
				logger.Printf("guards: %v", err)
				return
			}
			if gid == "" {
				gid = guardID
			}
			gm, err := listeners.ParseGuardPayload(kind, gid, "", msg.Payload, time.Now().UTC())
			if err != nil {
				logger.Printf("guards: %v", err)
				return
			}
			messages <- gm
		}
	}

	if err := client.Subscribe(broker.GuardsStarted, guardLevelHandler("")); err != nil {
		return nil, fmt.Errorf("subscribing %s: %w", broker.GuardsStarted, err)
	}

	for guardID, guard := range topology.Guards {
		if err := client.Subscribe(broker.GuardConfiguredTopic(guardID), guardLevelHandler(guardID)); err != nil {
			return nil, err
		}
		if err := client.Subscribe(broker.GuardPingTopic(guardID), guardLevelHandler(guardID)); err != nil {
			return nil, err
		}
		for _, minerID := range guard.Miners {
			if err := broker.SubscribeMiner(client, guardID, minerID, minerHandler(guardID, minerID)); err != nil {
				return nil, fmt.Errorf("subscribing miner %s on guard %s: %w", minerID, guardID, err)
			}
		}
	}

	return minerHandler, nil
}

// subscribeUsers wires the per-miner operator Include/Exclude topic.
func subscribeUsers(client *broker.Client, topology *model.Topology, messages chan<- model.Message, logger *log.Logger) error {
	for minerID := range topology.Miners {
		minerID := minerID
		topic := broker.UserTopic(minerID)
		if err := client.Subscribe(topic, func(msg broker.Message) {
			um, err := listeners.ParseUserPayload(minerID, msg.Payload)
			if err != nil {
				logger.Printf("user: %v", err)
				return
			}
			messages <- um
		}); err != nil {
			return fmt.Errorf("subscribing user topic %s: %w", topic, err)
		}
	}
	return nil
}
