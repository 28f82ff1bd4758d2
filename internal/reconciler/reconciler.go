// Package reconciler owns the device topology exclusively and drives every
// state transition in the system: the guard/plug/switchboard protocol
// handlers, the periodic watchdog pass, and the scheduling tick that
// decides which miners run. Nothing outside this package ever mutates a
// model.Topology after start-up (I2); listeners only ever produce
// model.Message values onto the channel Run reads from.
package reconciler

import (
	"context"
	"log"
	"time"

	"github.com/mithra-energy/mithra/internal/broker"
	"github.com/mithra-energy/mithra/internal/config"
	"github.com/mithra-energy/mithra/internal/model"
	"github.com/mithra-energy/mithra/internal/scheduler"
)

// tickInterval is the main loop's recv_deadline step: every 30 seconds,
// whether or not a message arrived in between, the reconciler runs its
// watchdog pass and checks whether it's time to schedule.
const tickInterval = 30 * time.Second

// switchboardQuorum is how many switchboard readings must accumulate since
// the last scheduling tick before the reconciler trusts the accumulated
// totals enough to run a new scheduling pass.
const switchboardQuorum = 5

// shutdownLeadTime is how far ahead of the billing period's end the
// reconciler stops scheduling and signals Run to return, so the process
// can shut down before the next period begins.
const shutdownLeadTime = 60 * time.Second

// Accounting carries the energy bookkeeping a caller must seed at start-up
// from whatever recovery step ran first (reading the database, or falling
// back to a fresh MQTT poll) before the reconciler's main loop begins.
type Accounting struct {
	StartConsumedKWh       [3]float64
	StartReturnedKWh       [3]float64
	MinersConsumedWmin     [3]uint64
	MinersGridConsumedWmin [3]uint64
}

// HandlerFactory builds the broker.Message handler a (re)subscription
// should route through -- the closures the caller wires once at start-up
// that parse a listener payload and forward the resulting model.Message
// onto the same channel Run consumes. The reconciler never parses wire
// payloads itself; it only needs these to subscribe/unsubscribe a miner at
// runtime when a user Include/Exclude command arrives.
type HandlerFactory struct {
	GuardHandler func(guardID, minerID string) func(broker.Message)
	PlugHandler  func(plugID string) func(broker.Message)
}

// Reconciler owns the topology and every piece of mutable accounting state
// the scheduling tick needs. It is never accessed concurrently: Run is the
// only goroutine that ever touches it.
type Reconciler struct {
	Topology *model.Topology
	Contract config.Contract

	GuardsPub broker.Publisher
	GuardsSub broker.Subscriber
	PlugsPub  broker.Publisher
	PlugsSub  broker.Subscriber

	Handlers HandlerFactory

	// Records is the storage writer's inbound channel. Go has no unbounded
	// mpsc::channel equivalent, so the caller gives it a generous fixed
	// buffer instead; runSchedulingPass sends onto it without blocking and
	// drops (with a log line) on the rare tick where it's still full,
	// rather than ever stall the watchdog/scheduling loop on a slow writer.
	Records chan<- model.EnergyRecord
	Log     *log.Logger

	PeriodStart time.Time
	PeriodEnd   time.Time

	acct Accounting

	actualTotalConsumedKWh [3]float64
	actualTotalReturnedKWh [3]float64

	lastSwitchboardConsumedWmin [3]uint64
	lastSwitchboardReturnedWmin [3]uint64
	lastMinersConsumedWmin      [3]uint64

	switchboardReceivedMsgs int
	lastSchedulingTs        time.Time

	now func() time.Time
}

// New builds a Reconciler over top, seeded with the accounting state and
// billing period a caller's start-up sequence already recovered.
func New(
	top *model.Topology,
	contract config.Contract,
	periodStart, periodEnd time.Time,
	acct Accounting,
	guardsPub broker.Publisher,
	guardsSub broker.Subscriber,
	plugsPub broker.Publisher,
	plugsSub broker.Subscriber,
	handlers HandlerFactory,
	records chan<- model.EnergyRecord,
	logger *log.Logger,
) *Reconciler {
	if logger == nil {
		logger = log.New(log.Writer(), "reconciler: ", log.LstdFlags)
	}
	return &Reconciler{
		Topology:    top,
		Contract:    contract,
		GuardsPub:   guardsPub,
		GuardsSub:   guardsSub,
		PlugsPub:    plugsPub,
		PlugsSub:    plugsSub,
		Handlers:    handlers,
		Records:     records,
		Log:         logger,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		acct:        acct,

		actualTotalConsumedKWh: acct.StartConsumedKWh,
		actualTotalReturnedKWh: acct.StartReturnedKWh,
		lastSchedulingTs:       time.Now(),
		now:                    time.Now,
	}
}

// Run drives the reconciler until ctx is canceled, messages closes, or the
// billing period is about to end, dispatching every inbound message and
// running a watchdog/scheduling tick every 30 seconds.
func (r *Reconciler) Run(ctx context.Context, messages <-chan model.Message) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.dispatch(msg)
		case <-ticker.C:
			if shutdown := r.tick(); shutdown {
				return
			}
		}
	}
}

func (r *Reconciler) dispatch(msg model.Message) {
	switch m := msg.(type) {
	case model.EnergyMinerMessage:
		r.handleMinerEnergy(m)
	case model.EnergySwitchboardMessage:
		r.handleSwitchboardEnergy(m)
	case model.GuardMessage:
		r.HandleGuardMessage(m)
	case model.PlugMessage:
		r.handlePlugMessage(m)
	case model.UserMessage:
		r.handleUserMessage(m)
	default:
		r.Log.Printf("unhandled message type %T", msg)
	}
}

func (r *Reconciler) handleMinerEnergy(m model.EnergyMinerMessage) {
	miner, ok := r.Topology.Miners[m.MinerID]
	if !ok {
		r.Log.Printf("energy report for undefined miner %q", m.MinerID)
		return
	}
	power := m.PowerW
	miner.PowerConsumption = &power

	r.acct.MinersConsumedWmin[m.Phase] += m.ConsumedWmin
	r.lastMinersConsumedWmin[m.Phase] += m.ConsumedWmin
}

func (r *Reconciler) handleSwitchboardEnergy(m model.EnergySwitchboardMessage) {
	r.Topology.Switchboard.LastSeen = m.Ts
	for i := 0; i < 3; i++ {
		r.lastSwitchboardConsumedWmin[i] += m.ConsumedWmin[i]
		r.lastSwitchboardReturnedWmin[i] += m.ReturnedWmin[i]
	}
	r.actualTotalConsumedKWh = m.TotalConsumedKWh
	r.actualTotalReturnedKWh = m.TotalReturnedKWh
	r.switchboardReceivedMsgs++
}

func (r *Reconciler) handlePlugMessage(m model.PlugMessage) {
	plug, ok := r.Topology.Plugs[m.PlugID]
	if !ok {
		r.Log.Printf("relay report for undefined plug %q", m.PlugID)
		return
	}
	plug.LastSeen = m.Ts
	plug.IsEnabled = m.IsOn
}

func (r *Reconciler) handleUserMessage(m model.UserMessage) {
	miner, ok := r.Topology.Miners[m.MinerID]
	if !ok {
		r.Log.Printf("user command for undefined miner %q", m.MinerID)
		return
	}

	switch m.Command {
	case model.UserExclude:
		if !miner.Included {
			r.Log.Printf("user tried to exclude already-excluded miner %q", m.MinerID)
			return
		}
		miner.Included = false
		miner.State = model.MinerUndefined
		broker.UnsubscribePlug(r.PlugsSub, miner.PlugID)
		broker.UnsubscribeMiner(r.GuardsSub, miner.GuardID, miner.ID)

	case model.UserInclude:
		if miner.Included {
			r.Log.Printf("user tried to include already-included miner %q", m.MinerID)
			return
		}
		var plugHandler, guardHandler func(broker.Message)
		if r.Handlers.PlugHandler != nil {
			plugHandler = r.Handlers.PlugHandler(miner.PlugID)
		}
		if r.Handlers.GuardHandler != nil {
			guardHandler = r.Handlers.GuardHandler(miner.GuardID, miner.ID)
		}
		broker.SubscribePlug(r.PlugsSub, miner.PlugID, plugHandler)
		broker.SubscribeMiner(r.GuardsSub, miner.GuardID, miner.ID, guardHandler)
		broker.GuardSendCommand(r.GuardsPub, miner.GuardID, miner.ID, "StateReport")

		miner.Included = true
		miner.State = model.MinerUndefined
		miner.Target = model.TargetNone
		ts := r.now()
		miner.CommandTS = &ts
	}
}

// tick is the recv_deadline timeout branch: it runs the watchdog pass,
// then either clears every miner's target (switchboard unavailable) or, if
// enough switchboard readings have accumulated, runs a full scheduling
// pass. It reports true once the billing period is close enough to its end
// that Run should stop.
func (r *Reconciler) tick() bool {
	r.ValidateDevices()

	if r.Topology.Switchboard.State != model.Available {
		for _, miner := range r.Topology.Miners {
			miner.Target = model.TargetPoweredOff
		}
		r.resetTickAccumulators(r.now())
	} else if r.switchboardReceivedMsgs >= switchboardQuorum {
		r.runSchedulingPass()
	}

	return r.PeriodEnd.Sub(r.now()) < shutdownLeadTime
}

func (r *Reconciler) resetTickAccumulators(ts time.Time) {
	r.lastSchedulingTs = ts
	r.switchboardReceivedMsgs = 0
	r.lastSwitchboardConsumedWmin = [3]uint64{}
	r.lastSwitchboardReturnedWmin = [3]uint64{}
	r.lastMinersConsumedWmin = [3]uint64{}
}

func (r *Reconciler) runSchedulingPass() {
	now := r.now()

	for i := 0; i < 3; i++ {
		consumedFromGrid := r.lastMinersConsumedWmin[i]
		if r.lastSwitchboardConsumedWmin[i] < consumedFromGrid {
			consumedFromGrid = r.lastSwitchboardConsumedWmin[i]
		}
		r.acct.MinersGridConsumedWmin[i] += consumedFromGrid

		select {
		case r.Records <- model.MinersGridRecord{Ts: now, ConsumedWmin: consumedFromGrid, Phase: i}:
		default:
			r.Log.Printf("db channel full, dropping miners_grid record for phase %d", i)
		}
	}

	miners := scheduler.CollectMiners(r.Topology)

	var totals scheduler.EnergyTotals
	for i := 0; i < 3; i++ {
		totals.TotalConsumedKWh[i] = r.actualTotalConsumedKWh[i] - r.acct.StartConsumedKWh[i]
		totals.TotalReturnedKWh[i] = r.actualTotalReturnedKWh[i] - r.acct.StartReturnedKWh[i]
	}
	totals.MinerGridConsumedWmin = r.acct.MinersGridConsumedWmin
	totals.LastConsumedWmin = r.lastSwitchboardConsumedWmin
	totals.LastReturnedWmin = r.lastSwitchboardReturnedWmin
	totals.LastMinersConsumedWmin = r.lastMinersConsumedWmin

	elapsed := now.Sub(r.lastSchedulingTs)
	decision := scheduler.ScheduleEnergyResources(miners, r.PeriodStart, r.PeriodEnd, totals, elapsed, r.Contract.RecoveryRatio, now)

	r.resetTickAccumulators(now)

	for _, id := range decision.ToRun {
		if miner, ok := r.Topology.Miners[id]; ok {
			miner.Target = model.TargetRunning
		}
	}
	for _, id := range decision.ToStop {
		if miner, ok := r.Topology.Miners[id]; ok {
			miner.Target = model.TargetPoweredOff
		}
	}

	r.ValidateDevices()
}
