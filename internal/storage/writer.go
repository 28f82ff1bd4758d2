package storage

import (
	"context"
	"log"

	"github.com/mithra-energy/mithra/internal/model"
)

// inserter is the subset of *Repository the Writer depends on, split out
// so tests can substitute a fake instead of a live database.
type inserter interface {
	InsertSwitchboardRecord(ctx context.Context, rec model.SwitchboardRecord) error
	InsertMinerRecord(ctx context.Context, rec model.MinerRecord) error
	InsertMinerGridRecord(ctx context.Context, rec model.MinersGridRecord) error
}

// Writer drains a channel of model.EnergyRecord and persists each one,
// running as its own goroutine so a slow or failing database never blocks
// the reconciler's main loop. A failed insert is logged and dropped, never
// fatal -- losing one row of telemetry is preferable to stalling the
// scheduler that keeps miners within the contracted power budget.
type Writer struct {
	repo inserter
	log  *log.Logger
}

// NewWriter builds a Writer backed by repo.
func NewWriter(repo *Repository, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.New(log.Writer(), "storage: ", log.LstdFlags)
	}
	return &Writer{repo: repo, log: logger}
}

// Run drains records until ctx is canceled or the channel is closed.
func (w *Writer) Run(ctx context.Context, records <-chan model.EnergyRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-records:
			if !ok {
				return
			}
			w.write(ctx, rec)
		}
	}
}

func (w *Writer) write(ctx context.Context, rec model.EnergyRecord) {
	var err error
	switch v := rec.(type) {
	case model.SwitchboardRecord:
		err = w.repo.InsertSwitchboardRecord(ctx, v)
	case model.MinerRecord:
		err = w.repo.InsertMinerRecord(ctx, v)
	case model.MinersGridRecord:
		err = w.repo.InsertMinerGridRecord(ctx, v)
	default:
		w.log.Printf("unhandled energy record type %T", rec)
		return
	}
	if err != nil {
		w.log.Printf("insert failed: %v", err)
	}
}
