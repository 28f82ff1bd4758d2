package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/mithra-energy/mithra/internal/model"
)

// Repository wraps the Postgres connection used to persist energy
// readings and to answer billing-period accounting queries.
type Repository struct {
	db  *sql.DB
	log *log.Logger
}

// NewRepository opens a connection using dsn (a libpq connection string,
// see config.DatabaseConfig.DSN).
func NewRepository(dsn string, logger *log.Logger) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping database: %w", err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "storage: ", log.LstdFlags)
	}
	return &Repository{db: db, log: logger}, nil
}

// Close closes the underlying connection pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

func nextMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	if m == time.December {
		return time.Date(y+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
}

// EnsureBillingPeriodSchema creates the switchboard/miners/miners_grid
// table triple for every calendar month spanned by [periodStart,
// periodEnd), skipping any table that already exists. It is run once at
// start-up, mirroring check_db_schema.
func (r *Repository) EnsureBillingPeriodSchema(ctx context.Context, periodStart, periodEnd time.Time) error {
	rows, err := r.db.QueryContext(ctx, getAllTablesSQL)
	if err != nil {
		return fmt.Errorf("storage: list tables: %w", err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("storage: scan table name: %w", err)
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for month := periodStart; month.Before(periodEnd); month = nextMonth(month) {
		y, m := month.Year(), int(month.Month())

		if table := SwitchboardTableName(y, m); !existing[table] {
			if _, err := r.db.ExecContext(ctx, createSwitchboardTableSQL(y, m)); err != nil {
				return fmt.Errorf("storage: create %s: %w", table, err)
			}
			r.log.Printf("created table %s", table)
		}
		if table := MinerTableName(y, m); !existing[table] {
			if _, err := r.db.ExecContext(ctx, createMinerTableSQL(y, m)); err != nil {
				return fmt.Errorf("storage: create %s: %w", table, err)
			}
			r.log.Printf("created table %s", table)
		}
		if table := MinerGridTableName(y, m); !existing[table] {
			if _, err := r.db.ExecContext(ctx, createMinerGridTableSQL(y, m)); err != nil {
				return fmt.Errorf("storage: create %s: %w", table, err)
			}
			r.log.Printf("created table %s", table)
		}
	}
	return nil
}

// GetSwitchboardParams returns the per-phase total-consumed and
// total-returned kWh counters from the earliest switchboard row on or
// after periodStart, scanning forward one month at a time until a
// non-empty table is found. It returns ok=false if the period has no
// switchboard data yet, in which case the caller falls back to reading
// the same counters fresh off the switchboard's MQTT total and
// total_returned topics.
func (r *Repository) GetSwitchboardParams(ctx context.Context, periodStart time.Time) (consumed, returned [3]float64, ok bool, err error) {
	now := time.Now().UTC()
	for month := periodStart; !month.After(now); month = nextMonth(month) {
		query := getFirstRowSQL(month.Year(), int(month.Month()))
		row := r.db.QueryRowContext(ctx, query)

		var (
			ts                            time.Time
			ec0, ec1, ec2, er0, er1, er2  int64
			tc0, tc1, tc2, tr0, tr1, tr2  float64
		)
		scanErr := row.Scan(&ts, &ec0, &ec1, &ec2, &er0, &er1, &er2, &tc0, &tc1, &tc2, &tr0, &tr1, &tr2)
		if scanErr == sql.ErrNoRows {
			continue
		}
		if scanErr != nil {
			return consumed, returned, false, fmt.Errorf("storage: read first switchboard row for %04d-%02d: %w", month.Year(), month.Month(), scanErr)
		}
		return [3]float64{tc0, tc1, tc2}, [3]float64{tr0, tr1, tr2}, true, nil
	}
	return consumed, returned, false, nil
}

// GetMinersConsumption sums miner energy consumption (watt-minutes) for a
// single phase across every month from periodStart through the present.
func (r *Repository) GetMinersConsumption(ctx context.Context, periodStart time.Time, phase int) (uint64, error) {
	now := time.Now().UTC()
	var total uint64
	for month := periodStart; !month.After(now); month = nextMonth(month) {
		query := getMonthMinerConsumptionSQL(month.Year(), int(month.Month()), phase)
		var sum int64
		if err := r.db.QueryRowContext(ctx, query).Scan(&sum); err != nil {
			return 0, fmt.Errorf("storage: sum miner consumption for %04d-%02d: %w", month.Year(), month.Month(), err)
		}
		total += uint64(sum)
	}
	return total, nil
}

// GetMinersGridConsumption sums grid-drawn miner consumption (as opposed
// to solar-covered consumption) for a single phase, the figure the
// scheduler needs to decide how much recoverable headroom remains (§4.5).
func (r *Repository) GetMinersGridConsumption(ctx context.Context, periodStart time.Time, phase int) (uint64, error) {
	now := time.Now().UTC()
	var total uint64
	for month := periodStart; !month.After(now); month = nextMonth(month) {
		query := getMonthMinerGridConsumptionSQL(month.Year(), int(month.Month()), phase)
		var sum int64
		if err := r.db.QueryRowContext(ctx, query).Scan(&sum); err != nil {
			return 0, fmt.Errorf("storage: sum miner grid consumption for %04d-%02d: %w", month.Year(), month.Month(), err)
		}
		total += uint64(sum)
	}
	return total, nil
}

// InsertSwitchboardRecord writes one switchboard reading to the table for
// its timestamp's calendar month.
func (r *Repository) InsertSwitchboardRecord(ctx context.Context, rec model.SwitchboardRecord) error {
	query := insertSwitchboardRowSQL(rec.Ts.Year(), int(rec.Ts.Month()))
	_, err := r.db.ExecContext(ctx, query,
		rec.Ts,
		rec.ConsumedWmin[0], rec.ConsumedWmin[1], rec.ConsumedWmin[2],
		rec.ReturnedWmin[0], rec.ReturnedWmin[1], rec.ReturnedWmin[2],
		rec.TotalConsumedKWh[0], rec.TotalConsumedKWh[1], rec.TotalConsumedKWh[2],
		rec.TotalReturnedKWh[0], rec.TotalReturnedKWh[1], rec.TotalReturnedKWh[2],
	)
	return err
}

// InsertMinerRecord writes one miner energy-delta row.
func (r *Repository) InsertMinerRecord(ctx context.Context, rec model.MinerRecord) error {
	query := insertMinerRowSQL(rec.Ts.Year(), int(rec.Ts.Month()))
	_, err := r.db.ExecContext(ctx, query, rec.Ts, rec.Name, rec.ConsumedWmin, rec.Phase, rec.PowerW)
	return err
}

// InsertMinerGridRecord writes one grid-consumption accounting row.
func (r *Repository) InsertMinerGridRecord(ctx context.Context, rec model.MinersGridRecord) error {
	query := insertMinerGridRowSQL(rec.Ts.Year(), int(rec.Ts.Month()))
	_, err := r.db.ExecContext(ctx, query, rec.Ts, rec.ConsumedWmin, rec.Phase)
	return err
}
