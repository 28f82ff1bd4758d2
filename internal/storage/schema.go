// Package storage persists switchboard and miner energy readings to
// Postgres, partitioned into one table triple per calendar month for the
// lifetime of the contract's billing schedule.
package storage

import "fmt"

// monthSuffix renders the "_YYYY_MM" table name suffix for the given
// calendar month.
func monthSuffix(year int, month int) string {
	return fmt.Sprintf("%04d_%02d", year, month)
}

// SwitchboardTableName returns the name of the switchboard reading table
// for the given calendar month.
func SwitchboardTableName(year, month int) string {
	return "switchboard_" + monthSuffix(year, month)
}

// MinerTableName returns the name of the per-miner reading table for the
// given calendar month.
func MinerTableName(year, month int) string {
	return "miners_" + monthSuffix(year, month)
}

// MinerGridTableName returns the name of the grid-consumption table for
// the given calendar month. These rows record the portion of a miner's
// draw that came from the grid rather than solar, computed by the
// reconciler's scheduling pass and written only to storage (see the
// EnergyRecord note in internal/model/message.go).
func MinerGridTableName(year, month int) string {
	return "miners_grid_" + monthSuffix(year, month)
}

// getAllTablesSQL lists every base table in the public schema, used to
// detect which of the current billing period's monthly tables still need
// creating.
const getAllTablesSQL = `
SELECT table_name FROM information_schema.tables
    WHERE
        table_schema = 'public' AND
        table_type = 'BASE TABLE'
;`

func createSwitchboardTableSQL(year, month int) string {
	table := SwitchboardTableName(year, month)
	return fmt.Sprintf(`CREATE TABLE %s (
	ts timestamp PRIMARY KEY,
	energy_consumed_wmin_0 bigint,
	energy_consumed_wmin_1 bigint,
	energy_consumed_wmin_2 bigint,
	energy_returned_wmin_0 bigint,
	energy_returned_wmin_1 bigint,
	energy_returned_wmin_2 bigint,
	total_consumed_wh_0 double precision,
	total_consumed_wh_1 double precision,
	total_consumed_wh_2 double precision,
	total_returned_wh_0 double precision,
	total_returned_wh_1 double precision,
	total_returned_wh_2 double precision
);`, table)
}

func createMinerTableSQL(year, month int) string {
	table := MinerTableName(year, month)
	return fmt.Sprintf(`CREATE TABLE %s (
	ts timestamp PRIMARY KEY,
	name text,
	energy_consumed_wmin bigint,
	phase smallint,
	power_w real
);`, table)
}

func createMinerGridTableSQL(year, month int) string {
	table := MinerGridTableName(year, month)
	return fmt.Sprintf(`CREATE TABLE %s (
	ts timestamp PRIMARY KEY,
	energy_consumed_wmin bigint,
	phase smallint
);`, table)
}

func insertSwitchboardRowSQL(year, month int) string {
	return fmt.Sprintf(`INSERT INTO %s VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`,
		SwitchboardTableName(year, month))
}

func insertMinerRowSQL(year, month int) string {
	return fmt.Sprintf(`INSERT INTO %s VALUES ($1, $2, $3, $4, $5);`, MinerTableName(year, month))
}

func insertMinerGridRowSQL(year, month int) string {
	return fmt.Sprintf(`INSERT INTO %s VALUES ($1, $2, $3);`, MinerGridTableName(year, month))
}

func getMonthMinerConsumptionSQL(year, month, phase int) string {
	return fmt.Sprintf(`SELECT CAST(COALESCE(SUM(energy_consumed_wmin), 0) AS bigint) AS sum FROM %s
	WHERE phase = %d;`, MinerTableName(year, month), phase)
}

func getMonthMinerGridConsumptionSQL(year, month, phase int) string {
	return fmt.Sprintf(`SELECT CAST(COALESCE(SUM(energy_consumed_wmin), 0) AS bigint) AS sum FROM %s
	WHERE phase = %d;`, MinerGridTableName(year, month), phase)
}

func getFirstRowSQL(year, month int) string {
	table := SwitchboardTableName(year, month)
	return fmt.Sprintf(`SELECT * FROM %s WHERE ts = (SELECT MIN(ts) FROM %s);`, table, table)
}
