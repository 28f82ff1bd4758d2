package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNamesUseZeroPaddedMonth(t *testing.T) {
	assert.Equal(t, "switchboard_2026_03", SwitchboardTableName(2026, 3))
	assert.Equal(t, "miners_2026_03", MinerTableName(2026, 3))
	assert.Equal(t, "miners_grid_2026_03", MinerGridTableName(2026, 3))
}

func TestInsertSwitchboardRowHasThirteenPlaceholders(t *testing.T) {
	q := insertSwitchboardRowSQL(2026, 1)
	assert.Contains(t, q, "$13")
	assert.Contains(t, q, "switchboard_2026_01")
}

func TestCreateMinerTableDeclaresExpectedColumns(t *testing.T) {
	q := createMinerTableSQL(2026, 12)
	assert.Contains(t, q, "miners_2026_12")
	assert.Contains(t, q, "energy_consumed_wmin bigint")
	assert.Contains(t, q, "power_w real")
}
