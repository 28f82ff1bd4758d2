package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadServerConfigParsesAllSections(t *testing.T) {
	path := writeTemp(t, "servers.ini", `
[contract]
year_start = 2024
month_start = 3
billing_period = 2
recovery_ratio = 0.85

[database]
host = db.local
port = 5432
user = mithra
password = secret
name = mithra_energy
sslmode = require

[broker]
host = broker.local
port = 1883
user = mithra
password = secret
`)

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2024, cfg.Contract.StartYear)
	assert.Equal(t, 3, cfg.Contract.StartMonth)
	assert.Equal(t, 2, cfg.Contract.BillingPeriodMonths)
	assert.InDelta(t, 0.85, cfg.Contract.RecoveryRatio, 1e-9)
	assert.Equal(t, "db.local", cfg.Database.Host)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, "broker.local", cfg.Broker.Host)
}

func TestLoadServerConfigDefaultsSSLModeToDisable(t *testing.T) {
	path := writeTemp(t, "servers.ini", `
[contract]
year_start = 2024
month_start = 1
billing_period = 1
recovery_ratio = 1

[database]
host = db.local
name = mithra

[broker]
host = broker.local
`)

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Contains(t, cfg.Database.DSN(), "sslmode=disable")
}

func TestLoadServerConfigRejectsOutOfRangeMonth(t *testing.T) {
	path := writeTemp(t, "servers.ini", `
[contract]
year_start = 2024
month_start = 13
billing_period = 1
recovery_ratio = 0.5

[database]
host = db.local
name = mithra

[broker]
host = broker.local
`)

	_, err := LoadServerConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "month_start")
}

func TestLoadServerConfigRejectsMissingFile(t *testing.T) {
	_, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.ini"))
	require.Error(t, err)
}

func TestLoadTopologyBuildsValidatedGraph(t *testing.T) {
	path := writeTemp(t, "topology.yaml", `
switchboard:
  id: sb1
guards:
  - id: g1
    type: ESP32
    miners:
      - id: m1
        pinset: 0
        plug: p1
        phase: 0
        consumption: 1200.5
      - id: m2
        pinset: 1
        plug: p2
        phase: 1
        consumption: 1400
`)

	top, err := LoadTopology(path)
	require.NoError(t, err)
	assert.Equal(t, "sb1", top.Switchboard.ID)
	require.Contains(t, top.Miners, "m1")
	assert.Equal(t, "g1", top.Miners["m1"].GuardID)
	assert.Equal(t, "p1", top.Miners["m1"].PlugID)
	assert.True(t, top.Miners["m1"].Included)
	assert.InDelta(t, 1200.5, top.Miners["m1"].EstimatedConsumption, 1e-9)
}

func TestLoadTopologyRejectsUnknownGuardType(t *testing.T) {
	path := writeTemp(t, "topology.yaml", `
switchboard:
  id: sb1
guards:
  - id: g1
    type: RaspberryPi
    miners: []
`)

	_, err := LoadTopology(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestLoadTopologyRejectsDuplicateMinerID(t *testing.T) {
	path := writeTemp(t, "topology.yaml", `
switchboard:
  id: sb1
guards:
  - id: g1
    type: ESP32
    miners:
      - id: m1
        pinset: 0
        plug: p1
        phase: 0
      - id: m1
        pinset: 1
        plug: p2
        phase: 1
`)

	_, err := LoadTopology(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate miner id")
}

func TestLoadTopologyRejectsDuplicatePinsetAcrossSameGuard(t *testing.T) {
	path := writeTemp(t, "topology.yaml", `
switchboard:
  id: sb1
guards:
  - id: g1
    type: ESP32
    miners:
      - id: m1
        pinset: 0
        plug: p1
        phase: 0
      - id: m2
        pinset: 0
        plug: p2
        phase: 1
`)

	_, err := LoadTopology(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shared by miners")
}
