package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Contract holds the billing-period terms negotiated with the utility:
// which month the billing clock starts counting from, how many months each
// period spans, and what fraction of exported energy may be drawn back
// without incurring a bill.
type Contract struct {
	StartYear           int
	StartMonth          int
	BillingPeriodMonths int
	RecoveryRatio       float64
}

// DatabaseConfig holds the Postgres connection fields.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN renders the connection fields as a libpq-style connection string for
// github.com/lib/pq, mirroring the DSN-building idiom a database/sql-backed
// repository needs regardless of driver.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, sslmode,
	)
}

// BrokerConfig holds the MQTT broker connection fields.
type BrokerConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// ServerConfig is the fully parsed contents of the INI file named by
// spec §6: contract terms, database connection, and broker credentials.
type ServerConfig struct {
	Contract Contract
	Database DatabaseConfig
	Broker   BrokerConfig
}

// LoadServerConfig parses the INI file at path into a ServerConfig,
// validating every field eagerly so that a malformed file is caught before
// any connection is attempted (§7: configuration errors are fatal at
// start-up).
func LoadServerConfig(path string) (*ServerConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, newValidationError("contract", "cannot read INI file %q: %v", path, err)
	}

	contractSec := f.Section("contract")
	cfg := &ServerConfig{
		Contract: Contract{
			StartYear:           contractSec.Key("year_start").MustInt(0),
			StartMonth:          contractSec.Key("month_start").MustInt(0),
			BillingPeriodMonths: contractSec.Key("billing_period").MustInt(0),
			RecoveryRatio:       contractSec.Key("recovery_ratio").MustFloat64(-1),
		},
	}

	dbSec := f.Section("database")
	cfg.Database = DatabaseConfig{
		Host:     dbSec.Key("host").String(),
		Port:     dbSec.Key("port").MustInt(5432),
		User:     dbSec.Key("user").String(),
		Password: dbSec.Key("password").String(),
		Name:     dbSec.Key("name").String(),
		SSLMode:  dbSec.Key("sslmode").MustString("disable"),
	}

	brokerSec := f.Section("broker")
	cfg.Broker = BrokerConfig{
		Host:     brokerSec.Key("host").String(),
		Port:     brokerSec.Key("port").MustInt(1883),
		User:     brokerSec.Key("user").String(),
		Password: brokerSec.Key("password").String(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.Contract.StartMonth < 1 || c.Contract.StartMonth > 12 {
		return newValidationError("contract", "month_start must be in [1,12], got %d", c.Contract.StartMonth)
	}
	if c.Contract.StartYear <= 0 {
		return newValidationError("contract", "year_start must be set")
	}
	if c.Contract.BillingPeriodMonths <= 0 {
		return newValidationError("contract", "billing_period must be a positive number of months")
	}
	if c.Contract.RecoveryRatio < 0 || c.Contract.RecoveryRatio > 1 {
		return newValidationError("contract", "recovery_ratio must be in [0,1], got %v", c.Contract.RecoveryRatio)
	}
	if c.Database.Host == "" || c.Database.Name == "" {
		return newValidationError("contract", "database host and name are required")
	}
	if c.Broker.Host == "" {
		return newValidationError("contract", "broker host is required")
	}
	return nil
}
