// Package config loads the engine's environment configuration.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Storage drivers.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageBolt   = "bbolt"
)

// Config is the server configuration.
type Config struct {
	HTTPAddr       string `env:"LOTTERY_HTTP_ADDR" envDefault:":8080"`
	Storage        string `env:"LOTTERY_STORAGE" envDefault:"sqlite"`
	StoragePath    string `env:"LOTTERY_STORAGE_PATH" envDefault:"data/lottery.db"`
	DeploymentFile string `env:"LOTTERY_DEPLOYMENT_FILE" envDefault:"deployment.toml"`

	JWTSecret string `env:"LOTTERY_JWT_SECRET,required,notEmpty"`
	JWTIssuer string `env:"LOTTERY_JWT_ISSUER" envDefault:"verilotto"`

	// TicketPrice is the default price in whole currency units.
	TicketPrice      decimal.Decimal `env:"LOTTERY_TICKET_PRICE" envDefault:"0.01"`
	CurrencyDecimals int32           `env:"LOTTERY_CURRENCY_DECIMALS" envDefault:"18"`

	CommitmentScheme    string        `env:"LOTTERY_COMMITMENT_SCHEME" envDefault:"keccak256"`
	LockJanitorInterval time.Duration `env:"LOTTERY_LOCK_JANITOR_INTERVAL" envDefault:"10m"`
	LogVerbose          bool          `env:"LOTTERY_LOG_VERBOSE"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the server configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the env tags cannot express.
func (c *Config) Validate() error {
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	switch c.Storage {
	case StorageMemory:
	case StorageSQLite, StorageBolt:
		if strings.TrimSpace(c.StoragePath) == "" {
			return fmt.Errorf("LOTTERY_STORAGE_PATH is required for %s storage", c.Storage)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage)
	}
	if c.CurrencyDecimals < 0 || c.CurrencyDecimals > 18 {
		return fmt.Errorf("currency decimals must be in [0, 18], got %d", c.CurrencyDecimals)
	}
	if c.LockJanitorInterval <= 0 {
		return fmt.Errorf("lock janitor interval must be positive, got %s", c.LockJanitorInterval)
	}
	if _, err := c.TicketPriceUnits(); err != nil {
		return err
	}
	return nil
}

// TicketPriceUnits converts TicketPrice to smallest currency units.
func (c Config) TicketPriceUnits() (int64, error) {
	units := c.TicketPrice.Shift(c.CurrencyDecimals)
	if !units.IsInteger() {
		return 0, fmt.Errorf("ticket price %s has more than %d decimals", c.TicketPrice, c.CurrencyDecimals)
	}
	if !units.IsPositive() {
		return 0, fmt.Errorf("ticket price must be positive, got %s", c.TicketPrice)
	}
	if units.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("ticket price %s overflows smallest units", c.TicketPrice)
	}
	return units.IntPart(), nil
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
