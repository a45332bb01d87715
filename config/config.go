// Package config loads service configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/booya/coin-engine/ledger"
)

// Config holds everything the server needs. All fields come from
// BOOYA_* environment variables.
type Config struct {
	Port   int    `envconfig:"PORT" default:"8080"`
	DBPath string `envconfig:"DB_PATH" default:"./data/booya.db"`

	// Bonus amounts are decimal strings so operators can tune them
	// without a rebuild.
	SignupBonus string `envconfig:"SIGNUP_BONUS" default:"50.00"`
	DailyBonus  string `envconfig:"DAILY_BONUS" default:"50.00"`

	// Cron expression for the counter recount audit. Empty disables it.
	RecountSchedule string `envconfig:"RECOUNT_SCHEDULE" default:"17 3 * * *"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads .env (if present) then the BOOYA_* environment, and
// validates the decimal fields.
func Load() (*Config, error) {
	// Missing .env is fine; the environment is authoritative.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("booya", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if _, err := ledger.ParseAmount(cfg.SignupBonus); err != nil {
		return nil, fmt.Errorf("invalid BOOYA_SIGNUP_BONUS %q: %w", cfg.SignupBonus, err)
	}
	if _, err := ledger.ParseAmount(cfg.DailyBonus); err != nil {
		return nil, fmt.Errorf("invalid BOOYA_DAILY_BONUS %q: %w", cfg.DailyBonus, err)
	}
	return &cfg, nil
}

// Addr returns the listen address, e.g. ":8080".
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
