package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Reconcile ReconcileConfig
	Logger    LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	MaxUploadMB  int
	SeedRateCard string // CSV of rate cards loaded when the store has none
}

// DatabaseConfig holds sqlite configuration
type DatabaseConfig struct {
	Path string
}

// ReconcileConfig holds batch reconciliation settings
type ReconcileConfig struct {
	Tolerance decimal.Decimal
	Workers   int
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Environment string
}

// Production reports whether the service runs with production logging.
func (c LoggerConfig) Production() bool {
	return c.Environment == "production"
}

// LoadFromEnv loads configuration from environment variables. A variable
// that is set but cannot be parsed is an error, not a silent default.
func LoadFromEnv() (Config, error) {
	var errs []error
	intVar := func(key string, def int) int {
		v, err := getEnvAsInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	decimalVar := func(key string, def decimal.Decimal) decimal.Decimal {
		v, err := getEnvAsDecimal(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         intVar("PORT", 8080),
			MaxUploadMB:  intVar("MAX_UPLOAD_MB", 32),
			SeedRateCard: getEnv("SEED_RATE_CARDS", "testdata/ratecards.csv"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "reconciler.db"),
		},
		Reconcile: ReconcileConfig{
			Tolerance: decimalVar("MISMATCH_TOLERANCE", decimal.NewFromInt(1)),
			Workers:   intVar("RECON_WORKERS", 8),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.Reconcile.Tolerance.IsNegative() {
		return fmt.Errorf("MISMATCH_TOLERANCE must not be negative")
	}
	if c.Reconcile.Workers <= 0 {
		return fmt.Errorf("RECON_WORKERS must be positive")
	}
	switch c.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Logger.Level)
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %q is not an integer", key, valueStr)
	}
	return value, nil
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := decimal.NewFromString(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %q is not a decimal number", key, valueStr)
	}
	return value, nil
}
