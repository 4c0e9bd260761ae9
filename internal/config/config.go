package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	CORS         CORSConfig
	Distribution DistributionConfig
	Bank         BankConfig
	Security     SecurityConfig
	Scheduler    SchedulerConfig
	Log          LogConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// DistributionConfig holds the calculation defaults.
type DistributionConfig struct {
	TDSRate  decimal.Decimal
	Currency string
}

// BankConfig holds the bank payout gateway settings.
type BankConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
}

// SecurityConfig holds key material.
type SecurityConfig struct {
	// BankDetailsKey is a base64 Fernet key. Several keys may be given comma-separated;
	// the first one encrypts.
	BankDetailsKey string
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	Enabled         bool
	CompletionSweep string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables and the given .env files.
// With no files, ./.env is tried; a missing file is not an error.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/distribution_engine.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost")),
		},
		Distribution: DistributionConfig{
			Currency: getEnv("DISTRIBUTION_CURRENCY", "INR"),
		},
		Bank: BankConfig{
			BaseURL: strings.TrimRight(getEnv("BANK_API_URL", "http://localhost:8089"), "/"),
			APIKey:  os.Getenv("BANK_API_KEY"),
		},
		Security: SecurityConfig{
			BankDetailsKey: os.Getenv("BANK_DETAILS_KEY"),
		},
		Scheduler: SchedulerConfig{
			CompletionSweep: getEnv("COMPLETION_SWEEP_SCHEDULE", "@every 5m"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}

	var err error

	config.Distribution.TDSRate, err = decimal.NewFromString(getEnv("TDS_RATE", "0.20"))
	if err != nil {
		return nil, fmt.Errorf("invalid TDS_RATE: %w", err)
	}
	if config.Distribution.TDSRate.IsNegative() || config.Distribution.TDSRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("invalid TDS_RATE: %s must be in [0, 1)", config.Distribution.TDSRate)
	}

	config.Bank.Timeout, err = time.ParseDuration(getEnv("BANK_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BANK_TIMEOUT: %w", err)
	}
	if config.Bank.Timeout <= 0 {
		return nil, fmt.Errorf("invalid BANK_TIMEOUT: must be positive")
	}

	config.Bank.RateLimit, err = strconv.ParseFloat(getEnv("BANK_RATE_LIMIT", "5"), 64)
	if err != nil || config.Bank.RateLimit <= 0 {
		return nil, fmt.Errorf("invalid BANK_RATE_LIMIT: %q", getEnv("BANK_RATE_LIMIT", "5"))
	}

	config.Bank.Burst, err = strconv.Atoi(getEnv("BANK_RATE_BURST", "1"))
	if err != nil || config.Bank.Burst < 1 {
		return nil, fmt.Errorf("invalid BANK_RATE_BURST: %q", getEnv("BANK_RATE_BURST", "1"))
	}

	config.Scheduler.Enabled, err = strconv.ParseBool(getEnv("SCHEDULER_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_ENABLED: %w", err)
	}
	if _, err := cron.ParseStandard(config.Scheduler.CompletionSweep); err != nil {
		return nil, fmt.Errorf("invalid COMPLETION_SWEEP_SCHEDULE: %w", err)
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q", config.Log.Format)
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
