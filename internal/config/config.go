// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Account store (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Identity store (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Shared secret for verifying caller bearer tokens
	AuthTokenSecret string `env:"AUTH_TOKEN_SECRET,required"`

	// Shared secret for verifying payment webhook signatures
	PaymentWebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Reconciliation jobs
	ReconcileEnabled  bool          `env:"RECONCILE_ENABLED" envDefault:"true"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"24h"`
	ReconcileWorkers  int           `env:"RECONCILE_WORKERS" envDefault:"3"`
	// InactiveAfter is how long without a sign-in makes an account a
	// deletion candidate (default 60 days).
	InactiveAfter    time.Duration `env:"INACTIVE_AFTER" envDefault:"1440h"`
	IdentityPageSize int64         `env:"IDENTITY_PAGE_SIZE" envDefault:"1000"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load reads configuration from environment variables.
// Returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}
