package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=32"`

	// The webhook secret is required everywhere: an endpoint running with a
	// placeholder secret would accept forged events. The service only consumes
	// webhooks, so no outbound API key is needed.
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required" validate:"required"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM"    validate:"required_if=Env production,required_if=Env staging"`

	SiteBaseURL string `env:"SITE_BASE_URL" envDefault:"http://localhost:3000"`

	// Sweeper tuning.
	RetryBatchSize   int `env:"RETRY_BATCH_SIZE"   envDefault:"50" validate:"min=1,max=500"`
	RetryIntervalSec int `env:"RETRY_INTERVAL_SEC" envDefault:"60" validate:"min=5,max=3600"`

	// Requests/second and burst for the per-IP limiter on /auth routes.
	AuthRateLimit float64 `env:"AUTH_RATE_LIMIT" envDefault:"2"  validate:"min=0.1"`
	AuthRateBurst int     `env:"AUTH_RATE_BURST" envDefault:"10" validate:"min=1"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
