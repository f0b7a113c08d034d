// Package config loads process settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration of the casebook service.
type Config struct {
	Port         string `env:"PORT"          envDefault:"8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"casebook.db"`
	LogLevel     string `env:"LOG_LEVEL"     envDefault:"info"`

	// DispatchTimeout bounds one domain action run for an inbound event.
	DispatchTimeout time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"30s"`
	// ReservationTTL is how long a PENDING ledger entry blocks other callers
	// before a redelivery may reclaim it.
	ReservationTTL time.Duration `env:"RESERVATION_TTL" envDefault:"5m"`
	// TopicWorkers is the consumer parallelism per topic.
	TopicWorkers int `env:"TOPIC_WORKERS" envDefault:"3"`
	// MaxAttempts is how many deliveries a failing event gets.
	MaxAttempts int `env:"MAX_ATTEMPTS" envDefault:"10"`

	OTel OTel
}

// OTel holds the telemetry exporter settings.
type OTel struct {
	ServiceName    string `env:"OTEL_SERVICE_NAME"    envDefault:"casebook"`
	ServiceVersion string `env:"OTEL_SERVICE_VERSION" envDefault:"0.1.0"`
	Environment    string `env:"OTEL_ENVIRONMENT"     envDefault:"development"`
	Exporter       string `env:"OTEL_EXPORTER"        envDefault:"stdout"`
}

// Insecure reports whether OTLP should use plain HTTP.
func (o OTel) Insecure() bool {
	return o.Environment == "development"
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.TopicWorkers < 1 {
		errs = append(errs, fmt.Errorf("TOPIC_WORKERS must be at least 1, got %d", c.TopicWorkers))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts))
	}
	if c.DispatchTimeout <= 0 {
		errs = append(errs, errors.New("DISPATCH_TIMEOUT must be positive"))
	}
	if c.ReservationTTL <= c.DispatchTimeout {
		errs = append(errs, fmt.Errorf("RESERVATION_TTL (%s) must exceed DISPATCH_TIMEOUT (%s)",
			c.ReservationTTL, c.DispatchTimeout))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL to a slog.Level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
