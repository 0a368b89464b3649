package config

import (
	"time"

	"github.com/evidencex/reconciler/internal/infra/ledger"
	redisclient "github.com/evidencex/reconciler/internal/infra/redis"
	"github.com/evidencex/reconciler/internal/infra/storage/postgres"
	"github.com/evidencex/reconciler/internal/recon/detector"
	"github.com/evidencex/reconciler/internal/recon/scheduler"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Database   postgres.Config    `yaml:"database"`
	Redis      redisclient.Config `yaml:"redis"`
	Ledger     ledger.Config      `yaml:"ledger"`
	Detector   detector.Config    `yaml:"detector"`
	Scheduler  scheduler.Config   `yaml:"scheduler"`
	Resilience ResilienceConfig   `yaml:"resilience"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ResilienceConfig tunes the shared retry policy and circuit breakers.
type ResilienceConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	RemoteTimeout    time.Duration `yaml:"remote_timeout"`
	StoreTimeout     time.Duration `yaml:"store_timeout"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCoolDown  time.Duration `yaml:"breaker_cooldown"`
}
