// Package redis provides the alert broadcast channel for reconciliation
// findings.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

// Broadcaster publishes reconciliation alerts to a Redis pub/sub channel so
// operator tooling can subscribe without polling the audit log.
type Broadcaster struct {
	rdb     *redis.Client
	channel string
	log     *slog.Logger
}

// NewBroadcaster creates a broadcaster and verifies connectivity.
func NewBroadcaster(cfg Config) (*Broadcaster, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "reconciliation:alerts"
	}

	return &Broadcaster{rdb: rdb, channel: channel, log: slog.Default()}, nil
}

// Publish sends one alert. Failures are logged, not propagated: alerting is
// best-effort and must never block a reconciliation scan.
func (b *Broadcaster) Publish(ctx context.Context, alert any) {
	payload, err := json.Marshal(alert)
	if err != nil {
		b.log.Warn("Failed to marshal alert", "error", err)
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.log.Warn("Failed to publish alert", "channel", b.channel, "error", err)
	}
}

// Health pings the Redis server.
func (b *Broadcaster) Health(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *Broadcaster) Close() error {
	return b.rdb.Close()
}

// LogBroadcaster is the fallback publisher used when Redis is not
// configured. Alerts go to the structured log only.
type LogBroadcaster struct {
	log *slog.Logger
}

// NewLogBroadcaster creates a log-only publisher.
func NewLogBroadcaster() *LogBroadcaster {
	return &LogBroadcaster{log: slog.Default()}
}

// Publish writes the alert to the log.
func (b *LogBroadcaster) Publish(ctx context.Context, alert any) {
	payload, err := json.Marshal(alert)
	if err != nil {
		b.log.Warn("Failed to marshal alert", "error", err)
		return
	}
	b.log.Warn("Reconciliation alert", "alert", string(payload))
}
