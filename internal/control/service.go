// Package control wires the reconciliation service together and owns its
// lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evidencex/reconciler/internal/audit"
	"github.com/evidencex/reconciler/internal/core/config"
	"github.com/evidencex/reconciler/internal/health"
	"github.com/evidencex/reconciler/internal/infra/ledger"
	redisclient "github.com/evidencex/reconciler/internal/infra/redis"
	"github.com/evidencex/reconciler/internal/infra/storage/postgres"
	"github.com/evidencex/reconciler/internal/recon/detector"
	"github.com/evidencex/reconciler/internal/recon/healer"
	"github.com/evidencex/reconciler/internal/recon/metrics"
	"github.com/evidencex/reconciler/internal/recon/scheduler"
	"github.com/evidencex/reconciler/internal/resilience"
)

// Service is the composed reconciliation application.
type Service struct {
	cfg          *config.AppConfig
	db           *postgres.DB
	broadcaster  *redisclient.Broadcaster
	sched        *scheduler.Scheduler
	healthServer *health.Server
	breakers     *resilience.BreakerSet
	cancel       context.CancelFunc
	log          *slog.Logger
}

// NewService creates a service with all dependencies initialized.
func NewService(cfg *config.AppConfig) (*Service, error) {

	// 1. Initialize storage
	db, err := postgres.NewDB(context.Background(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate("migrations"); err != nil {
		return nil, err
	}

	// 2. Shared resilience plumbing: one breaker set for the whole process,
	// with distinct policies for remote and store calls.
	breakers := resilience.NewBreakerSet(resilience.BreakerConfig{
		Threshold: cfg.Resilience.BreakerThreshold,
		CoolDown:  cfg.Resilience.BreakerCoolDown,
	})
	remotePolicy := resilience.Policy{
		MaxAttempts: cfg.Resilience.MaxAttempts,
		BaseDelay:   cfg.Resilience.BaseDelay,
		MaxDelay:    cfg.Resilience.MaxDelay,
		JitterFrac:  resilience.DefaultPolicy.JitterFrac,
		CallTimeout: cfg.Resilience.RemoteTimeout,
	}
	storePolicy := remotePolicy
	storePolicy.CallTimeout = cfg.Resilience.StoreTimeout

	session := postgres.NewSession(db, breakers.For("database"), storePolicy)
	store := postgres.NewStore(session)

	// 3. Ledger gateway client
	ledgerClient := ledger.New(cfg.Ledger, breakers, remotePolicy)

	// 4. Alert channel: Redis when configured, log-only otherwise
	var broadcaster *redisclient.Broadcaster
	var alerts scheduler.AlertPublisher
	var alertHealth health.AlertHealth
	if cfg.Redis.URL != "" {
		broadcaster, err = redisclient.NewBroadcaster(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, alerts fall back to log", "error", err)
			alerts = redisclient.NewLogBroadcaster()
		} else {
			alerts = broadcaster
			alertHealth = broadcaster
			slog.Info("Redis alert channel initialized", "channel", cfg.Redis.Channel)
		}
	} else {
		alerts = redisclient.NewLogBroadcaster()
	}

	// 5. Reconciliation core
	sink := audit.NewLogger(store)
	det := detector.New(cfg.Detector, store, ledgerClient)
	heal := healer.New(store, sink)
	sched := scheduler.New(cfg.Scheduler, det, heal, alerts, sink)

	// 6. Health surface
	monitor := health.NewMonitor(session, breakers, sched, alertHealth, cfg.Scheduler.Interval)
	healthServer := health.NewServer(monitor, sched, cfg.Server.Port)

	return &Service{
		cfg:          cfg,
		db:           db,
		broadcaster:  broadcaster,
		sched:        sched,
		healthServer: healthServer,
		breakers:     breakers,
		log:          slog.Default(),
	}, nil
}

// Start starts the service and all its components.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		if err := s.healthServer.Start(); err != nil {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	s.db.StartPoolMetrics(ctx)
	go s.runBreakerMetrics(ctx)

	s.sched.Start(ctx)

	s.log.Info("Reconciler started", "port", s.cfg.Server.Port)
	return nil
}

// Stop stops the service.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping reconciler...")

	s.sched.Stop()
	if s.cancel != nil {
		s.cancel()
	}

	if s.broadcaster != nil {
		if err := s.broadcaster.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}

	err := s.healthServer.Stop(ctx)

	if cerr := s.db.Close(); cerr != nil {
		s.log.Warn("Failed to close database", "error", cerr)
	}

	return err
}

// runBreakerMetrics periodically exports breaker states.
func (s *Service) runBreakerMetrics(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, snap := range s.breakers.Snapshots() {
				metrics.BreakerState.WithLabelValues(snap.Resource).Set(float64(snap.State))
			}
		}
	}
}
