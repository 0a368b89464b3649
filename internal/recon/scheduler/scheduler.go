// Package scheduler drives periodic reconciliation scans and routes their
// findings to healing, alerting, and the audit log.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/evidencex/reconciler/internal/audit"
	"github.com/evidencex/reconciler/internal/core/domain"
	"github.com/evidencex/reconciler/internal/recon/metrics"
)

// Detector produces one drift report per scan.
type Detector interface {
	Scan(ctx context.Context) domain.ReconciliationReport
}

// Healer applies remediation for a single finding.
type Healer interface {
	Apply(ctx context.Context, inc domain.Inconsistency)
}

// AlertPublisher broadcasts threshold-breach alerts. Best-effort.
type AlertPublisher interface {
	Publish(ctx context.Context, alert any)
}

// Config holds scheduler settings.
type Config struct {
	Interval time.Duration `yaml:"interval"`
	// AlertThreshold triggers an alert when the score drops below it.
	AlertThreshold int `yaml:"alert_threshold"`
	// CriticalThreshold escalates the alert severity.
	CriticalThreshold int `yaml:"critical_threshold"`
	// AutoHeal enables remediation of findings; detection-only when false.
	AutoHeal bool `yaml:"auto_heal"`
}

// DefaultConfig mirrors production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:          60 * time.Second,
		AlertThreshold:    95,
		CriticalThreshold: 90,
		AutoHeal:          true,
	}
}

// Status is the scheduler's externally visible state.
type Status struct {
	Running     bool       `json:"running"`
	LastScanAt  *time.Time `json:"last_scan_at,omitempty"`
	LastScore   *int       `json:"last_score,omitempty"`
	IntervalMs  int64      `json:"interval_ms"`
	MsUntilNext int64      `json:"ms_until_next"`
}

// Alert is the payload broadcast when consistency drops below threshold.
type Alert struct {
	Severity         string    `json:"severity"`
	ConsistencyScore int       `json:"consistency_score"`
	TotalChecked     int       `json:"total_checked"`
	Inconsistencies  int       `json:"inconsistencies"`
	Timestamp        time.Time `json:"timestamp"`
}

// Scheduler owns the reconciliation loop. One scheduled scan runs at a time;
// manual scans run out of band and do not reset the timer.
type Scheduler struct {
	cfg      Config
	detector Detector
	healer   Healer
	alerts   AlertPublisher
	sink     audit.Sink
	log      *slog.Logger

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	lastScanAt time.Time
	lastScore  *int
}

// New creates a scheduler.
func New(cfg Config, detector Detector, healer Healer, alerts AlertPublisher, sink audit.Sink) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Scheduler{
		cfg:      cfg,
		detector: detector,
		healer:   healer,
		alerts:   alerts,
		sink:     sink,
		log:      slog.Default(),
	}
}

// Start launches the periodic loop. Idempotent: calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("Reconciliation scheduler already running")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	s.log.Info("Reconciliation scheduler started", "interval", s.cfg.Interval)
	go s.loop(loopCtx)
}

// Stop halts the loop. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
	s.log.Info("Reconciliation scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	// First scan immediately, then on the interval.
	s.runScan(ctx, "scheduled")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runScan(ctx, "scheduled")
		}
	}
}

// RunManualCheck runs one scan outside the schedule and returns its report.
func (s *Scheduler) RunManualCheck(ctx context.Context) domain.ReconciliationReport {
	return s.runScan(ctx, "manual")
}

// Status reports the loop state. MsUntilNext is clamped at zero when a scan
// is overdue.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:    s.running,
		IntervalMs: s.cfg.Interval.Milliseconds(),
		LastScore:  s.lastScore,
	}
	if !s.lastScanAt.IsZero() {
		at := s.lastScanAt
		st.LastScanAt = &at
		if s.running {
			next := s.lastScanAt.Add(s.cfg.Interval)
			remaining := time.Until(next).Milliseconds()
			if remaining < 0 {
				remaining = 0
			}
			st.MsUntilNext = remaining
		}
	}
	return st
}

func (s *Scheduler) runScan(ctx context.Context, trigger string) (report domain.ReconciliationReport) {
	defer func() {
		// A panicking scan must not kill the loop.
		if r := recover(); r != nil {
			s.log.Error("Reconciliation scan panicked", "trigger", trigger, "panic", r)
			metrics.ScansTotal.WithLabelValues(trigger, "panic").Inc()
			s.sink.LogEvent(ctx, audit.EventCheckFailed, map[string]any{
				"trigger": trigger,
				"error":   "scan panicked",
			})
		}
	}()

	start := time.Now()
	report = s.detector.Scan(ctx)

	s.mu.Lock()
	s.lastScanAt = start
	score := report.ConsistencyScore
	s.lastScore = &score
	s.mu.Unlock()

	metrics.ScansTotal.WithLabelValues(trigger, "ok").Inc()
	metrics.ScanDuration.Observe(report.Duration.Seconds())

	s.log.Info("Reconciliation scan completed",
		"trigger", trigger,
		"checked", report.TotalChecked,
		"inconsistencies", len(report.Inconsistencies),
		"score", report.ConsistencyScore,
		"duration", report.Duration)

	s.sink.LogEvent(ctx, audit.EventCheckCompleted, map[string]any{
		"trigger":           trigger,
		"total_checked":     report.TotalChecked,
		"inconsistencies":   len(report.Inconsistencies),
		"consistency_score": report.ConsistencyScore,
		"duration_ms":       report.Duration.Milliseconds(),
	})

	if s.cfg.AutoHeal {
		for _, inc := range report.Inconsistencies {
			s.healer.Apply(ctx, inc)
		}
	}

	if report.ConsistencyScore < s.cfg.AlertThreshold {
		severity := "medium"
		if report.ConsistencyScore < s.cfg.CriticalThreshold {
			severity = "high"
		}
		alert := Alert{
			Severity:         severity,
			ConsistencyScore: report.ConsistencyScore,
			TotalChecked:     report.TotalChecked,
			Inconsistencies:  len(report.Inconsistencies),
			Timestamp:        time.Now(),
		}
		s.log.Warn("Consistency below threshold",
			"score", report.ConsistencyScore, "severity", severity)
		s.alerts.Publish(ctx, alert)
	}

	return report
}
