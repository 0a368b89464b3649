package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/evidencex/reconciler/internal/audit"
	"github.com/evidencex/reconciler/internal/core/domain"
)

type stubDetector struct {
	mu      sync.Mutex
	scans   int
	reports []domain.ReconciliationReport
	panics  bool
}

func (d *stubDetector) Scan(ctx context.Context) domain.ReconciliationReport {
	d.mu.Lock()
	i := d.scans
	d.scans++
	d.mu.Unlock()

	if d.panics {
		panic("detector blew up")
	}
	if i < len(d.reports) {
		return d.reports[i]
	}
	return domain.ReconciliationReport{TotalChecked: 1, ConsistencyScore: 100}
}

func (d *stubDetector) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scans
}

type stubHealer struct {
	mu      sync.Mutex
	applied []domain.Inconsistency
}

func (h *stubHealer) Apply(ctx context.Context, inc domain.Inconsistency) {
	h.mu.Lock()
	h.applied = append(h.applied, inc)
	h.mu.Unlock()
}

type stubAlerts struct {
	mu     sync.Mutex
	alerts []Alert
}

func (a *stubAlerts) Publish(ctx context.Context, alert any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if al, ok := alert.(Alert); ok {
		a.alerts = append(a.alerts, al)
	}
}

func newTestScheduler(cfg Config, d Detector, h Healer, a AlertPublisher) *Scheduler {
	return New(cfg, d, h, a, audit.NopSink{})
}

func TestManualCheckHealsFindings(t *testing.T) {
	detector := &stubDetector{reports: []domain.ReconciliationReport{{
		TotalChecked: 2,
		Inconsistencies: []domain.Inconsistency{
			domain.NewMissingOnChain("rec-1", "aa11", "not registered"),
		},
		ConsistencyScore: 50,
	}}}
	healer := &stubHealer{}
	s := newTestScheduler(DefaultConfig(), detector, healer, &stubAlerts{})

	report := s.RunManualCheck(context.Background())

	if report.ConsistencyScore != 50 {
		t.Errorf("score = %d, want 50", report.ConsistencyScore)
	}
	if len(healer.applied) != 1 || healer.applied[0].Kind != domain.MissingOnChain {
		t.Errorf("applied = %+v", healer.applied)
	}
}

func TestAutoHealDisabled(t *testing.T) {
	detector := &stubDetector{reports: []domain.ReconciliationReport{{
		TotalChecked:     1,
		Inconsistencies:  []domain.Inconsistency{domain.NewMissingOnChain("rec-1", "aa11", "x")},
		ConsistencyScore: 0,
	}}}
	healer := &stubHealer{}
	cfg := DefaultConfig()
	cfg.AutoHeal = false
	s := newTestScheduler(cfg, detector, healer, &stubAlerts{})

	s.RunManualCheck(context.Background())

	if len(healer.applied) != 0 {
		t.Errorf("healer invoked with auto-heal disabled: %+v", healer.applied)
	}
}

func TestAlertSeverity(t *testing.T) {
	tests := []struct {
		name     string
		score    int
		alerts   int
		severity string
	}{
		{"healthy no alert", 100, 0, ""},
		{"at threshold no alert", 95, 0, ""},
		{"medium below alert threshold", 93, 1, "medium"},
		{"high below critical threshold", 80, 1, "high"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detector := &stubDetector{reports: []domain.ReconciliationReport{{
				TotalChecked:     100,
				ConsistencyScore: tt.score,
			}}}
			alerts := &stubAlerts{}
			s := newTestScheduler(DefaultConfig(), detector, &stubHealer{}, alerts)

			s.RunManualCheck(context.Background())

			if len(alerts.alerts) != tt.alerts {
				t.Fatalf("alerts = %d, want %d", len(alerts.alerts), tt.alerts)
			}
			if tt.alerts > 0 && alerts.alerts[0].Severity != tt.severity {
				t.Errorf("severity = %s, want %s", alerts.alerts[0].Severity, tt.severity)
			}
		})
	}
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	detector := &stubDetector{}
	cfg := DefaultConfig()
	cfg.Interval = time.Hour
	s := newTestScheduler(cfg, detector, &stubHealer{}, &stubAlerts{})

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.After(time.Second)
	for detector.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no immediate scan after Start")
		case <-time.After(10 * time.Millisecond):
		}
	}

	s.Stop()
	if s.Status().Running {
		t.Error("running after Stop")
	}

	// Second Stop is a no-op.
	s.Stop()
}

func TestStartIdempotent(t *testing.T) {
	detector := &stubDetector{}
	cfg := DefaultConfig()
	cfg.Interval = time.Hour
	s := newTestScheduler(cfg, detector, &stubHealer{}, &stubAlerts{})

	s.Start(context.Background())
	defer s.Stop()
	s.Start(context.Background())

	deadline := time.After(time.Second)
	for detector.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no scan after Start")
		case <-time.After(10 * time.Millisecond):
		}
	}
	// A short settle window: a second loop would produce a second immediate scan.
	time.Sleep(50 * time.Millisecond)
	if got := detector.count(); got != 1 {
		t.Errorf("scans = %d, want 1 (single loop)", got)
	}
}

func TestScanPanicRecovered(t *testing.T) {
	detector := &stubDetector{panics: true}
	s := newTestScheduler(DefaultConfig(), detector, &stubHealer{}, &stubAlerts{})

	// Must not panic the caller.
	s.RunManualCheck(context.Background())

	if detector.count() != 1 {
		t.Errorf("scans = %d, want 1", detector.count())
	}
}

func TestStatus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = time.Hour
	s := newTestScheduler(cfg, &stubDetector{}, &stubHealer{}, &stubAlerts{})

	st := s.Status()
	if st.Running || st.LastScanAt != nil {
		t.Errorf("fresh status = %+v", st)
	}
	if st.IntervalMs != time.Hour.Milliseconds() {
		t.Errorf("interval_ms = %d", st.IntervalMs)
	}

	s.RunManualCheck(context.Background())

	st = s.Status()
	if st.LastScanAt == nil {
		t.Fatal("last scan not recorded")
	}
	if st.LastScore == nil || *st.LastScore != 100 {
		t.Errorf("last score = %v", st.LastScore)
	}
	// Not running, so no countdown.
	if st.MsUntilNext != 0 {
		t.Errorf("ms_until_next = %d, want 0 while stopped", st.MsUntilNext)
	}

	s.Start(context.Background())
	defer s.Stop()
	time.Sleep(20 * time.Millisecond)

	st = s.Status()
	if !st.Running {
		t.Error("not running after Start")
	}
	if st.MsUntilNext <= 0 || st.MsUntilNext > st.IntervalMs {
		t.Errorf("ms_until_next = %d out of range", st.MsUntilNext)
	}
}
