package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evidencex/reconciler/internal/recon/scheduler"
	"github.com/evidencex/reconciler/internal/resilience"
)

// Pinger reports reachability of the mirror database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SchedulerStatus exposes the reconciliation loop state.
type SchedulerStatus interface {
	Status() scheduler.Status
}

// AlertHealth reports reachability of the alert channel. Optional.
type AlertHealth interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from the database, the circuit breakers,
// and the reconciliation loop.
type Monitor struct {
	db         Pinger
	breakers   *resilience.BreakerSet
	sched      SchedulerStatus
	alerts     AlertHealth
	interval   time.Duration
	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a health monitor. alerts may be nil when no broadcast
// channel is configured.
func NewMonitor(db Pinger, breakers *resilience.BreakerSet, sched SchedulerStatus, alerts AlertHealth, scanInterval time.Duration) *Monitor {
	return &Monitor{
		db:       db,
		breakers: breakers,
		sched:    sched,
		alerts:   alerts,
		interval: scanInterval,
	}
}

// CheckHealth performs a health check. Results are cached briefly so the
// endpoint cannot be used to hammer the database.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport.Components != nil {
		return m.lastReport
	}

	report := Report{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
	}

	// 1. Database reachability
	dbHealth := ComponentHealth{Status: StatusHealthy}
	if err := m.db.Ping(ctx); err != nil {
		dbHealth = ComponentHealth{Status: StatusCritical, Detail: err.Error()}
	}
	report.Components["database"] = dbHealth

	// 2. Circuit breakers: any open breaker degrades the system
	report.Breakers = m.breakers.Snapshots()
	breakerHealth := ComponentHealth{Status: StatusHealthy}
	for _, snap := range report.Breakers {
		if snap.State == resilience.StateOpen {
			breakerHealth = ComponentHealth{
				Status: StatusDegraded,
				Detail: fmt.Sprintf("breaker open: %s", snap.Resource),
			}
			break
		}
	}
	report.Components["breakers"] = breakerHealth

	// 3. Reconciliation loop freshness
	st := m.sched.Status()
	report.LastScore = st.LastScore
	schedHealth := ComponentHealth{Status: StatusHealthy}
	switch {
	case !st.Running:
		schedHealth = ComponentHealth{Status: StatusDegraded, Detail: "scheduler not running"}
	case st.LastScanAt != nil && time.Since(*st.LastScanAt) > 2*m.interval:
		schedHealth = ComponentHealth{
			Status: StatusDegraded,
			Detail: fmt.Sprintf("last scan %s ago", time.Since(*st.LastScanAt).Round(time.Second)),
		}
	}
	report.Components["scheduler"] = schedHealth

	// 4. Alert channel (optional)
	if m.alerts != nil {
		alertHealth := ComponentHealth{Status: StatusHealthy}
		if err := m.alerts.Health(ctx); err != nil {
			alertHealth = ComponentHealth{Status: StatusDegraded, Detail: err.Error()}
		}
		report.Components["alerts"] = alertHealth
	}

	// Aggregate status (worst case wins)
	for _, c := range report.Components {
		if c.Status == StatusCritical {
			report.SystemStatus = StatusCritical
			break
		}
		if c.Status == StatusDegraded {
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
