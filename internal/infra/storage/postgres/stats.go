package postgres

import (
	"sync"
	"time"
)

// CallSummary is a snapshot of the session's rolling call statistics.
type CallSummary struct {
	Count          int           `json:"count"`
	Failures       int           `json:"failures"`
	SlowCalls      int           `json:"slow_calls"`
	AverageLatency time.Duration `json:"average_latency"`
}

// CallStats tracks database call outcomes over a sliding latency window.
// Observability only; nothing here feeds back into control flow.
type CallStats struct {
	mu sync.Mutex

	count     int
	failures  int
	slowCalls int

	recentLatencies []time.Duration
	maxWindow       int
}

// NewCallStats creates stats with a 100-sample latency window.
func NewCallStats() *CallStats {
	return &CallStats{
		recentLatencies: make([]time.Duration, 0, 100),
		maxWindow:       100,
	}
}

// Record adds one call outcome.
func (cs *CallStats) Record(latency time.Duration, failed, slow bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.count++
	if failed {
		cs.failures++
	}
	if slow {
		cs.slowCalls++
	}

	cs.recentLatencies = append(cs.recentLatencies, latency)
	if len(cs.recentLatencies) > cs.maxWindow {
		cs.recentLatencies = cs.recentLatencies[1:]
	}
}

// Summary returns current totals and the windowed average latency.
func (cs *CallStats) Summary() CallSummary {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var avg time.Duration
	if len(cs.recentLatencies) > 0 {
		var total time.Duration
		for _, l := range cs.recentLatencies {
			total += l
		}
		avg = total / time.Duration(len(cs.recentLatencies))
	}

	return CallSummary{
		Count:          cs.count,
		Failures:       cs.failures,
		SlowCalls:      cs.slowCalls,
		AverageLatency: avg,
	}
}
