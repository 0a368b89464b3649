package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts reconciliation scans by trigger and outcome
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_scans_total",
			Help: "Total number of reconciliation scans",
		},
		[]string{"trigger", "result"},
	)

	// ScanDuration tracks end-to-end scan latency
	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconciler_scan_duration_seconds",
			Help:    "Reconciliation scan duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ConsistencyScore is the score of the most recent scan
	ConsistencyScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconciler_consistency_score",
			Help: "Consistency score of the latest scan (0-100)",
		},
	)

	// InconsistenciesTotal counts drift findings by kind
	InconsistenciesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_inconsistencies_total",
			Help: "Total number of detected inconsistencies",
		},
		[]string{"kind"},
	)

	// HealsTotal counts auto-heal attempts by reason and outcome
	HealsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_heals_total",
			Help: "Total number of auto-heal mutations",
		},
		[]string{"reason", "result"},
	)

	// BreakerState exposes circuit breaker state per resource
	// (0=closed, 1=open, 2=half_open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reconciler_breaker_state",
			Help: "Circuit breaker state per resource (0=closed, 1=open, 2=half_open)",
		},
		[]string{"resource"},
	)

	// LedgerCallsTotal counts ledger gateway calls per endpoint
	LedgerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_ledger_calls_total",
			Help: "Total number of ledger gateway calls",
		},
		[]string{"endpoint", "result"},
	)

	// LedgerCallLatency tracks ledger gateway call latency
	LedgerCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reconciler_ledger_call_latency_seconds",
			Help:    "Ledger gateway call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// StoreCallsTotal counts database operations by outcome
	StoreCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_store_calls_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "result"},
	)

	// StoreCallLatency tracks database operation latency
	StoreCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reconciler_store_call_latency_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// StoreSlowCalls counts database operations over the slow-call threshold
	StoreSlowCalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciler_store_slow_calls_total",
			Help: "Total number of slow database operations",
		},
	)

	// DBConnectionPoolUsage exposes pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconciler_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
