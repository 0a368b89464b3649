package domain

import (
	"math"
	"time"
)

// ReconciliationReport summarizes one drift scan. Reports are transient:
// logged, broadcast when the score breaches a threshold, then discarded.
type ReconciliationReport struct {
	TotalChecked     int             `json:"total_checked"`
	Inconsistencies  []Inconsistency `json:"inconsistencies"`
	ConsistencyScore int             `json:"consistency_score"`
	StartedAt        time.Time       `json:"started_at"`
	Duration         time.Duration   `json:"duration"`
	Timestamp        time.Time       `json:"timestamp"`
}

// ConsistencyScore computes the integer percentage of checked records that
// were consistent. An empty scan is fully consistent.
func ConsistencyScore(checked, inconsistent int) int {
	if checked <= 0 {
		return 100
	}
	if inconsistent > checked {
		inconsistent = checked
	}
	return int(math.Round(100 * float64(checked-inconsistent) / float64(checked)))
}
