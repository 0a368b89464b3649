package domain

import "time"

// ChainRecord is an immutable registration as reported by the ledger.
// Produced only by the chain; never mutated locally.
type ChainRecord struct {
	Hash           string    `json:"hash"`
	Submitter      string    `json:"submitter"`
	CapturedAt     time.Time `json:"captured_at"`
	RegistrationID string    `json:"registration_id"`
}
