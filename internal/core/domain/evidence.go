package domain

import "time"

// EvidenceStatus is the lifecycle state of an evidence record in the mirror.
type EvidenceStatus string

const (
	EvidencePending    EvidenceStatus = "pending"
	EvidenceProcessing EvidenceStatus = "processing"
	EvidenceConfirmed  EvidenceStatus = "confirmed"
	EvidenceFailed     EvidenceStatus = "failed"
	EvidenceRejected   EvidenceStatus = "rejected"
)

// Storage tags mark where an evidence record originated.
const (
	StorageTagLocal      = "local"
	StorageTagBlockchain = "blockchain"
)

// EvidenceRecord is the mirror's mutable view of a captured document hash.
// Invariants: confirmed records eventually carry a chain transaction id;
// failed records always carry an error message.
type EvidenceRecord struct {
	ID            string         `json:"id"`
	ContentHash   string         `json:"content_hash"` // sha256 hex, fixed length
	Status        EvidenceStatus `json:"status"`
	ChainTxID     *string        `json:"chain_tx_id,omitempty"`
	Confirmations int            `json:"confirmations"`
	ErrorMessage  *string        `json:"error_message,omitempty"`
	RetryCount    int            `json:"retry_count"`
	StorageTag    string         `json:"storage_tag"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TransactionRecord is the mirror-side row describing the chain transaction
// that anchored an evidence record.
type TransactionRecord struct {
	ID         string    `json:"id"`
	RecordID   string    `json:"record_id"`
	TxHash     string    `json:"tx_hash"`
	Submitter  string    `json:"submitter"`
	AnchoredAt time.Time `json:"anchored_at"`
	CreatedAt  time.Time `json:"created_at"`
}
