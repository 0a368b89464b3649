package storage

import (
	"context"
	"time"

	"github.com/evidencex/reconciler/internal/core/domain"
)

// EvidenceWithTx is one row of the confirmed-records left join against
// transaction records used by the transaction integrity check. Tx is nil
// when no transaction row exists for the record.
type EvidenceWithTx struct {
	Record domain.EvidenceRecord
	Tx     *domain.TransactionRecord
}

// HashGroup lists the mirror records sharing one content hash.
type HashGroup struct {
	Hash      string
	RecordIDs []string
}

// UnitOfWork exposes the writes available inside one mirror transaction.
// Everything done through it commits or rolls back as a unit.
type UnitOfWork interface {
	CreateEvidence(ctx context.Context, rec *domain.EvidenceRecord) error
	CreateTransactionRecord(ctx context.Context, tx *domain.TransactionRecord) error
}

// Mirror is the store surface the reconciliation core depends on.
// Implementations must distinguish "zero rows" (nil, nil) from connectivity
// failure (nil, err).
type Mirror interface {
	EvidenceByID(ctx context.Context, id string) (*domain.EvidenceRecord, error)
	EvidenceByHash(ctx context.Context, hash string) (*domain.EvidenceRecord, error)

	// ConfirmedWithChainRef samples confirmed records carrying a chain
	// transaction reference, created since the given time, newest first.
	ConfirmedWithChainRef(ctx context.Context, since time.Time, limit int) ([]*domain.EvidenceRecord, error)

	// ConfirmedJoinTransactions left-joins recently confirmed records
	// against their transaction records.
	ConfirmedJoinTransactions(ctx context.Context, since time.Time, limit int) ([]EvidenceWithTx, error)

	// DuplicateHashGroups returns every hash shared by more than one record
	// created since the given time.
	DuplicateHashGroups(ctx context.Context, since time.Time) ([]HashGroup, error)

	SetStatus(ctx context.Context, id string, status domain.EvidenceStatus, errorMessage *string) error

	// WithTransaction runs fn inside one transaction; fn's writes through
	// the unit of work are committed together or not at all.
	WithTransaction(ctx context.Context, fn func(UnitOfWork) error) error
}
