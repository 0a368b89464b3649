package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/evidencex/reconciler/internal/core/domain"
)

// unitOfWork bundles the mirror writes of one healing mutation into a single
// database transaction, ensuring atomicity (all succeed or all fail).
// Commit and rollback are owned by Session.WithTransaction.
type unitOfWork struct {
	tx *sqlx.Tx
}

// CreateEvidence inserts a new evidence record.
func (u *unitOfWork) CreateEvidence(ctx context.Context, rec *domain.EvidenceRecord) error {
	query := `
		INSERT INTO evidence_records (
			id, content_hash, status, chain_tx_id, confirmations,
			error_message, retry_count, storage_tag, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`

	_, err := u.tx.ExecContext(ctx, query,
		rec.ID, rec.ContentHash, string(rec.Status), rec.ChainTxID,
		rec.Confirmations, rec.ErrorMessage, rec.RetryCount, rec.StorageTag,
	)
	if err != nil {
		return fmt.Errorf("failed to create evidence record: %w", err)
	}
	return nil
}

// CreateTransactionRecord inserts the chain transaction row for a record.
func (u *unitOfWork) CreateTransactionRecord(ctx context.Context, txRec *domain.TransactionRecord) error {
	query := `
		INSERT INTO blockchain_tx_records (
			id, record_id, tx_hash, submitter, anchored_at, created_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
	`

	_, err := u.tx.ExecContext(ctx, query,
		txRec.ID, txRec.RecordID, txRec.TxHash, txRec.Submitter, txRec.AnchoredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction record: %w", err)
	}
	return nil
}
