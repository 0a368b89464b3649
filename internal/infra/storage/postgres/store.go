package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/evidencex/reconciler/internal/core/domain"
	"github.com/evidencex/reconciler/internal/infra/storage"
)

// Store implements storage.Mirror on PostgreSQL through the resilient
// session.
type Store struct {
	session *Session
}

// NewStore creates a PostgreSQL-backed mirror store.
func NewStore(session *Session) *Store {
	return &Store{session: session}
}

type evidenceRow struct {
	ID            string    `db:"id"`
	ContentHash   string    `db:"content_hash"`
	Status        string    `db:"status"`
	ChainTxID     *string   `db:"chain_tx_id"`
	Confirmations int       `db:"confirmations"`
	ErrorMessage  *string   `db:"error_message"`
	RetryCount    int       `db:"retry_count"`
	StorageTag    string    `db:"storage_tag"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r *evidenceRow) toDomain() *domain.EvidenceRecord {
	return &domain.EvidenceRecord{
		ID:            r.ID,
		ContentHash:   r.ContentHash,
		Status:        domain.EvidenceStatus(r.Status),
		ChainTxID:     r.ChainTxID,
		Confirmations: r.Confirmations,
		ErrorMessage:  r.ErrorMessage,
		RetryCount:    r.RetryCount,
		StorageTag:    r.StorageTag,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

const evidenceColumns = `id, content_hash, status, chain_tx_id, confirmations, error_message, retry_count, storage_tag, created_at, updated_at`

// EvidenceByID retrieves a single record; (nil, nil) when absent.
func (s *Store) EvidenceByID(ctx context.Context, id string) (*domain.EvidenceRecord, error) {
	var rec *domain.EvidenceRecord
	err := s.session.Execute(ctx, "evidence_by_id", func(ctx context.Context, db *sqlx.DB) error {
		query := `SELECT ` + evidenceColumns + ` FROM evidence_records WHERE id = $1`

		var row evidenceRow
		err := db.GetContext(ctx, &row, query, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get evidence record: %w", err)
		}
		rec = row.toDomain()
		return nil
	})
	return rec, err
}

// EvidenceByHash retrieves the oldest record for a content hash;
// (nil, nil) when absent.
func (s *Store) EvidenceByHash(ctx context.Context, hash string) (*domain.EvidenceRecord, error) {
	var rec *domain.EvidenceRecord
	err := s.session.Execute(ctx, "evidence_by_hash", func(ctx context.Context, db *sqlx.DB) error {
		query := `SELECT ` + evidenceColumns + ` FROM evidence_records WHERE content_hash = $1 ORDER BY created_at ASC LIMIT 1`

		var row evidenceRow
		err := db.GetContext(ctx, &row, query, hash)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get evidence record by hash: %w", err)
		}
		rec = row.toDomain()
		return nil
	})
	return rec, err
}

// ConfirmedWithChainRef samples confirmed records with a chain reference
// created since the given time, newest first.
func (s *Store) ConfirmedWithChainRef(ctx context.Context, since time.Time, limit int) ([]*domain.EvidenceRecord, error) {
	var recs []*domain.EvidenceRecord
	err := s.session.Execute(ctx, "confirmed_with_chain_ref", func(ctx context.Context, db *sqlx.DB) error {
		query := `
			SELECT ` + evidenceColumns + `
			FROM evidence_records
			WHERE status = $1 AND chain_tx_id IS NOT NULL AND created_at >= $2
			ORDER BY created_at DESC
			LIMIT $3
		`

		var rows []evidenceRow
		if err := db.SelectContext(ctx, &rows, query, string(domain.EvidenceConfirmed), since, limit); err != nil {
			return fmt.Errorf("failed to list confirmed records: %w", err)
		}
		for i := range rows {
			recs = append(recs, rows[i].toDomain())
		}
		return nil
	})
	return recs, err
}

type evidenceTxRow struct {
	evidenceRow
	TxID        *string    `db:"tx_id"`
	TxHash      *string    `db:"tx_hash"`
	Submitter   *string    `db:"submitter"`
	AnchoredAt  *time.Time `db:"anchored_at"`
	TxCreatedAt *time.Time `db:"tx_created_at"`
}

// ConfirmedJoinTransactions left-joins recently confirmed records against
// transaction records.
func (s *Store) ConfirmedJoinTransactions(ctx context.Context, since time.Time, limit int) ([]storage.EvidenceWithTx, error) {
	var out []storage.EvidenceWithTx
	err := s.session.Execute(ctx, "confirmed_join_transactions", func(ctx context.Context, db *sqlx.DB) error {
		query := `
			SELECT e.id, e.content_hash, e.status, e.chain_tx_id, e.confirmations,
			       e.error_message, e.retry_count, e.storage_tag, e.created_at, e.updated_at,
			       t.id AS tx_id, t.tx_hash, t.submitter, t.anchored_at, t.created_at AS tx_created_at
			FROM evidence_records e
			LEFT JOIN blockchain_tx_records t ON t.record_id = e.id
			WHERE e.status = $1 AND e.updated_at >= $2
			ORDER BY e.updated_at DESC
			LIMIT $3
		`

		var rows []evidenceTxRow
		if err := db.SelectContext(ctx, &rows, query, string(domain.EvidenceConfirmed), since, limit); err != nil {
			return fmt.Errorf("failed to join transaction records: %w", err)
		}

		for i := range rows {
			row := rows[i]
			item := storage.EvidenceWithTx{Record: *row.evidenceRow.toDomain()}
			if row.TxID != nil {
				item.Tx = &domain.TransactionRecord{
					ID:       *row.TxID,
					RecordID: row.ID,
				}
				if row.TxHash != nil {
					item.Tx.TxHash = *row.TxHash
				}
				if row.Submitter != nil {
					item.Tx.Submitter = *row.Submitter
				}
				if row.AnchoredAt != nil {
					item.Tx.AnchoredAt = *row.AnchoredAt
				}
				if row.TxCreatedAt != nil {
					item.Tx.CreatedAt = *row.TxCreatedAt
				}
			}
			out = append(out, item)
		}
		return nil
	})
	return out, err
}

type duplicateRow struct {
	Hash      string `db:"content_hash"`
	RecordIDs string `db:"record_ids"`
}

// DuplicateHashGroups returns hashes shared by more than one record created
// since the given time.
func (s *Store) DuplicateHashGroups(ctx context.Context, since time.Time) ([]storage.HashGroup, error) {
	var groups []storage.HashGroup
	err := s.session.Execute(ctx, "duplicate_hash_groups", func(ctx context.Context, db *sqlx.DB) error {
		query := `
			SELECT content_hash, string_agg(id, ',' ORDER BY created_at) AS record_ids
			FROM evidence_records
			WHERE created_at >= $1
			GROUP BY content_hash
			HAVING COUNT(*) > 1
		`

		var rows []duplicateRow
		if err := db.SelectContext(ctx, &rows, query, since); err != nil {
			return fmt.Errorf("failed to group duplicate hashes: %w", err)
		}
		for _, row := range rows {
			groups = append(groups, storage.HashGroup{
				Hash:      row.Hash,
				RecordIDs: strings.Split(row.RecordIDs, ","),
			})
		}
		return nil
	})
	return groups, err
}

// SetStatus updates one record's status and error message.
func (s *Store) SetStatus(ctx context.Context, id string, status domain.EvidenceStatus, errorMessage *string) error {
	return s.session.Execute(ctx, "set_status", func(ctx context.Context, db *sqlx.DB) error {
		query := `UPDATE evidence_records SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1`

		res, err := db.ExecContext(ctx, query, id, string(status), errorMessage)
		if err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("evidence record %s not found", id)
		}
		return nil
	})
}

// WithTransaction runs fn inside one database transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(storage.UnitOfWork) error) error {
	opts := TxOptions{
		Isolation:        sql.LevelReadCommitted,
		StatementTimeout: 5 * time.Second,
	}
	return s.session.WithTransaction(ctx, opts, func(tx *sqlx.Tx) error {
		return fn(&unitOfWork{tx: tx})
	})
}

// InsertAuditEvent appends one audit log row.
func (s *Store) InsertAuditEvent(ctx context.Context, id, kind string, payload []byte) error {
	return s.session.Execute(ctx, "insert_audit_event", func(ctx context.Context, db *sqlx.DB) error {
		query := `INSERT INTO audit_log (id, kind, payload, created_at) VALUES ($1, $2, $3, NOW())`
		if _, err := db.ExecContext(ctx, query, id, kind, payload); err != nil {
			return fmt.Errorf("failed to insert audit event: %w", err)
		}
		return nil
	})
}
