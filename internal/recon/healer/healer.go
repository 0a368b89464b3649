// Package healer applies corrective mutations to the mirror store when the
// drift detector finds a divergence from the chain.
package healer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/evidencex/reconciler/internal/audit"
	"github.com/evidencex/reconciler/internal/core/domain"
	"github.com/evidencex/reconciler/internal/infra/storage"
	"github.com/evidencex/reconciler/internal/recon/metrics"
)

// Healing reasons. The reason decides the target status: a sync reason marks
// the record confirmed, every other reason marks it failed.
const (
	ReasonChainVerificationFailed = "blockchain_verification_failed"
	ReasonSyncStatusFromChain     = "sync_status_from_blockchain"
)

// Healer repairs mirror records flagged by reconciliation.
type Healer struct {
	mirror storage.Mirror
	sink   audit.Sink
	log    *slog.Logger
}

// New creates a healer writing through the given mirror store.
func New(mirror storage.Mirror, sink audit.Sink) *Healer {
	return &Healer{mirror: mirror, sink: sink, log: slog.Default()}
}

// HealRecord transitions one existing record according to the healing reason.
// Sync reasons confirm the record and clear its error; all other reasons mark
// it failed with an explanatory message.
func (h *Healer) HealRecord(ctx context.Context, recordID, reason string) error {
	rec, err := h.mirror.EvidenceByID(ctx, recordID)
	if err != nil {
		metrics.HealsTotal.WithLabelValues(reason, "error").Inc()
		return fmt.Errorf("failed to load record for healing: %w", err)
	}
	if rec == nil {
		metrics.HealsTotal.WithLabelValues(reason, "error").Inc()
		return fmt.Errorf("record %s not found", recordID)
	}

	var status domain.EvidenceStatus
	var errorMessage *string
	if reason == ReasonSyncStatusFromChain {
		status = domain.EvidenceConfirmed
	} else {
		status = domain.EvidenceFailed
		msg := "Auto-healed: " + reason
		errorMessage = &msg
	}

	if err := h.mirror.SetStatus(ctx, recordID, status, errorMessage); err != nil {
		metrics.HealsTotal.WithLabelValues(reason, "error").Inc()
		return fmt.Errorf("failed to heal record %s: %w", recordID, err)
	}

	h.log.Info("Record auto-healed",
		"record_id", recordID, "reason", reason,
		"from", rec.Status, "to", status)
	metrics.HealsTotal.WithLabelValues(reason, "ok").Inc()
	h.sink.LogEvent(ctx, audit.EventRecordHealed, map[string]any{
		"record_id": recordID,
		"reason":    reason,
		"from":      string(rec.Status),
		"to":        string(status),
	})
	return nil
}

// SyncFromChain materializes a mirror record for a chain registration the
// mirror has never seen. Idempotent: if a record for the hash already exists
// it is returned unchanged.
func (h *Healer) SyncFromChain(ctx context.Context, chain domain.ChainRecord) (*domain.EvidenceRecord, error) {
	existing, err := h.mirror.EvidenceByHash(ctx, chain.Hash)
	if err != nil {
		metrics.HealsTotal.WithLabelValues("sync_from_chain", "error").Inc()
		return nil, fmt.Errorf("failed to check for existing record: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	chainTxID := chain.RegistrationID
	rec := &domain.EvidenceRecord{
		ID:          uuid.NewString(),
		ContentHash: chain.Hash,
		Status:      domain.EvidenceConfirmed,
		ChainTxID:   &chainTxID,
		StorageTag:  domain.StorageTagBlockchain,
	}
	txRec := &domain.TransactionRecord{
		ID:         uuid.NewString(),
		RecordID:   rec.ID,
		TxHash:     chain.RegistrationID,
		Submitter:  chain.Submitter,
		AnchoredAt: chain.CapturedAt,
	}

	err = h.mirror.WithTransaction(ctx, func(uow storage.UnitOfWork) error {
		if err := uow.CreateEvidence(ctx, rec); err != nil {
			return err
		}
		return uow.CreateTransactionRecord(ctx, txRec)
	})
	if err != nil {
		metrics.HealsTotal.WithLabelValues("sync_from_chain", "error").Inc()
		return nil, fmt.Errorf("failed to sync record from chain: %w", err)
	}

	h.log.Info("Record synced from chain",
		"record_id", rec.ID, "hash", chain.Hash, "registration_id", chain.RegistrationID)
	metrics.HealsTotal.WithLabelValues("sync_from_chain", "ok").Inc()
	h.sink.LogEvent(ctx, audit.EventRecordSynced, map[string]any{
		"record_id":       rec.ID,
		"hash":            chain.Hash,
		"registration_id": chain.RegistrationID,
		"submitter":       chain.Submitter,
	})
	return rec, nil
}

// Apply routes one inconsistency to its remediation. Kinds with no automatic
// remedy (duplicates, transaction gaps, check failures) are logged only.
// Apply never propagates errors: a failed heal is retried naturally by the
// next scan.
func (h *Healer) Apply(ctx context.Context, inc domain.Inconsistency) {
	var err error
	switch inc.Kind {
	case domain.MissingOnChain:
		err = h.HealRecord(ctx, inc.RecordID, ReasonChainVerificationFailed)
	case domain.StatusMismatch:
		err = h.HealRecord(ctx, inc.RecordID, ReasonSyncStatusFromChain)
	case domain.MissingInMirror:
		if inc.Chain != nil {
			_, err = h.SyncFromChain(ctx, *inc.Chain)
		}
	default:
		// No automatic remediation; the finding is surfaced through the
		// report, alerts, and audit log.
	}
	if err != nil {
		h.log.Warn("Healing failed",
			"kind", inc.Kind, "record_id", inc.RecordID, "hash", inc.Hash, "error", err)
	}
}
