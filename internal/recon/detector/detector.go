// Package detector runs the drift checks comparing the mirror store against
// the chain ledger.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evidencex/reconciler/internal/core/domain"
	"github.com/evidencex/reconciler/internal/infra/storage"
	"github.com/evidencex/reconciler/internal/recon/metrics"
	"github.com/evidencex/reconciler/internal/resilience"
)

// Ledger is the chain surface the detector reads. Both calls go through the
// resilient gateway client.
type Ledger interface {
	VerifyHash(ctx context.Context, hash string) (bool, error)
	LatestRegisteredHashes(ctx context.Context) ([]domain.ChainRecord, error)
}

// Config bounds each drift check's sample.
type Config struct {
	// VerifySampleLimit caps how many confirmed records the chain presence
	// check verifies per scan.
	VerifySampleLimit int           `yaml:"verify_sample_limit"`
	VerifyLookback    time.Duration `yaml:"verify_lookback"`

	// RegistrySampleLimit caps how many chain registrations the reverse check
	// inspects per scan.
	RegistrySampleLimit int           `yaml:"registry_sample_limit"`
	RegistryLookback    time.Duration `yaml:"registry_lookback"`

	// TxSampleLimit caps the transaction integrity check's join.
	TxSampleLimit int           `yaml:"tx_sample_limit"`
	TxLookback    time.Duration `yaml:"tx_lookback"`

	// DuplicateLookback bounds the duplicate hash sweep.
	DuplicateLookback time.Duration `yaml:"duplicate_lookback"`
}

// DefaultConfig mirrors the sample sizes used in production.
func DefaultConfig() Config {
	return Config{
		VerifySampleLimit:   50,
		VerifyLookback:      24 * time.Hour,
		RegistrySampleLimit: 50,
		RegistryLookback:    24 * time.Hour,
		TxSampleLimit:       25,
		TxLookback:          time.Hour,
		DuplicateLookback:   24 * time.Hour,
	}
}

// Detector runs the four drift checks concurrently and aggregates their
// findings into a report. It only detects; remediation belongs to the healer.
type Detector struct {
	cfg    Config
	mirror storage.Mirror
	ledger Ledger
	log    *slog.Logger
}

// New creates a detector.
func New(cfg Config, mirror storage.Mirror, ledger Ledger) *Detector {
	return &Detector{cfg: cfg, mirror: mirror, ledger: ledger, log: slog.Default()}
}

type checkResult struct {
	name     string
	checked  int
	findings []domain.Inconsistency
}

// Scan runs all drift checks and settles every one of them: a failing check
// contributes a check_failed finding instead of aborting its siblings.
func (d *Detector) Scan(ctx context.Context) domain.ReconciliationReport {
	started := time.Now()

	checks := []func(context.Context) (checkResult, error){
		d.checkChainPresence,
		d.checkMirrorPresence,
		d.checkTransactionIntegrity,
		d.checkDuplicateHashes,
	}
	names := []string{"chain_presence", "mirror_presence", "transaction_integrity", "duplicate_hashes"}

	report := domain.ReconciliationReport{
		StartedAt: started,
		Timestamp: started,
	}

	for i, res := range resilience.SettleAll(ctx, checks) {
		if res.Err != nil {
			d.log.Warn("Drift check failed", "check", names[i], "error", res.Err)
			report.Inconsistencies = append(report.Inconsistencies,
				domain.NewCheckFailed(names[i], res.Err.Error()))
			continue
		}
		report.TotalChecked += res.Value.checked
		report.Inconsistencies = append(report.Inconsistencies, res.Value.findings...)
	}

	report.ConsistencyScore = domain.ConsistencyScore(report.TotalChecked, len(report.Inconsistencies))
	report.Duration = time.Since(started)

	for _, inc := range report.Inconsistencies {
		metrics.InconsistenciesTotal.WithLabelValues(string(inc.Kind)).Inc()
	}
	metrics.ConsistencyScore.Set(float64(report.ConsistencyScore))

	return report
}

// checkChainPresence verifies that a sample of confirmed mirror records is
// actually registered on chain.
func (d *Detector) checkChainPresence(ctx context.Context) (checkResult, error) {
	res := checkResult{name: "chain_presence"}

	since := time.Now().Add(-d.cfg.VerifyLookback)
	records, err := d.mirror.ConfirmedWithChainRef(ctx, since, d.cfg.VerifySampleLimit)
	if err != nil {
		return res, fmt.Errorf("failed to sample confirmed records: %w", err)
	}
	res.checked = len(records)

	tasks := make([]func(context.Context) (bool, error), len(records))
	for i, rec := range records {
		hash := rec.ContentHash
		tasks[i] = func(ctx context.Context) (bool, error) {
			return d.ledger.VerifyHash(ctx, hash)
		}
	}

	for i, verify := range resilience.SettleAll(ctx, tasks) {
		rec := records[i]
		if verify.Err != nil {
			res.findings = append(res.findings, domain.NewVerificationError(
				rec.ID, rec.ContentHash,
				fmt.Sprintf("verification failed: %v", verify.Err)))
			continue
		}
		if !verify.Value {
			res.findings = append(res.findings, domain.NewMissingOnChain(
				rec.ID, rec.ContentHash,
				"record confirmed in mirror but not registered on chain"))
		}
	}
	return res, nil
}

// checkMirrorPresence walks recent chain registrations and flags hashes the
// mirror has never seen or holds in a non-confirmed state.
func (d *Detector) checkMirrorPresence(ctx context.Context) (checkResult, error) {
	res := checkResult{name: "mirror_presence"}

	registrations, err := d.ledger.LatestRegisteredHashes(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to fetch chain registrations: %w", err)
	}

	cutoff := time.Now().Add(-d.cfg.RegistryLookback)
	sample := make([]domain.ChainRecord, 0, d.cfg.RegistrySampleLimit)
	for _, reg := range registrations {
		if reg.CapturedAt.Before(cutoff) {
			continue
		}
		sample = append(sample, reg)
		if len(sample) >= d.cfg.RegistrySampleLimit {
			break
		}
	}
	res.checked = len(sample)

	for _, reg := range sample {
		rec, err := d.mirror.EvidenceByHash(ctx, reg.Hash)
		if err != nil {
			return res, fmt.Errorf("failed to look up hash %s: %w", reg.Hash, err)
		}
		if rec == nil {
			res.findings = append(res.findings, domain.NewMissingInMirror(reg,
				"hash registered on chain but absent from mirror"))
			continue
		}
		if rec.Status != domain.EvidenceConfirmed {
			res.findings = append(res.findings, domain.NewStatusMismatch(
				rec.ID, rec.ContentHash, domain.EvidenceConfirmed, rec.Status,
				"hash registered on chain but mirror record not confirmed"))
		}
	}
	return res, nil
}

// checkTransactionIntegrity cross-checks confirmed records against their
// transaction rows.
func (d *Detector) checkTransactionIntegrity(ctx context.Context) (checkResult, error) {
	res := checkResult{name: "transaction_integrity"}

	since := time.Now().Add(-d.cfg.TxLookback)
	rows, err := d.mirror.ConfirmedJoinTransactions(ctx, since, d.cfg.TxSampleLimit)
	if err != nil {
		return res, fmt.Errorf("failed to join transaction records: %w", err)
	}
	res.checked = len(rows)

	for _, row := range rows {
		rec := row.Record
		if row.Tx == nil {
			res.findings = append(res.findings, domain.NewMissingTransactionRecord(
				rec.ID, rec.ContentHash,
				"confirmed record has no transaction record"))
			continue
		}
		if rec.ChainTxID != nil && *rec.ChainTxID != row.Tx.TxHash {
			res.findings = append(res.findings, domain.NewTransactionHashMismatch(
				rec.ID, *rec.ChainTxID, row.Tx.TxHash,
				"record chain reference disagrees with transaction record"))
		}
	}
	return res, nil
}

// checkDuplicateHashes sweeps for content hashes shared by multiple records.
// One finding per group, regardless of group size.
func (d *Detector) checkDuplicateHashes(ctx context.Context) (checkResult, error) {
	res := checkResult{name: "duplicate_hashes"}

	since := time.Now().Add(-d.cfg.DuplicateLookback)
	groups, err := d.mirror.DuplicateHashGroups(ctx, since)
	if err != nil {
		return res, fmt.Errorf("failed to sweep duplicate hashes: %w", err)
	}
	res.checked = len(groups)

	for _, group := range groups {
		res.findings = append(res.findings, domain.NewDuplicateHash(
			group.Hash, group.RecordIDs,
			fmt.Sprintf("%d records share one content hash", len(group.RecordIDs))))
	}
	return res, nil
}
