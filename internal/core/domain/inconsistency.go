package domain

// InconsistencyKind classifies a single mirror/chain divergence.
type InconsistencyKind string

const (
	MissingOnChain           InconsistencyKind = "missing_on_chain"
	MissingInMirror          InconsistencyKind = "missing_in_mirror"
	StatusMismatch           InconsistencyKind = "status_mismatch"
	MissingTransactionRecord InconsistencyKind = "missing_transaction_record"
	TransactionHashMismatch  InconsistencyKind = "transaction_hash_mismatch"
	DuplicateHash            InconsistencyKind = "duplicate_hash"
	VerificationError        InconsistencyKind = "verification_error"
	CheckFailed              InconsistencyKind = "check_failed"
)

// Inconsistency is one drift finding produced by a scan. Fields beyond Kind
// and Message are populated per kind; the constructors below keep the set
// closed.
type Inconsistency struct {
	Kind    InconsistencyKind `json:"kind"`
	Message string            `json:"message"`

	// RecordID identifies the offending mirror record where one exists.
	RecordID string `json:"record_id,omitempty"`
	// Hash is the content hash involved, when known.
	Hash string `json:"hash,omitempty"`
	// RecordIDs lists all members of a duplicate-hash group.
	RecordIDs []string `json:"record_ids,omitempty"`
	// Chain carries the ledger registration for missing-in-mirror findings,
	// so the healer can synthesize the mirror row from it.
	Chain *ChainRecord `json:"chain,omitempty"`
	// Expected and Actual describe a mismatch (status or tx hash).
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	// Check names the drift check that failed, for check_failed entries.
	Check string `json:"check,omitempty"`
}

func NewMissingOnChain(recordID, hash, message string) Inconsistency {
	return Inconsistency{Kind: MissingOnChain, RecordID: recordID, Hash: hash, Message: message}
}

func NewMissingInMirror(chain ChainRecord, message string) Inconsistency {
	c := chain
	return Inconsistency{Kind: MissingInMirror, Hash: chain.Hash, Chain: &c, Message: message}
}

func NewStatusMismatch(recordID, hash string, expected, actual EvidenceStatus, message string) Inconsistency {
	return Inconsistency{
		Kind: StatusMismatch, RecordID: recordID, Hash: hash,
		Expected: string(expected), Actual: string(actual), Message: message,
	}
}

func NewMissingTransactionRecord(recordID, hash, message string) Inconsistency {
	return Inconsistency{Kind: MissingTransactionRecord, RecordID: recordID, Hash: hash, Message: message}
}

func NewTransactionHashMismatch(recordID, expected, actual, message string) Inconsistency {
	return Inconsistency{
		Kind: TransactionHashMismatch, RecordID: recordID,
		Expected: expected, Actual: actual, Message: message,
	}
}

func NewDuplicateHash(hash string, recordIDs []string, message string) Inconsistency {
	return Inconsistency{Kind: DuplicateHash, Hash: hash, RecordIDs: recordIDs, Message: message}
}

func NewVerificationError(recordID, hash, message string) Inconsistency {
	return Inconsistency{Kind: VerificationError, RecordID: recordID, Hash: hash, Message: message}
}

func NewCheckFailed(check, message string) Inconsistency {
	return Inconsistency{Kind: CheckFailed, Check: check, Message: message}
}
