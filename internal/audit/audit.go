// Package audit records reconciliation events in the durable audit log.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
)

// Event kinds written by the reconciliation engine.
const (
	EventCheckCompleted = "CONSISTENCY_CHECK_COMPLETED"
	EventCheckFailed    = "CONSISTENCY_CHECK_FAILED"
	EventRecordHealed   = "RECORD_AUTO_HEALED"
	EventRecordSynced   = "RECORD_AUTO_SYNCED"
)

// Sink accepts audit events. Implementations must be fire-and-forget: a
// failing audit write never fails the operation that produced it.
type Sink interface {
	LogEvent(ctx context.Context, kind string, payload map[string]any)
}

// Recorder is the storage dependency of the database-backed sink.
type Recorder interface {
	InsertAuditEvent(ctx context.Context, id, kind string, payload []byte) error
}

// Logger writes audit events to the database audit_log table.
type Logger struct {
	recorder Recorder
	log      *slog.Logger
}

// NewLogger creates a database-backed audit sink.
func NewLogger(recorder Recorder) *Logger {
	return &Logger{recorder: recorder, log: slog.Default()}
}

// LogEvent persists one audit entry. Errors are logged and swallowed.
func (l *Logger) LogEvent(ctx context.Context, kind string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		l.log.Warn("Failed to marshal audit payload", "kind", kind, "error", err)
		return
	}
	if err := l.recorder.InsertAuditEvent(ctx, uuid.NewString(), kind, data); err != nil {
		l.log.Warn("Failed to write audit event", "kind", kind, "error", err)
	}
}

// NopSink discards audit events. Used in tests.
type NopSink struct{}

func (NopSink) LogEvent(context.Context, string, map[string]any) {}
