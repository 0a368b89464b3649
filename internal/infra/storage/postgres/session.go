package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-retry"

	"github.com/evidencex/reconciler/internal/recon/metrics"
	"github.com/evidencex/reconciler/internal/resilience"
)

// breakerResource is the pool-wide breaker name: the breaker guards the
// database as a whole, not individual queries.
const breakerResource = "database"

// TxOptions tunes one transactional unit of work.
type TxOptions struct {
	Isolation        sql.IsolationLevel
	StatementTimeout time.Duration
}

// Session is the resilient store client. Every database operation passes
// through it: per-call timeout, bounded retry with backoff, and one
// pool-wide circuit breaker. Rolling call stats are kept for observability
// only and never alter control flow.
type Session struct {
	db            *DB
	breaker       *resilience.Breaker
	policy        resilience.Policy
	stats         *CallStats
	slowThreshold time.Duration
	log           *slog.Logger
}

// NewSession wraps db with the resilience discipline.
func NewSession(db *DB, breaker *resilience.Breaker, policy resilience.Policy) *Session {
	return &Session{
		db:            db,
		breaker:       breaker,
		policy:        policy,
		stats:         NewCallStats(),
		slowThreshold: time.Second,
		log:           slog.Default(),
	}
}

// Ping reports database reachability, bypassing retry but not the breaker.
func (s *Session) Ping(ctx context.Context) error {
	if err := s.breaker.Allow(); err != nil {
		return resilience.Classify(breakerResource, err)
	}
	if err := s.db.PingContext(ctx); err != nil {
		s.breaker.RecordFailure()
		return resilience.Classify(breakerResource, classifyStoreError(err))
	}
	s.breaker.RecordSuccess()
	return nil
}

// Stats returns the rolling call statistics.
func (s *Session) Stats() CallSummary {
	return s.stats.Summary()
}

// Execute runs a non-transactional operation under the resilience policy.
// Non-retryable failures (uniqueness violations, validation) surface
// immediately without consuming further attempts.
func (s *Session) Execute(ctx context.Context, operation string, fn func(context.Context, *sqlx.DB) error) error {
	start := time.Now()
	err := resilience.Do(ctx, breakerResource, s.policy, s.breaker, func(ctx context.Context) error {
		if err := fn(ctx, s.db.DB); err != nil {
			return classifyStoreError(err)
		}
		return nil
	})
	s.observe(operation, time.Since(start), err)
	return err
}

// WithTransaction acquires a connection (bounded retry on acquisition
// failure), optionally sets the isolation level and a statement timeout,
// runs fn, commits on success or rolls back on any failure, and releases
// the connection unconditionally.
func (s *Session) WithTransaction(ctx context.Context, opts TxOptions, fn func(*sqlx.Tx) error) error {
	start := time.Now()
	err := s.withTransaction(ctx, opts, fn)
	s.observe("transaction", time.Since(start), err)
	return err
}

func (s *Session) withTransaction(ctx context.Context, opts TxOptions, fn func(*sqlx.Tx) error) error {
	if err := s.breaker.Allow(); err != nil {
		return resilience.Classify(breakerResource, err)
	}

	if s.policy.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.policy.CallTimeout)
		defer cancel()
	}

	conn, err := s.acquire(ctx)
	if err != nil {
		s.breaker.RecordFailure()
		return resilience.NewError(resilience.ClassConnectivity, breakerResource,
			fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Close()

	tx, err := conn.BeginTxx(ctx, &sql.TxOptions{Isolation: opts.Isolation})
	if err != nil {
		s.breaker.RecordFailure()
		return resilience.Classify(breakerResource, classifyStoreError(err))
	}

	if opts.StatementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", opts.StatementTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			s.breaker.RecordFailure()
			return resilience.Classify(breakerResource, classifyStoreError(err))
		}
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		s.breaker.RecordFailure()
		return resilience.Classify(breakerResource, classifyStoreError(err))
	}

	if err := tx.Commit(); err != nil {
		s.breaker.RecordFailure()
		return resilience.Classify(breakerResource, classifyStoreError(err))
	}

	s.breaker.RecordSuccess()
	return nil
}

// acquire checks a connection out of the pool, retrying transient
// acquisition failures with exponential backoff.
func (s *Session) acquire(ctx context.Context) (*sqlx.Conn, error) {
	var conn *sqlx.Conn

	attempts := uint64(s.policy.MaxAttempts)
	if attempts == 0 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(100*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := s.db.Connx(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Session) observe(operation string, latency time.Duration, err error) {
	slow := latency >= s.slowThreshold
	s.stats.Record(latency, err != nil, slow)

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.StoreCallsTotal.WithLabelValues(operation, result).Inc()
	metrics.StoreCallLatency.WithLabelValues(operation).Observe(latency.Seconds())
	if slow {
		metrics.StoreSlowCalls.Inc()
		s.log.Warn("Slow database operation", "operation", operation, "latency", latency)
	}
}

// classifyStoreError maps driver errors onto the resilience taxonomy.
// Anything it does not recognize passes through for generic classification.
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"): // integrity constraint violation
			return resilience.NewError(resilience.ClassIntegrity, breakerResource, err)
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception
			return resilience.NewError(resilience.ClassConnectivity, breakerResource, err)
		case pgErr.Code == "57014": // query canceled (statement_timeout)
			return resilience.NewError(resilience.ClassTimeout, breakerResource, err)
		case pgErr.Code == "40001", pgErr.Code == "40P01": // serialization failure, deadlock
			return resilience.NewError(resilience.ClassServerFault, breakerResource, err)
		}
		return err
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return resilience.NewError(resilience.ClassConnectivity, breakerResource, err)
	}

	return err
}

// IsUniqueViolation reports whether err is a uniqueness constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
