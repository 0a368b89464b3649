package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker("ledger", BreakerConfig{Threshold: 3, CoolDown: time.Minute})

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if got := b.State().State; got != StateClosed {
			t.Fatalf("after %d failures state = %v, want closed", i+1, got)
		}
	}

	b.RecordFailure()
	if got := b.State().State; got != StateOpen {
		t.Fatalf("after threshold failures state = %v, want open", got)
	}
}

func TestBreakerRejectsWithoutInvokingCall(t *testing.T) {
	b := NewBreaker("ledger", BreakerConfig{Threshold: 1, CoolDown: time.Minute})
	b.RecordFailure()

	calls := 0
	err := Do(context.Background(), "ledger", Policy{MaxAttempts: 3}, b, func(ctx context.Context) error {
		calls++
		return nil
	})

	if calls != 0 {
		t.Errorf("wrapped call invoked %d times while open, want 0", calls)
	}

	var ce *Error
	if !errors.As(err, &ce) || ce.Class != ClassCircuitOpen {
		t.Fatalf("error = %v, want circuit_open", err)
	}
	if ce.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", ce.RetryAfter)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewBreaker("ledger", BreakerConfig{Threshold: 1, CoolDown: 10 * time.Millisecond})
	b.RecordFailure()

	time.Sleep(20 * time.Millisecond)

	// First call after cool-down is the probe.
	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	if got := b.State().State; got != StateHalfOpen {
		t.Fatalf("state = %v, want half_open", got)
	}

	// A second caller must wait for the probe to settle.
	if err := b.Allow(); err == nil {
		t.Fatal("concurrent call admitted during probe")
	}

	b.RecordSuccess()
	snap := b.State()
	if snap.State != StateClosed {
		t.Errorf("state after probe success = %v, want closed", snap.State)
	}
	if snap.Failures != 0 {
		t.Errorf("failures after probe success = %d, want 0", snap.Failures)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("ledger", BreakerConfig{Threshold: 5, CoolDown: 10 * time.Millisecond})
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	time.Sleep(20 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	b.RecordFailure()

	if got := b.State().State; got != StateOpen {
		t.Fatalf("state after probe failure = %v, want open", got)
	}
	if err := b.Allow(); err == nil {
		t.Error("call admitted immediately after probe failure")
	}
}

func TestBreakerSetIsolatesResources(t *testing.T) {
	set := NewBreakerSet(BreakerConfig{Threshold: 1, CoolDown: time.Minute})

	set.For("ledger-verify").RecordFailure()

	if err := set.For("ledger-verify").Allow(); err == nil {
		t.Error("degraded endpoint still admitting calls")
	}
	if err := set.For("ledger-registry").Allow(); err != nil {
		t.Errorf("healthy endpoint blocked: %v", err)
	}

	if got := len(set.Snapshots()); got != 2 {
		t.Errorf("snapshots = %d, want 2", got)
	}
}
