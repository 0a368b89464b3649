package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoClientValidationNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), "ledger", Policy{MaxAttempts: 3}, nil, func(ctx context.Context) error {
		calls++
		return NewError(ClassClientValidation, "ledger", errors.New("bad hash"))
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	var ce *Error
	if !errors.As(err, &ce) || ce.Class != ClassClientValidation {
		t.Fatalf("error = %v, want client_validation", err)
	}
}

func TestDoTimeoutRetriedToCap(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	err := Do(context.Background(), "ledger", p, nil, func(ctx context.Context) error {
		calls++
		return NewError(ClassTimeout, "ledger", errors.New("deadline exceeded"))
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	var ce *Error
	if !errors.As(err, &ce) || ce.Class != ClassTimeout {
		t.Fatalf("error = %v, want timeout", err)
	}
}

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	err := Do(context.Background(), "db", p, nil, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewError(ClassConnectivity, "db", errors.New("connection refused"))
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoCallTimeoutClassifiedAsTimeout(t *testing.T) {
	p := Policy{MaxAttempts: 1, CallTimeout: 5 * time.Millisecond}
	err := Do(context.Background(), "ledger", p, nil, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	var ce *Error
	if !errors.As(err, &ce) || ce.Class != ClassTimeout {
		t.Fatalf("error = %v, want timeout", err)
	}
}

func TestDoBreakerSuccessResets(t *testing.T) {
	b := NewBreaker("db", BreakerConfig{Threshold: 3, CoolDown: time.Minute})
	b.RecordFailure()
	b.RecordFailure()

	err := Do(context.Background(), "db", Policy{MaxAttempts: 1}, b, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := b.State().Failures; got != 0 {
		t.Errorf("failures after success = %d, want 0", got)
	}
}

func TestDelayNonDecreasingWithoutJitter(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

	prev := time.Duration(0)
	for attempt := 0; attempt < 8; attempt++ {
		d := p.Delay(attempt)
		if d < prev {
			t.Errorf("Delay(%d) = %v, decreased from %v", attempt, d, prev)
		}
		if d > p.MaxDelay {
			t.Errorf("Delay(%d) = %v, exceeds cap %v", attempt, d, p.MaxDelay)
		}
		prev = d
	}
}

func TestDelayJitterBounds(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, JitterFrac: 0.25}

	for i := 0; i < 100; i++ {
		d := p.Delay(0)
		if d < 75*time.Millisecond || d > 125*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±25%% of base", d)
		}
	}
}
