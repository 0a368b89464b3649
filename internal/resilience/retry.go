package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy defines retry behavior for one resource.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// JitterFrac randomizes each delay by ±frac to avoid synchronized
	// retry storms across instances.
	JitterFrac float64
	// CallTimeout bounds each individual attempt. A late response is
	// classified as a timeout; the far side may still have applied it.
	CallTimeout time.Duration
}

// DefaultPolicy matches the service defaults.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    5 * time.Second,
	JitterFrac:  0.25,
	CallTimeout: 10 * time.Second,
}

// Delay computes the backoff before attempt n+1 (0-based n). Exponential,
// capped at MaxDelay, then jittered.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.JitterFrac > 0 {
		d += d * p.JitterFrac * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do runs fn against a breaker-gated resource with bounded retries.
//
// Per attempt: the breaker gate is evaluated first, then fn runs under the
// call timeout. Failures are classified; only retryable classes consume
// further attempts. The returned error is always a classified *Error, the
// final failure after retries are exhausted.
func Do(ctx context.Context, resource string, p Policy, b *Breaker, fn func(context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var last *Error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if b != nil {
			if err := b.Allow(); err != nil {
				return Classify(resource, err)
			}
		}

		err := call(ctx, p.CallTimeout, fn)
		if err == nil {
			if b != nil {
				b.RecordSuccess()
			}
			return nil
		}

		last = Classify(resource, err)
		if b != nil {
			b.RecordFailure()
		}

		if !last.Class.Retryable() || attempt == p.MaxAttempts-1 {
			return last
		}

		delay := p.Delay(attempt)
		if last.Class == ClassRateLimited && last.RetryAfter > delay {
			delay = last.RetryAfter
		}
		select {
		case <-ctx.Done():
			return Classify(resource, ctx.Err())
		case <-time.After(delay):
		}
	}
	return last
}

func call(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
