package resilience

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "invalid"
	}
}

// BreakerConfig holds the trip threshold and cool-down window.
type BreakerConfig struct {
	Threshold int
	CoolDown  time.Duration
}

// DefaultBreakerConfig matches the service defaults: trip after 5
// consecutive failures, probe again after 30 seconds.
var DefaultBreakerConfig = BreakerConfig{
	Threshold: 5,
	CoolDown:  30 * time.Second,
}

// Breaker is a per-resource circuit breaker. State transitions are
// serialized by an internal mutex so concurrent callers observe them
// atomically.
type Breaker struct {
	mu          sync.Mutex
	resource    string
	cfg         BreakerConfig
	state       BreakerState
	failures    int
	lastFailure time.Time
	probing     bool // a half-open probe call is in flight
}

// NewBreaker creates a closed breaker for the named resource.
func NewBreaker(resource string, cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultBreakerConfig.Threshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = DefaultBreakerConfig.CoolDown
	}
	return &Breaker{resource: resource, cfg: cfg}
}

// Allow gates a call. It returns nil when the call may proceed, or a
// circuit-open Error carrying a retry-after hint. The first call after the
// cool-down elapses transitions the breaker to half-open and is admitted as
// the probe; further calls are rejected until the probe settles.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		remaining := b.cfg.CoolDown - time.Since(b.lastFailure)
		if remaining > 0 {
			return &Error{
				Class:      ClassCircuitOpen,
				Resource:   b.resource,
				RetryAfter: remaining,
				Err:        fmt.Errorf("circuit open for %s", b.resource),
			}
		}
		b.state = StateHalfOpen
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return &Error{
				Class:      ClassCircuitOpen,
				Resource:   b.resource,
				RetryAfter: b.cfg.CoolDown,
				Err:        fmt.Errorf("half-open probe in flight for %s", b.resource),
			}
		}
		b.probing = true
		return nil
	}
	return nil
}

// RecordSuccess resets the breaker to closed with a zero failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

// RecordFailure counts a failure. A half-open probe failure reopens the
// circuit immediately; in closed state the circuit opens once the
// consecutive-failure count reaches the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()
	b.probing = false

	if b.state == StateHalfOpen || b.failures >= b.cfg.Threshold {
		b.state = StateOpen
	}
}

// Snapshot is a point-in-time view of breaker state for health reporting.
type Snapshot struct {
	Resource    string       `json:"resource"`
	State       BreakerState `json:"-"`
	StateName   string       `json:"state"`
	Failures    int          `json:"failures"`
	LastFailure time.Time    `json:"last_failure,omitempty"`
}

// State returns a snapshot of the breaker.
func (b *Breaker) State() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Resource:    b.resource,
		State:       b.state,
		StateName:   b.state.String(),
		Failures:    b.failures,
		LastFailure: b.lastFailure,
	}
}

// BreakerSet lazily creates one breaker per resource name. One set is shared
// process-wide so a degraded endpoint never blocks a healthy one while still
// sharing configuration.
type BreakerSet struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
}

// NewBreakerSet creates an empty set with a shared config.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for a resource, creating it on first use.
func (s *BreakerSet) For(resource string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[resource]
	if !ok {
		b = NewBreaker(resource, s.cfg)
		s.breakers[resource] = b
	}
	return b
}

// Snapshots returns the state of every breaker in the set.
func (s *BreakerSet) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Snapshot, 0, len(s.breakers))
	for _, b := range s.breakers {
		out = append(out, b.State())
	}
	return out
}
