package ledger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evidencex/reconciler/internal/resilience"
)

func newTestClient(t *testing.T, verifyURL, registryURL string, policy resilience.Policy) *Client {
	t.Helper()
	breakers := resilience.NewBreakerSet(resilience.BreakerConfig{Threshold: 5, CoolDown: time.Minute})
	return New(Config{VerifyURL: verifyURL, RegistryURL: registryURL}, breakers, policy)
}

func TestVerifyHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/verify" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"verified": true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL, resilience.Policy{MaxAttempts: 1})

	verified, err := c.VerifyHash(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("VerifyHash failed: %v", err)
	}
	if !verified {
		t.Error("verified = false, want true")
	}
}

func TestLatestRegisteredHashes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"registrations": [
			{"hash": "aa11", "submitter": "node-1", "captured_at": "2026-08-25T10:00:00Z", "registration_id": "reg-1"},
			{"hash": "bb22", "submitter": "node-2", "captured_at": "2026-08-25T11:00:00Z", "registration_id": "reg-2"}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL, resilience.Policy{MaxAttempts: 1})

	records, err := c.LatestRegisteredHashes(context.Background())
	if err != nil {
		t.Fatalf("LatestRegisteredHashes failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Hash != "aa11" || records[0].RegistrationID != "reg-1" {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].Submitter != "node-2" {
		t.Errorf("records[1] = %+v", records[1])
	}
}

func TestServerFaultRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"verified": true}`))
	}))
	defer srv.Close()

	p := resilience.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	c := newTestClient(t, srv.URL, srv.URL, p)

	verified, err := c.VerifyHash(context.Background(), "abc")
	if err != nil {
		t.Fatalf("VerifyHash failed after retries: %v", err)
	}
	if !verified || calls.Load() != 3 {
		t.Errorf("verified = %v, calls = %d", verified, calls.Load())
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	p := resilience.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	c := newTestClient(t, srv.URL, srv.URL, p)

	_, err := c.VerifyHash(context.Background(), "not-a-hash")

	var ce *resilience.Error
	if !errors.As(err, &ce) || ce.Class != resilience.ClassClientValidation {
		t.Fatalf("error = %v, want client_validation", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL, resilience.Policy{MaxAttempts: 1})

	_, err := c.VerifyHash(context.Background(), "abc")

	var ce *resilience.Error
	if !errors.As(err, &ce) || ce.Class != resilience.ClassRateLimited {
		t.Fatalf("error = %v, want rate_limited", err)
	}
	if ce.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", ce.RetryAfter)
	}
}

func TestBreakerOpensAndFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	breakers := resilience.NewBreakerSet(resilience.BreakerConfig{Threshold: 2, CoolDown: time.Minute})
	p := resilience.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	c := New(Config{VerifyURL: srv.URL, RegistryURL: srv.URL}, breakers, p)

	// Two failed attempts trip the breaker.
	if _, err := c.VerifyHash(context.Background(), "abc"); err == nil {
		t.Fatal("expected failure")
	}
	seen := calls.Load()

	// Next call rejected without touching the server.
	_, err := c.VerifyHash(context.Background(), "abc")
	var ce *resilience.Error
	if !errors.As(err, &ce) || ce.Class != resilience.ClassCircuitOpen {
		t.Fatalf("error = %v, want circuit_open", err)
	}
	if calls.Load() != seen {
		t.Errorf("server hit while breaker open: %d -> %d", seen, calls.Load())
	}
}

func TestTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte(`{"verified": true}`))
	}))
	defer srv.Close()

	p := resilience.Policy{MaxAttempts: 1, CallTimeout: 10 * time.Millisecond}
	c := newTestClient(t, srv.URL, srv.URL, p)

	_, err := c.VerifyHash(context.Background(), "abc")

	var ce *resilience.Error
	if !errors.As(err, &ce) || ce.Class != resilience.ClassTimeout {
		t.Fatalf("error = %v, want timeout", err)
	}
}
