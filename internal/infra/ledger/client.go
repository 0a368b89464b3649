package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/evidencex/reconciler/internal/core/domain"
	"github.com/evidencex/reconciler/internal/recon/metrics"
	"github.com/evidencex/reconciler/internal/resilience"
)

// Endpoint roles. The verify and registry endpoints may share a base URL;
// breakers are keyed by URL so a shared endpoint shares one breaker while
// distinct endpoints degrade independently.
const (
	EndpointVerify   = "verify"
	EndpointRegistry = "registry"
)

// Config holds ledger gateway endpoints.
type Config struct {
	VerifyURL   string `yaml:"verify_url"`
	RegistryURL string `yaml:"registry_url"`
}

type endpoint struct {
	role    string
	baseURL string
	breaker *resilience.Breaker
}

// Client is the resilient ledger gateway client. Every outbound call runs
// under a per-attempt timeout, bounded retry with backoff and jitter, and
// the endpoint's circuit breaker.
type Client struct {
	httpClient *http.Client
	endpoints  map[string]*endpoint
	policy     resilience.Policy
	log        *slog.Logger
}

// New creates a client for the configured endpoints. Breakers come from the
// shared process-wide set.
func New(cfg Config, breakers *resilience.BreakerSet, policy resilience.Policy) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		endpoints: make(map[string]*endpoint),
		policy:    policy,
		log:       slog.Default(),
	}

	c.endpoints[EndpointVerify] = &endpoint{
		role:    EndpointVerify,
		baseURL: strings.TrimRight(cfg.VerifyURL, "/"),
		breaker: breakers.For("ledger:" + cfg.VerifyURL),
	}
	c.endpoints[EndpointRegistry] = &endpoint{
		role:    EndpointRegistry,
		baseURL: strings.TrimRight(cfg.RegistryURL, "/"),
		breaker: breakers.For("ledger:" + cfg.RegistryURL),
	}

	return c
}

// Get issues a GET against an endpoint and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, role, path string, out any) error {
	return c.do(ctx, role, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body against an endpoint and decodes the
// JSON response into out.
func (c *Client) Post(ctx context.Context, role, path string, body, out any) error {
	return c.do(ctx, role, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, role, method, path string, body, out any) error {
	ep, ok := c.endpoints[role]
	if !ok {
		return fmt.Errorf("unknown ledger endpoint: %s", role)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return resilience.NewError(resilience.ClassClientValidation, role,
				fmt.Errorf("marshal request: %w", err))
		}
	}

	start := time.Now()
	err := resilience.Do(ctx, role, c.policy, ep.breaker, func(ctx context.Context) error {
		return c.roundTrip(ctx, ep, method, path, payload, out)
	})

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.LedgerCallsTotal.WithLabelValues(role, result).Inc()
	metrics.LedgerCallLatency.WithLabelValues(role).Observe(time.Since(start).Seconds())

	return err
}

func (c *Client) roundTrip(ctx context.Context, ep *endpoint, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, ep.baseURL+path, reader)
	if err != nil {
		return resilience.NewError(resilience.ClassClientValidation, ep.role,
			fmt.Errorf("create request: %w", err))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors are classified generically: context deadline
		// becomes a timeout, dial failures become connectivity.
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := resilience.ClassifyHTTPStatus(resp.StatusCode)
		cerr := &resilience.Error{
			Class:    class,
			Resource: ep.role,
			Err:      fmt.Errorf("http %d: %s", resp.StatusCode, truncate(respBody, 256)),
		}
		if class == resilience.ClassRateLimited {
			cerr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return cerr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resilience.NewError(resilience.ClassUnknown, ep.role,
				fmt.Errorf("parse response: %w", err))
		}
	}
	return nil
}

// VerifyHash asks the chain whether a content hash is registered.
func (c *Client) VerifyHash(ctx context.Context, hash string) (bool, error) {
	var resp struct {
		Verified bool `json:"verified"`
	}
	err := c.Post(ctx, EndpointVerify, "/api/v1/verify", map[string]string{"hash": hash}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Verified, nil
}

// LatestRegisteredHashes fetches the chain's most recent registrations.
func (c *Client) LatestRegisteredHashes(ctx context.Context) ([]domain.ChainRecord, error) {
	var resp struct {
		Registrations []struct {
			Hash           string    `json:"hash"`
			Submitter      string    `json:"submitter"`
			CapturedAt     time.Time `json:"captured_at"`
			RegistrationID string    `json:"registration_id"`
		} `json:"registrations"`
	}
	if err := c.Get(ctx, EndpointRegistry, "/api/v1/registrations/latest", &resp); err != nil {
		return nil, err
	}

	records := make([]domain.ChainRecord, 0, len(resp.Registrations))
	for _, r := range resp.Registrations {
		records = append(records, domain.ChainRecord{
			Hash:           r.Hash,
			Submitter:      r.Submitter,
			CapturedAt:     r.CapturedAt,
			RegistrationID: r.RegistrationID,
		})
	}
	return records, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
