package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect Class
	}{
		{"deadline exceeded", context.DeadlineExceeded, ClassTimeout},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), ClassTimeout},
		{"net timeout", timeoutErr{}, ClassTimeout},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, ClassConnectivity},
		{"canceled", context.Canceled, ClassUnknown},
		{"plain error", errors.New("boom"), ClassUnknown},
		{"pre-classified", NewError(ClassIntegrity, "db", errors.New("duplicate key")), ClassIntegrity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify("res", tt.err).Class; got != tt.expect {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.expect)
			}
		})
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		expect Class
	}{
		{408, ClassTimeout},
		{429, ClassRateLimited},
		{400, ClassClientValidation},
		{404, ClassClientValidation},
		{422, ClassClientValidation},
		{500, ClassServerFault},
		{503, ClassServerFault},
	}

	for _, tt := range tests {
		if got := ClassifyHTTPStatus(tt.status); got != tt.expect {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", tt.status, got, tt.expect)
		}
	}
}

func TestRetryableClasses(t *testing.T) {
	retryable := []Class{ClassConnectivity, ClassTimeout, ClassRateLimited, ClassServerFault}
	terminal := []Class{ClassClientValidation, ClassCircuitOpen, ClassIntegrity, ClassUnknown}

	for _, c := range retryable {
		if !c.Retryable() {
			t.Errorf("%v.Retryable() = false, want true", c)
		}
	}
	for _, c := range terminal {
		if c.Retryable() {
			t.Errorf("%v.Retryable() = true, want false", c)
		}
	}
}

func TestErrorRetryAfterHint(t *testing.T) {
	e := &Error{Class: ClassRateLimited, Resource: "ledger", RetryAfter: 30 * time.Second}
	var ce *Error
	if !errors.As(fmt.Errorf("call: %w", e), &ce) {
		t.Fatal("classified error lost through wrapping")
	}
	if ce.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", ce.RetryAfter)
	}
}
