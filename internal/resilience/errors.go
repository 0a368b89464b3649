package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Class buckets a failure for retry and breaker decisions.
type Class int

const (
	ClassUnknown Class = iota // ambiguous, fail closed: not retryable
	ClassConnectivity
	ClassTimeout
	ClassRateLimited
	ClassClientValidation
	ClassCircuitOpen
	ClassIntegrity
	ClassServerFault
)

var classNames = map[Class]string{
	ClassUnknown:          "unknown",
	ClassConnectivity:     "connectivity",
	ClassTimeout:          "timeout",
	ClassRateLimited:      "rate_limited",
	ClassClientValidation: "client_validation",
	ClassCircuitOpen:      "circuit_open",
	ClassIntegrity:        "integrity",
	ClassServerFault:      "server_fault",
}

func (c Class) String() string { return classNames[c] }

// Retryable reports whether a fresh attempt against the same resource may
// succeed. Ambiguous classes are treated as non-retryable.
func (c Class) Retryable() bool {
	switch c {
	case ClassConnectivity, ClassTimeout, ClassRateLimited, ClassServerFault:
		return true
	default:
		return false
	}
}

// Error is a classified failure from a remote or store call.
type Error struct {
	Class    Class
	Resource string
	// RetryAfter carries the server/breaker hint for rate-limited and
	// circuit-open failures.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Resource, e.Class, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Resource, e.Class)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a class and the resource it came from.
func NewError(class Class, resource string, err error) *Error {
	return &Error{Class: class, Resource: resource, Err: err}
}

// Classify maps an arbitrary error onto the taxonomy. Already-classified
// errors pass through unchanged so retry loops never re-guess.
func Classify(resource string, err error) *Error {
	if err == nil {
		return nil
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ClassTimeout, resource, err)
	}
	if errors.Is(err, context.Canceled) {
		// Caller gave up; the outcome on the far side is unknown.
		return NewError(ClassUnknown, resource, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewError(ClassTimeout, resource, err)
		}
		return NewError(ClassConnectivity, resource, err)
	}

	return NewError(ClassUnknown, resource, err)
}

// ClassifyHTTPStatus maps an HTTP response code onto the taxonomy.
// 2xx is the caller's responsibility; this is only called on failures.
func ClassifyHTTPStatus(status int) Class {
	switch {
	case status == 408:
		return ClassTimeout
	case status == 429:
		return ClassRateLimited
	case status >= 400 && status < 500:
		return ClassClientValidation
	case status >= 500:
		return ClassServerFault
	default:
		return ClassUnknown
	}
}
