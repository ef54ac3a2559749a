// Backend failure classification.
//
// Providers surface errors in their own shapes; callers only care whether a
// failure is a timeout, a rate limit, or something else. Classification keys
// the retry policy in Client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// FailureKind classifies a backend call failure.
type FailureKind string

const (
	// FailureTimeout means the call exceeded its deadline.
	FailureTimeout FailureKind = "BackendTimeout"
	// FailureRateLimit means the backend throttled the request.
	FailureRateLimit FailureKind = "BackendRateLimit"
	// FailureOther covers all remaining backend errors.
	FailureOther FailureKind = "BackendError"
)

// BackendError wraps a provider failure with its classification.
type BackendError struct {
	Kind     FailureKind
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap returns the wrapped cause.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a failure of this kind is worth retrying.
func (k FailureKind) Retryable() bool {
	return k == FailureTimeout || k == FailureRateLimit || k == FailureOther
}

// Classify wraps a provider error as a BackendError with a failure kind.
// Already-classified errors pass through unchanged.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Kind: kindOf(err), Provider: provider, Err: err}
}

// kindOf inspects an error for timeout or throttling signatures.
func kindOf(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"),
		strings.Contains(msg, "too many requests"), strings.Contains(msg, "quota"):
		return FailureRateLimit
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return FailureTimeout
	default:
		return FailureOther
	}
}

// KindOf extracts the failure kind from any error.
// Unclassified errors report FailureOther.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return kindOf(err)
}
