package azstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// Sentinel errors for storage failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNotFound indicates the target resource does not exist (404).
	ErrNotFound = errors.New("resource not found")

	// ErrThrottled indicates rate limiting (429, ServerBusy).
	ErrThrottled = errors.New("rate limited")

	// ErrAuth indicates authentication failure (401, expired SAS).
	ErrAuth = errors.New("authentication failed")

	// ErrAccessDenied indicates authorization failure (403).
	ErrAccessDenied = errors.New("access denied")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrServer indicates a 5xx service failure.
	ErrServer = errors.New("server error")

	// ErrNetwork indicates a network-level failure (connection refused, DNS).
	ErrNetwork = errors.New("network error")
)

var errRefEmpty = errors.New("azstore: empty resource URL")

func errRefScheme(raw string) error {
	return fmt.Errorf("azstore: resource URL %q lacks an http(s) scheme", redact(raw))
}

func errRefShape(raw string) error {
	return fmt.Errorf("azstore: resource URL %q lacks an account or object name", redact(raw))
}

func redact(raw string) string {
	endpoint, _, _ := strings.Cut(raw, "?")
	return endpoint
}

// StorageError wraps an underlying error with storage classification.
// It preserves the original error in the chain for inspection via errors.As.
type StorageError struct {
	// Kind is the sentinel error for classification (e.g. ErrThrottled).
	Kind error
	// Op is the operation that failed (e.g. "upload", "enqueue").
	Op string
	// Resource is the log-safe resource identifier involved.
	Resource string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Resource, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *StorageError) Unwrap() error { return e.Err }

// Is reports whether the error matches the target sentinel.
func (e *StorageError) Is(target error) bool { return errors.Is(e.Kind, target) }

// wrap classifies and wraps a storage operation error. Returns nil if err is
// nil.
func wrap(err error, op, resource string) error {
	if err == nil {
		return nil
	}
	return &StorageError{Kind: classify(err), Op: op, Resource: resource, Err: err}
}

// classify determines the sentinel for an error. Typed Azure response errors
// are classified by status code; everything else falls back to message
// patterns.
func classify(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == 401:
			return ErrAuth
		case respErr.StatusCode == 403:
			return ErrAccessDenied
		case respErr.StatusCode == 404:
			return ErrNotFound
		case respErr.StatusCode == 408:
			return ErrTimeout
		case respErr.StatusCode == 429 || respErr.ErrorCode == "ServerBusy":
			return ErrThrottled
		case respErr.StatusCode >= 500:
			return ErrServer
		}
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "toomanyrequests", "serverbusy", "throttl"):
		return ErrThrottled
	case containsAny(msg, "401", "authenticationfailed", "sas token", "signature"):
		return ErrAuth
	case containsAny(msg, "403", "forbidden", "authorizationfailure"):
		return ErrAccessDenied
	case containsAny(msg, "404", "not found", "does not exist"):
		return ErrNotFound
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ErrTimeout
	case containsAny(msg, "connection refused", "no route to host", "dial tcp", "dns", "connection reset"):
		return ErrNetwork
	default:
		return ErrNetwork
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Fatal reports whether err is an authorization failure that a retry or a
// walk to the next resource cannot fix.
func Fatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrAccessDenied)
}

// Throttled reports whether err is a rate-limit rejection.
func Throttled(err error) bool {
	return errors.Is(err, ErrThrottled)
}
