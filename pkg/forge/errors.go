package forge

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies hosting API failures so calling actors can apply
// their own retry policies. The gateway never retries on a caller's behalf.
type ErrorKind string

const (
	// KindRateLimited is a 429 or a documented secondary rate limit.
	KindRateLimited ErrorKind = "rate_limited"
	// KindNotFound is a 404 for an entity the caller asked about.
	KindNotFound ErrorKind = "not_found"
	// KindPermissionDenied is a 401/403 for the installation credential.
	KindPermissionDenied ErrorKind = "permission_denied"
	// KindTransient is a 5xx or network-level failure worth retrying.
	KindTransient ErrorKind = "transient"
	// KindUnknown is everything else; not retried.
	KindUnknown ErrorKind = "unknown"
)

// Error is a classified hosting API failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Op         string // e.g. "issues.get"
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying at all. Rate
// limits are retryable after backoff; permanent 4xx are not.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// Classify wraps err with a kind derived from the HTTP status code.
// statusCode 0 means the request never got a response (network failure),
// which is treated as transient.
func Classify(op string, statusCode int, err error) *Error {
	kind := KindUnknown
	switch {
	case statusCode == 0:
		kind = KindTransient
	case statusCode == http.StatusTooManyRequests:
		kind = KindRateLimited
	case statusCode == http.StatusNotFound:
		kind = KindNotFound
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		kind = KindPermissionDenied
	case statusCode >= 500:
		kind = KindTransient
	}
	return &Error{Kind: kind, StatusCode: statusCode, Op: op, Err: err}
}

// KindOf extracts the classification from any error in the chain, defaulting
// to KindUnknown.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether any error in the chain is a retryable forge error.
func IsRetryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return false
}
