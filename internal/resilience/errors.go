package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Kind classifies an error for propagation policy. Kinds are orthogonal to
// event severity: they decide whether a call is retried, isolated, or fatal
// to the run.
type Kind string

const (
	// KindTransient covers transport timeouts, 5xx responses and other
	// conditions that are safe to retry.
	KindTransient Kind = "transient"
	// KindRateLimit marks a remote rate-limit signal. Retried after a
	// refill-derived wait; does not count against the retry budget.
	KindRateLimit Kind = "rate_limit"
	// KindMalformed marks an API contract violation (unexpected payload
	// shape, non-decodable record). Never retried.
	KindMalformed Kind = "malformed"
	// KindIntegrity marks a datastore constraint failure. Treated as fatal
	// since the idempotence design should make it unreachable.
	KindIntegrity Kind = "integrity"
	// KindBudget marks local token-bucket exhaustion beyond what the phase
	// timeout allows.
	KindBudget Kind = "budget"
	// KindFatal marks configuration errors, missing credentials, or an
	// unreachable datastore at startup. Aborts the run.
	KindFatal Kind = "fatal"
)

// KindError attaches a Kind and optional HTTP status to an error chain.
type KindError struct {
	Err        error
	Kind       Kind
	StatusCode int
}

func (e *KindError) Error() string {
	return e.Err.Error()
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// WithKind wraps err with an explicit kind.
func WithKind(err error, kind Kind) *KindError {
	return &KindError{Err: err, Kind: kind}
}

// WithKindStatus wraps err with a kind and the HTTP status that produced it.
func WithKindStatus(err error, kind Kind, statusCode int) *KindError {
	return &KindError{Err: err, Kind: kind, StatusCode: statusCode}
}

// KindOf returns the classified kind of err. Errors without an explicit
// KindError in their chain fall back to KindTransient when they match
// network-level transient patterns; otherwise the zero Kind is returned.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if isNetworkTransient(err) {
		return KindTransient
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsTransient reports whether err is safe to retry: an explicit transient or
// rate-limit kind, or a network-level transient condition.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimit:
		return true
	}
	return false
}

// isNetworkTransient matches network-level transient conditions on errors
// that were never explicitly classified.
func isNetworkTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// KindForHTTPStatus maps an HTTP status to an error kind. 429 is a
// rate-limit signal; 408/5xx are transient; other 4xx are contract
// violations.
func KindForHTTPStatus(statusCode int) Kind {
	switch {
	case statusCode == 429:
		return KindRateLimit
	case statusCode == 408, statusCode >= 500:
		return KindTransient
	case statusCode >= 400:
		return KindMalformed
	default:
		return ""
	}
}
