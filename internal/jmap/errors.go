package jmap

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// ErrTokenExpired means the stored token is unusable and could not be
// refreshed. It is terminal: the caller must re-authenticate the user, and
// outer layers must never silently retry it.
var ErrTokenExpired = errors.New("authentication token expired, re-authentication required")

// ErrBlankBlobID is returned before any network call when a blob id is empty
// or the literal string "null" (a placeholder some servers leak).
var ErrBlankBlobID = errors.New("blob id is blank")

// ProtocolError is a response whose shape does not match the JMAP contract:
// a method-name mismatch, a missing required field, or a method-level error
// object. Protocol errors are never retried.
type ProtocolError struct {
	Method string
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("jmap protocol error in %s: %s", e.Method, e.Detail)
}

// TransportError wraps an I/O fault that survived the retry budget.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("jmap transport failure in %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx, non-auth HTTP response, surfaced immediately with
// a truncated body for diagnostics.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("jmap server returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether an outer layer may retry the failed operation.
// Authentication errors and protocol errors are terminal; transport faults
// may be retried with the same backoff family used here.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return false
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return false
	}
	var te *TransportError
	return errors.As(err, &te) || isTransient(err)
}

// isTransient reports whether err is a transient I/O fault eligible for
// linear-backoff retry: timeouts, connection resets, truncated bodies.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// isAuthStatus reports whether an HTTP status demands re-authentication.
func isAuthStatus(status int) bool {
	return status == 401 || status == 403
}

// truncate bounds response-body snippets attached to errors.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
