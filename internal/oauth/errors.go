package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
)

// FlowErrorKind classifies device-flow failures. Transient kinds are handled
// inside the poll loop; terminal kinds surface to the caller, which must
// distinguish them from plain network failures because the recovery action
// differs (re-authenticate vs. retry later).
type FlowErrorKind int

const (
	KindUnknown FlowErrorKind = iota
	KindAuthorizationPending
	KindSlowDown
	KindExpiredToken
	KindAccessDenied
	KindNetwork
	KindServer
)

// String returns the OAuth error-vocabulary name for the kind.
func (k FlowErrorKind) String() string {
	switch k {
	case KindAuthorizationPending:
		return "authorization_pending"
	case KindSlowDown:
		return "slow_down"
	case KindExpiredToken:
		return "expired_token"
	case KindAccessDenied:
		return "access_denied"
	case KindNetwork:
		return "network_error"
	case KindServer:
		return "server_error"
	default:
		return "unknown_error"
	}
}

// Terminal reports whether the kind ends the device flow. Pending and
// slow-down are recovered locally by the poll loop.
func (k FlowErrorKind) Terminal() bool {
	switch k {
	case KindAuthorizationPending, KindSlowDown:
		return false
	default:
		return true
	}
}

// DeviceFlowError is a device-flow failure tagged with its kind.
type DeviceFlowError struct {
	Kind        FlowErrorKind
	Description string
	Err         error
}

func (e *DeviceFlowError) Error() string {
	msg := "device flow: " + e.Kind.String()
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeviceFlowError) Unwrap() error { return e.Err }

// Is makes errors.Is match on the kind so callers can compare against a
// prototype like &DeviceFlowError{Kind: KindAccessDenied}.
func (e *DeviceFlowError) Is(target error) bool {
	var other *DeviceFlowError
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// OAuthError is a non-2xx response from the token endpoint.
type OAuthError struct {
	StatusCode int
	Body       string
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// DiscoveryError means no usable metadata document could be fetched from any
// well-known location on the server.
type DiscoveryError struct {
	Origin string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("no OAuth server metadata found at %s: %v", e.Origin, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// errorResponse is the standard OAuth error body (RFC 6749 section 5.2).
type errorResponse struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// parseErrorCode extracts the OAuth error code from a response body, if the
// body is a well-formed error document.
func parseErrorCode(body []byte) (code, description string) {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return "", ""
	}
	return er.Code, er.Description
}

// kindForCode maps the standard device-flow error vocabulary onto kinds.
func kindForCode(code string) FlowErrorKind {
	switch code {
	case "authorization_pending":
		return KindAuthorizationPending
	case "slow_down":
		return KindSlowDown
	case "expired_token":
		return KindExpiredToken
	case "access_denied":
		return KindAccessDenied
	case "":
		return KindUnknown
	default:
		return KindServer
	}
}

// isTransient reports whether err looks like a transient I/O fault worth
// retrying: timeouts, connection resets, truncated bodies. A non-2xx HTTP
// status is not transient.
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
