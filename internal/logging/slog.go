package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyServer    = "server"
	KeyIdentity  = "identity"
	KeyAccount   = "account"
	KeyMethod    = "method"
	KeyAttempt   = "attempt"
	KeyStatus    = "status"
	KeyError     = "error"
)

// Status values for consistent logging.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusRetry   = "retry"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithServer returns a logger with the server attribute set.
func WithServer(logger *slog.Logger, server string) *slog.Logger {
	return logger.With(slog.String(KeyServer, server))
}

// WithAccount returns a logger with the JMAP account attribute set.
func WithAccount(logger *slog.Logger, account string) *slog.Logger {
	return logger.With(slog.String(KeyAccount, account))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Method returns a slog attribute for a JMAP method name.
func Method(method string) slog.Attr {
	return slog.String(KeyMethod, method)
}

// Attempt returns a slog attribute for a retry attempt counter.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that slog omits from
// output, so Err(maybeNilErr) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeIdentity returns a hashed representation of a login identity for
// logging purposes. This allows correlation of log entries without exposing
// the mail address itself.
func AnonymizeIdentity(identity string) string {
	if identity == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(identity))
	return "id:" + hex.EncodeToString(hash[:8])
}

// Identity returns a slog attribute with the anonymized identity.
func Identity(identity string) slog.Attr {
	return slog.String(KeyIdentity, AnonymizeIdentity(identity))
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content, since
// even partial token prefixes can aid attacks.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
