// Package logging provides structured logging utilities for jmapctl.
//
// It centralizes attribute naming and PII handling so every package logs the
// same way, using the standard library's slog package.
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "jmap.query")
//	logger.Info("query finished", logging.Status(logging.StatusSuccess))
//
// Sensitive material never reaches the log stream directly: identities are
// hashed for correlation and tokens are reduced to a length indicator.
package logging
