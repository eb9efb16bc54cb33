// Package jmap implements a resilient, authenticated client for the JMAP
// mail protocol (RFC 8620/8621).
//
// A Client is scoped to one (server, identity) pair and reconciles three
// independently failing concerns: session/capability discovery, the bearer
// token lifecycle (expiry and silent refresh through a token.Store), and an
// HTTP transport that retries transient faults without stampeding the
// authorization server or duplicating side-effecting mail operations.
//
// Concurrency model: token and session resolution share one mutex per client
// so two concurrent callers can never both refresh an expired token; all
// outbound requests pass through a two-permit semaphore bounding the load a
// single client places on the mail server. Everything else proceeds without
// locks.
//
// Failure semantics: transient transport faults are retried up to three
// times with linear backoff; a 401/403 triggers exactly one
// refresh-and-retry cycle before ErrTokenExpired surfaces; protocol-shape
// mismatches and other HTTP status errors are never retried.
//
// Example:
//
//	reg := jmap.NewRegistry()
//	client := reg.GetOrCreate("https://mail.example.com", "user@example.com", func() *jmap.Client {
//		return jmap.NewClient(jmap.Config{Server: "https://mail.example.com", Identity: "user@example.com", Store: store})
//	})
//	mailboxes, err := client.ListMailboxes(ctx, "")
package jmap
