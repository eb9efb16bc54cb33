// Package cmd implements the command-line interface for jmapctl.
//
// This package provides the following commands:
//   - login: Authenticate against a mail server via the OAuth device flow
//   - logout: Discard the stored token pair
//   - mailboxes: List the account's mailboxes
//   - list: Query emails in a mailbox or across the account
//   - show: Display one email with its body and attachments
//   - mark: Set or clear the seen/flagged keywords on an email
//   - move: Move an email between mailboxes
//   - delete: Destroy an email
//   - send: Compose and submit an email
//   - download: Save an attachment blob to disk
//   - identities: List the account's sending identities
//   - status: Show the delivery state of an earlier submission
//   - version: Display version information
package cmd
