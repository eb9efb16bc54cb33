// Package token defines the durable token store consumed by the JMAP client
// and the StoredToken value it persists.
//
// A Store keys tokens by (server, identity) so one process can hold logins
// for several servers. Implementations must be safe for concurrent use from
// a single client instance. KeyringStore persists through the operating
// system credential store; MemStore is an ephemeral in-process fallback used
// in tests.
package token
