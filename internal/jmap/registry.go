package jmap

import "sync"

// Registry hands out at most one Client per (server, identity) pair so
// every caller shares the same refresh single-flight, session cache and
// request permits.
type Registry struct {
	mu      sync.Mutex
	clients map[registryKey]*Client
}

type registryKey struct {
	server   string
	identity string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[registryKey]*Client)}
}

// GetOrCreate returns the client for cfg's (server, identity) pair,
// building it with build on first use. Repeated calls with the same pair
// return the identical *Client.
func (r *Registry) GetOrCreate(server, identity string, build func() *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{server: server, identity: identity}
	if c, ok := r.clients[key]; ok {
		return c
	}
	c := build()
	r.clients[key] = c
	return c
}

// Evict drops the client for a pair, if present. The next GetOrCreate
// builds a fresh one.
func (r *Registry) Evict(server, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, registryKey{server: server, identity: identity})
}
