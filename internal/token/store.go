package token

import (
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by Store.Get when no token is stored for the
// given (server, identity) pair.
var ErrNotFound = errors.New("no stored token")

// StoredToken is the persisted token pair for one (server, identity).
//
// The JMAP client only ever holds a transient in-memory copy for the
// duration of one operation; the Store is the owner.
type StoredToken struct {
	AccessToken  string    `json:"accessToken"`
	TokenType    string    `json:"tokenType,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
}

// Valid reports whether the access token can still be presented: a token
// without a known expiry is assumed valid, otherwise the expiry must be in
// the future.
func (t *StoredToken) Valid() bool {
	return t.validAt(time.Now())
}

func (t *StoredToken) validAt(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.Expiry.IsZero() || now.Before(t.Expiry)
}

// Store persists token pairs keyed by (server, identity).
// Implementations must be safe for concurrent read/write.
type Store interface {
	// Get returns the stored token, or ErrNotFound.
	Get(server, identity string) (*StoredToken, error)

	// Save persists the token, replacing any previous one.
	Save(server, identity string, tok *StoredToken) error

	// Clear removes the stored token. Clearing an absent token is not an
	// error.
	Clear(server, identity string) error
}

// MemStore is an in-memory Store for tests and ephemeral sessions.
type MemStore struct {
	mu     sync.RWMutex
	tokens map[string]StoredToken
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{tokens: make(map[string]StoredToken)}
}

func (s *MemStore) Get(server, identity string) (*StoredToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[storeKey(server, identity)]
	if !ok {
		return nil, ErrNotFound
	}
	copy := tok
	return &copy, nil
}

func (s *MemStore) Save(server, identity string, tok *StoredToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[storeKey(server, identity)] = *tok
	return nil
}

func (s *MemStore) Clear(server, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, storeKey(server, identity))
	return nil
}

func storeKey(server, identity string) string {
	return server + "\x00" + identity
}
