package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// keyringService namespaces jmapctl secrets in the OS credential store.
const keyringService = "jmapctl"

// KeyringStore persists tokens in the operating system credential store
// (Keychain, Secret Service, Windows Credential Manager). Tokens are stored
// JSON-encoded, one secret per (server, identity).
type KeyringStore struct {
	service string
	mu      sync.Mutex
}

// NewKeyringStore returns a Store backed by the OS credential store.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: keyringService}
}

func (s *KeyringStore) Get(server, identity string) (*StoredToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, err := keyring.Get(s.service, keyringUser(server, identity))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading token from keyring: %w", err)
	}

	var tok StoredToken
	if err := json.Unmarshal([]byte(secret), &tok); err != nil {
		return nil, fmt.Errorf("decoding stored token: %w", err)
	}
	return &tok, nil
}

func (s *KeyringStore) Save(server, identity string, tok *StoredToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := keyring.Set(s.service, keyringUser(server, identity), string(data)); err != nil {
		return fmt.Errorf("writing token to keyring: %w", err)
	}
	return nil
}

func (s *KeyringStore) Clear(server, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := keyring.Delete(s.service, keyringUser(server, identity))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("removing token from keyring: %w", err)
	}
	return nil
}

// keyringUser builds the credential-store username for a (server, identity)
// pair. The separator cannot occur in a URL origin.
func keyringUser(server, identity string) string {
	return server + "|" + identity
}
