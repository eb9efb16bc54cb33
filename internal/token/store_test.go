package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestStoredTokenValidAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		tok  *StoredToken
		want bool
	}{
		{name: "nil token", tok: nil, want: false},
		{name: "empty access token", tok: &StoredToken{RefreshToken: "rt"}, want: false},
		{name: "no expiry", tok: &StoredToken{AccessToken: "at"}, want: true},
		{name: "future expiry", tok: &StoredToken{AccessToken: "at", Expiry: now.Add(time.Minute)}, want: true},
		{name: "past expiry", tok: &StoredToken{AccessToken: "at", Expiry: now.Add(-time.Minute)}, want: false},
		{name: "expiry exactly now", tok: &StoredToken{AccessToken: "at", Expiry: now}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tok.validAt(now))
		})
	}
}

func TestMemStoreRoundTrip(t *testing.T) {
	s := NewMemStore()

	_, err := s.Get("https://mail.example.com", "a@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	tok := &StoredToken{
		AccessToken:  "at",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
		RefreshToken: "rt",
	}
	require.NoError(t, s.Save("https://mail.example.com", "a@example.com", tok))

	got, err := s.Get("https://mail.example.com", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, tok.AccessToken, got.AccessToken)
	assert.Equal(t, tok.RefreshToken, got.RefreshToken)

	// The stored copy is independent of the caller's struct.
	got.AccessToken = "mutated"
	again, err := s.Get("https://mail.example.com", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "at", again.AccessToken)
}

func TestMemStoreKeysByServerAndIdentity(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Save("https://one.example.com", "a@example.com", &StoredToken{AccessToken: "one"}))
	require.NoError(t, s.Save("https://two.example.com", "a@example.com", &StoredToken{AccessToken: "two"}))
	require.NoError(t, s.Save("https://one.example.com", "b@example.com", &StoredToken{AccessToken: "three"}))

	got, err := s.Get("https://one.example.com", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "one", got.AccessToken)

	require.NoError(t, s.Clear("https://one.example.com", "a@example.com"))
	_, err = s.Get("https://one.example.com", "a@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	// Neighbors are untouched.
	got, err = s.Get("https://two.example.com", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "two", got.AccessToken)
}

func TestMemStoreClearAbsent(t *testing.T) {
	s := NewMemStore()
	assert.NoError(t, s.Clear("https://mail.example.com", "a@example.com"))
}

func TestKeyringStoreRoundTrip(t *testing.T) {
	keyring.MockInit()
	s := NewKeyringStore()

	_, err := s.Get("https://mail.example.com", "a@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	tok := &StoredToken{
		AccessToken:  "at",
		TokenType:    "Bearer",
		Expiry:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		RefreshToken: "rt",
	}
	require.NoError(t, s.Save("https://mail.example.com", "a@example.com", tok))

	got, err := s.Get("https://mail.example.com", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, tok, got)

	require.NoError(t, s.Clear("https://mail.example.com", "a@example.com"))
	_, err = s.Get("https://mail.example.com", "a@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Clear("https://mail.example.com", "a@example.com"))
}
