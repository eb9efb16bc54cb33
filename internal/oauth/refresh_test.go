package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, grantTypeRefreshToken, r.Form.Get("grant_type"))
		assert.Equal(t, "rt-old", r.Form.Get("refresh_token"))
		assert.Equal(t, "test-client", r.Form.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-new",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "rt-new",
		})
	}))
	defer server.Close()

	tok, err := Refresh(context.Background(), server.Client(), server.URL, "test-client", "rt-old")
	require.NoError(t, err)
	assert.Equal(t, "at-new", tok.AccessToken)
	assert.Equal(t, "rt-new", tok.RefreshToken)
	assert.Equal(t, int64(3600), tok.ExpiresIn)
}

func TestRefreshWithoutRotation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-new",
			"token_type":   "Bearer",
		})
	}))
	defer server.Close()

	tok, err := Refresh(context.Background(), server.Client(), server.URL, "test-client", "rt-old")
	require.NoError(t, err)
	// The caller detects non-rotation by the empty field and keeps its token.
	assert.Empty(t, tok.RefreshToken)
}

func TestRefreshErrorCarriesTruncatedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer server.Close()

	_, err := Refresh(context.Background(), server.Client(), server.URL, "test-client", "rt-old")
	require.Error(t, err)

	var oerr *OAuthError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, http.StatusBadRequest, oerr.StatusCode)
	assert.LessOrEqual(t, len(oerr.Body), 512+len("..."))
}

func TestRefreshRejectsEmptyToken(t *testing.T) {
	_, err := Refresh(context.Background(), nil, "https://auth.example.com/token", "test-client", "")
	require.Error(t, err)
}

func TestTokenGrantExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	g := &TokenGrant{ExpiresIn: 3600}
	assert.Equal(t, now.Add(time.Hour), g.Expiry(now))

	g = &TokenGrant{}
	assert.True(t, g.Expiry(now).IsZero())
}
