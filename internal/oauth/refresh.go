package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// refreshTimeout bounds the refresh exchange; it is an operational call.
const refreshTimeout = 30 * time.Second

// Refresh exchanges a refresh token for a new access token against the given
// token endpoint. It performs exactly one attempt: retry policy belongs to
// the caller, because a failed refresh has authentication consequences that
// must not be silently repeated.
//
// Servers are not required to rotate refresh tokens. When the response omits
// one, the returned grant's RefreshToken is empty and the caller must retain
// the token it already holds.
func Refresh(ctx context.Context, httpClient *http.Client, tokenEndpoint, clientID, refreshToken string) (*TokenGrant, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: refreshTimeout}
	}

	form := url.Values{}
	form.Set("grant_type", grantTypeRefreshToken)
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", clientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading refresh response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, &OAuthError{StatusCode: res.StatusCode, Body: truncate(string(body), 512)}
	}

	var tok TokenGrant
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("parsing refresh response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("refresh response lacks access_token")
	}

	slog.Default().Debug("access token refreshed",
		slog.Bool("refresh_token_rotated", tok.RefreshToken != ""))

	return &tok, nil
}

// truncate bounds diagnostic body snippets.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
