package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetadata(server *httptest.Server) *ServerMetadata {
	return &ServerMetadata{
		Issuer:                      server.URL,
		DeviceAuthorizationEndpoint: server.URL + "/device",
		TokenEndpoint:               server.URL + "/token",
	}
}

// pollScript serves one scripted token-endpoint response per poll.
type pollScript struct {
	responses []pollResponse
	calls     int
}

type pollResponse struct {
	status int
	body   map[string]any
}

func (s *pollScript) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, grantTypeDeviceCode, r.Form.Get("grant_type"))
		assert.Equal(t, "dev-code", r.Form.Get("device_code"))

		require.Less(t, s.calls, len(s.responses), "more polls than scripted responses")
		res := s.responses[s.calls]
		s.calls++

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(res.status)
		_ = json.NewEncoder(w).Encode(res.body)
	}
}

func newTestFlow(md *ServerMetadata) (*Flow, *[]time.Duration) {
	f := NewFlow(md, "test-client")
	waits := &[]time.Duration{}
	f.sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return f, waits
}

func TestRequestDeviceCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "test-client", r.Form.Get("client_id"))
		assert.Equal(t, "mail openid", r.Form.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "dev-code",
			"user_code":        "WDJB-MJHT",
			"verification_uri": "https://auth.example.com/activate",
			"expires_in":       1800,
			"interval":         7,
		})
	}))
	defer server.Close()

	f := NewFlow(testMetadata(server), "test-client")
	grant, err := f.RequestDeviceCode(context.Background(), []string{"mail", "openid"})
	require.NoError(t, err)

	assert.Equal(t, "dev-code", grant.DeviceCode)
	assert.Equal(t, "WDJB-MJHT", grant.UserCode)
	assert.Equal(t, "https://auth.example.com/activate", grant.VerificationURI)
	assert.Equal(t, 7*time.Second, grant.Interval)
	assert.False(t, grant.ExpiresAt.IsZero())
}

func TestRequestDeviceCodeDefaultInterval(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_code": "dev-code",
			"user_code":   "WDJB-MJHT",
			"expires_in":  1800,
		})
	}))
	defer server.Close()

	f := NewFlow(testMetadata(server), "test-client")
	grant, err := f.RequestDeviceCode(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, defaultPollInterval, grant.Interval)
}

func TestPollTokenPendingThenSuccess(t *testing.T) {
	script := &pollScript{responses: []pollResponse{
		{http.StatusBadRequest, map[string]any{"error": "authorization_pending"}},
		{http.StatusBadRequest, map[string]any{"error": "authorization_pending"}},
		{http.StatusOK, map[string]any{
			"access_token":  "at-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "rt-1",
		}},
	}}
	server := httptest.NewServer(script.handler(t))
	defer server.Close()

	f, waits := newTestFlow(testMetadata(server))
	var states []FlowState
	f.OnState = func(s FlowState) { states = append(states, s) }

	grant := &DeviceCodeGrant{
		DeviceCode: "dev-code",
		UserCode:   "WDJB-MJHT",
		ExpiresAt:  time.Now().Add(time.Hour),
		Interval:   5 * time.Second,
	}
	tok, err := f.PollToken(context.Background(), grant)
	require.NoError(t, err)

	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, "rt-1", tok.RefreshToken)
	assert.Equal(t, 3, script.calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, *waits)
	assert.Equal(t, []FlowState{StateWaitingForUser, StateSuccess}, states)
}

func TestPollTokenSlowDown(t *testing.T) {
	script := &pollScript{responses: []pollResponse{
		{http.StatusBadRequest, map[string]any{"error": "slow_down"}},
		{http.StatusBadRequest, map[string]any{"error": "authorization_pending"}},
		{http.StatusOK, map[string]any{"access_token": "at-1", "token_type": "Bearer"}},
	}}
	server := httptest.NewServer(script.handler(t))
	defer server.Close()

	f, waits := newTestFlow(testMetadata(server))

	grant := &DeviceCodeGrant{
		DeviceCode: "dev-code",
		ExpiresAt:  time.Now().Add(time.Hour),
		Interval:   5 * time.Second,
	}
	_, err := f.PollToken(context.Background(), grant)
	require.NoError(t, err)

	// slow_down raises the interval permanently, not just for the next poll.
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, *waits)
}

func TestPollTokenTerminalErrors(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		wantKind FlowErrorKind
	}{
		{name: "access denied", code: "access_denied", wantKind: KindAccessDenied},
		{name: "expired token", code: "expired_token", wantKind: KindExpiredToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := &pollScript{responses: []pollResponse{
				{http.StatusBadRequest, map[string]any{"error": tt.code}},
			}}
			server := httptest.NewServer(script.handler(t))
			defer server.Close()

			f, waits := newTestFlow(testMetadata(server))
			var states []FlowState
			f.OnState = func(s FlowState) { states = append(states, s) }

			grant := &DeviceCodeGrant{
				DeviceCode: "dev-code",
				ExpiresAt:  time.Now().Add(time.Hour),
				Interval:   time.Second,
			}
			_, err := f.PollToken(context.Background(), grant)
			require.Error(t, err)

			var ferr *DeviceFlowError
			require.ErrorAs(t, err, &ferr)
			assert.Equal(t, tt.wantKind, ferr.Kind)
			assert.Empty(t, *waits, "terminal error must not wait")
			assert.Equal(t, []FlowState{StateWaitingForUser, StateError}, states)
		})
	}
}

func TestPollTokenGrantExpiry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("expired grant must not be polled")
	}))
	defer server.Close()

	f, _ := newTestFlow(testMetadata(server))
	grant := &DeviceCodeGrant{
		DeviceCode: "dev-code",
		ExpiresAt:  time.Now().Add(-time.Minute),
		Interval:   time.Second,
	}
	_, err := f.PollToken(context.Background(), grant)
	require.Error(t, err)

	var ferr *DeviceFlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, KindExpiredToken, ferr.Kind)
}

func TestPollTokenCancellation(t *testing.T) {
	script := &pollScript{responses: []pollResponse{
		{http.StatusBadRequest, map[string]any{"error": "authorization_pending"}},
	}}
	server := httptest.NewServer(script.handler(t))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := NewFlow(testMetadata(server), "test-client")
	f.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	var afterCancel []FlowState
	f.OnState = func(s FlowState) {
		if ctx.Err() != nil {
			afterCancel = append(afterCancel, s)
		}
	}

	grant := &DeviceCodeGrant{
		DeviceCode: "dev-code",
		ExpiresAt:  time.Now().Add(time.Hour),
		Interval:   time.Second,
	}
	_, err := f.PollToken(ctx, grant)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, afterCancel, "no state callback may fire after cancellation")
}
