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

func writeMetadata(w http.ResponseWriter, md map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(md)
}

func fastDiscoverer() *Discoverer {
	d := NewDiscoverer()
	d.backoffStep = time.Millisecond
	return d
}

func TestDiscoverOpenIDDocument(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		writeMetadata(w, map[string]any{
			"issuer":                        "https://auth.example.com",
			"device_authorization_endpoint": "https://auth.example.com/device",
			"token_endpoint":                "https://auth.example.com/token",
		})
	}))
	defer server.Close()

	md, err := fastDiscoverer().Discover(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "https://auth.example.com", md.Issuer)
	assert.Equal(t, "https://auth.example.com/device", md.DeviceAuthorizationEndpoint)
	assert.Equal(t, "https://auth.example.com/token", md.TokenEndpoint)
	assert.Equal(t, []string{"/.well-known/openid-configuration"}, paths)
}

func TestDiscoverFallsBackToOAuthDocument(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		writeMetadata(w, map[string]any{
			"issuer":                        "https://auth.example.com",
			"device_authorization_endpoint": "https://auth.example.com/device",
			"token_endpoint":                "https://auth.example.com/token",
		})
	}))
	defer server.Close()

	md, err := fastDiscoverer().Discover(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com", md.Issuer)
	assert.Equal(t, []string{
		"/.well-known/openid-configuration",
		"/.well-known/oauth-authorization-server",
	}, paths)
}

func TestDiscoverRejectsIncompleteDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No device_authorization_endpoint: device flow cannot run here.
		writeMetadata(w, map[string]any{
			"issuer":         "https://auth.example.com",
			"token_endpoint": "https://auth.example.com/token",
		})
	}))
	defer server.Close()

	_, err := fastDiscoverer().Discover(context.Background(), server.URL)
	require.Error(t, err)

	var derr *DiscoveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, server.URL, derr.Origin)
}

func TestDiscoverRetriesTransientFaults(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// Drop the connection mid-exchange; the client sees an I/O
			// fault, not an HTTP status.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		writeMetadata(w, map[string]any{
			"issuer":                        "https://auth.example.com",
			"device_authorization_endpoint": "https://auth.example.com/device",
			"token_endpoint":                "https://auth.example.com/token",
		})
	}))
	defer server.Close()

	md, err := fastDiscoverer().Discover(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com", md.Issuer)
	assert.Equal(t, 2, calls)
}

func TestDiscoverDoesNotRetryHTTPStatuses(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := fastDiscoverer().Discover(context.Background(), server.URL)
	require.Error(t, err)
	// One call per candidate document, no per-candidate retries.
	assert.Equal(t, len(wellKnownPaths), calls)
}

func TestServerMetadataSupportsDeviceGrant(t *testing.T) {
	tests := []struct {
		name   string
		grants []string
		want   bool
	}{
		{name: "advertised", grants: []string{"authorization_code", grantTypeDeviceCode}, want: true},
		{name: "absent from list", grants: []string{"authorization_code"}, want: false},
		{name: "no list means assumed", grants: nil, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := &ServerMetadata{GrantTypesSupported: tt.grants}
			assert.Equal(t, tt.want, md.SupportsDeviceGrant())
		})
	}
}
