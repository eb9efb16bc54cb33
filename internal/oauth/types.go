package oauth

import "time"

// ServerMetadata describes an OAuth authorization server as advertised by its
// well-known discovery document. It is immutable once discovered; callers may
// cache it keyed by server origin.
type ServerMetadata struct {
	Issuer                      string   `json:"issuer"`
	DeviceAuthorizationEndpoint string   `json:"device_authorization_endpoint"`
	TokenEndpoint               string   `json:"token_endpoint"`
	AuthorizationEndpoint       string   `json:"authorization_endpoint,omitempty"`
	RegistrationEndpoint        string   `json:"registration_endpoint,omitempty"`
	IntrospectionEndpoint       string   `json:"introspection_endpoint,omitempty"`
	GrantTypesSupported         []string `json:"grant_types_supported,omitempty"`
	ResponseTypesSupported      []string `json:"response_types_supported,omitempty"`
	ScopesSupported             []string `json:"scopes_supported,omitempty"`
}

// complete reports whether the document carries the three fields required to
// run the device flow against this server.
func (m *ServerMetadata) complete() bool {
	return m.Issuer != "" && m.DeviceAuthorizationEndpoint != "" && m.TokenEndpoint != ""
}

// SupportsDeviceGrant reports whether the server advertises the device
// authorization grant type. Servers that omit grant_types_supported are
// assumed to support it, since the endpoint itself is present.
func (m *ServerMetadata) SupportsDeviceGrant() bool {
	if len(m.GrantTypesSupported) == 0 {
		return true
	}
	for _, g := range m.GrantTypesSupported {
		if g == grantTypeDeviceCode {
			return true
		}
	}
	return false
}

// DeviceCodeGrant is the result of one device-authorization request. It is
// consumed by repeated token polls until success, expiry, denial, or
// cancellation.
type DeviceCodeGrant struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresAt               time.Time
	Interval                time.Duration
}

// TokenGrant is a token-endpoint success response. ExpiresIn is in seconds
// per RFC 6749; RefreshToken may be empty when the server does not rotate
// refresh tokens on this exchange.
type TokenGrant struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Expiry converts ExpiresIn into an absolute instant relative to now.
// A zero ExpiresIn yields the zero time, meaning "no known expiry".
func (g *TokenGrant) Expiry(now time.Time) time.Time {
	if g.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(g.ExpiresIn) * time.Second)
}

const (
	grantTypeDeviceCode   = "urn:ietf:params:oauth:grant-type:device_code"
	grantTypeRefreshToken = "refresh_token"

	// defaultPollInterval applies when the device-authorization response
	// omits the interval field (RFC 8628 section 3.2).
	defaultPollInterval = 5 * time.Second

	// slowDownStep is the permanent interval increase demanded by a
	// slow_down error (RFC 8628 section 3.5).
	slowDownStep = 5 * time.Second
)
