package jmap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"

	"github.com/teemow/jmapctl/internal/instrumentation"
	"github.com/teemow/jmapctl/internal/logging"
	"github.com/teemow/jmapctl/internal/oauth"
	"github.com/teemow/jmapctl/internal/token"
)

const (
	// requestTimeout bounds one operational HTTP call; discovery gets its
	// own wider budget inside the oauth package.
	requestTimeout = 30 * time.Second

	// maxConcurrentRequests caps in-flight HTTP requests per client,
	// bounding the load one logged-in client places on slow or
	// rate-limited mail servers.
	maxConcurrentRequests = 2

	// requestAttempts is the transient-fault retry budget per request.
	requestAttempts = 3

	// warmupDelay is applied once before the first request of a client,
	// amortizing first-connection setup cost.
	warmupDelay = 150 * time.Millisecond

	// sessionTTL bounds how long a discovered session is reused without
	// revalidation.
	sessionTTL = 5 * time.Minute

	// maxErrorBody bounds response-body snippets carried in errors.
	maxErrorBody = 512

	wellKnownSessionPath = "/.well-known/jmap"
	basicSessionPath     = "/jmap/session"
)

// AuthScheme selects how the client authenticates session discovery and
// method calls.
type AuthScheme string

const (
	// AuthBearer uses OAuth bearer tokens resolved through the token
	// store, with silent refresh. This is the default.
	AuthBearer AuthScheme = "bearer"
	// AuthBasic uses HTTP basic authentication with the identity and a
	// password; there is nothing to refresh, so auth failures are
	// immediately terminal.
	AuthBasic AuthScheme = "basic"
)

// Config assembles a Client. Server, Identity and Store are required for
// bearer auth; Password replaces Store for basic auth.
type Config struct {
	Server   string // origin, e.g. "https://mail.example.com"
	Identity string // login identity, e.g. "user@example.com"
	ClientID string // OAuth client id used for refresh exchanges

	Store      token.Store
	AuthScheme AuthScheme
	Password   string

	// TokenEndpoint short-circuits OAuth metadata discovery when the
	// caller already knows it (e.g. persisted from login).
	TokenEndpoint string

	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *instrumentation.Metrics
	Tracer     trace.Tracer
}

// Client is a resilient JMAP client for one (server, identity) pair.
type Client struct {
	server   string
	identity string
	clientID string
	scheme   AuthScheme
	password string

	store      token.Store
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	tracer     trace.Tracer
	discoverer *oauth.Discoverer

	// authMu serializes every mutation of authentication and session
	// state: token resolution, refresh, and session discovery. This is
	// what keeps two concurrent callers from both refreshing an expired
	// token and invalidating each other's result on servers that rotate
	// refresh tokens.
	authMu        sync.Mutex
	tokenEndpoint string
	session       *Session
	sessionKey    sessionCacheKey
	sessionExp    time.Time

	sem        *semaphore.Weighted
	warmupOnce sync.Once

	// test seams
	backoffStep time.Duration
	warmup      time.Duration
	now         func() time.Time
}

type sessionCacheKey struct {
	account     string
	accessToken string
}

// NewClient builds a client from cfg, filling defaults for anything unset.
func NewClient(cfg Config) *Client {
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = AuthBearer
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: requestTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("jmap")
	}

	c := &Client{
		server:        cfg.Server,
		identity:      cfg.Identity,
		clientID:      cfg.ClientID,
		scheme:        cfg.AuthScheme,
		password:      cfg.Password,
		store:         cfg.Store,
		httpClient:    cfg.HTTPClient,
		logger:        logging.WithServer(cfg.Logger, cfg.Server),
		metrics:       cfg.Metrics,
		tracer:        cfg.Tracer,
		tokenEndpoint: cfg.TokenEndpoint,
		sem:           semaphore.NewWeighted(maxConcurrentRequests),
		backoffStep:   time.Second,
		warmup:        warmupDelay,
		now:           time.Now,
	}
	c.discoverer = oauth.NewDiscoverer()
	c.discoverer.Logger = c.logger
	return c
}

// Server returns the server origin this client talks to.
func (c *Client) Server() string { return c.server }

// Identity returns the login identity this client is bound to.
func (c *Client) Identity() string { return c.identity }

// Token resolves a currently valid stored token, refreshing it once if the
// stored one has expired. Resolution is single-flighted per client: a second
// concurrent caller blocks and then observes the refreshed token instead of
// issuing its own refresh.
func (c *Client) Token(ctx context.Context) (*token.StoredToken, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.tokenLocked(ctx)
}

// TokenSource exposes the client's token resolution as an oauth2.TokenSource
// so x/oauth2 consumers can reuse the same single-flighted refresh path.
func (c *Client) TokenSource(ctx context.Context) *token.Source {
	return token.NewSource(ctx, c.Token)
}

// tokenLocked implements token resolution; authMu must be held.
func (c *Client) tokenLocked(ctx context.Context) (*token.StoredToken, error) {
	tok, err := c.store.Get(c.server, c.identity)
	if err != nil && !errors.Is(err, token.ErrNotFound) {
		return nil, fmt.Errorf("reading stored token: %w", err)
	}
	if tok.Valid() {
		return tok, nil
	}
	return c.refreshLocked(ctx, tok)
}

// refreshLocked performs the single refresh exchange and persists the
// result; authMu must be held. When no refresh is possible the stored pair
// is cleared and ErrTokenExpired surfaces, which callers must treat as
// "re-authentication required", never as retryable.
func (c *Client) refreshLocked(ctx context.Context, tok *token.StoredToken) (*token.StoredToken, error) {
	if tok == nil || tok.RefreshToken == "" {
		_ = c.store.Clear(c.server, c.identity)
		c.metrics.RecordTokenRefresh(ctx, "expired")
		return nil, ErrTokenExpired
	}

	endpoint, err := c.tokenEndpointLocked(ctx)
	if err != nil {
		return nil, err
	}

	grant, err := oauth.Refresh(ctx, c.httpClient, endpoint, c.clientID, tok.RefreshToken)
	if err != nil {
		c.metrics.RecordTokenRefresh(ctx, "failure")
		_ = c.store.Clear(c.server, c.identity)
		c.logger.Warn("token refresh failed, re-authentication required",
			logging.Identity(c.identity),
			logging.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	}

	refreshToken := grant.RefreshToken
	if refreshToken == "" {
		// Refresh tokens are not guaranteed to rotate; keep the prior one.
		refreshToken = tok.RefreshToken
	}
	fresh := &token.StoredToken{
		AccessToken:  grant.AccessToken,
		TokenType:    grant.TokenType,
		Expiry:       grant.Expiry(c.now()),
		RefreshToken: refreshToken,
	}
	if err := c.store.Save(c.server, c.identity, fresh); err != nil {
		return nil, fmt.Errorf("persisting refreshed token: %w", err)
	}

	c.metrics.RecordTokenRefresh(ctx, "success")
	c.logger.Debug("access token refreshed",
		logging.Identity(c.identity),
		slog.String("token", logging.SanitizeToken(fresh.AccessToken)))
	return fresh, nil
}

// forceRefresh refreshes regardless of the stored token's declared validity.
// Used after the server rejected a token the client still believed in.
// rejected is the access token the server turned away; when the stored token
// already differs, a concurrent caller refreshed while this one waited on
// authMu and the stored token is returned as-is.
func (c *Client) forceRefresh(ctx context.Context, rejected string) (*token.StoredToken, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	tok, err := c.store.Get(c.server, c.identity)
	if err != nil && !errors.Is(err, token.ErrNotFound) {
		return nil, fmt.Errorf("reading stored token: %w", err)
	}
	if tok.Valid() && tok.AccessToken != rejected {
		return tok, nil
	}
	return c.refreshLocked(ctx, tok)
}

// tokenEndpointLocked resolves the OAuth token endpoint, discovering server
// metadata on first use; authMu must be held.
func (c *Client) tokenEndpointLocked(ctx context.Context) (string, error) {
	if c.tokenEndpoint != "" {
		return c.tokenEndpoint, nil
	}
	md, err := c.discoverer.Discover(ctx, c.server)
	if err != nil {
		return "", fmt.Errorf("resolving token endpoint: %w", err)
	}
	c.tokenEndpoint = md.TokenEndpoint
	return c.tokenEndpoint, nil
}

// Session resolves the JMAP session for an account, serving it from the
// in-memory cache when the access token is unchanged and the entry is
// younger than five minutes. Token rotation implicitly invalidates the
// cache because the token is part of the key.
func (c *Client) Session(ctx context.Context, accountID string) (*Session, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	var accessToken string
	if c.scheme == AuthBearer {
		tok, err := c.tokenLocked(ctx)
		if err != nil {
			return nil, err
		}
		accessToken = tok.AccessToken
	}

	key := sessionCacheKey{account: accountID, accessToken: accessToken}
	if c.session != nil && c.sessionKey == key && c.now().Before(c.sessionExp) {
		c.metrics.RecordSessionCache(ctx, true)
		return c.session, nil
	}
	c.metrics.RecordSessionCache(ctx, false)

	session, accessToken, err := c.fetchSessionLocked(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	c.session = session
	c.sessionKey = sessionCacheKey{account: accountID, accessToken: accessToken}
	c.sessionExp = c.now().Add(sessionTTL)
	return session, nil
}

// fetchSessionLocked performs session discovery over HTTP, with transient
// retry and at most one refresh-and-retry on an auth failure; authMu must be
// held. It returns the session together with the access token it was
// ultimately fetched with.
func (c *Client) fetchSessionLocked(ctx context.Context, accessToken string) (*Session, string, error) {
	url := c.server + wellKnownSessionPath
	if c.scheme == AuthBasic {
		url = c.server + basicSessionPath
	}

	refreshed := false
	for {
		body, status, err := c.withRetry(ctx, "jmap.session", func() ([]byte, int, error) {
			return c.do(ctx, http.MethodGet, url, nil, "", c.authorization(accessToken))
		})
		if err != nil {
			return nil, "", &TransportError{Op: "session discovery", Err: err}
		}

		if isAuthStatus(status) {
			if c.scheme == AuthBasic {
				return nil, "", ErrTokenExpired
			}
			if refreshed {
				_ = c.store.Clear(c.server, c.identity)
				return nil, "", ErrTokenExpired
			}
			refreshed = true
			tok, err := c.refreshLocked(ctx, c.currentStoredToken())
			if err != nil {
				return nil, "", err
			}
			accessToken = tok.AccessToken
			continue
		}
		if status < 200 || status > 299 {
			return nil, "", &HTTPError{StatusCode: status, Body: truncate(string(body), maxErrorBody)}
		}

		var session Session
		if err := json.Unmarshal(body, &session); err != nil {
			return nil, "", &ProtocolError{Method: "session", Detail: fmt.Sprintf("malformed session object: %v", err)}
		}
		if session.APIURL == "" {
			return nil, "", &ProtocolError{Method: "session", Detail: "session object lacks apiUrl"}
		}
		c.logger.Debug("jmap session discovered",
			slog.String("api_url", session.APIURL),
			slog.Int("accounts", len(session.Accounts)))
		return &session, accessToken, nil
	}
}

// currentStoredToken reads the stored token ignoring lookup errors; the
// refresh path re-validates everything it needs.
func (c *Client) currentStoredToken() *token.StoredToken {
	tok, err := c.store.Get(c.server, c.identity)
	if err != nil {
		return nil
	}
	return tok
}

// resolveAccount applies the account-resolution order: explicit argument,
// the session's primary mail account, the first account key in sorted
// order, then the client identity as a last resort.
func (s *Session) resolveAccount(explicit, fallback string) string {
	if explicit != "" {
		return explicit
	}
	if id := s.PrimaryAccounts[CapMail]; id != "" {
		return id
	}
	if len(s.Accounts) > 0 {
		keys := make([]string, 0, len(s.Accounts))
		for k := range s.Accounts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys[0]
	}
	return fallback
}

// mailAccount resolves the session and the effective account id for an
// operation.
func (c *Client) mailAccount(ctx context.Context, accountID string) (*Session, string, error) {
	session, err := c.Session(ctx, accountID)
	if err != nil {
		return nil, "", err
	}
	return session, session.resolveAccount(accountID, c.identity), nil
}

// invoke executes one JMAP method call: semaphore-bounded, retried on
// transient faults, with a single refresh-and-retry on auth failure, and
// strict validation of the response shape. The returned raw message is the
// method's result object.
func (c *Client) invoke(ctx context.Context, session *Session, using []string, inv Invocation) (json.RawMessage, error) {
	start := c.now()
	ctx, span := c.tracer.Start(ctx, "jmap.invoke",
		trace.WithAttributes(attribute.String("jmap.method", inv.Name)))
	defer span.End()

	raw, err := c.invokeOnce(ctx, session, using, inv)
	status := logging.StatusSuccess
	if err != nil {
		status = logging.StatusError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.metrics.RecordMethodCall(ctx, inv.Name, status, c.now().Sub(start))
	return raw, err
}

func (c *Client) invokeOnce(ctx context.Context, session *Session, using []string, inv Invocation) (json.RawMessage, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	// First request pays a fixed warm-up delay; later ones don't.
	var warmErr error
	c.warmupOnce.Do(func() { warmErr = sleepContext(ctx, c.warmup) })
	if warmErr != nil {
		return nil, warmErr
	}

	if using == nil {
		using = []string{CapCore, CapMail}
	}
	payload, err := json.Marshal(Request{Using: using, MethodCalls: []Invocation{inv}})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", inv.Name, err)
	}

	accessToken := ""
	if c.scheme == AuthBearer {
		tok, err := c.Token(ctx)
		if err != nil {
			return nil, err
		}
		accessToken = tok.AccessToken
	}

	logger := logging.WithOperation(c.logger, "jmap.invoke")
	refreshed := false
	for {
		body, status, err := c.withRetry(ctx, "jmap."+inv.Name, func() ([]byte, int, error) {
			return c.do(ctx, http.MethodPost, session.APIURL, bytes.NewReader(payload), "application/json", c.authorization(accessToken))
		})
		if err != nil {
			return nil, &TransportError{Op: inv.Name, Err: err}
		}

		if isAuthStatus(status) {
			if c.scheme == AuthBasic || refreshed {
				if c.scheme == AuthBearer {
					_ = c.store.Clear(c.server, c.identity)
				}
				return nil, ErrTokenExpired
			}
			refreshed = true
			logger.Debug("auth rejected, refreshing once",
				logging.Method(inv.Name),
				slog.Int("http_status", status))
			tok, err := c.forceRefresh(ctx, accessToken)
			if err != nil {
				return nil, err
			}
			accessToken = tok.AccessToken
			continue
		}
		if status < 200 || status > 299 {
			return nil, &HTTPError{StatusCode: status, Body: truncate(string(body), maxErrorBody)}
		}

		return validateResponse(inv, body)
	}
}

// validateResponse checks the envelope against the invocation and extracts
// the result object. Shape mismatches are protocol errors, never retried.
func validateResponse(inv Invocation, body []byte) (json.RawMessage, error) {
	var res Response
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &ProtocolError{Method: inv.Name, Detail: fmt.Sprintf("malformed response envelope: %v", err)}
	}
	if len(res.MethodResponses) == 0 {
		return nil, &ProtocolError{Method: inv.Name, Detail: "response has no methodResponses"}
	}

	first := res.MethodResponses[0]
	if first.Name == "error" {
		var methodErr struct {
			Type        string `json:"type"`
			Description string `json:"description,omitempty"`
		}
		_ = json.Unmarshal(first.Args, &methodErr)
		detail := "method-level error: " + methodErr.Type
		if methodErr.Description != "" {
			detail += ": " + methodErr.Description
		}
		return nil, &ProtocolError{Method: inv.Name, Detail: detail}
	}
	if first.Name != inv.Name {
		return nil, &ProtocolError{
			Method: inv.Name,
			Detail: fmt.Sprintf("response method %q does not match request", first.Name),
		}
	}
	if first.CallID != inv.CallID {
		return nil, &ProtocolError{
			Method: inv.Name,
			Detail: fmt.Sprintf("response call id %q does not match request %q", first.CallID, inv.CallID),
		}
	}
	return first.Args, nil
}

// withRetry runs fn up to requestAttempts times with linear backoff,
// retrying only transient I/O faults. HTTP statuses are results, not
// errors: status policy belongs to the caller.
func (c *Client) withRetry(ctx context.Context, op string, fn func() ([]byte, int, error)) ([]byte, int, error) {
	type httpResult struct {
		body   []byte
		status int
	}
	res, err := backoff.Retry(ctx, func() (httpResult, error) {
		body, status, err := fn()
		if err != nil {
			if isTransient(err) {
				return httpResult{}, err
			}
			return httpResult{}, backoff.Permanent(err)
		}
		return httpResult{body: body, status: status}, nil
	},
		backoff.WithBackOff(&linearBackOff{step: c.backoffStep}),
		backoff.WithMaxTries(requestAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.metrics.RecordRetry(ctx, op)
			c.logger.Debug("transient fault, backing off",
				logging.Operation(op),
				slog.Duration("backoff", next),
				logging.Err(err))
		}),
	)
	if err != nil {
		return nil, 0, err
	}
	return res.body, res.status, nil
}

// do performs one HTTP exchange and drains the body.
func (c *Client) do(ctx context.Context, method, url string, body io.Reader, contentType, authorization string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", authorization)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, err
	}
	return data, res.StatusCode, nil
}

// authorization builds the Authorization header for the active scheme.
func (c *Client) authorization(accessToken string) string {
	if c.scheme == AuthBasic {
		creds := base64.StdEncoding.EncodeToString([]byte(c.identity + ":" + c.password))
		return "Basic " + creds
	}
	return "Bearer " + accessToken
}

// linearBackOff waits (attempt+1) * step between tries.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
