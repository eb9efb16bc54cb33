package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/teemow/jmapctl/internal/logging"
)

const (
	// discoveryTimeout bounds one metadata fetch. Discovery happens before
	// any user interaction, so it gets a wider budget than operational calls.
	discoveryTimeout = 60 * time.Second

	// discoveryAttempts is the per-candidate retry budget for transient
	// I/O faults.
	discoveryAttempts = 3
)

// wellKnownPaths are the candidate discovery documents, tried in order:
// OpenID-style first, then the OAuth authorization-server document.
var wellKnownPaths = []string{
	"/.well-known/openid-configuration",
	"/.well-known/oauth-authorization-server",
}

// Discoverer resolves an authorization server's metadata from its well-known
// documents.
type Discoverer struct {
	HTTPClient *http.Client
	Logger     *slog.Logger

	backoffStep time.Duration
}

// NewDiscoverer returns a Discoverer with a 60 second HTTP timeout and the
// default logger.
func NewDiscoverer() *Discoverer {
	return &Discoverer{
		HTTPClient:  &http.Client{Timeout: discoveryTimeout},
		Logger:      slog.Default(),
		backoffStep: time.Second,
	}
}

// Discover fetches server metadata for the given origin. Each candidate URL
// is retried up to 3 times with linear backoff on transient faults; a
// non-transient HTTP status is terminal for that candidate but the next one
// is still tried. When every candidate is exhausted the last observed error
// is wrapped in a DiscoveryError.
func (d *Discoverer) Discover(ctx context.Context, origin string) (*ServerMetadata, error) {
	origin = strings.TrimSuffix(origin, "/")
	logger := logging.WithOperation(d.Logger, "oauth.discover")

	var lastErr error
	for _, path := range wellKnownPaths {
		url := origin + path
		md, err := backoff.Retry(ctx, func() (*ServerMetadata, error) {
			md, err := d.fetch(ctx, url)
			if err != nil && !isTransient(err) {
				return nil, backoff.Permanent(err)
			}
			return md, err
		},
			backoff.WithBackOff(&linearBackOff{step: d.backoffStep}),
			backoff.WithMaxTries(discoveryAttempts),
		)
		if err == nil {
			logger.Debug("server metadata resolved",
				slog.String("url", url),
				slog.String("issuer", md.Issuer))
			return md, nil
		}
		logger.Debug("discovery candidate failed",
			slog.String("url", url),
			logging.Err(err))
		lastErr = err
	}

	return nil, &DiscoveryError{Origin: origin, Err: lastErr}
}

// fetch retrieves and validates a single metadata document.
func (d *Discoverer) fetch(ctx context.Context, url string) (*ServerMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: http status %s", url, res.Status)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}

	var md ServerMetadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", url, err)
	}
	if !md.complete() {
		return nil, fmt.Errorf("%s: document lacks issuer, device_authorization_endpoint or token_endpoint", url)
	}

	return &md, nil
}

// linearBackOff waits (attempt+1) * step between tries, so the first retry
// waits one step, the second two.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() { b.attempt = 0 }
