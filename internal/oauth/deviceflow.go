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

	"github.com/teemow/jmapctl/internal/logging"
)

// FlowState is the observable progress of a device-flow login.
type FlowState int

const (
	StateIdle FlowState = iota
	StateWaitingForUser
	StateSuccess
	StateError
)

// String returns a human-readable state name.
func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForUser:
		return "waiting_for_user"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Flow runs the RFC 8628 device authorization grant against one server.
//
// OnState, when set, observes transitions: WaitingForUser once after the
// device code is issued, then at most one terminal Success or Error. It is
// never invoked after the polling context is cancelled.
type Flow struct {
	Metadata   *ServerMetadata
	ClientID   string
	HTTPClient *http.Client
	Logger     *slog.Logger
	OnState    func(FlowState)

	// OnPoll, when set, observes the outcome of every token poll:
	// "success" or the error-kind name.
	OnPoll func(outcome string)

	// sleep is the single suspension point of the poll loop; replaced in
	// tests to observe wait durations.
	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// NewFlow returns a Flow for the given server metadata and OAuth client id.
func NewFlow(md *ServerMetadata, clientID string) *Flow {
	return &Flow{
		Metadata:   md,
		ClientID:   clientID,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     slog.Default(),
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// RequestDeviceCode asks the server for a device/user code pair.
func (f *Flow) RequestDeviceCode(ctx context.Context, scopes []string) (*DeviceCodeGrant, error) {
	form := url.Values{}
	form.Set("client_id", f.ClientID)
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}

	body, status, err := f.postForm(ctx, f.Metadata.DeviceAuthorizationEndpoint, form)
	if err != nil {
		return nil, &DeviceFlowError{Kind: KindNetwork, Err: err}
	}
	if status != http.StatusOK {
		code, desc := parseErrorCode(body)
		return nil, &DeviceFlowError{
			Kind:        kindForCode(code),
			Description: desc,
			Err:         fmt.Errorf("device authorization endpoint returned status %d", status),
		}
	}

	var res struct {
		DeviceCode              string `json:"device_code"`
		UserCode                string `json:"user_code"`
		VerificationURI         string `json:"verification_uri"`
		VerificationURIComplete string `json:"verification_uri_complete"`
		ExpiresIn               int64  `json:"expires_in"`
		Interval                int64  `json:"interval"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &DeviceFlowError{Kind: KindServer, Err: fmt.Errorf("parsing device authorization response: %w", err)}
	}
	if res.DeviceCode == "" || res.UserCode == "" {
		return nil, &DeviceFlowError{Kind: KindServer, Err: fmt.Errorf("device authorization response lacks device_code or user_code")}
	}

	interval := defaultPollInterval
	if res.Interval > 0 {
		interval = time.Duration(res.Interval) * time.Second
	}

	return &DeviceCodeGrant{
		DeviceCode:              res.DeviceCode,
		UserCode:                res.UserCode,
		VerificationURI:         res.VerificationURI,
		VerificationURIComplete: res.VerificationURIComplete,
		ExpiresAt:               f.now().Add(time.Duration(res.ExpiresIn) * time.Second),
		Interval:                interval,
	}, nil
}

// PollToken polls the token endpoint until the user approves, the grant
// expires, access is denied, or ctx is cancelled. Cancellation is honored at
// the top of each iteration and during the inter-poll sleep; once cancelled,
// no state callback fires and ctx.Err is returned.
func (f *Flow) PollToken(ctx context.Context, grant *DeviceCodeGrant) (*TokenGrant, error) {
	logger := logging.WithOperation(f.Logger, "oauth.device_poll")
	interval := grant.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	f.notify(ctx, StateWaitingForUser)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !grant.ExpiresAt.IsZero() && f.now().After(grant.ExpiresAt) {
			return nil, f.fail(ctx, &DeviceFlowError{
				Kind: KindExpiredToken,
				Err:  fmt.Errorf("device code expired at %s", grant.ExpiresAt.Format(time.RFC3339)),
			})
		}

		tok, ferr := f.requestToken(ctx, grant)
		if f.OnPoll != nil {
			if ferr == nil {
				f.OnPoll("success")
			} else {
				f.OnPoll(ferr.Kind.String())
			}
		}
		if ferr == nil {
			logger.Info("device flow authorized")
			f.notify(ctx, StateSuccess)
			return tok, nil
		}
		if ferr.Kind.Terminal() {
			return nil, f.fail(ctx, ferr)
		}
		if ferr.Kind == KindSlowDown {
			interval += slowDownStep
			logger.Debug("server requested slow down",
				slog.Duration("interval", interval))
		}

		if err := f.sleep(ctx, interval); err != nil {
			return nil, err
		}
	}
}

// requestToken performs one token-endpoint poll.
func (f *Flow) requestToken(ctx context.Context, grant *DeviceCodeGrant) (*TokenGrant, *DeviceFlowError) {
	form := url.Values{}
	form.Set("grant_type", grantTypeDeviceCode)
	form.Set("device_code", grant.DeviceCode)
	form.Set("client_id", f.ClientID)

	body, status, err := f.postForm(ctx, f.Metadata.TokenEndpoint, form)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &DeviceFlowError{Kind: KindNetwork, Err: ctx.Err()}
		}
		if isTransient(err) {
			// One dropped poll is not fatal; the next iteration retries.
			return nil, &DeviceFlowError{Kind: KindAuthorizationPending, Err: err}
		}
		return nil, &DeviceFlowError{Kind: KindNetwork, Err: err}
	}

	if status == http.StatusOK {
		var tok TokenGrant
		if err := json.Unmarshal(body, &tok); err != nil {
			return nil, &DeviceFlowError{Kind: KindServer, Err: fmt.Errorf("parsing token response: %w", err)}
		}
		if tok.AccessToken == "" {
			return nil, &DeviceFlowError{Kind: KindServer, Err: fmt.Errorf("token response lacks access_token")}
		}
		return &tok, nil
	}

	code, desc := parseErrorCode(body)
	kind := kindForCode(code)
	if kind == KindUnknown && status >= http.StatusInternalServerError {
		kind = KindServer
	}
	return nil, &DeviceFlowError{
		Kind:        kind,
		Description: desc,
		Err:         fmt.Errorf("token endpoint returned status %d", status),
	}
}

// fail delivers the terminal error state unless the flow was cancelled.
func (f *Flow) fail(ctx context.Context, ferr *DeviceFlowError) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.Logger.Warn("device flow failed",
		slog.String("kind", ferr.Kind.String()),
		logging.Err(ferr))
	f.notify(ctx, StateError)
	return ferr
}

func (f *Flow) notify(ctx context.Context, s FlowState) {
	if f.OnState == nil || ctx.Err() != nil {
		return
	}
	f.OnState(s)
}

// postForm sends a form-encoded POST and returns the raw body and status.
func (f *Flow) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}
	return body, res.StatusCode, nil
}

// sleepContext sleeps for d or until ctx is done, whichever happens first.
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
