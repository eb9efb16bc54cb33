package token

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// ResolveFunc resolves a currently valid token, refreshing it if necessary.
// The jmap client's access-token resolution satisfies this signature.
type ResolveFunc func(ctx context.Context) (*StoredToken, error)

// Source adapts a ResolveFunc to oauth2.TokenSource, so the client's
// single-flighted token resolution can feed any x/oauth2 consumer (for
// example oauth2.NewClient for ad-hoc authenticated requests).
type Source struct {
	ctx     context.Context
	resolve ResolveFunc
}

// NewSource returns an oauth2.TokenSource backed by resolve. The context is
// captured because oauth2.TokenSource.Token takes none.
func NewSource(ctx context.Context, resolve ResolveFunc) *Source {
	return &Source{ctx: ctx, resolve: resolve}
}

// Token implements oauth2.TokenSource.
func (s *Source) Token() (*oauth2.Token, error) {
	tok, err := s.resolve(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving access token: %w", err)
	}
	typ := tok.TokenType
	if typ == "" {
		typ = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    typ,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

var _ oauth2.TokenSource = (*Source)(nil)
