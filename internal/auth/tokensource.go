package auth

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

type controllerTokenSource struct {
	ctx context.Context
	c   *Controller
}

// TokenSource exposes the session as an oauth2.TokenSource. Expired tokens are
// refreshed through the same single-flight gate as everything else.
func (c *Controller) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &controllerTokenSource{ctx: ctx, c: c}
}

func (s *controllerTokenSource) Token() (*oauth2.Token, error) {
	if !s.c.store.HasValidToken() {
		if _, err := s.c.RefreshToken(s.ctx); err != nil {
			return nil, err
		}
	}

	tok := &oauth2.Token{
		AccessToken: s.c.store.GetAccessToken(),
		TokenType:   "Bearer",
	}
	if expiresAt, ok := s.c.store.GetTokenExpiresAt(); ok {
		tok.Expiry = time.UnixMilli(expiresAt).Add(-s.c.store.Buffer())
	}
	return tok, nil
}
