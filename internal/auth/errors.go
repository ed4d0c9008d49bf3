package auth

import (
	"errors"
	"fmt"

	"github.com/animestream/authcore/internal/authclient"
)

var (
	ErrNoRefreshToken      = errors.New("no refresh token available")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrRefreshSuperseded means the session was cleared while the refresh was in flight
	// and its result was dropped.
	ErrRefreshSuperseded = errors.New("refresh superseded by logout")

	ErrInvalidLoginResponse   = fmt.Errorf("%w: no access token in login response", authclient.ErrMalformedResponse)
	ErrInvalidRefreshResponse = fmt.Errorf("%w: no access token in refresh response", authclient.ErrMalformedResponse)
)
