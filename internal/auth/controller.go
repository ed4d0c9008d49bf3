// Package auth holds the session controller: the only component that writes the
// token store as a result of user actions, and the owner of the refresh lock.
package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/animestream/authcore/internal/authclient"
	"github.com/animestream/authcore/internal/logger"
	"github.com/animestream/authcore/internal/metrics"
	"github.com/animestream/authcore/internal/pipeline"
	"github.com/animestream/authcore/internal/tokenstore"
	"github.com/rs/zerolog"
)

// RotationMode decides what a refresh response without a refresh token means.
type RotationMode int

const (
	// RotateIfPresent keeps the stored refresh token unless a new one arrives.
	RotateIfPresent RotationMode = iota
	// RequireRotation rejects refresh responses that carry no new refresh token.
	RequireRotation
)

// ParseRotationMode maps "required" to RequireRotation and anything else to RotateIfPresent.
func ParseRotationMode(s string) RotationMode {
	if s == "required" {
		return RequireRotation
	}
	return RotateIfPresent
}

type LoginResult struct {
	Success bool
	User    authclient.User
}

type Controller struct {
	store   *tokenstore.Store
	client  *authclient.Client
	gate    *RefreshGate
	metrics *metrics.Metrics
	log     zerolog.Logger

	rotation   RotationMode
	deviceName string

	// sessionMu makes "check generation, then apply" atomic against ClearAuth.
	sessionMu sync.Mutex

	userMu sync.RWMutex
	user   authclient.User

	loading atomic.Int32
}

type Option func(*Controller)

func WithRotation(mode RotationMode) Option {
	return func(c *Controller) { c.rotation = mode }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithDeviceName is stored when the server does not name the device itself.
func WithDeviceName(name string) Option {
	return func(c *Controller) { c.deviceName = name }
}

func NewController(store *tokenstore.Store, client *authclient.Client, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		client: client,
		gate:   NewRefreshGate(),
		log:    logger.For(logger.AUTH),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.gate.OnJoin = func() {
		c.metrics.RefreshJoined()
		c.log.Debug().Msg("Refresh already in progress, waiting")
	}
	return c
}

// Init loads the cached user from the store. Called once at boot.
func (c *Controller) Init() {
	c.setUser(authclient.User(c.store.GetUser()))
	state := c.store.GetAuthState()
	c.log.Debug().
		Bool("authenticated", state.IsAuthenticated).
		Bool("validToken", state.HasValidToken).
		Bool("validRefresh", state.HasValidRefreshToken).
		Bool("user", state.HasUser).
		Msg("Auth initialized")
}

func (c *Controller) setUser(u authclient.User) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	if len(u) == 0 {
		c.user = nil
		return
	}
	c.user = u
}

func (c *Controller) User() authclient.User {
	c.userMu.RLock()
	defer c.userMu.RUnlock()
	return c.user
}

// IsAuthenticated needs both a known user and a usable token in the store.
func (c *Controller) IsAuthenticated() bool {
	return c.User() != nil && c.store.IsAuthenticated()
}

func (c *Controller) HasValidToken() bool        { return c.store.HasValidToken() }
func (c *Controller) HasValidRefreshToken() bool { return c.store.HasValidRefreshToken() }
func (c *Controller) HasRefreshToken() bool      { return c.store.GetRefreshToken() != "" }
func (c *Controller) AccessToken() string        { return c.store.GetAccessToken() }
func (c *Controller) TokenExpiresAt() (int64, bool) {
	return c.store.GetTokenExpiresAt()
}
func (c *Controller) IsLoading() bool    { return c.loading.Load() > 0 }
func (c *Controller) IsRefreshing() bool { return c.gate.InProgress() }

// AuthState is the store's diagnostic snapshot.
func (c *Controller) AuthState() tokenstore.AuthState { return c.store.GetAuthState() }

func (c *Controller) track() func() {
	c.loading.Add(1)
	return func() { c.loading.Add(-1) }
}

func (c *Controller) Login(ctx context.Context, creds authclient.Credentials) (LoginResult, error) {
	defer c.track()()

	payload, err := c.client.Login(ctx, creds)
	if err != nil {
		c.log.Debug().Err(err).Msg("Login failed")
		return LoginResult{}, err
	}
	if payload.AccessToken == "" {
		return LoginResult{}, ErrInvalidLoginResponse
	}

	c.sessionMu.Lock()
	c.applyAuthPayload(payload)
	c.sessionMu.Unlock()

	c.log.Info().Str("user", c.User().ID()).Msg("Login successful")
	return LoginResult{Success: true, User: c.User()}, nil
}

func (c *Controller) applyAuthPayload(p authclient.AuthPayload) {
	c.store.SetAccessToken(p.AccessToken, p.ExpiresIn)

	if p.RefreshToken != "" {
		expiry := tokenstore.KeepExpiry()
		if p.RefreshExpiresAt != nil {
			expiry = tokenstore.ExpiryFrom(p.RefreshExpiresAt)
		}
		c.store.SetRefreshToken(p.RefreshToken, expiry)
	}

	switch {
	case p.DeviceName != "":
		c.store.SetDeviceName(p.DeviceName)
	case c.deviceName != "" && c.store.GetDeviceName() == "":
		c.store.SetDeviceName(c.deviceName)
	}

	if len(p.User) > 0 {
		c.setUser(p.User)
		c.store.SetUser(p.User)
	}
}

func (c *Controller) Register(ctx context.Context, payload authclient.RegisterPayload) (map[string]any, error) {
	defer c.track()()
	return c.client.Register(ctx, payload)
}

func (c *Controller) ForgotPassword(ctx context.Context, payload authclient.ForgotPasswordPayload) (map[string]any, error) {
	defer c.track()()
	return c.client.ForgotPassword(ctx, payload)
}

func (c *Controller) ResetPassword(ctx context.Context, payload authclient.ResetPasswordPayload) (map[string]any, error) {
	defer c.track()()
	return c.client.ResetPassword(ctx, payload)
}

// RefreshToken returns a fresh access token. Concurrent callers share one round-trip.
func (c *Controller) RefreshToken(ctx context.Context) (string, error) {
	return c.gate.Do(ctx, c.performRefresh)
}

func (c *Controller) performRefresh(ctx context.Context) (token string, err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		c.metrics.RefreshDone(outcome, time.Since(start).Seconds())
	}()

	refreshToken := c.store.GetRefreshToken()
	if refreshToken == "" {
		c.SilentLogout()
		return "", ErrNoRefreshToken
	}
	if c.store.IsRefreshExpired() {
		c.SilentLogout()
		return "", ErrRefreshTokenExpired
	}

	generation := c.store.Generation()
	c.log.Debug().Msg("Refreshing access token")

	payload, err := c.client.Refresh(ctx, refreshToken)
	if err != nil {
		c.log.Debug().Err(err).Msg("Token refresh failed")
		if errors.Is(err, pipeline.ErrUnauthorized) {
			c.SilentLogout()
		}
		return "", err
	}
	if payload.AccessToken == "" {
		return "", ErrInvalidRefreshResponse
	}
	if c.rotation == RequireRotation && payload.RefreshToken == "" {
		return "", ErrInvalidRefreshResponse
	}

	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if c.store.Generation() != generation {
		c.log.Info().Msg("Session cleared during refresh, discarding result")
		return "", ErrRefreshSuperseded
	}
	c.applyAuthPayload(payload)

	c.log.Debug().Bool("rotated", payload.RefreshToken != "").Msg("Token refreshed successfully")
	return payload.AccessToken, nil
}

// Logout notifies the server when a live refresh token exists, then clears the session.
// The server call is best effort; the local session is always cleared.
func (c *Controller) Logout(ctx context.Context) {
	if refreshToken := c.store.GetRefreshToken(); refreshToken != "" && !c.store.IsRefreshExpired() {
		if err := c.client.Logout(ctx, refreshToken); err != nil {
			c.log.Warn().Err(err).Msg("Server logout failed (continuing)")
		}
	}
	c.ClearAuth()
	c.metrics.Logout("explicit")
	c.log.Info().Msg("Logged out")
}

// SilentLogout clears the session without telling the server.
func (c *Controller) SilentLogout() {
	c.ClearAuth()
	c.metrics.Logout("silent")
}

// ClearAuth wipes the store and the cached user.
func (c *Controller) ClearAuth() {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.store.ClearAll()
	c.setUser(nil)
}

// LoadProfile refreshes first when only the refresh token is usable, then fetches the
// profile. A 401 logs the session out.
func (c *Controller) LoadProfile(ctx context.Context) (authclient.User, error) {
	user, err := c.loadProfile(ctx)
	if err != nil {
		c.log.Debug().Err(err).Msg("Failed to load profile")
		if errors.Is(err, pipeline.ErrUnauthorized) {
			c.Logout(ctx)
		}
		return nil, err
	}
	return user, nil
}

func (c *Controller) loadProfile(ctx context.Context) (authclient.User, error) {
	if !c.store.HasValidToken() && c.store.HasValidRefreshToken() {
		if _, err := c.RefreshToken(ctx); err != nil {
			return nil, err
		}
	}

	user, err := c.client.FetchProfile(ctx)
	if err != nil {
		return nil, err
	}
	if len(user) > 0 {
		c.setUser(user)
		c.store.SetUser(user)
	}
	return user, nil
}

func (c *Controller) GetDevices(ctx context.Context) (authclient.DeviceList, error) {
	return c.client.FetchDevices(ctx)
}

func (c *Controller) RevokeDevice(ctx context.Context, fingerprint string) (authclient.RevokeResult, error) {
	return c.client.RevokeDevice(ctx, fingerprint)
}

func (c *Controller) RevokeOtherDevices(ctx context.Context) (authclient.RevokeOthersResult, error) {
	return c.client.RevokeOtherDevices(ctx)
}

func (c *Controller) GetTokenStats(ctx context.Context) (authclient.TokenStats, error) {
	return c.client.FetchTokenStats(ctx)
}
