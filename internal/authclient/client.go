// Package authclient maps each auth action onto one backend endpoint. It keeps no
// session state; tokens come in as arguments and go out as AuthPayload values.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/animestream/authcore/internal/logger"
	"github.com/animestream/authcore/internal/pipeline"
	"github.com/rs/zerolog"
)

const (
	PathLogin              = "/auth/login"
	PathRegister           = "/auth/register"
	PathRefresh            = "/auth/refresh-token"
	PathLogout             = "/auth/logout"
	PathProfile            = "/auth/user-profile"
	PathForgotPassword     = "/auth/forgot-password"
	PathResetPassword      = "/auth/reset-password"
	PathDevices            = "/auth/devices"
	PathRevokeDevice       = "/auth/revoke-device"
	PathRevokeOtherDevices = "/auth/revoke-other-devices"
	PathTokenStats         = "/auth/token-stats"
)

// API is the JSON transport; *pipeline.Client satisfies it. Login, register,
// refresh and logout go out with pipeline.SkipRefresh so a 401 on them is final.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, in, out any) error
}

type Client struct {
	api         API
	refreshPath string
	log         zerolog.Logger
}

type Option func(*Client)

// WithRefreshPath switches to a backend that serves refresh at another path.
func WithRefreshPath(path string) Option {
	return func(c *Client) { c.refreshPath = path }
}

func New(api API, opts ...Option) *Client {
	c := &Client{
		api:         api,
		refreshPath: PathRefresh,
		log:         logger.For(logger.CLIENT),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) RefreshPath() string { return c.refreshPath }

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (c *Client) authCall(ctx context.Context, path string, in any) (AuthPayload, error) {
	var body map[string]any
	if err := c.api.Post(pipeline.SkipRefresh(ctx), path, in, &body); err != nil {
		return AuthPayload{}, err
	}
	if body == nil {
		return AuthPayload{}, fmt.Errorf("%w: empty body from %s", ErrMalformedResponse, path)
	}
	return NormalizeAuthPayload(body), nil
}

func (c *Client) Login(ctx context.Context, creds Credentials) (AuthPayload, error) {
	if err := validatePayload(creds); err != nil {
		return AuthPayload{}, err
	}
	c.log.Debug().Str("email", creds.Email).Msg("Logging in")
	return c.authCall(ctx, PathLogin, creds)
}

func (c *Client) Register(ctx context.Context, payload RegisterPayload) (map[string]any, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}
	var out map[string]any
	if err := c.api.Post(pipeline.SkipRefresh(ctx), PathRegister, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (AuthPayload, error) {
	return c.authCall(ctx, c.refreshPath, refreshRequest{RefreshToken: refreshToken})
}

// Logout revokes refreshToken server-side. An empty token is a no-op.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return c.api.Post(pipeline.SkipRefresh(ctx), PathLogout, refreshRequest{RefreshToken: refreshToken}, nil)
}

// FetchProfile accepts the profile either flat or under "data".
func (c *Client) FetchProfile(ctx context.Context) (User, error) {
	var raw json.RawMessage
	if err := c.api.Get(ctx, PathProfile, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var user map[string]any
	dec := json.NewDecoder(bytes.NewReader(unwrap(raw)))
	dec.UseNumber()
	if err := dec.Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: profile: %w", ErrMalformedResponse, err)
	}
	if len(user) == 0 {
		return nil, nil
	}
	return User(user), nil
}

func (c *Client) ForgotPassword(ctx context.Context, payload ForgotPasswordPayload) (map[string]any, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}
	var out map[string]any
	if err := c.api.Post(ctx, PathForgotPassword, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ResetPassword(ctx context.Context, payload ResetPasswordPayload) (map[string]any, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}
	var out map[string]any
	if err := c.api.Post(ctx, PathResetPassword, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchDevices(ctx context.Context) (DeviceList, error) {
	var out DeviceList
	if err := c.getUnwrapped(ctx, PathDevices, &out); err != nil {
		return DeviceList{}, err
	}
	if out.TotalCount == 0 {
		out.TotalCount = len(out.Devices)
	}
	return out, nil
}

type revokeDeviceRequest struct {
	DeviceFingerprint string `json:"device_fingerprint" validate:"required"`
}

func (c *Client) RevokeDevice(ctx context.Context, fingerprint string) (RevokeResult, error) {
	in := revokeDeviceRequest{DeviceFingerprint: fingerprint}
	if err := validatePayload(in); err != nil {
		return RevokeResult{}, err
	}
	var out RevokeResult
	if err := c.postUnwrapped(ctx, PathRevokeDevice, in, &out); err != nil {
		return RevokeResult{}, err
	}
	return out, nil
}

func (c *Client) RevokeOtherDevices(ctx context.Context) (RevokeOthersResult, error) {
	var out RevokeOthersResult
	if err := c.postUnwrapped(ctx, PathRevokeOtherDevices, nil, &out); err != nil {
		return RevokeOthersResult{}, err
	}
	return out, nil
}

func (c *Client) FetchTokenStats(ctx context.Context) (TokenStats, error) {
	var out TokenStats
	if err := c.getUnwrapped(ctx, PathTokenStats, &out); err != nil {
		return TokenStats{}, err
	}
	return out, nil
}

func (c *Client) getUnwrapped(ctx context.Context, path string, out any) error {
	var raw json.RawMessage
	if err := c.api.Get(ctx, path, &raw); err != nil {
		return err
	}
	return decodeInto(path, raw, out)
}

func (c *Client) postUnwrapped(ctx context.Context, path string, in, out any) error {
	var raw json.RawMessage
	if err := c.api.Post(ctx, path, in, &raw); err != nil {
		return err
	}
	return decodeInto(path, raw, out)
}

func decodeInto(path string, raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrap(raw), out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedResponse, path, err)
	}
	return nil
}
