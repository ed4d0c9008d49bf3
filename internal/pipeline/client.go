// Package pipeline wraps every outgoing backend call: it attaches the bearer
// token, turns non-2xx responses into *APIError, and on a 401 refreshes the
// session once and replays the request.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/animestream/authcore/internal/logger"
	"github.com/animestream/authcore/internal/metrics"
	"github.com/rs/zerolog"
)

// Session is the read side of the token store the pipeline needs.
type Session interface {
	GetAccessToken() string
	HasValidToken() bool
	HasValidRefreshToken() bool
}

// Refresher owns the single refresh lock. RefreshToken joins an in-flight refresh
// when there is one.
type Refresher interface {
	RefreshToken(ctx context.Context) (string, error)
	IsRefreshing() bool
	ClearAuth()
}

// DefaultAuthPaths never trigger a refresh on 401.
var DefaultAuthPaths = []string{
	"/auth/login",
	"/auth/register",
	"/auth/refresh-token",
	"/auth/refresh",
	"/auth/logout",
}

type retriedKey struct{}

// MarkRetried flags a request context so a 401 on it is returned as is.
func MarkRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func isRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

type skipRefreshKey struct{}

// SkipRefresh flags a request as part of the auth flow itself. A 401 on it never
// starts a refresh, whatever path it was sent to.
func SkipRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipRefreshKey{}, true)
}

func skipsRefresh(ctx context.Context) bool {
	v, _ := ctx.Value(skipRefreshKey{}).(bool)
	return v
}

type Client struct {
	baseURL   string
	http      *http.Client
	session   Session
	authPaths []string
	metrics   *metrics.Metrics
	log       zerolog.Logger

	mu        sync.RWMutex
	refresher Refresher
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithAuthPaths(paths ...string) Option {
	return func(c *Client) { c.authPaths = paths }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New builds a client rooted at baseURL, e.g. "http://localhost:8000/api".
func New(baseURL string, session Session, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 10 * time.Second},
		session:   session,
		authPaths: DefaultAuthPaths,
		log:       logger.For(logger.PIPELINE),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UseRefresher installs the refresh owner. Until it is set a 401 is returned unchanged.
func (c *Client) UseRefresher(r Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresher = r
}

func (c *Client) getRefresher() Refresher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refresher
}

func (c *Client) BaseURL() string { return c.baseURL }

// NewRequest builds a request for path relative to the base URL, JSON-encoding body
// when it is not nil.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do sends req with the current bearer token. A 2xx response is returned for the
// caller to read and close; anything else comes back as an error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.send(req, c.session.GetAccessToken())
}

func (c *Client) send(req *http.Request, token string) (*http.Response, error) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	apiErr := newAPIError(req, resp)
	c.metrics.APIError(strconv.Itoa(apiErr.Status))

	if apiErr.Status == http.StatusUnauthorized {
		return c.handleUnauthorized(req, token, apiErr)
	}

	c.log.Debug().
		Int("status", apiErr.Status).
		Str("method", apiErr.Method).
		Str("path", apiErr.Path).
		Interface("body", apiErr.Body).
		Msg("API error")
	return nil, apiErr
}

func (c *Client) isAuthEndpoint(path string) bool {
	rel := strings.TrimPrefix(path, c.pathPrefix())
	for _, p := range c.authPaths {
		if rel == p {
			return true
		}
	}
	return false
}

func (c *Client) pathPrefix() string {
	i := strings.Index(c.baseURL, "://")
	if i < 0 {
		return ""
	}
	rest := c.baseURL[i+3:]
	if j := strings.Index(rest, "/"); j >= 0 {
		return rest[j:]
	}
	return ""
}

func (c *Client) handleUnauthorized(req *http.Request, sentToken string, apiErr *APIError) (*http.Response, error) {
	ctx := req.Context()
	log := c.log.With().Str("method", req.Method).Str("path", req.URL.Path).Logger()

	if c.isAuthEndpoint(req.URL.Path) || isRetried(ctx) || skipsRefresh(ctx) {
		return nil, apiErr
	}

	refresher := c.getRefresher()
	if refresher == nil {
		return nil, apiErr
	}

	if !c.session.HasValidRefreshToken() {
		log.Debug().Msg("401 without a usable refresh token, clearing session")
		refresher.ClearAuth()
		return nil, apiErr
	}

	// another request already refreshed after this one was sent
	if current := c.session.GetAccessToken(); current != "" && current != sentToken && c.session.HasValidToken() {
		log.Debug().Msg("401 with a superseded token, replaying with current token")
		c.metrics.Replayed("superseded")
		return c.replay(req, current)
	}

	if refresher.IsRefreshing() {
		log.Debug().Msg("Refresh in progress, queueing request")
	} else {
		log.Debug().Msg("Token expired, attempting refresh")
	}

	token, err := refresher.RefreshToken(ctx)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// the caller gave up waiting; the refresh itself may still succeed
			return nil, err
		}
		log.Debug().Err(err).Msg("Refresh failed, clearing session")
		refresher.ClearAuth()
		return nil, err
	}

	c.metrics.Replayed("refreshed")
	return c.replay(req, token)
}

// replay re-issues req once with token. A second 401 is returned to the caller.
func (c *Client) replay(req *http.Request, token string) (*http.Response, error) {
	retry := req.Clone(MarkRetried(req.Context()))
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("replay %s %s: request body cannot be re-read", req.Method, req.URL.Path)
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay %s %s: %w", req.Method, req.URL.Path, err)
		}
		retry.Body = body
	}
	return c.send(retry, token)
}

// Get decodes a JSON response into out. out may be nil.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodGet, path, nil, out)
}

// Post sends in as JSON and decodes the response into out. Either may be nil.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, http.MethodPost, path, in, out)
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	req, err := c.NewRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
