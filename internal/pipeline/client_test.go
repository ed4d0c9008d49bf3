package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu           sync.Mutex
	token        string
	tokenValid   bool
	refreshValid bool
}

func (s *fakeSession) GetAccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSession) HasValidToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != "" && s.tokenValid
}

func (s *fakeSession) HasValidRefreshToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshValid
}

func (s *fakeSession) set(token string, valid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.tokenValid = token, valid
}

type fakeRefresher struct {
	session  *fakeSession
	next     string
	err      error
	calls    atomic.Int32
	cleared  atomic.Int32
	refreshM sync.Mutex
}

func (r *fakeRefresher) RefreshToken(context.Context) (string, error) {
	r.refreshM.Lock()
	defer r.refreshM.Unlock()
	r.calls.Add(1)
	if r.err != nil {
		return "", r.err
	}
	r.session.set(r.next, true)
	return r.next, nil
}

func (r *fakeRefresher) IsRefreshing() bool { return false }
func (r *fakeRefresher) ClearAuth()         { r.cleared.Add(1) }

// tokenServer accepts only requests carrying "Bearer <valid>".
func tokenServer(t *testing.T, valid *atomic.Value) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	seen := []string{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path+" "+r.Header.Get("Authorization"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer "+valid.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Unauthenticated."}`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(map[string]any{"path": r.URL.Path, "echo": string(body)})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}
}

func TestAttachesBearerToken(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	session := &fakeSession{}
	client := New(srv.URL+"/api", session)

	require.NoError(t, client.Get(context.Background(), "/anime", nil))
	assert.Empty(t, auth.Load())

	// expired tokens are still attached
	session.set("AT1", false)
	require.NoError(t, client.Get(context.Background(), "/anime", nil))
	assert.Equal(t, "Bearer AT1", auth.Load())
}

func TestNonSuccessBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"The email has already been taken."}`))
	}))
	defer srv.Close()

	client := New(srv.URL, &fakeSession{})
	err := client.Post(context.Background(), "/auth/register", map[string]string{"email": "a@b.com"}, nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "The email has already been taken.", apiErr.Error())
	assert.Equal(t, http.MethodPost, apiErr.Method)
	assert.Equal(t, "/auth/register", apiErr.Path)
	assert.Equal(t, http.StatusUnprocessableEntity, StatusOf(err))
}

func TestRateLimitMessage(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		header string
		want   time.Duration
	}{
		{"body hint", `{"retry_after": 30}`, "", 30 * time.Second},
		{"body hint as string", `{"retry_after": "12"}`, "90", 12 * time.Second},
		{"header hint", `{}`, "45", 45 * time.Second},
		{"no hint", ``, "", 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			refresher := &fakeRefresher{}
			client := New(srv.URL, &fakeSession{token: "AT1", refreshValid: true})
			client.UseRefresher(refresher)

			err := client.Get(context.Background(), "/anime", nil)
			require.ErrorIs(t, err, ErrRateLimited)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.want, apiErr.RetryAfter)
			assert.Equal(t, "Too many requests. Please try again in "+
				strconv.Itoa(int(tt.want.Seconds()))+" seconds.", apiErr.Message)
			assert.Zero(t, refresher.calls.Load())
		})
	}
}

func TestNoRefreshOnAuthEndpoints(t *testing.T) {
	var valid atomic.Value
	valid.Store("never")
	srv, _ := tokenServer(t, &valid)

	session := &fakeSession{token: "AT1", refreshValid: true}
	refresher := &fakeRefresher{session: session, next: "AT2"}
	client := New(srv.URL+"/api", session)
	client.UseRefresher(refresher)

	for _, path := range DefaultAuthPaths {
		err := client.Post(context.Background(), path, map[string]string{"refresh_token": "RT1"}, nil)
		assert.ErrorIs(t, err, ErrUnauthorized, path)
	}
	assert.Zero(t, refresher.calls.Load())
	assert.Zero(t, refresher.cleared.Load())
}

func TestSkipRefreshOnCustomAuthPath(t *testing.T) {
	var valid atomic.Value
	valid.Store("never")
	srv, seen := tokenServer(t, &valid)

	session := &fakeSession{token: "AT1", refreshValid: true}
	refresher := &fakeRefresher{session: session, next: "AT2"}
	client := New(srv.URL, session)
	client.UseRefresher(refresher)

	err := client.Post(SkipRefresh(context.Background()), "/auth/token/refresh", map[string]string{"refresh_token": "RT1"}, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, refresher.calls.Load())
	assert.Zero(t, refresher.cleared.Load())
	assert.Len(t, seen(), 1)

	err = client.Post(context.Background(), "/auth/token/refresh", nil, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), refresher.calls.Load(), "without the flag the same path is an ordinary request")
}

func TestUnauthorizedWithoutRefreshTokenClearsSession(t *testing.T) {
	var valid atomic.Value
	valid.Store("AT2")
	srv, _ := tokenServer(t, &valid)

	session := &fakeSession{token: "AT1"}
	refresher := &fakeRefresher{session: session, next: "AT2"}
	client := New(srv.URL, session)
	client.UseRefresher(refresher)

	err := client.Get(context.Background(), "/auth/user-profile", nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, refresher.calls.Load())
	assert.Equal(t, int32(1), refresher.cleared.Load())
}

func TestRefreshAndReplay(t *testing.T) {
	var valid atomic.Value
	valid.Store("AT2")
	srv, seen := tokenServer(t, &valid)

	session := &fakeSession{token: "AT1", tokenValid: false, refreshValid: true}
	refresher := &fakeRefresher{session: session, next: "AT2"}
	client := New(srv.URL+"/api", session)
	client.UseRefresher(refresher)

	var out map[string]any
	err := client.Post(context.Background(), "/auth/revoke-device", map[string]string{"device_fingerprint": "fp"}, &out)
	require.NoError(t, err)

	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, `{"device_fingerprint":"fp"}`, out["echo"], "body must be replayed")
	assert.Equal(t, []string{
		"POST /api/auth/revoke-device Bearer AT1",
		"POST /api/auth/revoke-device Bearer AT2",
	}, seen())
}

func TestReplayIsAttemptedOnce(t *testing.T) {
	var valid atomic.Value
	valid.Store("never")
	srv, seen := tokenServer(t, &valid)

	session := &fakeSession{token: "AT1", refreshValid: true}
	refresher := &fakeRefresher{session: session, next: "AT2"}
	client := New(srv.URL, session)
	client.UseRefresher(refresher)

	err := client.Get(context.Background(), "/auth/devices", nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Len(t, seen(), 2)
}

func TestRefreshFailureClearsAndPropagates(t *testing.T) {
	var valid atomic.Value
	valid.Store("AT2")
	srv, _ := tokenServer(t, &valid)

	refreshErr := errors.New("refresh rejected")
	session := &fakeSession{token: "AT1", refreshValid: true}
	refresher := &fakeRefresher{session: session, err: refreshErr}
	client := New(srv.URL, session)
	client.UseRefresher(refresher)

	err := client.Get(context.Background(), "/auth/token-stats", nil)
	assert.ErrorIs(t, err, refreshErr)
	assert.Equal(t, int32(1), refresher.cleared.Load())
}

func TestSupersededTokenReplaysWithoutRefresh(t *testing.T) {
	var valid atomic.Value
	valid.Store("AT2")
	srv, seen := tokenServer(t, &valid)

	session := &fakeSession{token: "AT1", refreshValid: true}
	refresher := &fakeRefresher{session: session, next: "AT3"}
	client := New(srv.URL, session)
	client.UseRefresher(refresher)

	req, err := client.NewRequest(context.Background(), http.MethodGet, "/auth/devices", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer AT1")

	// a concurrent refresh lands between send and response
	session.set("AT2", true)
	resp, err := client.send(req, "AT1")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Zero(t, refresher.calls.Load())
	assert.Equal(t, "GET /auth/devices Bearer AT2", seen()[1])
}

func TestWithoutRefresherReturns401(t *testing.T) {
	var valid atomic.Value
	valid.Store("AT2")
	srv, _ := tokenServer(t, &valid)

	client := New(srv.URL, &fakeSession{token: "AT1", refreshValid: true})
	assert.ErrorIs(t, client.Get(context.Background(), "/auth/devices", nil), ErrUnauthorized)
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(url, &fakeSession{})
	err := client.Get(context.Background(), "/anime", nil)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Zero(t, StatusOf(err))
}

func TestIsAuthEndpointHonoursBasePath(t *testing.T) {
	client := New("http://localhost:8000/api/", &fakeSession{})
	assert.True(t, client.isAuthEndpoint("/api/auth/refresh-token"))
	assert.True(t, client.isAuthEndpoint("/api/auth/login"))
	assert.False(t, client.isAuthEndpoint("/api/auth/user-profile"))

	bare := New("http://localhost:8000", &fakeSession{})
	assert.True(t, bare.isAuthEndpoint("/auth/refresh"))
}
