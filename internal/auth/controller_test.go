package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/animestream/authcore/internal/authclient"
	"github.com/animestream/authcore/internal/pipeline"
	"github.com/animestream/authcore/internal/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var creds = authclient.Credentials{Email: "a@b.com", Password: "x"}

func login(t *testing.T, h *harness) {
	t.Helper()
	res, err := h.ctrl.Login(context.Background(), creds)
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestLoginRefreshReplayScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.ctrl.Login(ctx, creds)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", res.User.Email())
	assert.Equal(t, "AT1", h.store.GetAccessToken())
	assert.True(t, h.ctrl.IsAuthenticated())
	assert.Equal(t, "Chrome on Linux", h.store.GetDeviceName())

	// 900s later the backend has moved on from AT1
	h.clock.Advance(900 * time.Second)
	h.backend.set(func(b *fakeBackend) { b.validToken = "AT-next" })

	var out map[string]any
	require.NoError(t, h.pipe.Get(ctx, "/anime/frieren-1", &out))
	assert.Equal(t, true, out["ok"])

	refreshTokens, _, protected := h.backend.snapshot()
	assert.Equal(t, []string{"RT1"}, refreshTokens)
	assert.Equal(t, []string{
		"/api/anime/frieren-1 Bearer AT1",
		"/api/anime/frieren-1 Bearer AT2",
	}, protected)
	assert.Equal(t, "AT2", h.store.GetAccessToken())
	assert.Equal(t, "RT1", h.store.GetRefreshToken())
	assert.True(t, h.ctrl.HasValidToken())
}

func expireAccess(h *harness) {
	h.clock.Advance(900 * time.Second)
	h.backend.set(func(b *fakeBackend) { b.validToken = "expired" })
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	for _, tc := range []struct {
		name    string
		status  int
		succeed bool
	}{
		{"refresh succeeds", http.StatusOK, true},
		{"refresh fails", http.StatusUnauthorized, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			login(t, h)
			expireAccess(h)

			const n = 5
			release := make(chan struct{})
			h.backend.set(func(b *fakeBackend) {
				b.refreshGate = release
				b.refreshStatus = tc.status
			})

			var wg sync.WaitGroup
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs[i] = h.pipe.Get(context.Background(), "/anime/ep-"+string(rune('a'+i)), nil)
				}(i)
			}

			require.Eventually(t, func() bool { return h.backend.unauthorized.Load() == n }, 2*time.Second, time.Millisecond)
			close(release)
			wg.Wait()

			assert.Equal(t, int32(1), h.backend.refreshCalls.Load())
			for i, err := range errs {
				if tc.succeed {
					assert.NoError(t, err, "request %d", i)
				} else {
					assert.ErrorIs(t, err, pipeline.ErrUnauthorized, "request %d", i)
				}
			}
			if !tc.succeed {
				assert.False(t, h.ctrl.IsAuthenticated())
				assert.Empty(t, h.store.GetRefreshToken())
			}
		})
	}
}

func TestQueuedRequestsReplayWithNewToken(t *testing.T) {
	h := newHarness(t)
	login(t, h)
	expireAccess(h)

	release := make(chan struct{})
	h.backend.set(func(b *fakeBackend) {
		b.refreshGate = release
		b.refreshBody = map[string]any{"access_token": "T2", "expires_in": 900}
	})

	var wg sync.WaitGroup
	for _, path := range []string{"/anime/one", "/anime/two", "/anime/three"} {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			assert.NoError(t, h.pipe.Get(context.Background(), path, nil))
		}(path)
	}
	require.Eventually(t, func() bool { return h.backend.unauthorized.Load() == 3 }, 2*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	_, _, protected := h.backend.snapshot()
	replays := map[string]bool{}
	for _, entry := range protected[3:] {
		replays[entry] = true
	}
	assert.Equal(t, map[string]bool{
		"/api/anime/one Bearer T2":   true,
		"/api/anime/two Bearer T2":   true,
		"/api/anime/three Bearer T2": true,
	}, replays)
	assert.Equal(t, "RT1", h.store.GetRefreshToken(), "refresh token kept when the server does not rotate")
}

func TestLogoutClearsEverything(t *testing.T) {
	h := newHarness(t)
	login(t, h)

	h.ctrl.Logout(context.Background())

	_, logoutTokens, _ := h.backend.snapshot()
	assert.Equal(t, []string{"RT1"}, logoutTokens)
	assert.False(t, h.ctrl.IsAuthenticated())
	assert.False(t, h.store.IsAuthenticated())
	assert.Nil(t, h.ctrl.User())
	assert.Empty(t, h.store.GetAccessToken())
	assert.Empty(t, h.store.GetRefreshToken())
	assert.Empty(t, h.store.GetDeviceName())
	assert.Nil(t, h.store.GetUser())
	_, ok := h.store.GetTokenExpiresAt()
	assert.False(t, ok)
	_, ok = h.store.GetRefreshExpiresAt()
	assert.False(t, ok)
}

func TestLogoutSurvivesServerFailure(t *testing.T) {
	h := newHarness(t)
	login(t, h)
	h.backend.set(func(b *fakeBackend) { b.logoutStatus = http.StatusInternalServerError })

	h.ctrl.Logout(context.Background())
	assert.False(t, h.ctrl.IsAuthenticated())
	assert.Empty(t, h.store.GetRefreshToken())
}

func TestLogoutSkipsServerForExpiredRefreshToken(t *testing.T) {
	h := newHarness(t)
	h.backend.set(func(b *fakeBackend) { b.loginBody["refresh_expires_at"] = 120 })
	login(t, h)
	h.clock.Advance(time.Hour)

	h.ctrl.Logout(context.Background())
	_, logoutTokens, _ := h.backend.snapshot()
	assert.Empty(t, logoutTokens)
	assert.Empty(t, h.store.GetRefreshToken())
}

func TestReturningTabLoadsProfile(t *testing.T) {
	h := newHarness(t)
	login(t, h)

	h.reopen()
	assert.Nil(t, h.ctrl.User())
	assert.Empty(t, h.store.GetAccessToken())
	assert.True(t, h.store.IsAuthenticated())
	assert.False(t, h.ctrl.IsAuthenticated(), "controller needs a user")

	user, err := h.ctrl.LoadProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Rin", user.Name())
	assert.Equal(t, "Rin", h.ctrl.User().Name())
	assert.True(t, h.ctrl.IsAuthenticated())
	assert.Equal(t, int32(1), h.backend.refreshCalls.Load())
	assert.Equal(t, "AT2", h.store.GetAccessToken())
}

func TestLoadProfileLogsOutOn401(t *testing.T) {
	h := newHarness(t)
	login(t, h)
	expireAccess(h)
	h.backend.set(func(b *fakeBackend) { b.refreshStatus = http.StatusUnauthorized })

	_, err := h.ctrl.LoadProfile(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrUnauthorized)
	assert.False(t, h.ctrl.IsAuthenticated())
	assert.Empty(t, h.store.GetRefreshToken())
}

func TestRefreshFailFast(t *testing.T) {
	t.Run("no refresh token", func(t *testing.T) {
		h := newHarness(t)
		h.store.SetDeviceName("tv")

		_, err := h.ctrl.RefreshToken(context.Background())
		assert.ErrorIs(t, err, ErrNoRefreshToken)
		assert.Zero(t, h.backend.refreshCalls.Load())
		assert.Empty(t, h.store.GetDeviceName(), "silent logout clears the session")
	})

	t.Run("expired refresh token", func(t *testing.T) {
		h := newHarness(t)
		h.backend.set(func(b *fakeBackend) { b.loginBody["refresh_expires_at"] = 120 })
		login(t, h)
		h.clock.Advance(90 * time.Second)

		_, err := h.ctrl.RefreshToken(context.Background())
		assert.ErrorIs(t, err, ErrRefreshTokenExpired)
		assert.Zero(t, h.backend.refreshCalls.Load())
		assert.Empty(t, h.store.GetAccessToken())
	})
}

func TestRefreshMalformedResponseKeepsSession(t *testing.T) {
	h := newHarness(t)
	login(t, h)
	h.backend.set(func(b *fakeBackend) { b.refreshBody = map[string]any{"message": "ok"} })

	_, err := h.ctrl.RefreshToken(context.Background())
	assert.ErrorIs(t, err, ErrInvalidRefreshResponse)
	assert.ErrorIs(t, err, authclient.ErrMalformedResponse)
	assert.Equal(t, "RT1", h.store.GetRefreshToken())
}

func TestRefreshRotation(t *testing.T) {
	t.Run("rotates when a new token arrives", func(t *testing.T) {
		h := newHarness(t)
		login(t, h)
		h.backend.set(func(b *fakeBackend) {
			b.refreshBody = map[string]any{"accessToken": "AT2", "refreshToken": "RT2", "refreshExpiresAt": "2030-01-01T00:00:00Z"}
		})

		tok, err := h.ctrl.RefreshToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "AT2", tok)
		assert.Equal(t, "RT2", h.store.GetRefreshToken())
		expiresAt, ok := h.store.GetRefreshExpiresAt()
		require.True(t, ok)
		assert.Equal(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), expiresAt)
	})

	t.Run("required rotation rejects a response without one", func(t *testing.T) {
		h := newHarness(t, WithRotation(RequireRotation))
		login(t, h)
		h.backend.set(func(b *fakeBackend) { b.refreshBody = map[string]any{"access_token": "AT2"} })

		_, err := h.ctrl.RefreshToken(context.Background())
		assert.ErrorIs(t, err, ErrInvalidRefreshResponse)
		assert.Equal(t, "AT1", h.store.GetAccessToken())
	})
}

func TestParseRotationMode(t *testing.T) {
	assert.Equal(t, RequireRotation, ParseRotationMode("required"))
	assert.Equal(t, RotateIfPresent, ParseRotationMode("optional"))
	assert.Equal(t, RotateIfPresent, ParseRotationMode(""))
}

func TestLogoutDuringRefreshDiscardsResult(t *testing.T) {
	h := newHarness(t)
	login(t, h)

	release := make(chan struct{})
	h.backend.set(func(b *fakeBackend) { b.refreshGate = release })

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.RefreshToken(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return h.backend.refreshCalls.Load() == 1 }, time.Second, time.Millisecond)
	assert.True(t, h.ctrl.IsRefreshing())

	h.ctrl.SilentLogout()
	close(release)

	assert.ErrorIs(t, <-done, ErrRefreshSuperseded)
	assert.Empty(t, h.store.GetAccessToken())
	assert.Empty(t, h.store.GetRefreshToken())
	assert.False(t, h.ctrl.IsRefreshing())
}

func TestLoginRequiresAccessToken(t *testing.T) {
	h := newHarness(t)
	h.backend.set(func(b *fakeBackend) { b.loginBody = map[string]any{"user": map[string]any{"id": 1}} })

	_, err := h.ctrl.Login(context.Background(), creds)
	assert.ErrorIs(t, err, ErrInvalidLoginResponse)
	assert.ErrorIs(t, err, authclient.ErrMalformedResponse)
	assert.Nil(t, h.ctrl.User())
}

func TestLoginRejectedDoesNotRefresh(t *testing.T) {
	h := newHarness(t)
	h.store.SetRefreshToken("RT-old", tokenstore.NeverExpires())
	h.backend.set(func(b *fakeBackend) { b.loginStatus = http.StatusUnauthorized })

	_, err := h.ctrl.Login(context.Background(), creds)
	assert.ErrorIs(t, err, pipeline.ErrUnauthorized)
	assert.Equal(t, "RT-old", h.store.GetRefreshToken())
}

func TestIsLoadingDuringLogin(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.backend.set(func(b *fakeBackend) { b.loginGate = release })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.ctrl.Login(context.Background(), creds)
	}()

	require.Eventually(t, h.ctrl.IsLoading, time.Second, time.Millisecond)
	close(release)
	<-done
	assert.False(t, h.ctrl.IsLoading())
}

func TestDevicePassThrough(t *testing.T) {
	h := newHarness(t)
	login(t, h)
	ctx := context.Background()

	list, err := h.ctrl.GetDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, list.TotalCount)

	stats, err := h.ctrl.GetTokenStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Active)
}

func TestNetworkFailureDuringRefreshPropagates(t *testing.T) {
	h := newHarness(t)
	login(t, h)
	h.backend.srv.Close()

	_, err := h.ctrl.RefreshToken(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrNetwork)
	assert.Equal(t, "RT1", h.store.GetRefreshToken(), "transport failures are not authentication failures")
}

func TestTokenSource(t *testing.T) {
	h := newHarness(t)
	login(t, h)
	ts := h.ctrl.TokenSource(context.Background())

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "AT1", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Zero(t, h.backend.refreshCalls.Load())

	h.clock.Advance(900 * time.Second)
	tok, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "AT2", tok.AccessToken)
	assert.Equal(t, int32(1), h.backend.refreshCalls.Load())

	h.ctrl.ClearAuth()
	_, err = ts.Token()
	assert.True(t, errors.Is(err, ErrNoRefreshToken))
}
