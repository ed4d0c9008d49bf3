package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/animestream/authcore/internal/authclient"
	"github.com/animestream/authcore/internal/pipeline"
	"github.com/animestream/authcore/internal/storage"
	"github.com/animestream/authcore/internal/tokenstore"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeBackend accepts exactly one access token at a time and hands out the next one
// on refresh.
type fakeBackend struct {
	srv *httptest.Server

	mu             sync.Mutex
	validToken     string
	loginBody      map[string]any
	refreshBody    map[string]any
	loginStatus    int
	refreshStatus  int
	logoutStatus   int
	refreshTokens  []string
	logoutTokens   []string
	protectedAuths []string

	refreshCalls atomic.Int32
	unauthorized atomic.Int32
	// refreshGate, when set, blocks the refresh handler until it is closed.
	refreshGate chan struct{}
	// loginGate, when set, blocks the login handler until it is closed.
	loginGate chan struct{}
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		validToken: "AT1",
		loginBody: map[string]any{
			"access_token":  "AT1",
			"refresh_token": "RT1",
			"expires_in":    900,
			"user":          map[string]any{"id": 1, "email": "a@b.com"},
			"device_name":   "Chrome on Linux",
		},
		refreshBody: map[string]any{
			"access_token":  "AT2",
			"refresh_token": "RT1",
			"expires_in":    900,
		},
		loginStatus:   http.StatusOK,
		refreshStatus: http.StatusOK,
		logoutStatus:  http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", b.login)
	mux.HandleFunc("/api/auth/refresh-token", b.refresh)
	mux.HandleFunc("/api/auth/logout", b.logout)
	mux.HandleFunc("/api/auth/user-profile", b.protected(func(w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": 1, "email": "a@b.com", "name": "Rin"}})
	}))
	mux.HandleFunc("/api/auth/devices", b.protected(func(w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, map[string]any{"devices": []any{map[string]any{"device_fingerprint": "fp1", "is_current": true}}, "total_count": 1})
	}))
	mux.HandleFunc("/api/auth/token-stats", b.protected(func(w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, map[string]any{"active_tokens": 1, "total_tokens": 1})
	}))
	mux.HandleFunc("/api/anime/", b.protected(func(w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}))

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func readBody(r *http.Request) map[string]any {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	return body
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	gate := b.loginGate
	body := b.loginBody
	status := b.loginStatus
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if status != http.StatusOK {
		writeJSON(w, status, map[string]any{"message": "Invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (b *fakeBackend) refresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)
	in := readBody(r)

	b.mu.Lock()
	b.refreshTokens = append(b.refreshTokens, asString(in["refresh_token"]))
	gate := b.refreshGate
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refreshStatus != http.StatusOK {
		writeJSON(w, b.refreshStatus, map[string]any{"message": "Refresh token invalid"})
		return
	}
	if tok, ok := b.refreshBody["access_token"].(string); ok {
		b.validToken = tok
	}
	writeJSON(w, http.StatusOK, b.refreshBody)
}

func (b *fakeBackend) logout(w http.ResponseWriter, r *http.Request) {
	in := readBody(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logoutTokens = append(b.logoutTokens, asString(in["refresh_token"]))
	writeJSON(w, b.logoutStatus, map[string]any{"message": "bye"})
}

func (b *fakeBackend) protected(ok func(w http.ResponseWriter)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		b.mu.Lock()
		valid := auth == "Bearer "+b.validToken
		if strings.HasPrefix(r.URL.Path, "/api/anime/") {
			b.protectedAuths = append(b.protectedAuths, r.URL.Path+" "+auth)
		}
		b.mu.Unlock()

		if !valid {
			b.unauthorized.Add(1)
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
			return
		}
		ok(w)
	}
}

func (b *fakeBackend) snapshot() (refresh, logout, protected []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.refreshTokens...),
		append([]string(nil), b.logoutTokens...),
		append([]string(nil), b.protectedAuths...)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

type harness struct {
	backend    *fakeBackend
	clock      *clock
	persistent *storage.MemoryTier
	store      *tokenstore.Store
	pipe       *pipeline.Client
	ctrl       *Controller
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		backend:    newFakeBackend(t),
		clock:      &clock{t: fixedNow},
		persistent: storage.NewMemoryTier(),
	}
	h.reopen(opts...)
	return h
}

// reopen builds a fresh client over the same persistent tier, like a reopened tab.
func (h *harness) reopen(opts ...Option) {
	h.store = tokenstore.New(storage.NewMemoryTier(), h.persistent, tokenstore.WithNow(h.clock.Now))
	h.pipe = pipeline.New(h.backend.srv.URL+"/api", h.store)
	h.ctrl = NewController(h.store, authclient.New(h.pipe), opts...)
	h.pipe.UseRefresher(h.ctrl)
	h.ctrl.Init()
}
