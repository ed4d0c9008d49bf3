package mockapi

import (
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/animestream/authcore/internal/config"
	"github.com/animestream/authcore/internal/logger"
	"github.com/animestream/authcore/pkg/httpext"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	EnvelopeFlat = "flat"
	EnvelopeData = "data"
	CaseSnake    = "snake"
	CaseCamel    = "camel"
)

// Options shape the reference backend. The envelope and key case knobs let tests
// exercise every response spelling the client has to accept.
type Options struct {
	BasePath      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RotateRefresh bool
	Envelope      string
	Case          string
	FrontendURL   string
	Secret        func() []byte
	BcryptCost    int
	Now           func() time.Time
	LoginLimit    config.RateLimitConfig
	RefreshLimit  config.RateLimitConfig
	GlobalLimit   config.RateLimitConfig
}

func OptionsFromEnv() Options {
	return Options{
		BasePath:      "/api",
		AccessTTL:     config.GetMockAPIAccessTTL(),
		RefreshTTL:    config.GetMockAPIRefreshTTL(),
		RotateRefresh: config.GetMockAPIRotateRefresh(),
		Envelope:      config.GetMockAPIEnvelope(),
		Case:          config.GetMockAPICase(),
		FrontendURL:   config.GetMockAPIFrontendURL(),
		Secret:        config.GetJWTSecret,
		LoginLimit:    config.GetRateLimitConfig("auth_login"),
		RefreshLimit:  config.GetRateLimitConfig("auth_refresh"),
		GlobalLimit:   config.GetRateLimitConfig("global"),
	}
}

type Server struct {
	opts     Options
	users    *UserStore
	sessions *SessionStore
	tokens   *TokenIssuer
	resets   *ResetStore
	log      zerolog.Logger
}

func NewServer(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Secret == nil {
		opts.Secret = config.GetJWTSecret
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}

	return &Server{
		opts:     opts,
		users:    NewUserStore(opts.BcryptCost, opts.Now),
		sessions: NewSessionStore(opts.RefreshTTL, opts.Now),
		tokens:   NewTokenIssuer(opts.Secret, opts.AccessTTL, opts.Now),
		resets:   NewResetStore(opts.FrontendURL, opts.Now),
		log:      logger.For(logger.MOCKAPI),
	}
}

func (s *Server) Users() *UserStore       { return s.users }
func (s *Server) Sessions() *SessionStore { return s.sessions }
func (s *Server) Resets() *ResetStore     { return s.resets }

// Router mounts every auth endpoint plus a protected sample catalogue route under BasePath.
func (s *Server) Router() *mux.Router {
	root := mux.NewRouter()
	api := root
	if s.opts.BasePath != "" && s.opts.BasePath != "/" {
		api = root.PathPrefix(s.opts.BasePath).Subrouter()
	}
	api.Use(s.RateLimit("global", s.opts.GlobalLimit))

	a := api.PathPrefix("/auth").Subrouter()

	login := s.RateLimit("auth_login", s.opts.LoginLimit)
	refresh := s.RateLimit("auth_refresh", s.opts.RefreshLimit)

	a.Handle("/login", login(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)
	a.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	a.Handle("/refresh-token", refresh(http.HandlerFunc(s.handleRefresh))).Methods(http.MethodPost)
	a.Handle("/refresh", refresh(http.HandlerFunc(s.handleRefresh))).Methods(http.MethodPost)
	a.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	a.HandleFunc("/forgot-password", s.handleForgotPassword).Methods(http.MethodPost)
	a.HandleFunc("/reset-password", s.handleResetPassword).Methods(http.MethodPost)

	a.Handle("/user-profile", s.RequireAuth(http.HandlerFunc(s.handleProfile))).Methods(http.MethodGet)
	a.Handle("/devices", s.RequireAuth(http.HandlerFunc(s.handleDevices))).Methods(http.MethodGet)
	a.Handle("/revoke-device", s.RequireAuth(http.HandlerFunc(s.handleRevokeDevice))).Methods(http.MethodPost)
	a.Handle("/revoke-other-devices", s.RequireAuth(http.HandlerFunc(s.handleRevokeOthers))).Methods(http.MethodPost)
	a.Handle("/token-stats", s.RequireAuth(http.HandlerFunc(s.handleTokenStats))).Methods(http.MethodGet)

	api.Handle("/anime/{slug}", s.RequireAuth(http.HandlerFunc(s.handleAnime))).Methods(http.MethodGet)

	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpext.JsonError(w, "Not found", http.StatusNotFound)
	})
	return root
}

// respond writes body with the configured key case and envelope.
func (s *Server) respond(w http.ResponseWriter, code int, body map[string]any) {
	if s.opts.Case == CaseCamel {
		body = camelKeys(body)
	}
	if s.opts.Envelope == EnvelopeData {
		body = map[string]any{"success": true, "data": body}
	}
	httpext.JsonResponse(w, code, body)
}

// camelKeys rewrites top-level snake_case keys. Nested objects are left alone.
func camelKeys(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[camelCase(k)] = v
	}
	return out
}

func camelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		r := []rune(parts[i])
		r[0] = unicode.ToUpper(r[0])
		parts[i] = string(r)
	}
	return strings.Join(parts, "")
}
