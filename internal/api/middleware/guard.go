package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/animestream/authcore/internal/authclient"
	"github.com/animestream/authcore/internal/logger"
	"github.com/animestream/authcore/internal/metrics"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Session is what the guard needs from the auth controller.
type Session interface {
	Init()
	IsAuthenticated() bool
	HasValidToken() bool
	HasRefreshToken() bool
	User() authclient.User
	RefreshToken(ctx context.Context) (string, error)
	LoadProfile(ctx context.Context) (authclient.User, error)
}

const DefaultHomePath = "/home"

type Decision struct {
	Allow    bool
	Redirect string
	Reason   string
}

// Guard gates navigation to routes that need a session.
type Guard struct {
	session   Session
	homePath  string
	protected map[string]bool
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

func NewGuard(session Session, m *metrics.Metrics) *Guard {
	return &Guard{
		session:   session,
		homePath:  DefaultHomePath,
		protected: make(map[string]bool),
		metrics:   m,
		log:       logger.For(logger.GUARD),
	}
}

// Protect marks mux route names as requiring authentication.
func (g *Guard) Protect(names ...string) *Guard {
	for _, name := range names {
		g.protected[name] = true
	}
	return g
}

func (g *Guard) RequiresAuth(routeName string) bool {
	return g.protected[routeName]
}

// Evaluate decides one navigation. fullPath is the target path with its query and is
// carried in the redirect so the login flow can resume there.
func (g *Guard) Evaluate(ctx context.Context, requiresAuth bool, fullPath string) Decision {
	d := g.evaluate(ctx, requiresAuth, fullPath)
	if d.Allow {
		g.metrics.GuardDecision("allow")
	} else {
		g.metrics.GuardDecision("redirect")
	}
	g.log.Debug().Str("path", fullPath).Bool("allow", d.Allow).Str("reason", d.Reason).Msg("Route guard decision")
	return d
}

func (g *Guard) evaluate(ctx context.Context, requiresAuth bool, fullPath string) Decision {
	if !requiresAuth {
		return Decision{Allow: true, Reason: "public"}
	}
	if g.session.IsAuthenticated() && g.session.HasValidToken() {
		return Decision{Allow: true, Reason: "authenticated"}
	}

	g.session.Init()
	if g.session.IsAuthenticated() && g.session.HasValidToken() {
		return Decision{Allow: true, Reason: "hydrated"}
	}

	if g.session.HasRefreshToken() {
		if _, err := g.session.RefreshToken(ctx); err != nil {
			g.log.Debug().Err(err).Msg("Refresh during navigation failed")
			return g.redirect(fullPath, "refresh failed")
		}
		if g.session.User() == nil {
			if _, err := g.session.LoadProfile(ctx); err != nil {
				g.log.Warn().Err(err).Msg("Profile reload after refresh failed")
			}
		}
		if g.session.HasValidToken() {
			return Decision{Allow: true, Reason: "refreshed"}
		}
		return g.redirect(fullPath, "no valid token after refresh")
	}

	return g.redirect(fullPath, "no session")
}

func (g *Guard) redirect(fullPath, reason string) Decision {
	q := url.Values{}
	q.Set("login", "1")
	q.Set("redirect", fullPath)
	return Decision{Redirect: g.homePath + "?" + q.Encode(), Reason: reason}
}

// Middleware applies the guard to routes registered with a name passed to Protect.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}

		d := g.Evaluate(r.Context(), g.RequiresAuth(name), r.URL.RequestURI())
		if !d.Allow {
			http.Redirect(w, r, d.Redirect, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var _ mux.MiddlewareFunc = (*Guard)(nil).Middleware
