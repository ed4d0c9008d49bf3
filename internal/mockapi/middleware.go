package mockapi

import (
	"context"
	"net"
	"net/http"

	"github.com/animestream/authcore/internal/config"
	"github.com/animestream/authcore/pkg/httpext"
	"github.com/animestream/authcore/pkg/ratelimit"
)

type contextKey string

const claimsKey contextKey = "accessClaims"

// RequireAuth rejects requests without a valid bearer token whose session is still live.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ExtractToken(r)
		if tokenString == "" {
			httpext.JsonError(w, "Unauthenticated.", http.StatusUnauthorized)
			return
		}

		claims, err := s.tokens.Validate(tokenString)
		if err != nil {
			s.log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected access token")
			httpext.JsonError(w, "Token has expired or is invalid.", http.StatusUnauthorized)
			return
		}
		if !s.sessions.SessionActive(claims.SessionID) {
			httpext.JsonError(w, "Session has been revoked.", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFrom returns the claims stored by RequireAuth.
func ClaimsFrom(r *http.Request) *AccessClaims {
	if claims, ok := r.Context().Value(claimsKey).(*AccessClaims); ok {
		return claims
	}
	return nil
}

// RateLimit answers 429 with a retry_after once a client exceeds cfg.
func (s *Server) RateLimit(limitKey string, cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	limiter := ratelimit.NewLimiter(cfg.Window, cfg.MaxHits)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			allowed, wait := limiter.Take(limitKey + ":" + ip)
			if !allowed {
				s.log.Warn().Str("ip", ip).Str("limit", limitKey).Dur("retry_after", wait).Msg("Rate limit exceeded")
				httpext.JsonRateLimited(w, wait)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Use X-Forwarded-For if behind proxy, otherwise remote address
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
