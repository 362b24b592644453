package api

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalsd/vitalsd/internal/api/respond"
	"github.com/vitalsd/vitalsd/internal/auth"
	"github.com/vitalsd/vitalsd/internal/ratelimit"
)

// bypassLimiter lists paths the rate limiter and auth gate never touch.
func bypassLimiter(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/api/v1/status"
}

// authMiddleware resolves the bearer token, applies the rate limit, and
// attaches the principal to the request context.
type authMiddleware struct {
	auth *auth.Authenticator
	log  zerolog.Logger
}

func (m *authMiddleware) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bypassLimiter(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		principal, err := m.auth.Authenticate(r.Context(), token)
		if err != nil {
			var authErr *auth.Error
			if errors.As(err, &authErr) {
				// Unauthenticated callers burn the per-IP budget.
				if limited := m.limitIP(w, r); limited {
					return
				}
				respond.WriteError(w, http.StatusUnauthorized, respond.ErrUnauthorized, "invalid or expired credentials")
				return
			}
			m.log.Error().Err(err).Msg("authentication backend failure")
			respond.WriteInternalError(w)
			return
		}

		if limiter := m.auth.Limiter(); limiter != nil {
			d, err := limiter.AllowCredential(r.Context(), principal.CredentialID, principal.RateLimitPerHr)
			if err != nil {
				m.log.Warn().Err(err).Msg("rate limit backend failure, admitting request")
			} else {
				writeRateHeaders(w, d)
				if !d.Allowed {
					w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter(time.Now())))
					respond.WriteError(w, http.StatusTooManyRequests, respond.ErrRateLimited, "rate limit exceeded")
					return
				}
			}
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// limitIP applies the unauthenticated budget; reports true when the request
// was rejected with 429.
func (m *authMiddleware) limitIP(w http.ResponseWriter, r *http.Request) bool {
	limiter := m.auth.Limiter()
	if limiter == nil {
		return false
	}
	d, err := limiter.AllowIP(r.Context(), clientIP(r))
	if err != nil {
		m.log.Warn().Err(err).Msg("rate limit backend failure, admitting request")
		return false
	}
	writeRateHeaders(w, d)
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter(time.Now())))
		respond.WriteError(w, http.StatusTooManyRequests, respond.ErrRateLimited, "rate limit exceeded")
		return true
	}
	return false
}

func writeRateHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") || strings.HasPrefix(h, "bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requireScope guards a handler behind a credential scope. 403 when the
// authenticated principal lacks it.
func requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.FromContext(r.Context())
		if !ok {
			respond.WriteError(w, http.StatusUnauthorized, respond.ErrUnauthorized, "authentication required")
			return
		}
		if !p.HasScope(scope) {
			respond.WriteError(w, http.StatusForbidden, respond.ErrForbidden, "missing required scope "+scope)
			return
		}
		next(w, r)
	}
}
