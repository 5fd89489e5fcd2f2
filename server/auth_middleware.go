package server

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-hub/auth"
	"github.com/jrsteele09/go-auth-hub/ratelimit"
	"github.com/jrsteele09/go-auth-hub/sessions"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyCaller stores the auth.Caller resolved for the request
const ContextKeyCaller ContextKey = "caller"

// LoadSessionMiddleware resolves the session cookie. A valid session has its
// cookie refreshed to the (possibly renewed) expiry; a stale cookie is removed.
// The request continues either way, unauthenticated requests carry a Caller
// without a session.
func (s *Server) LoadSessionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.Caller{
			IP:        s.clientIP(r),
			UserAgent: r.UserAgent(),
			Referer:   r.Referer(),
		}

		if token := sessions.TokenFromRequest(r); token != "" {
			session, user, err := s.sessions.ValidateSessionToken(r.Context(), token)
			if err != nil {
				log.Err(err).Str("path", r.URL.Path).Msg("failed to validate session")
				writeError(w, err)
				return
			}
			if session == nil {
				sessions.DeleteSessionTokenCookie(w, s.secure)
			} else {
				sessions.SetSessionTokenCookie(w, token, session.ExpiresAt, s.secure)
				c.Session, c.User = session, user
			}
		}

		ctx := context.WithValue(r.Context(), ContextKeyCaller, c)
		next(w, r.WithContext(ctx))
	}
}

// clientIP resolves the request's address with the currently trusted proxies.
func (s *Server) clientIP(r *http.Request) string {
	return ratelimit.ClientIP(r, s.config().GetTrustedProxies())
}

// callerFrom returns the Caller stored by LoadSessionMiddleware. Outside that
// middleware only the peer address is known.
func callerFrom(r *http.Request) auth.Caller {
	c, ok := r.Context().Value(ContextKeyCaller).(auth.Caller)
	if !ok {
		return auth.Caller{IP: ratelimit.ClientIP(r, nil), UserAgent: r.UserAgent(), Referer: r.Referer()}
	}
	return c
}
