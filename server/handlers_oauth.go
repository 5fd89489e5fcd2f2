package server

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-hub/federation"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
)

var errAuthorizationDenied = apperrors.New(apperrors.KindInvalidCredential, "authorization was not granted")

// FederatedProvidersHandler lists the providers a user can sign in with.
func (s *Server) FederatedProvidersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"providers": s.federation.Enabled()})
	}
}

// FederatedLoginHandler starts the authorization code flow: the state and PKCE
// verifier travel in a signed cookie and the browser goes to the provider.
func (s *Server) FederatedLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("provider")
		provider, err := s.federation.Get(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		ls, err := s.state.Issue(name)
		if err != nil {
			writeError(w, err)
			return
		}
		federation.SetStateCookie(w, ls, s.secure)
		http.Redirect(w, r, provider.AuthCodeURL(ls.State, ls.Verifier), http.StatusFound)
	}
}

func (s *Server) FederatedCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("provider")
		query := r.URL.Query()
		// The state cookie is single use whatever the outcome.
		federation.DeleteStateCookie(w, s.secure)

		if errorParam := query.Get("error"); errorParam != "" {
			log.Info().Str("provider", name).Str("error", errorParam).Msg("provider denied authorization")
			writeError(w, errAuthorizationDenied)
			return
		}

		var cookie string
		if c, err := r.Cookie(federation.StateCookieName); err == nil {
			cookie = c.Value
		}
		verifier, err := s.state.Verify(cookie, name, query.Get("state"))
		if err != nil {
			writeError(w, err)
			return
		}
		code := query.Get("code")
		if code == "" {
			writeError(w, apperrors.ErrInvalidInput)
			return
		}

		provider, err := s.federation.Get(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		identity, err := provider.Exchange(r.Context(), code, verifier)
		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("provider code exchange failed")
			writeError(w, errors.Wrapf(apperrors.ErrInvalidCredential, "[Server.FederatedCallbackHandler] %s exchange", name))
			return
		}

		out, err := s.auth.FederatedLogin(r.Context(), callerFrom(r), name, identity)
		s.respond(w, r, out, err)
	}
}
