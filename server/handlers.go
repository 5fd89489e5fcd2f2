package server

import (
	"encoding/base64"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-hub/auth"
	"github.com/jrsteele09/go-auth-hub/webauthn"
)

// RegisterHandler creates a password account
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.Register(r.Context(), callerFrom(r), auth.RegisterInput{
			Email:    fields.get("email"),
			Username: fields.get("username"),
			Password: fields.get("password"),
		})
		s.respond(w, r, out, err)
	}
}

// LoginHandler signs in with email and password
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.Login(r.Context(), callerFrom(r), auth.LoginInput{
			Email:    fields.get("email"),
			Password: fields.get("password"),
		})
		s.respond(w, r, out, err)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := s.auth.Logout(r.Context(), callerFrom(r))
		s.respond(w, r, out, err)
	}
}

// ChallengeHandler issues a WebAuthn challenge for registration or assertion.
func (s *Server) ChallengeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		challenge, err := s.auth.Challenge()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"challenge": base64.StdEncoding.EncodeToString(challenge),
		})
	}
}

// PasskeyLoginHandler signs in with a passkey assertion alone
func (s *Server) PasskeyLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.PasskeyLogin(r.Context(), callerFrom(r), assertionInput(fields))
		s.respond(w, r, out, err)
	}
}

func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.store.Ping(r.Context()); err != nil {
			log.Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func assertionInput(fields requestFields) webauthn.AssertionInput {
	return webauthn.AssertionInput{
		CredentialID:      fields.get("credential_id"),
		AuthenticatorData: fields.get("authenticator_data"),
		ClientDataJSON:    fields.get("client_data_json"),
		Signature:         fields.get("signature"),
	}
}

func attestationInput(fields requestFields) webauthn.AttestationInput {
	return webauthn.AttestationInput{
		Name:              fields.get("name"),
		AttestationObject: fields.get("attestation_object"),
		ClientDataJSON:    fields.get("client_data_json"),
	}
}
