package server

import (
	"net/http"

	"github.com/jrsteele09/go-auth-hub/credentials"
	"github.com/jrsteele09/go-auth-hub/passwordreset"
)

func (s *Server) ForgotPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.ForgotPassword(r.Context(), callerFrom(r), fields.get("email"))
		s.respond(w, r, out, err)
	}
}

func (s *Server) ResetVerifyEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.VerifyResetEmail(r.Context(), callerFrom(r), passwordreset.TokenFromRequest(r), fields.get("code"))
		s.respond(w, r, out, err)
	}
}

func (s *Server) ResetTOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.VerifyResetTOTP(r.Context(), callerFrom(r), passwordreset.TokenFromRequest(r), fields.get("code"))
		s.respond(w, r, out, err)
	}
}

func (s *Server) ResetWebAuthnHandler(kind credentials.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.VerifyResetWebAuthn(r.Context(), callerFrom(r), passwordreset.TokenFromRequest(r), kind, assertionInput(fields))
		s.respond(w, r, out, err)
	}
}

func (s *Server) ResetRecoveryCodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.ResetWithRecoveryCode(r.Context(), callerFrom(r), passwordreset.TokenFromRequest(r), fields.get("recovery_code"))
		s.respond(w, r, out, err)
	}
}

// ResetPasswordHandler sets the new password once the reset session has passed
// every check, and signs the user in.
func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.ResetPassword(r.Context(), callerFrom(r), passwordreset.TokenFromRequest(r), fields.get("password"))
		s.respond(w, r, out, err)
	}
}
