package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-hub/credentials"
)

func (s *Server) RegisterTOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.RegisterTOTP(r.Context(), callerFrom(r), fields.get("key"), fields.get("code"))
		s.respond(w, r, out, err)
	}
}

func (s *Server) VerifyTOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.VerifyTOTP(r.Context(), callerFrom(r), fields.get("code"))
		s.respond(w, r, out, err)
	}
}

// RegisterWebAuthnHandler enrols a credential of kind from an attestation.
func (s *Server) RegisterWebAuthnHandler(kind credentials.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.RegisterWebAuthn(r.Context(), callerFrom(r), kind, attestationInput(fields))
		s.respond(w, r, out, err)
	}
}

// VerifyWebAuthnHandler completes the second factor with a credential of kind.
func (s *Server) VerifyWebAuthnHandler(kind credentials.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.VerifyWebAuthn2FA(r.Context(), callerFrom(r), kind, assertionInput(fields))
		s.respond(w, r, out, err)
	}
}

// Reset2FAHandler trades the recovery code for a clean slate of factors.
func (s *Server) Reset2FAHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.ResetUser2FAWithRecoveryCode(r.Context(), callerFrom(r), fields.get("recovery_code"))
		s.respond(w, r, out, err)
	}
}

func (s *Server) RecoveryCodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := s.auth.GetRecoveryCode(r.Context(), callerFrom(r))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, map[string]string{"recovery_code": code})
	}
}

func (s *Server) RegenerateRecoveryCodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := s.auth.RegenerateRecoveryCode(r.Context(), callerFrom(r))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, map[string]string{"recovery_code": code})
	}
}

func (s *Server) DeleteTOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.DeleteTOTP(r.Context(), callerFrom(r)); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// credentialView is the listed form of a WebAuthn credential. Ids are
// unpadded base64url so they can be used in the delete path as is.
type credentialView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Algorithm int       `json:"algorithm"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) ListWebAuthnHandler(kind credentials.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds, err := s.auth.ListWebAuthn(r.Context(), callerFrom(r), kind)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, credentialViews(creds))
	}
}

func (s *Server) DeleteWebAuthnHandler(kind credentials.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.DeleteWebAuthn(r.Context(), callerFrom(r), kind, r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
