package server

import (
	"net/http"

	"github.com/jrsteele09/go-auth-hub/emailverification"
)

func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.ChangePassword(r.Context(), callerFrom(r), fields.get("password"), fields.get("new_password"))
		s.respond(w, r, out, err)
	}
}

// UpdateEmailHandler mails a code to the new address; the account keeps the old
// address until the code is entered.
func (s *Server) UpdateEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.UpdateEmail(r.Context(), callerFrom(r), fields.get("email"))
		s.respond(w, r, out, err)
	}
}

func (s *Server) VerifyEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := readFields(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.auth.VerifyEmail(r.Context(), callerFrom(r), emailverification.IDFromRequest(r), fields.get("code"))
		s.respond(w, r, out, err)
	}
}

func (s *Server) ResendVerificationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := s.auth.RequestEmailVerification(r.Context(), callerFrom(r), emailverification.IDFromRequest(r))
		s.respond(w, r, out, err)
	}
}
