package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-hub/auth"
	"github.com/jrsteele09/go-auth-hub/emailverification"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/passwordreset"
	"github.com/jrsteele09/go-auth-hub/sessions"
)

var errBadRequestBody = apperrors.New(apperrors.KindInvalidInput, "invalid request body")

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("failed to write response")
	}
}

// writeError maps err onto its status and a client safe message. Server side
// failures are logged with their full chain.
func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": apperrors.PublicMessage(err)})
}

// applyOutcome writes the cookies an auth.Outcome asks for.
func (s *Server) applyOutcome(w http.ResponseWriter, out *auth.Outcome) {
	switch {
	case out.Session != nil:
		sessions.SetSessionTokenCookie(w, out.Session.Token, out.Session.ExpiresAt, s.secure)
	case out.ClearSession:
		sessions.DeleteSessionTokenCookie(w, s.secure)
	}
	switch {
	case out.ResetSession != nil:
		passwordreset.SetCookie(w, out.ResetSession.Token, out.ResetSession.ExpiresAt, s.secure)
	case out.ClearResetSession:
		passwordreset.DeleteCookie(w, s.secure)
	}
	switch {
	case out.EmailVerification != nil:
		emailverification.SetCookie(w, out.EmailVerification.ID, out.EmailVerification.ExpiresAt, s.secure)
	case out.ClearEmailVerification:
		emailverification.DeleteCookie(w, s.secure)
	}
}

// respond finishes a flow step: an error is written as JSON, an outcome sets its
// cookies and redirects.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, out *auth.Outcome, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	s.applyOutcome(w, out)
	if out.Redirect == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	redirectSuccess(w, r, out.Redirect)
}

// requestFields reads a form or JSON object body into flat string fields.
type requestFields map[string]string

func (f requestFields) get(name string) string {
	return f[name]
}

func readFields(w http.ResponseWriter, r *http.Request) (requestFields, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		raw := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && err != io.EOF {
			return nil, errBadRequestBody
		}
		fields := make(requestFields, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				fields[k] = s
			}
		}
		return fields, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, errBadRequestBody
	}
	fields := make(requestFields, len(r.PostForm))
	for k := range r.PostForm {
		fields[k] = r.PostForm.Get(k)
	}
	return fields, nil
}

// readBody returns the raw body, for endpoints that take a JSON document as is.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errBadRequestBody
	}
	return body, nil
}
