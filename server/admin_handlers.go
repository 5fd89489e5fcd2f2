package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/credentials"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/users"
)

const (
	defaultPage = 50
	maxPage     = 500
)

// UpdateSettingHandler stores the JSON body as the settings document named by
// the path.
func (s *Server) UpdateSettingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.auth.UpdateSetting(r.Context(), callerFrom(r), r.PathValue("key"), body); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type auditEventView struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	UserID    *string         `json:"user_id,omitempty"`
	IP        string          `json:"ip,omitempty"`
	UserAgent string          `json:"user_agent,omitempty"`
	Referer   string          `json:"referer,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func newAuditEventView(e *audit.Event) auditEventView {
	return auditEventView{
		ID:        e.ID,
		Event:     string(e.Event),
		UserID:    e.UserID,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		Referer:   e.Referer,
		Data:      e.Data,
		CreatedAt: e.CreatedAt,
	}
}

func (s *Server) AuditLogHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset, err := pageParams(r)
		if err != nil {
			writeError(w, err)
			return
		}
		events, err := s.auth.AuditLog(r.Context(), callerFrom(r), limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		views := make([]auditEventView, 0, len(events))
		for _, e := range events {
			views = append(views, newAuditEventView(e))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

type auditEventDetailView struct {
	Event auditEventView `json:"event"`
	User  *users.User    `json:"user,omitempty"`
}

func (s *Server) AuditEventHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := s.auth.AuditEvent(r.Context(), callerFrom(r), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, auditEventDetailView{Event: newAuditEventView(detail.Event), User: detail.User})
	}
}

func (s *Server) ListUsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset, err := pageParams(r)
		if err != nil {
			writeError(w, err)
			return
		}
		list, err := s.auth.ListUsers(r.Context(), callerFrom(r), limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []*users.User{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

type externalIDView struct {
	Provider       string `json:"provider"`
	ProviderUserID string `json:"provider_user_id"`
}

type userDetailView struct {
	User         *users.User      `json:"user"`
	ExternalIDs  []externalIDView `json:"external_ids"`
	Passkeys     []credentialView `json:"passkeys"`
	SecurityKeys []credentialView `json:"security_keys"`
}

func credentialViews(creds []*credentials.Credential) []credentialView {
	views := make([]credentialView, 0, len(creds))
	for _, c := range creds {
		views = append(views, credentialView{
			ID:        base64.RawURLEncoding.EncodeToString(c.ID),
			Name:      c.Name,
			Algorithm: c.Algorithm,
			CreatedAt: c.CreatedAt,
		})
	}
	return views
}

func (s *Server) GetUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := s.auth.GetUser(r.Context(), callerFrom(r), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		view := userDetailView{
			User:         detail.User,
			ExternalIDs:  make([]externalIDView, 0, len(detail.ExternalIDs)),
			Passkeys:     credentialViews(detail.Passkeys),
			SecurityKeys: credentialViews(detail.SecurityKeys),
		}
		for _, id := range detail.ExternalIDs {
			view.ExternalIDs = append(view.ExternalIDs, externalIDView{Provider: id.Provider, ProviderUserID: id.ProviderUserID})
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) DeleteUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.DeleteUser(r.Context(), callerFrom(r), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) UnlinkExternalIDHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.auth.UnlinkExternalID(r.Context(), callerFrom(r), r.PathValue("id"), r.PathValue("provider"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// pageParams reads limit and offset, defaulting to the first page.
func pageParams(r *http.Request) (int, int, error) {
	limit, err := queryInt(r, "limit", defaultPage)
	if err != nil || limit <= 0 || limit > maxPage {
		return 0, 0, apperrors.ErrInvalidInput
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		return 0, 0, apperrors.ErrInvalidInput
	}
	return limit, offset, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
