package emailverification

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-hub/internal/utils"
)

const (
	DefaultExpiry = 10 * time.Minute
	CookieName    = "email_verification"
)

// Request is an emailed code proving control of Email. A user has at most one.
type Request struct {
	ID        string
	UserID    string
	Email     string
	Code      string
	ExpiresAt time.Time
}

// Repo persists requests. Get returns nil when nothing matches.
type Repo interface {
	Create(ctx context.Context, req *Request) error
	Get(ctx context.Context, userID, id string) (*Request, error)
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type Option func(*Manager)

func WithExpiry(d time.Duration) Option {
	return func(m *Manager) {
		m.expiry = d
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(now func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = now
	}
}

type Manager struct {
	repo    Repo
	expiry  time.Duration
	nowTime func() time.Time
}

func NewManager(repo Repo, opts ...Option) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[NewManager] repo is required")
	}
	m := &Manager{repo: repo, expiry: DefaultExpiry, nowTime: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) WithRepo(repo Repo) *Manager {
	clone := *m
	clone.repo = repo
	return &clone
}

// CreateRequest replaces the user's pending request.
func (m *Manager) CreateRequest(ctx context.Context, userID, email string) (*Request, error) {
	if err := m.repo.DeleteByUser(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "[Manager.CreateRequest] delete previous")
	}
	id, err := utils.RandomID(20)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.CreateRequest] generate id")
	}
	code, err := utils.RandomOTP()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.CreateRequest] generate code")
	}
	req := &Request{
		ID:        id,
		UserID:    userID,
		Email:     email,
		Code:      code,
		ExpiresAt: m.nowTime().Add(m.expiry),
	}
	if err := m.repo.Create(ctx, req); err != nil {
		return nil, errors.Wrap(err, "[Manager.CreateRequest] create")
	}
	return req, nil
}

// GetUserRequest returns the user's request with the given id, or nil when it is
// absent or has expired. Expired requests are removed.
func (m *Manager) GetUserRequest(ctx context.Context, userID, id string) (*Request, error) {
	if id == "" {
		return nil, nil
	}
	req, err := m.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.GetUserRequest]")
	}
	if req == nil {
		return nil, nil
	}
	if !m.nowTime().Before(req.ExpiresAt) {
		if err := m.repo.DeleteByUser(ctx, userID); err != nil {
			return nil, errors.Wrap(err, "[Manager.GetUserRequest] delete expired")
		}
		return nil, nil
	}
	return req, nil
}

func (m *Manager) DeleteUserRequests(ctx context.Context, userID string) error {
	return errors.Wrap(m.repo.DeleteByUser(ctx, userID), "[Manager.DeleteUserRequests]")
}

func (m *Manager) DeleteExpired(ctx context.Context) (int, error) {
	n, err := m.repo.DeleteExpired(ctx, m.nowTime())
	return n, errors.Wrap(err, "[Manager.DeleteExpired]")
}

func SetCookie(w http.ResponseWriter, id string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
}

func DeleteCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func IDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
