package passwordreset

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-hub/internal/utils"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/users"
)

const (
	DefaultExpiry = 10 * time.Minute
	CookieName    = "password_reset_session"
)

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
	m := &Manager{
		repo:    repo,
		expiry:  DefaultExpiry,
		nowTime: time.Now,
	}
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

// CreatePasswordResetSession replaces any reset in flight for the user with a
// new one carrying a fresh emailed code.
func (m *Manager) CreatePasswordResetSession(ctx context.Context, token, userID, email string) (*Session, error) {
	if err := m.repo.DeleteByUser(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "[Manager.CreatePasswordResetSession] delete previous")
	}
	code, err := utils.RandomOTP()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.CreatePasswordResetSession] generate code")
	}
	session := &Session{
		ID:        sessions.SessionID(token),
		UserID:    userID,
		Email:     email,
		Code:      code,
		ExpiresAt: m.nowTime().Add(m.expiry),
	}
	if err := m.repo.Create(ctx, session); err != nil {
		return nil, errors.Wrap(err, "[Manager.CreatePasswordResetSession] create")
	}
	return session, nil
}

// ValidatePasswordResetSessionToken resolves token to its reset session and user.
// Expired sessions are deleted and reported absent; there is no renewal.
func (m *Manager) ValidatePasswordResetSessionToken(ctx context.Context, token string) (*Session, *users.User, error) {
	if token == "" {
		return nil, nil, nil
	}
	id := sessions.SessionID(token)
	session, user, err := m.repo.GetWithUser(ctx, id)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Manager.ValidatePasswordResetSessionToken] lookup")
	}
	if session == nil {
		return nil, nil, nil
	}
	if user == nil || !m.nowTime().Before(session.ExpiresAt) {
		if err := m.repo.Delete(ctx, id); err != nil {
			return nil, nil, errors.Wrap(err, "[Manager.ValidatePasswordResetSessionToken] delete expired")
		}
		return nil, nil, nil
	}
	return session, user, nil
}

func (m *Manager) SetPasswordResetSessionAsEmailVerified(ctx context.Context, id string) error {
	return errors.Wrap(m.repo.SetEmailVerified(ctx, id), "[Manager.SetPasswordResetSessionAsEmailVerified]")
}

func (m *Manager) SetPasswordResetSessionAs2FAVerified(ctx context.Context, id string) error {
	return errors.Wrap(m.repo.SetTwoFactorVerified(ctx, id), "[Manager.SetPasswordResetSessionAs2FAVerified]")
}

func (m *Manager) InvalidateUserPasswordResetSessions(ctx context.Context, userID string) error {
	return errors.Wrap(m.repo.DeleteByUser(ctx, userID), "[Manager.InvalidateUserPasswordResetSessions]")
}

func (m *Manager) DeleteExpired(ctx context.Context) (int, error) {
	n, err := m.repo.DeleteExpired(ctx, m.nowTime())
	return n, errors.Wrap(err, "[Manager.DeleteExpired]")
}

// TwoFactorRedirect picks the reset-scoped second factor page. Users without a
// factor have nothing to prove here, so they go to setup like a sign-in would.
func TwoFactorRedirect(factors users.Factors) string {
	switch factors.Preferred() {
	case users.FactorPasskey:
		return "/reset-password/2fa/passkey"
	case users.FactorSecurityKey:
		return "/reset-password/2fa/security-key"
	case users.FactorTOTP:
		return "/reset-password/2fa/totp"
	default:
		return sessions.SetupPath
	}
}

func SetCookie(w http.ResponseWriter, token string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
}

// DeleteCookie clears the cookie. MaxAge -1 is what makes net/http emit Max-Age=0.
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

func TokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
