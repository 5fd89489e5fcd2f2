package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-hub/internal/utils"
	"github.com/jrsteele09/go-auth-hub/users"
)

const (
	DefaultExpiry         = 30 * 24 * time.Hour
	DefaultRenewThreshold = 15 * 24 * time.Hour

	tokenBytes = 20
)

type Option func(*Manager)

func WithExpiry(d time.Duration) Option {
	return func(m *Manager) {
		m.expiry = d
	}
}

// WithRenewThreshold sets how close to expiry a session must be before a
// validation pushes its expiry out again.
func WithRenewThreshold(d time.Duration) Option {
	return func(m *Manager) {
		m.renewThreshold = d
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(now func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = now
	}
}

// Manager issues, validates and revokes sessions.
type Manager struct {
	repo           Repo
	expiry         time.Duration
	renewThreshold time.Duration
	nowTime        func() time.Time
}

func NewManager(repo Repo, opts ...Option) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[NewManager] repo is required")
	}
	m := &Manager{
		repo:           repo,
		expiry:         DefaultExpiry,
		renewThreshold: DefaultRenewThreshold,
		nowTime:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// WithRepo returns a manager with the same policy persisting through repo.
func (m *Manager) WithRepo(repo Repo) *Manager {
	clone := *m
	clone.repo = repo
	return &clone
}

// GenerateSessionToken returns 20 random bytes as lowercase, unpadded base32.
func GenerateSessionToken() (string, error) {
	return utils.RandomID(tokenBytes)
}

// SessionID derives the stored id from a token.
func SessionID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (m *Manager) CreateSession(ctx context.Context, token, userID string, twoFactorVerified bool) (*Session, error) {
	now := m.nowTime()
	session := &Session{
		ID:                SessionID(token),
		UserID:            userID,
		ExpiresAt:         now.Add(m.expiry),
		LastActiveAt:      now,
		TwoFactorVerified: twoFactorVerified,
	}
	if err := m.repo.Create(ctx, session); err != nil {
		return nil, errors.Wrap(err, "[Manager.CreateSession]")
	}
	return session, nil
}

// ValidateSessionToken resolves token to its session and user. An unknown or
// expired token yields nil, nil with the expired row removed. A valid session
// close to expiry is extended, and lastActiveAt moves forward once per UTC day.
func (m *Manager) ValidateSessionToken(ctx context.Context, token string) (*Session, *users.User, error) {
	if token == "" {
		return nil, nil, nil
	}
	id := SessionID(token)
	session, user, err := m.repo.GetWithUser(ctx, id)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Manager.ValidateSessionToken] lookup")
	}
	if session == nil {
		return nil, nil, nil
	}

	now := m.nowTime()
	if user == nil || !now.Before(session.ExpiresAt) {
		if err := m.repo.Delete(ctx, id); err != nil {
			return nil, nil, errors.Wrap(err, "[Manager.ValidateSessionToken] delete expired")
		}
		return nil, nil, nil
	}

	changed := false
	if session.ExpiresAt.Sub(now) < m.renewThreshold {
		session.ExpiresAt = now.Add(m.expiry)
		changed = true
	}
	if session.LastActiveAt.Before(startOfDay(now)) {
		session.LastActiveAt = now
		changed = true
	}
	if changed {
		if err := m.repo.Touch(ctx, id, session.ExpiresAt, session.LastActiveAt); err != nil {
			log.Err(err).Str("userID", session.UserID).Msg("failed to refresh session")
			return nil, nil, errors.Wrap(err, "[Manager.ValidateSessionToken] touch")
		}
	}
	return session, user, nil
}

func (m *Manager) InvalidateSession(ctx context.Context, id string) error {
	return errors.Wrap(m.repo.Delete(ctx, id), "[Manager.InvalidateSession]")
}

func (m *Manager) InvalidateUserSessions(ctx context.Context, userID string) error {
	return errors.Wrap(m.repo.DeleteByUser(ctx, userID), "[Manager.InvalidateUserSessions]")
}

// SetSessionAs2FAVerified marks the session as having passed a second factor.
// There is no way back short of a recovery code reset.
func (m *Manager) SetSessionAs2FAVerified(ctx context.Context, id string) error {
	return errors.Wrap(m.repo.SetTwoFactorVerified(ctx, id), "[Manager.SetSessionAs2FAVerified]")
}

func (m *Manager) SetRedirect(ctx context.Context, id string, redirectURL, stateToken *string) error {
	return errors.Wrap(m.repo.SetRedirect(ctx, id, redirectURL, stateToken), "[Manager.SetRedirect]")
}

func (m *Manager) DeleteExpired(ctx context.Context) (int, error) {
	n, err := m.repo.DeleteExpired(ctx, m.nowTime())
	return n, errors.Wrap(err, "[Manager.DeleteExpired]")
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
