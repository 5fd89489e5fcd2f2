package sessions

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-hub/users"
)

// Session is a signed-in browser. ID is the SHA-256 hex digest of the token held
// in the cookie; the token itself is never stored.
type Session struct {
	ID                string
	UserID            string
	ExpiresAt         time.Time
	LastActiveAt      time.Time
	TwoFactorVerified bool
	RedirectURL       *string
	StateToken        *string
}

// Repo persists sessions. Lookups return nil when nothing matches.
type Repo interface {
	Create(ctx context.Context, session *Session) error

	// GetWithUser loads the session and its user, factors included, in one read.
	GetWithUser(ctx context.Context, id string) (*Session, *users.User, error)

	// Touch writes both refreshable timestamps at once.
	Touch(ctx context.Context, id string, expiresAt, lastActiveAt time.Time) error
	SetTwoFactorVerified(ctx context.Context, id string) error
	SetRedirect(ctx context.Context, id string, redirectURL, stateToken *string) error

	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
	// ClearTwoFactorByUser drops the two-factor flag on every session of the user.
	ClearTwoFactorByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
