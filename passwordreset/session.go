package passwordreset

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-hub/users"
)

// Session tracks one password reset attempt. It is scoped separately from the
// sign-in session and needs its own email and second factor checks.
type Session struct {
	ID                string
	UserID            string
	Email             string
	Code              string
	ExpiresAt         time.Time
	EmailVerified     bool
	TwoFactorVerified bool
}

// Repo persists reset sessions. Lookups return nil when nothing matches.
type Repo interface {
	Create(ctx context.Context, session *Session) error
	GetWithUser(ctx context.Context, id string) (*Session, *users.User, error)
	SetEmailVerified(ctx context.Context, id string) error
	SetTwoFactorVerified(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
