package users

import (
	"context"
	"time"
)

// ExternalID is a federated identity linked to a user.
type ExternalID struct {
	Provider       string
	ProviderUserID string
}

// Repo persists users. Lookups return a nil user when nothing matches, with
// Factors populated from the credential tables.
type Repo interface {
	// Create inserts a user; an email or username collision is a Conflict.
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// List pages through users, oldest first.
	List(ctx context.Context, limit, offset int) ([]*User, error)

	// GetByExternalID finds the user linked to a federated identity.
	GetByExternalID(ctx context.Context, provider, providerUserID string) (*User, error)
	LinkExternalID(ctx context.Context, userID, provider, providerUserID string) error
	ListExternalIDs(ctx context.Context, userID string) ([]ExternalID, error)
	// UnlinkExternalID removes the user's link to provider and reports whether
	// one existed.
	UnlinkExternalID(ctx context.Context, userID, provider string) (bool, error)

	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	UpdateEmail(ctx context.Context, userID, email string, verified bool) error
	// SetEmailVerifiedIfEmailMatches reports whether a row changed.
	SetEmailVerifiedIfEmailMatches(ctx context.Context, userID, email string) (bool, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	UpdateRole(ctx context.Context, userID string, role Role) error

	SetRecoveryCode(ctx context.Context, userID string, encrypted []byte) error
	// CompareAndSwapRecoveryCode replaces the stored code only if it still equals
	// old, and reports whether it did.
	CompareAndSwapRecoveryCode(ctx context.Context, userID string, old, new []byte) (bool, error)

	Delete(ctx context.Context, userID string) error
}
