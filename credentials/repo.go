package credentials

import "context"

// Repo persists credentials. Lookups return nil when nothing matches.
type Repo interface {
	// PutTOTP replaces the user's TOTP credential in one atomic step.
	PutTOTP(ctx context.Context, cred *Credential) error
	GetTOTP(ctx context.Context, userID string) (*Credential, error)
	DeleteTOTP(ctx context.Context, userID string) error

	// CreateWebAuthn inserts cred unless the user already holds limit credentials
	// of that kind (Forbidden) or the id is taken (Conflict).
	CreateWebAuthn(ctx context.Context, cred *Credential, limit int) error
	GetWebAuthn(ctx context.Context, kind Kind, id []byte) (*Credential, error)
	ListWebAuthn(ctx context.Context, userID string, kind Kind) ([]*Credential, error)
	// DeleteWebAuthn removes the credential only if userID owns it and reports
	// whether a row went away.
	DeleteWebAuthn(ctx context.Context, userID string, kind Kind, id []byte) (bool, error)

	DeleteAllForUser(ctx context.Context, userID string) error
}
