package store

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/credentials"
	"github.com/jrsteele09/go-auth-hub/emailverification"
	"github.com/jrsteele09/go-auth-hub/passwordreset"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/settings"
	"github.com/jrsteele09/go-auth-hub/users"
)

// Repos groups every repository the service needs.
type Repos struct {
	Users              users.Repo
	Sessions           sessions.Repo
	Credentials        credentials.Repo
	ResetSessions      passwordreset.Repo
	EmailVerifications emailverification.Repo
	Settings           settings.Repo
	Audit              audit.Repo
}

// TxFunc runs against repositories bound to one transaction.
type TxFunc func(ctx context.Context, tx Repos) error

// Store is a persistence backend.
type Store interface {
	Repos() Repos
	// WithTx commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn TxFunc) error
	// PurgeExpired deletes expired sessions, reset sessions and email
	// verification requests.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
