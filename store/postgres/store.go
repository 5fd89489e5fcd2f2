// Package postgres is the PostgreSQL store.Store. Repositories are bound to a
// DBTX so the same code serves plain calls and transactions.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/store"
	"github.com/jrsteele09/go-auth-hub/store/postgres/migrations"
)

var _ store.Store = (*Store)(nil)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

// Open connects with the pgx driver and checks the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[postgres.Open] open")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[postgres.Open] ping")
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return errors.Wrap(err, "[Store.Migrate] dialect")
	}
	if err := gooseUpContext(ctx, s.db, "."); err != nil {
		return errors.Wrap(err, "[Store.Migrate]")
	}
	return nil
}

func reposFor(db DBTX) store.Repos {
	return store.Repos{
		Users:              &userRepo{db},
		Sessions:           &sessionRepo{db},
		Credentials:        &credentialRepo{db},
		ResetSessions:      &resetRepo{db},
		EmailVerifications: &verificationRepo{db},
		Settings:           &settingsRepo{db},
		Audit:              &auditRepo{db},
	}
}

func (s *Store) Repos() store.Repos {
	return reposFor(s.db)
}

func (s *Store) WithTx(ctx context.Context, fn store.TxFunc) error {
	return WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		return fn(ctx, reposFor(tx))
	})
}

func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	total := 0
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		for _, q := range []string{
			`DELETE FROM sessions WHERE expires_at <= $1`,
			`DELETE FROM password_reset_sessions WHERE expires_at <= $1`,
			`DELETE FROM email_verification_requests WHERE expires_at <= $1`,
		} {
			n, err := execCount(ctx, tx, q, now)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "[Store.PurgeExpired]")
	}
	return total, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// execCount runs a statement and returns the number of affected rows.
func execCount(ctx context.Context, db DBTX, query string, args ...any) (int, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// classify maps a unique violation to Conflict and wraps everything else.
func classify(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.Wrap(apperrors.ErrConflict, op)
	}
	return errors.Wrap(err, op)
}

type scanner interface {
	Scan(dest ...any) error
}
