package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-hub/passwordreset"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/users"
)

var (
	_ sessions.Repo      = (*sessionRepo)(nil)
	_ passwordreset.Repo = (*resetRepo)(nil)
)

type sessionRepo struct {
	db DBTX
}

func (r *sessionRepo) Create(ctx context.Context, s *sessions.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, last_active_at, two_factor_verified, redirect_url, state_token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.ExpiresAt, s.LastActiveAt, s.TwoFactorVerified, s.RedirectURL, s.StateToken)
	if err != nil {
		return classify(err, "[sessionRepo.Create]")
	}
	return nil
}

func (r *sessionRepo) GetWithUser(ctx context.Context, id string) (*sessions.Session, *users.User, error) {
	s := &sessions.Session{}
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT s.id, s.user_id, s.expires_at, s.last_active_at, s.two_factor_verified, s.redirect_url, s.state_token, `+userColumns+`
		 FROM sessions s JOIN users u ON u.id = s.user_id
		 WHERE s.id = $1`, id),
		&s.ID, &s.UserID, &s.ExpiresAt, &s.LastActiveAt, &s.TwoFactorVerified, &s.RedirectURL, &s.StateToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "[sessionRepo.GetWithUser]")
	}
	return s, u, nil
}

func (r *sessionRepo) Touch(ctx context.Context, id string, expiresAt, lastActiveAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = $2, last_active_at = $3 WHERE id = $1`, id, expiresAt, lastActiveAt)
	return errors.Wrap(err, "[sessionRepo.Touch]")
}

func (r *sessionRepo) SetTwoFactorVerified(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET two_factor_verified = TRUE WHERE id = $1`, id)
	return errors.Wrap(err, "[sessionRepo.SetTwoFactorVerified]")
}

func (r *sessionRepo) SetRedirect(ctx context.Context, id string, redirectURL, stateToken *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET redirect_url = $2, state_token = $3 WHERE id = $1`, id, redirectURL, stateToken)
	return errors.Wrap(err, "[sessionRepo.SetRedirect]")
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return errors.Wrap(err, "[sessionRepo.Delete]")
}

func (r *sessionRepo) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return errors.Wrap(err, "[sessionRepo.DeleteByUser]")
}

func (r *sessionRepo) ClearTwoFactorByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET two_factor_verified = FALSE WHERE user_id = $1`, userID)
	return errors.Wrap(err, "[sessionRepo.ClearTwoFactorByUser]")
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := execCount(ctx, r.db, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	return n, errors.Wrap(err, "[sessionRepo.DeleteExpired]")
}

type resetRepo struct {
	db DBTX
}

func (r *resetRepo) Create(ctx context.Context, s *passwordreset.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_reset_sessions (id, user_id, email, code, expires_at, email_verified, two_factor_verified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.Email, s.Code, s.ExpiresAt, s.EmailVerified, s.TwoFactorVerified)
	if err != nil {
		return classify(err, "[resetRepo.Create]")
	}
	return nil
}

func (r *resetRepo) GetWithUser(ctx context.Context, id string) (*passwordreset.Session, *users.User, error) {
	s := &passwordreset.Session{}
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT p.id, p.user_id, p.email, p.code, p.expires_at, p.email_verified, p.two_factor_verified, `+userColumns+`
		 FROM password_reset_sessions p JOIN users u ON u.id = p.user_id
		 WHERE p.id = $1`, id),
		&s.ID, &s.UserID, &s.Email, &s.Code, &s.ExpiresAt, &s.EmailVerified, &s.TwoFactorVerified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "[resetRepo.GetWithUser]")
	}
	return s, u, nil
}

func (r *resetRepo) SetEmailVerified(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE password_reset_sessions SET email_verified = TRUE WHERE id = $1`, id)
	return errors.Wrap(err, "[resetRepo.SetEmailVerified]")
}

func (r *resetRepo) SetTwoFactorVerified(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE password_reset_sessions SET two_factor_verified = TRUE WHERE id = $1`, id)
	return errors.Wrap(err, "[resetRepo.SetTwoFactorVerified]")
}

func (r *resetRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_sessions WHERE id = $1`, id)
	return errors.Wrap(err, "[resetRepo.Delete]")
}

func (r *resetRepo) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_sessions WHERE user_id = $1`, userID)
	return errors.Wrap(err, "[resetRepo.DeleteByUser]")
}

func (r *resetRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := execCount(ctx, r.db, `DELETE FROM password_reset_sessions WHERE expires_at <= $1`, now)
	return n, errors.Wrap(err, "[resetRepo.DeleteExpired]")
}
