package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-hub/credentials"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/users"
)

var _ users.Repo = (*userRepo)(nil)

// userColumns selects a user from alias u along with its registered factors.
var userColumns = fmt.Sprintf(`u.id, u.email, u.username, u.name, u.password_hash, u.recovery_code,
       u.role, u.email_verified, u.created_at, u.updated_at, u.last_login,
       EXISTS (SELECT 1 FROM totp_credentials t WHERE t.user_id = u.id),
       EXISTS (SELECT 1 FROM webauthn_credentials w WHERE w.user_id = u.id AND w.kind = %d),
       EXISTS (SELECT 1 FROM webauthn_credentials w WHERE w.user_id = u.id AND w.kind = %d)`,
	credentials.KindPasskey, credentials.KindSecurityKey)

func scanUser(row scanner, extra ...any) (*users.User, error) {
	u := &users.User{}
	dest := []any{
		&u.ID, &u.Email, &u.Username, &u.Name, &u.PasswordHash, &u.RecoveryCode,
		&u.Role, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin,
		&u.Factors.TOTP, &u.Factors.Passkey, &u.Factors.SecurityKey,
	}
	if err := row.Scan(append(extra, dest...)...); err != nil {
		return nil, err
	}
	return u, nil
}

type userRepo struct {
	db DBTX
}

func (r *userRepo) Create(ctx context.Context, user *users.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, username, name, password_hash, recovery_code, role, email_verified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.Email, user.Username, user.Name, user.PasswordHash, user.RecoveryCode,
		int(user.Role), user.EmailVerified, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return classify(err, "[userRepo.Create]")
	}
	return nil
}

func (r *userRepo) getOne(ctx context.Context, op, where string, args ...any) (*users.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.getOne(ctx, "[userRepo.GetByID]", `u.id = $1`, id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.getOne(ctx, "[userRepo.GetByEmail]", `u.email = $1`, email)
}

func (r *userRepo) List(ctx context.Context, limit, offset int) ([]*users.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users u ORDER BY u.created_at, u.id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "[userRepo.List]")
	}
	defer rows.Close()

	var out []*users.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[userRepo.List] scan")
		}
		out = append(out, u)
	}
	return out, errors.Wrap(rows.Err(), "[userRepo.List]")
}

func (r *userRepo) GetByExternalID(ctx context.Context, provider, providerUserID string) (*users.User, error) {
	return r.getOne(ctx, "[userRepo.GetByExternalID]",
		`u.id = (SELECT f.user_id FROM federated_identities f WHERE f.provider = $1 AND f.provider_user_id = $2)`,
		provider, providerUserID)
}

func (r *userRepo) LinkExternalID(ctx context.Context, userID, provider, providerUserID string) error {
	n, err := execCount(ctx, r.db,
		`INSERT INTO federated_identities (provider, provider_user_id, user_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (provider, provider_user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 WHERE federated_identities.user_id = EXCLUDED.user_id`,
		provider, providerUserID, userID)
	if err != nil {
		return errors.Wrap(err, "[userRepo.LinkExternalID]")
	}
	if n == 0 {
		return errors.Wrap(apperrors.ErrConflict, "[userRepo.LinkExternalID]")
	}
	return nil
}

func (r *userRepo) ListExternalIDs(ctx context.Context, userID string) ([]users.ExternalID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT provider, provider_user_id FROM federated_identities WHERE user_id = $1 ORDER BY provider`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[userRepo.ListExternalIDs]")
	}
	defer rows.Close()

	var out []users.ExternalID
	for rows.Next() {
		var id users.ExternalID
		if err := rows.Scan(&id.Provider, &id.ProviderUserID); err != nil {
			return nil, errors.Wrap(err, "[userRepo.ListExternalIDs] scan")
		}
		out = append(out, id)
	}
	return out, errors.Wrap(rows.Err(), "[userRepo.ListExternalIDs]")
}

func (r *userRepo) UnlinkExternalID(ctx context.Context, userID, provider string) (bool, error) {
	n, err := execCount(ctx, r.db,
		`DELETE FROM federated_identities WHERE user_id = $1 AND provider = $2`, userID, provider)
	if err != nil {
		return false, errors.Wrap(err, "[userRepo.UnlinkExternalID]")
	}
	return n > 0, nil
}

func (r *userRepo) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, userID, hash)
	return errors.Wrap(err, "[userRepo.UpdatePasswordHash]")
}

func (r *userRepo) UpdateEmail(ctx context.Context, userID, email string, verified bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = $2, email_verified = $3, updated_at = now() WHERE id = $1`,
		userID, email, verified)
	if err != nil {
		return classify(err, "[userRepo.UpdateEmail]")
	}
	return nil
}

func (r *userRepo) SetEmailVerifiedIfEmailMatches(ctx context.Context, userID, email string) (bool, error) {
	n, err := execCount(ctx, r.db,
		`UPDATE users SET email_verified = TRUE, updated_at = now() WHERE id = $1 AND email = $2`,
		userID, email)
	if err != nil {
		return false, errors.Wrap(err, "[userRepo.SetEmailVerifiedIfEmailMatches]")
	}
	return n > 0, nil
}

func (r *userRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, userID, at)
	return errors.Wrap(err, "[userRepo.UpdateLastLogin]")
}

func (r *userRepo) UpdateRole(ctx context.Context, userID string, role users.Role) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = $2, updated_at = now() WHERE id = $1`, userID, int(role))
	return errors.Wrap(err, "[userRepo.UpdateRole]")
}

func (r *userRepo) SetRecoveryCode(ctx context.Context, userID string, encrypted []byte) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET recovery_code = $2, updated_at = now() WHERE id = $1`, userID, encrypted)
	return errors.Wrap(err, "[userRepo.SetRecoveryCode]")
}

// CompareAndSwapRecoveryCode relies on the row-level check in the WHERE clause:
// of two concurrent swaps from the same old code only one matches.
func (r *userRepo) CompareAndSwapRecoveryCode(ctx context.Context, userID string, old, new []byte) (bool, error) {
	n, err := execCount(ctx, r.db,
		`UPDATE users SET recovery_code = $3, updated_at = now() WHERE id = $1 AND recovery_code = $2`,
		userID, old, new)
	if err != nil {
		return false, errors.Wrap(err, "[userRepo.CompareAndSwapRecoveryCode]")
	}
	return n == 1, nil
}

func (r *userRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	return errors.Wrap(err, "[userRepo.Delete]")
}
