package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-hub/credentials"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
)

var _ credentials.Repo = (*credentialRepo)(nil)

type credentialRepo struct {
	db DBTX
}

func (r *credentialRepo) PutTOTP(ctx context.Context, cred *credentials.Credential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO totp_credentials (user_id, key, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET key = EXCLUDED.key, created_at = EXCLUDED.created_at`,
		cred.UserID, cred.KeyMaterial, cred.CreatedAt)
	return errors.Wrap(err, "[credentialRepo.PutTOTP]")
}

func (r *credentialRepo) GetTOTP(ctx context.Context, userID string) (*credentials.Credential, error) {
	cred := &credentials.Credential{Kind: credentials.KindTOTP}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, key, created_at FROM totp_credentials WHERE user_id = $1`, userID).
		Scan(&cred.UserID, &cred.KeyMaterial, &cred.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[credentialRepo.GetTOTP]")
	}
	return cred, nil
}

func (r *credentialRepo) DeleteTOTP(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM totp_credentials WHERE user_id = $1`, userID)
	return errors.Wrap(err, "[credentialRepo.DeleteTOTP]")
}

// CreateWebAuthn counts and inserts in one statement; zero affected rows means
// the user is at the limit.
func (r *credentialRepo) CreateWebAuthn(ctx context.Context, cred *credentials.Credential, limit int) error {
	n, err := execCount(ctx, r.db,
		`INSERT INTO webauthn_credentials (kind, id, user_id, algorithm, public_key, name, created_at)
		 SELECT $1::smallint, $2::bytea, $3::text, $4::integer, $5::bytea, $6::text, $7::timestamptz
		 WHERE (SELECT count(*) FROM webauthn_credentials WHERE user_id = $3 AND kind = $1) < $8`,
		int(cred.Kind), cred.ID, cred.UserID, cred.Algorithm, cred.KeyMaterial, cred.Name, cred.CreatedAt, limit)
	if err != nil {
		return classify(err, "[credentialRepo.CreateWebAuthn]")
	}
	if n == 0 {
		return errors.Wrap(apperrors.ErrForbidden, "[credentialRepo.CreateWebAuthn] limit reached")
	}
	return nil
}

const webauthnColumns = `kind, id, user_id, algorithm, public_key, name, created_at`

func scanCredential(row scanner) (*credentials.Credential, error) {
	cred := &credentials.Credential{}
	err := row.Scan(&cred.Kind, &cred.ID, &cred.UserID, &cred.Algorithm, &cred.KeyMaterial, &cred.Name, &cred.CreatedAt)
	if err != nil {
		return nil, err
	}
	return cred, nil
}

func (r *credentialRepo) GetWebAuthn(ctx context.Context, kind credentials.Kind, id []byte) (*credentials.Credential, error) {
	cred, err := scanCredential(r.db.QueryRowContext(ctx,
		`SELECT `+webauthnColumns+` FROM webauthn_credentials WHERE kind = $1 AND id = $2`, int(kind), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[credentialRepo.GetWebAuthn]")
	}
	return cred, nil
}

func (r *credentialRepo) ListWebAuthn(ctx context.Context, userID string, kind credentials.Kind) ([]*credentials.Credential, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+webauthnColumns+` FROM webauthn_credentials WHERE user_id = $1 AND kind = $2 ORDER BY created_at`,
		userID, int(kind))
	if err != nil {
		return nil, errors.Wrap(err, "[credentialRepo.ListWebAuthn]")
	}
	defer rows.Close()

	var out []*credentials.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[credentialRepo.ListWebAuthn] scan")
		}
		out = append(out, cred)
	}
	return out, errors.Wrap(rows.Err(), "[credentialRepo.ListWebAuthn]")
}

func (r *credentialRepo) DeleteWebAuthn(ctx context.Context, userID string, kind credentials.Kind, id []byte) (bool, error) {
	n, err := execCount(ctx, r.db,
		`DELETE FROM webauthn_credentials WHERE kind = $1 AND id = $2 AND user_id = $3`, int(kind), id, userID)
	if err != nil {
		return false, errors.Wrap(err, "[credentialRepo.DeleteWebAuthn]")
	}
	return n > 0, nil
}

func (r *credentialRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM totp_credentials WHERE user_id = $1`, userID); err != nil {
		return errors.Wrap(err, "[credentialRepo.DeleteAllForUser] totp")
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM webauthn_credentials WHERE user_id = $1`, userID)
	return errors.Wrap(err, "[credentialRepo.DeleteAllForUser] webauthn")
}
