package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/emailverification"
	"github.com/jrsteele09/go-auth-hub/settings"
)

var (
	_ emailverification.Repo = (*verificationRepo)(nil)
	_ settings.Repo          = (*settingsRepo)(nil)
	_ audit.Repo             = (*auditRepo)(nil)
)

type verificationRepo struct {
	db DBTX
}

// Create replaces any request the user already has.
func (r *verificationRepo) Create(ctx context.Context, req *emailverification.Request) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_verification_requests (id, user_id, email, code, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET id = EXCLUDED.id, email = EXCLUDED.email, code = EXCLUDED.code, expires_at = EXCLUDED.expires_at`,
		req.ID, req.UserID, req.Email, req.Code, req.ExpiresAt)
	return errors.Wrap(err, "[verificationRepo.Create]")
}

func (r *verificationRepo) Get(ctx context.Context, userID, id string) (*emailverification.Request, error) {
	req := &emailverification.Request{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, email, code, expires_at FROM email_verification_requests WHERE user_id = $1 AND id = $2`,
		userID, id).Scan(&req.ID, &req.UserID, &req.Email, &req.Code, &req.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[verificationRepo.Get]")
	}
	return req, nil
}

func (r *verificationRepo) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM email_verification_requests WHERE user_id = $1`, userID)
	return errors.Wrap(err, "[verificationRepo.DeleteByUser]")
}

func (r *verificationRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := execCount(ctx, r.db, `DELETE FROM email_verification_requests WHERE expires_at <= $1`, now)
	return n, errors.Wrap(err, "[verificationRepo.DeleteExpired]")
}

type settingsRepo struct {
	db DBTX
}

func (r *settingsRepo) All(ctx context.Context) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, errors.Wrap(err, "[settingsRepo.All]")
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errors.Wrap(err, "[settingsRepo.All] scan")
		}
		out[key] = value
	}
	return out, errors.Wrap(rows.Err(), "[settingsRepo.All]")
}

func (r *settingsRepo) Put(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return errors.Wrap(err, "[settingsRepo.Put]")
}

type auditRepo struct {
	db DBTX
}

func (r *auditRepo) Insert(ctx context.Context, e *audit.Event) error {
	var data any
	if len(e.Data) > 0 {
		data = string(e.Data)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, event, user_id, ip, user_agent, referer, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, string(e.Event), e.UserID, e.IP, e.UserAgent, e.Referer, data, e.CreatedAt)
	return errors.Wrap(err, "[auditRepo.Insert]")
}

const auditColumns = `id, event, user_id, ip, user_agent, referer, data, created_at`

func scanEvent(row scanner) (*audit.Event, error) {
	e := &audit.Event{}
	var event string
	var data []byte
	if err := row.Scan(&e.ID, &event, &e.UserID, &e.IP, &e.UserAgent, &e.Referer, &data, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Event = audit.EventType(event)
	e.Data = data
	return e, nil
}

func (r *auditRepo) Get(ctx context.Context, id string) (*audit.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_events WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, errors.Wrap(err, "[auditRepo.Get]")
}

func (r *auditRepo) List(ctx context.Context, limit, offset int) ([]*audit.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_events ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "[auditRepo.List]")
	}
	defer rows.Close()

	var out []*audit.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[auditRepo.List] scan")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "[auditRepo.List]")
}
