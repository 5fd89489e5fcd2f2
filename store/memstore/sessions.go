package memstore

import (
	"context"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/passwordreset"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/users"
)

var (
	_ sessions.Repo      = (*sessionRepo)(nil)
	_ passwordreset.Repo = (*resetRepo)(nil)
)

type sessionRepo struct {
	conn
}

func (r *sessionRepo) Create(_ context.Context, session *sessions.Session) error {
	defer r.lock()()
	d := r.data()
	if _, ok := d.sessions[session.ID]; ok {
		return errors.Wrap(apperrors.ErrConflict, "[sessionRepo.Create]")
	}
	c := *session
	d.sessions[session.ID] = &c
	return nil
}

func (r *sessionRepo) GetWithUser(_ context.Context, id string) (*sessions.Session, *users.User, error) {
	defer r.lock()()
	d := r.data()
	s, ok := d.sessions[id]
	if !ok {
		return nil, nil, nil
	}
	session := *s
	u, ok := d.users[s.UserID]
	if !ok {
		return &session, nil, nil
	}
	return &session, d.withFactors(u), nil
}

func (r *sessionRepo) Touch(_ context.Context, id string, expiresAt, lastActiveAt time.Time) error {
	defer r.lock()()
	if s, ok := r.data().sessions[id]; ok {
		s.ExpiresAt = expiresAt
		s.LastActiveAt = lastActiveAt
	}
	return nil
}

func (r *sessionRepo) SetTwoFactorVerified(_ context.Context, id string) error {
	defer r.lock()()
	if s, ok := r.data().sessions[id]; ok {
		s.TwoFactorVerified = true
	}
	return nil
}

func (r *sessionRepo) SetRedirect(_ context.Context, id string, redirectURL, stateToken *string) error {
	defer r.lock()()
	if s, ok := r.data().sessions[id]; ok {
		s.RedirectURL = redirectURL
		s.StateToken = stateToken
	}
	return nil
}

func (r *sessionRepo) Delete(_ context.Context, id string) error {
	defer r.lock()()
	delete(r.data().sessions, id)
	return nil
}

func (r *sessionRepo) DeleteByUser(_ context.Context, userID string) error {
	defer r.lock()()
	d := r.data()
	for id, s := range d.sessions {
		if s.UserID == userID {
			delete(d.sessions, id)
		}
	}
	return nil
}

func (r *sessionRepo) ClearTwoFactorByUser(_ context.Context, userID string) error {
	defer r.lock()()
	for _, s := range r.data().sessions {
		if s.UserID == userID {
			s.TwoFactorVerified = false
		}
	}
	return nil
}

func (r *sessionRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	defer r.lock()()
	d := r.data()
	n := 0
	for id, s := range d.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(d.sessions, id)
			n++
		}
	}
	return n, nil
}

type resetRepo struct {
	conn
}

func (r *resetRepo) Create(_ context.Context, session *passwordreset.Session) error {
	defer r.lock()()
	d := r.data()
	if _, ok := d.resets[session.ID]; ok {
		return errors.Wrap(apperrors.ErrConflict, "[resetRepo.Create]")
	}
	c := *session
	d.resets[session.ID] = &c
	return nil
}

func (r *resetRepo) GetWithUser(_ context.Context, id string) (*passwordreset.Session, *users.User, error) {
	defer r.lock()()
	d := r.data()
	s, ok := d.resets[id]
	if !ok {
		return nil, nil, nil
	}
	session := *s
	u, ok := d.users[s.UserID]
	if !ok {
		return &session, nil, nil
	}
	return &session, d.withFactors(u), nil
}

func (r *resetRepo) SetEmailVerified(_ context.Context, id string) error {
	defer r.lock()()
	if s, ok := r.data().resets[id]; ok {
		s.EmailVerified = true
	}
	return nil
}

func (r *resetRepo) SetTwoFactorVerified(_ context.Context, id string) error {
	defer r.lock()()
	if s, ok := r.data().resets[id]; ok {
		s.TwoFactorVerified = true
	}
	return nil
}

func (r *resetRepo) Delete(_ context.Context, id string) error {
	defer r.lock()()
	delete(r.data().resets, id)
	return nil
}

func (r *resetRepo) DeleteByUser(_ context.Context, userID string) error {
	defer r.lock()()
	d := r.data()
	for id, s := range d.resets {
		if s.UserID == userID {
			delete(d.resets, id)
		}
	}
	return nil
}

func (r *resetRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	defer r.lock()()
	d := r.data()
	n := 0
	for id, s := range d.resets {
		if !now.Before(s.ExpiresAt) {
			delete(d.resets, id)
			n++
		}
	}
	return n, nil
}
