package memstore

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-hub/credentials"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
)

var _ credentials.Repo = (*credentialRepo)(nil)

type credentialRepo struct {
	conn
}

func (r *credentialRepo) PutTOTP(_ context.Context, cred *credentials.Credential) error {
	defer r.lock()()
	c := *cred
	r.data().totp[cred.UserID] = &c
	return nil
}

func (r *credentialRepo) GetTOTP(_ context.Context, userID string) (*credentials.Credential, error) {
	defer r.lock()()
	if cred, ok := r.data().totp[userID]; ok {
		c := *cred
		return &c, nil
	}
	return nil, nil
}

func (r *credentialRepo) DeleteTOTP(_ context.Context, userID string) error {
	defer r.lock()()
	delete(r.data().totp, userID)
	return nil
}

func (r *credentialRepo) CreateWebAuthn(_ context.Context, cred *credentials.Credential, limit int) error {
	defer r.lock()()
	d := r.data()

	key := webauthnKey{kind: cred.Kind, id: string(cred.ID)}
	if _, ok := d.webauthn[key]; ok {
		return errors.Wrap(apperrors.ErrConflict, "[credentialRepo.CreateWebAuthn]")
	}
	count := 0
	for k, existing := range d.webauthn {
		if k.kind == cred.Kind && existing.UserID == cred.UserID {
			count++
		}
	}
	if count >= limit {
		return errors.Wrap(apperrors.ErrForbidden, "[credentialRepo.CreateWebAuthn] limit reached")
	}
	c := *cred
	d.webauthn[key] = &c
	return nil
}

func (r *credentialRepo) GetWebAuthn(_ context.Context, kind credentials.Kind, id []byte) (*credentials.Credential, error) {
	defer r.lock()()
	if cred, ok := r.data().webauthn[webauthnKey{kind: kind, id: string(id)}]; ok {
		c := *cred
		return &c, nil
	}
	return nil, nil
}

func (r *credentialRepo) ListWebAuthn(_ context.Context, userID string, kind credentials.Kind) ([]*credentials.Credential, error) {
	defer r.lock()()
	var out []*credentials.Credential
	for k, cred := range r.data().webauthn {
		if k.kind == kind && cred.UserID == userID {
			c := *cred
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *credentialRepo) DeleteWebAuthn(_ context.Context, userID string, kind credentials.Kind, id []byte) (bool, error) {
	defer r.lock()()
	d := r.data()
	key := webauthnKey{kind: kind, id: string(id)}
	cred, ok := d.webauthn[key]
	if !ok || cred.UserID != userID {
		return false, nil
	}
	delete(d.webauthn, key)
	return true, nil
}

func (r *credentialRepo) DeleteAllForUser(_ context.Context, userID string) error {
	defer r.lock()()
	d := r.data()
	delete(d.totp, userID)
	for k, cred := range d.webauthn {
		if cred.UserID == userID {
			delete(d.webauthn, k)
		}
	}
	return nil
}
