package memstore

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/users"
)

var _ users.Repo = (*userRepo)(nil)

type userRepo struct {
	conn
}

// withFactors returns a copy of u with factors derived from its credentials.
func (d *state) withFactors(u *users.User) *users.User {
	c := *u
	c.Factors = users.Factors{}
	if _, ok := d.totp[u.ID]; ok {
		c.Factors.TOTP = true
	}
	for key, cred := range d.webauthn {
		if cred.UserID != u.ID {
			continue
		}
		switch key.kind.Factor() {
		case users.FactorPasskey:
			c.Factors.Passkey = true
		case users.FactorSecurityKey:
			c.Factors.SecurityKey = true
		}
	}
	return &c
}

func (r *userRepo) Create(_ context.Context, user *users.User) error {
	defer r.lock()()
	d := r.data()

	if _, ok := d.users[user.ID]; ok {
		return errors.Wrap(apperrors.ErrConflict, "[userRepo.Create] id")
	}
	for _, existing := range d.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return errors.Wrap(apperrors.ErrConflict, "[userRepo.Create] email or username")
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	c := *user
	c.Factors = users.Factors{}
	d.users[user.ID] = &c
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	defer r.lock()()
	d := r.data()
	if u, ok := d.users[id]; ok {
		return d.withFactors(u), nil
	}
	return nil, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	defer r.lock()()
	d := r.data()
	for _, u := range d.users {
		if u.Email == email {
			return d.withFactors(u), nil
		}
	}
	return nil, nil
}

func (r *userRepo) List(_ context.Context, limit, offset int) ([]*users.User, error) {
	defer r.lock()()
	d := r.data()
	all := make([]*users.User, 0, len(d.users))
	for _, u := range d.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	var out []*users.User
	for i := offset; i < len(all) && len(out) < limit; i++ {
		out = append(out, d.withFactors(all[i]))
	}
	return out, nil
}

func (r *userRepo) GetByExternalID(_ context.Context, provider, providerUserID string) (*users.User, error) {
	defer r.lock()()
	d := r.data()
	userID, ok := d.external[externalKey{provider, providerUserID}]
	if !ok {
		return nil, nil
	}
	if u, ok := d.users[userID]; ok {
		return d.withFactors(u), nil
	}
	return nil, nil
}

func (r *userRepo) LinkExternalID(_ context.Context, userID, provider, providerUserID string) error {
	defer r.lock()()
	d := r.data()
	key := externalKey{provider, providerUserID}
	if owner, ok := d.external[key]; ok && owner != userID {
		return errors.Wrap(apperrors.ErrConflict, "[userRepo.LinkExternalID]")
	}
	d.external[key] = userID
	return nil
}

func (r *userRepo) ListExternalIDs(_ context.Context, userID string) ([]users.ExternalID, error) {
	defer r.lock()()
	var out []users.ExternalID
	for key, owner := range r.data().external {
		if owner == userID {
			out = append(out, users.ExternalID{Provider: key.provider, ProviderUserID: key.providerUserID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (r *userRepo) UnlinkExternalID(_ context.Context, userID, provider string) (bool, error) {
	defer r.lock()()
	d := r.data()
	removed := false
	for key, owner := range d.external {
		if owner == userID && key.provider == provider {
			delete(d.external, key)
			removed = true
		}
	}
	return removed, nil
}

// update applies fn to the stored user if it exists.
func (r *userRepo) update(userID string, fn func(u *users.User)) error {
	defer r.lock()()
	if u, ok := r.data().users[userID]; ok {
		fn(u)
		u.UpdatedAt = time.Now()
	}
	return nil
}

func (r *userRepo) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	return r.update(userID, func(u *users.User) { u.PasswordHash = hash })
}

func (r *userRepo) UpdateEmail(_ context.Context, userID, email string, verified bool) error {
	defer r.lock()()
	d := r.data()
	for id, existing := range d.users {
		if id != userID && existing.Email == email {
			return errors.Wrap(apperrors.ErrConflict, "[userRepo.UpdateEmail]")
		}
	}
	if u, ok := d.users[userID]; ok {
		u.Email = email
		u.EmailVerified = verified
		u.UpdatedAt = time.Now()
	}
	return nil
}

func (r *userRepo) SetEmailVerifiedIfEmailMatches(_ context.Context, userID, email string) (bool, error) {
	defer r.lock()()
	u, ok := r.data().users[userID]
	if !ok || u.Email != email {
		return false, nil
	}
	u.EmailVerified = true
	u.UpdatedAt = time.Now()
	return true, nil
}

func (r *userRepo) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	return r.update(userID, func(u *users.User) { u.LastLogin = &at })
}

func (r *userRepo) UpdateRole(_ context.Context, userID string, role users.Role) error {
	return r.update(userID, func(u *users.User) { u.Role = role })
}

func (r *userRepo) SetRecoveryCode(_ context.Context, userID string, encrypted []byte) error {
	return r.update(userID, func(u *users.User) { u.RecoveryCode = encrypted })
}

func (r *userRepo) CompareAndSwapRecoveryCode(_ context.Context, userID string, old, new []byte) (bool, error) {
	defer r.lock()()
	u, ok := r.data().users[userID]
	if !ok || !bytes.Equal(u.RecoveryCode, old) {
		return false, nil
	}
	u.RecoveryCode = new
	u.UpdatedAt = time.Now()
	return true, nil
}

func (r *userRepo) Delete(_ context.Context, userID string) error {
	defer r.lock()()
	d := r.data()
	delete(d.users, userID)
	delete(d.totp, userID)
	delete(d.verifications, userID)
	for k, v := range d.external {
		if v == userID {
			delete(d.external, k)
		}
	}
	for k, v := range d.webauthn {
		if v.UserID == userID {
			delete(d.webauthn, k)
		}
	}
	for k, v := range d.sessions {
		if v.UserID == userID {
			delete(d.sessions, k)
		}
	}
	for k, v := range d.resets {
		if v.UserID == userID {
			delete(d.resets, k)
		}
	}
	return nil
}
