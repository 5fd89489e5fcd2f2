package credentials

import (
	"context"
	"encoding/base32"
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/jrsteele09/go-auth-hub/encryption"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
)

// DefaultMaxWebAuthn is the per user, per kind cap on WebAuthn credentials.
const DefaultMaxWebAuthn = 5

// TOTPKeySize is the length of a TOTP seed in bytes.
const TOTPKeySize = 20

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Proof is what a user presents for a credential: a code for TOTP, a signed
// message and signature for WebAuthn.
type Proof struct {
	Code      string
	Message   []byte
	Signature []byte
}

type Option func(*Registry)

func WithMaxWebAuthn(n int) Option {
	return func(r *Registry) {
		r.maxWebAuthn = n
	}
}

func WithNowTime(now func() time.Time) Option {
	return func(r *Registry) {
		r.nowTime = now
	}
}

// Registry owns every second factor credential of every user.
type Registry struct {
	repo        Repo
	envelope    *encryption.Envelope
	maxWebAuthn int
	nowTime     func() time.Time
}

func NewRegistry(repo Repo, envelope *encryption.Envelope, opts ...Option) (*Registry, error) {
	if repo == nil {
		return nil, errors.New("[NewRegistry] repo is required")
	}
	if envelope == nil {
		return nil, errors.New("[NewRegistry] envelope is required")
	}
	r := &Registry{
		repo:        repo,
		envelope:    envelope,
		maxWebAuthn: DefaultMaxWebAuthn,
		nowTime:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// WithRepo returns a registry that shares r's settings but persists through repo,
// typically one bound to a transaction.
func (r *Registry) WithRepo(repo Repo) *Registry {
	clone := *r
	clone.repo = repo
	return &clone
}

// TOTPSecret renders a raw seed the way authenticator apps expect it.
func TOTPSecret(key []byte) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(key)
}

// CheckTOTPCode validates code against a raw seed that is not stored yet.
func (r *Registry) CheckTOTPCode(key []byte, code string) bool {
	ok, err := totp.ValidateCustom(code, TOTPSecret(key), r.nowTime().UTC(), totpOpts)
	return err == nil && ok
}

// UpdateTOTPKey encrypts key and replaces the user's TOTP credential with it.
func (r *Registry) UpdateTOTPKey(ctx context.Context, userID string, key []byte) error {
	if len(key) != TOTPKeySize {
		return apperrors.New(apperrors.KindInvalidInput, "invalid key")
	}
	encrypted, err := r.envelope.Encrypt(ctx, key)
	if err != nil {
		return errors.Wrap(err, "[Registry.UpdateTOTPKey] encrypt")
	}
	cred := &Credential{
		UserID:      userID,
		Kind:        KindTOTP,
		KeyMaterial: encrypted,
		CreatedAt:   r.nowTime(),
	}
	if err := r.repo.PutTOTP(ctx, cred); err != nil {
		return errors.Wrap(err, "[Registry.UpdateTOTPKey] put")
	}
	return nil
}

// VerifyTOTP reports whether code is valid for the user's current seed. A user
// without TOTP never verifies.
func (r *Registry) VerifyTOTP(ctx context.Context, userID, code string) (bool, error) {
	cred, err := r.repo.GetTOTP(ctx, userID)
	if err != nil {
		return false, errors.Wrap(err, "[Registry.VerifyTOTP] get")
	}
	if cred == nil {
		return false, nil
	}
	return r.Verify(ctx, cred, Proof{Code: code})
}

func (r *Registry) DeleteTOTP(ctx context.Context, userID string) error {
	return errors.Wrap(r.repo.DeleteTOTP(ctx, userID), "[Registry.DeleteTOTP]")
}

// CreateWebAuthn stores a verified WebAuthn credential.
func (r *Registry) CreateWebAuthn(ctx context.Context, cred *Credential) error {
	if !cred.Kind.IsWebAuthn() {
		return errors.Errorf("[Registry.CreateWebAuthn] kind %s is not a WebAuthn kind", cred.Kind)
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = r.nowTime()
	}
	if err := r.repo.CreateWebAuthn(ctx, cred, r.maxWebAuthn); err != nil {
		return errors.Wrap(err, "[Registry.CreateWebAuthn]")
	}
	return nil
}

func (r *Registry) GetWebAuthn(ctx context.Context, kind Kind, id []byte) (*Credential, error) {
	cred, err := r.repo.GetWebAuthn(ctx, kind, id)
	return cred, errors.Wrap(err, "[Registry.GetWebAuthn]")
}

func (r *Registry) ListWebAuthn(ctx context.Context, userID string, kind Kind) ([]*Credential, error) {
	creds, err := r.repo.ListWebAuthn(ctx, userID, kind)
	return creds, errors.Wrap(err, "[Registry.ListWebAuthn]")
}

// DeleteWebAuthn removes one of userID's credentials. Deleting a credential the
// user does not own is InvalidInput.
func (r *Registry) DeleteWebAuthn(ctx context.Context, userID string, kind Kind, id []byte) error {
	deleted, err := r.repo.DeleteWebAuthn(ctx, userID, kind, id)
	if err != nil {
		return errors.Wrap(err, "[Registry.DeleteWebAuthn]")
	}
	if !deleted {
		return apperrors.New(apperrors.KindInvalidInput, "invalid credential id")
	}
	return nil
}

// Verify checks proof against cred, dispatching on its kind.
func (r *Registry) Verify(ctx context.Context, cred *Credential, proof Proof) (bool, error) {
	switch cred.Kind {
	case KindTOTP:
		key, err := r.envelope.Decrypt(ctx, cred.KeyMaterial)
		if err != nil {
			return false, errors.Wrap(err, "[Registry.Verify] decrypt totp key")
		}
		ok, err := totp.ValidateCustom(proof.Code, TOTPSecret(key), r.nowTime().UTC(), totpOpts)
		if err != nil {
			return false, nil
		}
		return ok, nil
	case KindPasskey, KindSecurityKey:
		ok, err := VerifySignature(cred.Algorithm, cred.KeyMaterial, proof.Message, proof.Signature)
		return ok, errors.Wrap(err, "[Registry.Verify]")
	default:
		return false, errors.Errorf("[Registry.Verify] unknown credential kind %d", cred.Kind)
	}
}
