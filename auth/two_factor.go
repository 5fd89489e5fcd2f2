package auth

import (
	"context"
	"encoding/base64"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/credentials"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/users"
	"github.com/jrsteele09/go-auth-hub/webauthn"
)

// hasFactor reports whether factors include the credential kind.
func hasFactor(factors users.Factors, kind credentials.Kind) bool {
	switch kind {
	case credentials.KindTOTP:
		return factors.TOTP
	case credentials.KindPasskey:
		return factors.Passkey
	case credentials.KindSecurityKey:
		return factors.SecurityKey
	}
	return false
}

// VerifyTOTP completes the caller's second factor with an authenticator code.
func (s *Service) VerifyTOTP(ctx context.Context, c Caller, code string) (*Outcome, error) {
	if err := requireVerifiedEmail(c); err != nil {
		return nil, err
	}
	if !c.User.Factors.TOTP {
		return nil, errors.Wrap(apperrors.ErrForbidden, "[Service.VerifyTOTP] totp not registered")
	}
	if err := s.checkTOTPCode(ctx, c.User.ID, code); err != nil {
		s.metrics.AuthEvent("totp", false)
		return nil, err
	}
	if err := s.deps.Sessions.SetSessionAs2FAVerified(ctx, c.Session.ID); err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyTOTP]")
	}
	s.metrics.AuthEvent("totp", true)
	return &Outcome{Redirect: HomePath}, nil
}

// checkTOTPCode verifies code against the stored seed under the TOTP bucket.
func (s *Service) checkTOTPCode(ctx context.Context, userID, code string) error {
	bucket := s.deps.Limiters.TOTP
	if err := s.checkBucket("totp", bucket.Check(userID, 1)); err != nil {
		return err
	}
	if code == "" {
		return ErrMissingFields
	}
	if !bucket.Consume(userID, 1) {
		return s.rateLimited("totp")
	}
	ok, err := s.deps.Credentials.VerifyTOTP(ctx, userID, code)
	if err != nil {
		return errors.Wrap(err, "[Service.checkTOTPCode]")
	}
	if !ok {
		return ErrInvalidCode
	}
	bucket.Reset(userID)
	return nil
}

// VerifyWebAuthn2FA completes the caller's second factor with a passkey or
// security key assertion.
func (s *Service) VerifyWebAuthn2FA(ctx context.Context, c Caller, kind credentials.Kind, in webauthn.AssertionInput) (*Outcome, error) {
	if err := requireVerifiedEmail(c); err != nil {
		return nil, err
	}
	if !hasFactor(c.User.Factors, kind) {
		return nil, errors.Wrapf(apperrors.ErrForbidden, "[Service.VerifyWebAuthn2FA] %s not registered", kind)
	}
	if err := s.checkAssertion(ctx, c.User.ID, kind, in); err != nil {
		s.metrics.AuthEvent(kind.String(), false)
		return nil, err
	}
	if err := s.deps.Sessions.SetSessionAs2FAVerified(ctx, c.Session.ID); err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyWebAuthn2FA]")
	}
	s.metrics.AuthEvent(kind.String(), true)
	return &Outcome{Redirect: HomePath}, nil
}

// checkAssertion verifies in and requires the credential to belong to userID.
func (s *Service) checkAssertion(ctx context.Context, userID string, kind credentials.Kind, in webauthn.AssertionInput) error {
	cred, err := s.deps.WebAuthn.VerifyAssertion(ctx, in, kind)
	if err != nil {
		return err
	}
	if cred.UserID != userID {
		return errors.Wrap(apperrors.ErrInvalidCredential, "[Service.checkAssertion] credential owned by another user")
	}
	return nil
}

// RegisterTOTP enrols an authenticator app. The client generates the seed and
// proves it with a first code.
func (s *Service) RegisterTOTP(ctx context.Context, c Caller, encodedKey, code string) (*Outcome, error) {
	if err := requireEnrolment(c); err != nil {
		return nil, err
	}
	if !s.deps.Limiters.TOTPUpdate.Consume(c.User.ID, 1) {
		return nil, s.rateLimited("totp_update")
	}
	if encodedKey == "" || code == "" {
		return nil, ErrMissingFields
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(key) != credentials.TOTPKeySize {
		return nil, ErrInvalidKey
	}
	if !s.deps.Credentials.CheckTOTPCode(key, code) {
		return nil, ErrInvalidCode
	}
	if err := s.deps.Credentials.UpdateTOTPKey(ctx, c.User.ID, key); err != nil {
		return nil, errors.Wrap(err, "[Service.RegisterTOTP]")
	}
	return s.enrolled(ctx, c, "totp")
}

// DeleteTOTP disconnects the caller's authenticator app.
func (s *Service) DeleteTOTP(ctx context.Context, c Caller) error {
	if err := requireEnrolment(c); err != nil {
		return err
	}
	if !s.deps.Limiters.TOTPUpdate.Consume(c.User.ID, 1) {
		return s.rateLimited("totp_update")
	}
	return errors.Wrap(s.deps.Credentials.DeleteTOTP(ctx, c.User.ID), "[Service.DeleteTOTP]")
}

// RegisterWebAuthn enrols a passkey or security key from an attestation.
func (s *Service) RegisterWebAuthn(ctx context.Context, c Caller, kind credentials.Kind, in webauthn.AttestationInput) (*Outcome, error) {
	if err := requireEnrolment(c); err != nil {
		return nil, err
	}
	in.UserID = c.User.ID
	in.Kind = kind
	if _, err := s.deps.WebAuthn.VerifyAttestation(ctx, in); err != nil {
		return nil, err
	}
	return s.enrolled(ctx, c, kind.String())
}

// enrolled marks the session verified after a new factor. A first factor sends
// the user to note down the recovery code.
func (s *Service) enrolled(ctx context.Context, c Caller, factor string) (*Outcome, error) {
	if err := s.deps.Sessions.SetSessionAs2FAVerified(ctx, c.Session.ID); err != nil {
		return nil, errors.Wrap(err, "[Service.enrolled]")
	}
	s.record(ctx, audit.UserUpdated, c, c.User.ID, map[string]string{"factor_added": factor})
	if !c.User.Registered2FA() {
		return &Outcome{Redirect: RecoveryCodePath}, nil
	}
	return &Outcome{Redirect: HomePath}, nil
}

// DeleteWebAuthn removes one of the caller's passkeys or security keys.
func (s *Service) DeleteWebAuthn(ctx context.Context, c Caller, kind credentials.Kind, encodedID string) error {
	if err := requireEnrolment(c); err != nil {
		return err
	}
	id := decodeCredentialID(encodedID)
	if len(id) == 0 {
		return ErrMissingFields
	}
	return errors.Wrap(s.deps.Credentials.DeleteWebAuthn(ctx, c.User.ID, kind, id), "[Service.DeleteWebAuthn]")
}

// decodeCredentialID accepts standard base64 and, for ids carried in a URL
// path, unpadded base64url.
func decodeCredentialID(encoded string) []byte {
	if id, err := base64.StdEncoding.DecodeString(encoded); err == nil {
		return id
	}
	if id, err := base64.RawURLEncoding.DecodeString(encoded); err == nil {
		return id
	}
	return nil
}

// ListWebAuthn returns the caller's credentials of kind.
func (s *Service) ListWebAuthn(ctx context.Context, c Caller, kind credentials.Kind) ([]*credentials.Credential, error) {
	if err := require2FA(c); err != nil {
		return nil, err
	}
	creds, err := s.deps.Credentials.ListWebAuthn(ctx, c.User.ID, kind)
	return creds, errors.Wrap(err, "[Service.ListWebAuthn]")
}
