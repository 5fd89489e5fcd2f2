package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-hub/audit"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/internal/utils"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/store"
)

// errRecoveryCodeChanged aborts the reset transaction when another request
// swapped the code first.
var errRecoveryCodeChanged = errors.New("recovery code changed concurrently")

// GetRecoveryCode decrypts the caller's recovery code for display.
func (s *Service) GetRecoveryCode(ctx context.Context, c Caller) (string, error) {
	if err := requireVerifiedEmail(c); err != nil {
		return "", err
	}
	if !c.User.Registered2FA() || !c.Session.TwoFactorVerified {
		return "", errors.Wrap(apperrors.ErrForbidden, "[Service.GetRecoveryCode] second factor required")
	}
	code, err := s.deps.Envelope.DecryptToString(ctx, c.User.RecoveryCode)
	if err != nil {
		return "", errors.Wrap(err, "[Service.GetRecoveryCode] decrypt")
	}
	return code, nil
}

// RegenerateRecoveryCode replaces the caller's recovery code and returns the
// new one. Registered factors are untouched.
func (s *Service) RegenerateRecoveryCode(ctx context.Context, c Caller) (string, error) {
	if err := requireVerifiedEmail(c); err != nil {
		return "", err
	}
	if !c.Session.TwoFactorVerified {
		return "", errors.Wrap(apperrors.ErrForbidden, "[Service.RegenerateRecoveryCode] second factor required")
	}
	code, encrypted, err := s.newRecoveryCode(ctx)
	if err != nil {
		return "", errors.Wrap(err, "[Service.RegenerateRecoveryCode]")
	}
	if err := s.deps.Store.Repos().Users.SetRecoveryCode(ctx, c.User.ID, encrypted); err != nil {
		return "", errors.Wrap(err, "[Service.RegenerateRecoveryCode] store")
	}
	s.record(ctx, audit.UserUpdated, c, c.User.ID, map[string]string{"recovery_code": "regenerated"})
	return code, nil
}

func (s *Service) newRecoveryCode(ctx context.Context) (string, []byte, error) {
	code, err := utils.RandomRecoveryCode()
	if err != nil {
		return "", nil, errors.Wrap(err, "generate recovery code")
	}
	encrypted, err := s.deps.Envelope.EncryptString(ctx, code)
	if err != nil {
		return "", nil, errors.Wrap(err, "encrypt recovery code")
	}
	return code, encrypted, nil
}

// ResetUser2FAWithRecoveryCode lets a signed-in user who lost their second factor
// start over: every factor is removed and the recovery code is replaced.
func (s *Service) ResetUser2FAWithRecoveryCode(ctx context.Context, c Caller, code string) (*Outcome, error) {
	if err := requireVerifiedEmail(c); err != nil {
		return nil, err
	}
	if !c.User.Registered2FA() || c.Session.TwoFactorVerified {
		return nil, errors.Wrap(apperrors.ErrForbidden, "[Service.ResetUser2FAWithRecoveryCode]")
	}
	if err := s.redeemRecoveryCode(ctx, c, c.User.ID, code); err != nil {
		return nil, err
	}
	return &Outcome{Redirect: sessions.SetupPath}, nil
}

// redeemRecoveryCode runs the recovery code reset under the RecoveryCode bucket.
func (s *Service) redeemRecoveryCode(ctx context.Context, c Caller, userID, code string) error {
	bucket := s.deps.Limiters.RecoveryCode
	if err := s.checkBucket("recovery_code", bucket.Check(userID, 1)); err != nil {
		return err
	}
	if code == "" {
		return ErrMissingFields
	}
	if !bucket.Consume(userID, 1) {
		return s.rateLimited("recovery_code")
	}
	ok, err := s.resetUser2FA(ctx, userID, code)
	if err != nil {
		return errors.Wrap(err, "[Service.redeemRecoveryCode]")
	}
	if !ok {
		s.metrics.AuthEvent("recovery_code", false)
		return ErrInvalidRecoveryCode
	}
	bucket.Reset(userID)
	s.metrics.AuthEvent("recovery_code", true)
	s.record(ctx, audit.TwoFactorReset, c, userID, nil)
	return nil
}

// resetUser2FA checks code and, in one transaction, swaps in a new recovery code,
// downgrades every session of the user and deletes every second factor. The
// swap only succeeds against the encrypted code that was read, so of two
// concurrent redemptions at most one wins.
func (s *Service) resetUser2FA(ctx context.Context, userID, code string) (bool, error) {
	user, err := s.deps.Store.Repos().Users.GetByID(ctx, userID)
	if err != nil {
		return false, errors.Wrap(err, "lookup")
	}
	if user == nil || len(user.RecoveryCode) == 0 {
		return false, nil
	}
	stored, err := s.deps.Envelope.DecryptToString(ctx, user.RecoveryCode)
	if err != nil {
		return false, errors.Wrap(err, "decrypt recovery code")
	}
	if !constantTimeEqual(stored, code) {
		return false, nil
	}
	_, encrypted, err := s.newRecoveryCode(ctx)
	if err != nil {
		return false, err
	}

	err = s.deps.Store.WithTx(ctx, func(ctx context.Context, tx store.Repos) error {
		swapped, err := tx.Users.CompareAndSwapRecoveryCode(ctx, userID, user.RecoveryCode, encrypted)
		if err != nil {
			return errors.Wrap(err, "swap recovery code")
		}
		if !swapped {
			return errRecoveryCodeChanged
		}
		if err := tx.Sessions.ClearTwoFactorByUser(ctx, userID); err != nil {
			return errors.Wrap(err, "downgrade sessions")
		}
		return errors.Wrap(tx.Credentials.DeleteAllForUser(ctx, userID), "delete credentials")
	})
	if errors.Is(err, errRecoveryCodeChanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
