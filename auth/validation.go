package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/passwordreset"
	"github.com/jrsteele09/go-auth-hub/users"
)

// NormalizeEmail is the form every email is stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) validateEmail(email string) error {
	if email == "" || !users.VerifyEmailInput(email) {
		return ErrInvalidEmail
	}
	return nil
}

func (s *Service) validatePassword(password string) error {
	if err := users.ValidatePasswordStrength(password, s.passwordPolicy()); err != nil {
		return apperrors.New(apperrors.KindInvalidInput, err.Error())
	}
	return nil
}

// requireSession rejects callers without a signed-in session.
func requireSession(c Caller) error {
	if c.Session == nil || c.User == nil {
		return apperrors.ErrNotAuthenticated
	}
	return nil
}

// requireVerifiedEmail also requires a session.
func requireVerifiedEmail(c Caller) error {
	if err := requireSession(c); err != nil {
		return err
	}
	if !c.User.EmailVerified {
		return errors.Wrap(apperrors.ErrForbidden, "email not verified")
	}
	return nil
}

// require2FA lets through users without a second factor and users whose
// session has passed it.
func require2FA(c Caller) error {
	if err := requireSession(c); err != nil {
		return err
	}
	if c.User.Registered2FA() && !c.Session.TwoFactorVerified {
		return errors.Wrap(apperrors.ErrForbidden, "second factor required")
	}
	return nil
}

// requireEnrolment gates changes to the second factors themselves.
func requireEnrolment(c Caller) error {
	if err := requireVerifiedEmail(c); err != nil {
		return err
	}
	return require2FA(c)
}

func requireResetSession(session *passwordreset.Session) error {
	if session == nil {
		return apperrors.ErrNotAuthenticated
	}
	return nil
}

// rateLimited marks err as a rate limit rejection by bucket.
func (s *Service) rateLimited(bucket string) error {
	s.metrics.RateLimit(bucket)
	return errors.Wrap(apperrors.ErrRateLimited, bucket)
}

// checkBucket is the passive pre-check done before any expensive work.
func (s *Service) checkBucket(name string, ok bool) error {
	if !ok {
		return s.rateLimited(name)
	}
	return nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
