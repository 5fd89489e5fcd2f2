package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/credentials"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/mail"
	"github.com/jrsteele09/go-auth-hub/passwordreset"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/users"
	"github.com/jrsteele09/go-auth-hub/webauthn"
)

// ForgotPassword starts a reset for the account behind email and mails the code.
func (s *Service) ForgotPassword(ctx context.Context, c Caller, email string) (*Outcome, error) {
	ipBucket := s.deps.Limiters.ForgotPasswordIP
	if err := s.checkBucket("forgot_password_ip", ipBucket.Check(c.IP, 1)); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrMissingFields
	}
	if err := s.validateEmail(email); err != nil {
		return nil, err
	}
	user, err := s.deps.Store.Repos().Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ForgotPassword] lookup")
	}
	if user == nil {
		return nil, ErrAccountNotFound
	}
	if !ipBucket.Consume(c.IP, 1) {
		return nil, s.rateLimited("forgot_password_ip")
	}
	if !s.deps.Limiters.ForgotPasswordUser.Consume(user.ID, 1) {
		return nil, s.rateLimited("forgot_password_user")
	}

	token, err := sessions.GenerateSessionToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ForgotPassword] token")
	}
	reset, err := s.deps.Resets.CreatePasswordResetSession(ctx, token, user.ID, user.Email)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ForgotPassword]")
	}
	if err := s.sendMail(ctx, mail.PasswordResetEmail(s.appName, reset.Email, reset.Code)); err != nil {
		return nil, errors.Wrap(err, "[Service.ForgotPassword] send")
	}
	return &Outcome{
		Redirect:     ResetVerifyEmailPath,
		ResetSession: &IssuedToken{Token: token, ExpiresAt: reset.ExpiresAt},
	}, nil
}

// loadReset resolves the reset cookie token.
func (s *Service) loadReset(ctx context.Context, token string) (*passwordreset.Session, *users.User, error) {
	reset, user, err := s.deps.Resets.ValidatePasswordResetSessionToken(ctx, token)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Service.loadReset]")
	}
	if err := requireResetSession(reset); err != nil {
		return nil, nil, err
	}
	return reset, user, nil
}

// VerifyResetEmail checks the mailed reset code. Proving the inbox also verifies
// the account email when it is still the address the code went to.
func (s *Service) VerifyResetEmail(ctx context.Context, c Caller, resetToken, code string) (*Outcome, error) {
	reset, user, err := s.loadReset(ctx, resetToken)
	if err != nil {
		return nil, err
	}
	if reset.EmailVerified {
		return nil, errors.Wrap(apperrors.ErrForbidden, "[Service.VerifyResetEmail] already verified")
	}
	bucket := s.deps.Limiters.EmailVerify
	if err := s.checkBucket("email_verify", bucket.Check(user.ID, 1)); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, ErrMissingFields
	}
	if !bucket.Consume(user.ID, 1) {
		return nil, s.rateLimited("email_verify")
	}
	if !constantTimeEqual(reset.Code, code) {
		s.metrics.AuthEvent("reset_email", false)
		return nil, ErrInvalidCode
	}
	bucket.Reset(user.ID)

	if err := s.deps.Resets.SetPasswordResetSessionAsEmailVerified(ctx, reset.ID); err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyResetEmail]")
	}
	matched, err := s.deps.Store.Repos().Users.SetEmailVerifiedIfEmailMatches(ctx, user.ID, reset.Email)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyResetEmail] verify user email")
	}
	if !matched {
		return nil, ErrRestartReset
	}
	s.metrics.AuthEvent("reset_email", true)

	if user.Registered2FA() {
		return &Outcome{Redirect: passwordreset.TwoFactorRedirect(user.Factors)}, nil
	}
	return &Outcome{Redirect: ResetPasswordPath}, nil
}

// resetSecondFactor loads a reset that has passed the email step and still owes
// a second factor.
func (s *Service) resetSecondFactor(ctx context.Context, resetToken string) (*passwordreset.Session, *users.User, error) {
	reset, user, err := s.loadReset(ctx, resetToken)
	if err != nil {
		return nil, nil, err
	}
	if !reset.EmailVerified || !user.Registered2FA() || reset.TwoFactorVerified {
		return nil, nil, errors.Wrap(apperrors.ErrForbidden, "[Service.resetSecondFactor]")
	}
	return reset, user, nil
}

// VerifyResetTOTP passes the reset's second factor with an authenticator code.
func (s *Service) VerifyResetTOTP(ctx context.Context, c Caller, resetToken, code string) (*Outcome, error) {
	reset, user, err := s.resetSecondFactor(ctx, resetToken)
	if err != nil {
		return nil, err
	}
	if !user.Factors.TOTP {
		return nil, errors.Wrap(apperrors.ErrForbidden, "[Service.VerifyResetTOTP] totp not registered")
	}
	if err := s.checkTOTPCode(ctx, user.ID, code); err != nil {
		return nil, err
	}
	return s.resetTwoFactorPassed(ctx, reset)
}

// VerifyResetWebAuthn passes the reset's second factor with a passkey or
// security key belonging to the account.
func (s *Service) VerifyResetWebAuthn(ctx context.Context, c Caller, resetToken string, kind credentials.Kind, in webauthn.AssertionInput) (*Outcome, error) {
	reset, user, err := s.resetSecondFactor(ctx, resetToken)
	if err != nil {
		return nil, err
	}
	if !hasFactor(user.Factors, kind) {
		return nil, errors.Wrapf(apperrors.ErrForbidden, "[Service.VerifyResetWebAuthn] %s not registered", kind)
	}
	if err := s.checkAssertion(ctx, user.ID, kind, in); err != nil {
		return nil, err
	}
	return s.resetTwoFactorPassed(ctx, reset)
}

// ResetWithRecoveryCode spends the recovery code in place of the second factor.
// As with a signed-in redemption, every factor of the account is removed.
func (s *Service) ResetWithRecoveryCode(ctx context.Context, c Caller, resetToken, code string) (*Outcome, error) {
	reset, user, err := s.resetSecondFactor(ctx, resetToken)
	if err != nil {
		return nil, err
	}
	if err := s.redeemRecoveryCode(ctx, c, user.ID, code); err != nil {
		return nil, err
	}
	return s.resetTwoFactorPassed(ctx, reset)
}

func (s *Service) resetTwoFactorPassed(ctx context.Context, reset *passwordreset.Session) (*Outcome, error) {
	if err := s.deps.Resets.SetPasswordResetSessionAs2FAVerified(ctx, reset.ID); err != nil {
		return nil, errors.Wrap(err, "[Service.resetTwoFactorPassed]")
	}
	return &Outcome{Redirect: ResetPasswordPath}, nil
}

// ResetPassword sets a new password once the reset has passed its checks, ends
// every session of the account and signs the browser in.
func (s *Service) ResetPassword(ctx context.Context, c Caller, resetToken, password string) (*Outcome, error) {
	reset, user, err := s.loadReset(ctx, resetToken)
	if err != nil {
		return nil, err
	}
	if !reset.EmailVerified {
		return nil, errors.Wrap(apperrors.ErrForbidden, "[Service.ResetPassword] email not verified")
	}
	if user.Registered2FA() && !reset.TwoFactorVerified {
		return nil, errors.Wrap(apperrors.ErrForbidden, "[Service.ResetPassword] second factor required")
	}
	if password == "" {
		return nil, ErrMissingFields
	}
	if err := s.validatePassword(password); err != nil {
		return nil, err
	}

	if err := s.replacePassword(ctx, user.ID, password); err != nil {
		return nil, errors.Wrap(err, "[Service.ResetPassword]")
	}
	issued, err := s.issueSession(ctx, s.deps.Sessions, user.ID, reset.TwoFactorVerified)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ResetPassword]")
	}

	s.metrics.AuthEvent("password_reset", true)
	s.record(ctx, audit.PasswordReset, c, user.ID, nil)
	return &Outcome{
		Redirect:          nextStep(user, &sessions.Session{TwoFactorVerified: reset.TwoFactorVerified}),
		Session:           issued,
		ClearResetSession: true,
	}, nil
}
