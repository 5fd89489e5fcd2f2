package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/mail"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/store"
	"github.com/jrsteele09/go-auth-hub/users"
)

// ChangePassword replaces the caller's password. Every other session and any
// pending reset is ended, and the caller gets a new session that keeps its
// second factor state.
func (s *Service) ChangePassword(ctx context.Context, c Caller, current, next string) (*Outcome, error) {
	if err := require2FA(c); err != nil {
		return nil, err
	}
	bucket := s.deps.Limiters.PasswordUpdate
	if err := s.checkBucket("password_update", bucket.Check(c.Session.ID, 1)); err != nil {
		return nil, err
	}
	if current == "" || next == "" {
		return nil, ErrMissingFields
	}
	if err := s.validatePassword(next); err != nil {
		return nil, err
	}
	if !bucket.Consume(c.Session.ID, 1) {
		return nil, s.rateLimited("password_update")
	}
	if !users.CheckPasswordHash(current, c.User.PasswordHash) {
		return nil, ErrInvalidPassword
	}
	bucket.Reset(c.Session.ID)

	if err := s.replacePassword(ctx, c.User.ID, next); err != nil {
		return nil, errors.Wrap(err, "[Service.ChangePassword]")
	}
	issued, err := s.issueSession(ctx, s.deps.Sessions, c.User.ID, c.Session.TwoFactorVerified)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ChangePassword]")
	}
	s.record(ctx, audit.UserUpdated, c, c.User.ID, map[string]string{"password": "changed"})
	return &Outcome{Redirect: HomePath, Session: issued}, nil
}

// replacePassword updates the hash and ends every session and reset of the user
// in one transaction.
func (s *Service) replacePassword(ctx context.Context, userID, password string) error {
	hash, err := users.HashPassword(password)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	return s.deps.Store.WithTx(ctx, func(ctx context.Context, tx store.Repos) error {
		if err := tx.Sessions.DeleteByUser(ctx, userID); err != nil {
			return errors.Wrap(err, "delete sessions")
		}
		if err := tx.ResetSessions.DeleteByUser(ctx, userID); err != nil {
			return errors.Wrap(err, "delete reset sessions")
		}
		return errors.Wrap(tx.Users.UpdatePasswordHash(ctx, userID, hash), "update hash")
	})
}

// RequestEmailVerification mails a new code for the pending request, or for the
// account email when there is none.
func (s *Service) RequestEmailVerification(ctx context.Context, c Caller, requestID string) (*Outcome, error) {
	if err := require2FA(c); err != nil {
		return nil, err
	}
	if !s.deps.Limiters.VerificationEmail.Consume(c.User.ID, 1) {
		return nil, s.rateLimited("verification_email")
	}
	pending, err := s.deps.Verifications.GetUserRequest(ctx, c.User.ID, requestID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.RequestEmailVerification]")
	}
	email := c.User.Email
	if pending != nil {
		email = pending.Email
	} else if c.User.EmailVerified {
		return nil, errors.Wrap(ErrVerificationExpired, "[Service.RequestEmailVerification] nothing to verify")
	}

	req, err := s.deps.Verifications.CreateRequest(ctx, c.User.ID, email)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.RequestEmailVerification]")
	}
	if err := s.sendMail(ctx, mail.VerificationEmail(s.appName, req.Email, req.Code)); err != nil {
		return nil, errors.Wrap(err, "[Service.RequestEmailVerification] send")
	}
	return &Outcome{Redirect: VerifyEmailPath, EmailVerification: req}, nil
}

// VerifyEmail checks a mailed code. On a match the request's address becomes the
// account email, verified, and pending resets are dropped.
func (s *Service) VerifyEmail(ctx context.Context, c Caller, requestID, code string) (*Outcome, error) {
	if err := require2FA(c); err != nil {
		return nil, err
	}
	bucket := s.deps.Limiters.EmailVerify
	if err := s.checkBucket("email_verify", bucket.Check(c.User.ID, 1)); err != nil {
		return nil, err
	}
	req, err := s.deps.Verifications.GetUserRequest(ctx, c.User.ID, requestID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyEmail]")
	}
	if req == nil {
		return nil, ErrVerificationExpired
	}
	if code == "" {
		return nil, ErrMissingFields
	}
	if !bucket.Consume(c.User.ID, 1) {
		return nil, s.rateLimited("email_verify")
	}
	if !constantTimeEqual(req.Code, code) {
		s.metrics.AuthEvent("email_verify", false)
		return nil, ErrInvalidCode
	}
	bucket.Reset(c.User.ID)

	err = s.deps.Store.WithTx(ctx, func(ctx context.Context, tx store.Repos) error {
		if err := tx.EmailVerifications.DeleteByUser(ctx, c.User.ID); err != nil {
			return errors.Wrap(err, "delete request")
		}
		if err := tx.ResetSessions.DeleteByUser(ctx, c.User.ID); err != nil {
			return errors.Wrap(err, "delete reset sessions")
		}
		return errors.Wrap(tx.Users.UpdateEmail(ctx, c.User.ID, req.Email, true), "update email")
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyEmail]")
	}

	s.metrics.AuthEvent("email_verify", true)
	s.record(ctx, audit.UserVerified, c, c.User.ID, map[string]string{"email": req.Email})
	redirect := HomePath
	if !c.User.Registered2FA() {
		redirect = sessions.SetupPath
	}
	return &Outcome{Redirect: redirect, ClearEmailVerification: true}, nil
}

// UpdateEmail starts a change of address. The account keeps its current email
// until the code sent to the new one is verified.
func (s *Service) UpdateEmail(ctx context.Context, c Caller, email string) (*Outcome, error) {
	if err := require2FA(c); err != nil {
		return nil, err
	}
	bucket := s.deps.Limiters.VerificationEmail
	if err := s.checkBucket("verification_email", bucket.Check(c.User.ID, 1)); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrMissingFields
	}
	if err := s.validateEmail(email); err != nil {
		return nil, err
	}
	existing, err := s.deps.Store.Repos().Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.UpdateEmail] lookup")
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}
	if !bucket.Consume(c.User.ID, 1) {
		return nil, s.rateLimited("verification_email")
	}

	req, err := s.deps.Verifications.CreateRequest(ctx, c.User.ID, email)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.UpdateEmail]")
	}
	if err := s.sendMail(ctx, mail.VerificationEmail(s.appName, req.Email, req.Code)); err != nil {
		return nil, errors.Wrap(err, "[Service.UpdateEmail] send")
	}
	return &Outcome{Redirect: VerifyEmailPath, EmailVerification: req}, nil
}
