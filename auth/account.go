package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/credentials"
	"github.com/jrsteele09/go-auth-hub/federation"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/internal/utils"
	"github.com/jrsteele09/go-auth-hub/mail"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/store"
	"github.com/jrsteele09/go-auth-hub/users"
	"github.com/jrsteele09/go-auth-hub/webauthn"
)

// Register creates a password account, signs it in without a second factor and
// mails an email verification code.
func (s *Service) Register(ctx context.Context, c Caller, in RegisterInput) (*Outcome, error) {
	limiter := s.deps.Limiters.Register
	if err := s.checkBucket("register", limiter.Check(c.IP, 1)); err != nil {
		return nil, err
	}

	email := NormalizeEmail(in.Email)
	if email == "" || in.Username == "" || in.Password == "" {
		return nil, ErrMissingFields
	}
	if err := s.validateEmail(email); err != nil {
		return nil, err
	}
	if !users.VerifyUsernameInput(in.Username) {
		return nil, ErrInvalidUsername
	}
	existing, err := s.deps.Store.Repos().Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] email lookup")
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}
	if err := s.validatePassword(in.Password); err != nil {
		return nil, err
	}
	if !limiter.Consume(c.IP, 1) {
		return nil, s.rateLimited("register")
	}

	hash, err := users.HashPassword(in.Password)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] hash password")
	}
	user, err := s.createUser(ctx, s.deps.Store.Repos(), email, in.Username, "", hash, false)
	if err != nil {
		s.metrics.AuthEvent("register", false)
		return nil, errors.Wrap(err, "[Service.Register]")
	}

	req, err := s.deps.Verifications.CreateRequest(ctx, user.ID, user.Email)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] verification request")
	}
	// Best effort: the account exists either way and the code can be resent.
	_ = s.sendMail(ctx, mail.VerificationEmail(s.appName, req.Email, req.Code))

	issued, err := s.issueSession(ctx, s.deps.Sessions, user.ID, false)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register]")
	}

	s.metrics.AuthEvent("register", true)
	s.record(ctx, audit.UserCreated, c, user.ID, map[string]string{"email": user.Email, "username": user.Username})
	return &Outcome{Redirect: sessions.SetupPath, Session: issued, EmailVerification: req}, nil
}

// createUser stores a new account with a fresh recovery code.
func (s *Service) createUser(ctx context.Context, repos store.Repos, email, username, name, passwordHash string, emailVerified bool) (*users.User, error) {
	id, err := users.GenerateID()
	if err != nil {
		return nil, errors.Wrap(err, "[Service.createUser] id")
	}
	recoveryCode, err := utils.RandomRecoveryCode()
	if err != nil {
		return nil, errors.Wrap(err, "[Service.createUser] recovery code")
	}
	encrypted, err := s.deps.Envelope.EncryptString(ctx, recoveryCode)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.createUser] encrypt recovery code")
	}
	now := s.nowTime()
	user := &users.User{
		ID:            id,
		Email:         email,
		Username:      username,
		Name:          name,
		PasswordHash:  passwordHash,
		RecoveryCode:  encrypted,
		Role:          users.RoleUser,
		EmailVerified: emailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repos.Users.Create(ctx, user); err != nil {
		return nil, errors.Wrap(err, "[Service.createUser] create")
	}
	return user, nil
}

// Login checks a password and starts a session that still needs its second
// factor.
func (s *Service) Login(ctx context.Context, c Caller, in LoginInput) (*Outcome, error) {
	ipBucket := s.deps.Limiters.LoginIP
	if err := s.checkBucket("login_ip", ipBucket.Check(c.IP, 1)); err != nil {
		return nil, err
	}

	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ErrMissingFields
	}
	if err := s.validateEmail(email); err != nil {
		return nil, err
	}
	user, err := s.deps.Store.Repos().Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] lookup")
	}
	if user == nil {
		return nil, ErrAccountNotFound
	}
	if !ipBucket.Consume(c.IP, 1) {
		return nil, s.rateLimited("login_ip")
	}
	if !s.deps.Limiters.LoginThrottle.Consume(user.ID) {
		return nil, s.rateLimited("login_throttle")
	}
	if !users.CheckPasswordHash(in.Password, user.PasswordHash) {
		s.metrics.AuthEvent("login", false)
		return nil, ErrInvalidPassword
	}
	s.deps.Limiters.LoginThrottle.Reset(user.ID)

	return s.signIn(ctx, c, user, false, "password")
}

// signIn issues a session for user and records the login.
func (s *Service) signIn(ctx context.Context, c Caller, user *users.User, twoFactorVerified bool, method string) (*Outcome, error) {
	issued, err := s.issueSession(ctx, s.deps.Sessions, user.ID, twoFactorVerified)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.signIn]")
	}
	if err := s.deps.Store.Repos().Users.UpdateLastLogin(ctx, user.ID, s.nowTime()); err != nil {
		return nil, errors.Wrap(err, "[Service.signIn] last login")
	}

	s.metrics.AuthEvent("login", true)
	s.record(ctx, audit.UserLogin, c, user.ID, map[string]string{"method": method})
	return &Outcome{
		Redirect: nextStep(user, &sessions.Session{TwoFactorVerified: twoFactorVerified}),
		Session:  issued,
	}, nil
}

// Logout ends the caller's session.
func (s *Service) Logout(ctx context.Context, c Caller) (*Outcome, error) {
	if err := requireSession(c); err != nil {
		return nil, err
	}
	if err := s.deps.Sessions.InvalidateSession(ctx, c.Session.ID); err != nil {
		return nil, errors.Wrap(err, "[Service.Logout]")
	}
	s.record(ctx, audit.UserLogout, c, c.User.ID, nil)
	return &Outcome{Redirect: LoginPath, ClearSession: true}, nil
}

// PasskeyLogin signs a user in with a passkey alone. The passkey counts as both
// factors, so the session starts verified.
func (s *Service) PasskeyLogin(ctx context.Context, c Caller, in webauthn.AssertionInput) (*Outcome, error) {
	cred, err := s.deps.WebAuthn.VerifyAssertion(ctx, in, credentials.KindPasskey)
	if err != nil {
		s.metrics.AuthEvent("passkey_login", false)
		return nil, err
	}
	user, err := s.deps.Store.Repos().Users.GetByID(ctx, cred.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.PasskeyLogin] lookup")
	}
	if user == nil {
		return nil, errors.Wrap(apperrors.ErrInvalidCredential, "[Service.PasskeyLogin] orphaned credential")
	}
	return s.signIn(ctx, c, user, true, "passkey")
}

// FederatedLogin signs in the user behind a provider identity. An unknown
// identity is linked to the account with the same verified email, or becomes a
// new account without a password.
func (s *Service) FederatedLogin(ctx context.Context, c Caller, provider string, identity *federation.Identity) (*Outcome, error) {
	if identity == nil || identity.ProviderUserID == "" {
		return nil, ErrMissingFields
	}

	var user *users.User
	created := false
	err := s.deps.Store.WithTx(ctx, func(ctx context.Context, tx store.Repos) error {
		linked, err := tx.Users.GetByExternalID(ctx, provider, identity.ProviderUserID)
		if err != nil {
			return errors.Wrap(err, "linked lookup")
		}
		if linked != nil {
			user = linked
			return nil
		}

		email := NormalizeEmail(identity.Email)
		if email == "" {
			return ErrProviderWithoutEmail
		}
		if identity.EmailVerified {
			existing, err := tx.Users.GetByEmail(ctx, email)
			if err != nil {
				return errors.Wrap(err, "email lookup")
			}
			if existing != nil {
				user = existing
				return errors.Wrap(tx.Users.LinkExternalID(ctx, user.ID, provider, identity.ProviderUserID), "link existing")
			}
		}

		user, err = s.createUser(ctx, tx, email, federatedUsername(provider, identity), identity.Name, "", identity.EmailVerified)
		if err != nil {
			return err
		}
		created = true
		return errors.Wrap(tx.Users.LinkExternalID(ctx, user.ID, provider, identity.ProviderUserID), "link new")
	})
	if err != nil {
		s.metrics.AuthEvent("federated_login", false)
		return nil, errors.Wrap(err, "[Service.FederatedLogin]")
	}

	if created {
		s.record(ctx, audit.UserCreated, c, user.ID, map[string]string{"email": user.Email, "provider": provider})
	}
	return s.signIn(ctx, c, user, false, provider)
}

// federatedUsername uses the provider's handle when it is a valid username.
func federatedUsername(provider string, identity *federation.Identity) string {
	if users.VerifyUsernameInput(identity.Username) {
		return identity.Username
	}
	name := provider + "-" + identity.ProviderUserID
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
