package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/challenge"
	"github.com/jrsteele09/go-auth-hub/credentials"
	"github.com/jrsteele09/go-auth-hub/emailverification"
	"github.com/jrsteele09/go-auth-hub/encryption"
	"github.com/jrsteele09/go-auth-hub/internal/metrics"
	"github.com/jrsteele09/go-auth-hub/mail"
	"github.com/jrsteele09/go-auth-hub/passwordreset"
	"github.com/jrsteele09/go-auth-hub/ratelimit"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/settings"
	"github.com/jrsteele09/go-auth-hub/store"
	"github.com/jrsteele09/go-auth-hub/users"
	"github.com/jrsteele09/go-auth-hub/webauthn"
)

const defaultAppName = "Auth Hub"

// Dependencies holds everything the Service is built from.
type Dependencies struct {
	Store         store.Store
	Envelope      *encryption.Envelope
	Limiters      *ratelimit.Limiters
	Challenges    *challenge.Store
	Sessions      *sessions.Manager
	Resets        *passwordreset.Manager
	Verifications *emailverification.Manager
	Credentials   *credentials.Registry
	WebAuthn      *webauthn.Verifier
	Mailer        mail.Mailer
	Audit         *audit.Recorder
	// Settings is optional; without it the default password policy applies.
	Settings *settings.Manager
}

// Service runs the authentication flows: sign-in, second factors, enrolment,
// password changes, email verification and password reset.
type Service struct {
	deps    Dependencies
	metrics *metrics.Metrics
	appName string
	nowTime func() time.Time
}

// Option defines a function type to modify the Service instance.
type Option func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithMetrics records authentication outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAppName sets the name used in outgoing mail.
func WithAppName(name string) Option {
	return func(s *Service) {
		s.appName = name
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(deps Dependencies, options ...Option) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("[NewService] store is required")
	case deps.Envelope == nil:
		return nil, errors.New("[NewService] envelope is required")
	case deps.Limiters == nil:
		return nil, errors.New("[NewService] limiters are required")
	case deps.Challenges == nil:
		return nil, errors.New("[NewService] challenge store is required")
	case deps.Sessions == nil:
		return nil, errors.New("[NewService] session manager is required")
	case deps.Resets == nil:
		return nil, errors.New("[NewService] password reset manager is required")
	case deps.Verifications == nil:
		return nil, errors.New("[NewService] email verification manager is required")
	case deps.Credentials == nil:
		return nil, errors.New("[NewService] credential registry is required")
	case deps.WebAuthn == nil:
		return nil, errors.New("[NewService] webauthn verifier is required")
	case deps.Mailer == nil:
		return nil, errors.New("[NewService] mailer is required")
	}

	s := &Service{
		deps:    deps,
		appName: defaultAppName,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Challenge issues a single use WebAuthn challenge for any ceremony.
func (s *Service) Challenge() ([]byte, error) {
	c, err := s.deps.Challenges.Create()
	return c, errors.Wrap(err, "[Service.Challenge]")
}

func (s *Service) passwordPolicy() users.PasswordPolicy {
	if s.deps.Settings == nil {
		return users.DefaultPasswordPolicy()
	}
	return s.deps.Settings.Snapshot().Password
}

// issueSession creates a session with a fresh token.
func (s *Service) issueSession(ctx context.Context, manager *sessions.Manager, userID string, twoFactorVerified bool) (*IssuedToken, error) {
	token, err := sessions.GenerateSessionToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Service.issueSession] token")
	}
	session, err := manager.CreateSession(ctx, token, userID, twoFactorVerified)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.issueSession] create")
	}
	return &IssuedToken{Token: token, ExpiresAt: session.ExpiresAt}, nil
}

func (s *Service) record(ctx context.Context, event audit.EventType, c Caller, userID string, data any) {
	meta := c.meta()
	meta.UserID = userID
	s.deps.Audit.Record(ctx, event, meta, data)
}

func (s *Service) sendMail(ctx context.Context, msg mail.Message) error {
	if err := s.deps.Mailer.Send(ctx, msg); err != nil {
		log.Err(err).Str("to", msg.To).Str("subject", msg.Subject).Msg("failed to send mail")
		return err
	}
	return nil
}

// nextStep is where a signed-in user goes once the current step is done.
func nextStep(user *users.User, session *sessions.Session) string {
	switch {
	case !user.EmailVerified:
		return VerifyEmailPath
	case !user.Registered2FA():
		return sessions.SetupPath
	case !session.TwoFactorVerified:
		return sessions.TwoFactorRedirect(user.Factors)
	default:
		return HomePath
	}
}
