package auth_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/auth"
	"github.com/jrsteele09/go-auth-hub/challenge"
	"github.com/jrsteele09/go-auth-hub/credentials"
	"github.com/jrsteele09/go-auth-hub/emailverification"
	"github.com/jrsteele09/go-auth-hub/encryption"
	"github.com/jrsteele09/go-auth-hub/mail/mailtest"
	"github.com/jrsteele09/go-auth-hub/passwordreset"
	"github.com/jrsteele09/go-auth-hub/ratelimit"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/settings"
	"github.com/jrsteele09/go-auth-hub/store/memstore"
	"github.com/jrsteele09/go-auth-hub/webauthn"
	"github.com/jrsteele09/go-auth-hub/webauthn/webauthntest"
)

const (
	rpID     = "auth.example.com"
	origin   = "https://auth.example.com"
	password = "Str0ng!Passw0rd"
)

type testFixture struct {
	ctx      context.Context
	now      time.Time
	store    *memstore.Store
	mailer   *mailtest.Recorder
	sessions *sessions.Manager
	resets   *passwordreset.Manager
	settings *settings.Manager
	service  *auth.Service
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		ctx:    context.Background(),
		now:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		store:  memstore.New(),
		mailer: &mailtest.Recorder{},
	}
	clock := func() time.Time { return f.now }
	repos := f.store.Repos()

	key := make([]byte, encryption.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	envelope, err := encryption.New(encryption.StaticKeySource(key))
	require.NoError(t, err)

	f.sessions, err = sessions.NewManager(repos.Sessions, sessions.WithNowTime(clock))
	require.NoError(t, err)
	f.resets, err = passwordreset.NewManager(repos.ResetSessions, passwordreset.WithNowTime(clock))
	require.NoError(t, err)
	verifications, err := emailverification.NewManager(repos.EmailVerifications, emailverification.WithNowTime(clock))
	require.NoError(t, err)
	registry, err := credentials.NewRegistry(repos.Credentials, envelope, credentials.WithNowTime(clock))
	require.NoError(t, err)
	challenges := challenge.NewStore()
	verifier, err := webauthn.NewVerifier(rpID, origin, challenges, registry)
	require.NoError(t, err)
	recorder, err := audit.NewRecorder(repos.Audit, audit.WithNowTime(clock))
	require.NoError(t, err)
	f.settings, err = settings.NewManager(repos.Settings, envelope)
	require.NoError(t, err)

	f.service, err = auth.NewService(auth.Dependencies{
		Store:         f.store,
		Envelope:      envelope,
		Limiters:      ratelimit.NewLimiters(ratelimit.WithNowTime(clock)),
		Challenges:    challenges,
		Sessions:      f.sessions,
		Resets:        f.resets,
		Verifications: verifications,
		Credentials:   registry,
		WebAuthn:      verifier,
		Mailer:        f.mailer,
		Audit:         recorder,
		Settings:      f.settings,
	}, auth.WithNowTime(clock))
	require.NoError(t, err)
	return f
}

// caller resolves token the way the session middleware does.
func (f *testFixture) caller(t *testing.T, token string) auth.Caller {
	t.Helper()
	session, user, err := f.sessions.ValidateSessionToken(f.ctx, token)
	require.NoError(t, err)
	return auth.Caller{Session: session, User: user, IP: "203.0.113.7"}
}

// register creates an account and returns its session token.
func (f *testFixture) register(t *testing.T, email, username string) string {
	t.Helper()
	out, err := f.service.Register(f.ctx, auth.Caller{IP: "198.51.100." + username[:1]}, auth.RegisterInput{
		Email:    email,
		Username: username,
		Password: password,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Session)
	return out.Session.Token
}

// registerVerified creates an account whose email is already verified.
func (f *testFixture) registerVerified(t *testing.T, email, username string) string {
	t.Helper()
	token := f.register(t, email, username)
	c := f.caller(t, token)
	ok, err := f.store.Repos().Users.SetEmailVerifiedIfEmailMatches(f.ctx, c.User.ID, c.User.Email)
	require.NoError(t, err)
	require.True(t, ok)
	return token
}

func (f *testFixture) login(t *testing.T, email, pw string) *auth.Outcome {
	t.Helper()
	out, err := f.service.Login(f.ctx, auth.Caller{IP: "192.0.2.1"}, auth.LoginInput{Email: email, Password: pw})
	require.NoError(t, err)
	return out
}

func (f *testFixture) totpCode(t *testing.T, key []byte) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(credentials.TOTPSecret(key), f.now, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// enrolTOTP registers a fresh authenticator app on the session and returns its seed.
func (f *testFixture) enrolTOTP(t *testing.T, token string) []byte {
	t.Helper()
	key := make([]byte, credentials.TOTPKeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	_, err = f.service.RegisterTOTP(f.ctx, f.caller(t, token), base64.StdEncoding.EncodeToString(key), f.totpCode(t, key))
	require.NoError(t, err)
	return key
}

// enrolPasskey registers a software authenticator as a passkey.
func (f *testFixture) enrolPasskey(t *testing.T, token string) *webauthntest.Authenticator {
	t.Helper()
	a, err := webauthntest.NewES256(rpID)
	require.NoError(t, err)
	challenge, err := f.service.Challenge()
	require.NoError(t, err)
	att, err := a.Attest(challenge, origin)
	require.NoError(t, err)
	_, err = f.service.RegisterWebAuthn(f.ctx, f.caller(t, token), credentials.KindPasskey, webauthn.AttestationInput{
		Name:              "laptop",
		AttestationObject: att.AttestationObject,
		ClientDataJSON:    att.ClientDataJSON,
	})
	require.NoError(t, err)
	return a
}

func (f *testFixture) assertion(t *testing.T, a *webauthntest.Authenticator) webauthn.AssertionInput {
	t.Helper()
	challenge, err := f.service.Challenge()
	require.NoError(t, err)
	as, err := a.Assert(challenge, origin)
	require.NoError(t, err)
	return webauthn.AssertionInput{
		CredentialID:      as.CredentialID,
		AuthenticatorData: as.AuthenticatorData,
		ClientDataJSON:    as.ClientDataJSON,
		Signature:         as.Signature,
	}
}
