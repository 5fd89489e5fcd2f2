package auth_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-hub/auth"
	"github.com/jrsteele09/go-auth-hub/federation"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/webauthn/webauthntest"
)

func TestRegisterStartsUnverifiedSession(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.service.Register(f.ctx, auth.Caller{IP: "198.51.100.1"}, auth.RegisterInput{
		Email:    "  Alice@Example.com ",
		Username: "alice",
		Password: password,
	})
	require.NoError(t, err)
	require.Equal(t, sessions.SetupPath, out.Redirect)
	require.NotNil(t, out.Session)
	require.NotNil(t, out.EmailVerification)
	require.Equal(t, "alice@example.com", out.EmailVerification.Email)

	msg := f.mailer.Last()
	require.Equal(t, "alice@example.com", msg.To)
	require.Contains(t, msg.Body, out.EmailVerification.Code)

	c := f.caller(t, out.Session.Token)
	require.NotNil(t, c.Session)
	require.False(t, c.Session.TwoFactorVerified)
	require.False(t, c.User.EmailVerified)
	require.NotEmpty(t, c.User.RecoveryCode)

	_, err = f.service.Register(f.ctx, auth.Caller{IP: "198.51.100.2"}, auth.RegisterInput{
		Email:    "alice@example.com",
		Username: "alice2",
		Password: password,
	})
	require.ErrorIs(t, err, auth.ErrEmailTaken)
	require.Equal(t, http.StatusConflict, apperrors.HTTPStatus(err))
}

func TestRegisterSucceedsWhenVerificationMailFails(t *testing.T) {
	f := setupTestFixture(t)
	f.mailer.FailWith(errors.New("smtp unavailable"))

	out, err := f.service.Register(f.ctx, auth.Caller{IP: "198.51.100.1"}, auth.RegisterInput{
		Email:    "alice@example.com",
		Username: "alice",
		Password: password,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Session)
	require.NotNil(t, out.EmailVerification)
	require.Empty(t, f.mailer.Messages())

	// The code can be resent once mail works again.
	f.mailer.FailWith(nil)
	_, err = f.service.RequestEmailVerification(f.ctx, f.caller(t, out.Session.Token), "")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", f.mailer.Last().To)
}

func TestRegisterValidation(t *testing.T) {
	f := setupTestFixture(t)

	tests := []struct {
		name string
		in   auth.RegisterInput
		err  error
	}{
		{"missing fields", auth.RegisterInput{Email: "a@example.com"}, auth.ErrMissingFields},
		{"bad email", auth.RegisterInput{Email: "nope", Username: "alice", Password: password}, auth.ErrInvalidEmail},
		{"short username", auth.RegisterInput{Email: "a@example.com", Username: "abc", Password: password}, auth.ErrInvalidUsername},
		{"weak password", auth.RegisterInput{Email: "a@example.com", Username: "alice", Password: "password"}, apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Register(f.ctx, auth.Caller{IP: "198.51.100.9"}, tt.in)
			require.ErrorIs(t, err, tt.err)
			require.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
		})
	}
}

func TestRegisterRateLimitedByIP(t *testing.T) {
	f := setupTestFixture(t)
	for i, name := range []string{"alice", "bobby", "carol"} {
		_, err := f.service.Register(f.ctx, auth.Caller{IP: "198.51.100.1"}, auth.RegisterInput{
			Email:    name + "@example.com",
			Username: name,
			Password: password,
		})
		require.NoError(t, err, "attempt %d", i)
	}
	_, err := f.service.Register(f.ctx, auth.Caller{IP: "198.51.100.1"}, auth.RegisterInput{
		Email:    "dave@example.com",
		Username: "davey",
		Password: password,
	})
	require.ErrorIs(t, err, apperrors.ErrRateLimited)
	require.Equal(t, http.StatusTooManyRequests, apperrors.HTTPStatus(err))
}

func TestLoginRedirects(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t, "alice@example.com", "alice")

	out := f.login(t, "alice@example.com", password)
	require.Equal(t, auth.VerifyEmailPath, out.Redirect)
	require.NotNil(t, out.Session)

	_, err := f.service.Login(f.ctx, auth.Caller{IP: "192.0.2.1"}, auth.LoginInput{Email: "nobody@example.com", Password: password})
	require.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestLoginThrottlesFailedPasswords(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t, "alice@example.com", "alice")
	in := auth.LoginInput{Email: "alice@example.com", Password: "Wr0ng!Password"}

	for i := 0; i < 2; i++ {
		_, err := f.service.Login(f.ctx, auth.Caller{IP: "192.0.2.1"}, in)
		require.ErrorIs(t, err, auth.ErrInvalidPassword)
	}

	// The third attempt waits out a one second cooldown.
	_, err := f.service.Login(f.ctx, auth.Caller{IP: "192.0.2.1"}, in)
	require.ErrorIs(t, err, apperrors.ErrRateLimited)

	f.now = f.now.Add(time.Second)
	out, err := f.service.Login(f.ctx, auth.Caller{IP: "192.0.2.1"}, auth.LoginInput{Email: "alice@example.com", Password: password})
	require.NoError(t, err)
	require.NotNil(t, out.Session)

	// Success resets the throttle.
	_, err = f.service.Login(f.ctx, auth.Caller{IP: "192.0.2.1"}, in)
	require.ErrorIs(t, err, auth.ErrInvalidPassword)
}

func TestLogoutEndsSession(t *testing.T) {
	f := setupTestFixture(t)
	token := f.register(t, "alice@example.com", "alice")

	out, err := f.service.Logout(f.ctx, f.caller(t, token))
	require.NoError(t, err)
	require.True(t, out.ClearSession)
	require.Equal(t, auth.LoginPath, out.Redirect)
	require.Nil(t, f.caller(t, token).Session)

	_, err = f.service.Logout(f.ctx, auth.Caller{})
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
}

func TestPasskeyLoginCreatesVerifiedSession(t *testing.T) {
	f := setupTestFixture(t)
	token := f.registerVerified(t, "alice@example.com", "alice")
	a := f.enrolPasskey(t, token)

	out, err := f.service.PasskeyLogin(f.ctx, auth.Caller{IP: "192.0.2.1"}, f.assertion(t, a))
	require.NoError(t, err)
	require.Equal(t, auth.HomePath, out.Redirect)
	c := f.caller(t, out.Session.Token)
	require.True(t, c.Session.TwoFactorVerified)
	require.NotNil(t, c.User.LastLogin)

	unknown, err := webauthntest.NewES256(rpID)
	require.NoError(t, err)
	_, err = f.service.PasskeyLogin(f.ctx, auth.Caller{IP: "192.0.2.1"}, f.assertion(t, unknown))
	require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
}

func TestFederatedLogin(t *testing.T) {
	f := setupTestFixture(t)
	identity := &federation.Identity{
		ProviderUserID: "12345",
		Email:          "Octo@Example.com",
		EmailVerified:  true,
		Username:       "octocat",
	}

	out, err := f.service.FederatedLogin(f.ctx, auth.Caller{IP: "192.0.2.1"}, "github", identity)
	require.NoError(t, err)
	require.Equal(t, sessions.SetupPath, out.Redirect)
	created := f.caller(t, out.Session.Token).User
	require.Equal(t, "octo@example.com", created.Email)
	require.Equal(t, "octocat", created.Username)
	require.False(t, created.HasPassword())
	require.True(t, created.EmailVerified)

	again, err := f.service.FederatedLogin(f.ctx, auth.Caller{IP: "192.0.2.1"}, "github", identity)
	require.NoError(t, err)
	require.Equal(t, created.ID, f.caller(t, again.Session.Token).User.ID)

	// A verified email links to the existing account.
	linked, err := f.service.FederatedLogin(f.ctx, auth.Caller{IP: "192.0.2.1"}, "discord", &federation.Identity{
		ProviderUserID: "d-1",
		Email:          "octo@example.com",
		EmailVerified:  true,
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, f.caller(t, linked.Session.Token).User.ID)

	_, err = f.service.FederatedLogin(f.ctx, auth.Caller{}, "discord", &federation.Identity{ProviderUserID: "d-2"})
	require.ErrorIs(t, err, auth.ErrProviderWithoutEmail)
}
