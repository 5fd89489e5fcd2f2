package passwordreset_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-hub/passwordreset"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/store"
	"github.com/jrsteele09/go-auth-hub/store/memstore"
	"github.com/jrsteele09/go-auth-hub/users"
)

type testFixture struct {
	ctx     context.Context
	now     time.Time
	repos   store.Repos
	manager *passwordreset.Manager
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		ctx:   context.Background(),
		now:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		repos: memstore.New().Repos(),
	}
	require.NoError(t, f.repos.Users.Create(f.ctx, &users.User{ID: "u1", Email: "a@b.com", Username: "alice"}))

	var err error
	f.manager, err = passwordreset.NewManager(f.repos.ResetSessions, passwordreset.WithNowTime(func() time.Time { return f.now }))
	require.NoError(t, err)
	return f
}

func TestResetSessionLifecycle(t *testing.T) {
	f := setupTestFixture(t)
	token, err := sessions.GenerateSessionToken()
	require.NoError(t, err)

	created, err := f.manager.CreatePasswordResetSession(f.ctx, token, "u1", "a@b.com")
	require.NoError(t, err)
	require.Len(t, created.Code, 8)
	require.Equal(t, f.now.Add(10*time.Minute), created.ExpiresAt)
	require.False(t, created.EmailVerified)
	require.False(t, created.TwoFactorVerified)

	s, u, err := f.manager.ValidatePasswordResetSessionToken(f.ctx, token)
	require.NoError(t, err)
	require.Equal(t, created.ID, s.ID)
	require.Equal(t, "u1", u.ID)

	require.NoError(t, f.manager.SetPasswordResetSessionAsEmailVerified(f.ctx, s.ID))
	require.NoError(t, f.manager.SetPasswordResetSessionAs2FAVerified(f.ctx, s.ID))
	s, _, err = f.manager.ValidatePasswordResetSessionToken(f.ctx, token)
	require.NoError(t, err)
	require.True(t, s.EmailVerified)
	require.True(t, s.TwoFactorVerified)

	f.now = f.now.Add(10 * time.Minute)
	s, u, err = f.manager.ValidatePasswordResetSessionToken(f.ctx, token)
	require.NoError(t, err)
	require.Nil(t, s)
	require.Nil(t, u)
}

func TestCreateReplacesPreviousReset(t *testing.T) {
	f := setupTestFixture(t)
	first, err := sessions.GenerateSessionToken()
	require.NoError(t, err)
	second, err := sessions.GenerateSessionToken()
	require.NoError(t, err)

	_, err = f.manager.CreatePasswordResetSession(f.ctx, first, "u1", "a@b.com")
	require.NoError(t, err)
	_, err = f.manager.CreatePasswordResetSession(f.ctx, second, "u1", "a@b.com")
	require.NoError(t, err)

	s, _, err := f.manager.ValidatePasswordResetSessionToken(f.ctx, first)
	require.NoError(t, err)
	require.Nil(t, s)

	require.NoError(t, f.manager.InvalidateUserPasswordResetSessions(f.ctx, "u1"))
	s, _, err = f.manager.ValidatePasswordResetSessionToken(f.ctx, second)
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestResetTwoFactorRedirect(t *testing.T) {
	require.Equal(t, "/reset-password/2fa/passkey", passwordreset.TwoFactorRedirect(users.Factors{Passkey: true, TOTP: true}))
	require.Equal(t, "/reset-password/2fa/security-key", passwordreset.TwoFactorRedirect(users.Factors{SecurityKey: true, TOTP: true}))
	require.Equal(t, "/reset-password/2fa/totp", passwordreset.TwoFactorRedirect(users.Factors{TOTP: true}))
	require.Equal(t, "/2fa/setup", passwordreset.TwoFactorRedirect(users.Factors{}))
}

func TestResetCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	passwordreset.DeleteCookie(rec, true)
	c := rec.Result().Cookies()[0]
	require.Equal(t, "password_reset_session", c.Name)
	require.Empty(t, c.Value)
	require.Equal(t, -1, c.MaxAge)
	require.True(t, c.HttpOnly)
}
