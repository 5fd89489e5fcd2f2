package auth_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/auth"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/sessions"
)

func TestRecoveryCodeResetsSecondFactors(t *testing.T) {
	f := setupTestFixture(t)
	token := f.registerVerified(t, "alice@example.com", "alice")
	f.enrolTOTP(t, token)
	f.enrolPasskey(t, token)

	code, err := f.service.GetRecoveryCode(f.ctx, f.caller(t, token))
	require.NoError(t, err)
	require.Len(t, code, 16)
	stored := f.caller(t, token).User.RecoveryCode

	lost := f.login(t, "alice@example.com", password).Session.Token
	_, err = f.service.ResetUser2FAWithRecoveryCode(f.ctx, f.caller(t, lost), "AAAAAAAAAAAAAAAA")
	require.ErrorIs(t, err, auth.ErrInvalidRecoveryCode)

	out, err := f.service.ResetUser2FAWithRecoveryCode(f.ctx, f.caller(t, lost), code)
	require.NoError(t, err)
	require.Equal(t, sessions.SetupPath, out.Redirect)

	c := f.caller(t, lost)
	require.False(t, c.User.Registered2FA())
	require.False(t, f.caller(t, token).Session.TwoFactorVerified)

	require.NotEqual(t, stored, c.User.RecoveryCode)

	events, err := f.store.Repos().Audit.List(f.ctx, 50, 0)
	require.NoError(t, err)
	var kinds []audit.EventType
	for _, e := range events {
		kinds = append(kinds, e.Event)
	}
	require.Contains(t, kinds, audit.TwoFactorReset)
}

func TestRecoveryCodeRequiresUnverifiedSecondFactor(t *testing.T) {
	f := setupTestFixture(t)
	token := f.registerVerified(t, "alice@example.com", "alice")

	_, err := f.service.ResetUser2FAWithRecoveryCode(f.ctx, f.caller(t, token), "AAAAAAAAAAAAAAAA")
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	f.enrolTOTP(t, token)
	_, err = f.service.ResetUser2FAWithRecoveryCode(f.ctx, f.caller(t, token), "AAAAAAAAAAAAAAAA")
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestRecoveryCodeIsSingleUse(t *testing.T) {
	f := setupTestFixture(t)
	token := f.registerVerified(t, "alice@example.com", "alice")
	f.enrolTOTP(t, token)
	code, err := f.service.GetRecoveryCode(f.ctx, f.caller(t, token))
	require.NoError(t, err)

	first := f.caller(t, f.login(t, "alice@example.com", password).Session.Token)
	second := f.caller(t, f.login(t, "alice@example.com", password).Session.Token)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failed    []error
	)
	for _, c := range []auth.Caller{first, second} {
		wg.Add(1)
		go func(c auth.Caller) {
			defer wg.Done()
			_, err := f.service.ResetUser2FAWithRecoveryCode(f.ctx, c, code)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else {
				failed = append(failed, err)
			}
		}(c)
	}
	wg.Wait()

	require.Equal(t, 1, succeeded)
	require.Len(t, failed, 1)
	require.ErrorIs(t, failed[0], auth.ErrInvalidRecoveryCode)
}

func TestRegenerateRecoveryCode(t *testing.T) {
	f := setupTestFixture(t)
	token := f.registerVerified(t, "alice@example.com", "alice")

	_, err := f.service.RegenerateRecoveryCode(f.ctx, f.caller(t, token))
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	f.enrolTOTP(t, token)
	before, err := f.service.GetRecoveryCode(f.ctx, f.caller(t, token))
	require.NoError(t, err)
	after, err := f.service.RegenerateRecoveryCode(f.ctx, f.caller(t, token))
	require.NoError(t, err)
	require.NotEqual(t, before, after)

	shown, err := f.service.GetRecoveryCode(f.ctx, f.caller(t, token))
	require.NoError(t, err)
	require.Equal(t, after, shown)
	require.True(t, f.caller(t, token).User.Factors.TOTP)
}
