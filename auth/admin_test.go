package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-hub/audit"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/settings"
	"github.com/jrsteele09/go-auth-hub/users"
)

func TestUpdateSettingRequiresAdmin(t *testing.T) {
	f := setupTestFixture(t)
	token := f.registerVerified(t, "alice@example.com", "alice")
	policy := []byte(`{"length":12,"uppercase":true,"lowercase":true,"numbers":true,"symbols":false}`)

	err := f.service.UpdateSetting(f.ctx, f.caller(t, token), settings.KeyPassword, policy)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	c := f.caller(t, token)
	require.NoError(t, f.store.Repos().Users.UpdateRole(f.ctx, c.User.ID, users.RoleAdmin))
	require.NoError(t, f.service.UpdateSetting(f.ctx, f.caller(t, token), settings.KeyPassword, policy))
	require.Equal(t, 12, f.settings.Snapshot().Password.MinLength)

	err = f.service.UpdateSetting(f.ctx, f.caller(t, token), "unknown", []byte(`{}`))
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)

	events, err := f.service.AuditLog(f.ctx, f.caller(t, token), 50, 0)
	require.NoError(t, err)
	var found bool
	for _, e := range events {
		found = found || e.Event == audit.SettingUpdated
	}
	require.True(t, found)

	// The new policy applies to the next password change.
	_, err = f.service.ChangePassword(f.ctx, f.caller(t, token), password, "Sh0rt!pw")
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestAdminNeedsSecondFactorWhenRegistered(t *testing.T) {
	f := setupTestFixture(t)
	token := f.registerVerified(t, "alice@example.com", "alice")
	f.enrolTOTP(t, token)
	c := f.caller(t, token)
	require.NoError(t, f.store.Repos().Users.UpdateRole(f.ctx, c.User.ID, users.RoleAdmin))

	fresh := f.caller(t, f.login(t, "alice@example.com", password).Session.Token)
	_, err := f.service.AuditLog(f.ctx, fresh, 10, 0)
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestAdminUserManagement(t *testing.T) {
	f := setupTestFixture(t)
	adminToken := f.registerVerified(t, "admin@example.com", "admin")
	require.NoError(t, f.store.Repos().Users.UpdateRole(f.ctx, f.caller(t, adminToken).User.ID, users.RoleAdmin))
	admin := f.caller(t, adminToken)

	bobToken := f.registerVerified(t, "bob@example.com", "bob")
	bob := f.caller(t, bobToken).User
	require.NoError(t, f.store.Repos().Users.LinkExternalID(f.ctx, bob.ID, "github", "42"))
	f.enrolPasskey(t, bobToken)

	_, err := f.service.ListUsers(f.ctx, f.caller(t, bobToken), 10, 0)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	list, err := f.service.ListUsers(f.ctx, admin, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	page, err := f.service.ListUsers(f.ctx, admin, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.NotEqual(t, list[0].ID, page[0].ID)

	detail, err := f.service.GetUser(f.ctx, admin, bob.ID)
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", detail.User.Email)
	require.Equal(t, []users.ExternalID{{Provider: "github", ProviderUserID: "42"}}, detail.ExternalIDs)
	require.True(t, detail.User.Factors.Passkey)
	require.Len(t, detail.Passkeys, 1)
	require.Equal(t, "laptop", detail.Passkeys[0].Name)
	require.Empty(t, detail.SecurityKeys)

	_, err = f.service.GetUser(f.ctx, admin, "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	t.Run("unlink", func(t *testing.T) {
		err := f.service.UnlinkExternalID(f.ctx, admin, admin.User.ID, "github")
		require.ErrorIs(t, err, apperrors.ErrForbidden)

		require.NoError(t, f.service.UnlinkExternalID(f.ctx, admin, bob.ID, "github"))
		linked, err := f.store.Repos().Users.GetByExternalID(f.ctx, "github", "42")
		require.NoError(t, err)
		require.Nil(t, linked)

		err = f.service.UnlinkExternalID(f.ctx, admin, bob.ID, "github")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("audit event", func(t *testing.T) {
		events, err := f.service.AuditLog(f.ctx, admin, 1, 0)
		require.NoError(t, err)
		require.Len(t, events, 1)

		one, err := f.service.AuditEvent(f.ctx, admin, events[0].ID)
		require.NoError(t, err)
		require.Equal(t, events[0].ID, one.Event.ID)
		require.Equal(t, audit.UserUpdated, one.Event.Event)
		require.Equal(t, bob.ID, one.User.ID)

		_, err = f.service.AuditEvent(f.ctx, admin, "missing")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.ErrorIs(t, f.service.DeleteUser(f.ctx, admin, admin.User.ID), apperrors.ErrForbidden)

		require.NoError(t, f.service.DeleteUser(f.ctx, admin, bob.ID))
		gone, err := f.store.Repos().Users.GetByID(f.ctx, bob.ID)
		require.NoError(t, err)
		require.Nil(t, gone)

		// The deleted user's session no longer resolves.
		session, _, err := f.sessions.ValidateSessionToken(f.ctx, bobToken)
		require.NoError(t, err)
		require.Nil(t, session)

		require.ErrorIs(t, f.service.DeleteUser(f.ctx, admin, bob.ID), apperrors.ErrNotFound)
	})
}
