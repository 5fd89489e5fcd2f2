package emailverification_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-hub/emailverification"
	"github.com/jrsteele09/go-auth-hub/store/memstore"
	"github.com/jrsteele09/go-auth-hub/users"
)

func TestRequests(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repos := memstore.New().Repos()
	require.NoError(t, repos.Users.Create(ctx, &users.User{ID: "u1", Email: "a@b.com", Username: "alice"}))

	m, err := emailverification.NewManager(repos.EmailVerifications, emailverification.WithNowTime(func() time.Time { return now }))
	require.NoError(t, err)

	first, err := m.CreateRequest(ctx, "u1", "a@b.com")
	require.NoError(t, err)
	require.Len(t, first.Code, 8)

	second, err := m.CreateRequest(ctx, "u1", "new@b.com")
	require.NoError(t, err)

	t.Run("only the latest request survives", func(t *testing.T) {
		got, err := m.GetUserRequest(ctx, "u1", first.ID)
		require.NoError(t, err)
		require.Nil(t, got)

		got, err = m.GetUserRequest(ctx, "u1", second.ID)
		require.NoError(t, err)
		require.Equal(t, "new@b.com", got.Email)
	})

	t.Run("requests are scoped to their user", func(t *testing.T) {
		got, err := m.GetUserRequest(ctx, "u2", second.ID)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("expired requests are gone", func(t *testing.T) {
		now = now.Add(10 * time.Minute)
		got, err := m.GetUserRequest(ctx, "u1", second.ID)
		require.NoError(t, err)
		require.Nil(t, got)
	})
}
