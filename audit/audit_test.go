package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/store/memstore"
)

type failingRepo struct{}

func (failingRepo) Insert(context.Context, *audit.Event) error {
	return errors.New("disk full")
}

func (failingRepo) List(context.Context, int, int) ([]*audit.Event, error) {
	return nil, nil
}

func (failingRepo) Get(context.Context, string) (*audit.Event, error) {
	return nil, nil
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r, err := audit.NewRecorder(memstore.New().Repos().Audit, audit.WithNowTime(func() time.Time { return now }))
	require.NoError(t, err)

	r.Record(ctx, audit.UserCreated, audit.Meta{UserID: "u1", IP: "10.0.0.1"}, map[string]string{"username": "alice"})
	now = now.Add(time.Second)
	r.Record(ctx, audit.SettingUpdated, audit.Meta{IP: "10.0.0.2"}, nil)

	events, err := r.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Equal(t, audit.SettingUpdated, events[0].Event)
	require.Nil(t, events[0].UserID)
	require.Nil(t, events[0].Data)

	first := events[1]
	_, err = uuid.Parse(first.ID)
	require.NoError(t, err)
	require.Equal(t, "u1", *first.UserID)
	require.JSONEq(t, `{"username":"alice"}`, string(first.Data))

	got, err := r.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, audit.UserCreated, got.Event)

	events, err = r.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, audit.UserCreated, events[0].Event)
}

func TestRecordSwallowsFailures(t *testing.T) {
	r, err := audit.NewRecorder(failingRepo{})
	require.NoError(t, err)
	require.NotPanics(t, func() {
		r.Record(context.Background(), audit.UserLogin, audit.Meta{}, nil)
	})

	var nilRecorder *audit.Recorder
	require.NotPanics(t, func() {
		nilRecorder.Record(context.Background(), audit.UserLogin, audit.Meta{}, nil)
	})
}
