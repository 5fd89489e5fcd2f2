package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	UserCreated    EventType = "user_created"
	UserUpdated    EventType = "user_updated"
	UserDeleted    EventType = "user_deleted"
	UserVerified   EventType = "user_verified"
	UserLogin      EventType = "user_login"
	UserLogout     EventType = "user_logout"
	SettingUpdated EventType = "setting_updated"
	TwoFactorReset EventType = "two_factor_reset"
	PasswordReset  EventType = "password_reset"
)

type Event struct {
	ID        string
	Event     EventType
	UserID    *string
	IP        string
	UserAgent string
	Referer   string
	Data      json.RawMessage
	CreatedAt time.Time
}

// Meta describes who triggered an event and from where.
type Meta struct {
	UserID    string
	IP        string
	UserAgent string
	Referer   string
}

type Repo interface {
	Insert(ctx context.Context, event *Event) error
	// List returns events newest first.
	List(ctx context.Context, limit, offset int) ([]*Event, error)
	// Get returns nil when no event has id.
	Get(ctx context.Context, id string) (*Event, error)
}

type Option func(*Recorder)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(now func() time.Time) Option {
	return func(r *Recorder) {
		r.nowTime = now
	}
}

// Recorder writes audit events. A failed write is logged and never returned.
type Recorder struct {
	repo    Repo
	nowTime func() time.Time
}

func NewRecorder(repo Repo, opts ...Option) (*Recorder, error) {
	if repo == nil {
		return nil, errors.New("[NewRecorder] repo is required")
	}
	r := &Recorder{repo: repo, nowTime: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Recorder) Record(ctx context.Context, event EventType, meta Meta, data any) {
	if r == nil {
		return
	}
	e := &Event{
		ID:        uuid.NewString(),
		Event:     event,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Referer:   meta.Referer,
		CreatedAt: r.nowTime(),
	}
	if meta.UserID != "" {
		userID := meta.UserID
		e.UserID = &userID
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			log.Err(err).Str("event", string(event)).Msg("failed to encode audit data")
		} else {
			e.Data = raw
		}
	}
	if err := r.repo.Insert(ctx, e); err != nil {
		log.Err(err).Str("event", string(event)).Msg("failed to record audit event")
	}
}

func (r *Recorder) Get(ctx context.Context, id string) (*Event, error) {
	event, err := r.repo.Get(ctx, id)
	return event, errors.Wrap(err, "[Recorder.Get]")
}

func (r *Recorder) List(ctx context.Context, limit, offset int) ([]*Event, error) {
	events, err := r.repo.List(ctx, limit, offset)
	return events, errors.Wrap(err, "[Recorder.List]")
}
