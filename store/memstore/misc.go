package memstore

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/emailverification"
	"github.com/jrsteele09/go-auth-hub/settings"
)

var (
	_ emailverification.Repo = (*verificationRepo)(nil)
	_ settings.Repo          = (*settingsRepo)(nil)
	_ audit.Repo             = (*auditRepo)(nil)
)

type verificationRepo struct {
	conn
}

func (r *verificationRepo) Create(_ context.Context, req *emailverification.Request) error {
	defer r.lock()()
	c := *req
	r.data().verifications[req.UserID] = &c
	return nil
}

func (r *verificationRepo) Get(_ context.Context, userID, id string) (*emailverification.Request, error) {
	defer r.lock()()
	req, ok := r.data().verifications[userID]
	if !ok || req.ID != id {
		return nil, nil
	}
	c := *req
	return &c, nil
}

func (r *verificationRepo) DeleteByUser(_ context.Context, userID string) error {
	defer r.lock()()
	delete(r.data().verifications, userID)
	return nil
}

func (r *verificationRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	defer r.lock()()
	d := r.data()
	n := 0
	for userID, req := range d.verifications {
		if !now.Before(req.ExpiresAt) {
			delete(d.verifications, userID)
			n++
		}
	}
	return n, nil
}

type settingsRepo struct {
	conn
}

func (r *settingsRepo) All(context.Context) (map[string][]byte, error) {
	defer r.lock()()
	out := make(map[string][]byte, len(r.data().settings))
	for k, v := range r.data().settings {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (r *settingsRepo) Put(_ context.Context, key string, value []byte) error {
	defer r.lock()()
	r.data().settings[key] = append([]byte(nil), value...)
	return nil
}

type auditRepo struct {
	conn
}

func (r *auditRepo) Insert(_ context.Context, event *audit.Event) error {
	defer r.lock()()
	c := *event
	r.data().audit = append(r.data().audit, &c)
	return nil
}

func (r *auditRepo) Get(_ context.Context, id string) (*audit.Event, error) {
	defer r.lock()()
	for _, e := range r.data().audit {
		if e.ID == id {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (r *auditRepo) List(_ context.Context, limit, offset int) ([]*audit.Event, error) {
	defer r.lock()()
	events := r.data().audit
	var out []*audit.Event
	for i := len(events) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		c := *events[i]
		out = append(out, &c)
	}
	return out, nil
}
