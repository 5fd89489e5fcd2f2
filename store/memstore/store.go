// Package memstore is an in-memory store.Store for development and tests.
//
// Every call takes one store-wide lock. A transaction holds that lock from start
// to finish, so transactions are serialised and nothing interleaves with them;
// on error the state captured at the start is put back.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/credentials"
	"github.com/jrsteele09/go-auth-hub/emailverification"
	"github.com/jrsteele09/go-auth-hub/passwordreset"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/store"
	"github.com/jrsteele09/go-auth-hub/users"
)

var _ store.Store = (*Store)(nil)

type externalKey struct {
	provider       string
	providerUserID string
}

type webauthnKey struct {
	kind credentials.Kind
	id   string
}

type state struct {
	users         map[string]*users.User
	external      map[externalKey]string
	sessions      map[string]*sessions.Session
	totp          map[string]*credentials.Credential
	webauthn      map[webauthnKey]*credentials.Credential
	resets        map[string]*passwordreset.Session
	verifications map[string]*emailverification.Request
	settings      map[string][]byte
	audit         []*audit.Event
}

func newState() *state {
	return &state{
		users:         make(map[string]*users.User),
		external:      make(map[externalKey]string),
		sessions:      make(map[string]*sessions.Session),
		totp:          make(map[string]*credentials.Credential),
		webauthn:      make(map[webauthnKey]*credentials.Credential),
		resets:        make(map[string]*passwordreset.Session),
		verifications: make(map[string]*emailverification.Request),
		settings:      make(map[string][]byte),
	}
}

func cloneMap[K comparable, V any](m map[K]*V) map[K]*V {
	out := make(map[K]*V, len(m))
	for k, v := range m {
		c := *v
		out[k] = &c
	}
	return out
}

func (s *state) clone() *state {
	c := &state{
		users:         cloneMap(s.users),
		external:      make(map[externalKey]string, len(s.external)),
		sessions:      cloneMap(s.sessions),
		totp:          cloneMap(s.totp),
		webauthn:      cloneMap(s.webauthn),
		resets:        cloneMap(s.resets),
		verifications: cloneMap(s.verifications),
		settings:      make(map[string][]byte, len(s.settings)),
		audit:         append([]*audit.Event(nil), s.audit...),
	}
	for k, v := range s.external {
		c.external[k] = v
	}
	for k, v := range s.settings {
		c.settings[k] = v
	}
	return c
}

type Store struct {
	mu   sync.Mutex
	data *state
}

func New() *Store {
	return &Store{data: newState()}
}

// conn gives repositories access to the state. Inside a transaction the lock is
// already held.
type conn struct {
	s    *Store
	inTx bool
}

func (c conn) lock() func() {
	if c.inTx {
		return func() {}
	}
	c.s.mu.Lock()
	return c.s.mu.Unlock
}

func (c conn) data() *state {
	return c.s.data
}

func (s *Store) repos(inTx bool) store.Repos {
	c := conn{s: s, inTx: inTx}
	return store.Repos{
		Users:              &userRepo{c},
		Sessions:           &sessionRepo{c},
		Credentials:        &credentialRepo{c},
		ResetSessions:      &resetRepo{c},
		EmailVerifications: &verificationRepo{c},
		Settings:           &settingsRepo{c},
		Audit:              &auditRepo{c},
	}
}

func (s *Store) Repos() store.Repos {
	return s.repos(false)
}

// WithTx runs fn with exclusive access. Repositories outside tx must not be used
// from fn: they would wait for the lock fn holds.
func (s *Store) WithTx(ctx context.Context, fn store.TxFunc) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()
	return fn(ctx, s.repos(true))
}

func (s *Store) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, session := range s.data.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.data.sessions, id)
			n++
		}
	}
	for id, reset := range s.data.resets {
		if !now.Before(reset.ExpiresAt) {
			delete(s.data.resets, id)
			n++
		}
	}
	for userID, req := range s.data.verifications {
		if !now.Before(req.ExpiresAt) {
			delete(s.data.verifications, userID)
			n++
		}
	}
	return n, nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}
