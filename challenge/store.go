package challenge

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Size is the challenge length in bytes (160 bits).
const Size = 20

// Store is a single-use registry of WebAuthn challenges. A challenge verifies at
// most once: the only way Verify returns true is by removing the entry.
type Store struct {
	mu         sync.Mutex
	challenges map[string]time.Time
	ttl        time.Duration
	nowTime    func() time.Time
}

type Option func(*Store)

// WithTTL makes challenges older than ttl unverifiable and eligible for Sweep.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(now func() time.Time) Option {
	return func(s *Store) {
		s.nowTime = now
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		challenges: make(map[string]time.Time),
		nowTime:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create returns fresh random bytes to send to the client.
func (s *Store) Create() ([]byte, error) {
	challenge := make([]byte, Size)
	if _, err := rand.Read(challenge); err != nil {
		return nil, errors.Wrap(err, "[Store.Create] failed to generate challenge")
	}
	s.mu.Lock()
	s.challenges[hex.EncodeToString(challenge)] = s.nowTime()
	s.mu.Unlock()
	return challenge, nil
}

// Verify consumes the challenge and reports whether it was outstanding.
func (s *Store) Verify(challenge []byte) bool {
	key := hex.EncodeToString(challenge)

	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt, ok := s.challenges[key]
	if !ok {
		return false
	}
	delete(s.challenges, key)
	return !s.expired(createdAt, s.nowTime())
}

// Sweep removes expired challenges. It is a no-op without a TTL.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowTime()
	removed := 0
	for key, createdAt := range s.challenges {
		if s.expired(createdAt, now) {
			delete(s.challenges, key)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

func (s *Store) expired(createdAt, now time.Time) bool {
	return s.ttl > 0 && now.Sub(createdAt) >= s.ttl
}
