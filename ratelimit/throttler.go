package ratelimit

import (
	"sync"
	"time"
)

// DefaultLoginDelays is the per-attempt cooldown used for password logins.
var DefaultLoginDelays = []time.Duration{
	0,
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
	60 * time.Second,
	180 * time.Second,
	300 * time.Second,
}

// ThrottlerRetention is how long an idle throttler entry survives a Sweep.
const ThrottlerRetention = 24 * time.Hour

type throttleCounter struct {
	index     int
	updatedAt time.Time
}

// Throttler enforces an increasing cooldown between attempts for one identity.
type Throttler[K comparable] struct {
	mu       sync.Mutex
	delays   []time.Duration
	counters map[K]*throttleCounter
	now      func() time.Time
}

func NewThrottler[K comparable](delays []time.Duration, opts ...Option) *Throttler[K] {
	o := applyOptions(opts)
	if len(delays) == 0 {
		delays = []time.Duration{0}
	}
	return &Throttler[K]{
		delays:   append([]time.Duration(nil), delays...),
		counters: make(map[K]*throttleCounter),
		now:      o.now,
	}
}

// Consume succeeds when the cooldown for the current attempt has passed and then
// moves to the next, longer cooldown. A rejected call does not advance.
func (t *Throttler[K]) Consume(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	counter, ok := t.counters[key]
	if !ok {
		t.counters[key] = &throttleCounter{index: 0, updatedAt: now}
		return true
	}
	required := t.delays[min(counter.index, len(t.delays)-1)]
	if now.Sub(counter.updatedAt) < required {
		return false
	}
	counter.updatedAt = now
	counter.index = min(counter.index+1, len(t.delays)-1)
	return true
}

// Reset deletes the entry so the next Consume starts again at index 0.
func (t *Throttler[K]) Reset(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counters, key)
}

// Sweep drops entries idle for longer than ThrottlerRetention.
func (t *Throttler[K]) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for key, counter := range t.counters {
		if now.Sub(counter.updatedAt) >= ThrottlerRetention {
			delete(t.counters, key)
			removed++
		}
	}
	return removed
}

func (t *Throttler[K]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counters)
}
