package ratelimit

import (
	"sync"
	"time"
)

type expiringBucket struct {
	count     int
	createdAt time.Time
}

// ExpiringTokenBucket allows at most max consumptions per window. The window
// starts with the first consumption and the whole entry resets once it has
// elapsed, there is no gradual refill.
type ExpiringTokenBucket[K comparable] struct {
	mu        sync.Mutex
	max       int
	expiresIn time.Duration
	buckets   map[K]*expiringBucket
	now       func() time.Time
}

func NewExpiringTokenBucket[K comparable](max int, expiresIn time.Duration, opts ...Option) *ExpiringTokenBucket[K] {
	o := applyOptions(opts)
	return &ExpiringTokenBucket[K]{
		max:       max,
		expiresIn: expiresIn,
		buckets:   make(map[K]*expiringBucket),
		now:       o.now,
	}
}

func (b *ExpiringTokenBucket[K]) Check(key K, cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket, ok := b.buckets[key]
	if !ok || b.expired(bucket, b.now()) {
		return cost <= b.max
	}
	return bucket.count >= cost
}

func (b *ExpiringTokenBucket[K]) Consume(key K, cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	bucket, ok := b.buckets[key]
	if !ok || b.expired(bucket, now) {
		if cost > b.max {
			return false
		}
		b.buckets[key] = &expiringBucket{count: b.max - cost, createdAt: now}
		return true
	}
	if bucket.count < cost {
		return false
	}
	bucket.count -= cost
	return true
}

// Reset forgets key, typically after a successful verification.
func (b *ExpiringTokenBucket[K]) Reset(key K) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buckets, key)
}

// Sweep drops entries whose window has elapsed.
func (b *ExpiringTokenBucket[K]) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	removed := 0
	for key, bucket := range b.buckets {
		if b.expired(bucket, now) {
			delete(b.buckets, key)
			removed++
		}
	}
	return removed
}

func (b *ExpiringTokenBucket[K]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buckets)
}

func (b *ExpiringTokenBucket[K]) expired(bucket *expiringBucket, now time.Time) bool {
	return now.Sub(bucket.createdAt) >= b.expiresIn
}
