package ratelimit

import (
	"sync"
	"time"
)

type refillingBucket struct {
	count      int
	refilledAt time.Time
}

// RefillingTokenBucket allows bursts of up to max and credits one token per
// refill interval. Unknown keys are treated as a full bucket.
type RefillingTokenBucket[K comparable] struct {
	mu       sync.Mutex
	max      int
	interval time.Duration
	buckets  map[K]*refillingBucket
	now      func() time.Time
}

func NewRefillingTokenBucket[K comparable](max int, refillInterval time.Duration, opts ...Option) *RefillingTokenBucket[K] {
	o := applyOptions(opts)
	return &RefillingTokenBucket[K]{
		max:      max,
		interval: refillInterval,
		buckets:  make(map[K]*refillingBucket),
		now:      o.now,
	}
}

// Check reports whether cost tokens are available without taking them.
func (b *RefillingTokenBucket[K]) Check(key K, cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket, ok := b.buckets[key]
	if !ok {
		return cost <= b.max
	}
	b.refill(bucket, b.now())
	return bucket.count >= cost
}

// Consume takes cost tokens if they are available. A rejected call leaves the
// bucket untouched apart from refill bookkeeping.
func (b *RefillingTokenBucket[K]) Consume(key K, cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	bucket, ok := b.buckets[key]
	if !ok {
		if cost > b.max {
			return false
		}
		b.buckets[key] = &refillingBucket{count: b.max - cost, refilledAt: now}
		return true
	}
	b.refill(bucket, now)
	if bucket.count < cost {
		return false
	}
	bucket.count -= cost
	return true
}

// Sweep drops buckets that have refilled to capacity; they are indistinguishable
// from unknown keys.
func (b *RefillingTokenBucket[K]) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	removed := 0
	for key, bucket := range b.buckets {
		b.refill(bucket, now)
		if bucket.count >= b.max {
			delete(b.buckets, key)
			removed++
		}
	}
	return removed
}

func (b *RefillingTokenBucket[K]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buckets)
}

func (b *RefillingTokenBucket[K]) refill(bucket *refillingBucket, now time.Time) {
	if b.interval <= 0 {
		bucket.count = b.max
		bucket.refilledAt = now
		return
	}
	tokens := int(now.Sub(bucket.refilledAt) / b.interval)
	if tokens <= 0 {
		return
	}
	bucket.count = min(bucket.count+tokens, b.max)
	bucket.refilledAt = bucket.refilledAt.Add(time.Duration(tokens) * b.interval)
}
