package ratelimit_test

import (
	"net/http/httptest"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-hub/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRefillingTokenBucket(t *testing.T) {
	t.Run("unknown key is full", func(t *testing.T) {
		b := ratelimit.NewRefillingTokenBucket[string](5, time.Second)
		require.True(t, b.Check("ip", 5))
		require.False(t, b.Check("ip", 6))
	})

	t.Run("consume drains and never goes negative", func(t *testing.T) {
		clock := newFakeClock()
		b := ratelimit.NewRefillingTokenBucket[string](5, time.Second, ratelimit.WithNowTime(clock.Now))

		require.True(t, b.Consume("ip", 3))
		require.True(t, b.Consume("ip", 2))
		require.False(t, b.Consume("ip", 1))
		require.False(t, b.Check("ip", 1))
	})

	t.Run("one token per interval capped at max", func(t *testing.T) {
		clock := newFakeClock()
		b := ratelimit.NewRefillingTokenBucket[string](3, 10*time.Second, ratelimit.WithNowTime(clock.Now))

		require.True(t, b.Consume("ip", 3))
		require.False(t, b.Check("ip", 1))

		clock.Advance(9 * time.Second)
		require.False(t, b.Check("ip", 1))

		clock.Advance(time.Second)
		require.True(t, b.Check("ip", 1))
		require.False(t, b.Check("ip", 2))

		clock.Advance(time.Hour)
		require.True(t, b.Check("ip", 3))
		require.False(t, b.Check("ip", 4))
	})

	t.Run("check does not consume", func(t *testing.T) {
		clock := newFakeClock()
		b := ratelimit.NewRefillingTokenBucket[string](2, time.Minute, ratelimit.WithNowTime(clock.Now))
		require.True(t, b.Consume("k", 1))
		for i := 0; i < 10; i++ {
			require.True(t, b.Check("k", 1))
		}
		require.True(t, b.Consume("k", 1))
		require.False(t, b.Consume("k", 1))
	})

	t.Run("partial interval progress is kept", func(t *testing.T) {
		clock := newFakeClock()
		b := ratelimit.NewRefillingTokenBucket[string](2, 10*time.Second, ratelimit.WithNowTime(clock.Now))
		require.True(t, b.Consume("k", 2))

		clock.Advance(15 * time.Second)
		require.True(t, b.Consume("k", 1))

		clock.Advance(5 * time.Second)
		require.True(t, b.Consume("k", 1))
	})

	t.Run("cost above max on a new key is rejected", func(t *testing.T) {
		b := ratelimit.NewRefillingTokenBucket[string](2, time.Second)
		require.False(t, b.Consume("k", 3))
		require.Equal(t, 0, b.Len())
	})

	t.Run("sweep drops full buckets", func(t *testing.T) {
		clock := newFakeClock()
		b := ratelimit.NewRefillingTokenBucket[string](2, time.Second, ratelimit.WithNowTime(clock.Now))
		require.True(t, b.Consume("a", 1))
		require.True(t, b.Consume("b", 2))

		clock.Advance(time.Second)
		require.Equal(t, 1, b.Sweep())
		require.Equal(t, 1, b.Len())
	})
}

func TestRefillingTokenBucketConcurrentConsume(t *testing.T) {
	clock := newFakeClock()
	b := ratelimit.NewRefillingTokenBucket[string](10, time.Hour, ratelimit.WithNowTime(clock.Now))

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Consume("ip", 1) {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(10), granted.Load())
}

func TestExpiringTokenBucket(t *testing.T) {
	t.Run("exactly max within the window", func(t *testing.T) {
		clock := newFakeClock()
		b := ratelimit.NewExpiringTokenBucket[string](5, 30*time.Minute, ratelimit.WithNowTime(clock.Now))

		for i := 0; i < 5; i++ {
			require.True(t, b.Consume("user", 1), "attempt %d", i+1)
			clock.Advance(time.Minute)
		}
		require.False(t, b.Consume("user", 1))
		require.False(t, b.Check("user", 1))

		clock.Advance(25*time.Minute - time.Second)
		require.False(t, b.Consume("user", 1))

		clock.Advance(time.Second)
		for i := 0; i < 5; i++ {
			require.True(t, b.Consume("user", 1), "fresh attempt %d", i+1)
		}
		require.False(t, b.Consume("user", 1))
	})

	t.Run("reset restores capacity", func(t *testing.T) {
		clock := newFakeClock()
		b := ratelimit.NewExpiringTokenBucket[string](3, time.Hour, ratelimit.WithNowTime(clock.Now))
		require.True(t, b.Consume("user", 3))
		require.False(t, b.Check("user", 1))

		b.Reset("user")
		require.True(t, b.Check("user", 3))
		require.True(t, b.Consume("user", 1))
	})

	t.Run("keys are independent", func(t *testing.T) {
		b := ratelimit.NewExpiringTokenBucket[string](1, time.Hour)
		require.True(t, b.Consume("a", 1))
		require.False(t, b.Consume("a", 1))
		require.True(t, b.Consume("b", 1))
	})

	t.Run("sweep drops elapsed windows", func(t *testing.T) {
		clock := newFakeClock()
		b := ratelimit.NewExpiringTokenBucket[string](1, time.Minute, ratelimit.WithNowTime(clock.Now))
		require.True(t, b.Consume("a", 1))
		require.Equal(t, 0, b.Sweep())
		clock.Advance(time.Minute)
		require.Equal(t, 1, b.Sweep())
	})
}

func TestThrottler(t *testing.T) {
	t.Run("cooldowns grow per attempt", func(t *testing.T) {
		clock := newFakeClock()
		th := ratelimit.NewThrottler[string](ratelimit.DefaultLoginDelays, ratelimit.WithNowTime(clock.Now))

		require.True(t, th.Consume("user"))
		require.True(t, th.Consume("user"))

		require.False(t, th.Consume("user"))
		clock.Advance(999 * time.Millisecond)
		require.False(t, th.Consume("user"))
		clock.Advance(time.Millisecond)
		require.True(t, th.Consume("user"))

		clock.Advance(time.Second)
		require.False(t, th.Consume("user"))
		clock.Advance(time.Second)
		require.True(t, th.Consume("user"))
	})

	t.Run("saturates at the last delay", func(t *testing.T) {
		clock := newFakeClock()
		th := ratelimit.NewThrottler[string]([]time.Duration{0, time.Second, 5 * time.Second}, ratelimit.WithNowTime(clock.Now))

		require.True(t, th.Consume("u"))
		require.True(t, th.Consume("u"))
		clock.Advance(time.Second)
		require.True(t, th.Consume("u"))
		for i := 0; i < 3; i++ {
			clock.Advance(4 * time.Second)
			require.False(t, th.Consume("u"))
			clock.Advance(time.Second)
			require.True(t, th.Consume("u"))
		}
	})

	t.Run("reset allows an immediate attempt", func(t *testing.T) {
		clock := newFakeClock()
		th := ratelimit.NewThrottler[string](ratelimit.DefaultLoginDelays, ratelimit.WithNowTime(clock.Now))
		for i := 0; i < 4; i++ {
			clock.Advance(10 * time.Second)
			require.True(t, th.Consume("u"))
		}
		require.False(t, th.Consume("u"))

		th.Reset("u")
		require.True(t, th.Consume("u"))
		require.True(t, th.Consume("u"))
		require.False(t, th.Consume("u"))
	})

	t.Run("sweep keeps recent entries", func(t *testing.T) {
		clock := newFakeClock()
		th := ratelimit.NewThrottler[string](ratelimit.DefaultLoginDelays, ratelimit.WithNowTime(clock.Now))
		require.True(t, th.Consume("u"))
		require.Equal(t, 0, th.Sweep())
		clock.Advance(ratelimit.ThrottlerRetention)
		require.Equal(t, 1, th.Sweep())
	})
}

func TestLimitersSweep(t *testing.T) {
	clock := newFakeClock()
	l := ratelimit.NewLimiters(ratelimit.WithNowTime(clock.Now))
	require.True(t, l.Global.Consume("1.2.3.4", 3))
	require.True(t, l.TOTP.Consume("user", 1))

	clock.Advance(time.Hour)
	require.Equal(t, 2, l.Sweep())
}

func TestHTTPHelpers(t *testing.T) {
	require.Equal(t, 1, ratelimit.MethodCost("GET"))
	require.Equal(t, 1, ratelimit.MethodCost("OPTIONS"))
	require.Equal(t, 3, ratelimit.MethodCost("POST"))
	require.Equal(t, 3, ratelimit.MethodCost("DELETE"))

	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	require.Equal(t, "10.0.0.1", ratelimit.ClientIP(r, proxies))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2")
	require.Equal(t, "203.0.113.9", ratelimit.ClientIP(r, proxies))

	// Without trusted proxies the headers are ignored.
	require.Equal(t, "10.0.0.1", ratelimit.ClientIP(r, nil))
}

func TestClientIPIgnoresHeadersFromUntrustedPeers(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "198.51.100.4:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	r.Header.Set("X-Real-IP", "203.0.113.10")
	require.Equal(t, "198.51.100.4", ratelimit.ClientIP(r, proxies))

	t.Run("spoofed leftmost hop", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		r.Header.Set("X-Forwarded-For", "1.2.3.4, 203.0.113.9, 10.0.0.2")
		require.Equal(t, "203.0.113.9", ratelimit.ClientIP(r, proxies))
	})

	t.Run("real ip from trusted peer", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		r.Header.Set("X-Real-IP", "203.0.113.10")
		require.Equal(t, "203.0.113.10", ratelimit.ClientIP(r, proxies))
	})

	t.Run("garbage header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		r.Header.Set("X-Forwarded-For", "not-an-ip")
		require.Equal(t, "10.0.0.1", ratelimit.ClientIP(r, proxies))
	})
}
