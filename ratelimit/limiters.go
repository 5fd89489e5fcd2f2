package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Limiters is the process-wide rate limiting state. It is built once at startup
// and handed to everything that needs a bucket.
type Limiters struct {
	Global             *RefillingTokenBucket[string]
	LoginThrottle      *Throttler[string]
	LoginIP            *RefillingTokenBucket[string]
	Register           *RefillingTokenBucket[string]
	ForgotPasswordIP   *RefillingTokenBucket[string]
	ForgotPasswordUser *RefillingTokenBucket[string]
	RecoveryCode       *ExpiringTokenBucket[string]
	TOTP               *ExpiringTokenBucket[string]
	TOTPUpdate         *RefillingTokenBucket[string]
	PasswordUpdate     *ExpiringTokenBucket[string]
	VerificationEmail  *ExpiringTokenBucket[string]
	EmailVerify        *ExpiringTokenBucket[string]
}

func NewLimiters(opts ...Option) *Limiters {
	return &Limiters{
		Global:             NewRefillingTokenBucket[string](100, time.Second, opts...),
		LoginThrottle:      NewThrottler[string](DefaultLoginDelays, opts...),
		LoginIP:            NewRefillingTokenBucket[string](20, time.Second, opts...),
		Register:           NewRefillingTokenBucket[string](3, 10*time.Second, opts...),
		ForgotPasswordIP:   NewRefillingTokenBucket[string](3, 60*time.Second, opts...),
		ForgotPasswordUser: NewRefillingTokenBucket[string](3, 60*time.Second, opts...),
		RecoveryCode:       NewExpiringTokenBucket[string](3, time.Hour, opts...),
		TOTP:               NewExpiringTokenBucket[string](5, 30*time.Minute, opts...),
		TOTPUpdate:         NewRefillingTokenBucket[string](3, 10*time.Minute, opts...),
		PasswordUpdate:     NewExpiringTokenBucket[string](5, 30*time.Minute, opts...),
		VerificationEmail:  NewExpiringTokenBucket[string](3, 10*time.Minute, opts...),
		EmailVerify:        NewExpiringTokenBucket[string](5, 30*time.Minute, opts...),
	}
}

type sweeper interface {
	Sweep() int
}

// Sweep removes every entry that is equivalent to an unknown key.
func (l *Limiters) Sweep() int {
	all := []sweeper{
		l.Global, l.LoginThrottle, l.LoginIP, l.Register, l.ForgotPasswordIP,
		l.ForgotPasswordUser, l.RecoveryCode, l.TOTP, l.TOTPUpdate, l.PasswordUpdate,
		l.VerificationEmail, l.EmailVerify,
	}
	removed := 0
	for _, s := range all {
		removed += s.Sweep()
	}
	return removed
}

// StartCleanup sweeps on every tick until ctx is done.
func (l *Limiters) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := l.Sweep(); n > 0 {
					log.Debug().Int("removed", n).Msg("rate limit sweep")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
