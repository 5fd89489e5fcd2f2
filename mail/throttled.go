package mail

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Throttled paces outbound mail so a burst of requests cannot flood the relay.
type Throttled struct {
	next    Mailer
	limiter *rate.Limiter
}

// NewThrottled allows perMinute messages a minute with bursts of the same size.
func NewThrottled(next Mailer, perMinute int) *Throttled {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
}

func (t *Throttled) Send(ctx context.Context, msg Message) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "[Throttled.Send] wait")
	}
	return t.next.Send(ctx, msg)
}
