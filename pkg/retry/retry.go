// Package retry re-runs idempotent operations that failed with a transient error.
package retry

import (
	"context"
	"time"

	"github.com/mbeoliero/huddle/pkg/errcode"
)

// Policy bounds how often and how long an operation is retried
type Policy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultPolicy is used when a zero Policy is passed
var DefaultPolicy = Policy{Attempts: 3, Backoff: 50 * time.Millisecond, MaxBackoff: time.Second}

// Do calls fn until it succeeds, fails with a non-transient error,
// runs out of attempts or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = DefaultPolicy.Attempts
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultPolicy.MaxBackoff
	}

	delay := p.Backoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil || !errcode.IsTransient(err) || attempt >= p.Attempts {
			return err
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
			delay *= 2
			if delay > p.MaxBackoff {
				delay = p.MaxBackoff
			}
		} else if ctx.Err() != nil {
			return err
		}
	}
}
