package extractor

import (
	"context"
	"time"
)

// RetryPolicy is an exponential backoff schedule.
type RetryPolicy struct {
	MaxRetries int
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultRetryPolicy retries three times after 1s, 2s and 4s, never waiting
// longer than 32s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Initial:    1 * time.Second,
		Multiplier: 2,
		Max:        32 * time.Second,
	}
}

// Delay returns the wait before retry number n, starting at 0.
func (p RetryPolicy) Delay(n int) time.Duration {
	d := float64(p.Initial)
	for i := 0; i < n; i++ {
		d *= p.Multiplier
		if p.Max > 0 && d >= float64(p.Max) {
			return p.Max
		}
	}
	if p.Max > 0 && time.Duration(d) > p.Max {
		return p.Max
	}
	return time.Duration(d)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
