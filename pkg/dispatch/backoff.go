package dispatch

import (
	"context"
	"time"
)

// MaxBackoff caps the delay returned by Backoff.
const MaxBackoff = 24 * time.Hour

// Backoff returns the delay before the attempt following a failed attempt:
// base * 2^(attempt-1), saturating at MaxBackoff. Attempts are numbered from 1.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= MaxBackoff/2 {
			return MaxBackoff
		}
		delay *= 2
	}
	return min(delay, MaxBackoff)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
