package resilience

import (
	"context"
	"time"
)

// Policy is a fixed-attempt, fixed-delay retry schedule
type Policy struct {
	Attempts int
	Delay    time.Duration
	// Retryable filters errors worth another attempt. Nil retries all.
	Retryable func(err error) bool
	// OnRetry observes each failed attempt that will be retried
	OnRetry func(attempt int, err error)
	// Sleep waits between attempts; defaults to a context-aware timer
	Sleep func(ctx context.Context, d time.Duration) error
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. It returns the number of attempts made and the
// last error.
func Retry(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return attempt, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return attempt, err
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if serr := sleep(ctx, p.Delay); serr != nil {
			return attempt, serr
		}
	}
	return attempts, err
}

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
