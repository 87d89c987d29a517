package ai

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy retries one provider with exponential backoff and jitter.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backoff returns the delay before retry number attempt (0-based). jitter is in [0,1).
func (p RetryPolicy) Backoff(attempt int, jitter float64) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	return time.Duration(d * (0.5 + jitter*0.5))
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempts
// run out. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, sleep sleepFunc, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		var pe *ProviderError
		if !errors.As(err, &pe) || !pe.Retryable() || attempt == attempts-1 {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if serr := sleep(ctx, p.Backoff(attempt, rand.Float64())); serr != nil {
			return err
		}
	}
	return err
}
