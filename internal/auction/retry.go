package auction

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/iliyamo/auction-marketplace/internal/repository"
)

// RetryPolicy bounds the optimistic concurrency loop.
type RetryPolicy struct {
	MaxAttempts  int           // attempts including the first; values < 1 mean 1
	InitialDelay time.Duration // backoff before the second attempt; 0 disables sleeping
	MaxDelay     time.Duration // cap for the doubled delay
}

// DefaultRetryPolicy returns 5 attempts with a short jittered backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
	}
}

// attemptFunc performs one read-validate-write cycle.
type attemptFunc func(ctx context.Context, attempt int) error

// withRetry runs op until it returns something other than
// repository.ErrConflict, the attempts are exhausted (ErrContention) or
// ctx is done.  Only conflicts are retried; every other error, including
// ErrUnavailable, is returned on the spot.
func (p RetryPolicy) withRetry(ctx context.Context, onConflict func(attempt int), op attemptFunc) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.InitialDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(ctx, attempt)
		if !errors.Is(err, repository.ErrConflict) {
			return err
		}
		if onConflict != nil {
			onConflict(attempt)
		}
		if attempt == attempts || delay <= 0 {
			continue
		}
		select {
		case <-time.After(jitter(delay)):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return ErrContention
}

// jitter returns a duration in [d/2, d).
func jitter(d time.Duration) time.Duration {
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + time.Duration(rand.Int63n(int64(half)))
}
