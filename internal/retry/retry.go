// Package retry provides the one retry policy shared by the embedding,
// upload and import-polling code paths.
package retry

import (
	"context"
	"time"
)

// Policy describes a bounded exponential backoff schedule and the predicate
// deciding which errors are worth retrying.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	// Retryable decides whether an error should be retried. A nil predicate
	// retries every error.
	Retryable func(error) bool

	// Sleep is overridable in tests. Nil means a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default mirrors the backoff used by the crawler's network calls: up to five
// attempts, 2s first wait, doubling to a 2-minute cap.
func Default() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     2 * time.Minute,
		Multiplier:     2,
	}
}

// Do invokes op until it succeeds, fails with a non-retryable error, the
// attempt budget is exhausted, or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := p.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if serr := sleep(ctx, backoff); serr != nil {
			return serr
		}
		backoff = time.Duration(float64(backoff) * mult)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
