// Package retry provides a bounded exponential-backoff helper for calls to
// external collaborators (secret store, KMS, JWKS endpoint, sinks).
package retry

import (
	"context"
	"time"

	shielderrors "github.com/storyforge/shield/internal/errors"
)

// Policy describes a bounded retry schedule.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialWait is the wait before the second attempt; it doubles on
	// each subsequent attempt.
	InitialWait time.Duration
}

// DefaultPolicy matches the subsystem-wide contract for external calls.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialWait: 200 * time.Millisecond}
}

// Do runs fn up to p.MaxAttempts times, backing off exponentially between
// attempts. Non-retryable errors (validation, authorization, rate limit)
// stop the loop immediately.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	wait := p.InitialWait
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !shielderrors.IsRetryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
	}
	return err
}
