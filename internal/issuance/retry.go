package issuance

import (
	"context"
	"time"

	dErrors "veridoc/pkg/domain-errors"
)

// RetryPolicy bounds retries of the identity stage. It is constructed once
// from process config and passed into the orchestrator; there is no global
// retry state.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy retries transient identity failures up to 3 times with
// a 2s pause between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 2 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// run invokes fn up to MaxAttempts times, pausing between attempts. Only
// errors marked retryable are retried; validation failures and genuine
// mismatches surface immediately. onRetry fires before each re-attempt.
func (p RetryPolicy) run(ctx context.Context, fn func() error, onRetry func(attempt int, err error)) error {
	policy := p.normalized()
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.Backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !dErrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt < policy.MaxAttempts && onRetry != nil {
			onRetry(attempt, lastErr)
		}
	}
	return lastErr
}
