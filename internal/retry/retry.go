package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy is a reusable retry policy shared by all upstream-calling code.
// Backoff is exponential: BaseDelay * 2^(attempt-1), capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil means every error is retryable.
	Retryable func(error) bool
}

// NewPolicy creates a policy with the given budget and sane caps.
func NewPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
	}
}

// Delay returns the backoff delay before the given attempt (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay * time.Duration(1<<uint(attempt-1))
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d
}

// Sleep waits for the given delay or until the context is cancelled.
func (p *Policy) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Do runs fn until it succeeds, the error is not retryable, or the
// attempt budget is spent.
func (p *Policy) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.Sleep(ctx, p.Delay(attempt-1)); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, lastErr)
}
