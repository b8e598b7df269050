package model

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	defaultRetryMaxRetries = 3
	defaultRetryBaseDelay  = 300 * time.Millisecond
	defaultRetryMaxDelay   = 5 * time.Second
)

// RetryPolicy controls transient-failure retries inside a provider stream.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Normalized fills unset fields with defaults and repairs inconsistent
// ones. A negative MaxRetries disables retries outright; zero means unset.
func (p RetryPolicy) Normalized() RetryPolicy {
	switch {
	case p.MaxRetries < 0:
		p.MaxRetries = 0
	case p.MaxRetries == 0:
		p.MaxRetries = defaultRetryMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultRetryBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultRetryMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Backoff returns the jittered delay before retry attempt n (0-based).
// The raw delay doubles per attempt up to MaxDelay; jitter spreads it
// across 80-120% so concurrent retries do not thunder in step.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for ; attempt > 0 && delay < p.MaxDelay; attempt-- {
		delay *= 2
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return time.Duration(float64(delay) * (0.8 + rand.Float64()*0.4))
}

// Wait blocks for the attempt's backoff delay or until ctx is canceled.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// transientError tags a provider failure that may succeed on another
// attempt. The tag survives further %w wrapping.
type transientError struct {
	cause error
}

func (e *transientError) Error() string { return e.cause.Error() }
func (e *transientError) Unwrap() error { return e.cause }

// MarkRetryable tags err as transient for the stream retry loop.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{cause: err}
}

// IsRetryableError reports whether err carries the transient tag.
func IsRetryableError(err error) bool {
	var tagged *transientError
	return errors.As(err, &tagged)
}
