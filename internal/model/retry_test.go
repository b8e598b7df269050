package model

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMarkRetryable(t *testing.T) {
	t.Parallel()

	if MarkRetryable(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	base := errors.New("boom")
	wrapped := MarkRetryable(base)
	if !IsRetryableError(wrapped) {
		t.Fatalf("expected wrapped error to be retryable")
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("expected wrapped error to unwrap to base")
	}
	if IsRetryableError(base) {
		t.Fatalf("unmarked error should not be retryable")
	}
}

func TestRetryPolicyNormalized(t *testing.T) {
	t.Parallel()

	got := RetryPolicy{}.Normalized()
	if got.MaxRetries != defaultRetryMaxRetries {
		t.Fatalf("MaxRetries = %d, want %d", got.MaxRetries, defaultRetryMaxRetries)
	}
	if got.BaseDelay != defaultRetryBaseDelay || got.MaxDelay != defaultRetryMaxDelay {
		t.Fatalf("unexpected defaults: %+v", got)
	}

	disabled := RetryPolicy{MaxRetries: -1}.Normalized()
	if disabled.MaxRetries != 0 {
		t.Fatalf("negative MaxRetries should disable retries, got %d", disabled.MaxRetries)
	}

	clamped := RetryPolicy{BaseDelay: 10 * time.Second, MaxDelay: time.Second}.Normalized()
	if clamped.MaxDelay != clamped.BaseDelay {
		t.Fatalf("MaxDelay should be raised to BaseDelay, got %v", clamped.MaxDelay)
	}
}

func TestRetryPolicyBackoffBounds(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}.Normalized()
	for attempt := 0; attempt < 6; attempt++ {
		delay := policy.Backoff(attempt)
		if delay <= 0 {
			t.Fatalf("attempt %d: delay must be positive, got %v", attempt, delay)
		}
		upper := time.Duration(float64(policy.MaxDelay) * 1.2)
		if delay > upper {
			t.Fatalf("attempt %d: delay %v exceeds jittered cap %v", attempt, delay, upper)
		}
	}
}

func TestRetryPolicyWaitCanceled(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{BaseDelay: time.Minute, MaxDelay: time.Minute}.Normalized()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := policy.Wait(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	quick := RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}.Normalized()
	if err := quick.Wait(context.Background(), 0); err != nil {
		t.Fatalf("short wait should succeed, got %v", err)
	}
}

func TestUsageHelpers(t *testing.T) {
	t.Parallel()

	u := Usage{InputTokens: 10, OutputTokens: 20, CacheReadTokens: 5, CacheWriteTokens: 1}
	if got := u.TokenCount(); got != 36 {
		t.Fatalf("TokenCount = %d, want 36", got)
	}
	clone := u.Clone()
	clone.OutputTokens = 99
	if u.OutputTokens != 20 {
		t.Fatalf("Clone must not alias the original")
	}
}

func TestCalculateCost(t *testing.T) {
	t.Parallel()

	pricing := Pricing{
		InputPerMTokUSD:      3,
		OutputPerMTokUSD:     15,
		CacheReadPerMTokUSD:  0.3,
		CacheWritePerMTokUSD: 3.75,
	}
	usage := Usage{InputTokens: 1_000_000, OutputTokens: 2_000_000, CacheReadTokens: 1_000_000}
	got := CalculateCost(usage, pricing)
	want := 3.0 + 30.0 + 0.3
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("CalculateCost = %v, want %v", got, want)
	}
}
