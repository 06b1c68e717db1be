package deconz_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"deconzctl/internal/deconz"
)

func TestWithRetryStopsWhenContextIsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := deconz.WithRetry(ctx, deconz.DefaultRetryConfig(), func() error {
		attempts++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error: got %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts: got %d, want 1", attempts)
	}
}

func TestWithRetryReturnsContextErrorFromOperation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := deconz.WithRetry(ctx, deconz.DefaultRetryConfig(), func() error {
		attempts++
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error: got %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts: got %d, want 1", attempts)
	}
}

func TestWithRetryCapsBackoff(t *testing.T) {
	// With an uncapped multiplier of 1000 the second delay alone would
	// be a full second; the cap keeps the whole run in the millisecond
	// range.
	cfg := deconz.RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   1000,
	}

	attempts := 0
	start := time.Now()
	err := deconz.WithRetry(context.Background(), cfg, func() error {
		attempts++
		return errors.New("transient")
	})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected the last error back")
	}
	if attempts != cfg.MaxAttempts {
		t.Errorf("attempts: got %d, want %d", attempts, cfg.MaxAttempts)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("backoff not capped: %s elapsed", elapsed)
	}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	sentinel := errors.New("rejected")

	attempts := 0
	err := deconz.WithRetry(context.Background(), deconz.DefaultRetryConfig(), func() error {
		attempts++
		return deconz.Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("error: got %v, want the wrapped sentinel", err)
	}
	if attempts != 1 {
		t.Errorf("attempts: got %d, want 1", attempts)
	}
}
