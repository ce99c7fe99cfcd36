package limiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenBucketAllowsBurstWithinWindow(t *testing.T) {
	b := NewTokenBucket(50)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 50; i++ {
		if err := b.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("burst within rate took %s", elapsed)
	}
}

func TestTokenBucketBlocksPastRate(t *testing.T) {
	b := NewTokenBucket(5)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 6; i++ {
		if err := b.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	// the sixth call must wait for the one-second window to roll
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("sixth call admitted after only %s", elapsed)
	}
}

func TestTokenBucketHonorsContextCancel(t *testing.T) {
	b := NewTokenBucket(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := b.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestBackoffBoundedAndMonotonic(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Factor: 2}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		w := b.Next(attempt)
		if w < prev {
			t.Fatalf("attempt %d wait %s below previous %s", attempt, w, prev)
		}
		if w > b.Max {
			t.Fatalf("attempt %d wait %s above max", attempt, w)
		}
		prev = w
	}
	if w := b.Next(10); w != b.Max {
		t.Fatalf("deep attempt = %s, want capped at %s", w, b.Max)
	}
}

func TestBackoffJitterStaysNearBase(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.2}
	for i := 0; i < 100; i++ {
		w := b.Next(1)
		if w < 80*time.Millisecond || w > 120*time.Millisecond {
			t.Fatalf("jittered wait %s outside 20%% of base", w)
		}
	}
}

func fastClient(maxRetries int) *Client {
	return NewClient(NewTokenBucket(1000),
		Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2},
		maxRetries, time.Second)
}

func TestClientRetriesThenExhausts(t *testing.T) {
	c := fastClient(3)
	retries := 0
	c.OnRetry(func() { retries++ })

	attempts := 0
	opErr := errors.New("boom")
	err := c.Do(context.Background(), "always_fails", func(context.Context) error {
		attempts++
		return opErr
	})

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, opErr) {
		t.Fatalf("last cause not wrapped: %v", err)
	}
	if attempts != 4 {
		t.Fatalf("attempts = %d, want first try + 3 retries", attempts)
	}
	if retries != 3 {
		t.Fatalf("retry hook fired %d times", retries)
	}
}

func TestClientStopsRetryingOnSuccess(t *testing.T) {
	c := fastClient(3)
	attempts := 0
	err := c.Do(context.Background(), "flaky", func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d", attempts)
	}
}

func TestClientRespectsParentCancel(t *testing.T) {
	c := fastClient(100)
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Do(ctx, "canceled", func(context.Context) error {
			attempts++
			return errors.New("still failing")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestClientHonorsRetryAfterHint(t *testing.T) {
	c := fastClient(1)
	start := time.Now()
	err := c.Do(context.Background(), "throttled", func(context.Context) error {
		return &RateLimitError{RetryAfter: 80 * time.Millisecond}
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v", err)
	}
	// the hint outranks the 1-2ms backoff
	if elapsed := time.Since(start); elapsed < 75*time.Millisecond {
		t.Fatalf("retry fired after %s, before the upstream hint", elapsed)
	}
}
