package limiter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrRetriesExhausted is returned once all retry attempts fail; callers
// proceed with cached/stale data rather than blocking further.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RateLimitError marks a throttling response from the external API. It
// is handled entirely inside Client; callers only see it wrapped in
// ErrRetriesExhausted after the budget runs out.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by upstream (retry after %s)", e.RetryAfter)
}

// Client wraps external calls with the token bucket, a hard per-call
// timeout and bounded exponential-backoff retries.
type Client struct {
	bucket      *TokenBucket
	backoff     Backoff
	maxRetries  int
	callTimeout time.Duration
	onRetry     func() // metrics hook, may be nil
}

// NewClient builds a call wrapper. maxRetries counts retries after the
// first attempt; callTimeout bounds each individual attempt.
func NewClient(bucket *TokenBucket, backoff Backoff, maxRetries int, callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		bucket:      bucket,
		backoff:     backoff,
		maxRetries:  maxRetries,
		callTimeout: callTimeout,
	}
}

// OnRetry registers a hook invoked once per retry attempt.
func (c *Client) OnRetry(fn func()) { c.onRetry = fn }

// Do runs op under the rate limit with retries. Each attempt gets its own
// deadline so a hung call is treated as a transient failure. Only the
// parent context being canceled stops the retry loop early.
func (c *Client) Do(ctx context.Context, name string, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if c.onRetry != nil {
				c.onRetry()
			}
			wait := c.backoff.Next(attempt)
			var rl *RateLimitError
			if errors.As(lastErr, &rl) && rl.RetryAfter > wait {
				wait = rl.RetryAfter
			}
			log.Printf("[limiter] %s attempt %d failed (%v), backing off %s", name, attempt, lastErr, wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
		}

		if err := c.bucket.Wait(ctx); err != nil {
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		err := op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}
	return fmt.Errorf("%s: %w: %w", name, ErrRetriesExhausted, lastErr)
}
