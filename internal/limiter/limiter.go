package limiter

import (
	"context"
	"sync"
	"time"
)

// TokenBucket enforces a hard cap of Rate calls within any one-second
// window. Wait blocks the caller (never other goroutines) until a slot
// opens or the context ends.
type TokenBucket struct {
	mu     sync.Mutex
	rate   int
	issued []time.Time
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

// NewTokenBucket creates a bucket issuing at most rate calls per second.
func NewTokenBucket(rate int) *TokenBucket {
	if rate <= 0 {
		rate = 1
	}
	return &TokenBucket{
		rate:  rate,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Wait blocks until issuing one more call keeps the one-second window
// within the configured rate.
func (b *TokenBucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.now()
		cutoff := now.Add(-time.Second)
		live := b.issued[:0]
		for _, t := range b.issued {
			if t.After(cutoff) {
				live = append(live, t)
			}
		}
		b.issued = live

		if len(b.issued) < b.rate {
			b.issued = append(b.issued, now)
			b.mu.Unlock()
			return nil
		}
		wait := b.issued[0].Sub(cutoff)
		b.mu.Unlock()

		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
	}
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
