package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"theta_trading/internal/models"
)

// SnapshotProvider supplies normalized market snapshots on demand. The
// real implementation sits behind a broker/data-vendor client and is out
// of scope here; the engine only depends on this contract.
type SnapshotProvider interface {
	Fetch(ctx context.Context, symbols []string) (*models.MarketSnapshot, error)
}

// StaleError reports that the provider could not produce fresh data. Age
// is how old the best available data is, so callers can decide whether
// degraded data is still usable instead of silently trading on it.
type StaleError struct {
	Age time.Duration
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("market data stale (age %s)", e.Age)
}

// IsStale reports whether err (or anything it wraps) is a StaleError.
func IsStale(err error) bool {
	var se *StaleError
	return errors.As(err, &se)
}

// Cache holds the most recent good snapshot. Readers get the cached
// value plus its age and decide for themselves whether it is too old;
// the cache never hands out partially updated snapshots.
type Cache struct {
	mu    sync.RWMutex
	snap  *models.MarketSnapshot
	setAt time.Time
	now   func() time.Time
}

// NewCache creates an empty snapshot cache. now is injectable for tests;
// pass nil for wall-clock time.
func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{now: now}
}

// Set replaces the cached snapshot. Only valid snapshots are stored;
// stale fetch results leave the previous good snapshot in place.
func (c *Cache) Set(snap *models.MarketSnapshot) {
	if snap == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	c.setAt = c.now()
}

// Latest returns the cached snapshot with its current age, or nil if
// nothing has been cached yet. The returned snapshot has Age and Stale
// refreshed against maxAge; the underlying cached value is not mutated.
func (c *Cache) Latest(maxAge time.Duration) *models.MarketSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return nil
	}
	out := *c.snap
	out.Age = c.now().Sub(c.setAt)
	if maxAge > 0 && out.Age > maxAge {
		out.Stale = true
	}
	return &out
}
