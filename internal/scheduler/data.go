package scheduler

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"theta_trading/internal/limiter"
	"theta_trading/internal/market"
	"theta_trading/internal/metrics"
	"theta_trading/internal/models"
)

// Regime classification bands applied by the data loop. The regime is
// set once per refresh so every rule evaluated against a snapshot sees
// the same classification.
const (
	strongPCRBand  = 0.25 // |PCR-1| beyond this reads as a directional market
	choppyPCRBand  = 0.08 // |PCR-1| inside this with elevated vol reads as chop
	choppyVolFloor = 20.0
)

// dataLoop refreshes the snapshot cache on an adaptive period: fast
// while positions are open or volatility runs hot, slow when idle. The
// period is re-derived after every tick.
func (e *Engine) dataLoop(ctx context.Context) {
	for {
		timer := time.NewTimer(e.dataPeriod())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			e.safeTick("data", func() { e.dataTick(ctx) })
		}
	}
}

// dataTick fetches one snapshot through the rate-limited client. On
// exhausted retries or stale data the previous good snapshot stays in
// the cache; decisions degrade on its age rather than trading blind.
func (e *Engine) dataTick(ctx context.Context) {
	var snap *models.MarketSnapshot
	err := e.client.Do(ctx, "fetch_snapshot", func(cctx context.Context) error {
		s, ferr := e.provider.Fetch(cctx, e.cfg.Symbols)
		if ferr != nil {
			return ferr
		}
		snap = s
		return nil
	})
	switch {
	case err == nil:
		snap.Regime = classifyRegime(snap)
		e.cache.Set(snap)
	case errors.Is(err, limiter.ErrRetriesExhausted):
		log.Printf("[data] refresh failed, keeping cached snapshot: %v", err)
	case market.IsStale(err):
		log.Printf("[data] provider reports stale data, keeping cached snapshot: %v", err)
	case ctx.Err() != nil:
		return
	default:
		log.Printf("[data] refresh error: %v", err)
	}

	if latest := e.cache.Latest(e.cfg.StaleMaxAge()); latest != nil {
		metrics.SetSnapshotAgeSeconds(latest.Age.Seconds())
	}
}

// dataPeriod picks the refresh interval for the next cycle.
func (e *Engine) dataPeriod() time.Duration {
	min := time.Duration(e.cfg.DataIntervalMinSec) * time.Second
	max := time.Duration(e.cfg.DataIntervalMaxSec) * time.Second

	// nothing trades past the cutoff, so crawl
	if e.manager.EODReached(e.now()) {
		return max
	}

	e.mu.Lock()
	open := e.ledger.OpenCount()
	e.mu.Unlock()
	if open > 0 {
		return min
	}

	// refresh fast while volatility is within striking distance of the trip
	// threshold, even with nothing open
	if snap := e.cache.Latest(e.cfg.StaleMaxAge()); snap != nil &&
		e.cfg.VolTripThreshold > 0 && snap.VolIndex >= e.cfg.VolTripThreshold*0.8 {
		return min
	}
	return max
}

// classifyRegime buckets the snapshot into the regime the exit rules key
// on. Strongly skewed put/call ratios read as a trending market; a flat
// ratio under elevated volatility reads as chop.
func classifyRegime(snap *models.MarketSnapshot) models.Regime {
	skew := math.Abs(snap.PCR - 1)
	switch {
	case skew >= strongPCRBand:
		return models.RegimeStrong
	case skew <= choppyPCRBand && snap.VolIndex >= choppyVolFloor:
		return models.RegimeChoppy
	default:
		return models.RegimeNormal
	}
}
