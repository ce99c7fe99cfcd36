package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"theta_trading/internal/exec"
	"theta_trading/internal/ledger"
	"theta_trading/internal/lifecycle"
	"theta_trading/internal/metrics"
	"theta_trading/internal/models"
	"theta_trading/internal/risk"
)

// riskLoop is the exit manager: every tick it marks open positions
// against the latest snapshot, applies at most one transition per
// position and feeds realized outcomes back into the allocation policy
// and the circuit breaker.
func (e *Engine) riskLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.RiskInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.safeTick("risk", func() { e.riskTick(ctx) })
		}
	}
}

// riskTick evaluates every open position against one snapshot. The whole
// tick runs inside the serialized section; order submissions happen
// under it too, bounded by the client's hard per-call timeout, so no
// other loop ever observes a position mid-transition.
func (e *Engine) riskTick(ctx context.Context) {
	snap := e.cache.Latest(e.cfg.StaleMaxAge())
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rolloverIfNewDay(now)

	// a stale snapshot is never partially trusted: regime and volatility
	// come only from fresh data, like the price marks below
	regime := models.RegimeNormal
	vol := e.lastVol
	if snap != nil && !snap.Stale {
		regime = snap.Regime
		vol = snap.VolIndex
		e.lastVol = snap.VolIndex
	}

	for _, pos := range e.ledger.Active() {
		if pos.Terminal() {
			continue
		}
		// mark only from data we trust; EOD and stop checks still run
		// against the last marked price when the feed goes stale
		if snap != nil && !snap.Stale {
			if q, ok := snap.QuoteFor(pos.EntrySignal.Strike, pos.EntrySignal.Direction); ok && q.Last.IsPositive() {
				e.manager.MarkPrice(pos, q.Last, now)
			}
		}

		a := e.manager.Assess(pos, regime, now)
		switch a.Kind {
		case lifecycle.ActionNone:
		case lifecycle.ActionTrail:
			e.manager.Apply(pos, a, decimal.Zero, decimal.Zero, now)
			e.dirty = true
			e.publish(pos, "TRAIL_UPDATE", models.ExitNone, decimal.Zero, a.NewStop, decimal.Zero)
		case lifecycle.ActionClose, lifecycle.ActionScale:
			e.executeExit(ctx, pos, a, now)
		}
	}

	e.breaker.Evaluate(risk.BreakerMetrics{
		VolIndex:          vol,
		DailyLossPct:      e.capital.DailyLossPct(),
		DrawdownPct:       e.capital.DrawdownPct(),
		ConsecutiveLosses: e.capital.ConsecutiveLosses(),
	})

	metrics.SetOpenPositions(e.ledger.OpenCount())
	metrics.SetEquity(e.capital.Equity().InexactFloat64())
	metrics.SetBreakerArmed(!e.breaker.Tripped())

	if e.dirty {
		e.saveStateLocked(now)
		e.dirty = false
	}
}

// executeExit submits the exit order for one assessed transition and
// applies the realized fill. A failed or rejected submission leaves the
// position untouched; the same rule fires again next tick. Called with
// mu held.
func (e *Engine) executeExit(ctx context.Context, pos *models.Position, a lifecycle.Assessment, now time.Time) {
	side := models.SideSell
	if !pos.Long() {
		side = models.SideBuy
	}
	order := exec.Order{
		PositionID: pos.ID,
		Symbol:     pos.EntrySignal.Symbol,
		Strike:     pos.EntrySignal.Strike,
		Direction:  pos.EntrySignal.Direction,
		Side:       side,
		Qty:        a.Qty,
		RefPrice:   pos.CurrentPrice,
	}
	fill, err := e.submitOrder(ctx, "exit_order", order)
	if err != nil {
		log.Printf("[risk] exit submit failed for %s (%s), retrying next tick: %v", pos.ID, a.Reason, err)
		return
	}
	if fill.Status == exec.StatusRejected {
		log.Printf("[risk] exit rejected for %s (%s), retrying next tick", pos.ID, a.Reason)
		return
	}

	before := pos.RemainingQty
	pnl := e.manager.Apply(pos, a, fill.Price, fill.Qty, now)
	applied := before.Sub(pos.RemainingQty)
	if !applied.IsPositive() {
		return
	}
	e.dirty = true

	terminal := pos.Terminal()
	e.capital.Release(pos.EntrySignal.Arm, pos.EntryPrice.Mul(applied), pnl, terminal)

	transition := "SCALE"
	if terminal {
		transition = "CLOSE"
	}
	metrics.IncExit(string(a.Reason))
	e.publish(pos, transition, a.Reason, applied, fill.Price, pnl)
	log.Printf("[risk] %s %s reason=%s qty=%s @ %s pnl=%s remaining=%s",
		transition, pos.ID, a.Reason, applied, fill.Price.StringFixed(2), pnl.StringFixed(2), pos.RemainingQty)

	if terminal {
		e.ledger.Archive(pos, now)
		e.policy.RecordOutcome(pos.EntrySignal.Arm, rewardFor(pos))
	}
}

// rewardFor maps a closed position's realized P&L to the policy reward:
// return on entry notional, clamped to [-1, 1].
func rewardFor(pos *models.Position) float64 {
	notional := pos.EntryPrice.Mul(pos.OriginalQty)
	if !notional.IsPositive() {
		return 0
	}
	r := pos.RealizedPnL.Div(notional).InexactFloat64()
	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}

// rolloverIfNewDay resets the daily capital counters when the trading
// day (in the EOD timezone) changes. Called with mu held.
func (e *Engine) rolloverIfNewDay(now time.Time) {
	day := e.tradingDay(now)
	if day == e.dayKey {
		return
	}
	log.Printf("[risk] trading day rollover %s -> %s, resetting daily counters", e.dayKey, day)
	e.dayKey = day
	e.capital.ResetDay()
	e.dirty = true
}

// saveStateLocked persists ledger and capital balances with mu held.
// Persistence failures are logged and never stop trading.
func (e *Engine) saveStateLocked(now time.Time) {
	if e.cfg.StateFile == "" {
		return
	}
	state := ledger.EngineState{
		SavedAt:   now,
		Positions: e.ledger.Snapshot(),
		Available: e.capital.Available(),
		DailyPnL:  e.capital.DailyPnL(),
		Allocated: e.capital.AllocatedAll(),
	}
	if err := ledger.SaveState(e.cfg.StateFile, state); err != nil {
		log.Printf("[risk] state save failed: %v", err)
	}
}
