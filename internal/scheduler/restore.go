package scheduler

import (
	"log"
	"time"

	"github.com/shopspring/decimal"

	"theta_trading/internal/ledger"
	"theta_trading/internal/metrics"
	"theta_trading/internal/models"
)

// RestoreState rehydrates positions and capital balances from the state
// file before the loops start. Positions the recovery pass cannot repair
// are force-closed at their last known price instead of being left
// unmanaged. A missing state file is a clean start.
func (e *Engine) RestoreState() error {
	if e.cfg.StateFile == "" {
		return nil
	}
	state, ok, err := ledger.LoadState(e.cfg.StateFile)
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("[restore] no state file, starting clean")
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.capital.Restore(state.Available, state.DailyPnL, state.Allocated)

	now := e.now()
	restored, forced := 0, 0
	for _, saved := range state.Positions {
		pos := saved
		if pos.Terminal() {
			continue
		}
		if e.manager.Recover(&pos) {
			e.ledger.Restore(pos)
			restored++
			continue
		}
		e.forceClose(pos, now)
		forced++
	}

	log.Printf("[restore] state from %s: %d positions restored, %d force-closed",
		state.SavedAt.Format("2006-01-02 15:04:05"), restored, forced)
	if forced > 0 {
		e.saveStateLocked(now)
	}
	return nil
}

// forceClose terminates an unrecoverable position at its last known
// price and books the outcome, so capital and policy statistics stay
// consistent with what actually happened. Called with mu held.
func (e *Engine) forceClose(pos models.Position, now time.Time) {
	price := pos.CurrentPrice
	if !price.IsPositive() {
		price = pos.EntryPrice
	}
	remaining := pos.RemainingQty

	pnl := decimal.Zero
	if remaining.IsPositive() && price.IsPositive() && pos.EntryPrice.IsPositive() {
		diff := price.Sub(pos.EntryPrice)
		if !pos.Long() {
			diff = diff.Neg()
		}
		pnl = diff.Mul(remaining)
	}

	pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
	pos.RemainingQty = decimal.Zero
	pos.Status = models.StatusClosed
	pos.ExitReason = models.ExitDataRecoveryForced

	p := e.ledger.Restore(pos)
	e.ledger.Archive(p, now)
	e.capital.Release(pos.EntrySignal.Arm, pos.EntryPrice.Mul(remaining), pnl, true)
	e.policy.RecordOutcome(pos.EntrySignal.Arm, rewardFor(p))

	metrics.IncExit(string(models.ExitDataRecoveryForced))
	e.publish(p, "CLOSE", models.ExitDataRecoveryForced, remaining, price, pnl)
	log.Printf("[restore] force-closed %s qty=%s @ %s pnl=%s", p.ID, remaining, price.StringFixed(2), pnl.StringFixed(2))
}

// SaveState persists the ledgers on demand, typically at shutdown.
func (e *Engine) SaveState() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saveStateLocked(e.now())
}
