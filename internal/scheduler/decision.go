package scheduler

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"theta_trading/internal/exec"
	"theta_trading/internal/metrics"
	"theta_trading/internal/models"
)

// decisionLoop runs the fixed-cadence entry cycle: select an arm,
// evaluate its strategy, gate the signal, place the entry.
func (e *Engine) decisionLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.DecisionInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.safeTick("decision", func() { e.decisionTick(ctx) })
		}
	}
}

func (e *Engine) decisionTick(ctx context.Context) {
	e.mu.Lock()
	tripped := e.breaker.Tripped()
	e.mu.Unlock()
	if tripped {
		// while tripped the cycle is skipped entirely; open positions keep
		// being managed by the risk loop
		log.Printf("[decision] circuit breaker tripped, skipping cycle")
		return
	}

	snap := e.cache.Latest(e.cfg.StaleMaxAge())

	e.mu.Lock()
	arm := e.policy.SelectArm(snap)
	e.mu.Unlock()
	metrics.IncDecision(strconv.Itoa(arm))

	// selection always completes, but no strategy runs on data we cannot
	// trust for an entry
	if !snap.Valid() {
		log.Printf("[decision] arm=%d selected but snapshot unusable (stale=%v), no evaluation", arm, snap != nil && snap.Stale)
		return
	}

	sig := e.registry.Evaluate(ctx, arm, snap, e.cfg.StrategyTimeout())
	if sig == nil {
		return
	}
	metrics.IncSignal(strconv.Itoa(arm))

	e.mu.Lock()
	decision := e.gate.Validate(sig, e.ledger.OpenCount())
	e.mu.Unlock()
	if !decision.Accepted {
		metrics.IncRejection(string(decision.Reason))
		return
	}

	// capital is reserved; a failed entry must give it back
	e.placeEntry(ctx, sig)
}

// placeEntry submits the entry order for a gate-accepted signal and
// opens the position on the realized fill. Partial entry fills open a
// smaller position; the unused reservation is returned.
func (e *Engine) placeEntry(ctx context.Context, sig *models.Signal) {
	order := exec.Order{
		Symbol:    sig.Symbol,
		Strike:    sig.Strike,
		Direction: sig.Direction,
		Side:      sig.Side,
		Qty:       sig.Quantity,
		RefPrice:  sig.Entry,
	}
	fill, err := e.submitOrder(ctx, "entry_order", order)
	if err != nil || fill.Status == exec.StatusRejected {
		e.mu.Lock()
		e.capital.Release(sig.Arm, sig.Notional(), decimal.Zero, false)
		e.mu.Unlock()
		log.Printf("[decision] entry failed for arm=%d %s: status=%s err=%v", sig.Arm, sig.Symbol, fill.Status, err)
		return
	}

	e.mu.Lock()
	e.reconcileReservation(sig, fill)
	pos := e.ledger.Open(*sig, fill.Price, fill.Qty, e.now())
	e.dirty = true
	open := e.ledger.OpenCount()
	e.mu.Unlock()

	metrics.SetOpenPositions(open)
	e.publish(pos, "OPEN", models.ExitNone, fill.Qty, fill.Price, decimal.Zero)
	log.Printf("[decision] OPENED %s arm=%d %s qty=%s @ %s (status=%s)",
		pos.ID, sig.Arm, sig.Symbol, fill.Qty, fill.Price.StringFixed(2), fill.Status)
}

// reconcileReservation trues the gate's reservation, taken at the
// signal's reference notional, up or down to the realized fill cost.
// Called with mu held.
func (e *Engine) reconcileReservation(sig *models.Signal, fill exec.Fill) {
	reserved := sig.Notional()
	actual := fill.Price.Mul(fill.Qty)
	diff := reserved.Sub(actual)
	switch {
	case diff.IsPositive():
		e.capital.Release(sig.Arm, diff, decimal.Zero, false)
	case diff.IsNegative():
		if err := e.capital.Reserve(sig.Arm, diff.Neg()); err != nil {
			// slippage pushed the fill past a cap; the position is live, so
			// record the overage and move on
			log.Printf("[decision] fill cost exceeded reservation for arm=%d: %v", sig.Arm, err)
		}
	}
}

// submitOrder routes one order through the rate-limited retry client.
func (e *Engine) submitOrder(ctx context.Context, name string, order exec.Order) (exec.Fill, error) {
	var fill exec.Fill
	err := e.client.Do(ctx, name, func(cctx context.Context) error {
		f, serr := e.execer.Submit(cctx, order)
		if serr != nil {
			return serr
		}
		fill = f
		return nil
	})
	return fill, err
}
