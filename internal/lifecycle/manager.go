package lifecycle

import (
	"log"
	"time"

	"github.com/shopspring/decimal"

	"theta_trading/internal/models"
)

// ActionKind classifies what the manager wants done with a position on
// this tick.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionClose // close the full remaining quantity, terminal
	ActionScale // close a slice of the original quantity
	ActionTrail // ratchet the trailing stop, no exit
)

// Assessment is the single transition selected for one position on one
// tick. Exactly one rule fires per position per tick (first match wins).
type Assessment struct {
	Kind     ActionKind
	Reason   models.ExitReason
	Qty      decimal.Decimal // requested exit quantity for Close/Scale
	NewStop  decimal.Decimal // for ActionTrail
	Terminal bool
}

// Config are the exit-management knobs.
type Config struct {
	TP1ScaleFrac     decimal.Decimal // fraction of ORIGINAL qty closed at TP1
	TP2ScaleFrac     decimal.Decimal // fraction of ORIGINAL qty closed at TP2
	TrailDistancePct float64         // trail distance, percent of price
	EODHour          int
	EODMinute        int
	Location         *time.Location
}

// Manager evaluates open positions against the current snapshot and
// produces exit transitions. It never touches the ledger or the broker
// itself; the scheduler applies what it decides.
type Manager struct {
	cfg Config
}

// NewManager builds a lifecycle manager.
func NewManager(cfg Config) *Manager {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Manager{cfg: cfg}
}

// EODReached reports whether the forced end-of-day cutoff has passed.
func (m *Manager) EODReached(now time.Time) bool {
	local := now.In(m.cfg.Location)
	cutoff := time.Date(local.Year(), local.Month(), local.Day(),
		m.cfg.EODHour, m.cfg.EODMinute, 0, 0, m.cfg.Location)
	return !local.Before(cutoff)
}

// MarkPrice refreshes the position's view of the market and ratchets the
// high-water mark. Called once per tick before Assess so every rule sees
// the same marked price.
func (m *Manager) MarkPrice(pos *models.Position, price decimal.Decimal, now time.Time) {
	if pos.Terminal() || !price.IsPositive() {
		return
	}
	pos.CurrentPrice = price
	pos.CurrentTime = now
	if pos.HighWaterMark.IsZero() {
		pos.HighWaterMark = pos.EntryPrice
	}
	if favorable(pos, price, pos.HighWaterMark) {
		pos.HighWaterMark = price
	}
}

// Assess picks the transition for one position on one tick, in priority
// order: EOD cutoff pre-empts everything once reached, then stop breach,
// TP3, TP2, TP1, trailing ratchet. CLOSED positions always get
// ActionNone. Assess does not mutate the position.
func (m *Manager) Assess(pos *models.Position, regime models.Regime, now time.Time) Assessment {
	if pos.Terminal() || !pos.RemainingQty.IsPositive() {
		return Assessment{}
	}
	price := pos.CurrentPrice
	if !price.IsPositive() {
		return Assessment{}
	}

	// 6 (pre-empting). Forced end-of-day close.
	if m.EODReached(now) {
		return Assessment{Kind: ActionClose, Reason: models.ExitEndOfDay, Qty: pos.RemainingQty, Terminal: true}
	}

	// 1. Stop-loss / trailing-stop breach.
	if stop, reason, ok := m.stopLevel(pos); ok && crossedAgainst(pos, price, stop) {
		return Assessment{Kind: ActionClose, Reason: reason, Qty: pos.RemainingQty, Terminal: true}
	}

	// 2. TP3 always fully closes; no partials past this level.
	if crossedFor(pos, price, pos.EntrySignal.TP3) {
		return Assessment{Kind: ActionClose, Reason: models.ExitTP3Target, Qty: pos.RemainingQty, Terminal: true}
	}

	// 3. TP2 partial, once.
	if !pos.TP2Scaled && crossedFor(pos, price, pos.EntrySignal.TP2) {
		qty := clampQty(pos.OriginalQty.Mul(m.cfg.TP2ScaleFrac), pos.RemainingQty)
		return Assessment{Kind: ActionScale, Reason: models.ExitTP2PartialScale, Qty: qty}
	}

	// 4. TP1, once; regime decides between full exit and partial.
	if !pos.TP1Scaled && crossedFor(pos, price, pos.EntrySignal.TP1) {
		if regime == models.RegimeChoppy {
			return Assessment{Kind: ActionClose, Reason: models.ExitTP1FullChoppy, Qty: pos.RemainingQty, Terminal: true}
		}
		reason := models.ExitTP1PartialNormal
		if regime == models.RegimeStrong {
			reason = models.ExitTP1PartialStrong
		}
		qty := clampQty(pos.OriginalQty.Mul(m.cfg.TP1ScaleFrac), pos.RemainingQty)
		return Assessment{Kind: ActionScale, Reason: reason, Qty: qty}
	}

	// 5. Trailing ratchet, never backward.
	if next, ok := m.nextTrailingStop(pos, price); ok {
		return Assessment{Kind: ActionTrail, NewStop: next}
	}

	return Assessment{}
}

// Apply mutates the position for an assessed transition. filledQty may be
// below the requested quantity when the execution client partially
// fills; only the filled part leaves the position. fillPrice is the
// realized exit price for the slice. Returns the realized P&L of the
// slice (zero for trail updates).
func (m *Manager) Apply(pos *models.Position, a Assessment, fillPrice, filledQty decimal.Decimal, now time.Time) decimal.Decimal {
	switch a.Kind {
	case ActionTrail:
		pos.TrailingStop = a.NewStop
		return decimal.Zero

	case ActionClose, ActionScale:
		qty := clampQty(filledQty, pos.RemainingQty)
		if !qty.IsPositive() {
			return decimal.Zero
		}
		pnl := slicePnL(pos, fillPrice, qty)
		pos.RemainingQty = pos.RemainingQty.Sub(qty)
		pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
		pos.CurrentPrice = fillPrice
		pos.CurrentTime = now

		switch a.Reason {
		case models.ExitTP1PartialNormal, models.ExitTP1PartialStrong:
			pos.TP1Scaled = true
		case models.ExitTP2PartialScale:
			pos.TP2Scaled = true
		}

		if pos.RemainingQty.IsPositive() {
			pos.Status = models.StatusPartiallyClosed
		} else {
			pos.RemainingQty = decimal.Zero
			pos.Status = models.StatusClosed
			pos.ExitReason = a.Reason
		}
		return pnl
	}
	return decimal.Zero
}

// Recover repairs a restored position in place where possible. It
// returns false when critical fields are missing beyond repair, in which
// case the caller force-closes the position at its last known price with
// DATA_RECOVERY_FORCED_CLOSE instead of leaving it unmanaged.
func (m *Manager) Recover(pos *models.Position) bool {
	if pos.Terminal() {
		return true
	}
	if !pos.EntryPrice.IsPositive() || !pos.OriginalQty.IsPositive() {
		return false
	}
	if pos.EntrySignal.Validate() != nil {
		return false
	}
	if pos.RemainingQty.GreaterThan(pos.OriginalQty) {
		log.Printf("[lifecycle] position %s remaining > original, clamping", pos.ID)
		pos.RemainingQty = pos.OriginalQty
	}
	if !pos.RemainingQty.IsPositive() {
		return false
	}
	if !pos.CurrentPrice.IsPositive() {
		pos.CurrentPrice = pos.EntryPrice
	}
	if pos.HighWaterMark.IsZero() {
		pos.HighWaterMark = pos.EntryPrice
	}
	if pos.Status != models.StatusOpen && pos.Status != models.StatusPartiallyClosed {
		pos.Status = models.StatusOpen
	}
	return true
}

// stopLevel resolves the working stop: the initial stop-loss, lifted to
// breakeven-or-better once the first take-profit has scaled, then
// superseded by the trailing stop when the ratchet has moved past it.
func (m *Manager) stopLevel(pos *models.Position) (decimal.Decimal, models.ExitReason, bool) {
	stop := pos.EntrySignal.StopLoss
	reason := models.ExitStopLoss
	if (pos.TP1Scaled || pos.TP2Scaled) && favorable(pos, pos.EntryPrice, stop) {
		stop = pos.EntryPrice
	}
	if !pos.TrailingStop.IsZero() && favorable(pos, pos.TrailingStop, stop) {
		stop = pos.TrailingStop
		reason = models.ExitTrailingStop
	}
	return stop, reason, stop.IsPositive()
}

// nextTrailingStop proposes a ratchet when the high-water mark has moved
// far enough from entry. The proposal trails the mark by the configured
// distance and is only returned when it improves on the current stop.
func (m *Manager) nextTrailingStop(pos *models.Position, price decimal.Decimal) (decimal.Decimal, bool) {
	if m.cfg.TrailDistancePct <= 0 {
		return decimal.Zero, false
	}
	dist := decimal.NewFromFloat(m.cfg.TrailDistancePct / 100)
	hwm := pos.HighWaterMark

	// activation: the mark must clear entry by at least the trail distance
	moved := hwm.Sub(pos.EntryPrice)
	if !pos.Long() {
		moved = moved.Neg()
	}
	if moved.LessThan(pos.EntryPrice.Mul(dist)) {
		return decimal.Zero, false
	}

	var candidate decimal.Decimal
	if pos.Long() {
		candidate = hwm.Mul(decimal.NewFromInt(1).Sub(dist)).Round(2)
	} else {
		candidate = hwm.Mul(decimal.NewFromInt(1).Add(dist)).Round(2)
	}

	if pos.TrailingStop.IsZero() {
		if favorable(pos, candidate, pos.EntrySignal.StopLoss) {
			return candidate, true
		}
		return decimal.Zero, false
	}
	if favorable(pos, candidate, pos.TrailingStop) {
		return candidate, true
	}
	return decimal.Zero, false
}

// slicePnL is the realized P&L for closing qty at fillPrice.
func slicePnL(pos *models.Position, fillPrice, qty decimal.Decimal) decimal.Decimal {
	diff := fillPrice.Sub(pos.EntryPrice)
	if !pos.Long() {
		diff = diff.Neg()
	}
	return diff.Mul(qty)
}

// favorable reports whether a is strictly better than b from the
// position's point of view (higher for long, lower for short).
func favorable(pos *models.Position, a, b decimal.Decimal) bool {
	if pos.Long() {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// crossedFor reports whether price has reached a profit level.
func crossedFor(pos *models.Position, price, level decimal.Decimal) bool {
	if pos.Long() {
		return price.GreaterThanOrEqual(level)
	}
	return price.LessThanOrEqual(level)
}

// crossedAgainst reports whether price has breached a protective stop.
func crossedAgainst(pos *models.Position, price, stop decimal.Decimal) bool {
	if pos.Long() {
		return price.LessThanOrEqual(stop)
	}
	return price.GreaterThanOrEqual(stop)
}

func clampQty(q, max decimal.Decimal) decimal.Decimal {
	if q.GreaterThan(max) {
		return max
	}
	return q
}
