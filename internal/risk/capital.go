package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CapitalLedger tracks starting capital, the capital still available for
// new positions, per-arm allocations and the running daily P&L. It is
// mutated only inside the scheduler's serialized section.
type CapitalLedger struct {
	starting  decimal.Decimal
	available decimal.Decimal
	allocated []decimal.Decimal
	armCap    decimal.Decimal
	dailyPnL  decimal.Decimal
	totalPnL  decimal.Decimal
	peak      decimal.Decimal

	consecutiveLosses int
}

// NewCapitalLedger seeds a ledger with the full starting capital
// available and a per-arm cap of armCapPct percent of starting capital.
func NewCapitalLedger(starting decimal.Decimal, arms int, armCapPct float64) *CapitalLedger {
	if arms < 1 {
		arms = 1
	}
	return &CapitalLedger{
		starting:  starting,
		available: starting,
		allocated: make([]decimal.Decimal, arms),
		armCap:    starting.Mul(decimal.NewFromFloat(armCapPct / 100)),
		peak:      starting,
	}
}

// Reserve atomically moves notional from available to the arm's
// allocation. The risk gate performs the user-facing checks first;
// Reserve still refuses to break the ledger invariants if called out of
// order.
func (c *CapitalLedger) Reserve(arm int, notional decimal.Decimal) error {
	if arm < 0 || arm >= len(c.allocated) {
		return fmt.Errorf("capital: arm %d out of range", arm)
	}
	if notional.GreaterThan(c.available) {
		return fmt.Errorf("capital: reserve %s exceeds available %s", notional, c.available)
	}
	if c.allocated[arm].Add(notional).GreaterThan(c.armCap) {
		return fmt.Errorf("capital: reserve %s exceeds arm %d cap %s", notional, arm, c.armCap)
	}
	c.available = c.available.Sub(notional)
	c.allocated[arm] = c.allocated[arm].Add(notional)
	return nil
}

// Release returns an exit slice's entry notional to available capital
// and books its realized P&L. terminal marks a full position close, which
// is when the win/loss streak is updated.
func (c *CapitalLedger) Release(arm int, notional, pnl decimal.Decimal, terminal bool) {
	if arm >= 0 && arm < len(c.allocated) {
		c.allocated[arm] = c.allocated[arm].Sub(notional)
		if c.allocated[arm].IsNegative() {
			c.allocated[arm] = decimal.Zero
		}
	}
	c.available = c.available.Add(notional).Add(pnl)
	if c.available.IsNegative() {
		c.available = decimal.Zero
	}
	c.dailyPnL = c.dailyPnL.Add(pnl)
	c.totalPnL = c.totalPnL.Add(pnl)

	if eq := c.Equity(); eq.GreaterThan(c.peak) {
		c.peak = eq
	}
	if terminal {
		if pnl.IsNegative() {
			c.consecutiveLosses++
		} else {
			c.consecutiveLosses = 0
		}
	}
}

// Equity is capital at cost: available plus everything allocated to
// open positions.
func (c *CapitalLedger) Equity() decimal.Decimal {
	eq := c.available
	for _, a := range c.allocated {
		eq = eq.Add(a)
	}
	return eq
}

// DailyLossPct returns today's realized loss as a positive percentage of
// starting capital, zero while the day is profitable.
func (c *CapitalLedger) DailyLossPct() float64 {
	if !c.dailyPnL.IsNegative() || !c.starting.IsPositive() {
		return 0
	}
	return c.dailyPnL.Neg().Div(c.starting).InexactFloat64() * 100
}

// DrawdownPct returns the percent decline of equity from its peak.
func (c *CapitalLedger) DrawdownPct() float64 {
	if !c.peak.IsPositive() {
		return 0
	}
	dd := c.peak.Sub(c.Equity())
	if dd.IsNegative() {
		return 0
	}
	return dd.Div(c.peak).InexactFloat64() * 100
}

// ResetDay zeroes the daily counters at the trading-day boundary.
func (c *CapitalLedger) ResetDay() {
	c.dailyPnL = decimal.Zero
	c.consecutiveLosses = 0
}

// Accessors used by the gate, breaker inputs and reporting.
func (c *CapitalLedger) Starting() decimal.Decimal  { return c.starting }
func (c *CapitalLedger) Available() decimal.Decimal { return c.available }
func (c *CapitalLedger) DailyPnL() decimal.Decimal  { return c.dailyPnL }
func (c *CapitalLedger) ConsecutiveLosses() int     { return c.consecutiveLosses }
func (c *CapitalLedger) ArmCap() decimal.Decimal    { return c.armCap }

// Allocated returns the capital currently reserved for one arm.
func (c *CapitalLedger) Allocated(arm int) decimal.Decimal {
	if arm < 0 || arm >= len(c.allocated) {
		return decimal.Zero
	}
	return c.allocated[arm]
}

// Restore rehydrates ledger balances from persisted state.
func (c *CapitalLedger) Restore(available, dailyPnL decimal.Decimal, allocated []decimal.Decimal) {
	if !available.IsNegative() {
		c.available = available
	}
	c.dailyPnL = dailyPnL
	for i := 0; i < len(c.allocated) && i < len(allocated); i++ {
		c.allocated[i] = allocated[i]
	}
	if eq := c.Equity(); eq.GreaterThan(c.peak) {
		c.peak = eq
	}
}

// AllocatedAll returns a copy of the per-arm allocations.
func (c *CapitalLedger) AllocatedAll() []decimal.Decimal {
	out := make([]decimal.Decimal, len(c.allocated))
	copy(out, c.allocated)
	return out
}
