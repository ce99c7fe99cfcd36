package risk

import (
	"log"

	"github.com/shopspring/decimal"

	"theta_trading/internal/models"
)

// RejectReason is the stable code attached to every gate rejection.
type RejectReason string

const (
	ReasonNone           RejectReason = ""
	ReasonCircuitBreaker RejectReason = "CIRCUIT_BREAKER_ACTIVE"
	ReasonDailyLimit     RejectReason = "DAILY_LIMIT_HIT"
	ReasonArmAllocation  RejectReason = "ARM_ALLOCATION_EXCEEDED"
	ReasonMaxPositions   RejectReason = "MAX_POSITIONS"
	ReasonPerTradeRisk   RejectReason = "PER_TRADE_RISK_EXCEEDED"
)

// Decision is the gate's verdict on a candidate signal. Rejections are
// normal control flow, not errors; they are logged at info level and
// never retried.
type Decision struct {
	Accepted bool
	Reason   RejectReason
}

// GateLimits are the entry constraints the gate enforces.
type GateLimits struct {
	DailyLossLimitPct float64
	PerTradeRiskPct   float64
	MaxOpenPositions  int
}

// Gate validates candidate signals against capital and risk constraints.
// Checks run in a fixed order and short-circuit on the first failure. On
// accept, capital is reserved before the caller creates the position, so
// two signals can never be accepted against the same capital.
type Gate struct {
	limits  GateLimits
	capital *CapitalLedger
	breaker *CircuitBreaker
}

// NewGate wires the gate to the shared capital ledger and breaker.
func NewGate(limits GateLimits, capital *CapitalLedger, breaker *CircuitBreaker) *Gate {
	return &Gate{limits: limits, capital: capital, breaker: breaker}
}

// Validate runs the ordered checks against one signal. openPositions is
// the current count of OPEN/PARTIALLY_CLOSED positions. Must be called
// under the scheduler's serialization; the reserve on accept is atomic
// with the checks.
func (g *Gate) Validate(sig *models.Signal, openPositions int) Decision {
	notional := sig.Notional()

	// 1. Global halt switch.
	if g.breaker.Tripped() {
		return g.reject(sig, ReasonCircuitBreaker)
	}

	// 2. Daily loss limit; breaching it also trips the breaker so the
	// halt outlives this one signal.
	if g.limits.DailyLossLimitPct > 0 && g.capital.DailyLossPct() >= g.limits.DailyLossLimitPct {
		g.breaker.Trip(TripDailyLoss)
		return g.reject(sig, ReasonDailyLimit)
	}

	// 3. Per-arm allocation cap.
	if g.capital.Allocated(sig.Arm).Add(notional).GreaterThan(g.capital.ArmCap()) {
		return g.reject(sig, ReasonArmAllocation)
	}

	// 4. Open position ceiling.
	if g.limits.MaxOpenPositions > 0 && openPositions >= g.limits.MaxOpenPositions {
		return g.reject(sig, ReasonMaxPositions)
	}

	// 5. Per-trade risk cap.
	perTradeCap := g.capital.Starting().Mul(decimal.NewFromFloat(g.limits.PerTradeRiskPct / 100))
	if g.limits.PerTradeRiskPct > 0 && notional.GreaterThan(perTradeCap) {
		return g.reject(sig, ReasonPerTradeRisk)
	}

	if err := g.capital.Reserve(sig.Arm, notional); err != nil {
		// available capital ran out before any named limit did
		log.Printf("[gate] reserve failed for arm=%d: %v", sig.Arm, err)
		return g.reject(sig, ReasonPerTradeRisk)
	}

	log.Printf("[gate] ACCEPT arm=%d %s %s strike=%s notional=%s",
		sig.Arm, sig.Symbol, sig.Direction, sig.Strike, notional.StringFixed(2))
	return Decision{Accepted: true}
}

func (g *Gate) reject(sig *models.Signal, reason RejectReason) Decision {
	log.Printf("[gate] REJECT arm=%d %s reason=%s", sig.Arm, sig.Symbol, reason)
	return Decision{Accepted: false, Reason: reason}
}
