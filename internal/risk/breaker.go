package risk

import (
	"log"
	"time"
)

// BreakerState is the circuit breaker's two-position switch.
type BreakerState string

const (
	BreakerArmed   BreakerState = "ARMED"
	BreakerTripped BreakerState = "TRIPPED"
)

// TripReason is the stable code logged when the breaker opens.
type TripReason string

const (
	TripVolatility TripReason = "VOLATILITY_ABOVE_THRESHOLD"
	TripDailyLoss  TripReason = "DAILY_LOSS_LIMIT"
	TripDrawdown   TripReason = "DRAWDOWN_LIMIT"
	TripLossStreak TripReason = "CONSECUTIVE_LOSSES"
)

// BreakerLimits are the trip thresholds.
type BreakerLimits struct {
	VolIndexMax          float64
	DailyLossPctMax      float64
	DrawdownPctMax       float64
	MaxConsecutiveLosses int
}

// BreakerMetrics are the aggregate inputs evaluated every tick.
type BreakerMetrics struct {
	VolIndex          float64
	DailyLossPct      float64
	DrawdownPct       float64
	ConsecutiveLosses int
}

// CircuitBreaker is the global halt switch. Once tripped it stays
// tripped until Reset is called explicitly; ticks never auto-clear it,
// even if the triggering metric recovers, so re-arming is always a
// deliberate operator decision. Existing positions keep being managed
// while tripped; only new entries stop.
type CircuitBreaker struct {
	limits    BreakerLimits
	state     BreakerState
	reason    TripReason
	trippedAt time.Time
	now       func() time.Time
}

// NewCircuitBreaker creates an armed breaker. now is injectable for
// tests; nil means wall clock.
func NewCircuitBreaker(limits BreakerLimits, now func() time.Time) *CircuitBreaker {
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{limits: limits, state: BreakerArmed, now: now}
}

// Evaluate checks the metrics against the limits and trips on the first
// breach. Returns the resulting state.
func (b *CircuitBreaker) Evaluate(m BreakerMetrics) BreakerState {
	if b.state == BreakerTripped {
		return b.state
	}
	switch {
	case b.limits.VolIndexMax > 0 && m.VolIndex >= b.limits.VolIndexMax:
		b.Trip(TripVolatility)
	case b.limits.DailyLossPctMax > 0 && m.DailyLossPct >= b.limits.DailyLossPctMax:
		b.Trip(TripDailyLoss)
	case b.limits.DrawdownPctMax > 0 && m.DrawdownPct >= b.limits.DrawdownPctMax:
		b.Trip(TripDrawdown)
	case b.limits.MaxConsecutiveLosses > 0 && m.ConsecutiveLosses >= b.limits.MaxConsecutiveLosses:
		b.Trip(TripLossStreak)
	}
	return b.state
}

// Trip opens the breaker with the given reason. Tripping an already
// tripped breaker keeps the original reason and timestamp.
func (b *CircuitBreaker) Trip(reason TripReason) {
	if b.state == BreakerTripped {
		return
	}
	b.state = BreakerTripped
	b.reason = reason
	b.trippedAt = b.now()
	log.Printf("[breaker] TRIPPED reason=%s", reason)
}

// Reset re-arms the breaker. This is the only path out of TRIPPED.
func (b *CircuitBreaker) Reset() {
	if b.state == BreakerArmed {
		return
	}
	log.Printf("[breaker] reset (was tripped at %s, reason=%s)", b.trippedAt.Format(time.RFC3339), b.reason)
	b.state = BreakerArmed
	b.reason = ""
	b.trippedAt = time.Time{}
}

func (b *CircuitBreaker) State() BreakerState  { return b.state }
func (b *CircuitBreaker) Tripped() bool        { return b.state == BreakerTripped }
func (b *CircuitBreaker) Reason() TripReason   { return b.reason }
func (b *CircuitBreaker) TrippedAt() time.Time { return b.trippedAt }
