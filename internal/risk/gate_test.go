package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"theta_trading/internal/models"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func testSignal(arm int, entry, qty float64) *models.Signal {
	return &models.Signal{
		Symbol:    "NIFTY",
		Side:      models.SideBuy,
		Strike:    d(22000),
		Direction: models.OptionCall,
		Entry:     d(entry),
		StopLoss:  d(entry * 0.9),
		TP1:       d(entry * 1.1),
		TP2:       d(entry * 1.2),
		TP3:       d(entry * 1.35),
		Quantity:  d(qty),
		Arm:       arm,
	}
}

func testGate() (*Gate, *CapitalLedger, *CircuitBreaker) {
	capital := NewCapitalLedger(d(100000), 3, 30)
	breaker := NewCircuitBreaker(BreakerLimits{
		VolIndexMax:          30,
		DailyLossPctMax:      5,
		DrawdownPctMax:       10,
		MaxConsecutiveLosses: 4,
	}, nil)
	gate := NewGate(GateLimits{
		DailyLossLimitPct: 5,
		PerTradeRiskPct:   10,
		MaxOpenPositions:  3,
	}, capital, breaker)
	return gate, capital, breaker
}

func TestGateAcceptReservesCapital(t *testing.T) {
	gate, capital, _ := testGate()

	dec := gate.Validate(testSignal(0, 100, 50), 0)
	if !dec.Accepted {
		t.Fatalf("rejected: %s", dec.Reason)
	}
	if want := d(95000); !capital.Available().Equal(want) {
		t.Fatalf("available = %s, want %s", capital.Available(), want)
	}
	if want := d(5000); !capital.Allocated(0).Equal(want) {
		t.Fatalf("allocated = %s, want %s", capital.Allocated(0), want)
	}
}

func TestGateBreakerCheckComesFirst(t *testing.T) {
	gate, capital, breaker := testGate()
	breaker.Trip(TripVolatility)
	// daily limit is also breached; the breaker reason must still win
	capital.Release(0, decimal.Zero, d(-6000), true)

	dec := gate.Validate(testSignal(0, 100, 10), 0)
	if dec.Accepted || dec.Reason != ReasonCircuitBreaker {
		t.Fatalf("got accepted=%v reason=%s", dec.Accepted, dec.Reason)
	}
}

func TestGateDailyLimitRejectsAndTrips(t *testing.T) {
	gate, capital, breaker := testGate()
	// realize a 5.2% daily loss
	capital.Release(0, decimal.Zero, d(-5200), true)

	dec := gate.Validate(testSignal(0, 100, 10), 0)
	if dec.Accepted || dec.Reason != ReasonDailyLimit {
		t.Fatalf("got accepted=%v reason=%s", dec.Accepted, dec.Reason)
	}
	if !breaker.Tripped() || breaker.Reason() != TripDailyLoss {
		t.Fatalf("breaker state=%s reason=%s", breaker.State(), breaker.Reason())
	}

	// the halt outlives the signal: the next one hits the breaker check
	dec = gate.Validate(testSignal(1, 100, 10), 0)
	if dec.Reason != ReasonCircuitBreaker {
		t.Fatalf("second signal reason = %s", dec.Reason)
	}

	// explicit reset is the only way back in
	breaker.Reset()
	capital.ResetDay()
	if dec := gate.Validate(testSignal(1, 100, 10), 0); !dec.Accepted {
		t.Fatalf("after reset: %s", dec.Reason)
	}
}

func TestGateArmAllocationCap(t *testing.T) {
	gate, capital, _ := testGate()
	// arm 0 already carries 25k of its 30k cap
	if err := capital.Reserve(0, d(25000)); err != nil {
		t.Fatal(err)
	}

	dec := gate.Validate(testSignal(0, 100, 60), 0) // 6k notional
	if dec.Reason != ReasonArmAllocation {
		t.Fatalf("reason = %s", dec.Reason)
	}

	// another arm has headroom for the same trade
	if dec := gate.Validate(testSignal(1, 100, 60), 0); !dec.Accepted {
		t.Fatalf("arm 1 rejected: %s", dec.Reason)
	}
}

func TestGateMaxPositions(t *testing.T) {
	gate, _, _ := testGate()
	dec := gate.Validate(testSignal(0, 100, 10), 3)
	if dec.Reason != ReasonMaxPositions {
		t.Fatalf("reason = %s", dec.Reason)
	}
}

func TestGatePerTradeRiskCap(t *testing.T) {
	gate, _, _ := testGate()
	// 10.5k notional against the 10k per-trade cap
	dec := gate.Validate(testSignal(0, 105, 100), 0)
	if dec.Reason != ReasonPerTradeRisk {
		t.Fatalf("reason = %s", dec.Reason)
	}
}

func TestGateChecksShortCircuitInOrder(t *testing.T) {
	gate, capital, _ := testGate()
	// arm cap breach and max positions both apply; arm cap is checked first
	if err := capital.Reserve(0, d(28000)); err != nil {
		t.Fatal(err)
	}
	dec := gate.Validate(testSignal(0, 100, 60), 3)
	if dec.Reason != ReasonArmAllocation {
		t.Fatalf("reason = %s, want arm allocation first", dec.Reason)
	}
}
