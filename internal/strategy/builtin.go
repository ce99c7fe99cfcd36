package strategy

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"theta_trading/internal/models"
)

// Built-in demo arms used by the paper binary. Their signal content is
// illustrative; real deployments register their own capabilities.

const lotSize = 50

var (
	slFraction  = decimal.NewFromFloat(0.85)
	tp1Fraction = decimal.NewFromFloat(1.10)
	tp2Fraction = decimal.NewFromFloat(1.20)
	tp3Fraction = decimal.NewFromFloat(1.35)
)

// MomentumCallBuyer buys an at-the-money call when the put/call ratio
// points bullish and volatility is not elevated.
type MomentumCallBuyer struct {
	Symbol string
}

func (m *MomentumCallBuyer) Name() string { return "momentum_call_buyer" }

func (m *MomentumCallBuyer) Evaluate(ctx context.Context, snap *models.MarketSnapshot) (*models.Signal, error) {
	if !snap.Valid() || snap.PCR < 1.05 || snap.VolIndex > 25 {
		return nil, nil
	}
	return buildPremiumLong(snap, m.Symbol, models.OptionCall, 0.5+(snap.PCR-1)), nil
}

// ContrarianPutBuyer buys an at-the-money put when the put/call ratio is
// stretched low, fading one-sided positioning.
type ContrarianPutBuyer struct {
	Symbol string
}

func (c *ContrarianPutBuyer) Name() string { return "contrarian_put_buyer" }

func (c *ContrarianPutBuyer) Evaluate(ctx context.Context, snap *models.MarketSnapshot) (*models.Signal, error) {
	if !snap.Valid() || snap.PCR > 0.75 {
		return nil, nil
	}
	return buildPremiumLong(snap, c.Symbol, models.OptionPut, 0.5+(0.8-snap.PCR)), nil
}

// Flat never trades. Keeping a do-nothing arm in the action space gives
// the allocation policy an explicit "stand aside" choice.
type Flat struct{}

func (f *Flat) Name() string { return "flat" }

func (f *Flat) Evaluate(ctx context.Context, snap *models.MarketSnapshot) (*models.Signal, error) {
	return nil, nil
}

func buildPremiumLong(snap *models.MarketSnapshot, symbol string, dir models.OptionSide, confidence float64) *models.Signal {
	spot, ok := snap.SpotFor(symbol)
	if !ok {
		return nil
	}
	strike := atmStrike(spot, 50)
	quote, ok := snap.QuoteFor(strike, dir)
	if !ok || !quote.Last.IsPositive() {
		return nil
	}

	entry := quote.Last
	return &models.Signal{
		Symbol:     symbol,
		Side:       models.SideBuy,
		Strike:     strike,
		Direction:  dir,
		Entry:      entry,
		StopLoss:   entry.Mul(slFraction).Round(2),
		TP1:        entry.Mul(tp1Fraction).Round(2),
		TP2:        entry.Mul(tp2Fraction).Round(2),
		TP3:        entry.Mul(tp3Fraction).Round(2),
		Quantity:   decimal.NewFromInt(lotSize),
		Confidence: math.Min(confidence, 1),
	}
}

func atmStrike(spot decimal.Decimal, step int64) decimal.Decimal {
	s := spot.InexactFloat64()
	return decimal.NewFromFloat(math.Round(s/float64(step)) * float64(step))
}
