package exec

import (
	"context"
	"errors"
	"math/rand"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"theta_trading/internal/models"
)

// SimClient simulates execution for paper mode. Orders never touch an
// exchange: fills land at the reference price moved by spread-based
// slippage, and a fraction of orders fill only partially so the
// lifecycle path for partial fills stays exercised.
type SimClient struct {
	rng         *rand.Rand
	spreadBps   float64 // full bid/ask spread in basis points
	partialProb float64
}

// NewSimClient builds a simulated execution client. rng may be nil for a
// time-seeded source.
func NewSimClient(spreadBps, partialProb float64, rng *rand.Rand) *SimClient {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if spreadBps < 0 {
		spreadBps = 0
	}
	if partialProb < 0 || partialProb >= 1 {
		partialProb = 0
	}
	return &SimClient{rng: rng, spreadBps: spreadBps, partialProb: partialProb}
}

// Submit fills the order at RefPrice plus half-spread slippage against
// the taker. Occasionally returns a partial fill of 50-80% of the
// requested quantity.
func (s *SimClient) Submit(ctx context.Context, order Order) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if !order.Qty.IsPositive() || !order.RefPrice.IsPositive() {
		return Fill{OrderID: order.ID, Status: StatusRejected}, errors.New("sim exec: bad order quantity or price")
	}
	if order.ID == "" {
		order.ID = uuid.New().String()
	}

	half := order.RefPrice.Mul(decimal.NewFromFloat(s.spreadBps / 2 / 10000))
	price := order.RefPrice
	if order.Side == models.SideBuy {
		price = price.Add(half)
	} else {
		price = price.Sub(half)
	}
	if !price.IsPositive() {
		price = order.RefPrice
	}

	fill := Fill{OrderID: order.ID, Status: StatusFilled, Price: price.Round(2), Qty: order.Qty}
	if s.partialProb > 0 && s.rng.Float64() < s.partialProb {
		frac := decimal.NewFromFloat(0.5 + s.rng.Float64()*0.3)
		partial := order.Qty.Mul(frac).Floor()
		if partial.IsPositive() && partial.LessThan(order.Qty) {
			fill.Status = StatusPartialFill
			fill.Qty = partial
		}
	}
	return fill, nil
}
