package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"theta_trading/internal/models"
)

// SimProvider generates synthetic snapshots from a seeded random walk.
// It backs paper trading and tests; orders placed against it never touch
// an exchange. ForceStale flips the provider into a degraded mode that
// returns StaleError until cleared.
type SimProvider struct {
	mu         sync.Mutex
	rng        *rand.Rand
	spot       map[string]float64
	vol        float64
	pcr        float64
	forceStale bool
	staleSince time.Time
	now        func() time.Time
}

// NewSimProvider seeds a provider with starting spot prices per symbol.
func NewSimProvider(seed int64, start map[string]float64, now func() time.Time) *SimProvider {
	if now == nil {
		now = time.Now
	}
	spot := make(map[string]float64, len(start))
	for sym, px := range start {
		spot[sym] = px
	}
	return &SimProvider{
		rng:  rand.New(rand.NewSource(seed)),
		spot: spot,
		vol:  16.0,
		pcr:  1.0,
		now:  now,
	}
}

// SetForceStale toggles degraded mode.
func (p *SimProvider) SetForceStale(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v && !p.forceStale {
		p.staleSince = p.now()
	}
	p.forceStale = v
}

// Fetch advances the walk one step and returns a fully populated
// snapshot, or StaleError in degraded mode.
func (p *SimProvider) Fetch(ctx context.Context, symbols []string) (*models.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.forceStale {
		return nil, &StaleError{Age: p.now().Sub(p.staleSince)}
	}

	// drift the aggregates a little each step
	p.vol = clamp(p.vol+p.rng.NormFloat64()*0.4, 9, 45)
	p.pcr = clamp(p.pcr+p.rng.NormFloat64()*0.03, 0.4, 1.8)

	snap := &models.MarketSnapshot{
		Timestamp:      p.now(),
		Spot:           make(map[string]decimal.Decimal, len(symbols)),
		PCR:            p.pcr,
		VolIndex:       p.vol,
		Regime:         models.RegimeNormal,
		FeatureVersion: models.FeatureVersion,
		Options:        make(map[models.OptionKey]models.OptionQuote),
	}

	for _, sym := range symbols {
		px, ok := p.spot[sym]
		if !ok {
			continue
		}
		px *= 1 + p.rng.NormFloat64()*p.vol/100/math.Sqrt(252*75)
		p.spot[sym] = px
		spot := decimal.NewFromFloat(px).Round(2)
		snap.Spot[sym] = spot
		p.populateChain(snap, spot)
	}

	snap.Features = p.features(snap)
	return snap, nil
}

// populateChain writes a small strip of strikes around the spot with
// premium, greeks and open interest plausible enough for strategies to
// chew on.
func (p *SimProvider) populateChain(snap *models.MarketSnapshot, spot decimal.Decimal) {
	step := 50.0
	atm := math.Round(spot.InexactFloat64()/step) * step
	for i := -3; i <= 3; i++ {
		strike := decimal.NewFromFloat(atm + float64(i)*step)
		moneyness := (spot.InexactFloat64() - strike.InexactFloat64()) / spot.InexactFloat64()

		callPrem := math.Max(spot.InexactFloat64()*0.01*(1+moneyness*8), 1)
		putPrem := math.Max(spot.InexactFloat64()*0.01*(1-moneyness*8), 1)

		snap.Options[models.NewOptionKey(strike, models.OptionCall)] = p.quote(callPrem, 0.5+moneyness*4)
		snap.Options[models.NewOptionKey(strike, models.OptionPut)] = p.quote(putPrem, -0.5+moneyness*4)
	}
}

func (p *SimProvider) quote(premium, delta float64) models.OptionQuote {
	last := decimal.NewFromFloat(premium).Round(2)
	spread := decimal.NewFromFloat(math.Max(premium*0.005, 0.05)).Round(2)
	return models.OptionQuote{
		Last:         last,
		Bid:          last.Sub(spread),
		Ask:          last.Add(spread),
		OpenInterest: int64(p.rng.Intn(50000) + 10000),
		Volume:       int64(p.rng.Intn(20000)),
		Greeks: models.Greeks{
			Delta: clamp(delta, -1, 1),
			Gamma: 0.002,
			Theta: -premium * 0.08,
			Vega:  premium * 0.12,
		},
	}
}

func (p *SimProvider) features(snap *models.MarketSnapshot) []float64 {
	f := make([]float64, models.FeatureLen)
	f[0] = snap.VolIndex / 100
	f[1] = snap.PCR
	i := 2
	for _, px := range snap.Spot {
		if i >= models.FeatureLen {
			break
		}
		f[i] = math.Log(px.InexactFloat64())
		i++
	}
	for ; i < models.FeatureLen; i++ {
		f[i] = p.rng.Float64() * 0.01
	}
	return f
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
