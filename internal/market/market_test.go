package market

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"theta_trading/internal/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time            { return c.t }
func (c *fakeClock) Advance(d time.Duration)   { c.t = c.t.Add(d) }

func TestCacheEmptyReturnsNil(t *testing.T) {
	c := NewCache(nil)
	if got := c.Latest(time.Minute); got != nil {
		t.Fatalf("empty cache returned %+v", got)
	}
}

func TestCacheAgeAndStaleness(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	c := NewCache(clock.Now)

	c.Set(&models.MarketSnapshot{
		Timestamp:      clock.t,
		Spot:           map[string]decimal.Decimal{"NIFTY": decimal.NewFromInt(22000)},
		FeatureVersion: models.FeatureVersion,
		Features:       make([]float64, models.FeatureLen),
	})

	fresh := c.Latest(90 * time.Second)
	if fresh == nil || fresh.Stale || fresh.Age != 0 {
		t.Fatalf("fresh snapshot: %+v", fresh)
	}
	if !fresh.Valid() {
		t.Fatal("fresh snapshot not valid")
	}

	clock.Advance(2 * time.Minute)
	old := c.Latest(90 * time.Second)
	if old == nil || !old.Stale {
		t.Fatalf("aged snapshot not marked stale: %+v", old)
	}
	if old.Age != 2*time.Minute {
		t.Fatalf("age = %s", old.Age)
	}
	if old.Valid() {
		t.Fatal("stale snapshot reported valid")
	}

	// the cached value itself is untouched; a re-read recomputes
	clock.Advance(-2 * time.Minute)
	if again := c.Latest(90 * time.Second); again.Stale {
		t.Fatal("staleness leaked into the cached value")
	}
}

func TestCacheIgnoresNil(t *testing.T) {
	c := NewCache(nil)
	c.Set(nil)
	if c.Latest(time.Minute) != nil {
		t.Fatal("nil snapshot was cached")
	}
}

func TestSimProviderProducesValidSnapshots(t *testing.T) {
	p := NewSimProvider(42, map[string]float64{"NIFTY": 22000}, nil)

	snap, err := p.Fetch(context.Background(), []string{"NIFTY"})
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Valid() {
		t.Fatalf("snapshot not valid: %+v", snap)
	}
	spot, ok := snap.SpotFor("NIFTY")
	if !ok || !spot.IsPositive() {
		t.Fatalf("spot = %s ok=%v", spot, ok)
	}

	// the chain carries a tradable ATM strike on both sides
	atm := spot.Div(decimal.NewFromInt(50)).Round(0).Mul(decimal.NewFromInt(50))
	if _, ok := snap.QuoteFor(atm, models.OptionCall); !ok {
		t.Fatalf("no call quote at %s", atm)
	}
	if _, ok := snap.QuoteFor(atm, models.OptionPut); !ok {
		t.Fatalf("no put quote at %s", atm)
	}
}

func TestSimProviderForceStale(t *testing.T) {
	p := NewSimProvider(42, map[string]float64{"NIFTY": 22000}, nil)
	p.SetForceStale(true)

	_, err := p.Fetch(context.Background(), []string{"NIFTY"})
	if !IsStale(err) {
		t.Fatalf("err = %v", err)
	}

	p.SetForceStale(false)
	if _, err := p.Fetch(context.Background(), []string{"NIFTY"}); err != nil {
		t.Fatal(err)
	}
}

func TestSimProviderDeterministicWithSeed(t *testing.T) {
	a := NewSimProvider(7, map[string]float64{"NIFTY": 22000}, nil)
	b := NewSimProvider(7, map[string]float64{"NIFTY": 22000}, nil)

	sa, _ := a.Fetch(context.Background(), []string{"NIFTY"})
	sb, _ := b.Fetch(context.Background(), []string{"NIFTY"})
	if !sa.Spot["NIFTY"].Equal(sb.Spot["NIFTY"]) {
		t.Fatalf("same seed diverged: %s vs %s", sa.Spot["NIFTY"], sb.Spot["NIFTY"])
	}
}
