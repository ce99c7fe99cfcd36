package exec

import (
	"context"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"theta_trading/internal/models"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func testOrder(side models.TradeSide, price, qty float64) Order {
	return Order{
		Symbol:    "NIFTY",
		Strike:    d(22000),
		Direction: models.OptionCall,
		Side:      side,
		Qty:       d(qty),
		RefPrice:  d(price),
	}
}

func TestSlippageIsAdverseToTaker(t *testing.T) {
	c := NewSimClient(20, 0, rand.New(rand.NewSource(1)))
	ctx := context.Background()

	buy, err := c.Submit(ctx, testOrder(models.SideBuy, 100, 50))
	if err != nil {
		t.Fatal(err)
	}
	if !buy.Price.GreaterThan(d(100)) {
		t.Fatalf("buy filled at %s, want above reference", buy.Price)
	}

	sell, err := c.Submit(ctx, testOrder(models.SideSell, 100, 50))
	if err != nil {
		t.Fatal(err)
	}
	if !sell.Price.LessThan(d(100)) {
		t.Fatalf("sell filled at %s, want below reference", sell.Price)
	}

	// 20bps spread means 10bps against each side
	if !buy.Price.Equal(d(100.10)) || !sell.Price.Equal(d(99.90)) {
		t.Fatalf("buy=%s sell=%s", buy.Price, sell.Price)
	}
}

func TestFullFillByDefault(t *testing.T) {
	c := NewSimClient(20, 0, rand.New(rand.NewSource(1)))
	fill, err := c.Submit(context.Background(), testOrder(models.SideBuy, 100, 50))
	if err != nil {
		t.Fatal(err)
	}
	if fill.Status != StatusFilled || !fill.Qty.Equal(d(50)) {
		t.Fatalf("status=%s qty=%s", fill.Status, fill.Qty)
	}
	if fill.OrderID == "" {
		t.Fatal("no order id assigned")
	}
}

func TestPartialFillRange(t *testing.T) {
	c := NewSimClient(0, 0.99, rand.New(rand.NewSource(3)))
	ctx := context.Background()

	sawPartial := false
	for i := 0; i < 50; i++ {
		fill, err := c.Submit(ctx, testOrder(models.SideBuy, 100, 100))
		if err != nil {
			t.Fatal(err)
		}
		if fill.Status != StatusPartialFill {
			continue
		}
		sawPartial = true
		if fill.Qty.LessThan(d(50)) || fill.Qty.GreaterThanOrEqual(d(100)) {
			t.Fatalf("partial qty %s outside [50,100)", fill.Qty)
		}
		if !fill.Qty.Equal(fill.Qty.Floor()) {
			t.Fatalf("fractional contracts filled: %s", fill.Qty)
		}
	}
	if !sawPartial {
		t.Fatal("no partial fills at probability 0.99")
	}
}

func TestRejectsBadOrders(t *testing.T) {
	c := NewSimClient(20, 0, rand.New(rand.NewSource(1)))
	fill, err := c.Submit(context.Background(), testOrder(models.SideBuy, 100, 0))
	if err == nil || fill.Status != StatusRejected {
		t.Fatalf("status=%s err=%v", fill.Status, err)
	}
}

func TestSubmitHonorsCanceledContext(t *testing.T) {
	c := NewSimClient(20, 0, rand.New(rand.NewSource(1)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Submit(ctx, testOrder(models.SideBuy, 100, 50)); err == nil {
		t.Fatal("canceled context accepted")
	}
}
