package exec

import (
	"context"

	"github.com/shopspring/decimal"

	"theta_trading/internal/models"
)

// FillStatus is the outcome of an order submission.
type FillStatus string

const (
	StatusFilled      FillStatus = "FILLED"
	StatusPartialFill FillStatus = "PARTIAL_FILL"
	StatusRejected    FillStatus = "REJECTED"
)

// Order is a request to trade a single option contract quantity.
// RefPrice is the price the caller decided against; the client reports
// the realized price including any slippage.
type Order struct {
	ID         string
	PositionID string
	Symbol     string
	Strike     decimal.Decimal
	Direction  models.OptionSide
	Side       models.TradeSide
	Qty        decimal.Decimal
	RefPrice   decimal.Decimal
}

// Fill is the execution result. On PARTIAL_FILL, Qty is the portion
// actually executed; callers must reduce positions by the filled
// quantity only.
type Fill struct {
	OrderID string
	Status  FillStatus
	Price   decimal.Decimal
	Qty     decimal.Decimal
}

// ExecutionClient abstracts order routing. The live implementation sits
// behind the broker API and is out of scope; the engine depends only on
// this contract.
type ExecutionClient interface {
	Submit(ctx context.Context, order Order) (Fill, error)
}
