package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TradeSide is the direction of the option trade itself (premium bought
// or sold), independent of whether the contract is a call or a put.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// Signal is a candidate trade proposal emitted by a strategy arm. It is a
// value; once a position is opened the entry-time signal is snapshotted
// onto the position and never mutated.
type Signal struct {
	Symbol     string          `json:"symbol"`
	Side       TradeSide       `json:"side"`
	Strike     decimal.Decimal `json:"strike"`
	Direction  OptionSide      `json:"direction"`
	Entry      decimal.Decimal `json:"entry"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TP1        decimal.Decimal `json:"tp1"`
	TP2        decimal.Decimal `json:"tp2"`
	TP3        decimal.Decimal `json:"tp3"`
	Quantity   decimal.Decimal `json:"quantity"`
	Arm        int             `json:"arm"`
	Confidence float64         `json:"confidence"`
}

// Validate checks the level ordering invariants: for a long premium trade
// stop < entry < TP1 < TP2 < TP3; inverted for a short premium trade.
// Quantity must be strictly positive.
func (s *Signal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("signal: empty symbol")
	}
	if !s.Quantity.IsPositive() {
		return fmt.Errorf("signal %s: quantity must be > 0, got %s", s.Symbol, s.Quantity)
	}
	switch s.Side {
	case SideBuy:
		if !(s.StopLoss.LessThan(s.Entry) && s.Entry.LessThan(s.TP1) &&
			s.TP1.LessThan(s.TP2) && s.TP2.LessThan(s.TP3)) {
			return fmt.Errorf("signal %s: levels must satisfy SL < entry < TP1 < TP2 < TP3 (SL=%s entry=%s tp=%s/%s/%s)",
				s.Symbol, s.StopLoss, s.Entry, s.TP1, s.TP2, s.TP3)
		}
	case SideSell:
		if !(s.StopLoss.GreaterThan(s.Entry) && s.Entry.GreaterThan(s.TP1) &&
			s.TP1.GreaterThan(s.TP2) && s.TP2.GreaterThan(s.TP3)) {
			return fmt.Errorf("signal %s: short levels must satisfy SL > entry > TP1 > TP2 > TP3 (SL=%s entry=%s tp=%s/%s/%s)",
				s.Symbol, s.StopLoss, s.Entry, s.TP1, s.TP2, s.TP3)
		}
	default:
		return fmt.Errorf("signal %s: unknown side %q", s.Symbol, s.Side)
	}
	return nil
}

// Notional is the capital the signal proposes to commit.
func (s *Signal) Notional() decimal.Decimal {
	return s.Entry.Mul(s.Quantity)
}
