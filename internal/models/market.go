package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeatureVersion pins the layout of MarketSnapshot.Features. Bump it
// whenever the feature vector changes shape so the allocation policy can
// refuse vectors it was not trained on.
const FeatureVersion = 2

// FeatureLen is the fixed length of the snapshot feature vector.
const FeatureLen = 8

// OptionSide distinguishes calls from puts in the per-strike view.
type OptionSide string

const (
	OptionCall OptionSide = "CE"
	OptionPut  OptionSide = "PE"
)

// Regime classifies market conditions for the current snapshot. The data
// loop sets it once per refresh so every position evaluated in a tick sees
// the same regime.
type Regime string

const (
	RegimeNormal Regime = "NORMAL"
	RegimeStrong Regime = "STRONG"
	RegimeChoppy Regime = "CHOPPY"
)

// Greeks holds the option sensitivities supplied by the data feed.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// OptionKey identifies one contract in the chain view. Strike is the
// canonical fixed-precision rendering of the strike price; build keys with
// NewOptionKey so "110" and "110.00" land on the same entry.
type OptionKey struct {
	Strike string
	Side   OptionSide
}

// NewOptionKey builds a chain key from a strike price and side.
func NewOptionKey(strike decimal.Decimal, side OptionSide) OptionKey {
	return OptionKey{Strike: strike.StringFixed(2), Side: side}
}

// OptionQuote is the per-contract market view.
type OptionQuote struct {
	Last         decimal.Decimal `json:"last"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	OpenInterest int64           `json:"open_interest"`
	Volume       int64           `json:"volume"`
	Greeks       Greeks          `json:"greeks"`
}

// MarketSnapshot is an immutable view of the market at one instant. A
// snapshot is either fully valid or marked stale; callers must not pick
// fields out of a stale snapshot and trust them individually.
type MarketSnapshot struct {
	Timestamp      time.Time
	Spot           map[string]decimal.Decimal
	PCR            float64
	VolIndex       float64
	Regime         Regime
	FeatureVersion int
	Features       []float64
	Options        map[OptionKey]OptionQuote
	Stale          bool
	Age            time.Duration
}

// Valid reports whether the snapshot can be trusted for decisions.
func (s *MarketSnapshot) Valid() bool {
	if s == nil || s.Stale {
		return false
	}
	if s.FeatureVersion != FeatureVersion || len(s.Features) != FeatureLen {
		return false
	}
	return len(s.Spot) > 0
}

// SpotFor returns the spot price for a symbol, false if absent.
func (s *MarketSnapshot) SpotFor(symbol string) (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Zero, false
	}
	px, ok := s.Spot[symbol]
	return px, ok
}

// QuoteFor returns the option quote for a strike/side, false if absent.
func (s *MarketSnapshot) QuoteFor(strike decimal.Decimal, side OptionSide) (OptionQuote, bool) {
	if s == nil {
		return OptionQuote{}, false
	}
	q, ok := s.Options[NewOptionKey(strike, side)]
	return q, ok
}
