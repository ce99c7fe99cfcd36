package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func longSignal() Signal {
	return Signal{
		Symbol:    "NIFTY",
		Side:      SideBuy,
		Strike:    d(22000),
		Direction: OptionCall,
		Entry:     d(100),
		StopLoss:  d(90),
		TP1:       d(110),
		TP2:       d(120),
		TP3:       d(135),
		Quantity:  d(50),
	}
}

func TestSignalValidateOrdering(t *testing.T) {
	sig := longSignal()
	if err := sig.Validate(); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		mutate func(*Signal)
	}{
		{"stop above entry", func(s *Signal) { s.StopLoss = d(101) }},
		{"tp1 below entry", func(s *Signal) { s.TP1 = d(99) }},
		{"tp2 below tp1", func(s *Signal) { s.TP2 = d(105) }},
		{"tp3 below tp2", func(s *Signal) { s.TP3 = d(119) }},
		{"zero quantity", func(s *Signal) { s.Quantity = decimal.Zero }},
		{"negative quantity", func(s *Signal) { s.Quantity = d(-5) }},
		{"empty symbol", func(s *Signal) { s.Symbol = "" }},
		{"unknown side", func(s *Signal) { s.Side = "HOLD" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := longSignal()
			tc.mutate(&sig)
			if err := sig.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSignalValidateShortOrdering(t *testing.T) {
	sig := longSignal()
	sig.Side = SideSell
	sig.StopLoss = d(110)
	sig.TP1 = d(90)
	sig.TP2 = d(80)
	sig.TP3 = d(65)
	if err := sig.Validate(); err != nil {
		t.Fatal(err)
	}

	sig.TP1 = d(105) // long-style levels on a short
	sig.TP2 = d(110)
	sig.TP3 = d(120)
	if err := sig.Validate(); err == nil {
		t.Fatal("inverted short levels accepted")
	}
}

func TestSignalNotional(t *testing.T) {
	sig := longSignal()
	if want := d(5000); !sig.Notional().Equal(want) {
		t.Fatalf("notional = %s", sig.Notional())
	}
}

func TestOptionKeyCanonicalStrike(t *testing.T) {
	a := NewOptionKey(decimal.NewFromInt(22000), OptionCall)
	b := NewOptionKey(d(22000.00), OptionCall)
	if a != b {
		t.Fatalf("equivalent strikes produced different keys: %v vs %v", a, b)
	}
	if a == NewOptionKey(decimal.NewFromInt(22000), OptionPut) {
		t.Fatal("call and put collide")
	}
}

func TestSnapshotValid(t *testing.T) {
	snap := &MarketSnapshot{
		Spot:           map[string]decimal.Decimal{"NIFTY": d(22000)},
		FeatureVersion: FeatureVersion,
		Features:       make([]float64, FeatureLen),
	}
	if !snap.Valid() {
		t.Fatal("well-formed snapshot invalid")
	}

	stale := *snap
	stale.Stale = true
	if stale.Valid() {
		t.Fatal("stale snapshot valid")
	}

	wrongVer := *snap
	wrongVer.FeatureVersion = FeatureVersion + 1
	if wrongVer.Valid() {
		t.Fatal("wrong feature version valid")
	}

	shortVec := *snap
	shortVec.Features = make([]float64, FeatureLen-1)
	if shortVec.Valid() {
		t.Fatal("truncated feature vector valid")
	}

	var nilSnap *MarketSnapshot
	if nilSnap.Valid() {
		t.Fatal("nil snapshot valid")
	}
}
