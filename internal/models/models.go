package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus tracks where a position is in its lifecycle.
type PositionStatus string

const (
	StatusOpen            PositionStatus = "OPEN"
	StatusPartiallyClosed PositionStatus = "PARTIALLY_CLOSED"
	StatusClosed          PositionStatus = "CLOSED"
)

// ExitReason is the stable reason code attached to every exit slice.
// These strings appear in logs, sink events and metrics labels; do not
// rename them without migrating dashboards.
type ExitReason string

const (
	ExitNone               ExitReason = ""
	ExitStopLoss           ExitReason = "STOP_LOSS_HIT"
	ExitTrailingStop       ExitReason = "TRAILING_STOP_HIT"
	ExitTP3Target          ExitReason = "TP3_TARGET"
	ExitTP2PartialScale    ExitReason = "TP2_PARTIAL_SCALE"
	ExitTP1PartialStrong   ExitReason = "TP1_PARTIAL_SCALE_STRONG"
	ExitTP1PartialNormal   ExitReason = "TP1_PARTIAL_SCALE_NORMAL"
	ExitTP1FullChoppy      ExitReason = "TP1_FULL_PROFIT_CHOPPY"
	ExitEndOfDay           ExitReason = "EOD"
	ExitDataRecoveryForced ExitReason = "DATA_RECOVERY_FORCED_CLOSE"
)

// Position is the ledger's mutable record of one open trade. It is owned
// exclusively by the position ledger; everything outside the scheduler's
// serialized section sees copies only.
type Position struct {
	ID            string          `json:"id"`
	EntrySignal   Signal          `json:"entry_signal"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	EntryTime     time.Time       `json:"entry_time"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	CurrentTime   time.Time       `json:"current_time"`
	OriginalQty   decimal.Decimal `json:"original_qty"`
	RemainingQty  decimal.Decimal `json:"remaining_qty"`
	Status        PositionStatus  `json:"status"`
	TrailingStop  decimal.Decimal `json:"trailing_stop"`
	HighWaterMark decimal.Decimal `json:"high_water_mark"`
	TP1Scaled     bool            `json:"tp1_scaled"`
	TP2Scaled     bool            `json:"tp2_scaled"`
	ExitReason    ExitReason      `json:"exit_reason,omitempty"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
}

// Terminal reports whether the position has fully closed.
func (p *Position) Terminal() bool { return p.Status == StatusClosed }

// Long reports whether price moving up is favorable for this position.
func (p *Position) Long() bool { return p.EntrySignal.Side == SideBuy }

// TradeRecord is the immutable history entry written when a position
// fully closes.
type TradeRecord struct {
	PositionID  string          `json:"position_id"`
	Symbol      string          `json:"symbol"`
	Arm         int             `json:"arm"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	EntryTime   time.Time       `json:"entry_time"`
	ExitTime    time.Time       `json:"exit_time"`
	OriginalQty decimal.Decimal `json:"original_qty"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	ExitReason  ExitReason      `json:"exit_reason"`
}
