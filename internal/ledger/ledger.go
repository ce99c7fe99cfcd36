package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"theta_trading/internal/models"
)

// PositionLedger is the authoritative set of open positions plus the
// closed-trade history. Single-writer discipline: every mutation happens
// inside the scheduler's serialized section. Readers outside it use the
// copy-on-read Snapshot/History accessors.
type PositionLedger struct {
	positions map[string]*models.Position
	history   []models.TradeRecord
}

// New creates an empty ledger.
func New() *PositionLedger {
	return &PositionLedger{positions: make(map[string]*models.Position)}
}

// Open creates a position from a gate-accepted signal at the realized
// entry fill. Capital must already be reserved by the gate.
func (l *PositionLedger) Open(sig models.Signal, entryPrice, qty decimal.Decimal, now time.Time) *models.Position {
	pos := &models.Position{
		ID:            uuid.New().String(),
		EntrySignal:   sig,
		EntryPrice:    entryPrice,
		EntryTime:     now,
		CurrentPrice:  entryPrice,
		CurrentTime:   now,
		OriginalQty:   qty,
		RemainingQty:  qty,
		Status:        models.StatusOpen,
		HighWaterMark: entryPrice,
		RealizedPnL:   decimal.Zero,
	}
	l.positions[pos.ID] = pos
	return pos
}

// Restore re-inserts a persisted position after a recovery pass.
func (l *PositionLedger) Restore(pos models.Position) *models.Position {
	p := pos
	l.positions[p.ID] = &p
	return &p
}

// Active returns the live position pointers ordered by entry time, for
// iteration inside the serialized section only.
func (l *PositionLedger) Active() []*models.Position {
	out := make([]*models.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out
}

// OpenCount counts OPEN and PARTIALLY_CLOSED positions.
func (l *PositionLedger) OpenCount() int { return len(l.positions) }

// Archive moves a terminal position into the trade history. A position
// that has been archived is never evaluated again.
func (l *PositionLedger) Archive(pos *models.Position, closedAt time.Time) models.TradeRecord {
	rec := models.TradeRecord{
		PositionID:  pos.ID,
		Symbol:      pos.EntrySignal.Symbol,
		Arm:         pos.EntrySignal.Arm,
		EntryPrice:  pos.EntryPrice,
		EntryTime:   pos.EntryTime,
		ExitTime:    closedAt,
		OriginalQty: pos.OriginalQty,
		RealizedPnL: pos.RealizedPnL,
		ExitReason:  pos.ExitReason,
	}
	l.history = append(l.history, rec)
	delete(l.positions, pos.ID)
	return rec
}

// Snapshot returns value copies of the live positions for reporting and
// persistence; safe to hand out of the serialized section.
func (l *PositionLedger) Snapshot() []models.Position {
	active := l.Active()
	out := make([]models.Position, len(active))
	for i, p := range active {
		out[i] = *p
	}
	return out
}

// History returns a copy of the closed-trade records.
func (l *PositionLedger) History() []models.TradeRecord {
	out := make([]models.TradeRecord, len(l.history))
	copy(out, l.history)
	return out
}
