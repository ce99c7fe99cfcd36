package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"theta_trading/internal/models"
)

// stateVersion guards the on-disk schema; bump with migrations.
const stateVersion = "1.0"

// EngineState is the persisted view of the ledgers: open positions plus
// the capital balances needed to resume a trading day after a restart.
type EngineState struct {
	Version   string            `json:"version"`
	SavedAt   time.Time         `json:"saved_at"`
	Positions []models.Position `json:"positions"`
	Available decimal.Decimal   `json:"available"`
	DailyPnL  decimal.Decimal   `json:"daily_pnl"`
	Allocated []decimal.Decimal `json:"allocated"`
}

// SaveState writes the state with the temp-file-then-rename pattern so a
// crash mid-write never corrupts the previous good state.
func SaveState(path string, s EngineState) error {
	s.Version = stateVersion
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(b); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync temp state file: %w", err)
	}
	f.Close()

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// LoadState reads persisted state. A missing file is a clean start, not
// an error; ok reports whether anything was loaded.
func LoadState(path string) (s EngineState, ok bool, err error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return EngineState{}, false, nil
	}
	if err != nil {
		return EngineState{}, false, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return EngineState{}, false, fmt.Errorf("parse state file: %w", err)
	}
	return s, true, nil
}
