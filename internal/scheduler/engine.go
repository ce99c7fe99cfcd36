package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"theta_trading/internal/config"
	"theta_trading/internal/exec"
	"theta_trading/internal/ledger"
	"theta_trading/internal/lifecycle"
	"theta_trading/internal/limiter"
	"theta_trading/internal/market"
	"theta_trading/internal/metrics"
	"theta_trading/internal/models"
	"theta_trading/internal/policy"
	"theta_trading/internal/risk"
	"theta_trading/internal/sink"
	"theta_trading/internal/strategy"
)

// Engine owns the three timer loops and the single serialization point
// around the position and capital ledgers. All ledger mutation happens
// with mu held; loops never interleave writes. Reads from outside come
// through copy-on-read snapshots.
type Engine struct {
	cfg *config.Config

	mu       sync.Mutex
	policy   *policy.Allocator
	registry *strategy.Registry
	gate     *risk.Gate
	capital  *risk.CapitalLedger
	breaker  *risk.CircuitBreaker
	ledger   *ledger.PositionLedger
	manager  *lifecycle.Manager
	dayKey   string
	dirty    bool    // unsaved ledger changes
	lastVol  float64 // volatility from the last fresh snapshot

	cache    *market.Cache
	provider market.SnapshotProvider
	execer   exec.ExecutionClient
	events   sink.EventSink
	client   *limiter.Client

	now func() time.Time
}

// Deps bundles the collaborators the engine is wired with.
type Deps struct {
	Policy   *policy.Allocator
	Registry *strategy.Registry
	Capital  *risk.CapitalLedger
	Breaker  *risk.CircuitBreaker
	Provider market.SnapshotProvider
	Execer   exec.ExecutionClient
	Events   sink.EventSink
	Now      func() time.Time // nil for wall clock
}

// New wires an engine from configuration and collaborators.
func New(cfg *config.Config, d Deps) (*Engine, error) {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	loc, err := cfg.EODLocation()
	if err != nil {
		return nil, err
	}
	eodHour, eodMin, err := cfg.EODClock()
	if err != nil {
		return nil, err
	}

	manager := lifecycle.NewManager(lifecycle.Config{
		TP1ScaleFrac:     decimal.NewFromFloat(cfg.TP1ScalePct / 100),
		TP2ScaleFrac:     decimal.NewFromFloat(cfg.TP2ScalePct / 100),
		TrailDistancePct: cfg.TrailDistancePct,
		EODHour:          eodHour,
		EODMinute:        eodMin,
		Location:         loc,
	})

	gate := risk.NewGate(risk.GateLimits{
		DailyLossLimitPct: cfg.DailyLossLimitPct,
		PerTradeRiskPct:   cfg.PerTradeRiskPct,
		MaxOpenPositions:  cfg.MaxOpenPositions,
	}, d.Capital, d.Breaker)

	bucket := limiter.NewTokenBucket(cfg.RateLimitPerSec)
	client := limiter.NewClient(bucket, limiter.DefaultBackoff(), cfg.MaxAPIRetries, 10*time.Second)
	client.OnRetry(metrics.IncAPIRetry)

	events := d.Events
	if events == nil {
		events = sink.Discard{}
	}

	e := &Engine{
		cfg:      cfg,
		policy:   d.Policy,
		registry: d.Registry,
		gate:     gate,
		capital:  d.Capital,
		breaker:  d.Breaker,
		ledger:   ledger.New(),
		manager:  manager,
		cache:    market.NewCache(now),
		provider: d.Provider,
		execer:   d.Execer,
		events:   events,
		client:   client,
		now:      now,
	}
	e.dayKey = e.tradingDay(now())
	return e, nil
}

// Run starts the three loops and blocks until the context is canceled.
// Each loop finishes its current tick before stopping; transitions are
// atomic per position and are never aborted mid-flight.
func (e *Engine) Run(ctx context.Context) {
	// warm the cache so the first decision tick has data to work with
	e.safeTick("data", func() { e.dataTick(ctx) })

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); e.dataLoop(ctx) }()
	go func() { defer wg.Done(); e.decisionLoop(ctx) }()
	go func() { defer wg.Done(); e.riskLoop(ctx) }()
	wg.Wait()
	log.Printf("[engine] all loops stopped")
}

// ResetBreaker re-arms the circuit breaker. This is the only way out of
// TRIPPED and is exposed to the operator surface, never called by ticks.
func (e *Engine) ResetBreaker() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breaker.Reset()
}

// Positions returns value copies of the live positions.
func (e *Engine) Positions() []models.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Snapshot()
}

// History returns the closed-trade records so far.
func (e *Engine) History() []models.TradeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.History()
}

// ArmStats returns a copy of the allocation policy statistics.
func (e *Engine) ArmStats() []policy.ArmStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.Stats()
}

// safeTick runs one tick body, converting panics from any strategy,
// fetch or submission into a logged error so one bad tick can never
// take down the other loops.
func (e *Engine) safeTick(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[engine] %s tick panic recovered: %v", name, rec)
		}
	}()
	fn()
}

// tradingDay keys the current day in the EOD timezone for the daily
// capital rollover.
func (e *Engine) tradingDay(t time.Time) string {
	loc, err := e.cfg.EODLocation()
	if err != nil {
		return t.UTC().Format("2006-01-02")
	}
	return t.In(loc).Format("2006-01-02")
}

// publish sends a transition event without ever blocking the caller.
func (e *Engine) publish(pos *models.Position, transition string, reason models.ExitReason, qty, price, pnl decimal.Decimal) {
	e.events.Publish(sink.Event{
		PositionID: pos.ID,
		Symbol:     pos.EntrySignal.Symbol,
		Arm:        pos.EntrySignal.Arm,
		Transition: transition,
		Reason:     reason,
		Qty:        qty,
		Price:      price,
		PnLSlice:   pnl,
		At:         e.now(),
	})
}
