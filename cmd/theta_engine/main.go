package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"theta_trading/internal/config"
	"theta_trading/internal/exec"
	"theta_trading/internal/logger"
	"theta_trading/internal/market"
	"theta_trading/internal/policy"
	"theta_trading/internal/risk"
	"theta_trading/internal/scheduler"
	"theta_trading/internal/sink"
	"theta_trading/internal/strategy"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.Setup(cfg.LogFile, cfg.MaxLogSizeMB, cfg.MaxLogBackups)

	log.Printf("Starting theta engine: arms=%d capital=%.0f symbols=%v",
		cfg.ArmCount, cfg.StartingCapital, cfg.Symbols)

	allocator := policy.NewAllocator(cfg.ArmCount, cfg.ExplorationEpsilon, nil)
	registry := buildRegistry(cfg)

	capital := risk.NewCapitalLedger(
		decimal.NewFromFloat(cfg.StartingCapital), cfg.ArmCount, cfg.ArmAllocationPct)
	breaker := risk.NewCircuitBreaker(risk.BreakerLimits{
		VolIndexMax:          cfg.VolTripThreshold,
		DailyLossPctMax:      cfg.DailyLossLimitPct,
		DrawdownPctMax:       cfg.DrawdownLimitPct,
		MaxConsecutiveLosses: cfg.MaxConsecutiveLoss,
	}, nil)

	// paper mode: synthetic data and simulated fills
	provider := market.NewSimProvider(time.Now().UnixNano(), startingSpots(cfg.Symbols), nil)
	execer := exec.NewSimClient(20, 0.05, rand.New(rand.NewSource(time.Now().UnixNano())))

	var events sink.EventSink = sink.Discard{}
	var fileSink *sink.FileSink
	if cfg.EventLogEnabled {
		fs, err := sink.NewFileSink(cfg.EventLogFile, 256)
		if err != nil {
			log.Fatalf("Failed to open event log: %v", err)
		}
		events = fs
		fileSink = fs
	}

	engine, err := scheduler.New(cfg, scheduler.Deps{
		Policy:   allocator,
		Registry: registry,
		Capital:  capital,
		Breaker:  breaker,
		Provider: provider,
		Execer:   execer,
		Events:   events,
	})
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}
	if err := engine.RestoreState(); err != nil {
		log.Fatalf("Failed to restore state: %v", err)
	}

	srv := startHTTP(cfg.MetricsPort, engine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	engine.SaveState()
	if fileSink != nil {
		fileSink.Close()
	}
	log.Printf("Shutdown complete")
}

// buildRegistry installs the built-in demo arms. Arm 0 buys momentum
// calls, arm 1 fades stretched put/call ratios, everything past that
// stands flat.
func buildRegistry(cfg *config.Config) *strategy.Registry {
	symbol := "NIFTY"
	if len(cfg.Symbols) > 0 {
		symbol = cfg.Symbols[0]
	}
	reg := strategy.NewRegistry(cfg.ArmCount)
	if cfg.ArmCount > 0 {
		reg.Register(0, &strategy.MomentumCallBuyer{Symbol: symbol})
	}
	if cfg.ArmCount > 1 {
		reg.Register(1, &strategy.ContrarianPutBuyer{Symbol: symbol})
	}
	for i := 2; i < cfg.ArmCount; i++ {
		reg.Register(i, &strategy.Flat{})
	}
	return reg
}

// startHTTP serves metrics, health and the breaker reset endpoint.
func startHTTP(port int, engine *scheduler.Engine) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/breaker/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		engine.ResetBreaker()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "breaker re-armed")
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		log.Printf("HTTP listening on %s (/metrics, /healthz, /breaker/reset)", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server stopped: %v", err)
		}
	}()
	return srv
}

func startingSpots(symbols []string) map[string]float64 {
	spots := make(map[string]float64, len(symbols))
	for i, sym := range symbols {
		spots[sym] = 22000 + float64(i)*3000
	}
	return spots
}
