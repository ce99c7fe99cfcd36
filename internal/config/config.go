package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime knob the engine recognizes. All values come
// from the environment (hydrated from a .env file when present) so
// deployments are tuned without rebuilds.
type Config struct {
	// Loop cadence
	DecisionIntervalSec int // fixed decision-loop period
	RiskIntervalSec     int // fixed risk-loop period
	DataIntervalMinSec  int // data loop when positions open / vol high
	DataIntervalMaxSec  int // data loop when idle or market closed

	// Capital & risk limits
	StartingCapital    float64
	ArmAllocationPct   float64 // per-arm cap, percent of starting capital
	DailyLossLimitPct  float64
	PerTradeRiskPct    float64
	MaxOpenPositions   int
	DrawdownLimitPct   float64
	VolTripThreshold   float64
	MaxConsecutiveLoss int

	// Exit management
	TP1ScalePct      float64 // percent of ORIGINAL quantity closed at TP1
	TP2ScalePct      float64 // percent of ORIGINAL quantity closed at TP2
	TrailDistancePct float64 // trail distance as percent of entry price
	EODCutoff        string  // "HH:MM" local to EODTimezone
	EODTimezone      string

	// Allocation policy
	ArmCount           int
	ExplorationEpsilon float64
	StrategyTimeoutSec int

	// External API budget
	MaxAPIRetries   int
	RateLimitPerSec int
	StaleMaxAgeSec  int

	// Ops
	Symbols         []string
	StateFile       string
	EventLogEnabled bool // false routes transition events to a discard sink
	EventLogFile    string
	MetricsPort     int
	LogFile         string
	MaxLogSizeMB    int64
	MaxLogBackups   int
}

// Load reads configuration from the environment, falling back to
// defaults for anything unset. Missing .env is not an error; system
// environment variables still apply.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		DecisionIntervalSec: getEnvInt("DECISION_INTERVAL_SEC", 60),
		RiskIntervalSec:     getEnvInt("RISK_INTERVAL_SEC", 5),
		DataIntervalMinSec:  getEnvInt("DATA_INTERVAL_MIN_SEC", 15),
		DataIntervalMaxSec:  getEnvInt("DATA_INTERVAL_MAX_SEC", 300),

		StartingCapital:    getEnvFloat("STARTING_CAPITAL", 100000),
		ArmAllocationPct:   getEnvFloat("ARM_ALLOCATION_CAP_PCT", 30.0),
		DailyLossLimitPct:  getEnvFloat("DAILY_LOSS_LIMIT_PCT", 5.0),
		PerTradeRiskPct:    getEnvFloat("PER_TRADE_RISK_PCT", 10.0),
		MaxOpenPositions:   getEnvInt("MAX_OPEN_POSITIONS", 3),
		DrawdownLimitPct:   getEnvFloat("DRAWDOWN_LIMIT_PCT", 10.0),
		VolTripThreshold:   getEnvFloat("VOL_TRIP_THRESHOLD", 30.0),
		MaxConsecutiveLoss: getEnvInt("MAX_CONSECUTIVE_LOSSES", 4),

		TP1ScalePct:      getEnvFloat("TP1_SCALE_PCT", 40.0),
		TP2ScalePct:      getEnvFloat("TP2_SCALE_PCT", 35.0),
		TrailDistancePct: getEnvFloat("TRAIL_DISTANCE_PCT", 5.0),
		EODCutoff:        getEnv("EOD_CUTOFF", "15:15"),
		EODTimezone:      getEnv("EOD_TZ", "Asia/Kolkata"),

		ArmCount:           getEnvInt("ARM_COUNT", 3),
		ExplorationEpsilon: getEnvFloat("EXPLORATION_EPSILON", 0.10),
		StrategyTimeoutSec: getEnvInt("STRATEGY_TIMEOUT_SEC", 5),

		MaxAPIRetries:   getEnvInt("MAX_API_RETRIES", 3),
		RateLimitPerSec: getEnvInt("RATE_LIMIT_PER_SEC", 5),
		StaleMaxAgeSec:  getEnvInt("STALE_DATA_MAX_AGE_SEC", 90),

		Symbols:         getEnvList("SYMBOLS", []string{"NIFTY"}),
		StateFile:       getEnv("STATE_FILE", "engine_state.json"),
		EventLogEnabled: getEnvBool("EVENT_LOG_ENABLED", true),
		EventLogFile:    getEnv("EVENT_LOG_FILE", "transitions.jsonl"),
		MetricsPort:     getEnvInt("METRICS_PORT", 9090),
		LogFile:         getEnv("LOG_FILE", "engine.log"),
		MaxLogSizeMB:    int64(getEnvInt("MAX_LOG_SIZE_MB", 10)),
		MaxLogBackups:   getEnvInt("MAX_LOG_BACKUPS", 3),
	}

	return cfg
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.ArmCount <= 0 {
		return fmt.Errorf("config: ARM_COUNT must be >= 1, got %d", c.ArmCount)
	}
	if c.StartingCapital <= 0 {
		return fmt.Errorf("config: STARTING_CAPITAL must be > 0")
	}
	if c.TP1ScalePct <= 0 || c.TP2ScalePct <= 0 || c.TP1ScalePct+c.TP2ScalePct > 100 {
		return fmt.Errorf("config: TP scale fractions must be positive and sum to <= 100%% (tp1=%.1f tp2=%.1f)",
			c.TP1ScalePct, c.TP2ScalePct)
	}
	if c.DataIntervalMinSec > c.DataIntervalMaxSec {
		return fmt.Errorf("config: DATA_INTERVAL_MIN_SEC > DATA_INTERVAL_MAX_SEC")
	}
	if c.RiskIntervalSec <= 0 || c.DecisionIntervalSec <= 0 {
		return fmt.Errorf("config: loop intervals must be > 0")
	}
	if c.ExplorationEpsilon < 0 || c.ExplorationEpsilon > 1 {
		return fmt.Errorf("config: EXPLORATION_EPSILON must be in [0,1]")
	}
	if c.RateLimitPerSec <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_PER_SEC must be > 0")
	}
	if _, err := c.EODLocation(); err != nil {
		return err
	}
	if _, _, err := c.EODClock(); err != nil {
		return err
	}
	return nil
}

// EODLocation resolves the timezone the end-of-day cutoff is read in.
func (c *Config) EODLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.EODTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: bad EOD_TZ %q: %w", c.EODTimezone, err)
	}
	return loc, nil
}

// EODClock parses the "HH:MM" cutoff into hour and minute.
func (c *Config) EODClock() (hour, minute int, err error) {
	if _, err = fmt.Sscanf(c.EODCutoff, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("config: bad EOD_CUTOFF %q: %w", c.EODCutoff, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("config: EOD_CUTOFF %q out of range", c.EODCutoff)
	}
	return hour, minute, nil
}

// DecisionInterval returns the decision-loop period as a duration.
func (c *Config) DecisionInterval() time.Duration {
	return time.Duration(c.DecisionIntervalSec) * time.Second
}

// RiskInterval returns the risk-loop period as a duration.
func (c *Config) RiskInterval() time.Duration {
	return time.Duration(c.RiskIntervalSec) * time.Second
}

// StrategyTimeout returns the per-evaluation strategy budget.
func (c *Config) StrategyTimeout() time.Duration {
	return time.Duration(c.StrategyTimeoutSec) * time.Second
}

// StaleMaxAge returns the oldest snapshot age decisions may trade on.
func (c *Config) StaleMaxAge() time.Duration {
	return time.Duration(c.StaleMaxAgeSec) * time.Second
}
