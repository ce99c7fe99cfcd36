package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.DecisionIntervalSec != 60 || cfg.RiskIntervalSec != 5 {
		t.Fatalf("loop defaults: decision=%d risk=%d", cfg.DecisionIntervalSec, cfg.RiskIntervalSec)
	}
	if cfg.StartingCapital != 100000 || cfg.ArmAllocationPct != 30.0 {
		t.Fatalf("capital defaults: %v / %v", cfg.StartingCapital, cfg.ArmAllocationPct)
	}
	if cfg.TP1ScalePct != 40.0 || cfg.TP2ScalePct != 35.0 {
		t.Fatalf("scale defaults: %v / %v", cfg.TP1ScalePct, cfg.TP2ScalePct)
	}
	if cfg.EODCutoff != "15:15" || cfg.EODTimezone != "Asia/Kolkata" {
		t.Fatalf("eod defaults: %s %s", cfg.EODCutoff, cfg.EODTimezone)
	}
	if cfg.ArmCount != 3 || cfg.ExplorationEpsilon != 0.10 {
		t.Fatalf("policy defaults: %d / %v", cfg.ArmCount, cfg.ExplorationEpsilon)
	}
	if !cfg.EventLogEnabled {
		t.Fatal("event log should default on")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DECISION_INTERVAL_SEC", "30")
	t.Setenv("MAX_OPEN_POSITIONS", "5")
	t.Setenv("SYMBOLS", "NIFTY,BANKNIFTY")
	t.Setenv("EXPLORATION_EPSILON", "0.25")
	t.Setenv("EVENT_LOG_ENABLED", "false")

	cfg := Load()
	if cfg.DecisionIntervalSec != 30 {
		t.Fatalf("decision interval = %d", cfg.DecisionIntervalSec)
	}
	if cfg.MaxOpenPositions != 5 {
		t.Fatalf("max positions = %d", cfg.MaxOpenPositions)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[1] != "BANKNIFTY" {
		t.Fatalf("symbols = %v", cfg.Symbols)
	}
	if cfg.ExplorationEpsilon != 0.25 {
		t.Fatalf("epsilon = %v", cfg.ExplorationEpsilon)
	}
	if cfg.EventLogEnabled {
		t.Fatal("event log not disabled")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("RISK_INTERVAL_SEC", "not-a-number")
	t.Setenv("EVENT_LOG_ENABLED", "not-a-bool")
	cfg := Load()
	if cfg.RiskIntervalSec != 5 {
		t.Fatalf("malformed value did not fall back: %d", cfg.RiskIntervalSec)
	}
	if !cfg.EventLogEnabled {
		t.Fatal("malformed bool did not fall back")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero arms", func(c *Config) { c.ArmCount = 0 }},
		{"no capital", func(c *Config) { c.StartingCapital = 0 }},
		{"scales over 100", func(c *Config) { c.TP1ScalePct, c.TP2ScalePct = 60, 50 }},
		{"inverted data interval", func(c *Config) { c.DataIntervalMinSec, c.DataIntervalMaxSec = 300, 15 }},
		{"bad epsilon", func(c *Config) { c.ExplorationEpsilon = 1.5 }},
		{"zero rate limit", func(c *Config) { c.RateLimitPerSec = 0 }},
		{"bad timezone", func(c *Config) { c.EODTimezone = "Mars/Olympus" }},
		{"bad cutoff", func(c *Config) { c.EODCutoff = "25:99" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Load()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEODClockAndDurations(t *testing.T) {
	cfg := Load()
	h, m, err := cfg.EODClock()
	if err != nil || h != 15 || m != 15 {
		t.Fatalf("clock = %d:%d err=%v", h, m, err)
	}
	if cfg.DecisionInterval() != 60*time.Second {
		t.Fatalf("decision interval = %s", cfg.DecisionInterval())
	}
	if cfg.StaleMaxAge() != 90*time.Second {
		t.Fatalf("stale max age = %s", cfg.StaleMaxAge())
	}
}
