package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.App.Addr == "" {
		t.Error("expected a default listen address")
	}
	if cfg.Match.Topic == "" {
		t.Error("expected a default match topic")
	}
	if cfg.Match.Workers < 1 {
		t.Errorf("expected at least one worker, got %d", cfg.Match.Workers)
	}
	if !cfg.Commission().Equal(decimal.RequireFromString("0.015")) {
		t.Errorf("expected default commission 0.015, got %s", cfg.Commission())
	}
	if !cfg.InitialBalance().Equal(decimal.RequireFromString("10000")) {
		t.Errorf("expected default initial balance 10000, got %s", cfg.InitialBalance())
	}
}

func TestLoadRejectsBadDecimals(t *testing.T) {
	t.Setenv("APP_COMMISSION_RATE", "not-a-number")
	if _, err := Load(); err == nil {
		t.Error("expected invalid commission rate to be rejected")
	}

	t.Setenv("APP_COMMISSION_RATE", "0.015")
	t.Setenv("APP_INITIAL_USER_BALANCE", "lots")
	if _, err := Load(); err == nil {
		t.Error("expected invalid initial balance to be rejected")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_COMMISSION_RATE", "0.002")
	t.Setenv("MATCH_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("MATCH_WORKERS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Commission().Equal(decimal.RequireFromString("0.002")) {
		t.Errorf("expected commission 0.002, got %s", cfg.Commission())
	}
	if len(cfg.Match.Brokers) != 2 {
		t.Errorf("expected 2 brokers, got %v", cfg.Match.Brokers)
	}
	if cfg.Match.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Match.Workers)
	}
}
