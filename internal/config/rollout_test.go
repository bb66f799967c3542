package config

import "testing"

func TestApplyRolloutPhasePaper(t *testing.T) {
	cfg := Default()
	cfg.TradingMode = "live"

	if err := ApplyRolloutPhase(&cfg, "paper"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "paper" {
		t.Fatalf("expected paper mode, got %q", cfg.TradingMode)
	}
}

func TestApplyRolloutPhaseShadowClampsToNearZero(t *testing.T) {
	cfg := Default()
	cfg.DollarBetLimit = 500
	cfg.OrderSize = 50

	if err := ApplyRolloutPhase(&cfg, "shadow"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "live" {
		t.Fatalf("expected live mode, got %q", cfg.TradingMode)
	}
	if cfg.DollarBetLimit != 0.01 {
		t.Fatalf("expected dollar_bet_limit clamped to 0.01, got %f", cfg.DollarBetLimit)
	}
	if cfg.OrderSize != 0.01 {
		t.Fatalf("expected order_size clamped to 0.01, got %f", cfg.OrderSize)
	}
}

func TestApplyRolloutPhaseLiveSmallClamps(t *testing.T) {
	cfg := Default()
	cfg.DollarBetLimit = 500
	cfg.OrderSize = 50

	if err := ApplyRolloutPhase(&cfg, "live-small"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "live" {
		t.Fatalf("expected live mode, got %q", cfg.TradingMode)
	}
	if cfg.DollarBetLimit != 1 {
		t.Fatalf("expected dollar_bet_limit clamped to 1, got %f", cfg.DollarBetLimit)
	}
	if cfg.OrderSize != 1 {
		t.Fatalf("expected order_size clamped to 1, got %f", cfg.OrderSize)
	}
}

func TestApplyRolloutPhaseLiveLeavesValuesAlone(t *testing.T) {
	cfg := Default()
	cfg.DollarBetLimit = 500

	if err := ApplyRolloutPhase(&cfg, "live"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.DollarBetLimit != 500 {
		t.Fatalf("expected dollar_bet_limit untouched, got %f", cfg.DollarBetLimit)
	}
}

func TestApplyRolloutPhaseEmptyIsNoOp(t *testing.T) {
	cfg := Default()
	want := cfg.TradingMode
	if err := ApplyRolloutPhase(&cfg, ""); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != want {
		t.Fatalf("expected no change, got %q", cfg.TradingMode)
	}
}

func TestApplyRolloutPhaseUnknown(t *testing.T) {
	cfg := Default()
	if err := ApplyRolloutPhase(&cfg, "bogus"); err == nil {
		t.Fatal("expected error for unknown rollout phase")
	}
}
