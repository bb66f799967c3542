package config

import "testing"

func TestValidateRejectsBadMarketType(t *testing.T) {
	cfg := Default()
	cfg.MarketType = "5m"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unrecognized market_type")
	}
}

func TestValidateRejectsNonPositivePrincipal(t *testing.T) {
	cfg := Default()
	cfg.InitialPrincipal = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero initial_principal")
	}
}

func TestValidateThresholdRequiresUpperAboveThreshold(t *testing.T) {
	cfg := Default()
	cfg.UpperThreshold = cfg.Threshold
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when upper_threshold == threshold")
	}
}

func TestValidateThresholdRejectsOutOfRangePrice(t *testing.T) {
	cfg := Default()
	cfg.Threshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for threshold outside (0.01, 0.99)")
	}
}

func TestValidateThresholdRejectsKellyFractionOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.KellyFraction = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for kelly_fraction > 1")
	}
}

func TestValidateLimitBuyRequiresPositiveOrderSize(t *testing.T) {
	cfg := Default()
	cfg.Strategy = StrategyLimitBuy
	cfg.YesBuyPrice = 0.45
	cfg.NoBuyPrice = 0.45
	cfg.SellPrice = 0.55
	cfg.OrderSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero order_size")
	}
}

func TestValidateLimitBuyAcceptsValidConfig(t *testing.T) {
	cfg := Default()
	cfg.Strategy = StrategyLimitBuy
	cfg.YesBuyPrice = 0.45
	cfg.NoBuyPrice = 0.45
	cfg.SellPrice = 0.55
	cfg.OrderSize = 10
	cfg.MinMinutesBeforeResolution = 5
	cfg.CancelThresholdMinutes = 2
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid limit-buy config, got %v", err)
	}
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := Default()
	cfg.Strategy = "mystery"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestValidateRejectsBadTradingMode(t *testing.T) {
	cfg := Default()
	cfg.TradingMode = "turbo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unrecognized trading_mode")
	}
}
