package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.TradingMode != "paper" {
		t.Fatalf("expected trading_mode=paper by default, got %q", cfg.TradingMode)
	}
	if cfg.Strategy != StrategyThreshold {
		t.Fatalf("expected strategy=threshold by default, got %q", cfg.Strategy)
	}
	if cfg.MarketType != MarketType15Minute {
		t.Fatalf("expected market_type=15m by default, got %q", cfg.MarketType)
	}
	if cfg.InitialPrincipal <= 0 {
		t.Fatal("expected positive initial_principal by default")
	}
	if cfg.DollarBetLimit <= 0 {
		t.Fatal("expected positive dollar_bet_limit by default")
	}
	if cfg.UpperThreshold <= cfg.Threshold {
		t.Fatal("expected upper_threshold > threshold by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"strategy": "limit_buy",
		"market_type": "1h",
		"initial_principal": 500,
		"dollar_bet_limit": 25,
		"yes_buy_price": 0.45,
		"no_buy_price": 0.45,
		"sell_price": 0.55,
		"order_size": 10,
		"min_minutes_before_resolution": 5,
		"cancel_threshold_minutes": 2
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Strategy != StrategyLimitBuy {
		t.Fatalf("expected strategy=limit_buy, got %q", cfg.Strategy)
	}
	if cfg.MarketType != MarketType1Hour {
		t.Fatalf("expected market_type=1h, got %q", cfg.MarketType)
	}
	if cfg.InitialPrincipal != 500 {
		t.Fatalf("expected initial_principal=500, got %f", cfg.InitialPrincipal)
	}
	// Fields absent from the file keep Default()'s value.
	if cfg.LogLevel != "info" {
		t.Fatalf("expected log_level to keep default, got %q", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg, err := LoadFile("/nonexistent/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if cfg.TradingMode != "paper" {
		t.Fatal("expected Default() returned alongside the error")
	}
}

func TestApplyEnvOverridesCredentials(t *testing.T) {
	t.Setenv("POLYMARKET_PK", "pk-value")
	t.Setenv("POLYMARKET_API_KEY", "key-value")
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot-value")
	t.Setenv("TELEGRAM_CHAT_ID", "chat-value")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.PrivateKey != "pk-value" {
		t.Fatalf("expected private_key overridden, got %q", cfg.PrivateKey)
	}
	if cfg.APIKey != "key-value" {
		t.Fatalf("expected api_key overridden, got %q", cfg.APIKey)
	}
	if !cfg.Telegram.Enabled || cfg.Telegram.BotToken != "bot-value" {
		t.Fatalf("expected telegram enabled with bot token, got %+v", cfg.Telegram)
	}
	if cfg.Telegram.ChatID != "chat-value" {
		t.Fatalf("expected telegram chat id overridden, got %q", cfg.Telegram.ChatID)
	}
}
