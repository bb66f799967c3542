// Package config loads and validates the JSON strategy configuration
// spec §6 mandates, rebuilt from the teacher's YAML loader
// (gopkg.in/yaml.v3) onto encoding/json per that section's wire-format
// requirement. The Default/LoadFile/ApplyEnv/Validate shape and the
// env-var credential override convention are kept from the teacher.
package config

import (
	"encoding/json"
	"os"
	"time"
)

// Strategy names the configured Strategy Kernel variant (spec §4.5).
type Strategy string

const (
	StrategyThreshold Strategy = "threshold"
	StrategyLimitBuy  Strategy = "limit_buy"
)

// MarketType names the supported market cadence (spec §4.3).
type MarketType string

const (
	MarketType15Minute MarketType = "15m"
	MarketType1Hour    MarketType = "1h"
)

// Config is the JSON strategy configuration spec §6 names. A
// deployment's config_snapshot column (spec §3) is a serialization of
// the strategy-specific subset of this struct.
type Config struct {
	PrivateKey    string `json:"private_key,omitempty"`
	APIKey        string `json:"api_key,omitempty"`
	APISecret     string `json:"api_secret,omitempty"`
	APIPassphrase string `json:"api_passphrase,omitempty"`

	DeploymentID string     `json:"deployment_id,omitempty"`
	DBPath       string     `json:"db_path"`
	LogLevel     string     `json:"log_level"`
	TradingMode  string     `json:"trading_mode"`
	Strategy     Strategy   `json:"strategy"`
	MarketType   MarketType `json:"market_type"`

	InitialPrincipal float64 `json:"initial_principal"`
	DollarBetLimit   float64 `json:"dollar_bet_limit"`

	// Threshold strategy, required when strategy=threshold (spec §6).
	Threshold                  float64  `json:"threshold"`
	UpperThreshold             float64  `json:"upper_threshold"`
	Margin                     float64  `json:"margin"`
	ThresholdSell              float64  `json:"threshold_sell"`
	MarginSell                 float64  `json:"margin_sell"`
	KellyFraction              float64  `json:"kelly_fraction"`
	KellyScaleFactor           float64  `json:"kelly_scale_factor"`
	MaxMinutesBeforeResolution *float64 `json:"max_minutes_before_resolution,omitempty"`

	// Limit-Buy strategy, required when strategy=limit_buy (spec §6).
	YesBuyPrice                float64 `json:"yes_buy_price"`
	NoBuyPrice                 float64 `json:"no_buy_price"`
	SellPrice                  float64 `json:"sell_price"`
	OrderSize                  float64 `json:"order_size"`
	MinMinutesBeforeResolution float64 `json:"min_minutes_before_resolution"`
	CancelThresholdMinutes     float64 `json:"cancel_threshold_minutes"`
	BestBidMargin              float64 `json:"best_bid_margin,omitempty"`
	SellPriceLowerBound        float64 `json:"sell_price_lower_bound,omitempty"`

	// Scheduler/transport tuning, all optional (spec §4.7/§6).
	OrderbookPollIntervalSec    float64       `json:"orderbook_poll_interval,omitempty"`
	OrderStatusCheckIntervalSec float64       `json:"order_status_check_interval,omitempty"`
	UseWebsocketOrderStatus     bool          `json:"use_websocket_order_status,omitempty"`
	UseWebsocketOrderbook       bool          `json:"use_websocket_orderbook,omitempty"`
	WebsocketReconnectDelay     time.Duration `json:"websocket_reconnect_delay,omitempty"`
	WebsocketHealthCheckTimeout time.Duration `json:"websocket_health_check_timeout,omitempty"`

	MarketWSURL string `json:"market_ws_url,omitempty"`
	UserWSURL   string `json:"user_ws_url,omitempty"`

	Telegram TelegramConfig `json:"telegram"`

	HealthLogInterval time.Duration `json:"health_log_interval,omitempty"`
}

// TelegramConfig holds the optional trade-event notifier credentials
// (spec §12 supplemented feature).
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
}

// Default returns a config with every optional field at its spec §6
// default, strategy=threshold on the 15-minute market cadence.
func Default() Config {
	return Config{
		DBPath:      "trader.db",
		LogLevel:    "info",
		TradingMode: "paper",
		Strategy:    StrategyThreshold,
		MarketType:  MarketType15Minute,

		InitialPrincipal: 100,
		DollarBetLimit:   10,

		Threshold:        0.60,
		UpperThreshold:   0.75,
		Margin:           0.02,
		ThresholdSell:    0.45,
		MarginSell:       0.03,
		KellyFraction:    0.5,
		KellyScaleFactor: 1.0,

		BestBidMargin:       0.02,
		SellPriceLowerBound: 0.01,

		OrderbookPollIntervalSec:    5,
		OrderStatusCheckIntervalSec: 2,
		WebsocketReconnectDelay:     time.Second,
		WebsocketHealthCheckTimeout: 14 * time.Second,

		HealthLogInterval: time.Minute,
	}
}

// LoadFile reads and parses the JSON config at path, starting from
// Default() so unspecified optional fields keep their defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides credential fields from the environment, keeping the
// teacher's convention of never requiring secrets in the config file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("POLYMARKET_PK"); v != "" {
		c.PrivateKey = v
	}
	if v := os.Getenv("POLYMARKET_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("POLYMARKET_API_SECRET"); v != "" {
		c.APISecret = v
	}
	if v := os.Getenv("POLYMARKET_API_PASSPHRASE"); v != "" {
		c.APIPassphrase = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
		c.Telegram.Enabled = true
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
}
