package config

import "fmt"

var validMarketTypes = map[MarketType]bool{
	MarketType15Minute: true,
	MarketType1Hour:    true,
}

// Validate checks the rules spec §6 names: prices in (0.01, 0.99),
// upper_threshold > threshold, kelly_fraction in [0,1], a recognized
// market_type, and positive principal/bet-limit.
func (c Config) Validate() error {
	if c.TradingMode != "paper" && c.TradingMode != "live" {
		return fmt.Errorf("trading_mode must be 'paper' or 'live', got %q", c.TradingMode)
	}
	if !validMarketTypes[c.MarketType] {
		return fmt.Errorf("market_type must be one of 15m, 1h, got %q", c.MarketType)
	}
	if c.InitialPrincipal <= 0 {
		return fmt.Errorf("initial_principal must be > 0, got %f", c.InitialPrincipal)
	}
	if c.DollarBetLimit <= 0 {
		return fmt.Errorf("dollar_bet_limit must be > 0, got %f", c.DollarBetLimit)
	}

	switch c.Strategy {
	case StrategyThreshold:
		if err := c.validateThreshold(); err != nil {
			return err
		}
	case StrategyLimitBuy:
		if err := c.validateLimitBuy(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("strategy must be 'threshold' or 'limit_buy', got %q", c.Strategy)
	}

	return nil
}

func (c Config) validateThreshold() error {
	if err := requirePrice("threshold", c.Threshold); err != nil {
		return err
	}
	if err := requirePrice("upper_threshold", c.UpperThreshold); err != nil {
		return err
	}
	if c.UpperThreshold <= c.Threshold {
		return fmt.Errorf("upper_threshold (%f) must be > threshold (%f)", c.UpperThreshold, c.Threshold)
	}
	if err := requirePrice("threshold_sell", c.ThresholdSell); err != nil {
		return err
	}
	if c.KellyFraction < 0 || c.KellyFraction > 1 {
		return fmt.Errorf("kelly_fraction must be within [0,1], got %f", c.KellyFraction)
	}
	if c.KellyScaleFactor <= 0 {
		return fmt.Errorf("kelly_scale_factor must be > 0, got %f", c.KellyScaleFactor)
	}
	return nil
}

func (c Config) validateLimitBuy() error {
	if err := requirePrice("yes_buy_price", c.YesBuyPrice); err != nil {
		return err
	}
	if err := requirePrice("no_buy_price", c.NoBuyPrice); err != nil {
		return err
	}
	if err := requirePrice("sell_price", c.SellPrice); err != nil {
		return err
	}
	if c.OrderSize <= 0 {
		return fmt.Errorf("order_size must be > 0, got %f", c.OrderSize)
	}
	if c.MinMinutesBeforeResolution < 0 {
		return fmt.Errorf("min_minutes_before_resolution must be >= 0, got %f", c.MinMinutesBeforeResolution)
	}
	if c.CancelThresholdMinutes < 0 {
		return fmt.Errorf("cancel_threshold_minutes must be >= 0, got %f", c.CancelThresholdMinutes)
	}
	return nil
}

func requirePrice(field string, v float64) error {
	if v <= 0.01 || v >= 0.99 {
		return fmt.Errorf("%s must be within (0.01, 0.99), got %f", field, v)
	}
	return nil
}
