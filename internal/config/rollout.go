package config

import (
	"fmt"
	"strings"
)

// ApplyRolloutPhase applies a staged rollout preset, adapted from the
// teacher's maker/taker size clamps onto this engine's dollar_bet_limit
// and order_size knobs (spec §12). Supported phases:
//   - paper:       trading_mode=paper, values unclamped
//   - shadow:      trading_mode=live, capital knobs clamped to near-zero
//     so a misconfigured live run cannot move real size
//   - live-small:  trading_mode=live, conservative small-size caps
//   - live:        trading_mode=live, configured values used as-is
func ApplyRolloutPhase(cfg *Config, phase string) error {
	p := strings.ToLower(strings.TrimSpace(phase))
	if p == "" {
		return nil
	}

	switch p {
	case "paper":
		cfg.TradingMode = "paper"
	case "shadow":
		cfg.TradingMode = "live"
		clampMaxFloat(&cfg.DollarBetLimit, 0.01)
		clampMaxFloat(&cfg.OrderSize, 0.01)
	case "live-small", "small":
		cfg.TradingMode = "live"
		clampMaxFloat(&cfg.DollarBetLimit, 1)
		clampMaxFloat(&cfg.OrderSize, 1)
	case "live":
		cfg.TradingMode = "live"
	default:
		return fmt.Errorf("unknown rollout phase %q (supported: paper|shadow|live-small|live)", phase)
	}

	return nil
}

func clampMaxFloat(v *float64, max float64) {
	if max <= 0 {
		return
	}
	if *v <= 0 || *v > max {
		*v = max
	}
}
