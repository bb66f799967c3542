package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/store"
)

const minBetSizeUSDC = 1.0

// Gate runs the pre-trade gating checks of spec §4.5.1 in order; the
// first failing check aborts placement with no state change beyond the
// transient log line the caller emits. Shaped after internal/risk's
// typed-error Allow, narrowed to exactly the checks spec §4.5.1 names —
// no daily-loss limit, drawdown, or cooldown concept belongs here.
type Gate struct {
	Store *store.Store
	GW    gateway.Gateway
}

// NewGate creates a Gate.
func NewGate(s *store.Store, gw gateway.Gateway) *Gate {
	return &Gate{Store: s, GW: gw}
}

// CheckParams holds the inputs a single gating pass needs.
type CheckParams struct {
	DeploymentID           string
	Slug                   string
	MarketActive           bool
	BestAsk                float64
	UpperThreshold         float64
	AmountInvested         float64
	Principal              decimal.Decimal
	MinutesUntilResolution *float64
	MaxMinutesBeforeRes    *float64
}

// Allow runs checks 1-7 in spec order, returning the first violated one.
func (g *Gate) Allow(ctx context.Context, p CheckParams) error {
	// 1. No open buys and no open sells anywhere in this deployment.
	openBuys, err := g.Store.OpenBuys(p.DeploymentID)
	if err != nil {
		return fmt.Errorf("gate: query open buys: %w", err)
	}
	if len(openBuys) > 0 {
		return fmt.Errorf("gate: %d open buy(s) exist, capital not free", len(openBuys))
	}
	openSells, err := g.Store.OpenSells(p.DeploymentID)
	if err != nil {
		return fmt.Errorf("gate: query open sells: %w", err)
	}
	if len(openSells) > 0 {
		return fmt.Errorf("gate: %d open sell(s) exist, capital not free", len(openSells))
	}

	// 2. principal >= min_bet_size.
	if p.Principal.LessThan(decimal.NewFromFloat(minBetSizeUSDC)) {
		return fmt.Errorf("gate: principal %s below min bet size $%.2f", p.Principal.String(), minBetSizeUSDC)
	}

	// 3. Wallet cash balance >= amount_invested.
	balance, err := g.GW.GetPolymarketBalance(ctx)
	if err != nil {
		return fmt.Errorf("gate: fetch balance: %w", err)
	}
	if balance < p.AmountInvested {
		return fmt.Errorf("gate: wallet balance %.2f below amount invested %.2f", balance, p.AmountInvested)
	}

	// 4. Market not already bet on.
	has, err := g.Store.HasBetOnMarket(p.DeploymentID, p.Slug)
	if err != nil {
		return fmt.Errorf("gate: has bet on market: %w", err)
	}
	if has {
		return fmt.Errorf("gate: already bet on %s", p.Slug)
	}

	// 5. Market active.
	if !p.MarketActive {
		return fmt.Errorf("gate: market %s not active", p.Slug)
	}

	// 6. best_ask <= upper_threshold on the triggering side.
	if p.BestAsk > p.UpperThreshold {
		return fmt.Errorf("gate: best_ask %.4f exceeds upper_threshold %.4f", p.BestAsk, p.UpperThreshold)
	}

	// 7. If configured, minutes_until_resolution <= max_minutes_before_resolution.
	if p.MaxMinutesBeforeRes != nil {
		if p.MinutesUntilResolution == nil {
			return fmt.Errorf("gate: minutes_until_resolution unknown, failing closed")
		}
		if *p.MinutesUntilResolution > *p.MaxMinutesBeforeRes {
			return fmt.Errorf("gate: %.1f minutes until resolution exceeds max %.1f", *p.MinutesUntilResolution, *p.MaxMinutesBeforeRes)
		}
	}

	return nil
}
