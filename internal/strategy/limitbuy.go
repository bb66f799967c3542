package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/lifecycle"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/store"
)

// LimitBuyConfig mirrors spec §6's limit-buy-strategy additional config
// keys.
type LimitBuyConfig struct {
	YesBuyPrice             float64
	NoBuyPrice               float64
	SellPrice                float64
	OrderSize                float64
	MinMinutesBeforeResolution float64
	CancelThresholdMinutes   float64
	BestBidMargin            float64 // optional, default 0.02
	SellPriceLowerBound      float64 // optional, default 0.01
}

// LimitBuyStrategy implements spec §4.5.2: simultaneous dual YES/NO
// placement, one-fills-cancels-the-other, cancel-if-stalled, and
// late-exit re-pricing.
type LimitBuyStrategy struct {
	cfg   LimitBuyConfig
	life  *lifecycle.Manager
	store *store.Store
	log   zerolog.Logger

	mu        sync.Mutex
	attempted map[string]bool
}

// NewLimitBuyStrategy constructs a LimitBuyStrategy.
func NewLimitBuyStrategy(cfg LimitBuyConfig, life *lifecycle.Manager, s *store.Store, log zerolog.Logger) *LimitBuyStrategy {
	return &LimitBuyStrategy{cfg: cfg, life: life, store: s, log: log, attempted: make(map[string]bool)}
}

func (lb *LimitBuyStrategy) markAttempted(slug string) bool {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if lb.attempted[slug] {
		return false
	}
	lb.attempted[slug] = true
	return true
}

// OpenPair places both legs of a newly detected market's dual position
// (spec §4.5.2 "Open"). The slug is marked attempted even if one or both
// placements fail, to avoid retry storms.
func (lb *LimitBuyStrategy) OpenPair(ctx context.Context, deploymentID string, m gateway.Market, minutesUntilResolution float64, principal decimal.Decimal) error {
	if minutesUntilResolution < lb.cfg.MinMinutesBeforeResolution {
		return nil
	}
	if !lb.markAttempted(m.Slug) {
		return nil
	}

	snapshot := lb.snapshotJSON()
	var errs []error

	if _, err := lb.life.PlaceBuy(ctx, lifecycle.PlaceBuyParams{
		DeploymentID: deploymentID, MarketID: m.MarketID, Slug: m.Slug, TokenID: m.YesTokenID,
		Side: store.OrderSideYes, ConfigSnapshot: snapshot,
		Price: lb.cfg.YesBuyPrice, Size: lb.cfg.OrderSize, PrincipalNow: principal,
	}); err != nil {
		errs = append(errs, fmt.Errorf("yes leg: %w", err))
	}

	if _, err := lb.life.PlaceBuy(ctx, lifecycle.PlaceBuyParams{
		DeploymentID: deploymentID, MarketID: m.MarketID, Slug: m.Slug, TokenID: m.NoTokenID,
		Side: store.OrderSideNo, ConfigSnapshot: snapshot,
		Price: lb.cfg.NoBuyPrice, Size: lb.cfg.OrderSize, PrincipalNow: principal,
	}); err != nil {
		errs = append(errs, fmt.Errorf("no leg: %w", err))
	}

	if len(errs) == 2 {
		return fmt.Errorf("both legs failed: %v, %v", errs[0], errs[1])
	}
	if len(errs) == 1 {
		lb.log.Warn().Err(errs[0]).Str("slug", m.Slug).Msg("limit-buy: one leg failed, other still live")
	}
	return nil
}

func (lb *LimitBuyStrategy) snapshotJSON() string {
	return fmt.Sprintf(
		`{"yes_buy_price":%v,"no_buy_price":%v,"sell_price":%v,"order_size":%v,"min_minutes_before_resolution":%v,"cancel_threshold_minutes":%v}`,
		lb.cfg.YesBuyPrice, lb.cfg.NoBuyPrice, lb.cfg.SellPrice, lb.cfg.OrderSize,
		lb.cfg.MinMinutesBeforeResolution, lb.cfg.CancelThresholdMinutes,
	)
}

// OnSiblingFill cancels the other leg and places the profit-take SELL
// for the filled side (spec §4.5.2 "one-fills-cancels-the-other").
func (lb *LimitBuyStrategy) OnSiblingFill(ctx context.Context, filled, sibling store.Trade) error {
	if err := lb.life.CancelSibling(ctx, sibling); err != nil {
		return fmt.Errorf("cancel sibling: %w", err)
	}
	if filled.BuyFilledShares == nil {
		return fmt.Errorf("filled trade %s missing buy_filled_shares", filled.TradeID)
	}
	shares := filled.BuyFilledShares.InexactFloat64()
	if shares <= 0 {
		return nil
	}
	return lb.life.PlaceSellVerified(ctx, filled, lb.cfg.SellPrice, shares)
}

// RetryMissingSell re-attempts placing the profit-take SELL for a trade
// whose BUY filled but an earlier sell placement attempt failed (spec
// §4.4 reconciler step 5, "retry-missing-sell").
func (lb *LimitBuyStrategy) RetryMissingSell(ctx context.Context, t store.Trade) error {
	if t.BuyFilledShares == nil {
		return fmt.Errorf("retry missing sell: trade %s missing buy_filled_shares", t.TradeID)
	}
	shares := t.BuyFilledShares.InexactFloat64()
	if shares <= 0 {
		return nil
	}
	return lb.life.PlaceSellVerified(ctx, t, lb.cfg.SellPrice, shares)
}

// CancelStalledPair cancels both legs of a pair when neither has filled
// by cancel_threshold_minutes before resolution (spec §4.5.2).
func (lb *LimitBuyStrategy) CancelStalledPair(ctx context.Context, trades []store.Trade, minutesUntilResolution float64) error {
	return lb.life.CancelStalledBuys(ctx, trades, minutesUntilResolution, lb.cfg.CancelThresholdMinutes)
}

// RepriceLateExit converts a standing profit-take sell into an
// aggressive near-best-bid sell once minutesUntilResolution has dropped
// to cancel_threshold_minutes or below (or the market has already
// ended), clamped to [max(0.01, sell_price_lower_bound), 0.99] (spec
// §4.4/§4.5.2 "late-exit re-pricing"). Before that point the standing
// profit-take sell at sell_price is left alone, mirroring
// CancelStalledPair's threshold check.
func (lb *LimitBuyStrategy) RepriceLateExit(ctx context.Context, t store.Trade, bestBid, minutesUntilResolution float64) error {
	if minutesUntilResolution > lb.cfg.CancelThresholdMinutes {
		return nil
	}

	margin := lb.cfg.BestBidMargin
	if margin <= 0 {
		margin = 0.02
	}
	lowerBound := lb.cfg.SellPriceLowerBound
	if lowerBound <= 0 {
		lowerBound = 0.01
	}

	price := bestBid - margin
	if price < lowerBound {
		price = lowerBound
	}
	if price > 0.99 {
		price = 0.99
	}

	size := 0.0
	if t.BuyFilledShares != nil {
		size = t.BuyFilledShares.InexactFloat64()
	}
	if size <= 0 {
		return nil
	}
	return lb.life.RepriceSell(ctx, t, price, size)
}
